// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package linker

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// normalized holds a normalized string together with byte-offset maps
// back into the original text, so a match in normalized space can be
// reported as the original (pre-normalization) slice.
type normalized struct {
	text string
	// starts[i] is the original byte offset of the rune that produced
	// normalized byte i; ends[i] is the offset just past that rune (for a
	// collapsed whitespace run, past the whole run).
	starts []int
	ends   []int
}

// normalize trims the string, collapses internal whitespace runs to a
// single space, and lowercases each rune.
func normalize(s string) normalized {
	var b strings.Builder
	var starts, ends []int

	inSpace := false
	spaceStart, spaceEnd := 0, 0
	emitted := false

	for i, r := range s {
		size := utf8.RuneLen(r)
		if unicode.IsSpace(r) {
			if !inSpace {
				spaceStart = i
			}
			spaceEnd = i + size
			inSpace = true
			continue
		}
		if inSpace && emitted {
			b.WriteByte(' ')
			starts = append(starts, spaceStart)
			ends = append(ends, spaceEnd)
		}
		inSpace = false

		lower := unicode.ToLower(r)
		b.WriteRune(lower)
		for n := utf8.RuneLen(lower); n > 0; n-- {
			starts = append(starts, i)
			ends = append(ends, i+size)
		}
		emitted = true
	}

	// Trailing whitespace is dropped entirely (trim).
	return normalized{text: b.String(), starts: starts, ends: ends}
}

// Match tests whether pattern occurs in text. Both sides are normalized
// first (trim, collapse whitespace, lowercase), and the match is plain
// substring containment — patterns come from rule editors, so regex
// semantics would be both surprising and an injection hazard.
//
// An empty normalized pattern never matches; this guards against the
// degenerate [""] default pattern and against empty-field expansions that
// slipped past the resolver.
//
// On success Match returns the matched span's original text slice as
// evidence.
func Match(pattern, text string) (string, bool) {
	p := normalize(pattern).text
	if p == "" {
		return "", false
	}

	n := normalize(text)
	idx := strings.Index(n.text, p)
	if idx < 0 {
		return "", false
	}

	return text[n.starts[idx]:n.ends[idx+len(p)-1]], true
}
