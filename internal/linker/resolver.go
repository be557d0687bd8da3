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
	"fmt"
	"strings"

	"github.com/cargolink/linking/internal/models"
)

// Resolve expands the variable tokens in a pattern against one candidate
// operation's field values, producing a concrete search pattern.
//
// The applicable return is false when the pattern references a field that
// is empty or whitespace-only on this operation — the pattern cannot
// apply, and resolving it to an empty expansion would make it match
// everywhere. Purely literal patterns are returned unchanged and apply to
// any operation.
//
// A brace-delimited token that is not a known variable is a configuration
// error; the caller skips the pattern and logs a warning.
func Resolve(pattern string, op *models.Operation) (resolved string, applicable bool, err error) {
	fields := [...]struct {
		token string
		value string
	}{
		{models.VarProjectName, op.ProjectName},
		{models.VarOperationID, op.ID},
		{models.VarBookingTracking, op.BookingTracking},
		{models.VarMBL, op.MBL},
		{models.VarHBL, op.HBL},
	}

	// Unknown tokens are detected on the raw pattern, with known variables
	// blanked out first — a field value that happens to contain braces is
	// data, not configuration, and must not be flagged.
	stripped := pattern
	for _, f := range fields {
		stripped = strings.ReplaceAll(stripped, f.token, " ")
	}
	if tok := unknownVariable(stripped); tok != "" {
		return "", false, fmt.Errorf("pattern %q: unknown variable %s", pattern, tok)
	}

	out := pattern
	for _, f := range fields {
		if !strings.Contains(out, f.token) {
			continue
		}
		if strings.TrimSpace(f.value) == "" {
			return "", false, nil
		}
		out = strings.ReplaceAll(out, f.token, f.value)
	}

	return out, true, nil
}

// unknownVariable returns the first remaining brace-delimited token in s,
// or "" if none. Braces enclosing whitespace or nested braces are treated
// as literal text — no escape convention exists for patterns today, so
// only token-shaped runs are flagged.
func unknownVariable(s string) string {
	for {
		open := strings.Index(s, "{")
		if open < 0 {
			return ""
		}
		rest := s[open+1:]
		close := strings.IndexAny(rest, "{}")
		if close < 0 {
			return ""
		}
		if rest[close] == '}' && close > 0 {
			tok := rest[:close]
			if !strings.ContainsAny(tok, " \t\n") {
				return "{" + tok + "}"
			}
		}
		s = rest
	}
}
