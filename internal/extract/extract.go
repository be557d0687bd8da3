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

// Package extract defines the attachment text-extraction capability the
// matcher depends on. OCR engines are deployment concerns and are
// injected behind the TextExtractor interface, never hard-wired.
package extract

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/cargolink/linking/internal/models"
)

// TextExtractor turns one attachment into searchable text. Returning an
// empty string means the attachment has no extractable text; it is not
// an error.
type TextExtractor interface {
	ExtractText(ctx context.Context, att models.Attachment) (string, error)
}

// PlainText extracts text from text/* attachments by decoding their
// base64 body. Every other content type yields no text.
type PlainText struct{}

// ExtractText implements TextExtractor.
func (PlainText) ExtractText(_ context.Context, att models.Attachment) (string, error) {
	if att.ContentBytes == "" || !strings.HasPrefix(att.ContentType, "text/") {
		return "", nil
	}
	data, err := base64.StdEncoding.DecodeString(att.ContentBytes)
	if err != nil {
		return "", fmt.Errorf("decode attachment %q: %w", att.Name, err)
	}
	return string(data), nil
}
