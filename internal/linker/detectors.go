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
	"log/slog"
	"strings"

	"github.com/cargolink/linking/internal/models"
)

// zone pairs a zone name with its text for pattern scanning.
type zone struct {
	name string
	text string
}

// subjectZones builds the scannable zones for subject patterns in
// priority order: subject beats body beats attachments when a pattern
// occurs in more than one.
func subjectZones(email *models.IncomingEmail, conds *models.LinkingConditions) []zone {
	var zones []zone
	if conds.SearchesZone(models.ZoneSubject) {
		zones = append(zones, zone{models.ZoneSubject, email.Subject})
	}
	if conds.SearchesZone(models.ZoneBody) {
		zones = append(zones, zone{models.ZoneBody, email.BodyText})
	}
	if conds.SearchesZone(models.ZoneAttachments) {
		for _, text := range email.AttachmentTexts {
			zones = append(zones, zone{models.ZoneAttachments, text})
		}
	}
	return zones
}

// detectSubjectPattern resolves each configured pattern against the
// operation and scans the enabled zones. First hit wins; patterns that
// cannot apply to this operation (empty field expansion) are skipped,
// and misconfigured patterns are skipped with a warning.
func detectSubjectPattern(email *models.IncomingEmail, op *models.Operation, conds *models.LinkingConditions) *models.MatchEvidence {
	for _, z := range subjectZones(email, conds) {
		for _, pattern := range conds.SubjectPatterns {
			resolved, applicable, err := Resolve(pattern, op)
			if err != nil {
				slog.Warn("skipping misconfigured subject pattern",
					"pattern", pattern,
					"error", err,
				)
				continue
			}
			if !applicable {
				continue
			}
			if span, ok := Match(resolved, z.text); ok {
				return &models.MatchEvidence{
					Method:  models.MethodSubjectPattern,
					Zone:    z.name,
					Pattern: resolved,
					Text:    span,
				}
			}
		}
	}
	return nil
}

// detectClientEmail succeeds when the client's registered address is the
// email's sender or one of its recipients. Comparison is exact-address
// and case-insensitive; a different mailbox on the same domain does NOT
// match — domain-level matching produced too many cross-operation false
// positives to be the default.
func detectClientEmail(email *models.IncomingEmail, client *models.Client) *models.MatchEvidence {
	if client == nil {
		return nil
	}
	registered := strings.TrimSpace(client.Email)
	if registered == "" {
		return nil
	}

	if strings.EqualFold(strings.TrimSpace(email.From.Address), registered) {
		return &models.MatchEvidence{
			Method: models.MethodClientEmail,
			Zone:   "from",
			Text:   email.From.Address,
		}
	}
	for _, to := range email.To {
		if strings.EqualFold(strings.TrimSpace(to.Address), registered) {
			return &models.MatchEvidence{
				Method: models.MethodClientEmail,
				Zone:   "to",
				Text:   to.Address,
			}
		}
	}
	return nil
}

// detectField looks for a reference number (booking, MBL, HBL, operation
// ID) in the email's subject and body. Attachment text is opt-in:
// reference numbers rarely survive OCR intact, so scanning attachments by
// default would mostly add noise.
func detectField(method models.MatchMethod, value string, email *models.IncomingEmail, scanAttachments bool) *models.MatchEvidence {
	if strings.TrimSpace(value) == "" {
		return nil
	}

	zones := []zone{
		{models.ZoneSubject, email.Subject},
		{models.ZoneBody, email.BodyText},
	}
	if scanAttachments {
		for _, text := range email.AttachmentTexts {
			zones = append(zones, zone{models.ZoneAttachments, text})
		}
	}

	for _, z := range zones {
		if span, ok := Match(value, z.text); ok {
			return &models.MatchEvidence{
				Method:  method,
				Zone:    z.name,
				Pattern: value,
				Text:    span,
			}
		}
	}
	return nil
}
