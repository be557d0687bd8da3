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
	"testing"

	"github.com/cargolink/linking/internal/models"
)

// TestDetectSubjectPattern_ZonePriority verifies that a pattern matching
// in several zones reports the highest-priority zone: subject beats body
// beats attachments.
func TestDetectSubjectPattern_ZonePriority(t *testing.T) {
	op := &models.Operation{ProjectName: "Hamburg Export 7"}
	email := &models.IncomingEmail{
		Subject:         "Hamburg Export 7 update",
		BodyText:        "regarding hamburg export 7, see attached",
		AttachmentTexts: []string{"HAMBURG EXPORT 7 manifest"},
	}
	conds := &models.LinkingConditions{
		SubjectPatterns: []string{"{projectName}"},
		SearchIn:        []string{models.ZoneAttachments, models.ZoneBody, models.ZoneSubject},
	}

	ev := detectSubjectPattern(email, op, conds)
	if ev == nil {
		t.Fatal("expected a match")
	}
	if ev.Zone != models.ZoneSubject {
		t.Errorf("zone = %q, want %q", ev.Zone, models.ZoneSubject)
	}
	if ev.Text != "Hamburg Export 7" {
		t.Errorf("evidence = %q, want %q", ev.Text, "Hamburg Export 7")
	}
}

// TestDetectSubjectPattern_AttachmentsOnly verifies attachment text is
// scanned when it is the only enabled zone.
func TestDetectSubjectPattern_AttachmentsOnly(t *testing.T) {
	op := &models.Operation{BookingTracking: "BKG-5100"}
	email := &models.IncomingEmail{
		Subject:         "FW: documents",
		BodyText:        "see attached",
		AttachmentTexts: []string{"irrelevant scan", "Booking BKG-5100 Confirmed"},
	}
	conds := &models.LinkingConditions{
		SubjectPatterns: []string{"{bookingTracking}"},
		SearchIn:        []string{models.ZoneAttachments},
	}

	ev := detectSubjectPattern(email, op, conds)
	if ev == nil {
		t.Fatal("expected a match")
	}
	if ev.Zone != models.ZoneAttachments {
		t.Errorf("zone = %q, want %q", ev.Zone, models.ZoneAttachments)
	}
	if ev.Text != "BKG-5100" {
		t.Errorf("evidence = %q, want %q", ev.Text, "BKG-5100")
	}
}

// TestDetectSubjectPattern_UnknownVariableSkipped verifies a
// misconfigured pattern is skipped without poisoning later patterns.
func TestDetectSubjectPattern_UnknownVariableSkipped(t *testing.T) {
	op := &models.Operation{ProjectName: "Valencia Import 3"}
	email := &models.IncomingEmail{Subject: "Valencia Import 3 docs"}
	conds := &models.LinkingConditions{
		SubjectPatterns: []string{"{containerNo}", "{projectName}"},
		SearchIn:        []string{models.ZoneSubject},
	}

	ev := detectSubjectPattern(email, op, conds)
	if ev == nil {
		t.Fatal("expected the valid pattern to still match")
	}
	if ev.Pattern != "Valencia Import 3" {
		t.Errorf("pattern = %q, want %q", ev.Pattern, "Valencia Import 3")
	}
}

// TestDetectClientEmail verifies exact-address matching on sender and
// recipients. Same-domain addresses do not match.
func TestDetectClientEmail(t *testing.T) {
	client := &models.Client{ID: "c1", Email: "ops@acme.com"}

	tests := []struct {
		name     string
		email    models.IncomingEmail
		wantHit  bool
		wantZone string
	}{
		{
			name:     "from matches",
			email:    models.IncomingEmail{From: models.EmailAddress{Address: "ops@acme.com"}},
			wantHit:  true,
			wantZone: "from",
		},
		{
			name:     "from matches case insensitively",
			email:    models.IncomingEmail{From: models.EmailAddress{Address: "Ops@Acme.COM"}},
			wantHit:  true,
			wantZone: "from",
		},
		{
			name: "recipient matches",
			email: models.IncomingEmail{
				From: models.EmailAddress{Address: "carrier@maersk.com"},
				To: []models.EmailAddress{
					{Address: "forwarder@cargolink.io"},
					{Address: "ops@acme.com"},
				},
			},
			wantHit:  true,
			wantZone: "to",
		},
		{
			name:  "same domain different mailbox does not match",
			email: models.IncomingEmail{From: models.EmailAddress{Address: "no-reply@acme.com"}},
		},
		{
			name:  "unrelated sender",
			email: models.IncomingEmail{From: models.EmailAddress{Address: "news@carrier.com"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := detectClientEmail(&tt.email, client)
			if (ev != nil) != tt.wantHit {
				t.Fatalf("hit = %v, want %v", ev != nil, tt.wantHit)
			}
			if tt.wantHit && ev.Zone != tt.wantZone {
				t.Errorf("zone = %q, want %q", ev.Zone, tt.wantZone)
			}
		})
	}
}

// TestDetectClientEmail_MissingClient verifies absent client records and
// blank registered addresses never match.
func TestDetectClientEmail_MissingClient(t *testing.T) {
	email := &models.IncomingEmail{From: models.EmailAddress{Address: "ops@acme.com"}}

	if ev := detectClientEmail(email, nil); ev != nil {
		t.Error("nil client should not match")
	}
	if ev := detectClientEmail(email, &models.Client{Email: "  "}); ev != nil {
		t.Error("blank registered email should not match")
	}
}

// TestDetectField verifies reference-number detection in subject and body.
func TestDetectField(t *testing.T) {
	email := &models.IncomingEmail{
		Subject:         "shipment update",
		BodyText:        "booking bkg-7788 confirmed",
		AttachmentTexts: []string{"MBL MAEU555 scan"},
	}

	// Body hit, case-insensitive.
	ev := detectField(models.MethodBookingTracking, "BKG-7788", email, false)
	if ev == nil {
		t.Fatal("expected a body match")
	}
	if ev.Zone != models.ZoneBody || ev.Text != "bkg-7788" {
		t.Errorf("got zone %q text %q", ev.Zone, ev.Text)
	}

	// Empty field never matches.
	if ev := detectField(models.MethodHBL, "", email, false); ev != nil {
		t.Error("empty field value should never match")
	}

	// Attachments are excluded by default.
	if ev := detectField(models.MethodMBL, "MAEU555", email, false); ev != nil {
		t.Error("attachments should not be scanned by default")
	}

	// ...but can be opted in.
	ev = detectField(models.MethodMBL, "MAEU555", email, true)
	if ev == nil || ev.Zone != models.ZoneAttachments {
		t.Errorf("expected attachment match with opt-in, got %+v", ev)
	}
}
