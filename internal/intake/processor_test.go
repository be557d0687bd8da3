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

package intake

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cargolink/linking/internal/extract"
	"github.com/cargolink/linking/internal/linker"
	"github.com/cargolink/linking/internal/models"
)

// mockRules implements RuleSource.
type mockRules struct {
	rules []models.Automation
	err   error
}

func (m *mockRules) ListEnabled(_ context.Context, _ string) ([]models.Automation, error) {
	return m.rules, m.err
}

// mockSnapshots implements SnapshotSource.
type mockSnapshots struct {
	operations []models.Operation
	clients    map[string]models.Client
	opsErr     error
}

func (m *mockSnapshots) OpenOperations(_ context.Context, _ string) ([]models.Operation, error) {
	return m.operations, m.opsErr
}

func (m *mockSnapshots) ClientsByID(_ context.Context, _ string) (map[string]models.Client, error) {
	return m.clients, nil
}

// mockSink implements ResultSink and records what it received.
type mockSink struct {
	mu         sync.Mutex
	published  []models.LinkResult
	parked     []queuedPark
	publishErr error
}

type queuedPark struct {
	email    models.IncomingEmail
	attempts int
}

func (m *mockSink) PublishLinkResult(_ context.Context, result *models.LinkResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, *result)
	return nil
}

func (m *mockSink) ParkUnmatched(_ context.Context, email *models.IncomingEmail, attempts int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parked = append(m.parked, queuedPark{email: *email, attempts: attempts})
	return nil
}

func testRule() models.Automation {
	return models.Automation{
		ID:             "r1",
		Name:           "project name in subject",
		Type:           models.AutomationTypeEmailToOperation,
		Enabled:        true,
		OrganizationID: "org-1",
		CreatedAt:      time.Now(),
		Conditions: &models.LinkingConditions{
			SubjectPatterns: []string{"{projectName}"},
			SearchIn:        []string{models.ZoneSubject},
		},
	}
}

func newProcessor(rules *mockRules, snaps *mockSnapshots, sink *mockSink) *Processor {
	return &Processor{
		Rules:       rules,
		Snapshots:   map[string]SnapshotSource{"org-1": snaps},
		Evaluator:   linker.New(linker.Options{}),
		Sink:        sink,
		MaxAttempts: 5,
	}
}

// TestProcessEmail_PublishesMatch verifies the match path publishes a
// link result and parks nothing.
func TestProcessEmail_PublishesMatch(t *testing.T) {
	sink := &mockSink{}
	p := newProcessor(
		&mockRules{rules: []models.Automation{testRule()}},
		&mockSnapshots{operations: []models.Operation{
			{ID: "op-1", ProjectName: "Shanghai Import 44", OrganizationID: "org-1"},
		}},
		sink,
	)

	email := &models.IncomingEmail{
		MessageID:      "m1",
		OrganizationID: "org-1",
		Subject:        "RE: Shanghai Import 44 - docs attached",
	}

	linked, err := p.ProcessEmail(context.Background(), email, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !linked {
		t.Fatal("expected a link")
	}
	if len(sink.published) != 1 || sink.published[0].OperationID != "op-1" {
		t.Errorf("published = %+v", sink.published)
	}
	if len(sink.parked) != 0 {
		t.Errorf("parked = %+v, want none", sink.parked)
	}
}

// TestProcessEmail_ParksUnmatched verifies no-match emails are parked
// with an incremented attempt count.
func TestProcessEmail_ParksUnmatched(t *testing.T) {
	sink := &mockSink{}
	p := newProcessor(
		&mockRules{rules: []models.Automation{testRule()}},
		&mockSnapshots{operations: []models.Operation{
			{ID: "op-1", ProjectName: "Unrelated Project", OrganizationID: "org-1"},
		}},
		sink,
	)

	email := &models.IncomingEmail{MessageID: "m1", OrganizationID: "org-1", Subject: "spam"}

	linked, err := p.ProcessEmail(context.Background(), email, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if linked {
		t.Fatal("expected no link")
	}
	if len(sink.parked) != 1 || sink.parked[0].attempts != 1 {
		t.Fatalf("parked = %+v, want one entry with attempts=1", sink.parked)
	}
}

// TestProcessEmail_RetiresAfterMaxAttempts verifies the attempt budget.
func TestProcessEmail_RetiresAfterMaxAttempts(t *testing.T) {
	sink := &mockSink{}
	p := newProcessor(
		&mockRules{rules: []models.Automation{testRule()}},
		&mockSnapshots{},
		sink,
	)
	p.MaxAttempts = 3

	email := &models.IncomingEmail{MessageID: "m1", OrganizationID: "org-1", Subject: "spam"}

	// Third pass spends the budget: no further parking.
	if _, err := p.ProcessEmail(context.Background(), email, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sink.parked) != 0 {
		t.Errorf("parked = %+v, want retirement", sink.parked)
	}
}

// TestProcessEmail_PublishFailureParks verifies a decided link whose
// publish fails is parked for a later pass instead of being lost.
func TestProcessEmail_PublishFailureParks(t *testing.T) {
	sink := &mockSink{publishErr: errors.New("redis down")}
	p := newProcessor(
		&mockRules{rules: []models.Automation{testRule()}},
		&mockSnapshots{operations: []models.Operation{
			{ID: "op-1", ProjectName: "Shanghai Import 44", OrganizationID: "org-1"},
		}},
		sink,
	)

	email := &models.IncomingEmail{
		MessageID:      "m1",
		OrganizationID: "org-1",
		Subject:        "RE: Shanghai Import 44 - docs attached",
	}

	linked, err := p.ProcessEmail(context.Background(), email, 0)
	if err == nil {
		t.Fatal("expected an error")
	}
	if linked {
		t.Fatal("failed publish must not report a link")
	}
	if len(sink.parked) != 1 || sink.parked[0].attempts != 1 {
		t.Fatalf("parked = %+v, want one entry with attempts=1", sink.parked)
	}
}

// TestProcessEmail_SnapshotFailureParks verifies a flaky ERP parks the
// email instead of dropping it.
func TestProcessEmail_SnapshotFailureParks(t *testing.T) {
	sink := &mockSink{}
	p := newProcessor(
		&mockRules{rules: []models.Automation{testRule()}},
		&mockSnapshots{opsErr: errors.New("erp down")},
		sink,
	)

	email := &models.IncomingEmail{MessageID: "m1", OrganizationID: "org-1", Subject: "anything"}

	if _, err := p.ProcessEmail(context.Background(), email, 0); err == nil {
		t.Fatal("expected an error")
	}
	if len(sink.parked) != 1 {
		t.Fatalf("parked = %+v, want one entry", sink.parked)
	}
}

// TestProcessEmail_UnknownOrganization verifies unconfigured
// organizations are rejected outright.
func TestProcessEmail_UnknownOrganization(t *testing.T) {
	p := newProcessor(&mockRules{}, &mockSnapshots{}, &mockSink{})

	email := &models.IncomingEmail{MessageID: "m1", OrganizationID: "org-unknown"}
	if _, err := p.ProcessEmail(context.Background(), email, 0); err == nil {
		t.Fatal("expected an error for unknown organization")
	}
}

// TestProcessEmail_ExtractsAttachmentText verifies raw text attachments
// are extracted before evaluation when no pre-extracted text was sent.
func TestProcessEmail_ExtractsAttachmentText(t *testing.T) {
	rule := testRule()
	rule.Conditions.SearchIn = []string{models.ZoneAttachments}

	sink := &mockSink{}
	p := newProcessor(
		&mockRules{rules: []models.Automation{rule}},
		&mockSnapshots{operations: []models.Operation{
			{ID: "op-1", ProjectName: "Hamburg Export 7", OrganizationID: "org-1"},
		}},
		sink,
	)
	p.Extractor = extract.PlainText{}

	email := &models.IncomingEmail{
		MessageID:      "m1",
		OrganizationID: "org-1",
		Subject:        "FW: docs",
		Attachments: []models.Attachment{{
			Name:         "note.txt",
			ContentType:  "text/plain",
			ContentBytes: base64.StdEncoding.EncodeToString([]byte("re Hamburg Export 7 manifest")),
		}},
	}

	linked, err := p.ProcessEmail(context.Background(), email, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !linked {
		t.Fatal("expected a link via extracted attachment text")
	}
	if len(sink.published) != 1 || sink.published[0].Evidence[0].Zone != models.ZoneAttachments {
		t.Errorf("published = %+v", sink.published)
	}
}
