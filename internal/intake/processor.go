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

// Package intake receives parsed emails from the sync service and runs
// them through rule evaluation. The webhook handler answers fast and
// evaluates in the background; the Processor holds the evaluation path
// shared with the relink sweeper.
package intake

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cargolink/linking/internal/extract"
	"github.com/cargolink/linking/internal/linker"
	"github.com/cargolink/linking/internal/models"
)

// RuleSource supplies the enabled automation rules for an organization,
// in evaluation order. Implemented by automation.Store.
type RuleSource interface {
	ListEnabled(ctx context.Context, organizationID string) ([]models.Automation, error)
}

// SnapshotSource supplies read-only operation and client snapshots.
// Implemented by erp.Client.
type SnapshotSource interface {
	OpenOperations(ctx context.Context, organizationID string) ([]models.Operation, error)
	ClientsByID(ctx context.Context, organizationID string) (map[string]models.Client, error)
}

// ResultSink receives linking decisions and unmatched emails.
// Implemented by queue.Publisher.
type ResultSink interface {
	PublishLinkResult(ctx context.Context, result *models.LinkResult) error
	ParkUnmatched(ctx context.Context, email *models.IncomingEmail, attempts int) error
}

// Processor runs one email through evaluation and routes the outcome.
type Processor struct {
	Rules     RuleSource
	Snapshots map[string]SnapshotSource // keyed by organization ID
	Evaluator *linker.Evaluator
	Sink      ResultSink
	Extractor extract.TextExtractor

	// MaxAttempts bounds how many evaluation passes an email gets before
	// it is retired from the unmatched list.
	MaxAttempts int
}

// KnowsOrganization reports whether a snapshot source is configured for
// the organization.
func (p *Processor) KnowsOrganization(organizationID string) bool {
	_, ok := p.Snapshots[organizationID]
	return ok
}

// ProcessEmail evaluates one email. attempt is the number of evaluation
// passes already spent on it (0 for fresh intake). It returns true when a
// link was decided and published.
//
// Failures to load rules or snapshots park the email for the sweeper
// instead of dropping it — a flaky ERP must not lose linking work.
func (p *Processor) ProcessEmail(ctx context.Context, email *models.IncomingEmail, attempt int) (bool, error) {
	snapshots, ok := p.Snapshots[email.OrganizationID]
	if !ok {
		return false, fmt.Errorf("unknown organization %q", email.OrganizationID)
	}

	p.fillAttachmentTexts(ctx, email)

	rules, err := p.Rules.ListEnabled(ctx, email.OrganizationID)
	if err != nil {
		p.park(ctx, email, attempt+1)
		return false, fmt.Errorf("load rules: %w", err)
	}

	operations, err := snapshots.OpenOperations(ctx, email.OrganizationID)
	if err != nil {
		p.park(ctx, email, attempt+1)
		return false, fmt.Errorf("load operations: %w", err)
	}

	clients, err := snapshots.ClientsByID(ctx, email.OrganizationID)
	if err != nil {
		p.park(ctx, email, attempt+1)
		return false, fmt.Errorf("load clients: %w", err)
	}

	result := p.Evaluator.Evaluate(email, rules, operations, clients)
	if result == nil {
		slog.Info("no automation matched",
			"message_id", email.MessageID,
			"organization", email.OrganizationID,
			"attempt", attempt+1,
		)
		p.park(ctx, email, attempt+1)
		return false, nil
	}

	if err := p.Sink.PublishLinkResult(ctx, result); err != nil {
		// The decision is lost if the email is dropped here; park it so a
		// later pass can decide again.
		p.park(ctx, email, attempt+1)
		return false, fmt.Errorf("publish link result: %w", err)
	}
	return true, nil
}

// fillAttachmentTexts extracts attachment text when the sync service sent
// raw bytes instead of pre-extracted text. Extraction failures degrade to
// "no text for this attachment" — they never block evaluation.
func (p *Processor) fillAttachmentTexts(ctx context.Context, email *models.IncomingEmail) {
	if p.Extractor == nil || len(email.AttachmentTexts) > 0 || len(email.Attachments) == 0 {
		return
	}
	for _, att := range email.Attachments {
		text, err := p.Extractor.ExtractText(ctx, att)
		if err != nil {
			slog.Warn("attachment text extraction failed",
				"message_id", email.MessageID,
				"attachment", att.Name,
				"error", err,
			)
			text = ""
		}
		email.AttachmentTexts = append(email.AttachmentTexts, text)
	}
}

// park re-queues an unmatched email unless its attempt budget is spent.
func (p *Processor) park(ctx context.Context, email *models.IncomingEmail, attempts int) {
	if p.MaxAttempts > 0 && attempts >= p.MaxAttempts {
		slog.Info("retiring unmatched email",
			"message_id", email.MessageID,
			"attempts", attempts,
		)
		return
	}
	if err := p.Sink.ParkUnmatched(ctx, email, attempts); err != nil {
		slog.Error("failed to park unmatched email",
			"message_id", email.MessageID,
			"error", err,
		)
	}
}
