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

// Package linker implements the email-to-operation matching engine: it
// resolves rule patterns against candidate operations, runs the
// configured detection methods over an incoming email, and returns at
// most one linking decision per evaluation pass.
//
// Evaluation is a pure, synchronous computation over in-memory snapshots.
// It holds no state and is safe to run concurrently, one call per email.
package linker

import (
	"log/slog"
	"sort"

	"github.com/cargolink/linking/internal/models"
)

// Options tune evaluation behaviour beyond what rules configure.
type Options struct {
	// FieldDetectorsScanAttachments extends the booking/MBL/HBL/operation-ID
	// detectors to attachment text. Off by default (subject + body only).
	FieldDetectorsScanAttachments bool
}

// Evaluator runs automation rules over incoming emails.
type Evaluator struct {
	opts Options
}

// New creates an evaluator.
func New(opts Options) *Evaluator {
	return &Evaluator{opts: opts}
}

// Evaluate runs every enabled rule in the email's organization against
// every candidate operation and returns the first (rule, operation) pair
// with at least one positive detector, or nil when nothing matches.
//
// Rules run in creation order; candidates run in the order given, so the
// caller controls tie-breaking between operations that would both match.
// A rule is a match for an operation when ANY of its enabled detectors
// fires — broad recall on purpose: a wrong suggestion is cheap to fix in
// the dashboard, a missed link is not.
//
// Clients is a lookup by client ID used by the client-email detector;
// operations whose client is absent simply skip that detector.
func (e *Evaluator) Evaluate(
	email *models.IncomingEmail,
	rules []models.Automation,
	candidates []models.Operation,
	clients map[string]models.Client,
) *models.LinkResult {
	active := activeRules(email.OrganizationID, rules)

	for _, rule := range active {
		for i := range candidates {
			op := &candidates[i]
			if op.OrganizationID != email.OrganizationID || !op.IsOpen() {
				continue
			}
			if evidence := e.runDetectors(email, rule, op, clients); len(evidence) > 0 {
				return buildResult(email, rule, op, evidence)
			}
		}
	}
	return nil
}

// activeRules filters to enabled email-to-operation rules in the email's
// organization and orders them by creation time (rule priority). Rules
// without conditions are skipped: one misconfigured rule must never stop
// the others from matching.
func activeRules(organizationID string, rules []models.Automation) []models.Automation {
	active := make([]models.Automation, 0, len(rules))
	for _, rule := range rules {
		if !rule.Enabled || rule.OrganizationID != organizationID {
			continue
		}
		if rule.Type != models.AutomationTypeEmailToOperation {
			continue
		}
		if rule.Conditions == nil {
			slog.Warn("skipping automation without conditions",
				"rule_id", rule.ID,
				"rule_name", rule.Name,
			)
			continue
		}
		active = append(active, rule)
	}

	sort.SliceStable(active, func(i, j int) bool {
		if !active[i].CreatedAt.Equal(active[j].CreatedAt) {
			return active[i].CreatedAt.Before(active[j].CreatedAt)
		}
		return active[i].ID < active[j].ID
	})
	return active
}

// runDetectors executes the rule's enabled detection methods for one
// (email, operation) pair and collects every positive signal.
func (e *Evaluator) runDetectors(
	email *models.IncomingEmail,
	rule models.Automation,
	op *models.Operation,
	clients map[string]models.Client,
) []models.MatchEvidence {
	conds := rule.Conditions
	var evidence []models.MatchEvidence

	if ev := detectSubjectPattern(email, op, conds); ev != nil {
		evidence = append(evidence, *ev)
	}
	if conds.UseClientEmail {
		var client *models.Client
		if c, ok := clients[op.ClientID]; ok {
			client = &c
		}
		if ev := detectClientEmail(email, client); ev != nil {
			evidence = append(evidence, *ev)
		}
	}
	if conds.UseBookingTracking {
		if ev := detectField(models.MethodBookingTracking, op.BookingTracking, email, e.opts.FieldDetectorsScanAttachments); ev != nil {
			evidence = append(evidence, *ev)
		}
	}
	if conds.UseMBL {
		if ev := detectField(models.MethodMBL, op.MBL, email, e.opts.FieldDetectorsScanAttachments); ev != nil {
			evidence = append(evidence, *ev)
		}
	}
	if conds.UseHBL {
		if ev := detectField(models.MethodHBL, op.HBL, email, e.opts.FieldDetectorsScanAttachments); ev != nil {
			evidence = append(evidence, *ev)
		}
	}
	if conds.UseOperationID {
		if ev := detectField(models.MethodOperationID, op.ID, email, e.opts.FieldDetectorsScanAttachments); ev != nil {
			evidence = append(evidence, *ev)
		}
	}

	return evidence
}

// buildResult assembles the linking decision for the winning pair.
func buildResult(email *models.IncomingEmail, rule models.Automation, op *models.Operation, evidence []models.MatchEvidence) *models.LinkResult {
	methods := make([]models.MatchMethod, 0, len(evidence))
	for _, ev := range evidence {
		methods = append(methods, ev.Method)
	}
	return &models.LinkResult{
		EmailMessageID: email.MessageID,
		OrganizationID: email.OrganizationID,
		OperationID:    op.ID,
		RuleID:         rule.ID,
		Methods:        methods,
		Evidence:       evidence,
	}
}
