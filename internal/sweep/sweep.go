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

// Package sweep re-evaluates parked unmatched emails on a timer.
// Carrier emails routinely arrive before the operation they belong to is
// created in the ERP, so a no-match today is often a match tomorrow.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cargolink/linking/internal/models"
	"github.com/cargolink/linking/internal/queue"
)

// Relinker re-runs rule evaluation for a parked email.
// Implemented by intake.Processor.
type Relinker interface {
	ProcessEmail(ctx context.Context, email *models.IncomingEmail, attempt int) (bool, error)
	KnowsOrganization(organizationID string) bool
}

// ParkedSource drains and refills the unmatched list. Implemented by
// queue.Publisher.
type ParkedSource interface {
	PopUnmatched(ctx context.Context, max int) ([]queue.ParkedEmail, error)
	ParkUnmatched(ctx context.Context, email *models.IncomingEmail, attempts int) error
	UnmatchedLen(ctx context.Context) (int64, error)
}

// Sweeper periodically drains a batch of parked emails and re-evaluates
// them against the current rule and operation sets.
type Sweeper struct {
	source   ParkedSource
	relinker Relinker
	interval time.Duration
	batch    int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config holds the sweeper's dependencies.
type Config struct {
	Source   ParkedSource
	Relinker Relinker
	Interval time.Duration
	Batch    int
}

// New creates a sweeper.
func New(cfg Config) *Sweeper {
	batch := cfg.Batch
	if batch <= 0 {
		batch = 50
	}
	return &Sweeper{
		source:   cfg.Source,
		relinker: cfg.Relinker,
		interval: cfg.Interval,
		batch:    batch,
	}
}

// Start launches the sweep loop. It runs until Stop is called or the
// context is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		slog.Info("relink sweeper starting",
			"interval", s.interval,
			"batch", s.batch,
		)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				slog.Info("relink sweeper stopping")
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
}

// Stop halts the sweep loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Sweep drains one batch of parked emails and re-evaluates each.
// Emails that still do not match are re-parked by the relinker itself,
// so a sweep never loses work.
func (s *Sweeper) Sweep(ctx context.Context) {
	parked, err := s.source.PopUnmatched(ctx, s.batch)
	if err != nil {
		slog.Error("failed to pop unmatched emails", "error", err)
		return
	}
	if len(parked) == 0 {
		return
	}

	linked := 0
	for i := range parked {
		pe := &parked[i]
		if !s.relinker.KnowsOrganization(pe.Email.OrganizationID) {
			slog.Warn("dropping parked email for unconfigured organization",
				"message_id", pe.Email.MessageID,
				"organization", pe.Email.OrganizationID,
			)
			continue
		}

		ok, err := s.relinker.ProcessEmail(ctx, &pe.Email, pe.Attempts)
		if err != nil {
			slog.Error("re-evaluation failed",
				"message_id", pe.Email.MessageID,
				"error", err,
			)
			continue
		}
		if ok {
			linked++
		}
	}

	slog.Info("relink sweep complete",
		"processed", len(parked),
		"linked", linked,
	)
}

// DrainResult summarises one drain pass over the unmatched list.
type DrainResult struct {
	Processed int // emails re-evaluated
	Linked    int
	Skipped   int // out-of-scope, over-limit, or unknown-organization emails
	Failed    int
}

// Drain visits each email parked at the start of the call at most once.
// Re-parked emails — out-of-scope entries put back untouched, and
// no-match entries the relinker parks again — land at the head of the
// list while pops come off the tail, and the pass is bounded by the
// list's initial length, so nothing is evaluated twice in one call.
//
// organizationID, when non-empty, restricts evaluation to that
// organization; other emails keep their attempt counts. limit > 0 caps
// how many emails are evaluated.
func (s *Sweeper) Drain(ctx context.Context, organizationID string, limit int) (DrainResult, error) {
	var res DrainResult

	remaining, err := s.source.UnmatchedLen(ctx)
	if err != nil {
		return res, fmt.Errorf("unmatched length: %w", err)
	}

	for remaining > 0 && (limit <= 0 || res.Processed < limit) {
		batch := s.batch
		if int64(batch) > remaining {
			batch = int(remaining)
		}

		parked, err := s.source.PopUnmatched(ctx, batch)
		if err != nil {
			return res, fmt.Errorf("pop unmatched: %w", err)
		}
		if len(parked) == 0 {
			break
		}
		remaining -= int64(len(parked))

		for i := range parked {
			pe := &parked[i]

			outOfScope := organizationID != "" && pe.Email.OrganizationID != organizationID
			overLimit := limit > 0 && res.Processed >= limit
			if outOfScope || overLimit {
				if err := s.source.ParkUnmatched(ctx, &pe.Email, pe.Attempts); err != nil {
					slog.Error("failed to re-park email",
						"message_id", pe.Email.MessageID,
						"error", err,
					)
				}
				res.Skipped++
				continue
			}

			if !s.relinker.KnowsOrganization(pe.Email.OrganizationID) {
				slog.Warn("dropping parked email for unconfigured organization",
					"message_id", pe.Email.MessageID,
					"organization", pe.Email.OrganizationID,
				)
				res.Skipped++
				continue
			}

			res.Processed++
			ok, err := s.relinker.ProcessEmail(ctx, &pe.Email, pe.Attempts)
			if err != nil {
				slog.Error("re-evaluation failed",
					"message_id", pe.Email.MessageID,
					"error", err,
				)
				res.Failed++
				continue
			}
			if ok {
				res.Linked++
			}
		}
	}

	return res, nil
}
