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

// Package queue moves linking work through Redis lists: decided link
// results go to the links queue for the association worker to persist,
// and emails nothing matched are parked on the unmatched list for later
// re-evaluation.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/cargolink/linking/internal/models"
)

// Publisher sends link results and parked emails to Redis.
type Publisher struct {
	rdb           *redis.Client
	linksQueue    string
	unmatchedList string
}

// NewPublisher creates a Redis publisher targeting the given queue and list.
func NewPublisher(rdb *redis.Client, linksQueue, unmatchedList string) *Publisher {
	return &Publisher{
		rdb:           rdb,
		linksQueue:    linksQueue,
		unmatchedList: unmatchedList,
	}
}

// linkTask wraps a link result for transport. The association worker
// consumes exactly this JSON shape from the links queue.
type linkTask struct {
	ID       string            `json:"id"`
	Task     string            `json:"task"`
	Result   models.LinkResult `json:"result"`
	QueuedAt string            `json:"queued_at"`
}

// ParkedEmail is an email no rule matched, waiting on the unmatched list
// for a later evaluation pass. Attempts counts evaluation passes so the
// sweeper can retire emails that will never match.
type ParkedEmail struct {
	Email    models.IncomingEmail `json:"email"`
	Attempts int                  `json:"attempts"`
	ParkedAt string               `json:"parked_at"`
}

// PublishLinkResult serialises a link result and LPUSHes it to the links
// queue for the association worker.
func (p *Publisher) PublishLinkResult(ctx context.Context, result *models.LinkResult) error {
	task := linkTask{
		ID:       uuid.New().String(),
		Task:     "links.apply",
		Result:   *result,
		QueuedAt: time.Now().UTC().Format(time.RFC3339),
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal link task: %w", err)
	}

	if err := p.rdb.LPush(ctx, p.linksQueue, payload).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Info("published link result",
		"task_id", task.ID,
		"message_id", result.EmailMessageID,
		"operation_id", result.OperationID,
		"rule_id", result.RuleID,
		"queue", p.linksQueue,
	)
	return nil
}

// ParkUnmatched puts an email on the unmatched list for the sweeper.
func (p *Publisher) ParkUnmatched(ctx context.Context, email *models.IncomingEmail, attempts int) error {
	parked := ParkedEmail{
		Email:    *email,
		Attempts: attempts,
		ParkedAt: time.Now().UTC().Format(time.RFC3339),
	}

	payload, err := json.Marshal(parked)
	if err != nil {
		return fmt.Errorf("marshal parked email: %w", err)
	}

	if err := p.rdb.LPush(ctx, p.unmatchedList, payload).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}
	return nil
}

// PopUnmatched takes up to max parked emails off the unmatched list
// (oldest first). Entries that fail to decode are dropped with a warning
// rather than wedging the list.
func (p *Publisher) PopUnmatched(ctx context.Context, max int) ([]ParkedEmail, error) {
	raw, err := p.rdb.RPopCount(ctx, p.unmatchedList, max).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis RPOP: %w", err)
	}

	parked := make([]ParkedEmail, 0, len(raw))
	for _, item := range raw {
		var pe ParkedEmail
		if err := json.Unmarshal([]byte(item), &pe); err != nil {
			slog.Warn("dropping undecodable parked email", "error", err)
			continue
		}
		parked = append(parked, pe)
	}
	return parked, nil
}

// UnmatchedLen reports how many emails are currently parked.
func (p *Publisher) UnmatchedLen(ctx context.Context) (int64, error) {
	return p.rdb.LLen(ctx, p.unmatchedList).Result()
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
