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

// Package automation provides a Postgres-backed store for automation rule
// definitions. Rules are the only state this service owns; everything
// else is consumed as read-only snapshots.
package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cargolink/linking/internal/models"
)

// ErrNotFound is returned when the referenced automation does not exist.
var ErrNotFound = errors.New("automation not found")

// Store provides CRUD operations for automation rules in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates an automation store backed by the given Postgres pool.
// It ensures the automations table exists on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure automation schema: %w", err)
	}
	slog.Info("automation store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS automations (
			id              TEXT PRIMARY KEY,
			name            TEXT NOT NULL,
			description     TEXT DEFAULT '',
			type            TEXT NOT NULL,
			enabled         BOOLEAN NOT NULL DEFAULT TRUE,
			conditions      JSONB NOT NULL,
			organization_id TEXT NOT NULL,
			created_at      TIMESTAMPTZ DEFAULT NOW(),
			updated_at      TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_automations_org ON automations(organization_id);
		CREATE INDEX IF NOT EXISTS idx_automations_org_enabled ON automations(organization_id, enabled);
	`)
	return err
}

// Create inserts a new automation. A missing ID is assigned, conditions
// are normalized, and both timestamps are set.
func (s *Store) Create(ctx context.Context, a *models.Automation) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Conditions != nil {
		a.Conditions.Normalize()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	conditions, err := json.Marshal(a.Conditions)
	if err != nil {
		return fmt.Errorf("marshal conditions: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO automations
			(id, name, description, type, enabled, conditions, organization_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, a.ID, a.Name, a.Description, string(a.Type), a.Enabled, conditions, a.OrganizationID, a.CreatedAt, a.UpdatedAt)
	return err
}

// Get retrieves a single automation by ID. Returns (nil, nil) when the
// automation does not exist.
func (s *Store) Get(ctx context.Context, id string) (*models.Automation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, description, type, enabled, conditions,
		       organization_id, created_at, updated_at
		FROM automations
		WHERE id = $1
	`, id)
	return scanRecord(row)
}

// Update rewrites an automation's editable fields and bumps updated_at.
func (s *Store) Update(ctx context.Context, a *models.Automation) error {
	if a.Conditions != nil {
		a.Conditions.Normalize()
	}
	a.UpdatedAt = time.Now().UTC()

	conditions, err := json.Marshal(a.Conditions)
	if err != nil {
		return fmt.Errorf("marshal conditions: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE automations
		SET name = $1, description = $2, type = $3, enabled = $4,
		    conditions = $5, updated_at = $6
		WHERE id = $7
	`, a.Name, a.Description, string(a.Type), a.Enabled, conditions, a.UpdatedAt, a.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Toggle flips the enabled flag and returns the new state.
func (s *Store) Toggle(ctx context.Context, id string) (bool, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE automations
		SET enabled = NOT enabled, updated_at = NOW()
		WHERE id = $1
		RETURNING enabled
	`, id)

	var enabled bool
	if err := row.Scan(&enabled); err != nil {
		if err == pgx.ErrNoRows {
			return false, ErrNotFound
		}
		return false, err
	}
	return enabled, nil
}

// Delete removes an automation.
func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM automations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns an organization's automations in creation order — the
// order the evaluator runs them in. The enabled filter is optional.
func (s *Store) List(ctx context.Context, organizationID string, enabled *bool) ([]models.Automation, error) {
	query := `
		SELECT id, name, description, type, enabled, conditions,
		       organization_id, created_at, updated_at
		FROM automations
		WHERE organization_id = $1
	`
	args := []any{organizationID}
	if enabled != nil {
		query += ` AND enabled = $2`
		args = append(args, *enabled)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// ListEnabled returns the rules the evaluator should run for an
// organization, in creation order.
func (s *Store) ListEnabled(ctx context.Context, organizationID string) ([]models.Automation, error) {
	enabled := true
	return s.List(ctx, organizationID, &enabled)
}

// scanRecord scans a single row into an Automation.
func scanRecord(row pgx.Row) (*models.Automation, error) {
	var (
		a          models.Automation
		typ        string
		conditions []byte
	)
	err := row.Scan(
		&a.ID, &a.Name, &a.Description, &typ, &a.Enabled, &conditions,
		&a.OrganizationID, &a.CreatedAt, &a.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.Type = models.AutomationType(typ)
	unmarshalConditions(&a, conditions)
	return &a, nil
}

// collectRecords scans multiple rows into a slice of Automations.
func collectRecords(rows pgx.Rows) ([]models.Automation, error) {
	var records []models.Automation
	for rows.Next() {
		var (
			a          models.Automation
			typ        string
			conditions []byte
		)
		if err := rows.Scan(
			&a.ID, &a.Name, &a.Description, &typ, &a.Enabled, &conditions,
			&a.OrganizationID, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, err
		}
		a.Type = models.AutomationType(typ)
		unmarshalConditions(&a, conditions)
		records = append(records, a)
	}
	return records, rows.Err()
}

// unmarshalConditions decodes the JSONB conditions column. A corrupt
// value leaves Conditions nil; the evaluator skips such rules with a
// warning instead of failing the whole pass.
func unmarshalConditions(a *models.Automation, raw []byte) {
	if len(raw) == 0 || string(raw) == "null" {
		return
	}
	var conds models.LinkingConditions
	if err := json.Unmarshal(raw, &conds); err != nil {
		slog.Warn("automation has malformed conditions",
			"automation_id", a.ID,
			"error", err,
		)
		return
	}
	conds.Normalize()
	a.Conditions = &conds
}
