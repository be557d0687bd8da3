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

package models

import (
	"fmt"
	"strings"
	"time"
)

// AutomationType identifies what an automation rule does.
// Only email-to-operation linking exists today; the type is kept open so
// further automation kinds can be added without changing the rule schema.
type AutomationType string

// AutomationTypeEmailToOperation links incoming emails to logistics operations.
const AutomationTypeEmailToOperation AutomationType = "email_to_operation"

// Search zones for subject patterns.
const (
	ZoneSubject     = "subject"
	ZoneBody        = "body"
	ZoneAttachments = "attachments"
)

// Variable tokens recognised in subject patterns. Each expands to a field
// of the candidate operation during evaluation.
const (
	VarProjectName     = "{projectName}"
	VarOperationID     = "{operationId}"
	VarBookingTracking = "{bookingTracking}"
	VarMBL             = "{mbl_awb}"
	VarHBL             = "{hbl_awb}"
)

// KnownVariables lists every recognised pattern variable.
var KnownVariables = []string{
	VarProjectName,
	VarOperationID,
	VarBookingTracking,
	VarMBL,
	VarHBL,
}

// LinkingConditions configures which detection methods an
// email-to-operation rule runs and where it looks.
type LinkingConditions struct {
	SubjectPatterns []string `json:"subjectPatterns"`
	SearchIn        []string `json:"searchIn"`

	UseClientEmail     bool `json:"useClientEmail"`
	UseBookingTracking bool `json:"useBookingTracking"`
	UseMBL             bool `json:"useMBL"`
	UseHBL             bool `json:"useHBL"`
	UseOperationID     bool `json:"useOperationId"`
}

// Normalize brings conditions to canonical form. An empty pattern list
// becomes a single empty pattern — the matcher treats an empty pattern as
// "never matches", so the entry is harmless but keeps the stored shape
// uniform for rule editors.
func (c *LinkingConditions) Normalize() {
	if len(c.SubjectPatterns) == 0 {
		c.SubjectPatterns = []string{""}
	}
	for i, zone := range c.SearchIn {
		c.SearchIn[i] = strings.ToLower(strings.TrimSpace(zone))
	}
}

// Validate checks conditions for configuration errors: unknown search
// zones, unknown variable tokens, or more than one variable per pattern.
func (c *LinkingConditions) Validate() error {
	for _, zone := range c.SearchIn {
		switch strings.ToLower(strings.TrimSpace(zone)) {
		case ZoneSubject, ZoneBody, ZoneAttachments:
		default:
			return fmt.Errorf("unknown search zone %q", zone)
		}
	}
	for _, p := range c.SubjectPatterns {
		if err := ValidatePattern(p); err != nil {
			return err
		}
	}
	return nil
}

// SearchesZone reports whether the given zone is enabled for subject patterns.
func (c *LinkingConditions) SearchesZone(zone string) bool {
	for _, z := range c.SearchIn {
		if z == zone {
			return true
		}
	}
	return false
}

// ValidatePattern checks a single subject pattern: every brace-delimited
// token must be a known variable, and at most one variable may appear.
func ValidatePattern(pattern string) error {
	rest := pattern
	count := 0
	for _, v := range KnownVariables {
		count += strings.Count(rest, v)
		rest = strings.ReplaceAll(rest, v, "")
	}
	if count > 1 {
		return fmt.Errorf("pattern %q contains more than one variable", pattern)
	}
	// Anything brace-delimited left over is an unknown token.
	if open := strings.Index(rest, "{"); open >= 0 {
		if close := strings.Index(rest[open:], "}"); close > 0 {
			return fmt.Errorf("pattern %q contains unknown variable %q", pattern, rest[open:open+close+1])
		}
	}
	return nil
}

// Automation is a persisted rule describing how to link incoming emails
// to operations within one organization. Disabled rules are skipped
// entirely during evaluation.
type Automation struct {
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	Description    string             `json:"description,omitempty"`
	Type           AutomationType     `json:"type"`
	Enabled        bool               `json:"enabled"`
	Conditions     *LinkingConditions `json:"conditions"`
	OrganizationID string             `json:"organization_id"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}
