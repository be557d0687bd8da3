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

// MatchMethod identifies which detection method produced a match signal.
type MatchMethod string

// Detection methods.
const (
	MethodSubjectPattern  MatchMethod = "subject_pattern"
	MethodClientEmail     MatchMethod = "client_email"
	MethodBookingTracking MatchMethod = "booking_tracking"
	MethodMBL             MatchMethod = "mbl_awb"
	MethodHBL             MatchMethod = "hbl_awb"
	MethodOperationID     MatchMethod = "operation_id"
)

// MatchEvidence records the literal text a detector matched, for audit
// and debugging. Text is the pre-normalization slice of the scanned zone.
type MatchEvidence struct {
	Method  MatchMethod `json:"method"`
	Zone    string      `json:"zone"`
	Pattern string      `json:"pattern,omitempty"`
	Text    string      `json:"text"`
}

// LinkResult is the outcome of one evaluation pass: the single operation
// an email should be linked to, the rule that decided it, and the
// evidence behind the decision. Results are ephemeral — persisting the
// email↔operation association is the links-queue consumer's job.
type LinkResult struct {
	EmailMessageID string          `json:"email_message_id"`
	OrganizationID string          `json:"organization_id"`
	OperationID    string          `json:"operation_id"`
	RuleID         string          `json:"rule_id"`
	Methods        []MatchMethod   `json:"methods"`
	Evidence       []MatchEvidence `json:"evidence"`
}
