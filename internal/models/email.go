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

// Package models defines the data structures shared across the linking service.
package models

// EmailAddress represents a sender or recipient with an address and optional name.
type EmailAddress struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// Attachment represents a file attached to an email. ContentBytes is
// base64-encoded and only present when the sync service forwards the
// attachment body for text extraction.
type Attachment struct {
	Name         string `json:"name"`
	ContentType  string `json:"content_type"`
	Size         int    `json:"size"`
	ContentBytes string `json:"content_bytes,omitempty"`
}

// IncomingEmail represents a fully parsed email handed over by the email
// sync service, ready for rule evaluation.
//
// This struct's JSON serialisation is the contract of the intake webhook:
// the sync service POSTs exactly this shape to /intake/email. BodyText is
// the plain-text rendering of the message; AttachmentTexts holds
// pre-extracted attachment text in attachment order and may be empty when
// the sync service sends raw attachment bytes instead.
type IncomingEmail struct {
	MessageID       string         `json:"message_id"`
	OrganizationID  string         `json:"organization_id"`
	ReceivedAt      string         `json:"received_at,omitempty"`
	From            EmailAddress   `json:"from"`
	To              []EmailAddress `json:"to"`
	Subject         string         `json:"subject"`
	BodyText        string         `json:"body_text"`
	Attachments     []Attachment   `json:"attachments,omitempty"`
	AttachmentTexts []string       `json:"attachment_texts,omitempty"`
}
