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

// Package erp provides a read-only client for the forwarding ERP's REST
// API. The linking service never writes through it — operations and
// clients are consumed as immutable snapshots for one evaluation pass.
package erp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/cargolink/linking/internal/models"
)

// maxPages bounds cursor pagination so a misbehaving endpoint cannot
// spin the snapshot fetch forever.
const maxPages = 100

// Client fetches operation and client snapshots from the ERP API.
// The http.Client carries per-organization OAuth2 client credentials.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates an ERP snapshot client.
func NewClient(httpClient *http.Client, baseURL string) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
	}
}

// operationsPage represents one page of the /api/operations response.
type operationsPage struct {
	Data []models.Operation `json:"data"`
	Next string             `json:"next,omitempty"`
}

// clientsPage represents one page of the /api/clients response.
type clientsPage struct {
	Data []models.Client `json:"data"`
	Next string          `json:"next,omitempty"`
}

// OpenOperations returns the organization's non-terminal operations —
// the default candidate set for one evaluation pass. The status filter
// runs server-side; IsOpen re-checks locally in case the ERP returns a
// wider set than asked.
func (c *Client) OpenOperations(ctx context.Context, organizationID string) ([]models.Operation, error) {
	var operations []models.Operation
	cursor := ""

	for page := 0; page < maxPages; page++ {
		params := url.Values{}
		params.Set("organizationId", organizationID)
		params.Set("status", "open")
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		var body operationsPage
		if err := c.getJSON(ctx, "/api/operations?"+params.Encode(), &body); err != nil {
			return nil, fmt.Errorf("list operations: %w", err)
		}

		for _, op := range body.Data {
			if op.IsOpen() {
				operations = append(operations, op)
			}
		}

		if body.Next == "" {
			return operations, nil
		}
		cursor = body.Next
	}

	return nil, fmt.Errorf("list operations: pagination exceeded %d pages", maxPages)
}

// ClientsByID returns the organization's client records keyed by ID, for
// the client-email detector.
func (c *Client) ClientsByID(ctx context.Context, organizationID string) (map[string]models.Client, error) {
	clients := make(map[string]models.Client)
	cursor := ""

	for page := 0; page < maxPages; page++ {
		params := url.Values{}
		params.Set("organizationId", organizationID)
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		var body clientsPage
		if err := c.getJSON(ctx, "/api/clients?"+params.Encode(), &body); err != nil {
			return nil, fmt.Errorf("list clients: %w", err)
		}

		for _, cl := range body.Data {
			clients[cl.ID] = cl
		}

		if body.Next == "" {
			return clients, nil
		}
		cursor = body.Next
	}

	return nil, fmt.Errorf("list clients: pagination exceeded %d pages", maxPages)
}

// getJSON performs a GET against the ERP API and decodes the response.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("erp request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("erp API returned HTTP %d for %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
