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
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/cargolink/linking/internal/models"
)

// tokenHeader carries the shared intake secret the sync service presents.
const tokenHeader = "X-Intake-Token"

// DedupFilter tracks already-evaluated message IDs. Implemented by
// dedup.Filter.
type DedupFilter interface {
	IsNew(ctx context.Context, messageID string) (bool, error)
}

// Handler processes email webhook deliveries from the sync service.
type Handler struct {
	processor *Processor
	filter    DedupFilter
	token     string
}

// NewHandler creates an email intake handler.
func NewHandler(processor *Processor, filter DedupFilter, token string) *Handler {
	return &Handler{
		processor: processor,
		filter:    filter,
		token:     token,
	}
}

// ServeEmail handles POST /intake/email.
//
// The sync service expects a fast response and retries on anything but
// 2xx, so accepted emails are answered 202 immediately and evaluated in
// the background. Only requests that can never succeed (bad auth, bad
// payload, unknown organization) are rejected.
func (h *Handler) ServeEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if h.token == "" || r.Header.Get(tokenHeader) != h.token {
		slog.Warn("intake request with bad token", "remote", r.RemoteAddr)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var email models.IncomingEmail
	if err := json.NewDecoder(r.Body).Decode(&email); err != nil {
		http.Error(w, "invalid email payload", http.StatusBadRequest)
		return
	}
	if email.MessageID == "" || email.OrganizationID == "" {
		http.Error(w, "message_id and organization_id are required", http.StatusBadRequest)
		return
	}
	if !h.processor.KnowsOrganization(email.OrganizationID) {
		http.Error(w, "unknown organization", http.StatusUnprocessableEntity)
		return
	}

	// Respond immediately — evaluate in the background.
	w.WriteHeader(http.StatusAccepted)

	go h.process(context.Background(), &email)
}

// process runs dedup and evaluation for one accepted email.
func (h *Handler) process(ctx context.Context, email *models.IncomingEmail) {
	isNew, err := h.filter.IsNew(ctx, email.MessageID)
	if err != nil {
		slog.Warn("dedup check failed, proceeding", "error", err)
	} else if !isNew {
		slog.Debug("skipping duplicate message", "message_id", email.MessageID)
		return
	}

	slog.Info("processing incoming email",
		"message_id", email.MessageID,
		"organization", email.OrganizationID,
	)

	if _, err := h.processor.ProcessEmail(ctx, email, 0); err != nil {
		slog.Error("email evaluation failed",
			"message_id", email.MessageID,
			"error", err,
		)
	}
}

// Serve starts the intake HTTP server on the given port. It binds the
// port immediately and signals readiness via the returned channel before
// accepting connections.
func Serve(ctx context.Context, port int, handler *Handler) (<-chan struct{}, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/intake/email", handler.ServeEmail)

	server := &http.Server{
		Handler: mux,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind intake port %d: %w", port, err)
	}

	ready := make(chan struct{})

	go func() {
		<-ctx.Done()
		slog.Info("intake server shutting down")
		server.Close()
	}()

	go func() {
		slog.Info("intake server listening", "port", port)
		close(ready)
		if err := server.Serve(ln); err != http.ErrServerClosed {
			slog.Error("intake server error", "error", err)
		}
	}()

	return ready, nil
}
