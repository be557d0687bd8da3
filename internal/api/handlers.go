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

// Package api exposes the automation rule CRUD surface over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cargolink/linking/internal/automation"
	"github.com/cargolink/linking/internal/models"
)

// AutomationStore is the persistence surface the handlers need. The
// Postgres-backed automation.Store satisfies it.
type AutomationStore interface {
	Create(ctx context.Context, a *models.Automation) error
	Get(ctx context.Context, id string) (*models.Automation, error)
	Update(ctx context.Context, a *models.Automation) error
	Delete(ctx context.Context, id string) error
	Toggle(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, organizationID string, enabled *bool) ([]models.Automation, error)
}

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// API holds the handler dependencies.
type API struct {
	store AutomationStore
	db    Pinger
	queue Pinger
}

// New creates an API. db and queue may be nil, in which case the health
// endpoint skips them.
func New(store AutomationStore, db, queue Pinger) *API {
	return &API{store: store, db: db, queue: queue}
}

// SetupRoutes registers all API routes on the router.
func SetupRoutes(router *gin.Engine, a *API) {
	v1 := router.Group("/api/v1")
	{
		v1.GET("/automations", a.ListAutomationsHandler)
		v1.POST("/automations", a.CreateAutomationHandler)
		v1.GET("/automations/:id", a.GetAutomationHandler)
		v1.PUT("/automations/:id", a.UpdateAutomationHandler)
		v1.DELETE("/automations/:id", a.DeleteAutomationHandler)
		v1.POST("/automations/:id/toggle", a.ToggleAutomationHandler)
	}
	router.GET("/health", a.HealthHandler)
}

// AutomationRequest is the payload for creating or updating an automation.
type AutomationRequest struct {
	Name           string                    `json:"name"`
	Description    string                    `json:"description,omitempty"`
	Type           models.AutomationType     `json:"type,omitempty"`
	Enabled        *bool                     `json:"enabled,omitempty"`
	Conditions     *models.LinkingConditions `json:"conditions"`
	OrganizationID string                    `json:"organization_id"`
}

func (r *AutomationRequest) validate() error {
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	if r.OrganizationID == "" {
		return fmt.Errorf("organization_id is required")
	}
	if r.Type != "" && r.Type != models.AutomationTypeEmailToOperation {
		return fmt.Errorf("unsupported automation type %q", r.Type)
	}
	if r.Conditions == nil {
		return fmt.Errorf("conditions are required")
	}
	if err := r.Conditions.Validate(); err != nil {
		return err
	}
	return nil
}

func (r *AutomationRequest) toModel() *models.Automation {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	typ := r.Type
	if typ == "" {
		typ = models.AutomationTypeEmailToOperation
	}
	return &models.Automation{
		Name:           r.Name,
		Description:    r.Description,
		Type:           typ,
		Enabled:        enabled,
		Conditions:     r.Conditions,
		OrganizationID: r.OrganizationID,
	}
}

// ListAutomationsHandler returns the automations of one organization,
// optionally filtered by enabled state.
func (a *API) ListAutomationsHandler(c *gin.Context) {
	orgID := c.Query("organization_id")
	if orgID == "" {
		SendError(c, http.StatusBadRequest, ErrorCodeValidationFailed, "organization_id query parameter is required")
		return
	}

	var enabled *bool
	if raw := c.Query("enabled"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			SendError(c, http.StatusBadRequest, ErrorCodeValidationFailed, "enabled must be true or false")
			return
		}
		enabled = &v
	}

	automations, err := a.store.List(c.Request.Context(), orgID, enabled)
	if err != nil {
		slog.Error("listing automations", "organization_id", orgID, "error", err)
		SendError(c, http.StatusInternalServerError, ErrorCodeStorageFailed, "failed to list automations")
		return
	}
	if automations == nil {
		automations = []models.Automation{}
	}
	c.JSON(http.StatusOK, gin.H{"automations": automations, "count": len(automations)})
}

// CreateAutomationHandler creates a new automation rule.
func (a *API) CreateAutomationHandler(c *gin.Context) {
	var req AutomationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		SendError(c, http.StatusBadRequest, ErrorCodeInvalidJSON, "Invalid JSON in request body: "+err.Error())
		return
	}
	if err := req.validate(); err != nil {
		SendError(c, http.StatusBadRequest, ErrorCodeValidationFailed, err.Error())
		return
	}

	automation := req.toModel()
	if err := a.store.Create(c.Request.Context(), automation); err != nil {
		slog.Error("creating automation", "name", req.Name, "error", err)
		SendError(c, http.StatusInternalServerError, ErrorCodeStorageFailed, "failed to create automation")
		return
	}
	c.JSON(http.StatusCreated, automation)
}

// GetAutomationHandler returns a single automation by ID.
func (a *API) GetAutomationHandler(c *gin.Context) {
	id := c.Param("id")
	automation, err := a.store.Get(c.Request.Context(), id)
	if err != nil {
		slog.Error("fetching automation", "id", id, "error", err)
		SendError(c, http.StatusInternalServerError, ErrorCodeStorageFailed, "failed to fetch automation")
		return
	}
	if automation == nil {
		SendError(c, http.StatusNotFound, ErrorCodeAutomationNotFound, fmt.Sprintf("automation %q not found", id))
		return
	}
	c.JSON(http.StatusOK, automation)
}

// UpdateAutomationHandler replaces an automation's mutable fields.
func (a *API) UpdateAutomationHandler(c *gin.Context) {
	id := c.Param("id")
	var req AutomationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		SendError(c, http.StatusBadRequest, ErrorCodeInvalidJSON, "Invalid JSON in request body: "+err.Error())
		return
	}
	if err := req.validate(); err != nil {
		SendError(c, http.StatusBadRequest, ErrorCodeValidationFailed, err.Error())
		return
	}

	automation := req.toModel()
	automation.ID = id
	err := a.store.Update(c.Request.Context(), automation)
	if err != nil {
		if isNotFound(err) {
			SendError(c, http.StatusNotFound, ErrorCodeAutomationNotFound, fmt.Sprintf("automation %q not found", id))
			return
		}
		slog.Error("updating automation", "id", id, "error", err)
		SendError(c, http.StatusInternalServerError, ErrorCodeStorageFailed, "failed to update automation")
		return
	}
	c.JSON(http.StatusOK, automation)
}

// DeleteAutomationHandler removes an automation.
func (a *API) DeleteAutomationHandler(c *gin.Context) {
	id := c.Param("id")
	if err := a.store.Delete(c.Request.Context(), id); err != nil {
		if isNotFound(err) {
			SendError(c, http.StatusNotFound, ErrorCodeAutomationNotFound, fmt.Sprintf("automation %q not found", id))
			return
		}
		slog.Error("deleting automation", "id", id, "error", err)
		SendError(c, http.StatusInternalServerError, ErrorCodeStorageFailed, "failed to delete automation")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("automation %q deleted", id)})
}

// ToggleAutomationHandler flips the enabled flag and returns the new state.
func (a *API) ToggleAutomationHandler(c *gin.Context) {
	id := c.Param("id")
	enabled, err := a.store.Toggle(c.Request.Context(), id)
	if err != nil {
		if isNotFound(err) {
			SendError(c, http.StatusNotFound, ErrorCodeAutomationNotFound, fmt.Sprintf("automation %q not found", id))
			return
		}
		slog.Error("toggling automation", "id", id, "error", err)
		SendError(c, http.StatusInternalServerError, ErrorCodeStorageFailed, "failed to toggle automation")
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "enabled": enabled})
}

func isNotFound(err error) bool {
	return errors.Is(err, automation.ErrNotFound)
}

// HealthHandler reports the service and its dependencies.
func (a *API) HealthHandler(c *gin.Context) {
	status := http.StatusOK
	checks := gin.H{}
	if a.db != nil {
		if err := a.db.Ping(c.Request.Context()); err != nil {
			checks["database"] = "unreachable"
			status = http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	}
	if a.queue != nil {
		if err := a.queue.Ping(c.Request.Context()); err != nil {
			checks["queue"] = "unreachable"
			status = http.StatusServiceUnavailable
		} else {
			checks["queue"] = "ok"
		}
	}
	state := "healthy"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{"status": state, "checks": checks})
}
