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

package api

import (
	"time"

	"github.com/gin-gonic/gin"
)

// ErrorCode represents standardized error codes for the API.
type ErrorCode string

const (
	// Client error codes (4xx)
	ErrorCodeInvalidJSON        ErrorCode = "INVALID_JSON"
	ErrorCodeValidationFailed   ErrorCode = "VALIDATION_FAILED"
	ErrorCodeAutomationNotFound ErrorCode = "AUTOMATION_NOT_FOUND"

	// Server error codes (5xx)
	ErrorCodeStorageFailed ErrorCode = "STORAGE_FAILED"
)

// APIError represents a standardized API error response.
type APIError struct {
	Error     string    `json:"error"`
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// SendError sends a standardized error response.
func SendError(c *gin.Context, statusCode int, code ErrorCode, message string) {
	c.JSON(statusCode, APIError{
		Error:     "Request failed",
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}
