// Copyright 2025 Tom Barlow
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

// Package errors holds the error types shared across hearth packages.
// Domain outcomes of lifecycle operations live in internal/workload; the
// types here cover input validation, missing resources, and configuration.
package errors

import (
	"fmt"
)

// Classified is implemented by errors that carry a stable machine-readable
// category. The HTTP layer reports it in the "code" field of error bodies.
type Classified interface {
	error
	ErrorType() string
}

// ValidationError represents user input validation failures.
type ValidationError struct {
	// Field identifies which input field failed validation
	Field string

	// Message is the human-readable error description
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// ErrorType implements Classified.
func (e *ValidationError) ErrorType() string { return "validation" }

// NotFoundError represents a resource not found error.
type NotFoundError struct {
	// Resource is the type of resource (e.g., "workload", "task", "backup policy")
	Resource string

	// ID is the identifier that was not found
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrorType implements Classified.
func (e *NotFoundError) ErrorType() string { return "not_found" }

// ConfigError represents configuration problems.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g., "daemon.backend.type")
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (e.g., file read error, parse error)
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	msg := "config error"
	if e.Key != "" {
		msg = fmt.Sprintf("config error at %s", e.Key)
	}
	msg = fmt.Sprintf("%s: %s", msg, e.Reason)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// ErrorType implements Classified.
func (e *ConfigError) ErrorType() string { return "config" }
