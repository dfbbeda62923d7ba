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

// Package httputil holds JSON helpers shared by the API handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	hearterrors "github.com/tombee/hearth/pkg/errors"
)

// MaxBodyBytes bounds request bodies.
const MaxBodyBytes = 1 << 20

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error    string `json:"error"`
	Code     string `json:"code,omitempty"`
	Workload string `json:"workload,omitempty"`
	State    string `json:"state,omitempty"`
}

// WriteJSON writes a JSON response with the given status code and data.
// If encoding fails, it logs the error.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to write JSON response", slog.Any("error", err))
	}
}

// WriteError writes a JSON error response with the given status code and message.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorBody{Error: message})
}

// DecodeJSON decodes the request body into v. Unknown fields, trailing
// data, and oversized bodies are rejected with a *errors.ValidationError.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return &hearterrors.ValidationError{Field: "body", Message: "request body is empty"}
		case errors.As(err, &maxErr):
			return &hearterrors.ValidationError{Field: "body", Message: fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit)}
		default:
			return &hearterrors.ValidationError{Field: "body", Message: err.Error()}
		}
	}
	if dec.More() {
		return &hearterrors.ValidationError{Field: "body", Message: "unexpected data after JSON object"}
	}
	return nil
}
