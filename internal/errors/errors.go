// Copyright 2026 Forge Authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package errors provides the structured error taxonomy from spec.md
// §7. A SurveyError carries a Kind (one of the seven named there), a
// human-facing Message/Cause/Fix triple in the same shape the teacher
// CLI uses, and knows whether its Kind is fatal to a survey run.
//
// Only ConfigurationError and PersistenceError are fatal: the survey
// pipeline returns them to the caller and aborts. Every other Kind is
// recorded on the event stream (package survey) as a warning and the
// run continues, per the propagation rule in spec.md §7.
package errors

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
)

// Kind is one of the error categories from spec.md §7.
type Kind string

const (
	ConfigurationError     Kind = "configuration_error"
	RepoAccessError        Kind = "repo_access_error"
	ParseFailed            Kind = "parse_failed"
	ResourceNameUnresolved Kind = "resource_name_unresolved"
	MergeConflict          Kind = "merge_conflict"
	PersistenceError       Kind = "persistence_error"
	StateSchemaMismatch    Kind = "state_schema_mismatch"
)

// Fatal reports whether an error of this Kind must abort the survey
// before any further parsing or merging happens.
func (k Kind) Fatal() bool {
	return k == ConfigurationError || k == PersistenceError
}

// SurveyError is a structured error with enough context for both a
// human operator and an LLM adapter to act on.
type SurveyError struct {
	Kind    Kind
	Message string
	Cause   string
	Fix     string
	Err     error
}

func (e *SurveyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *SurveyError) Unwrap() error { return e.Err }

// New constructs a SurveyError of the given kind.
func New(kind Kind, message, cause, fix string, err error) *SurveyError {
	return &SurveyError{Kind: kind, Message: message, Cause: cause, Fix: fix, Err: err}
}

var (
	colorError = color.New(color.FgRed, color.Bold)
	colorCause = color.New(color.FgYellow)
	colorFix   = color.New(color.FgGreen)
)

// Format renders the error for terminal display, matching the
// Error/Cause/Fix layout used across the pack's CLI-facing error types.
func (e *SurveyError) Format(noColor bool) string {
	originalNoColor := color.NoColor
	defer func() { color.NoColor = originalNoColor }()
	if noColor || os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}

	out := colorError.Sprint("Error: ") + e.Message + "\n"
	if e.Cause != "" {
		out += colorCause.Sprint("Cause: ") + e.Cause + "\n"
	}
	if e.Fix != "" {
		out += colorFix.Sprint("Fix:   ") + e.Fix + "\n"
	}
	return out
}

// JSON is the machine-readable form of a SurveyError.
type JSON struct {
	Kind  Kind   `json:"kind"`
	Error string `json:"error"`
	Cause string `json:"cause,omitempty"`
	Fix   string `json:"fix,omitempty"`
}

// ToJSON converts the error to its JSON-serializable form.
func (e *SurveyError) ToJSON() JSON {
	return JSON{Kind: e.Kind, Error: e.Message, Cause: e.Cause, Fix: e.Fix}
}

// EncodeJSON writes the error's JSON form through enc.
func (e *SurveyError) EncodeJSON(enc *json.Encoder) error {
	return enc.Encode(e.ToJSON())
}
