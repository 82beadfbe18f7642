// Copyright 2026 Forge Authors
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/forgelabs/forge/internal/errors"
)

func TestLoadRequest_ParsesRepoList(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "request.json")
	body := `{
		"repos": [{"id": "checkout-repo", "local_path": "/tmp/checkout", "revision_id": "abc"}],
		"excluded_languages": ["python"],
		"incremental": true,
		"graph_path": "/tmp/graph.json",
		"state_path": "/tmp/state.json"
	}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	req, err := loadRequest(path)
	if err != nil {
		t.Fatalf("loadRequest: %v", err)
	}
	if len(req.Repos) != 1 || req.Repos[0].ID != "checkout-repo" {
		t.Fatalf("got repos %+v", req.Repos)
	}
	if !req.Incremental {
		t.Errorf("expected incremental=true to round-trip")
	}
	if len(req.ExcludedLanguages) != 1 || req.ExcludedLanguages[0] != "python" {
		t.Errorf("got excluded languages %+v", req.ExcludedLanguages)
	}
}

func TestLoadRequest_MissingFileIsConfigurationError(t *testing.T) {
	_, err := loadRequest(filepath.Join(t.TempDir(), "missing.json"))
	if err == nil {
		t.Fatalf("expected an error for a missing request file")
	}
	if se, ok := err.(*errors.SurveyError); !ok || se.Kind != errors.ConfigurationError {
		t.Errorf("got %v, want a ConfigurationError", err)
	}
}

func TestLoadRequest_InvalidJSONIsConfigurationError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	_, err := loadRequest(path)
	if err == nil {
		t.Fatalf("expected an error for malformed JSON")
	}
	if se, ok := err.(*errors.SurveyError); !ok || se.Kind != errors.ConfigurationError {
		t.Errorf("got %v, want a ConfigurationError", err)
	}
}
