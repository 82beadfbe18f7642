// Copyright 2026 Forge Authors
// SPDX-License-Identifier: AGPL-3.0-only

package testing

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/forgelabs/forge/pkg/graph"
)

// TempRepo materializes files under a fresh temp directory and returns
// its path. Keys are slash-separated relative paths; parent directories
// are created as needed. The directory is removed automatically when
// the test finishes.
func TempRepo(t *testing.T, files map[string]string) string {
	t.Helper()

	root := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", filepath.Dir(full), err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", full, err)
		}
	}
	return root
}

// AssertGraphEqual fails the test unless got and want serialize to the
// same canonical JSON, the encoding the persistence layer writes and
// the one invariant round-tripping depends on.
func AssertGraphEqual(t *testing.T, got, want *graph.ForgeGraph) {
	t.Helper()

	gotJSON, err := got.CanonicalJSON()
	if err != nil {
		t.Fatalf("CanonicalJSON(got): %v", err)
	}
	wantJSON, err := want.CanonicalJSON()
	if err != nil {
		t.Fatalf("CanonicalJSON(want): %v", err)
	}
	if !bytes.Equal(gotJSON, wantJSON) {
		t.Errorf("graphs differ:\n got: %s\nwant: %s", gotJSON, wantJSON)
	}
}
