// Copyright 2026 Forge Authors
// SPDX-License-Identifier: AGPL-3.0-only

package persist

import (
	"path/filepath"
	"testing"

	"github.com/forgelabs/forge/pkg/discovery"
	"github.com/forgelabs/forge/pkg/graph"
)

func TestWriteReadGraph_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "graph.json")

	g := &graph.ForgeGraph{
		Nodes: []graph.Node{{ID: "a", Type: graph.NodeService, CanonicalName: "orders-api"}},
		Edges: []graph.Edge{},
	}
	if err := WriteGraph(path, g, "2026-07-30T00:00:00Z"); err != nil {
		t.Fatalf("WriteGraph: %v", err)
	}

	got, err := ReadGraph(path)
	if err != nil {
		t.Fatalf("ReadGraph: %v", err)
	}
	if len(got.Nodes) != 1 || got.Nodes[0].CanonicalName != "orders-api" {
		t.Fatalf("got %+v", got)
	}
}

func TestReadGraph_MissingFileReturnsNil(t *testing.T) {
	g, err := ReadGraph(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g != nil {
		t.Fatalf("expected nil graph for a missing file, got %+v", g)
	}
}

func TestWriteReadSurveyState_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "survey-state.json")

	state := NewSurveyState()
	state.Repos["orders-repo"] = RepoState{
		RevisionID: "abc123",
		Files: map[string]FileState{
			"main.go": {
				Hash: "deadbeef",
				Discoveries: []discovery.Discovery{
					{Kind: discovery.KindService, SourceFile: "main.go", Service: &discovery.Service{Name: "orders-api"}},
				},
			},
		},
	}
	if err := WriteSurveyState(path, state); err != nil {
		t.Fatalf("WriteSurveyState: %v", err)
	}

	got, err := ReadSurveyState(path)
	if err != nil {
		t.Fatalf("ReadSurveyState: %v", err)
	}
	repo, ok := got.Repos["orders-repo"]
	if !ok || repo.RevisionID != "abc123" {
		t.Fatalf("got %+v", got)
	}
	if repo.Files["main.go"].Hash != "deadbeef" {
		t.Fatalf("file state = %+v", repo.Files["main.go"])
	}
}

func TestReadSurveyState_SchemaMismatchFallsBackToNil(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "survey-state.json")
	if err := WriteSurveyState(path, &SurveyState{SchemaVersion: 999, Repos: map[string]RepoState{}}); err != nil {
		t.Fatalf("WriteSurveyState: %v", err)
	}

	got, err := ReadSurveyState(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil state on schema mismatch, got %+v", got)
	}
}

func TestReadSurveyState_MissingFileReturnsNil(t *testing.T) {
	state, err := ReadSurveyState(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != nil {
		t.Fatalf("expected nil state for a missing file, got %+v", state)
	}
}
