// Copyright 2026 Forge Authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package persist writes and reads the survey's two on-disk artifacts:
// the ForgeGraph and the incremental SurveyState. Both are written
// atomically (temp file + rename), the same pattern the teacher's
// ingestion checkpointing uses, so a crash mid-write never corrupts the
// prior file.
package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/forgelabs/forge/internal/errors"
	"github.com/forgelabs/forge/pkg/discovery"
	"github.com/forgelabs/forge/pkg/graph"
)

// SchemaVersion is the current on-disk schema for both the graph
// envelope and the survey state file. A file on disk that carries a
// different version is read as absent (nil, nil), not a hard failure:
// callers fall back to a full survey rather than aborting.
const SchemaVersion = 1

// GraphEnvelope is the top-level document written to graph_path: the
// graph plus the metadata the schema document promises alongside it.
type GraphEnvelope struct {
	SchemaVersion int    `json:"schema_version"`
	GeneratedAt   string `json:"generated_at"`
	Nodes         []graph.Node `json:"nodes"`
	Edges         []graph.Edge `json:"edges"`
}

// WriteGraph writes g to path as a canonically-ordered JSON envelope,
// atomically.
func WriteGraph(path string, g *graph.ForgeGraph, generatedAt string) error {
	canon := &graph.ForgeGraph{Nodes: g.Nodes, Edges: g.Edges}
	sorted, err := canonicalize(canon)
	if err != nil {
		return errors.New(errors.PersistenceError, "could not serialize graph", err.Error(),
			"check that node and edge attributes are valid UTF-8", err)
	}
	env := GraphEnvelope{
		SchemaVersion: SchemaVersion,
		GeneratedAt:   generatedAt,
		Nodes:         sorted.Nodes,
		Edges:         sorted.Edges,
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return errors.New(errors.PersistenceError, "could not marshal graph envelope", err.Error(), "", err)
	}
	if err := atomicWrite(path, data); err != nil {
		return errors.New(errors.PersistenceError, fmt.Sprintf("could not write graph to %s", path), err.Error(),
			"check that the containing directory is writable", err)
	}
	return nil
}

// canonicalize reuses ForgeGraph.CanonicalJSON's sort order without its
// encoding, since the envelope wraps Nodes/Edges directly rather than
// nesting a ForgeGraph value.
func canonicalize(g *graph.ForgeGraph) (*graph.ForgeGraph, error) {
	if _, err := g.CanonicalJSON(); err != nil {
		return nil, err
	}
	sorted := &graph.ForgeGraph{
		Nodes: append([]graph.Node(nil), g.Nodes...),
		Edges: append([]graph.Edge(nil), g.Edges...),
	}
	sortGraph(sorted)
	return sorted, nil
}

// ReadGraph loads a graph envelope from path. A missing file, or one
// whose schema_version differs from SchemaVersion, is not an error: it
// returns (nil, nil), signaling "no prior graph" to callers doing an
// incremental survey.
func ReadGraph(path string) (*graph.ForgeGraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.New(errors.PersistenceError, fmt.Sprintf("could not read graph %s", path), err.Error(), "", err)
	}
	var env GraphEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.New(errors.PersistenceError, fmt.Sprintf("could not parse graph %s", path), err.Error(), "", err)
	}
	if env.SchemaVersion != SchemaVersion {
		return nil, nil
	}
	return &graph.ForgeGraph{Nodes: env.Nodes, Edges: env.Edges}, nil
}

// FileState is one parsed file's cached result: a content hash and the
// discoveries it produced. pkg/survey leaves Hash empty and fills only
// Discoveries, so the hash plays no part in change detection there.
type FileState struct {
	Hash        string                 `json:"hash"`
	Discoveries []discovery.Discovery `json:"discoveries"`
}

// RepoState is one repo's incremental bookkeeping: the revision it was
// last parsed at, and every parsed file's cached state.
type RepoState struct {
	RevisionID string               `json:"revision_id"`
	Files      map[string]FileState `json:"files"`
}

// SurveyState is `.forge/survey-state.json`: enough to decide, per
// repo, whether a re-parse is needed (by revision). It does not tell
// which specific files changed, since pkg/survey stores no file hashes.
type SurveyState struct {
	SchemaVersion int                  `json:"schema_version"`
	Repos         map[string]RepoState `json:"repos"`
}

// NewSurveyState returns an empty state at the current schema version.
func NewSurveyState() *SurveyState {
	return &SurveyState{SchemaVersion: SchemaVersion, Repos: make(map[string]RepoState)}
}

// WriteSurveyState writes state to path atomically.
func WriteSurveyState(path string, state *SurveyState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.New(errors.PersistenceError, "could not marshal survey state", err.Error(), "", err)
	}
	if err := atomicWrite(path, data); err != nil {
		return errors.New(errors.PersistenceError, fmt.Sprintf("could not write survey state to %s", path), err.Error(), "", err)
	}
	return nil
}

// ReadSurveyState loads `.forge/survey-state.json`. A missing file
// returns (nil, nil): "no prior state", fall back to a full survey. A
// schema version mismatch returns (nil, nil) too — callers treat it as
// a cue to do a full survey rather than a fatal error, per the
// StateSchemaMismatch policy.
func ReadSurveyState(path string) (*SurveyState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.New(errors.PersistenceError, fmt.Sprintf("could not read survey state %s", path), err.Error(), "", err)
	}
	var state SurveyState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, nil // malformed state: treat like a schema mismatch, not a fatal error
	}
	if state.SchemaVersion != SchemaVersion {
		return nil, nil
	}
	if state.Repos == nil {
		state.Repos = make(map[string]RepoState)
	}
	return &state, nil
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// sortGraph reuses ForgeGraph.CanonicalJSON's ordering by round-tripping
// through it, rather than duplicating its sort.Slice calls here.
func sortGraph(g *graph.ForgeGraph) {
	data, _ := g.CanonicalJSON()
	var decoded graph.ForgeGraph
	_ = json.Unmarshal(data, &decoded)
	g.Nodes = decoded.Nodes
	g.Edges = decoded.Edges
}
