// Copyright 2026 Forge Authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package graph defines the ForgeGraph data model and the canonical
// JSON encoding the persistence layer writes. Node IDs are
// content-addressed hashes of a canonical name (edges carry no ID of
// their own and are keyed by source, target and type), the same
// hash-of-a-stable-string strategy the teacher's ingestion package
// uses for function and file IDs.
package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/forgelabs/forge/pkg/discovery"
)

// NodeType identifies which kind of entity a Node represents.
type NodeType string

const (
	NodeService       NodeType = "service"
	NodeDatabase      NodeType = "database"
	NodeQueue         NodeType = "queue"
	NodeCloudResource NodeType = "cloud_resource"
	NodeExternalAPI   NodeType = "external_api"
)

// EdgeType identifies the relationship an Edge represents.
type EdgeType string

const (
	EdgeReads             EdgeType = "READS"
	EdgeWrites            EdgeType = "WRITES"
	EdgeReadsWrites       EdgeType = "READS_WRITES"
	EdgePublishes         EdgeType = "PUBLISHES"
	EdgeSubscribes        EdgeType = "SUBSCRIBES"
	EdgeUses              EdgeType = "USES"
	EdgeCalls             EdgeType = "CALLS"
	EdgeImplicitlyCoupled EdgeType = "IMPLICITLY_COUPLED"
)

// Node is one entity in the graph: a service, a database, a queue, a
// cloud resource, or an external API host that no known service
// claims.
type Node struct {
	ID            string            `json:"id"`
	Type          NodeType          `json:"type"`
	CanonicalName string            `json:"canonical_name"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	Conflicts     map[string]string `json:"conflicts,omitempty"`
	UpdatedAt     string            `json:"updated_at,omitempty"`
}

// Edge is one directed relationship between two nodes, except
// IMPLICITLY_COUPLED edges, which are undirected and stored with their
// two endpoints in lexicographic order.
type Edge struct {
	Source     string            `json:"source"`
	Target     string            `json:"target"`
	Type       EdgeType          `json:"type"`
	Operation  discovery.Operation `json:"operation,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// ForgeGraph is the survey's output: every node and edge discovered
// across the surveyed repositories.
type ForgeGraph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// New returns an empty graph.
func New() *ForgeGraph {
	return &ForgeGraph{}
}

// NodeID derives a stable node identifier from its type and canonical
// name: the type, a ":", then the hex encoding of the first 16 bytes of
// sha256(type + "|" + canonical_name). Using a hash
// rather than the raw name keeps IDs a fixed, safe-to-embed length
// while remaining fully deterministic across runs.
func NodeID(t NodeType, canonicalName string) string {
	sum := sha256.Sum256([]byte(string(t) + "|" + canonicalName))
	return fmt.Sprintf("%s:%s", t, hex.EncodeToString(sum[:16]))
}

// CanonicalJSON serializes the graph with nodes sorted by id and edges
// sorted by (source, target, type), so identical graph contents always
// produce byte-identical output regardless of build order.
func (g *ForgeGraph) CanonicalJSON() ([]byte, error) {
	sorted := &ForgeGraph{
		Nodes: append([]Node(nil), g.Nodes...),
		Edges: append([]Edge(nil), g.Edges...),
	}
	sort.Slice(sorted.Nodes, func(i, j int) bool { return sorted.Nodes[i].ID < sorted.Nodes[j].ID })
	sort.Slice(sorted.Edges, func(i, j int) bool {
		a, b := sorted.Edges[i], sorted.Edges[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Target != b.Target {
			return a.Target < b.Target
		}
		return a.Type < b.Type
	})

	buf, err := json.MarshalIndent(sorted, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal graph: %w", err)
	}
	return buf, nil
}

// NodeByID returns the node with the given id, if present.
func (g *ForgeGraph) NodeByID(id string) (*Node, bool) {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i], true
		}
	}
	return nil, false
}
