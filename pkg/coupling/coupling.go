// Copyright 2026 Forge Authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package coupling finds services that share a resource without calling
// each other directly: two services with edges into the same database,
// queue, or cloud resource node are "implicitly coupled" through it.
// The result is recomputed from scratch on every run; no coupling state
// survives between surveys.
package coupling

import (
	"sort"

	"github.com/forgelabs/forge/pkg/graph"
)

// Risk classifies how dangerous a shared-resource coupling is.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// resourceEdgeTypes are the edge types that connect a service to a
// resource node; everything else (CALLS, IMPLICITLY_COUPLED) is not a
// resource-sharing relationship.
var resourceEdgeTypes = map[graph.EdgeType]bool{
	graph.EdgeReads:      true,
	graph.EdgeWrites:     true,
	graph.EdgeReadsWrites: true,
	graph.EdgePublishes:  true,
	graph.EdgeSubscribes: true,
	graph.EdgeUses:       true,
}

var writeEdgeTypes = map[graph.EdgeType]bool{
	graph.EdgeWrites:      true,
	graph.EdgeReadsWrites: true,
	graph.EdgePublishes:   true,
}

// Analyze groups every resource-facing edge by its target and emits one
// IMPLICITLY_COUPLED edge per unordered pair of distinct services that
// share a resource with at least two distinct service sources.
func Analyze(g *graph.ForgeGraph) []graph.Edge {
	bySource := make(map[string]map[string]graph.EdgeType) // resourceID -> serviceID -> strongest edge type seen
	for _, e := range g.Edges {
		if !resourceEdgeTypes[e.Type] {
			continue
		}
		srcNode, ok := g.NodeByID(e.Source)
		if !ok || srcNode.Type != graph.NodeService {
			continue
		}
		if bySource[e.Target] == nil {
			bySource[e.Target] = make(map[string]graph.EdgeType)
		}
		if existing, ok := bySource[e.Target][e.Source]; !ok || rank(e.Type) > rank(existing) {
			bySource[e.Target][e.Source] = e.Type
		}
	}

	var resources []string
	for r := range bySource {
		resources = append(resources, r)
	}
	sort.Strings(resources)

	var out []graph.Edge
	for _, resourceID := range resources {
		services := bySource[resourceID]
		if len(services) < 2 {
			continue
		}
		var ids []string
		for s := range services {
			ids = append(ids, s)
		}
		sort.Strings(ids)

		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				out = append(out, couplingEdge(resourceID, ids[i], ids[j], services[ids[i]], services[ids[j]], g))
			}
		}
	}
	return out
}

// rank orders edge types so the "strongest" access a service has to a
// resource wins when the same service has more than one edge into it
// (e.g. a READS and a WRITES that the builder never merged because they
// were never joined through the database lattice, as happens for
// queues and cloud resources which don't merge).
func rank(t graph.EdgeType) int {
	switch t {
	case graph.EdgeReadsWrites:
		return 3
	case graph.EdgeWrites, graph.EdgePublishes:
		return 2
	default:
		return 1
	}
}

func couplingEdge(resourceID, a, b string, aType, bType graph.EdgeType, g *graph.ForgeGraph) graph.Edge {
	resource, _ := g.NodeByID(resourceID)
	risk := classify(resource, aType, bType)
	return graph.Edge{
		Source: a,
		Target: b,
		Type:   graph.EdgeImplicitlyCoupled,
		Attributes: map[string]string{
			"via":              resourceID,
			"risk":             string(risk),
			"detection_method": "shared-resource",
		},
	}
}

// classify implements the risk rule: two services writing (or
// publishing) is high risk, as is one writing while the other reads (a
// database's state is visible to the reader the instant the writer
// commits). A queue's normal producer/consumer shape — one publishes,
// the other subscribes — is the expected coupling pattern for a queue
// and is scored medium rather than high. Two read-only accesses are low
// risk: the services are coupled to the same data but neither can
// corrupt it for the other.
func classify(resource *graph.Node, aType, bType graph.EdgeType) Risk {
	if resource != nil && resource.Type == graph.NodeQueue && isPubSubPair(aType, bType) {
		return RiskMedium
	}
	if writeEdgeTypes[aType] || writeEdgeTypes[bType] {
		return RiskHigh
	}
	return RiskLow
}

func isPubSubPair(a, b graph.EdgeType) bool {
	return (a == graph.EdgePublishes && b == graph.EdgeSubscribes) ||
		(a == graph.EdgeSubscribes && b == graph.EdgePublishes)
}
