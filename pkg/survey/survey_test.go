// Copyright 2026 Forge Authors
// SPDX-License-Identifier: AGPL-3.0-only

package survey

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/forgelabs/forge/pkg/discovery"
	"github.com/forgelabs/forge/pkg/graph"
	testinghelpers "github.com/forgelabs/forge/internal/testing"
)

// fixedClock freezes Runner.now so two runs over unchanged fixtures
// produce byte-identical Node.UpdatedAt stamps; without it, comparing
// canonical JSON across runs would spuriously fail on wall-clock drift.
func fixedClock() time.Time { return time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC) }

const checkoutJS = `
const res = fetch("https://orders-api.internal.example.com/v1/orders");
const row = ddbTable.get({ TableName: "orders" });
`

const ordersJS = `
ddbTable.put({ TableName: "orders" });
`

func buildFixtures(t *testing.T) (checkoutRoot, ordersRoot string) {
	t.Helper()
	checkoutRoot = testinghelpers.TempRepo(t, map[string]string{
		"package.json": `{"name": "checkout-api", "main": "src/index.js", "dependencies": {"express": "^4.0.0"}}`,
		"src/index.js": checkoutJS,
	})
	ordersRoot = testinghelpers.TempRepo(t, map[string]string{
		"package.json": `{"name": "orders-api", "main": "src/index.js", "dependencies": {"express": "^4.0.0"}}`,
		"src/index.js": ordersJS,
	})
	return checkoutRoot, ordersRoot
}

func baseRequest(t *testing.T, checkoutRoot, ordersRoot string) SurveyRequest {
	t.Helper()
	dir := t.TempDir()
	return SurveyRequest{
		Repos: []discovery.RepoHandle{
			{ID: "checkout-repo", LocalPath: checkoutRoot, RevisionID: "rev-1"},
			{ID: "orders-repo", LocalPath: ordersRoot, RevisionID: "rev-1"},
		},
		GraphPath:   filepath.Join(dir, "graph.json"),
		StatePath:   filepath.Join(dir, "survey-state.json"),
		Incremental: true,
	}
}

func TestRun_EndToEnd_BuildsServicesAndEdges(t *testing.T) {
	checkoutRoot, ordersRoot := buildFixtures(t)
	req := baseRequest(t, checkoutRoot, ordersRoot)

	r := NewRunner(nil, nil)
	g, result, err := r.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Incremental {
		t.Fatalf("first run should not report incremental, got true")
	}
	if result.FilesProcessed != 4 {
		t.Fatalf("expected 4 files processed (2 manifests + 2 sources), got %d", result.FilesProcessed)
	}

	var checkout, orders, ordersDB, externalAPI *graph.Node
	for i := range g.Nodes {
		n := &g.Nodes[i]
		switch {
		case n.Type == graph.NodeService && n.CanonicalName == "checkout-api":
			checkout = n
		case n.Type == graph.NodeService && n.CanonicalName == "orders-api":
			orders = n
		case n.Type == graph.NodeDatabase:
			ordersDB = n
		case n.Type == graph.NodeExternalAPI:
			externalAPI = n
		}
	}
	if checkout == nil || orders == nil {
		t.Fatalf("expected both services in graph, got nodes %+v", g.Nodes)
	}
	if ordersDB == nil {
		t.Fatalf("expected a database node for the shared orders table, got nodes %+v", g.Nodes)
	}
	// Neither service's manifest advertises a host, so the fetch() call in
	// checkout-api falls back to an ExternalApi node rather than resolving
	// to orders-api by name.
	if externalAPI == nil {
		t.Errorf("expected an ExternalApi node for the unresolved fetch() target")
	}
	if result.UnresolvedAPICalls == 0 {
		t.Errorf("expected Result.UnresolvedAPICalls > 0")
	}

	foundReads, foundWrites := false, false
	for _, e := range g.Edges {
		if e.Target != ordersDB.ID {
			continue
		}
		if e.Source == checkout.ID && e.Type == graph.EdgeReads {
			foundReads = true
		}
		if e.Source == orders.ID && e.Type == graph.EdgeWrites {
			foundWrites = true
		}
	}
	if !foundReads {
		t.Errorf("expected checkout-api to have a READS edge to the orders table")
	}
	if !foundWrites {
		t.Errorf("expected orders-api to have a WRITES edge to the orders table")
	}

	foundCoupling := false
	for _, e := range g.Edges {
		if e.Type == graph.EdgeImplicitlyCoupled {
			foundCoupling = true
		}
	}
	if !foundCoupling {
		t.Errorf("expected an IMPLICITLY_COUPLED edge between checkout-api and orders-api over the shared table")
	}
	if result.CouplingEdges == 0 {
		t.Errorf("expected Result.CouplingEdges > 0")
	}
}

func TestRun_Incremental_SameRevisionReplaysWithoutReparsing(t *testing.T) {
	checkoutRoot, ordersRoot := buildFixtures(t)
	req := baseRequest(t, checkoutRoot, ordersRoot)

	r := NewRunner(nil, nil)
	r.now = fixedClock
	firstGraph, firstResult, err := r.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if firstResult.Incremental {
		t.Fatalf("first run has no prior state, should not be incremental")
	}

	secondGraph, secondResult, err := r.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if !secondResult.Incremental {
		t.Fatalf("second run should reuse the unchanged revision's cached discoveries")
	}
	if secondResult.FilesProcessed != firstResult.FilesProcessed {
		t.Fatalf("replayed run should account for the same file count: first=%d second=%d",
			firstResult.FilesProcessed, secondResult.FilesProcessed)
	}

	testinghelpers.AssertGraphEqual(t, firstGraph, secondGraph)
}

func TestRun_Incremental_RevisionChangeTriggersFullReparse(t *testing.T) {
	checkoutRoot, ordersRoot := buildFixtures(t)
	req := baseRequest(t, checkoutRoot, ordersRoot)

	r := NewRunner(nil, nil)
	if _, _, err := r.Run(context.Background(), req); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	// checkout-repo's revision moved on; orders-repo's did not. Incremental
	// mode is still engaged overall (a usable prior graph/state exists),
	// but checkout-repo must be re-walked and re-parsed rather than
	// replayed from its now-stale cached entry.
	req.Repos[0].RevisionID = "rev-2"
	g, result, err := r.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if !result.Incremental {
		t.Fatalf("expected incremental mode to stay engaged when a usable prior graph/state exists")
	}

	found := false
	for _, n := range g.Nodes {
		if n.Type == graph.NodeService && n.CanonicalName == "checkout-api" {
			found = true
		}
	}
	if !found {
		t.Fatalf("checkout-api should still be present after its repo was re-parsed on a revision change")
	}
}

func TestRun_RejectsEmptyRepoList(t *testing.T) {
	r := NewRunner(nil, nil)
	_, _, err := r.Run(context.Background(), SurveyRequest{})
	if err == nil {
		t.Fatalf("expected an error for an empty repo list")
	}
}

func TestRun_ExcludedLanguage_DropsEveryDiscoveryKindFromThatLanguage(t *testing.T) {
	pyRoot := testinghelpers.TempRepo(t, map[string]string{
		"requirements.txt": "fastapi==0.100.0\n",
		"main.py":          "import boto3\ntable = boto3.resource('dynamodb').Table('orders')\ntable.get_item(Key={})\n",
	})
	dir := t.TempDir()
	req := SurveyRequest{
		Repos: []discovery.RepoHandle{
			{ID: "py-repo", LocalPath: pyRoot, RevisionID: "rev-1"},
		},
		ExcludedLanguages: []string{"python"},
		GraphPath:         filepath.Join(dir, "graph.json"),
		StatePath:         filepath.Join(dir, "survey-state.json"),
	}

	r := NewRunner(nil, nil)
	g, result, err := r.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(g.Nodes) != 0 || len(g.Edges) != 0 {
		t.Fatalf("expected zero nodes/edges from an excluded language, got %d nodes %d edges", len(g.Nodes), len(g.Edges))
	}
	if result.FilesProcessed != 0 {
		t.Fatalf("expected 0 files counted as processed once python is excluded, got %d", result.FilesProcessed)
	}
}

func TestRun_RejectsDuplicateRepoIDs(t *testing.T) {
	checkoutRoot, ordersRoot := buildFixtures(t)
	r := NewRunner(nil, nil)
	_, _, err := r.Run(context.Background(), SurveyRequest{
		Repos: []discovery.RepoHandle{
			{ID: "dup", LocalPath: checkoutRoot},
			{ID: "dup", LocalPath: ordersRoot},
		},
	})
	if err == nil {
		t.Fatalf("expected an error for duplicate repo ids")
	}
}
