// Copyright 2026 Forge Authors
// SPDX-License-Identifier: AGPL-3.0-only

package graph

import (
	"path"
	"slices"
	"sort"
	"strings"

	"github.com/forgelabs/forge/internal/slug"
	"github.com/forgelabs/forge/pkg/discovery"
)

// frameworkImports maps a well-known import module name to the
// framework label it implies, used only to backfill a Service's
// Framework when no parser already set one.
var frameworkImports = map[string]string{
	"express":  "express",
	"fastify":  "fastify",
	"next":     "next",
	"fastapi":  "fastapi",
	"flask":    "flask",
	"django":   "django",
	"aiohttp":  "aiohttp",
}

// serviceRecord is the builder's working view of one Service node: its
// graph identity plus the fields needed for owner resolution and
// URL→Service matching.
type serviceRecord struct {
	nodeID     string
	name       string
	entryPoint string
	repoID     string
}

// BuildStats summarizes one Builder.Build() pass for logging and the
// survey Result.
type BuildStats struct {
	ServicesUpserted     int
	NodesUpserted        int
	NodesMerged          int
	EdgesUpserted        int
	MergeConflicts       int
	AmbiguousOwnerFiles  []string
	UnresolvedAPICalls   int
}

// Builder fuses a stream of per-repository Discoveries into a single
// ForgeGraph, per discovery kind as described next to each upsert*
// helper. Discoveries are accumulated with AddRepo and fused only on
// Build, since API-call target resolution and host/path claims need
// every repository's services known first.
type Builder struct {
	graph *ForgeGraph
	now   string

	nodeIdx map[string]int
	edgeIdx map[string]int

	hosts    map[string]string // advertised host -> service node id
	prefixes map[string]string // claimed path prefix -> service node id ("" if claimed by >1 service)

	pending []pendingRepo
	stats   BuildStats
}

type pendingRepo struct {
	repo        discovery.RepoHandle
	discoveries []discovery.Discovery
	services    []*serviceRecord
}

// NewBuilder returns an empty Builder. now is stamped on every Service
// node's updated_at field, so callers pass a fixed timestamp (typically
// the survey run's start time) rather than calling time.Now() per
// discovery.
func NewBuilder(now string) *Builder {
	return &Builder{
		graph:    New(),
		now:      now,
		nodeIdx:  make(map[string]int),
		edgeIdx:  make(map[string]int),
		hosts:    make(map[string]string),
		prefixes: make(map[string]string),
	}
}

// AddRepo queues one repository's discoveries for the next Build call.
func (b *Builder) AddRepo(repo discovery.RepoHandle, discoveries []discovery.Discovery) {
	b.pending = append(b.pending, pendingRepo{repo: repo, discoveries: discoveries})
}

// Build fuses every queued repository's discoveries into the graph and
// returns it along with stats for the run. Build may be called once;
// a later run uses a fresh Builder (package survey's incremental mode
// replays cached discoveries into a new Builder rather than calling
// Seed).
func (b *Builder) Build() (*ForgeGraph, BuildStats) {
	for i := range b.pending {
		b.upsertServices(&b.pending[i])
	}
	for i := range b.pending {
		b.upsertResources(&b.pending[i])
	}
	for i := range b.pending {
		b.resolveAPICalls(&b.pending[i])
	}
	sort.Strings(b.stats.AmbiguousOwnerFiles)
	b.stats.AmbiguousOwnerFiles = slices.Compact(b.stats.AmbiguousOwnerFiles)
	return b.graph, b.stats
}

// Seed pre-populates the builder from an existing graph, so an
// incremental survey can add only the repos whose files changed while
// leaving everything else untouched. Node/edge indices are rebuilt so
// subsequent upserts merge against the seeded content.
func (b *Builder) Seed(g *ForgeGraph) {
	b.graph = &ForgeGraph{
		Nodes: append([]Node(nil), g.Nodes...),
		Edges: append([]Edge(nil), g.Edges...),
	}
	for i, n := range b.graph.Nodes {
		b.nodeIdx[n.ID] = i
		if n.Type == NodeService {
			if host, ok := n.Attributes["host"]; ok && host != "" {
				b.hosts[host] = n.ID
			}
			if prefix, ok := n.Attributes["path_prefix"]; ok && prefix != "" {
				b.claimPrefix(prefix, n.ID)
			}
		}
	}
	for i, e := range b.graph.Edges {
		b.edgeIdx[edgeKey(e.Source, e.Target, e.Type)] = i
	}
}

func edgeKey(source, target string, t EdgeType) string {
	return source + "|" + target + "|" + string(t)
}

func (b *Builder) claimPrefix(prefix, nodeID string) {
	if existing, ok := b.prefixes[prefix]; ok && existing != nodeID {
		b.prefixes[prefix] = "" // claimed by more than one service: ambiguous
		return
	}
	b.prefixes[prefix] = nodeID
}

// upsertServices is pass 1: every Service discovery in a repo becomes a
// Service node before anything else is processed, since owner
// resolution and API-call matching both need the full set of services
// a repo (or the whole survey) contributes.
func (b *Builder) upsertServices(pr *pendingRepo) {
	for _, d := range pr.discoveries {
		if d.Kind != discovery.KindService || d.Service == nil {
			continue
		}
		svc := d.Service
		name := strings.TrimSpace(svc.Name)
		if name == "" {
			continue
		}
		node, created := b.upsertNode(NodeService, slug.Slug(name), nil)
		if created {
			b.stats.ServicesUpserted++
		}
		if node.Attributes == nil {
			node.Attributes = make(map[string]string)
		}
		if node.Conflicts == nil {
			node.Conflicts = make(map[string]string)
		}
		mergeScalar(node.Attributes, "name", name, node.Conflicts, &b.stats.MergeConflicts)
		mergeScalar(node.Attributes, "language", svc.Language, node.Conflicts, &b.stats.MergeConflicts)
		mergeScalar(node.Attributes, "framework", svc.Framework, node.Conflicts, &b.stats.MergeConflicts)
		mergeScalar(node.Attributes, "entry_point", svc.EntryPoint, node.Conflicts, &b.stats.MergeConflicts)
		for k, v := range svc.DeploymentMetadata {
			mergeScalar(node.Attributes, k, v, node.Conflicts, &b.stats.MergeConflicts)
		}
		mergeScalar(node.Attributes, "environment", pr.repo.Environment, node.Conflicts, &b.stats.MergeConflicts)
		mergeScalar(node.Attributes, "aws_account_id", pr.repo.AWSAccountID, node.Conflicts, &b.stats.MergeConflicts)
		node.UpdatedAt = b.now

		if host := node.Attributes["host"]; host != "" {
			b.hosts[host] = node.ID
		}
		if prefix := node.Attributes["path_prefix"]; prefix != "" {
			b.claimPrefix(prefix, node.ID)
		}

		pr.services = append(pr.services, &serviceRecord{
			nodeID:     node.ID,
			name:       name,
			entryPoint: node.Attributes["entry_point"],
			repoID:     pr.repo.ID,
		})
	}
}

// upsertResources is pass 2: DatabaseAccess, QueueOperation, and
// CloudResourceUsage discoveries become nodes (and, when the repo has a
// resolvable owner service, edges). Import discoveries, and Service
// discoveries with no name (requirements.txt), only ever backfill the
// owner Service's framework attribute.
func (b *Builder) upsertResources(pr *pendingRepo) {
	for _, d := range pr.discoveries {
		owner, flagged := b.ownerFor(d.SourceFile, pr.services)
		if flagged {
			b.stats.AmbiguousOwnerFiles = append(b.stats.AmbiguousOwnerFiles, d.SourceFile)
		}

		switch d.Kind {
		case discovery.KindDatabaseAccess:
			b.upsertDatabaseAccess(pr.repo, owner, d.DatabaseAccess)
		case discovery.KindQueueOperation:
			b.upsertQueueOperation(pr.repo, owner, d.QueueOperation)
		case discovery.KindCloudResourceUsage:
			b.upsertCloudResourceUsage(pr.repo, owner, d.CloudResourceUsage)
		case discovery.KindImport:
			b.inferFramework(owner, d.Import)
		case discovery.KindService:
			if owner != nil && d.Service != nil && strings.TrimSpace(d.Service.Name) == "" && d.Service.Framework != "" {
				if node, ok := b.graph.NodeByID(owner.nodeID); ok && node.Attributes["framework"] == "" {
					node.Attributes["framework"] = d.Service.Framework
				}
			}
		}
	}
}

func (b *Builder) inferFramework(owner *serviceRecord, imp *discovery.Import) {
	if owner == nil || imp == nil {
		return
	}
	node, ok := b.graph.NodeByID(owner.nodeID)
	if !ok || node.Attributes["framework"] != "" {
		return
	}
	module := strings.ToLower(imp.Module)
	for pkg, framework := range frameworkImports {
		if module == pkg || strings.HasPrefix(module, pkg+"/") || strings.HasPrefix(module, pkg+".") {
			if node.Attributes == nil {
				node.Attributes = make(map[string]string)
			}
			node.Attributes["framework"] = framework
			return
		}
	}
}

func (b *Builder) upsertDatabaseAccess(repo discovery.RepoHandle, owner *serviceRecord, da *discovery.DatabaseAccess) {
	if da == nil {
		return
	}
	dbType := strings.ToLower(da.DBType)
	name := strings.ToLower(da.TableName)
	if name == "" {
		name = "unnamed@" + repo.ID
	}
	canonical := dbType + ":" + name
	node, created := b.upsertNode(NodeDatabase, canonical, map[string]string{"db_type": da.DBType})
	if created {
		b.stats.NodesUpserted++
	}
	if owner == nil || da.Operation == discovery.OpUnknown || da.Operation == "" {
		return
	}
	b.upsertDBEdge(owner.nodeID, node.ID, da.Operation)
}

func (b *Builder) upsertQueueOperation(repo discovery.RepoHandle, owner *serviceRecord, qo *discovery.QueueOperation) {
	if qo == nil {
		return
	}
	name := strings.ToLower(qo.QueueName)
	if name == "" {
		name = "unnamed@" + repo.ID
	}
	canonical := strings.ToLower(qo.QueueType) + ":" + name
	node, created := b.upsertNode(NodeQueue, canonical, map[string]string{"queue_type": qo.QueueType})
	if created {
		b.stats.NodesUpserted++
	}
	if owner == nil {
		return
	}
	switch qo.Operation {
	case discovery.OpPublish:
		b.upsertEdgeOnce(owner.nodeID, node.ID, EdgePublishes, qo.Operation)
	case discovery.OpSubscribe:
		b.upsertEdgeOnce(owner.nodeID, node.ID, EdgeSubscribes, qo.Operation)
	}
}

func (b *Builder) upsertCloudResourceUsage(repo discovery.RepoHandle, owner *serviceRecord, cr *discovery.CloudResourceUsage) {
	if cr == nil {
		return
	}
	name := strings.ToLower(cr.ResourceName)
	if name == "" {
		name = "unnamed@" + repo.ID
	}
	canonical := strings.ToLower(cr.ResourceType) + ":" + name
	node, created := b.upsertNode(NodeCloudResource, canonical, map[string]string{"resource_type": cr.ResourceType})
	if created {
		b.stats.NodesUpserted++
	}
	if owner == nil {
		return
	}
	b.upsertEdgeOnce(owner.nodeID, node.ID, EdgeUses, "")
}

// resolveAPICalls is pass 3, run only after every repo's services (and
// their advertised hosts/prefixes) are known, since an APICall in one
// repo may target a service discovered in another.
func (b *Builder) resolveAPICalls(pr *pendingRepo) {
	for _, d := range pr.discoveries {
		if d.Kind != discovery.KindAPICall || d.APICall == nil {
			continue
		}
		owner, flagged := b.ownerFor(d.SourceFile, pr.services)
		if flagged {
			b.stats.AmbiguousOwnerFiles = append(b.stats.AmbiguousOwnerFiles, d.SourceFile)
		}
		if owner == nil {
			continue
		}
		target := b.resolveTarget(d.APICall.Target)
		if target == "" {
			b.stats.UnresolvedAPICalls++
			host := hostOf(d.APICall.Target)
			node, created := b.upsertNode(NodeExternalAPI, host, nil)
			if created {
				b.stats.NodesUpserted++
			}
			target = node.ID
		}
		attrs := map[string]string{"detection_method": d.APICall.DetectionMethod, "source_file": d.SourceFile}
		if d.APICall.Method != "" {
			attrs["method"] = d.APICall.Method
		}
		if p := pathOf(d.APICall.Target); p != "" {
			attrs["path"] = p
		}
		b.upsertEdgeOnceWithAttrs(owner.nodeID, target, EdgeCalls, "", attrs)
	}
}

// resolveTarget matches an APICall.Target against registered service
// hosts first, then against uniquely-claimed path prefixes. It returns
// "" when neither matches, which makes the caller fall back to an
// ExternalApi node.
func (b *Builder) resolveTarget(target string) string {
	if host := hostOf(target); host != "" {
		if nodeID, ok := b.hosts[host]; ok {
			return nodeID
		}
	}
	for prefix, nodeID := range b.prefixes {
		if nodeID == "" {
			continue // claimed by more than one service
		}
		if strings.Contains(target, prefix) {
			return nodeID
		}
	}
	return ""
}

func hostOf(target string) string {
	rest := target
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	if i := strings.IndexAny(rest, "/?"); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

// pathOf extracts the path component of a URL target, e.g.
// "https://orders.internal/api/v1/orders?x=1" -> "/api/v1/orders". It
// returns "" for symbolic targets (host:path pairs, bare paths) that
// carry no "://" — those are host-matched only, never path-matched.
func pathOf(target string) string {
	i := strings.Index(target, "://")
	if i < 0 {
		return ""
	}
	rest := target[i+3:]
	j := strings.IndexByte(rest, '/')
	if j < 0 {
		return ""
	}
	rest = rest[j:]
	if q := strings.IndexByte(rest, '?'); q >= 0 {
		rest = rest[:q]
	}
	return rest
}

// ownerFor resolves the owner service for a file within one repo's
// discovered services: the service whose entry_point directory is the
// longest prefix match of the file's directory, falling back to the
// lexicographically first service (flagged) when nothing matches.
func (b *Builder) ownerFor(file string, services []*serviceRecord) (*serviceRecord, bool) {
	if len(services) == 0 {
		return nil, false
	}
	if len(services) == 1 {
		return services[0], false
	}

	dir := path.Dir(file)
	var best *serviceRecord
	bestLen := -1
	for _, s := range services {
		epDir := path.Dir(s.entryPoint)
		if s.entryPoint == "" {
			continue
		}
		if epDir == "." {
			epDir = ""
		}
		if epDir == "" || dir == epDir || strings.HasPrefix(dir+"/", epDir+"/") {
			if len(epDir) > bestLen {
				bestLen = len(epDir)
				best = s
			}
		}
	}
	if best != nil {
		return best, false
	}

	sorted := append([]*serviceRecord(nil), services...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].name < sorted[j].name })
	return sorted[0], true
}

// upsertNode returns the node for (t, canonicalName), creating it with
// the given seed attributes if it doesn't exist yet.
func (b *Builder) upsertNode(t NodeType, canonicalName string, attrs map[string]string) (*Node, bool) {
	id := NodeID(t, canonicalName)
	if i, ok := b.nodeIdx[id]; ok {
		b.stats.NodesMerged++
		return &b.graph.Nodes[i], false
	}
	n := Node{ID: id, Type: t, CanonicalName: canonicalName}
	if len(attrs) > 0 {
		n.Attributes = make(map[string]string, len(attrs))
		for k, v := range attrs {
			n.Attributes[k] = v
		}
	}
	b.graph.Nodes = append(b.graph.Nodes, n)
	b.nodeIdx[id] = len(b.graph.Nodes) - 1
	return &b.graph.Nodes[len(b.graph.Nodes)-1], true
}

// upsertEdgeOnce adds the edge if it doesn't already exist; it never
// changes an existing edge, which is correct for PUBLISHES, SUBSCRIBES,
// USES, and CALLS — existence is all that matters for those types.
func (b *Builder) upsertEdgeOnce(source, target string, t EdgeType, op discovery.Operation) {
	b.upsertEdgeOnceWithAttrs(source, target, t, op, nil)
}

// upsertEdgeOnceWithAttrs is upsertEdgeOnce plus a metadata map stamped
// onto the edge the first time it's created (CALLS edges use this for
// method/path; later discoveries of the same (source,target,type) don't
// overwrite it, matching upsertEdgeOnce's existence-only semantics).
func (b *Builder) upsertEdgeOnceWithAttrs(source, target string, t EdgeType, op discovery.Operation, attrs map[string]string) {
	key := edgeKey(source, target, t)
	if _, ok := b.edgeIdx[key]; ok {
		return
	}
	b.graph.Edges = append(b.graph.Edges, Edge{Source: source, Target: target, Type: t, Operation: op, Attributes: attrs})
	b.edgeIdx[key] = len(b.graph.Edges) - 1
	b.stats.EdgesUpserted++
}

// upsertDBEdge finds any existing READS/WRITES/READS_WRITES edge
// between source and target and strengthens its operation via the join
// lattice, or creates a new edge of the matching type.
func (b *Builder) upsertDBEdge(source, target string, op discovery.Operation) {
	for _, t := range []EdgeType{EdgeReads, EdgeWrites, EdgeReadsWrites} {
		key := edgeKey(source, target, t)
		if i, ok := b.edgeIdx[key]; ok {
			joined := discovery.JoinOperation(b.graph.Edges[i].Operation, op)
			newType := edgeTypeForOperation(joined)
			if newType == t {
				b.graph.Edges[i].Operation = joined
				return
			}
			// Operation strengthened into a different edge type: move it.
			delete(b.edgeIdx, key)
			b.graph.Edges = append(b.graph.Edges[:i], b.graph.Edges[i+1:]...)
			b.reindexEdgesFrom(i)
			b.addDBEdge(source, target, newType, joined)
			return
		}
	}
	b.addDBEdge(source, target, edgeTypeForOperation(op), op)
}

func (b *Builder) addDBEdge(source, target string, t EdgeType, op discovery.Operation) {
	b.graph.Edges = append(b.graph.Edges, Edge{Source: source, Target: target, Type: t, Operation: op})
	b.edgeIdx[edgeKey(source, target, t)] = len(b.graph.Edges) - 1
	b.stats.EdgesUpserted++
}

func (b *Builder) reindexEdgesFrom(i int) {
	for ; i < len(b.graph.Edges); i++ {
		e := b.graph.Edges[i]
		b.edgeIdx[edgeKey(e.Source, e.Target, e.Type)] = i
	}
}

func edgeTypeForOperation(op discovery.Operation) EdgeType {
	switch op {
	case discovery.OpRead:
		return EdgeReads
	case discovery.OpWrite:
		return EdgeWrites
	default:
		return EdgeReadsWrites
	}
}

// mergeScalar sets attrs[field] to incoming when unset, or — on a
// genuine disagreement — keeps the lexicographically smaller value and
// records the larger one under the same key in conflicts, per the
// builder's deterministic scalar-conflict rule.
func mergeScalar(attrs map[string]string, field, incoming string, conflicts map[string]string, counter *int) {
	if incoming == "" {
		return
	}
	existing := attrs[field]
	if existing == "" {
		attrs[field] = incoming
		return
	}
	if existing == incoming {
		return
	}
	lo, hi := existing, incoming
	if hi < lo {
		lo, hi = hi, lo
	}
	attrs[field] = lo
	conflicts[field] = hi
	*counter++
}
