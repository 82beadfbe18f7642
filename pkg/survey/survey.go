// Copyright 2026 Forge Authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package survey orchestrates one end-to-end run: detect languages,
// walk and parse each repository with a bounded worker pool, fuse the
// resulting discoveries through the graph builder, run the coupling
// analyzer, and persist the result. It is the thing cmd/forge calls.
package survey

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/forgelabs/forge/internal/errors"
	"github.com/forgelabs/forge/internal/limits"
	"github.com/forgelabs/forge/pkg/coupling"
	"github.com/forgelabs/forge/pkg/detect"
	"github.com/forgelabs/forge/pkg/discovery"
	"github.com/forgelabs/forge/pkg/graph"
	"github.com/forgelabs/forge/pkg/metrics"
	"github.com/forgelabs/forge/pkg/parse"
	"github.com/forgelabs/forge/pkg/parse/cloudformation"
	"github.com/forgelabs/forge/pkg/parse/jsts"
	"github.com/forgelabs/forge/pkg/parse/python"
	"github.com/forgelabs/forge/pkg/parse/terraform"
	"github.com/forgelabs/forge/pkg/persist"
)

// SurveyRequest is the resolved input to a survey run: repositories to
// walk, languages to skip, and whether to attempt an incremental run
// against prior output (spec.md §6).
type SurveyRequest struct {
	Repos             []discovery.RepoHandle
	ExcludedLanguages []string
	StalenessDays     int
	Incremental       bool
	GraphPath         string
	StatePath         string // defaults to "<repo root>/.forge/survey-state.json" when empty, resolved by the caller
	IgnoreGlobs       []string
}

// Result summarizes one completed run for the caller/CLI to report.
type Result struct {
	RunID           string
	FilesProcessed  int
	DiscoveriesByKind map[discovery.Kind]int
	ParseErrors     int
	ParseErrorRate  float64
	TopSkipReasons  map[string]int
	AmbiguousOwners []string
	MergeConflicts  int
	UnresolvedAPICalls int
	CouplingEdges   int
	DetectDuration  time.Duration
	ParseDuration   time.Duration
	BuildDuration   time.Duration
	CouplingDuration time.Duration
	WriteDuration   time.Duration
	TotalDuration   time.Duration
	Incremental     bool
}

// EventSink receives progress/warning events during a run. Implementations
// must be safe for concurrent use: file-parsed events arrive from worker
// goroutines during the parse phase. cmd/forge's progress bar is one
// concrete sink; tests commonly use a no-op or recording sink.
type EventSink interface {
	PhaseStarted(phase string)
	PhaseCompleted(phase string, d time.Duration)
	FileParsed(repoID, path string, discoveryCount int)
	RepoSkipped(repoID, reason string)
	Warning(kind errors.Kind, message string)
}

// NoopSink discards every event; the zero value is ready to use.
type NoopSink struct{}

func (NoopSink) PhaseStarted(string)                   {}
func (NoopSink) PhaseCompleted(string, time.Duration)  {}
func (NoopSink) FileParsed(string, string, int)        {}
func (NoopSink) RepoSkipped(string, string)            {}
func (NoopSink) Warning(errors.Kind, string)           {}

// Runner executes survey runs. A Runner is reusable across runs; it
// holds no per-run state.
type Runner struct {
	Registry        *parse.Registry
	Concurrency     int // repo-level worker pool size; default 4, matching clone_concurrency
	Logger          *slog.Logger
	Sink            EventSink
	now             func() time.Time
}

// NewRunner builds a Runner with the standard parser registry (jsts,
// python, terraform, cloudformation) registered, matching spec.md
// §4.2's four language pattern sets.
func NewRunner(logger *slog.Logger, sink EventSink) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = NoopSink{}
	}
	reg := parse.NewRegistry()
	reg.Register(jsts.New())
	reg.Register(python.New())
	reg.Register(terraform.New())
	reg.Register(cloudformation.New())
	return &Runner{
		Registry:    reg,
		Concurrency: 4,
		Logger:      logger,
		Sink:        sink,
		now:         time.Now,
	}
}

// Run executes one survey. req.Incremental is honored only when a prior
// graph and survey-state are both present at the given paths; any
// missing or schema-mismatched artifact falls back to a full survey
// (spec.md §4.5 step 1).
func (r *Runner) Run(ctx context.Context, req SurveyRequest) (*graph.ForgeGraph, Result, error) {
	if err := r.validate(req); err != nil {
		return nil, Result{}, err
	}

	start := r.now()
	runID := r.generateRunID(req, start)
	r.Logger.Info("survey.start", "run_id", runID, "repos", len(req.Repos), "incremental", req.Incremental)

	excluded := excludedSet(req.ExcludedLanguages)

	priorGraph, priorState := r.loadIncrementalState(req)
	incrementalActive := req.Incremental && priorGraph != nil && priorState != nil
	if req.Incremental && !incrementalActive {
		r.Sink.Warning(errors.StateSchemaMismatch, "no usable prior graph/state; falling back to a full survey")
	}

	r.Sink.PhaseStarted("detect")
	detectStart := r.now()
	r.detectRepos(req)
	detectDuration := r.now().Sub(detectStart)
	r.Sink.PhaseCompleted("detect", detectDuration)
	metrics.ObserveDetectSeconds(detectDuration.Seconds())

	r.Sink.PhaseStarted("parse")
	parseStart := r.now()
	perRepo, newState, stats := r.parseRepos(ctx, req, excluded, priorState, incrementalActive)
	parseDuration := r.now().Sub(parseStart)
	r.Sink.PhaseCompleted("parse", parseDuration)
	metrics.ObserveParseSeconds(parseDuration.Seconds())
	for kind, n := range stats.byKind {
		for i := 0; i < n; i++ {
			metrics.RecordDiscovery(string(kind))
		}
	}

	r.Sink.PhaseStarted("build")
	buildStart := r.now()
	builder := graph.NewBuilder(start.UTC().Format(time.RFC3339))
	for _, pr := range perRepo {
		builder.AddRepo(pr.repo, pr.discoveries)
	}
	g, buildStats := builder.Build()
	buildDuration := r.now().Sub(buildStart)
	r.Sink.PhaseCompleted("build", buildDuration)
	metrics.ObserveBuildSeconds(buildDuration.Seconds())
	for i := 0; i < buildStats.ServicesUpserted+buildStats.NodesUpserted; i++ {
		metrics.RecordNodeCreated()
	}
	for i := 0; i < buildStats.NodesMerged; i++ {
		metrics.RecordNodeMerged()
	}
	for i := 0; i < buildStats.EdgesUpserted; i++ {
		metrics.RecordEdgeCreated()
	}
	for i := 0; i < buildStats.MergeConflicts; i++ {
		metrics.RecordMergeConflict()
	}
	for i := 0; i < len(buildStats.AmbiguousOwnerFiles); i++ {
		metrics.RecordParseWarning()
	}

	r.Sink.PhaseStarted("coupling")
	couplingStart := r.now()
	implicit := coupling.Analyze(g)
	g.Edges = append(g.Edges, implicit...)
	couplingDuration := r.now().Sub(couplingStart)
	r.Sink.PhaseCompleted("coupling", couplingDuration)
	metrics.ObserveCouplingSeconds(couplingDuration.Seconds())

	r.Sink.PhaseStarted("persist")
	writeStart := r.now()
	if req.GraphPath != "" {
		if err := persist.WriteGraph(req.GraphPath, g, start.UTC().Format(time.RFC3339)); err != nil {
			return nil, Result{}, err
		}
	}
	if req.Incremental && req.StatePath != "" {
		if err := persist.WriteSurveyState(req.StatePath, newState); err != nil {
			return nil, Result{}, err
		}
	}
	writeDuration := r.now().Sub(writeStart)
	r.Sink.PhaseCompleted("persist", writeDuration)
	metrics.ObserveWriteSeconds(writeDuration.Seconds())

	total := r.now().Sub(start)
	metrics.ObserveTotalSeconds(total.Seconds())

	result := Result{
		RunID:              runID,
		FilesProcessed:      stats.filesProcessed,
		DiscoveriesByKind:    stats.byKind,
		ParseErrors:         stats.parseErrors,
		ParseErrorRate:       errorRate(stats.parseErrors, stats.filesProcessed),
		TopSkipReasons:       stats.skipReasons,
		AmbiguousOwners:      buildStats.AmbiguousOwnerFiles,
		MergeConflicts:       buildStats.MergeConflicts,
		UnresolvedAPICalls:   buildStats.UnresolvedAPICalls,
		CouplingEdges:        len(implicit),
		DetectDuration:       detectDuration,
		ParseDuration:        parseDuration,
		BuildDuration:        buildDuration,
		CouplingDuration:     couplingDuration,
		WriteDuration:        writeDuration,
		TotalDuration:        total,
		Incremental:          incrementalActive,
	}
	r.Logger.Info("survey.complete", "run_id", runID, "files", result.FilesProcessed, "nodes", len(g.Nodes), "edges", len(g.Edges))
	return g, result, nil
}

func (r *Runner) validate(req SurveyRequest) error {
	if len(req.Repos) == 0 {
		return errors.New(errors.ConfigurationError, "survey request names no repositories", "", "pass at least one RepoHandle", nil)
	}
	check := limits.CheckRepoCount(len(req.Repos))
	if !check.OK {
		return errors.New(errors.ConfigurationError, check.Message, "", "reduce the repo list or raise FORGE_MAX_REPOS", nil)
	}
	seen := make(map[string]bool)
	for _, repo := range req.Repos {
		if repo.ID == "" || repo.LocalPath == "" {
			return errors.New(errors.ConfigurationError, "every RepoHandle needs an id and a local_path", "", "", nil)
		}
		if seen[repo.ID] {
			return errors.New(errors.ConfigurationError, fmt.Sprintf("duplicate repo id %q", repo.ID), "", "", nil)
		}
		seen[repo.ID] = true
	}
	return nil
}

func (r *Runner) generateRunID(req SurveyRequest, start time.Time) string {
	ids := make([]string, len(req.Repos))
	for i, repo := range req.Repos {
		ids[i] = repo.ID
	}
	sort.Strings(ids)
	base := fmt.Sprintf("survey-%s-%d", strings.Join(ids, ","), start.Truncate(time.Second).Unix())
	sum := sha256.Sum256([]byte(base))
	return "run-" + hex.EncodeToString(sum[:8])
}

// detectRepos runs the language detector once per repo purely for
// logging/reporting; dispatch itself stays extension-driven in the
// parser registry regardless of what's detected here (spec.md §4.1
// feeds observability and the excluded-language set, not parser
// selection).
func (r *Runner) detectRepos(req SurveyRequest) {
	for _, repo := range req.Repos {
		found, err := detect.Repo(repo.LocalPath, osDirFS(repo.LocalPath), nil)
		if err != nil {
			r.Sink.Warning(errors.RepoAccessError, fmt.Sprintf("detect %s: %v", repo.ID, err))
			continue
		}
		names := make([]string, len(found))
		for i, d := range found {
			names[i] = string(d.Name)
		}
		r.Logger.Info("survey.detect.repo", "repo_id", repo.ID, "languages", names)
	}
}

func (r *Runner) loadIncrementalState(req SurveyRequest) (*graph.ForgeGraph, *persist.SurveyState) {
	if !req.Incremental || req.GraphPath == "" || req.StatePath == "" {
		return nil, nil
	}
	g, err := persist.ReadGraph(req.GraphPath)
	if err != nil || g == nil {
		return nil, nil
	}
	state, err := persist.ReadSurveyState(req.StatePath)
	if err != nil || state == nil {
		return nil, nil
	}
	return g, state
}

type repoDiscoveries struct {
	repo        discovery.RepoHandle
	discoveries []discovery.Discovery
}

type runStats struct {
	filesProcessed int
	parseErrors    int
	byKind         map[discovery.Kind]int
	skipReasons    map[string]int
}

// parseRepos walks and parses every repo with a bounded worker pool
// (default 4, matching clone_concurrency). When a usable prior state
// exists, a repo whose revision is unchanged is replayed whole from it
// (replayRepo); every other repo is walked and parsed in full. Each
// worker builds its own repo's discovery list locally and updates the
// shared stats and survey state under a mutex; the graph builder is
// never touched from the workers (spec.md §5).
func (r *Runner) parseRepos(ctx context.Context, req SurveyRequest, excluded map[string]bool, priorState *persist.SurveyState, incremental bool) ([]repoDiscoveries, *persist.SurveyState, runStats) {
	concurrency := r.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	results := make([]repoDiscoveries, len(req.Repos))
	newState := persist.NewSurveyState()

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency)
	stats := runStats{byKind: make(map[discovery.Kind]int), skipReasons: make(map[string]int)}

	for i, repo := range req.Repos {
		select {
		case <-ctx.Done():
			r.Sink.RepoSkipped(repo.ID, "context canceled")
			continue
		default:
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(i int, repo discovery.RepoHandle) {
			defer wg.Done()
			defer func() { <-sem }()

			if incremental && repo.RevisionID != "" {
				if prior, ok := priorState.Repos[repo.ID]; ok && prior.RevisionID == repo.RevisionID {
					r.replayRepo(repo, prior, results, i, &mu, newState, &stats)
					return
				}
			}

			fsys := osDirFS(repo.LocalPath)
			fileResults, err := r.Registry.WalkRepo(fsys, req.IgnoreGlobs)
			if err != nil {
				r.Sink.RepoSkipped(repo.ID, err.Error())
				r.Sink.Warning(errors.RepoAccessError, fmt.Sprintf("repo %s: %v", repo.ID, err))
				return
			}

			var discoveries []discovery.Discovery
			repoState := persist.RepoState{RevisionID: repo.RevisionID, Files: make(map[string]persist.FileState)}

			for _, fr := range fileResults {
				if fr.Skipped != "" {
					mu.Lock()
					stats.skipReasons[fr.Skipped]++
					mu.Unlock()
					metrics.RecordFileSkipped(fr.Skipped)
					continue
				}
				if fr.Language != "" && excluded[strings.ToLower(fr.Language)] {
					mu.Lock()
					stats.skipReasons["excluded_language"]++
					mu.Unlock()
					metrics.RecordFileSkipped("excluded_language")
					continue
				}
				if fr.Err != nil {
					mu.Lock()
					stats.parseErrors++
					mu.Unlock()
					r.Sink.Warning(errors.ParseFailed, fmt.Sprintf("%s: %v", fr.Path, fr.Err))
					metrics.RecordParseError()
					continue
				}
				filtered := filterExcluded(fr.Discoveries, excluded)
				discoveries = append(discoveries, filtered...)
				repoState.Files[fr.Path] = persist.FileState{Discoveries: filtered}
				r.Sink.FileParsed(repo.ID, fr.Path, len(filtered))

				mu.Lock()
				stats.filesProcessed++
				for _, d := range filtered {
					stats.byKind[d.Kind]++
				}
				mu.Unlock()
			}

			mu.Lock()
			newState.Repos[repo.ID] = repoState
			mu.Unlock()

			results[i] = repoDiscoveries{repo: repo, discoveries: discoveries}
		}(i, repo)
	}
	wg.Wait()

	return results, newState, stats
}

// replayRepo implements spec.md §4.5 step 3: when a repo's current
// revision matches the one recorded in the prior survey state, its
// cached per-file discoveries are reused verbatim and the file is never
// re-parsed. Full per-file added/modified/deleted diffing (step 4) is
// deferred when the revision differs: that case falls back to a full
// re-parse of just that repo, which is slower but still produces
// identical merge semantics, since the graph builder can't tell a
// replayed discovery from a freshly parsed one.
func (r *Runner) replayRepo(repo discovery.RepoHandle, prior persist.RepoState, results []repoDiscoveries, i int, mu *sync.Mutex, newState *persist.SurveyState, stats *runStats) {
	var discoveries []discovery.Discovery
	for path, fs := range prior.Files {
		discoveries = append(discoveries, fs.Discoveries...)
		r.Sink.FileParsed(repo.ID, path, len(fs.Discoveries))
	}

	mu.Lock()
	newState.Repos[repo.ID] = prior
	stats.filesProcessed += len(prior.Files)
	for _, d := range discoveries {
		stats.byKind[d.Kind]++
	}
	mu.Unlock()

	results[i] = repoDiscoveries{repo: repo, discoveries: discoveries}
}

func filterExcluded(in []discovery.Discovery, excluded map[string]bool) []discovery.Discovery {
	if len(excluded) == 0 {
		return in
	}
	out := in[:0:0]
	for _, d := range in {
		if d.Kind == discovery.KindService && d.Service != nil && excluded[strings.ToLower(d.Service.Language)] {
			continue
		}
		out = append(out, d)
	}
	return out
}

func excludedSet(langs []string) map[string]bool {
	if len(langs) == 0 {
		return nil
	}
	out := make(map[string]bool, len(langs))
	for _, l := range langs {
		out[strings.ToLower(l)] = true
	}
	return out
}

func errorRate(errs, files int) float64 {
	if files == 0 {
		return 0
	}
	return float64(errs) / float64(files)
}
