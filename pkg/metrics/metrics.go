// Copyright 2026 Forge Authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package metrics holds the survey engine's Prometheus instrumentation:
// one package-level set of counters/histograms, initialized once behind
// sync.Once and registered with the default registry, mirroring the
// teacher's ingestion metrics package.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type surveyMetrics struct {
	once sync.Once

	discoveriesByKind *prometheus.CounterVec
	nodesCreated      prometheus.Counter
	nodesMerged       prometheus.Counter
	edgesCreated      prometheus.Counter
	mergeConflicts    prometheus.Counter
	parseErrors       prometheus.Counter
	parseWarnings     prometheus.Counter
	filesSkipped      *prometheus.CounterVec

	detectDuration   prometheus.Histogram
	parseDuration    prometheus.Histogram
	buildDuration    prometheus.Histogram
	couplingDuration prometheus.Histogram
	writeDuration    prometheus.Histogram
	totalDuration    prometheus.Histogram
}

var m surveyMetrics

var buckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

func (sm *surveyMetrics) init() {
	sm.once.Do(func() {
		sm.discoveriesByKind = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forge_discoveries_total", Help: "Discoveries emitted by parsers, by kind",
		}, []string{"kind"})
		sm.nodesCreated = prometheus.NewCounter(prometheus.CounterOpts{Name: "forge_nodes_created_total", Help: "Graph nodes created"})
		sm.nodesMerged = prometheus.NewCounter(prometheus.CounterOpts{Name: "forge_nodes_merged_total", Help: "Graph nodes re-discovered and merged"})
		sm.edgesCreated = prometheus.NewCounter(prometheus.CounterOpts{Name: "forge_edges_created_total", Help: "Graph edges created"})
		sm.mergeConflicts = prometheus.NewCounter(prometheus.CounterOpts{Name: "forge_merge_conflicts_total", Help: "Scalar attribute merge conflicts recorded"})
		sm.parseErrors = prometheus.NewCounter(prometheus.CounterOpts{Name: "forge_parse_errors_total", Help: "Files a parser failed to build an AST for"})
		sm.parseWarnings = prometheus.NewCounter(prometheus.CounterOpts{Name: "forge_parse_warnings_total", Help: "Non-fatal parse warnings"})
		sm.filesSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forge_files_skipped_total", Help: "Files skipped during the walk, by reason",
		}, []string{"reason"})

		sm.detectDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "forge_detect_seconds", Help: "Language detection phase duration", Buckets: buckets})
		sm.parseDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "forge_parse_seconds", Help: "Parse phase duration", Buckets: buckets})
		sm.buildDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "forge_build_seconds", Help: "Graph build phase duration", Buckets: buckets})
		sm.couplingDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "forge_coupling_seconds", Help: "Coupling analysis phase duration", Buckets: buckets})
		sm.writeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "forge_write_seconds", Help: "Persistence phase duration", Buckets: buckets})
		sm.totalDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "forge_total_seconds", Help: "Total survey run duration", Buckets: buckets})

		prometheus.MustRegister(
			sm.discoveriesByKind, sm.nodesCreated, sm.nodesMerged, sm.edgesCreated,
			sm.mergeConflicts, sm.parseErrors, sm.parseWarnings, sm.filesSkipped,
			sm.detectDuration, sm.parseDuration, sm.buildDuration, sm.couplingDuration,
			sm.writeDuration, sm.totalDuration,
		)
	})
}

// RecordDiscovery increments the per-kind discovery counter.
func RecordDiscovery(kind string) { m.init(); m.discoveriesByKind.WithLabelValues(kind).Inc() }

// RecordNodeCreated increments the nodes-created counter.
func RecordNodeCreated() { m.init(); m.nodesCreated.Inc() }

// RecordNodeMerged increments the nodes-merged counter.
func RecordNodeMerged() { m.init(); m.nodesMerged.Inc() }

// RecordEdgeCreated increments the edges-created counter.
func RecordEdgeCreated() { m.init(); m.edgesCreated.Inc() }

// RecordMergeConflict increments the merge-conflict counter.
func RecordMergeConflict() { m.init(); m.mergeConflicts.Inc() }

// RecordParseError increments the parse-error counter.
func RecordParseError() { m.init(); m.parseErrors.Inc() }

// RecordParseWarning increments the parse-warning counter.
func RecordParseWarning() { m.init(); m.parseWarnings.Inc() }

// RecordFileSkipped increments the files-skipped counter for reason.
func RecordFileSkipped(reason string) { m.init(); m.filesSkipped.WithLabelValues(reason).Inc() }

// ObserveDetectSeconds records one language-detection phase duration.
func ObserveDetectSeconds(seconds float64) { m.init(); m.detectDuration.Observe(seconds) }

// ObserveParseSeconds records one parse phase duration.
func ObserveParseSeconds(seconds float64) { m.init(); m.parseDuration.Observe(seconds) }

// ObserveBuildSeconds records one graph-build phase duration.
func ObserveBuildSeconds(seconds float64) { m.init(); m.buildDuration.Observe(seconds) }

// ObserveCouplingSeconds records one coupling-analysis phase duration.
func ObserveCouplingSeconds(seconds float64) { m.init(); m.couplingDuration.Observe(seconds) }

// ObserveWriteSeconds records one persistence phase duration.
func ObserveWriteSeconds(seconds float64) { m.init(); m.writeDuration.Observe(seconds) }

// ObserveTotalSeconds records one full survey run's duration.
func ObserveTotalSeconds(seconds float64) { m.init(); m.totalDuration.Observe(seconds) }
