// Copyright 2026 Forge Authors
// SPDX-License-Identifier: AGPL-3.0-only

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordFunctions_IncrementTheirCounters(t *testing.T) {
	m.init()

	before := testutil.ToFloat64(m.nodesCreated)
	RecordNodeCreated()
	if got := testutil.ToFloat64(m.nodesCreated); got != before+1 {
		t.Errorf("nodesCreated = %v, want %v", got, before+1)
	}

	before = testutil.ToFloat64(m.nodesMerged)
	RecordNodeMerged()
	if got := testutil.ToFloat64(m.nodesMerged); got != before+1 {
		t.Errorf("nodesMerged = %v, want %v", got, before+1)
	}

	before = testutil.ToFloat64(m.edgesCreated)
	RecordEdgeCreated()
	if got := testutil.ToFloat64(m.edgesCreated); got != before+1 {
		t.Errorf("edgesCreated = %v, want %v", got, before+1)
	}

	before = testutil.ToFloat64(m.mergeConflicts)
	RecordMergeConflict()
	if got := testutil.ToFloat64(m.mergeConflicts); got != before+1 {
		t.Errorf("mergeConflicts = %v, want %v", got, before+1)
	}

	before = testutil.ToFloat64(m.parseErrors)
	RecordParseError()
	if got := testutil.ToFloat64(m.parseErrors); got != before+1 {
		t.Errorf("parseErrors = %v, want %v", got, before+1)
	}

	before = testutil.ToFloat64(m.parseWarnings)
	RecordParseWarning()
	if got := testutil.ToFloat64(m.parseWarnings); got != before+1 {
		t.Errorf("parseWarnings = %v, want %v", got, before+1)
	}
}

func TestRecordDiscovery_LabelsByKind(t *testing.T) {
	m.init()

	before := testutil.ToFloat64(m.discoveriesByKind.WithLabelValues("api_call"))
	RecordDiscovery("api_call")
	if got := testutil.ToFloat64(m.discoveriesByKind.WithLabelValues("api_call")); got != before+1 {
		t.Errorf("discoveriesByKind[api_call] = %v, want %v", got, before+1)
	}
}

func TestRecordFileSkipped_LabelsByReason(t *testing.T) {
	m.init()

	before := testutil.ToFloat64(m.filesSkipped.WithLabelValues("excluded_language"))
	RecordFileSkipped("excluded_language")
	if got := testutil.ToFloat64(m.filesSkipped.WithLabelValues("excluded_language")); got != before+1 {
		t.Errorf("filesSkipped[excluded_language] = %v, want %v", got, before+1)
	}
}

func TestObserveFunctions_DoNotPanic(t *testing.T) {
	ObserveDetectSeconds(0.01)
	ObserveParseSeconds(0.1)
	ObserveBuildSeconds(0.2)
	ObserveCouplingSeconds(0.05)
	ObserveWriteSeconds(0.02)
	ObserveTotalSeconds(1.5)
}
