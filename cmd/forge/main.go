// Copyright 2026 Forge Authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package main is forge's thin demonstration entrypoint: read a
// SurveyRequest from a JSON file, run pkg/survey.Runner against it, and
// write the resulting graph. It is not a full CLI (no init/query/
// hook commands like the teacher's cie binary) — just enough wiring to
// exercise the survey core end to end.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/forgelabs/forge/internal/errors"
	"github.com/forgelabs/forge/internal/output"
	"github.com/forgelabs/forge/internal/ui"
	"github.com/forgelabs/forge/pkg/discovery"
	"github.com/forgelabs/forge/pkg/survey"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// requestFile is the on-disk shape of a survey request, matching
// spec.md §6's resolved SurveyRequest: a list of repo handles, the
// excluded-language set, the staleness threshold, and the incremental
// flag plus the paths it reads/writes against.
type requestFile struct {
	Repos             []discovery.RepoHandle `json:"repos"`
	ExcludedLanguages []string               `json:"excluded_languages"`
	StalenessDays     int                    `json:"staleness_days"`
	Incremental       bool                   `json:"incremental"`
	GraphPath         string                 `json:"graph_path"`
	StatePath         string                 `json:"state_path"`
	IgnoreGlobs       []string               `json:"ignore_globs"`
}

func main() {
	var (
		showVersion = flag.Bool("version", false, "Show version and exit")
		requestPath = flag.String("request", "", "Path to a survey request JSON file")
		noColor     = flag.Bool("no-color", false, "Disable colored output")
		quiet       = flag.Bool("quiet", false, "Suppress progress output")
		jsonOut     = flag.Bool("json", false, "Print the run result as JSON instead of a summary")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `forge - survey engine demonstration CLI

Usage:
  forge --request <path> [options]

Options:
`)
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Example:
  forge --request survey-request.json
`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("forge version %s\ncommit: %s\nbuilt: %s\n", version, commit, date)
		return
	}

	if *noColor {
		ui.InitColors(true)
	}

	if *requestPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	req, err := loadRequest(*requestPath)
	if err != nil {
		reportFatal(err, *jsonOut)
	}

	sink := newSink(*quiet || *jsonOut, *noColor)
	runner := survey.NewRunner(slog.Default(), sink)

	start := time.Now()
	g, result, err := runner.Run(context.Background(), req)
	if err != nil {
		reportFatal(err, *jsonOut)
	}

	if *jsonOut {
		_ = output.JSON(result)
		return
	}

	ui.Header("Survey complete")
	ui.Successf("%d nodes, %d edges across %d files in %s", len(g.Nodes), len(g.Edges), result.FilesProcessed, time.Since(start).Round(time.Millisecond))
	if result.MergeConflicts > 0 {
		ui.Warningf("%d scalar merge conflicts recorded on node attributes", result.MergeConflicts)
	}
	if result.UnresolvedAPICalls > 0 {
		ui.Warningf("%d API calls resolved to an external_api fallback node", result.UnresolvedAPICalls)
	}
	if len(result.AmbiguousOwners) > 0 {
		ui.Warningf("%d files had an ambiguous owning service", len(result.AmbiguousOwners))
	}
	if result.ParseErrors > 0 {
		ui.Warningf("%d files failed to parse (%.1f%% error rate)", result.ParseErrors, result.ParseErrorRate*100)
	}
	ui.Info(fmt.Sprintf("run %s, %d implicit-coupling edges", result.RunID, result.CouplingEdges))
	if req.GraphPath != "" {
		ui.Info("graph written to " + req.GraphPath)
	}
}

func loadRequest(path string) (survey.SurveyRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return survey.SurveyRequest{}, errors.New(errors.ConfigurationError,
			fmt.Sprintf("could not read request file %s", path), err.Error(),
			"pass a readable JSON file via --request", err)
	}
	var rf requestFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return survey.SurveyRequest{}, errors.New(errors.ConfigurationError,
			fmt.Sprintf("could not parse request file %s", path), err.Error(),
			"check the file is valid JSON matching the SurveyRequest schema", err)
	}
	return survey.SurveyRequest{
		Repos:             rf.Repos,
		ExcludedLanguages: rf.ExcludedLanguages,
		StalenessDays:     rf.StalenessDays,
		Incremental:       rf.Incremental,
		GraphPath:         rf.GraphPath,
		StatePath:         rf.StatePath,
		IgnoreGlobs:       rf.IgnoreGlobs,
	}, nil
}

func reportFatal(err error, asJSON bool) {
	if se, ok := err.(*errors.SurveyError); ok {
		if asJSON {
			_ = output.JSON(se.ToJSON())
		} else {
			fmt.Fprint(os.Stderr, se.Format(false))
		}
		os.Exit(1)
	}
	if asJSON {
		_ = output.JSONError(err)
	} else {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(1)
}
