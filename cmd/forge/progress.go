// Copyright 2026 Forge Authors
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"github.com/forgelabs/forge/internal/errors"
	"github.com/forgelabs/forge/internal/ui"
)

// progressSink is the concrete EventSink cmd/forge hands to
// survey.Runner: one spinner per phase, reproducing the teacher's
// NewSpinner styling (cmd/cie/progress.go), plus warnings printed
// through internal/ui as they arrive. Disabled entirely when output
// isn't a TTY or the caller asked for --quiet/--json, matching
// NewProgressConfig's rule.
type progressSink struct {
	enabled bool
	noColor bool

	mu   sync.Mutex
	bar  *progressbar.ProgressBar
	seen int
}

func newSink(quiet, noColor bool) *progressSink {
	enabled := !quiet && isatty.IsTerminal(os.Stderr.Fd())
	return &progressSink{enabled: enabled, noColor: noColor}
}

func (s *progressSink) PhaseStarted(phase string) {
	if !s.enabled {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = 0
	s.bar = progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(phase),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionEnableColorCodes(!s.noColor),
	)
}

func (s *progressSink) PhaseCompleted(phase string, d time.Duration) {
	if !s.enabled {
		return
	}
	s.mu.Lock()
	bar := s.bar
	s.bar = nil
	s.mu.Unlock()
	if bar != nil {
		_ = bar.Finish()
	}
	ui.Successf("%s done in %s", phase, d.Round(time.Millisecond))
}

func (s *progressSink) FileParsed(repoID, path string, discoveryCount int) {
	if !s.enabled {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen++
	if s.bar != nil {
		_ = s.bar.Add(1)
	}
}

func (s *progressSink) RepoSkipped(repoID, reason string) {
	if !s.enabled {
		return
	}
	ui.Warningf("skipped repo %s: %s", repoID, reason)
}

func (s *progressSink) Warning(kind errors.Kind, message string) {
	if !s.enabled {
		return
	}
	ui.Warningf("%s: %s", kind, message)
}
