// Copyright 2026 Forge Authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package parse defines the parser contract and registry that the
// survey pipeline fans discoveries out through. Each language owns one
// Parser implementation (packages jsts, python, terraform,
// cloudformation); the registry dispatches files to them by extension
// and deduplicates whatever they emit.
package parse

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/forgelabs/forge/internal/limits"
	"github.com/forgelabs/forge/pkg/discovery"
)

// Parser is the contract every language parser implements. Parsers are
// pure functions of their input content: ParseFile performs no I/O
// beyond reading the bytes it is handed, and concurrent calls on the
// same Parser value are safe. A parse failure on one file must never
// propagate past ParseFile; callers record it as a warning and move on
// with an empty discovery list for that file.
type Parser interface {
	// Name identifies the parser for logging and tie-break decisions.
	Name() string

	// SupportedExtensions lists the file extensions (with leading dot,
	// lowercase) this parser claims; an entry without a leading dot is an
	// exact base name such as "package.json".
	SupportedExtensions() []string

	// ParseFile extracts discoveries from one file's content. path is
	// repo-relative and is recorded on every emitted Discovery.
	ParseFile(path string, content []byte) ([]discovery.Discovery, error)
}

// skippedDirs are never descended into during a repo walk, regardless
// of parser or ignore-glob configuration.
var skippedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	".forge":       true,
}

// Registry dispatches files to the parser registered for their
// extension (or, for manifest files like package.json, their exact
// base name) and merges the result.
type Registry struct {
	byExt  map[string]Parser
	byName map[string]Parser
	order  []Parser
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{byExt: make(map[string]Parser), byName: make(map[string]Parser)}
}

// Register adds p for every extension or manifest name it claims
// (SupportedExtensions entries without a leading dot are treated as
// exact base names, e.g. "package.json"). When two parsers claim the
// same key the first registered wins; this mirrors the registry's
// general first-registered tie-break for overlapping parsers.
func (r *Registry) Register(p Parser) {
	r.order = append(r.order, p)
	for _, key := range p.SupportedExtensions() {
		key = strings.ToLower(key)
		if strings.HasPrefix(key, ".") {
			if _, exists := r.byExt[key]; !exists {
				r.byExt[key] = p
			}
			continue
		}
		if _, exists := r.byName[key]; !exists {
			r.byName[key] = p
		}
	}
}

// ParserFor returns the parser registered for ext, if any.
func (r *Registry) ParserFor(ext string) (Parser, bool) {
	p, ok := r.byExt[strings.ToLower(ext)]
	return p, ok
}

// FileResult is the outcome of parsing one file.
type FileResult struct {
	Path        string
	Language    string // the language whose parser handled this file, e.g. "javascript"; "" if none did
	Discoveries []discovery.Discovery
	Err         error // non-nil on parse failure; Discoveries is empty
	Skipped     string // non-empty skip reason when no parser ran
}

// fileLanguage maps a manifest base name or extension to the language
// label used for exclusion filtering, following pkg/detect's
// manifest/extension tables. Unlike the detector, it does no content
// sniffing: every .yaml, .yml and .json file is reported as
// "cloudformation".
func fileLanguage(base, ext string) string {
	switch base {
	case "package.json":
		return "javascript"
	case "pyproject.toml", "setup.py", "requirements.txt":
		return "python"
	}
	switch ext {
	case ".js", ".jsx", ".mjs", ".cjs":
		return "javascript"
	case ".ts", ".tsx":
		return "typescript"
	case ".py":
		return "python"
	case ".tf":
		return "terraform"
	case ".yaml", ".yml", ".json":
		return "cloudformation"
	}
	return ""
}

// WalkRepo walks fsys rooted at "." and dispatches every file with a
// registered extension to its parser. Files matching ignoreGlobs, or
// over the file-size soft limit, are recorded with a skip reason and
// never read. Results are returned in a stable, path-sorted order so
// callers can merge them deterministically regardless of walk order.
func (r *Registry) WalkRepo(fsys fs.FS, ignoreGlobs []string) ([]FileResult, error) {
	var paths []string

	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != "." && skippedDirs[d.Name()] {
				return fs.SkipDir
			}
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk repo: %w", err)
	}
	sort.Strings(paths)

	results := make([]FileResult, 0, len(paths))
	for _, path := range paths {
		if matchesAnyGlob(path, ignoreGlobs) {
			results = append(results, FileResult{Path: path, Skipped: "ignored"})
			continue
		}

		base := strings.ToLower(filepath.Base(path))
		ext := strings.ToLower(filepath.Ext(path))
		p, ok := r.byName[base]
		if !ok {
			p, ok = r.byExt[ext]
			if !ok {
				continue
			}
		}

		lang := fileLanguage(base, ext)

		info, err := fs.Stat(fsys, path)
		if err == nil && info.Size() > limits.MaxFileSizeBytes() {
			results = append(results, FileResult{Path: path, Language: lang, Skipped: "file_too_large"})
			continue
		}

		content, err := fs.ReadFile(fsys, path)
		if err != nil {
			results = append(results, FileResult{Path: path, Language: lang, Skipped: "read_error"})
			continue
		}

		discoveries, err := p.ParseFile(path, content)
		if err != nil {
			results = append(results, FileResult{Path: path, Language: lang, Err: err})
			continue
		}
		results = append(results, FileResult{Path: path, Language: lang, Discoveries: dedupe(discoveries)})
	}
	return results, nil
}

// matchesAnyGlob reports whether path matches one of patterns, using
// filepath.Match semantics against the slash-normalized path and its
// base name.
func matchesAnyGlob(path string, patterns []string) bool {
	norm := filepath.ToSlash(path)
	base := filepath.Base(norm)
	for _, pattern := range patterns {
		if ok, _ := filepath.Match(pattern, norm); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// dedupe collapses discoveries that agree on (kind, source_file,
// source_line, key attributes), the identity the registry uses to
// reconcile overlapping parsers on the rare extension both claim.
func dedupe(in []discovery.Discovery) []discovery.Discovery {
	if len(in) < 2 {
		return in
	}
	seen := make(map[string]bool, len(in))
	out := make([]discovery.Discovery, 0, len(in))
	for _, d := range in {
		key := dedupeKey(d)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, d)
	}
	return out
}

func dedupeKey(d discovery.Discovery) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s|%s|%d|", d.Kind, d.SourceFile, d.SourceLine)
	switch d.Kind {
	case discovery.KindService:
		if d.Service != nil {
			fmt.Fprintf(&sb, "%s", d.Service.Name)
		}
	case discovery.KindImport:
		if d.Import != nil {
			fmt.Fprintf(&sb, "%s", d.Import.Module)
		}
	case discovery.KindAPICall:
		if d.APICall != nil {
			fmt.Fprintf(&sb, "%s|%s", d.APICall.Target, d.APICall.Method)
		}
	case discovery.KindDatabaseAccess:
		if d.DatabaseAccess != nil {
			fmt.Fprintf(&sb, "%s|%s|%s", d.DatabaseAccess.DBType, d.DatabaseAccess.TableName, d.DatabaseAccess.Operation)
		}
	case discovery.KindQueueOperation:
		if d.QueueOperation != nil {
			fmt.Fprintf(&sb, "%s|%s|%s", d.QueueOperation.QueueType, d.QueueOperation.QueueName, d.QueueOperation.Operation)
		}
	case discovery.KindCloudResourceUsage:
		if d.CloudResourceUsage != nil {
			fmt.Fprintf(&sb, "%s|%s", d.CloudResourceUsage.ResourceType, d.CloudResourceUsage.ResourceName)
		}
	}
	return sb.String()
}
