// Copyright 2026 Forge Authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package detect identifies which languages a repository contains. The
// survey pipeline uses the result for logging only; the parser
// registry picks parsers by file extension or name. Detection
// combines two signals: a manifest/config file specific to a language
// (high confidence) and a tally of file extensions (lower confidence,
// scaled by volume).
package detect

import (
	"io/fs"
	"math"
	"path/filepath"
	"sort"
	"strings"
)

// Method names how a language was detected.
type Method string

const (
	ConfigFile    Method = "config_file"
	FileExtension Method = "file_extension"
)

// Language is a detector-recognized language name.
type Language string

const (
	JavaScript     Language = "javascript"
	TypeScript     Language = "typescript"
	Python         Language = "python"
	Terraform      Language = "terraform"
	CloudFormation Language = "cloudformation"
)

// Detected is one detected language and the confidence the detector
// assigns it.
type Detected struct {
	Name       Language `json:"name"`
	Confidence float64  `json:"confidence"`
	Method     Method   `json:"method"`
}

// extensionMinFiles is the minimum extension tally required before
// extension-only detection is trusted at all.
const extensionMinFiles = 3

// extensionKeepThreshold is the confidence floor for extension-only
// detection to be kept in the result.
const extensionKeepThreshold = 0.6

var manifestNames = map[string]Language{
	"package.json":      JavaScript,
	"requirements.txt":  Python,
	"pyproject.toml":    Python,
	"setup.py":          Python,
}

var extensionLanguage = map[string]Language{
	".js":  JavaScript,
	".jsx": JavaScript,
	".mjs": JavaScript,
	".cjs": JavaScript,
	".ts":  TypeScript,
	".tsx": TypeScript,
	".py":  Python,
	".tf":  Terraform,
}

// Exclude is a set of language names the caller never wants reported,
// regardless of signal strength.
type Exclude map[Language]bool

// Repo walks root and reports every language detected in it, minus any
// named in exclude. Languages appear in a stable, deterministic order
// (by name) so callers can diff results across runs.
func Repo(root string, fsys fs.FS, exclude Exclude) ([]Detected, error) {
	counts := make(map[Language]int)
	configHit := make(map[Language]bool)
	tfHit := false
	cfnHit := false

	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if isSkippedDir(d.Name()) && path != "." {
				return fs.SkipDir
			}
			return nil
		}

		base := filepath.Base(path)
		if lang, ok := manifestNames[base]; ok {
			configHit[lang] = true
		}

		ext := strings.ToLower(filepath.Ext(path))
		if ext == ".tf" {
			tfHit = true
		}
		if (ext == ".yml" || ext == ".yaml" || ext == ".json") && looksLikeCloudFormation(fsys, path) {
			cfnHit = true
		}
		if lang, ok := extensionLanguage[ext]; ok {
			counts[lang]++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	results := make(map[Language]Detected)

	for lang := range configHit {
		results[lang] = Detected{Name: lang, Confidence: 0.9, Method: ConfigFile}
	}
	if tfHit {
		results[Terraform] = Detected{Name: Terraform, Confidence: 0.9, Method: ConfigFile}
	}
	if cfnHit {
		results[CloudFormation] = Detected{Name: CloudFormation, Confidence: 0.9, Method: ConfigFile}
	}

	for lang, n := range counts {
		if _, already := results[lang]; already {
			continue
		}
		if n < extensionMinFiles {
			continue
		}
		conf := extensionConfidence(n)
		if conf < extensionKeepThreshold {
			continue
		}
		results[lang] = Detected{Name: lang, Confidence: conf, Method: FileExtension}
	}

	out := make([]Detected, 0, len(results))
	for lang, d := range results {
		if exclude[lang] {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// extensionConfidence implements spec.md's min(0.9, 0.5 + 0.1*ceil(log2(count+1))).
func extensionConfidence(count int) float64 {
	c := 0.5 + 0.1*math.Ceil(math.Log2(float64(count+1)))
	if c > 0.9 {
		c = 0.9
	}
	return c
}

func isSkippedDir(name string) bool {
	switch name {
	case ".git", "node_modules", "vendor", ".forge":
		return true
	}
	return false
}

// cloudformationSniffBytes caps how much of a candidate template we read
// before giving up; real templates declare AWSTemplateFormatVersion or
// Transform near the top of the file.
const cloudformationSniffBytes = 4096

// looksLikeCloudFormation sniffs a YAML/JSON file for the markers that
// distinguish a CloudFormation/SAM template from an arbitrary manifest.
func looksLikeCloudFormation(fsys fs.FS, path string) bool {
	f, err := fsys.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	buf := make([]byte, cloudformationSniffBytes)
	n, _ := f.Read(buf)
	content := string(buf[:n])

	return strings.Contains(content, "AWSTemplateFormatVersion") ||
		strings.Contains(content, "AWS::Serverless")
}
