// Copyright 2026 Forge Authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package limits provides soft resource limits for the survey pipeline.
//
// # File size
//
// The parser registry skips any file over MaxFileSizeBytes rather than
// reading it into memory; the skip is recorded as a reason on the
// survey result instead of surfacing as a parse error. Generated
// bundles, vendored minified JS, and lockfiles are the usual offenders.
//
//	if info.Size() > limits.MaxFileSizeBytes() {
//	    // record skip reason "file_too_large", move on
//	}
//
// Override via the FORGE_MAX_FILE_SIZE_BYTES environment variable.
//
// # Repo count
//
// MaxRepos bounds how many repos a single SurveyRequest may name, as a
// sanity check before the pipeline starts a worker pool. Override via
// FORGE_MAX_REPOS.
package limits
