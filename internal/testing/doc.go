// Copyright 2026 Forge Authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package testing provides fixture helpers for survey and graph tests.
//
// TempRepo scaffolds a throwaway repository on disk so parser and
// pipeline tests can exercise real file walks instead of in-memory
// fakes. AssertGraphEqual compares two graphs on their canonical JSON
// encoding, which is the same encoding the persistence layer writes,
// so a mismatch here is a real determinism regression rather than a
// struct-layout artifact.
//
// # Quick start
//
//	func TestSurveyFindsService(t *testing.T) {
//	    root := testinghelpers.TempRepo(t, map[string]string{
//	        "package.json": `{"name": "checkout-api"}`,
//	        "src/index.js": `const x = 1`,
//	    })
//	    // survey root, assert on the resulting graph
//	}
package testing
