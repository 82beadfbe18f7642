// Copyright 2026 Forge Authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package slug canonicalizes free-form names into the stable strings
// used to derive node identifiers (spec.md §3, invariant 1 and §9 Open
// Questions). The rule is intentionally simple and must never change
// without a corresponding graph-identity migration: lowercase, collapse
// any run of characters outside [a-z0-9] into a single hyphen, then
// trim leading/trailing hyphens.
package slug

import "strings"

// Slug canonicalizes name per the rule above. Empty input produces an
// empty slug; callers that need a non-empty canonical name for unnamed
// resources build their own fallback (graph.Builder does "unnamed@"+repoID).
func Slug(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	prevHyphen := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			prevHyphen = false
			continue
		}
		if !prevHyphen && b.Len() > 0 {
			b.WriteByte('-')
			prevHyphen = true
		}
	}

	return strings.TrimSuffix(b.String(), "-")
}
