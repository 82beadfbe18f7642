// Copyright 2026 Forge Authors
// SPDX-License-Identifier: AGPL-3.0-only

package survey

import (
	"io/fs"
	"os"
)

// osDirFS exposes a repo's local checkout as an fs.FS for the parser
// registry to walk.
func osDirFS(root string) fs.FS {
	return os.DirFS(root)
}
