// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package gitrepo

// ChangeList accumulates repository-relative paths touched during a rewrite
// pass. It is owned by the session for the duration of one prepare operation
// and consumed once to build a commit or report modified files.
//
// Paths are kept in first-recorded order. Re-recording a path is a no-op,
// so rewriters can record unconditionally.
type ChangeList struct {
	paths []string
	seen  map[string]struct{}
}

// NewChangeList returns an empty ChangeList.
func NewChangeList() *ChangeList {
	return &ChangeList{seen: map[string]struct{}{}}
}

// Add records a repository-relative path. Duplicates are ignored.
func (c *ChangeList) Add(repoRelPath string) {
	if _, ok := c.seen[repoRelPath]; ok {
		return
	}
	c.seen[repoRelPath] = struct{}{}
	c.paths = append(c.paths, repoRelPath)
}

// Paths returns the recorded paths in first-recorded order. The returned
// slice is a copy.
func (c *ChangeList) Paths() []string {
	out := make([]string, len(c.paths))
	copy(out, c.paths)
	return out
}

// Len returns the number of distinct recorded paths.
func (c *ChangeList) Len() int {
	return len(c.paths)
}
