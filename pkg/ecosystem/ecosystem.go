// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ecosystem discovers projects from per-language manifest files and
// writes bumped versions back into them.
//
// Discovery is a two-phase protocol driven by a single directory walk:
//
//  1. The session feeds every file it encounters to every loader's
//     ProcessIndexItem. Loaders only record candidate paths; no file is
//     opened during the walk.
//  2. After the walk, Finalize runs once per loader. It parses the recorded
//     manifests, registers projects on the graph, and attaches a Rewriter
//     per manifest for the write-back pass.
//
// Rewriters honor a strict contract: locate the version declaration with
// the same syntax rule used during extraction, substitute the project's
// current in-memory version, preserve every other byte, and replace the
// file atomically (temp file + rename in the same directory). The touched
// path is recorded in the ChangeList even when nothing changed; failing to
// find the version line in a file that parsed during discovery is an error,
// never a silent skip.
package ecosystem

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/AleutianAI/shipyard/pkg/config"
	"github.com/AleutianAI/shipyard/pkg/logging"
	"github.com/AleutianAI/shipyard/pkg/projgraph"
)

// Loader discovers projects of one ecosystem.
type Loader interface {
	// Ecosystem returns the tag used as the project's second qualified
	// name ("cargo", "npm", "python", "go", "elixir").
	Ecosystem() string

	// ProcessIndexItem is called for every file seen during the repository
	// walk. dir is the repository-relative directory ("" at the root,
	// forward slashes elsewhere) and basename the file name. Loaders must
	// only record paths here, not touch the filesystem.
	ProcessIndexItem(dir, basename string)

	// Finalize parses the recorded manifests rooted at root, registers
	// projects on the graph, and attaches rewriters. Malformed manifests
	// that merely lack project identity are logged and skipped; I/O
	// failures are errors.
	Finalize(g *projgraph.Graph, root string, cfg *config.File, log *logging.Logger) error
}

// DefaultLoaders returns one loader per supported ecosystem.
func DefaultLoaders() []Loader {
	return []Loader{
		NewCargoLoader(),
		NewNpmLoader(),
		NewPythonLoader(),
		NewGoLoader(),
		NewElixirLoader(),
	}
}

// joinRepoPath joins a repository-relative dir and basename with forward
// slashes, handling the root directory.
func joinRepoPath(dir, basename string) string {
	if dir == "" {
		return basename
	}
	return path.Join(dir, basename)
}

// prefixOf returns the repository-relative directory of a manifest path.
func prefixOf(repoPath string) string {
	dir := path.Dir(repoPath)
	if dir == "." {
		return ""
	}
	return dir
}

// atomicWriteFile replaces path with data via a temp file in the same
// directory plus rename, preserving the original file mode when it can be
// read. Rename within one directory is atomic on POSIX filesystems, so a
// crash mid-write never leaves a truncated manifest behind.
func atomicWriteFile(fsPath string, data []byte) error {
	mode := os.FileMode(0o644)
	if info, err := os.Stat(fsPath); err == nil {
		mode = info.Mode().Perm()
	}

	dir := filepath.Dir(fsPath)
	tmp, err := os.CreateTemp(dir, ".shipyard-rewrite-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %q: %w", dir, err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("failed to write temp file %q: %w", tmpName, err)
	}
	if err := tmp.Chmod(mode); err != nil {
		cleanup()
		return fmt.Errorf("failed to chmod temp file %q: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file %q: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, fsPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %q: %w", fsPath, err)
	}
	return nil
}
