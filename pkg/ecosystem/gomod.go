// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ecosystem

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/mod/modfile"

	"github.com/AleutianAI/shipyard/pkg/config"
	"github.com/AleutianAI/shipyard/pkg/gitrepo"
	"github.com/AleutianAI/shipyard/pkg/logging"
	"github.com/AleutianAI/shipyard/pkg/projgraph"
	"github.com/AleutianAI/shipyard/pkg/version"
)

// GoLoader discovers Go modules from go.mod files.
//
// Go modules do not declare their own version; the release tag is the
// version. Discovered modules therefore start at 0.0.0 and their manifest
// is left byte-identical by the write-back pass.
type GoLoader struct {
	manifestPaths []string
}

// NewGoLoader returns an empty GoLoader.
func NewGoLoader() *GoLoader {
	return &GoLoader{}
}

// Ecosystem returns "go".
func (l *GoLoader) Ecosystem() string { return "go" }

// ProcessIndexItem records every go.mod encountered during the walk.
func (l *GoLoader) ProcessIndexItem(dir, basename string) {
	if basename != "go.mod" {
		return
	}
	l.manifestPaths = append(l.manifestPaths, joinRepoPath(dir, basename))
}

// Finalize parses recorded go.mod files and registers one project per
// module, keyed by module path. Require directives are recorded as
// candidate internal edges so intra-repo modules order correctly.
func (l *GoLoader) Finalize(g *projgraph.Graph, root string, cfg *config.File, log *logging.Logger) error {
	for _, repoPath := range l.manifestPaths {
		fsPath := filepath.Join(root, filepath.FromSlash(repoPath))

		data, err := os.ReadFile(fsPath)
		if err != nil {
			return fmt.Errorf("failed to read go.mod %q: %w", fsPath, err)
		}

		file, err := modfile.Parse(fsPath, data, nil)
		if err != nil {
			log.Warn("skipping malformed go.mod", "path", repoPath, "error", err)
			continue
		}
		if file.Module == nil || file.Module.Mod.Path == "" {
			log.Warn("skipping go.mod without module declaration", "path", repoPath)
			continue
		}

		id, ok := g.TryAddProject([]string{file.Module.Mod.Path, l.Ecosystem()}, cfg)
		if !ok {
			continue
		}

		proj := g.Lookup(id)
		proj.Version = version.Version{}
		proj.Prefix = prefixOf(repoPath)
		for _, req := range file.Require {
			proj.DepNames = append(proj.DepNames, req.Mod.Path)
		}
		proj.Rewriters = append(proj.Rewriters, &goModRewriter{repoPath: repoPath})
	}
	return nil
}

// goModRewriter participates in the write-back pass without changing the
// file: the module version lives only in the release tag. It still rewrites
// atomically and records the path so go.mod is staged alongside the other
// manifests in the release commit.
type goModRewriter struct {
	repoPath string
}

func (r *goModRewriter) Rewrite(ws projgraph.Workspace, changes *gitrepo.ChangeList) error {
	fsPath := ws.ResolveWorkdir(r.repoPath)

	data, err := os.ReadFile(fsPath)
	if err != nil {
		return fmt.Errorf("failed to read go.mod %q: %w", fsPath, err)
	}

	if err := atomicWriteFile(fsPath, data); err != nil {
		return err
	}
	changes.Add(r.repoPath)
	return nil
}
