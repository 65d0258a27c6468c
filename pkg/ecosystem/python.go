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
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/AleutianAI/shipyard/pkg/config"
	"github.com/AleutianAI/shipyard/pkg/gitrepo"
	"github.com/AleutianAI/shipyard/pkg/logging"
	"github.com/AleutianAI/shipyard/pkg/projgraph"
)

// PythonLoader discovers Python packages from PEP 621 pyproject.toml
// manifests. Dynamic-version projects (version listed under
// [project.dynamic]) are skipped: their version lives outside the manifest
// and cannot be rewritten here.
type PythonLoader struct {
	manifestPaths []string
}

// NewPythonLoader returns an empty PythonLoader.
func NewPythonLoader() *PythonLoader {
	return &PythonLoader{}
}

// Ecosystem returns "python".
func (l *PythonLoader) Ecosystem() string { return "python" }

// ProcessIndexItem records every pyproject.toml encountered during the walk.
func (l *PythonLoader) ProcessIndexItem(dir, basename string) {
	if basename != "pyproject.toml" {
		return
	}
	l.manifestPaths = append(l.manifestPaths, joinRepoPath(dir, basename))
}

type pyprojectManifest struct {
	Project struct {
		Name         string   `toml:"name"`
		Version      string   `toml:"version"`
		Dynamic      []string `toml:"dynamic"`
		Dependencies []string `toml:"dependencies"`
	} `toml:"project"`
}

// Finalize parses recorded manifests and registers one project per named
// package. Requirement strings are reduced to their distribution name for
// internal-edge resolution.
func (l *PythonLoader) Finalize(g *projgraph.Graph, root string, cfg *config.File, log *logging.Logger) error {
	for _, repoPath := range l.manifestPaths {
		fsPath := filepath.Join(root, filepath.FromSlash(repoPath))

		data, err := os.ReadFile(fsPath)
		if err != nil {
			return fmt.Errorf("failed to read pyproject.toml %q: %w", fsPath, err)
		}

		var manifest pyprojectManifest
		if err := toml.Unmarshal(data, &manifest); err != nil {
			log.Warn("skipping malformed pyproject.toml", "path", repoPath, "error", err)
			continue
		}
		if manifest.Project.Name == "" {
			log.Debug("skipping pyproject.toml without [project]", "path", repoPath)
			continue
		}
		if slices.Contains(manifest.Project.Dynamic, "version") {
			log.Warn("skipping pyproject.toml with dynamic version", "path", repoPath)
			continue
		}

		id, ok := g.TryAddProject([]string{manifest.Project.Name, l.Ecosystem()}, cfg)
		if !ok {
			continue
		}

		proj := g.Lookup(id)
		proj.Version = parseVersionOrDefault(manifest.Project.Version, "0.0.0", repoPath, log)
		proj.Prefix = prefixOf(repoPath)
		for _, req := range manifest.Project.Dependencies {
			if name := requirementName(req); name != "" {
				proj.DepNames = append(proj.DepNames, name)
			}
		}
		proj.Rewriters = append(proj.Rewriters, &pyprojectRewriter{projID: id, repoPath: repoPath})
	}
	return nil
}

// requirementName strips a PEP 508 requirement string down to its
// distribution name: everything before the first version, extras, or
// environment-marker character.
func requirementName(req string) string {
	req = strings.TrimSpace(req)
	if i := strings.IndexAny(req, " <>=!~;[("); i >= 0 {
		req = req[:i]
	}
	return req
}

// pyprojectRewriter rewrites the version field inside the [project] table.
type pyprojectRewriter struct {
	projID   projgraph.ProjectId
	repoPath string
}

func (r *pyprojectRewriter) Rewrite(ws projgraph.Workspace, changes *gitrepo.ChangeList) error {
	fsPath := ws.ResolveWorkdir(r.repoPath)
	newVersion := ws.Graph().Lookup(r.projID).Version.String()

	data, err := os.ReadFile(fsPath)
	if err != nil {
		return fmt.Errorf("failed to read pyproject.toml %q: %w", fsPath, err)
	}

	lines := strings.Split(string(data), "\n")
	inProject := false
	replaced := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[") {
			inProject = trimmed == "[project]"
			continue
		}
		if !inProject || replaced {
			continue
		}
		if key, _, ok := splitTomlAssignment(trimmed); ok && key == "version" {
			indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
			lines[i] = fmt.Sprintf("%sversion = %q", indent, newVersion)
			replaced = true
		}
	}

	if !replaced {
		return fmt.Errorf("no version field found in [project] of %q", r.repoPath)
	}

	if err := atomicWriteFile(fsPath, []byte(strings.Join(lines, "\n"))); err != nil {
		return err
	}
	changes.Add(r.repoPath)
	return nil
}
