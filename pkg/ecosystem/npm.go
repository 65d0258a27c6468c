// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ecosystem

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/AleutianAI/shipyard/pkg/config"
	"github.com/AleutianAI/shipyard/pkg/gitrepo"
	"github.com/AleutianAI/shipyard/pkg/logging"
	"github.com/AleutianAI/shipyard/pkg/projgraph"
)

// NpmLoader discovers JavaScript packages from package.json manifests.
type NpmLoader struct {
	manifestPaths []string
}

// NewNpmLoader returns an empty NpmLoader.
func NewNpmLoader() *NpmLoader {
	return &NpmLoader{}
}

// Ecosystem returns "npm".
func (l *NpmLoader) Ecosystem() string { return "npm" }

// ProcessIndexItem records every package.json encountered during the walk.
// node_modules trees are excluded by the session's walk, not here.
func (l *NpmLoader) ProcessIndexItem(dir, basename string) {
	if basename != "package.json" {
		return
	}
	l.manifestPaths = append(l.manifestPaths, joinRepoPath(dir, basename))
}

type npmManifest struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Private         bool              `json:"private"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// Finalize parses recorded manifests and registers one project per named
// package. Nameless manifests (lockfile fragments, tooling stubs) are
// skipped. All declared dependency names are recorded; resolution drops
// names that match no registered project.
func (l *NpmLoader) Finalize(g *projgraph.Graph, root string, cfg *config.File, log *logging.Logger) error {
	for _, repoPath := range l.manifestPaths {
		fsPath := filepath.Join(root, filepath.FromSlash(repoPath))

		data, err := os.ReadFile(fsPath)
		if err != nil {
			return fmt.Errorf("failed to read package.json %q: %w", fsPath, err)
		}

		var manifest npmManifest
		if err := json.Unmarshal(data, &manifest); err != nil {
			log.Warn("skipping malformed package.json", "path", repoPath, "error", err)
			continue
		}
		if manifest.Name == "" {
			log.Debug("skipping package.json without a name", "path", repoPath)
			continue
		}

		id, ok := g.TryAddProject([]string{manifest.Name, l.Ecosystem()}, cfg)
		if !ok {
			continue
		}

		proj := g.Lookup(id)
		proj.Version = parseVersionOrDefault(manifest.Version, "0.0.0", repoPath, log)
		proj.Prefix = prefixOf(repoPath)
		for dep := range manifest.Dependencies {
			proj.DepNames = append(proj.DepNames, dep)
		}
		for dep := range manifest.DevDependencies {
			proj.DepNames = append(proj.DepNames, dep)
		}
		proj.Rewriters = append(proj.Rewriters, &npmRewriter{projID: id, repoPath: repoPath})
	}
	return nil
}

// npmVersionLine matches the top-level version assignment. JSON field order
// and formatting are author-controlled, so the rewrite is line-based to
// keep every other byte intact.
var npmVersionLine = regexp.MustCompile(`^(\s*"version"\s*:\s*")[^"]*(".*)$`)

type npmRewriter struct {
	projID   projgraph.ProjectId
	repoPath string
}

func (r *npmRewriter) Rewrite(ws projgraph.Workspace, changes *gitrepo.ChangeList) error {
	fsPath := ws.ResolveWorkdir(r.repoPath)
	newVersion := ws.Graph().Lookup(r.projID).Version.String()

	data, err := os.ReadFile(fsPath)
	if err != nil {
		return fmt.Errorf("failed to read package.json %q: %w", fsPath, err)
	}

	lines := strings.Split(string(data), "\n")
	replaced := false
	for i, line := range lines {
		if !npmVersionLine.MatchString(line) {
			continue
		}
		lines[i] = npmVersionLine.ReplaceAllString(line, "${1}"+newVersion+"${2}")
		replaced = true
		break
	}

	if !replaced {
		return fmt.Errorf("no version field found in %q", r.repoPath)
	}

	if err := atomicWriteFile(fsPath, []byte(strings.Join(lines, "\n"))); err != nil {
		return err
	}
	changes.Add(r.repoPath)
	return nil
}
