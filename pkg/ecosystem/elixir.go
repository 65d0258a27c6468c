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
	"strings"

	"github.com/AleutianAI/shipyard/pkg/config"
	"github.com/AleutianAI/shipyard/pkg/gitrepo"
	"github.com/AleutianAI/shipyard/pkg/logging"
	"github.com/AleutianAI/shipyard/pkg/projgraph"
)

// ElixirLoader discovers Elixir applications from mix.exs files.
//
// mix.exs is Elixir source, not a data format, so extraction is line-based:
// the `app: :name` atom and the `version: "x.y.z"` string literal from the
// project keyword list. Projects that compute their version at runtime are
// not supported and fall back to 0.1.0.
type ElixirLoader struct {
	manifestPaths []string
}

// NewElixirLoader returns an empty ElixirLoader.
func NewElixirLoader() *ElixirLoader {
	return &ElixirLoader{}
}

// Ecosystem returns "elixir".
func (l *ElixirLoader) Ecosystem() string { return "elixir" }

// ProcessIndexItem records every mix.exs encountered during the walk.
func (l *ElixirLoader) ProcessIndexItem(dir, basename string) {
	if basename != "mix.exs" {
		return
	}
	l.manifestPaths = append(l.manifestPaths, joinRepoPath(dir, basename))
}

// Finalize parses recorded mix.exs files and registers one project per
// application. Path dependencies (`{:dep, path: "..."}`) are recorded as
// candidate internal edges.
func (l *ElixirLoader) Finalize(g *projgraph.Graph, root string, cfg *config.File, log *logging.Logger) error {
	for _, repoPath := range l.manifestPaths {
		fsPath := filepath.Join(root, filepath.FromSlash(repoPath))

		data, err := os.ReadFile(fsPath)
		if err != nil {
			return fmt.Errorf("failed to read mix.exs %q: %w", fsPath, err)
		}
		contents := string(data)

		appName := extractMixAppName(contents)
		if appName == "" {
			log.Warn("skipping mix.exs without an app declaration", "path", repoPath)
			continue
		}

		rawVersion := extractMixVersion(contents)
		if rawVersion == "" {
			rawVersion = "0.1.0"
		}

		id, ok := g.TryAddProject([]string{appName, l.Ecosystem()}, cfg)
		if !ok {
			continue
		}

		proj := g.Lookup(id)
		proj.Version = parseVersionOrDefault(rawVersion, "0.1.0", repoPath, log)
		proj.Prefix = prefixOf(repoPath)
		proj.DepNames = append(proj.DepNames, extractMixPathDeps(contents)...)
		proj.Rewriters = append(proj.Rewriters, &mixExsRewriter{projID: id, repoPath: repoPath})
	}
	return nil
}

// extractMixAppName finds the `app: :name` entry and returns the atom name.
func extractMixAppName(contents string) string {
	for _, line := range strings.Split(contents, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "app:") {
			continue
		}
		value := strings.TrimSpace(trimmed[len("app:"):])
		if atom, ok := strings.CutPrefix(value, ":"); ok {
			return strings.TrimSpace(strings.TrimSuffix(atom, ","))
		}
	}
	return ""
}

// extractMixVersion finds the `version: "x.y.z"` entry and returns the
// string literal, or "" when absent.
func extractMixVersion(contents string) string {
	for _, line := range strings.Split(contents, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "version:") {
			continue
		}
		value := strings.TrimSpace(trimmed[len("version:"):])
		if rest, ok := strings.CutPrefix(value, `"`); ok {
			if end := strings.Index(rest, `"`); end >= 0 {
				return rest[:end]
			}
		}
	}
	return ""
}

// extractMixPathDeps finds dependency tuples declared with a path option
// and returns the dependency atom names.
func extractMixPathDeps(contents string) []string {
	var names []string
	for _, line := range strings.Split(contents, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "{:") || !strings.Contains(trimmed, "path:") {
			continue
		}
		rest := trimmed[len("{:"):]
		if end := strings.IndexAny(rest, ", }"); end > 0 {
			names = append(names, rest[:end])
		}
	}
	return names
}

// mixExsRewriter rewrites the version string literal in the project
// keyword list.
type mixExsRewriter struct {
	projID   projgraph.ProjectId
	repoPath string
}

func (r *mixExsRewriter) Rewrite(ws projgraph.Workspace, changes *gitrepo.ChangeList) error {
	fsPath := ws.ResolveWorkdir(r.repoPath)
	newVersion := ws.Graph().Lookup(r.projID).Version.String()

	data, err := os.ReadFile(fsPath)
	if err != nil {
		return fmt.Errorf("failed to read mix.exs %q: %w", fsPath, err)
	}

	lines := strings.Split(string(data), "\n")
	replaced := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "version:") || replaced {
			continue
		}
		indent := line[:strings.Index(line, "version:")]
		lines[i] = fmt.Sprintf("%sversion: %q,", indent, newVersion)
		replaced = true
	}

	if !replaced {
		return fmt.Errorf("no version entry found in %q", r.repoPath)
	}

	if err := atomicWriteFile(fsPath, []byte(strings.Join(lines, "\n"))); err != nil {
		return err
	}
	changes.Add(r.repoPath)
	return nil
}
