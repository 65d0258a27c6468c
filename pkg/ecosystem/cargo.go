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

	"github.com/pelletier/go-toml/v2"

	"github.com/AleutianAI/shipyard/pkg/config"
	"github.com/AleutianAI/shipyard/pkg/gitrepo"
	"github.com/AleutianAI/shipyard/pkg/logging"
	"github.com/AleutianAI/shipyard/pkg/projgraph"
	"github.com/AleutianAI/shipyard/pkg/version"
)

// CargoLoader discovers Rust crates from Cargo.toml manifests.
type CargoLoader struct {
	manifestPaths []string
}

// NewCargoLoader returns an empty CargoLoader.
func NewCargoLoader() *CargoLoader {
	return &CargoLoader{}
}

// Ecosystem returns "cargo".
func (l *CargoLoader) Ecosystem() string { return "cargo" }

// ProcessIndexItem records every Cargo.toml encountered during the walk.
func (l *CargoLoader) ProcessIndexItem(dir, basename string) {
	if basename != "Cargo.toml" {
		return
	}
	l.manifestPaths = append(l.manifestPaths, joinRepoPath(dir, basename))
}

// cargoManifest is the subset of Cargo.toml discovery cares about.
type cargoManifest struct {
	Package struct {
		Name    string `toml:"name"`
		Version string `toml:"version"`
	} `toml:"package"`
	Dependencies      map[string]any `toml:"dependencies"`
	DevDependencies   map[string]any `toml:"dev-dependencies"`
	BuildDependencies map[string]any `toml:"build-dependencies"`
}

// Finalize parses recorded manifests and registers one project per crate.
// Workspace-only manifests (no [package] table) are skipped. Path
// dependencies are recorded as candidate internal edges.
func (l *CargoLoader) Finalize(g *projgraph.Graph, root string, cfg *config.File, log *logging.Logger) error {
	for _, repoPath := range l.manifestPaths {
		fsPath := filepath.Join(root, filepath.FromSlash(repoPath))

		data, err := os.ReadFile(fsPath)
		if err != nil {
			return fmt.Errorf("failed to read Cargo.toml %q: %w", fsPath, err)
		}

		var manifest cargoManifest
		if err := toml.Unmarshal(data, &manifest); err != nil {
			log.Warn("skipping malformed Cargo.toml", "path", repoPath, "error", err)
			continue
		}
		if manifest.Package.Name == "" {
			log.Debug("skipping Cargo.toml without [package]", "path", repoPath)
			continue
		}

		id, ok := g.TryAddProject([]string{manifest.Package.Name, l.Ecosystem()}, cfg)
		if !ok {
			continue
		}

		proj := g.Lookup(id)
		proj.Version = parseVersionOrDefault(manifest.Package.Version, "0.0.0", repoPath, log)
		proj.Prefix = prefixOf(repoPath)
		proj.DepNames = cargoPathDeps(manifest)
		proj.Rewriters = append(proj.Rewriters, &cargoRewriter{projID: id, repoPath: repoPath})
	}
	return nil
}

// cargoPathDeps collects names of dependencies declared with a path key.
// Registry dependencies are external and never become graph edges.
func cargoPathDeps(m cargoManifest) []string {
	var names []string
	for _, section := range []map[string]any{m.Dependencies, m.DevDependencies, m.BuildDependencies} {
		for name, spec := range section {
			table, ok := spec.(map[string]any)
			if !ok {
				continue
			}
			if _, hasPath := table["path"]; hasPath {
				names = append(names, name)
			}
		}
	}
	return names
}

// cargoRewriter rewrites the version field inside the [package] table.
type cargoRewriter struct {
	projID   projgraph.ProjectId
	repoPath string
}

func (r *cargoRewriter) Rewrite(ws projgraph.Workspace, changes *gitrepo.ChangeList) error {
	fsPath := ws.ResolveWorkdir(r.repoPath)
	newVersion := ws.Graph().Lookup(r.projID).Version.String()

	data, err := os.ReadFile(fsPath)
	if err != nil {
		return fmt.Errorf("failed to read Cargo.toml %q: %w", fsPath, err)
	}

	lines := strings.Split(string(data), "\n")
	inPackage := false
	replaced := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[") {
			inPackage = trimmed == "[package]"
			continue
		}
		if !inPackage || replaced {
			continue
		}
		if key, _, ok := splitTomlAssignment(trimmed); ok && key == "version" {
			indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
			lines[i] = fmt.Sprintf("%sversion = %q", indent, newVersion)
			replaced = true
		}
	}

	if !replaced {
		return fmt.Errorf("no version field found in [package] of %q", r.repoPath)
	}

	if err := atomicWriteFile(fsPath, []byte(strings.Join(lines, "\n"))); err != nil {
		return err
	}
	changes.Add(r.repoPath)
	return nil
}

// splitTomlAssignment splits "key = value" on the first equals sign.
func splitTomlAssignment(line string) (key, value string, ok bool) {
	eq := strings.Index(line, "=")
	if eq < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:eq]), strings.TrimSpace(line[eq+1:]), true
}

// parseVersionOrDefault parses a manifest version, falling back to def with
// a warning when the field is missing or unparseable.
func parseVersionOrDefault(raw, def, repoPath string, log *logging.Logger) version.Version {
	if raw == "" {
		raw = def
	}
	v, err := version.Parse(raw)
	if err != nil {
		log.Warn("failed to parse manifest version, using default",
			"path", repoPath, "version", raw, "default", def)
		v, _ = version.Parse(def)
	}
	return v
}
