// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ecosystem

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/shipyard/pkg/gitrepo"
	"github.com/AleutianAI/shipyard/pkg/logging"
	"github.com/AleutianAI/shipyard/pkg/projgraph"
	"github.com/AleutianAI/shipyard/pkg/version"
)

// testWorkspace satisfies projgraph.Workspace for rewriter tests.
type testWorkspace struct {
	root  string
	graph *projgraph.Graph
}

func (w *testWorkspace) ResolveWorkdir(repoRelPath string) string {
	return filepath.Join(w.root, filepath.FromSlash(repoRelPath))
}

func (w *testWorkspace) Graph() *projgraph.Graph { return w.graph }

// writeFile creates a file (and parent dirs) under root.
func writeFile(t *testing.T, root, repoPath, content string) {
	t.Helper()
	fsPath := filepath.Join(root, filepath.FromSlash(repoPath))
	require.NoError(t, os.MkdirAll(filepath.Dir(fsPath), 0o755))
	require.NoError(t, os.WriteFile(fsPath, []byte(content), 0o644))
}

// discover walks root the way the session does and finalizes the loader.
func discover(t *testing.T, loader Loader, root string) *projgraph.Graph {
	t.Helper()
	g := projgraph.New()
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		dir := ""
		if i := strings.LastIndex(rel, "/"); i >= 0 {
			dir = rel[:i]
		}
		loader.ProcessIndexItem(dir, filepath.Base(path))
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, loader.Finalize(g, root, nil, logging.Discard()))
	return g
}

// setVersion overwrites a project's in-memory version.
func setVersion(t *testing.T, g *projgraph.Graph, id projgraph.ProjectId, v string) {
	t.Helper()
	parsed, err := version.Parse(v)
	require.NoError(t, err)
	g.Lookup(id).Version = parsed
}

// =============================================================================
// Cargo
// =============================================================================

const sampleCargoToml = `[package]
name = "acme-core"
version = "1.2.3"
edition = "2021"

# Internal crates use path dependencies.
[dependencies]
acme-util = { path = "../util" }
serde = "1.0"

[dev-dependencies]
acme-testkit = { path = "../testkit", version = "0.3" }
`

func TestCargoLoaderDiscovery(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "crates/core/Cargo.toml", sampleCargoToml)

	g := discover(t, NewCargoLoader(), root)
	require.Equal(t, 1, g.Len())

	proj := g.Lookup(0)
	assert.Equal(t, "acme-core", proj.Name())
	assert.Equal(t, "cargo", proj.Ecosystem())
	assert.Equal(t, "1.2.3", proj.Version.String())
	assert.Equal(t, "crates/core", proj.Prefix)
	// Only path dependencies are candidates; serde is registry-only.
	assert.ElementsMatch(t, []string{"acme-util", "acme-testkit"}, proj.DepNames)
	require.Len(t, proj.Rewriters, 1)
}

func TestCargoLoaderSkipsWorkspaceManifest(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Cargo.toml", "[workspace]\nmembers = [\"crates/*\"]\n")

	g := discover(t, NewCargoLoader(), root)
	assert.Equal(t, 0, g.Len())
}

func TestCargoRewritePreservesEverythingElse(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "crates/core/Cargo.toml", sampleCargoToml)

	g := discover(t, NewCargoLoader(), root)
	setVersion(t, g, 0, "2.0.0")

	ws := &testWorkspace{root: root, graph: g}
	changes := gitrepo.NewChangeList()
	require.NoError(t, g.Lookup(0).Rewriters[0].Rewrite(ws, changes))

	data, err := os.ReadFile(filepath.Join(root, "crates/core/Cargo.toml"))
	require.NoError(t, err)
	got := string(data)

	assert.Contains(t, got, `version = "2.0.0"`)
	assert.NotContains(t, got, "1.2.3")
	// The dev-dependency's version constraint is untouched; only the
	// [package] version changes.
	assert.Contains(t, got, `version = "0.3"`)
	assert.Contains(t, got, "# Internal crates use path dependencies.")
	assert.Contains(t, got, `edition = "2021"`)
	assert.Equal(t, []string{"crates/core/Cargo.toml"}, changes.Paths())
}

func TestCargoRewriteFailsWhenVersionLineGone(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Cargo.toml", "[package]\nname = \"x\"\nversion = \"1.0.0\"\n")

	g := discover(t, NewCargoLoader(), root)
	setVersion(t, g, 0, "1.0.1")

	// Simulate an external edit between discovery and write-back.
	writeFile(t, root, "Cargo.toml", "[package]\nname = \"x\"\n")

	ws := &testWorkspace{root: root, graph: g}
	err := g.Lookup(0).Rewriters[0].Rewrite(ws, gitrepo.NewChangeList())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no version field")
}

// =============================================================================
// Npm
// =============================================================================

const samplePackageJSON = `{
  "name": "@acme/cli",
  "version": "0.4.1",
  "private": true,
  "dependencies": {
    "@acme/core": "workspace:*",
    "yargs": "^17.0.0"
  },
  "devDependencies": {
    "@acme/testkit": "workspace:*"
  }
}
`

func TestNpmLoaderDiscovery(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "packages/cli/package.json", samplePackageJSON)

	g := discover(t, NewNpmLoader(), root)
	require.Equal(t, 1, g.Len())

	proj := g.Lookup(0)
	assert.Equal(t, "@acme/cli", proj.Name())
	assert.Equal(t, "npm", proj.Ecosystem())
	assert.Equal(t, "0.4.1", proj.Version.String())
	assert.Equal(t, "packages/cli", proj.Prefix)
	assert.ElementsMatch(t, []string{"@acme/core", "yargs", "@acme/testkit"}, proj.DepNames)
}

func TestNpmLoaderSkipsNamelessManifest(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "package.json", `{"version": "1.0.0"}`)

	g := discover(t, NewNpmLoader(), root)
	assert.Equal(t, 0, g.Len())
}

func TestNpmRewrite(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "packages/cli/package.json", samplePackageJSON)

	g := discover(t, NewNpmLoader(), root)
	setVersion(t, g, 0, "0.5.0")

	ws := &testWorkspace{root: root, graph: g}
	changes := gitrepo.NewChangeList()
	require.NoError(t, g.Lookup(0).Rewriters[0].Rewrite(ws, changes))

	data, err := os.ReadFile(filepath.Join(root, "packages/cli/package.json"))
	require.NoError(t, err)
	got := string(data)

	assert.Contains(t, got, `"version": "0.5.0",`)
	assert.NotContains(t, got, "0.4.1")
	// Dependency ranges and formatting survive untouched.
	assert.Contains(t, got, `"yargs": "^17.0.0"`)
	assert.Contains(t, got, `"private": true,`)
	assert.Equal(t, []string{"packages/cli/package.json"}, changes.Paths())
}

// =============================================================================
// Python
// =============================================================================

const samplePyproject = `[build-system]
requires = ["hatchling"]

[project]
name = "acme-py"
version = "3.1.4"
dependencies = [
    "acme-common>=1.0",
    "requests (>=2.31)",
    "pydantic[email]~=2.0",
]

[tool.ruff]
line-length = 100
`

func TestPythonLoaderDiscovery(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "py/acme/pyproject.toml", samplePyproject)

	g := discover(t, NewPythonLoader(), root)
	require.Equal(t, 1, g.Len())

	proj := g.Lookup(0)
	assert.Equal(t, "acme-py", proj.Name())
	assert.Equal(t, "python", proj.Ecosystem())
	assert.Equal(t, "3.1.4", proj.Version.String())
	assert.ElementsMatch(t, []string{"acme-common", "requests", "pydantic"}, proj.DepNames)
}

func TestPythonLoaderSkipsDynamicVersion(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "pyproject.toml", "[project]\nname = \"x\"\ndynamic = [\"version\"]\n")

	g := discover(t, NewPythonLoader(), root)
	assert.Equal(t, 0, g.Len())
}

func TestPythonRewriteOnlyTouchesProjectTable(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "py/acme/pyproject.toml", samplePyproject)

	g := discover(t, NewPythonLoader(), root)
	setVersion(t, g, 0, "3.2.0")

	ws := &testWorkspace{root: root, graph: g}
	changes := gitrepo.NewChangeList()
	require.NoError(t, g.Lookup(0).Rewriters[0].Rewrite(ws, changes))

	data, err := os.ReadFile(filepath.Join(root, "py/acme/pyproject.toml"))
	require.NoError(t, err)
	got := string(data)

	assert.Contains(t, got, `version = "3.2.0"`)
	assert.NotContains(t, got, "3.1.4")
	assert.Contains(t, got, "line-length = 100")
	assert.Equal(t, 1, changes.Len())
}

func TestRequirementName(t *testing.T) {
	tests := []struct {
		req  string
		want string
	}{
		{"acme-common>=1.0", "acme-common"},
		{"requests (>=2.31)", "requests"},
		{"pydantic[email]~=2.0", "pydantic"},
		{"plain", "plain"},
		{"  spaced >= 1 ", "spaced"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, requirementName(tt.req), tt.req)
	}
}

// =============================================================================
// Go
// =============================================================================

const sampleGoMod = `module example.com/acme/tool

go 1.22

require (
	example.com/acme/lib v0.3.0
	github.com/spf13/cobra v1.8.0
)
`

func TestGoLoaderDiscovery(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "tools/relmgr/go.mod", sampleGoMod)

	g := discover(t, NewGoLoader(), root)
	require.Equal(t, 1, g.Len())

	proj := g.Lookup(0)
	assert.Equal(t, "example.com/acme/tool", proj.Name())
	assert.Equal(t, "go", proj.Ecosystem())
	// Go modules carry no manifest version; the tag is the version.
	assert.Equal(t, "0.0.0", proj.Version.String())
	assert.ElementsMatch(t, []string{"example.com/acme/lib", "github.com/spf13/cobra"}, proj.DepNames)
}

func TestGoRewriteLeavesFileByteIdentical(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "go.mod", sampleGoMod)

	g := discover(t, NewGoLoader(), root)
	setVersion(t, g, 0, "1.0.0")

	ws := &testWorkspace{root: root, graph: g}
	changes := gitrepo.NewChangeList()
	require.NoError(t, g.Lookup(0).Rewriters[0].Rewrite(ws, changes))

	data, err := os.ReadFile(filepath.Join(root, "go.mod"))
	require.NoError(t, err)
	assert.Equal(t, sampleGoMod, string(data))
	// The path is still recorded for the release commit.
	assert.Equal(t, []string{"go.mod"}, changes.Paths())
}

// =============================================================================
// Elixir
// =============================================================================

const sampleMixExs = `defmodule AcmeWeb.MixProject do
  use Mix.Project

  def project do
    [
      app: :acme_web,
      version: "0.9.0",
      elixir: "~> 1.15",
      deps: deps()
    ]
  end

  defp deps do
    [
      {:acme_core, path: "../core"},
      {:phoenix, "~> 1.7"}
    ]
  end
end
`

func TestElixirLoaderDiscovery(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "apps/web/mix.exs", sampleMixExs)

	g := discover(t, NewElixirLoader(), root)
	require.Equal(t, 1, g.Len())

	proj := g.Lookup(0)
	assert.Equal(t, "acme_web", proj.Name())
	assert.Equal(t, "elixir", proj.Ecosystem())
	assert.Equal(t, "0.9.0", proj.Version.String())
	assert.Equal(t, []string{"acme_core"}, proj.DepNames)
}

func TestElixirVersionDefaultsWhenAbsent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "mix.exs", "defmodule X do\n  def project do\n    [app: :bare]\n  end\nend\n")

	g := discover(t, NewElixirLoader(), root)
	require.Equal(t, 1, g.Len())
	assert.Equal(t, "0.1.0", g.Lookup(0).Version.String())
}

func TestElixirRewrite(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "apps/web/mix.exs", sampleMixExs)

	g := discover(t, NewElixirLoader(), root)
	setVersion(t, g, 0, "1.0.0")

	ws := &testWorkspace{root: root, graph: g}
	changes := gitrepo.NewChangeList()
	require.NoError(t, g.Lookup(0).Rewriters[0].Rewrite(ws, changes))

	data, err := os.ReadFile(filepath.Join(root, "apps/web/mix.exs"))
	require.NoError(t, err)
	got := string(data)

	assert.Contains(t, got, `      version: "1.0.0",`)
	assert.NotContains(t, got, "0.9.0")
	assert.Contains(t, got, `{:phoenix, "~> 1.7"}`)
	assert.Equal(t, []string{"apps/web/mix.exs"}, changes.Paths())
}

func TestExtractMixHelpers(t *testing.T) {
	assert.Equal(t, "acme_web", extractMixAppName(sampleMixExs))
	assert.Equal(t, "0.9.0", extractMixVersion(sampleMixExs))
	assert.Equal(t, []string{"acme_core"}, extractMixPathDeps(sampleMixExs))

	assert.Equal(t, "", extractMixAppName("no app here"))
	assert.Equal(t, "", extractMixVersion("version: compute()"))
}

// =============================================================================
// Shared helpers
// =============================================================================

func TestDefaultLoadersCoverAllEcosystems(t *testing.T) {
	var tags []string
	for _, l := range DefaultLoaders() {
		tags = append(tags, l.Ecosystem())
	}
	assert.ElementsMatch(t, []string{"cargo", "npm", "python", "go", "elixir"}, tags)
}

func TestAtomicWriteFilePreservesMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o600))

	require.NoError(t, atomicWriteFile(path, []byte("new")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// No temp droppings left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAtomicWriteFileFailureLeavesOriginalIntact(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("directory permissions do not bind root")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "manifest")
	const original = "[package]\nname = \"x\"\nversion = \"1.0.0\"\n"
	require.NoError(t, os.WriteFile(path, []byte(original), 0o644))

	// A read-only directory makes the temp-file creation fail before the
	// target is ever touched.
	require.NoError(t, os.Chmod(dir, 0o555))
	t.Cleanup(func() { os.Chmod(dir, 0o755) })

	err := atomicWriteFile(path, []byte("replacement"))
	require.Error(t, err)

	require.NoError(t, os.Chmod(dir, 0o755))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, string(data))

	// No temp droppings either.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestJoinRepoPath(t *testing.T) {
	assert.Equal(t, "Cargo.toml", joinRepoPath("", "Cargo.toml"))
	assert.Equal(t, "crates/core/Cargo.toml", joinRepoPath("crates/core", "Cargo.toml"))
}

func TestPrefixOf(t *testing.T) {
	assert.Equal(t, "", prefixOf("Cargo.toml"))
	assert.Equal(t, "crates/core", prefixOf("crates/core/Cargo.toml"))
}
