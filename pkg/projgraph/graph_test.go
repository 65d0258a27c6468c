// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package projgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/shipyard/pkg/config"
)

func addProject(t *testing.T, g *Graph, name, eco string, deps ...string) ProjectId {
	t.Helper()
	id, ok := g.TryAddProject([]string{name, eco}, nil)
	require.True(t, ok, "project %s should register", name)
	g.Lookup(id).DepNames = deps
	return id
}

func names(g *Graph, ids []ProjectId) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.Lookup(id).Name())
	}
	return out
}

func TestTryAddProjectDuplicateIsIdempotent(t *testing.T) {
	g := New()

	id, ok := g.TryAddProject([]string{"core", "cargo"}, nil)
	require.True(t, ok)
	assert.Equal(t, ProjectId(0), id)

	_, ok = g.TryAddProject([]string{"core", "cargo"}, nil)
	assert.False(t, ok, "re-discovery of the same identity must be skipped")

	// Same name in another ecosystem is a distinct identity.
	_, ok = g.TryAddProject([]string{"core", "npm"}, nil)
	assert.True(t, ok)

	assert.Equal(t, 2, g.Len())
}

func TestTryAddProjectHonorsIgnoreConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Projects["vendored-thing"] = config.ProjectConfig{Ignore: true}

	g := New()
	_, ok := g.TryAddProject([]string{"vendored-thing", "npm"}, cfg)
	assert.False(t, ok)
	assert.Equal(t, 0, g.Len())
}

func TestLookupPanicsOnInvalidId(t *testing.T) {
	g := New()
	assert.Panics(t, func() { g.Lookup(0) })
	assert.Panics(t, func() { g.Lookup(-1) })
}

func TestResolveInternalDeps(t *testing.T) {
	g := New()
	common := addProject(t, g, "common", "cargo")
	app := addProject(t, g, "app", "cargo", "common", "serde", "common")

	g.ResolveInternalDeps()

	appProj := g.Lookup(app)
	// External deps dropped, duplicate edge collapsed.
	assert.Equal(t, []ProjectId{common}, appProj.InternalDeps)
	assert.Nil(t, appProj.DepNames)
}

func TestToposortedDependencyOrdering(t *testing.T) {
	// Deliberately discover the dependent first.
	g := New()
	addProject(t, g, "app", "cargo", "common")
	addProject(t, g, "common", "cargo")
	g.ResolveInternalDeps()

	order, err := g.Toposorted()
	require.NoError(t, err)
	assert.Equal(t, []string{"common", "app"}, names(g, order))
}

func TestToposortedChain(t *testing.T) {
	g := New()
	addProject(t, g, "cli", "go", "api")
	addProject(t, g, "api", "go", "core")
	addProject(t, g, "core", "go")
	addProject(t, g, "docs-site", "npm")
	g.ResolveInternalDeps()

	order, err := g.Toposorted()
	require.NoError(t, err)

	got := names(g, order)
	pos := map[string]int{}
	for i, n := range got {
		pos[n] = i
	}
	assert.Less(t, pos["core"], pos["api"])
	assert.Less(t, pos["api"], pos["cli"])
	assert.Len(t, got, 4)
}

func TestToposortedIndependentNodesKeepDiscoveryOrder(t *testing.T) {
	g := New()
	addProject(t, g, "alpha", "npm")
	addProject(t, g, "beta", "npm")
	addProject(t, g, "gamma", "npm")
	g.ResolveInternalDeps()

	order, err := g.Toposorted()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, names(g, order))
}

func TestToposortedDetectsCycle(t *testing.T) {
	g := New()
	addProject(t, g, "a", "cargo", "b")
	addProject(t, g, "b", "cargo", "c")
	addProject(t, g, "c", "cargo", "a")
	g.ResolveInternalDeps()

	_, err := g.Toposorted()
	require.ErrorIs(t, err, ErrCycle)
	// The error names the projects involved.
	assert.Contains(t, err.Error(), "a")
	assert.Contains(t, err.Error(), "b")
	assert.Contains(t, err.Error(), "c")
}

func TestDependents(t *testing.T) {
	g := New()
	common := addProject(t, g, "common", "cargo")
	app := addProject(t, g, "app", "cargo", "common")
	tool := addProject(t, g, "tool", "cargo", "common")
	addProject(t, g, "loner", "cargo")
	g.ResolveInternalDeps()

	assert.Equal(t, []ProjectId{app, tool}, g.Dependents(common))
	assert.Empty(t, g.Dependents(app))
}

func TestSelect(t *testing.T) {
	g := New()
	addProject(t, g, "core", "cargo")
	addProject(t, g, "core-web", "npm")
	addProject(t, g, "docs", "npm")
	g.ResolveInternalDeps()

	byEco, err := g.Select(Query{Ecosystem: "npm"})
	require.NoError(t, err)
	assert.Equal(t, []string{"core-web", "docs"}, names(g, byEco))

	byGlob, err := g.Select(Query{NameGlob: "core*"})
	require.NoError(t, err)
	assert.Equal(t, []string{"core", "core-web"}, names(g, byGlob))

	both, err := g.Select(Query{Ecosystem: "npm", NameGlob: "core*"})
	require.NoError(t, err)
	assert.Equal(t, []string{"core-web"}, names(g, both))

	_, err = g.Select(Query{NameGlob: "[bad"})
	assert.Error(t, err)
}

func TestSelectByPendingHistory(t *testing.T) {
	g := New()
	core := addProject(t, g, "core", "cargo")
	addProject(t, g, "core-web", "npm")
	docs := addProject(t, g, "docs", "npm")
	g.ResolveInternalDeps()

	pending := map[ProjectId]bool{core: true, docs: true}

	changed, err := g.Select(Query{HasChanges: func(id ProjectId) bool { return pending[id] }})
	require.NoError(t, err)
	assert.Equal(t, []string{"core", "docs"}, names(g, changed))

	combined, err := g.Select(Query{
		Ecosystem:  "npm",
		HasChanges: func(id ProjectId) bool { return pending[id] },
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"docs"}, names(g, combined))
}
