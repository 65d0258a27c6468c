// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/shipyard/pkg/config"
	"github.com/AleutianAI/shipyard/pkg/projgraph"
	"github.com/AleutianAI/shipyard/pkg/version"
)

// sampleGraph builds core <- app with versions and prefixes filled in.
func sampleGraph(t *testing.T) *projgraph.Graph {
	t.Helper()
	g := projgraph.New()
	cfg := config.Default()

	coreID, ok := g.TryAddProject([]string{"acme-core", "cargo"}, cfg)
	require.True(t, ok)
	core := g.Lookup(coreID)
	core.Version = version.New(1, 0, 0)
	core.Prefix = "crates/core"

	appID, ok := g.TryAddProject([]string{"acme-app", "cargo"}, cfg)
	require.True(t, ok)
	app := g.Lookup(appID)
	app.Version = version.New(0, 3, 0)
	app.Prefix = "crates/app"
	app.DepNames = []string{"acme-core", "serde"}

	g.ResolveInternalDeps()
	return g
}

func TestRenderGraphText(t *testing.T) {
	out, err := renderGraph(sampleGraph(t), "text")
	require.NoError(t, err)

	assert.Contains(t, out, "acme-core @ 1.0.0 [cargo]\n")
	assert.Contains(t, out, "acme-app @ 0.3.0 [cargo] -> acme-core\n")
	// External dependencies never show up as edges.
	assert.NotContains(t, out, "serde")
}

func TestRenderGraphJSON(t *testing.T) {
	out, err := renderGraph(sampleGraph(t), "json")
	require.NoError(t, err)

	var nodes []graphNode
	require.NoError(t, json.Unmarshal([]byte(out), &nodes))
	require.Len(t, nodes, 2)
	assert.Equal(t, "acme-core", nodes[0].Name)
	assert.Equal(t, "crates/core", nodes[0].Prefix)
	assert.Empty(t, nodes[0].DependsOn)
	assert.Equal(t, []string{"acme-core"}, nodes[1].DependsOn)
}

func TestRenderGraphYAML(t *testing.T) {
	out, err := renderGraph(sampleGraph(t), "yaml")
	require.NoError(t, err)

	var nodes []graphNode
	require.NoError(t, yaml.Unmarshal([]byte(out), &nodes))
	require.Len(t, nodes, 2)
	assert.Equal(t, "acme-app", nodes[1].Name)
	assert.Equal(t, "0.3.0", nodes[1].Version)
}

func TestRenderGraphOrdersDependenciesFirst(t *testing.T) {
	nodes, err := graphNodes(sampleGraph(t))
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "acme-core", nodes[0].Name)
	assert.Equal(t, "acme-app", nodes[1].Name)
}

func TestRenderGraphUnknownFormat(t *testing.T) {
	_, err := renderGraph(sampleGraph(t), "xml")
	assert.ErrorContains(t, err, "unknown graph format")
}
