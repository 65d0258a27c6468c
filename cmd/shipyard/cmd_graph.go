// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/shipyard/pkg/projgraph"
	"github.com/AleutianAI/shipyard/pkg/session"
)

// graphNode is the serialized form of one project in graph output.
type graphNode struct {
	Name      string   `json:"name" yaml:"name"`
	Ecosystem string   `json:"ecosystem" yaml:"ecosystem"`
	Version   string   `json:"version" yaml:"version"`
	Prefix    string   `json:"prefix" yaml:"prefix"`
	DependsOn []string `json:"depends_on" yaml:"depends_on"`
}

// runGraphCommand prints the internal dependency graph in the requested
// format, always in dependency order so the text form doubles as a
// release order preview.
func runGraphCommand(cmd *cobra.Command, args []string) error {
	sess, err := session.New(".", logger)
	if err != nil {
		return NewReleaseError("graph", "", 1, err)
	}
	defer logger.Close()

	out, err := renderGraph(sess.Graph(), graphFormat)
	if err != nil {
		return NewReleaseError("graph", "", 2, err)
	}
	fmt.Print(out)
	return nil
}

// renderGraph serializes the graph as text, json, or yaml.
func renderGraph(g *projgraph.Graph, format string) (string, error) {
	nodes, err := graphNodes(g)
	if err != nil {
		return "", err
	}

	switch format {
	case "text":
		var b strings.Builder
		for _, n := range nodes {
			fmt.Fprintf(&b, "%s @ %s [%s]", n.Name, n.Version, n.Ecosystem)
			if len(n.DependsOn) > 0 {
				fmt.Fprintf(&b, " -> %s", strings.Join(n.DependsOn, ", "))
			}
			b.WriteByte('\n')
		}
		return b.String(), nil
	case "json":
		data, err := json.MarshalIndent(nodes, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to encode graph as JSON: %w", err)
		}
		return string(data) + "\n", nil
	case "yaml":
		data, err := yaml.Marshal(nodes)
		if err != nil {
			return "", fmt.Errorf("failed to encode graph as YAML: %w", err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("unknown graph format %q (expected text, json, or yaml)", format)
	}
}

// graphNodes flattens the graph into serializable nodes in dependency
// order.
func graphNodes(g *projgraph.Graph) ([]graphNode, error) {
	order, err := g.Toposorted()
	if err != nil {
		return nil, err
	}

	nodes := make([]graphNode, 0, len(order))
	for _, id := range order {
		proj := g.Lookup(id)
		deps := make([]string, 0, len(proj.InternalDeps))
		for _, depID := range proj.InternalDeps {
			deps = append(deps, g.Lookup(depID).Name())
		}
		nodes = append(nodes, graphNode{
			Name:      proj.Name(),
			Ecosystem: proj.Ecosystem(),
			Version:   proj.Version.String(),
			Prefix:    proj.Prefix,
			DependsOn: deps,
		})
	}
	return nodes, nil
}
