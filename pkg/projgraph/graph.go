// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package projgraph owns the discovered project nodes, their internal
// dependency edges, and the ordering and lookup queries the release
// session asks of them.
//
// The graph is rebuilt fresh on every invocation; nodes are created during
// discovery, mutated only through bump application, and never destroyed
// while the graph lives.
package projgraph

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/AleutianAI/shipyard/pkg/config"
	"github.com/AleutianAI/shipyard/pkg/gitrepo"
	"github.com/AleutianAI/shipyard/pkg/version"
)

// ErrCycle is returned by Toposorted when the dependency graph contains a
// cycle. A cycle is a configuration error: the graph has no defined release
// order, so the whole operation must fail rather than silently truncating.
var ErrCycle = errors.New("dependency cycle detected")

// ProjectId is an opaque, stable handle for a project node.
//
// Ids are indices into the owning graph's node storage. They are only ever
// obtained from that graph instance, are never reused within a session, and
// are invalid once the graph is dropped.
type ProjectId int

// Workspace is the view of the session a Rewriter needs: path resolution
// and read access to the graph's in-memory state.
type Workspace interface {
	// ResolveWorkdir joins a repository-relative path onto the working
	// directory root.
	ResolveWorkdir(repoRelPath string) string

	// Graph returns the project graph owning the rewriter's project.
	Graph() *Graph
}

// Rewriter mutates one manifest file so its declared version matches the
// owning project's current in-memory version.
//
// Implementations must write atomically (temp file + rename in the same
// directory) and must record the touched repository-relative path in the
// ChangeList even when the content did not change.
type Rewriter interface {
	Rewrite(ws Workspace, changes *gitrepo.ChangeList) error
}

// Project is one released unit discovered in the repository.
type Project struct {
	// QualifiedNames disambiguates same-named packages across ecosystems;
	// by convention it is [package-name, ecosystem-tag].
	QualifiedNames []string

	// Version is the project's current (possibly already bumped)
	// in-memory version.
	Version version.Version

	// Prefix is the repository-relative directory the project lives
	// under, using forward slashes. Empty for a root project.
	Prefix string

	// InternalDeps references other projects in the same graph that this
	// project depends on.
	InternalDeps []ProjectId

	// Rewriters are invoked in order during the write-back pass.
	Rewriters []Rewriter

	// DepNames holds raw dependency names recorded by the loader; they
	// are matched against registered projects by ResolveInternalDeps and
	// have no meaning afterwards.
	DepNames []string
}

// Name returns the user-facing project name (the first qualified name).
func (p *Project) Name() string {
	if len(p.QualifiedNames) == 0 {
		return ""
	}
	return p.QualifiedNames[0]
}

// Ecosystem returns the ecosystem tag (the second qualified name), or ""
// for a project registered without one.
func (p *Project) Ecosystem() string {
	if len(p.QualifiedNames) < 2 {
		return ""
	}
	return p.QualifiedNames[1]
}

// fullyQualifiedKey is the identity key used for duplicate detection.
func fullyQualifiedKey(qnames []string) string {
	return strings.Join(qnames, ":")
}

// Graph owns all project nodes and their dependency edges.
type Graph struct {
	nodes []*Project
	byKey map[string]ProjectId
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{byKey: map[string]ProjectId{}}
}

// TryAddProject registers a new project unless its fully-qualified name is
// already present (idempotent re-discovery) or the project is marked
// ignored in the per-repository configuration. It returns the new id and
// true, or an invalid id and false in either skip case.
func (g *Graph) TryAddProject(qnames []string, cfg *config.File) (ProjectId, bool) {
	key := fullyQualifiedKey(qnames)
	if _, exists := g.byKey[key]; exists {
		return -1, false
	}

	name := qnames[0]
	eco := ""
	if len(qnames) > 1 {
		eco = qnames[1]
	}
	if cfg != nil && cfg.ProjectFor(name, eco).Ignore {
		return -1, false
	}

	id := ProjectId(len(g.nodes))
	g.nodes = append(g.nodes, &Project{QualifiedNames: qnames})
	g.byKey[key] = id
	return id, true
}

// Len returns the number of registered projects.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Lookup returns the project for an id.
//
// An invalid id is a programmer error, not a user error (ids are only ever
// obtained from this graph instance), so Lookup panics rather than
// returning an error.
func (g *Graph) Lookup(id ProjectId) *Project {
	if id < 0 || int(id) >= len(g.nodes) {
		panic(fmt.Sprintf("projgraph: lookup of invalid project id %d (graph has %d nodes)", id, len(g.nodes)))
	}
	return g.nodes[id]
}

// Ids returns all project ids in discovery order.
func (g *Graph) Ids() []ProjectId {
	ids := make([]ProjectId, len(g.nodes))
	for i := range g.nodes {
		ids[i] = ProjectId(i)
	}
	return ids
}

// ResolveInternalDeps matches every project's recorded dependency names
// against registered project names and materializes the dependency edges.
//
// A dependency name matches a project when it equals the project's
// user-facing name; names that match no project are external dependencies
// and are dropped. Self-references are ignored.
func (g *Graph) ResolveInternalDeps() {
	byName := map[string]ProjectId{}
	for i, p := range g.nodes {
		byName[p.Name()] = ProjectId(i)
	}

	for i, p := range g.nodes {
		for _, dep := range p.DepNames {
			target, ok := byName[dep]
			if !ok || target == ProjectId(i) {
				continue
			}
			already := false
			for _, existing := range p.InternalDeps {
				if existing == target {
					already = true
					break
				}
			}
			if !already {
				p.InternalDeps = append(p.InternalDeps, target)
			}
		}
		p.DepNames = nil
	}
}

// Dependents returns the ids of projects that depend on id, computed by
// scanning all nodes. Dependency edges are stored forward only; this keeps
// a single invariant and the scan is cheap at monorepo scale.
func (g *Graph) Dependents(id ProjectId) []ProjectId {
	var out []ProjectId
	for i, p := range g.nodes {
		for _, dep := range p.InternalDeps {
			if dep == id {
				out = append(out, ProjectId(i))
				break
			}
		}
	}
	return out
}

// =============================================================================
// Queries
// =============================================================================

// Query filters projects. The zero value matches everything.
type Query struct {
	// Ecosystem restricts results to one ecosystem tag.
	Ecosystem string

	// NameGlob restricts results to names matching a path.Match pattern.
	NameGlob string

	// HasChanges, when non-nil, restricts results to projects the
	// predicate reports as having pending history since their last
	// release. The graph itself knows nothing about Git; callers pass
	// their history lookup here.
	HasChanges func(ProjectId) bool
}

// Select returns matching project ids in discovery order (not dependency
// order).
func (g *Graph) Select(q Query) ([]ProjectId, error) {
	var out []ProjectId
	for i, p := range g.nodes {
		if q.Ecosystem != "" && p.Ecosystem() != q.Ecosystem {
			continue
		}
		if q.NameGlob != "" {
			ok, err := path.Match(q.NameGlob, p.Name())
			if err != nil {
				return nil, fmt.Errorf("invalid name glob %q: %w", q.NameGlob, err)
			}
			if !ok {
				continue
			}
		}
		if q.HasChanges != nil && !q.HasChanges(ProjectId(i)) {
			continue
		}
		out = append(out, ProjectId(i))
	}
	return out, nil
}

// =============================================================================
// Topological ordering
// =============================================================================

// DFS colors for cycle detection.
const (
	colorWhite = iota // unvisited
	colorGray         // on the current DFS stack
	colorBlack        // finished
)

// Toposorted returns all project ids ordered so that for every edge
// "A depends on B", B appears strictly before A. Independent nodes keep
// discovery order, which is deterministic given a fixed directory walk.
//
// A cycle fails the whole operation with ErrCycle naming the projects
// involved.
func (g *Graph) Toposorted() ([]ProjectId, error) {
	colors := make([]int, len(g.nodes))
	order := make([]ProjectId, 0, len(g.nodes))

	var visit func(id ProjectId, stack []ProjectId) error
	visit = func(id ProjectId, stack []ProjectId) error {
		switch colors[id] {
		case colorBlack:
			return nil
		case colorGray:
			return fmt.Errorf("%w: %s", ErrCycle, g.describeCycle(append(stack, id), id))
		}

		colors[id] = colorGray
		for _, dep := range g.nodes[id].InternalDeps {
			if err := visit(dep, append(stack, id)); err != nil {
				return err
			}
		}
		colors[id] = colorBlack
		order = append(order, id)
		return nil
	}

	for i := range g.nodes {
		if err := visit(ProjectId(i), nil); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// describeCycle renders the portion of the DFS stack that forms the cycle.
func (g *Graph) describeCycle(stack []ProjectId, repeated ProjectId) string {
	start := 0
	for i, id := range stack {
		if id == repeated {
			start = i
			break
		}
	}
	names := make([]string, 0, len(stack)-start)
	for _, id := range stack[start:] {
		names = append(names, g.nodes[id].Name())
	}
	return strings.Join(names, " -> ")
}
