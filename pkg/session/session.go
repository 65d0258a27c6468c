// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session orchestrates one release-engine invocation against one
// repository: discovery, history analysis, bump application, manifest
// rewriting, and full release preparation.
//
// A Session is built fresh per invocation and never cached. Discovery runs
// a single walk of the working tree, feeding every file to every ecosystem
// loader; loaders are finalized serially in a fixed order so project ids
// are deterministic for a given tree.
package session

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/shipyard/pkg/analyzer"
	"github.com/AleutianAI/shipyard/pkg/changelog"
	"github.com/AleutianAI/shipyard/pkg/config"
	"github.com/AleutianAI/shipyard/pkg/ecosystem"
	"github.com/AleutianAI/shipyard/pkg/gitrepo"
	"github.com/AleutianAI/shipyard/pkg/logging"
	"github.com/AleutianAI/shipyard/pkg/manifest"
	"github.com/AleutianAI/shipyard/pkg/projgraph"
	"github.com/AleutianAI/shipyard/pkg/version"
)

// skipDirs are directory names never descended into during discovery.
// Dependency trees would otherwise register thousands of vendored
// manifests as projects.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"target":       true,
	"vendor":       true,
	"_build":       true,
	"deps":         true,
}

// Session is the per-invocation application state.
type Session struct {
	// Repo is the Git working copy the session operates on.
	Repo *gitrepo.Repository

	// Config is the loaded per-repository configuration.
	Config *config.File

	graph    *projgraph.Graph
	analyzer *analyzer.Analyzer
	log      *logging.Logger
}

// New builds a session rooted at the repository containing dir.
//
// It opens the repository, loads configuration, discovers projects with
// every registered ecosystem loader, resolves internal dependency edges,
// and verifies up front that the graph is acyclic. A cyclic graph has no
// defined release order, so it fails here rather than midway through a
// release.
func New(dir string, log *logging.Logger) (*Session, error) {
	repo, err := gitrepo.Open(dir)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(filepath.Join(repo.Root(), filepath.FromSlash(config.Path)))
	if err != nil {
		return nil, err
	}
	if cfg.Legacy {
		log.Warn("configuration uses the legacy top-level schema; run `shipyard init --force` to migrate",
			"path", config.Path)
	}

	s := &Session{
		Repo:     repo,
		Config:   cfg,
		graph:    projgraph.New(),
		analyzer: analyzer.New(),
		log:      log,
	}

	if err := s.discover(); err != nil {
		return nil, err
	}

	s.graph.ResolveInternalDeps()

	if _, err := s.graph.Toposorted(); err != nil {
		return nil, err
	}

	return s, nil
}

// discover walks the working tree once, feeding every file to every loader,
// then finalizes the loaders serially.
func (s *Session) discover() error {
	loaders := ecosystem.DefaultLoaders()
	root := s.Repo.Root()

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
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
		for _, loader := range loaders {
			loader.ProcessIndexItem(dir, d.Name())
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk repository tree: %w", err)
	}

	for _, loader := range loaders {
		if err := loader.Finalize(s.graph, root, s.Config, s.log); err != nil {
			return fmt.Errorf("failed to finalize %s discovery: %w", loader.Ecosystem(), err)
		}
	}

	s.log.Debug("project discovery complete", "projects", s.graph.Len())
	return nil
}

// Graph returns the project graph.
func (s *Session) Graph() *projgraph.Graph {
	return s.graph
}

// ResolveWorkdir joins a repository-relative path onto the working
// directory root, satisfying projgraph.Workspace.
func (s *Session) ResolveWorkdir(repoRelPath string) string {
	return s.Repo.ResolveWorkdir(repoRelPath)
}

var _ projgraph.Workspace = (*Session)(nil)

// =============================================================================
// History analysis
// =============================================================================

// History is one project's pending commits since its last release tag.
type History struct {
	Commits []gitrepo.CommitInfo
}

// Messages returns the commit messages in walk order (newest first).
func (h History) Messages() []string {
	out := make([]string, len(h.Commits))
	for i, c := range h.Commits {
		out[i] = c.Summary
	}
	return out
}

// Histories maps project ids to their pending history.
type Histories map[projgraph.ProjectId]History

// Lookup returns a project's history; missing entries are empty.
func (h Histories) Lookup(id projgraph.ProjectId) History {
	return h[id]
}

// HasPending reports whether a project has commits since its last
// release. Usable directly as a projgraph.Query.HasChanges predicate.
func (h Histories) HasPending(id projgraph.ProjectId) bool {
	return len(h[id].Commits) > 0
}

// AnalyzeHistories walks repository history once per project, collecting
// the commits attributable to each project since its last release tag.
//
// Attribution is by path prefix: a commit counts when it touches a file
// under the project's prefix. The root project (empty prefix) excludes
// paths under any other project's prefix, so sub-project work does not
// leak into root history. When the scope attribution strategy is
// configured, a commit whose conventional-commit scope maps to a project
// is reassigned to that project regardless of paths.
//
// Must be called before bumps are applied: the last-release tag name is
// derived from each project's current version.
func (s *Session) AnalyzeHistories() (Histories, error) {
	allPrefixes := make([]string, 0, s.graph.Len())
	for _, id := range s.graph.Ids() {
		if p := s.graph.Lookup(id).Prefix; p != "" {
			allPrefixes = append(allPrefixes, p)
		}
	}

	histories := Histories{}
	for _, id := range s.graph.Ids() {
		proj := s.graph.Lookup(id)

		var exclude []string
		if proj.Prefix == "" {
			exclude = allPrefixes
		}

		sinceTag := gitrepo.ReleaseTagName(
			s.Config.Repo.ReleaseTagNameFormat, proj.Prefix, proj.Version.String())

		commits, err := s.Repo.CommitsForProject(proj.Prefix, exclude, sinceTag)
		if err != nil {
			return nil, fmt.Errorf("failed to analyze history of %s: %w", proj.Name(), err)
		}
		histories[id] = History{Commits: commits}
	}

	if s.Config.CommitAttribution.Strategy == config.AttributeScope {
		s.reattributeByScope(histories)
	}

	return histories, nil
}

// reattributeByScope moves commits whose conventional-commit scope maps to
// a configured project out of their path-attributed history and into the
// mapped project's history. Commits without a recognized scope keep their
// path attribution.
func (s *Session) reattributeByScope(histories Histories) {
	byName := map[string]projgraph.ProjectId{}
	for _, id := range s.graph.Ids() {
		byName[s.graph.Lookup(id).Name()] = id
	}

	for id, history := range histories {
		kept := history.Commits[:0]
		for _, commit := range history.Commits {
			scope := s.analyzer.ParseScope(commit.Summary)
			targetName := s.scopeTarget(scope)
			targetID, known := byName[targetName]
			if targetName == "" || !known || targetID == id {
				kept = append(kept, commit)
				continue
			}
			target := histories[targetID]
			target.Commits = append(target.Commits, commit)
			histories[targetID] = target
		}
		histories[id] = History{Commits: kept}
	}
}

// scopeTarget resolves a commit scope to a project name via the configured
// scope map, or "" when the scope is empty or unmapped.
func (s *Session) scopeTarget(scope string) string {
	if scope == "" {
		return ""
	}
	attribution := s.Config.CommitAttribution
	if attribution.ScopeMatchMode == "prefix" {
		for key, project := range attribution.Scopes {
			if strings.HasPrefix(scope, key) {
				return project
			}
		}
		return ""
	}
	return attribution.Scopes[scope]
}

// =============================================================================
// Bump application
// =============================================================================

// BumpPlan describes which projects get which bumps.
type BumpPlan struct {
	// Global is the scheme applied to every project with pending commits.
	// BumpAuto resolves per project through commit analysis; BumpManual
	// applies only explicitly planned projects.
	Global version.BumpScheme

	// PerProject overrides Global for the named projects. A project named
	// here is bumped even when it has no pending commits.
	PerProject map[string]version.BumpScheme
}

// BumpResult records one applied bump.
type BumpResult struct {
	Id         projgraph.ProjectId
	Name       string
	Ecosystem  string
	Prefix     string
	OldVersion version.Version
	NewVersion version.Version
	Scheme     version.BumpScheme
	Commits    []gitrepo.CommitInfo
}

// ApplyBumps applies the plan to every project, in dependency order.
//
// Precedence: an explicit per-project scheme always overrides the global
// scheme. Projects without pending commits are skipped unless explicitly
// planned; an auto resolution of "none" skips the project.
func (s *Session) ApplyBumps(plan BumpPlan, histories Histories) ([]BumpResult, error) {
	order, err := s.graph.Toposorted()
	if err != nil {
		return nil, err
	}

	var results []BumpResult
	for _, id := range order {
		proj := s.graph.Lookup(id)
		history := histories.Lookup(id)

		scheme, explicit := plan.PerProject[proj.Name()]
		if !explicit {
			scheme = plan.Global
		}

		if !explicit {
			if len(history.Commits) == 0 {
				s.log.Info("no changes since last release, skipping", "project", proj.Name())
				continue
			}
			if scheme == version.BumpManual {
				s.log.Info("no explicit bump specified, skipping",
					"project", proj.Name(), "commits", len(history.Commits))
				continue
			}
		}

		if scheme == version.BumpAuto {
			analysis := s.analyzer.AnalyzeCommitMessages(history.Messages())
			s.log.Info(analysis.Summary(), "project", proj.Name())
			if analysis.Recommendation == analyzer.RecommendNone {
				s.log.Info("no version bump needed based on conventional commits",
					"project", proj.Name())
				continue
			}
			scheme, err = version.ParseBumpScheme(analysis.Recommendation.String())
			if err != nil {
				return nil, fmt.Errorf("internal: unusable recommendation for %s: %w", proj.Name(), err)
			}
		}

		oldVersion := proj.Version
		newVersion, err := scheme.Apply(oldVersion)
		if err != nil {
			return nil, fmt.Errorf("failed to apply version bump to %s: %w", proj.Name(), err)
		}
		proj.Version = newVersion

		s.log.Info("version bumped",
			"project", proj.Name(),
			"from", oldVersion.String(),
			"to", newVersion.String(),
			"scheme", scheme.String(),
			"commits", len(history.Commits))

		results = append(results, BumpResult{
			Id:         id,
			Name:       proj.Name(),
			Ecosystem:  proj.Ecosystem(),
			Prefix:     proj.Prefix,
			OldVersion: oldVersion,
			NewVersion: newVersion,
			Scheme:     scheme,
			Commits:    history.Commits,
		})
	}

	return results, nil
}

// =============================================================================
// Write-back
// =============================================================================

// Rewrite runs every project's rewriters in dependency order and returns
// the accumulated change list. The first failing rewriter aborts the pass.
func (s *Session) Rewrite() (*gitrepo.ChangeList, error) {
	order, err := s.graph.Toposorted()
	if err != nil {
		return nil, err
	}

	changes := gitrepo.NewChangeList()
	for _, id := range order {
		proj := s.graph.Lookup(id)
		for _, rewriter := range proj.Rewriters {
			if err := rewriter.Rewrite(s, changes); err != nil {
				return nil, fmt.Errorf("failed to rewrite manifest of %s: %w", proj.Name(), err)
			}
		}
	}
	return changes, nil
}

// =============================================================================
// Release preparation
// =============================================================================

// ChangelogPolisher optionally refines a draft changelog section. A failed
// polish is never fatal; the draft is used instead.
type ChangelogPolisher interface {
	Polish(draft string, commitMessages []string) (string, error)
}

// PrepareOptions configures PrepareRelease.
type PrepareOptions struct {
	// Plan selects which projects get which bumps. Nil means bump every
	// changed project per its conventional commits.
	Plan *BumpPlan

	// CreatedBy is recorded in the release manifest ("github-actions",
	// a username).
	CreatedBy string

	// SigningSecret signs the release manifest when non-empty. Secrets
	// shorter than manifest.MinSecretLength are accepted with a warning.
	SigningSecret string

	// Polisher optionally refines changelog sections.
	Polisher ChangelogPolisher
}

// PreparedRelease is PrepareRelease's record of one released project.
type PreparedRelease struct {
	BumpResult

	// TagName is the release tag created for the project.
	TagName string

	// ChangelogSection is the project's new changelog section, "" when the
	// project had no user-facing changes.
	ChangelogSection string
}

// PrepareResult summarizes a completed release preparation.
type PrepareResult struct {
	Releases []PreparedRelease

	// ManifestPath is the repository-relative path of the signed manifest.
	ManifestPath string

	// CommitMessage is the release commit's message.
	CommitMessage string

	// ChangedPaths are all repository-relative paths in the release commit.
	ChangedPaths []string
}

// PrepareRelease runs the fully automated release path: analyze, bump via
// conventional commits, rewrite manifests, generate changelogs, write the
// signed release manifest, create the release commit, then create all
// release tags.
//
// The working tree must be clean: this path creates a commit, and mixing
// unrelated modifications into a release commit would be unrecoverable.
// Returns a result with no releases (and no error) when nothing needs
// releasing.
func (s *Session) PrepareRelease(opts PrepareOptions) (*PrepareResult, error) {
	if dirty, err := s.Repo.CheckIfDirty(nil); err != nil {
		return nil, fmt.Errorf("failed to check repository for modified files: %w", err)
	} else if dirty != "" {
		return nil, fmt.Errorf("release preparation requires a clean working directory; found uncommitted changes (e.g. %q)", dirty)
	}

	histories, err := s.AnalyzeHistories()
	if err != nil {
		return nil, err
	}

	plan := BumpPlan{Global: version.BumpAuto}
	if opts.Plan != nil {
		plan = *opts.Plan
	}

	results, err := s.ApplyBumps(plan, histories)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return &PrepareResult{}, nil
	}

	changes, err := s.Rewrite()
	if err != nil {
		return nil, fmt.Errorf("failed to update project files: %w", err)
	}

	releases := make([]PreparedRelease, 0, len(results))
	for _, result := range results {
		section, err := s.writeChangelog(result, changes, opts.Polisher)
		if err != nil {
			return nil, err
		}
		releases = append(releases, PreparedRelease{
			BumpResult: result,
			TagName: gitrepo.ReleaseTagName(
				s.Config.Repo.ReleaseTagNameFormat, result.Prefix, result.NewVersion.String()),
			ChangelogSection: section,
		})
	}

	manifestRelPath, err := s.writeManifest(releases, opts, changes)
	if err != nil {
		return nil, err
	}

	message := releaseCommitMessage(releases)
	if err := s.Repo.CreateCommit(message, changes.Paths()); err != nil {
		return nil, fmt.Errorf("failed to create release commit: %w", err)
	}

	tagNames := make([]string, len(releases))
	for i, release := range releases {
		tagNames[i] = release.TagName
	}
	if err := s.Repo.CreateReleaseTags(tagNames); err != nil {
		return nil, fmt.Errorf("failed to create release tags: %w", err)
	}
	for _, name := range tagNames {
		s.log.Info("created release tag", "tag", name)
	}

	return &PrepareResult{
		Releases:      releases,
		ManifestPath:  manifestRelPath,
		CommitMessage: message,
		ChangedPaths:  changes.Paths(),
	}, nil
}

// writeChangelog renders and persists one project's changelog, returning
// the new section, or "" when the project had no user-facing changes.
func (s *Session) writeChangelog(result BumpResult, changes *gitrepo.ChangeList, polisher ChangelogPolisher) (string, error) {
	history := History{Commits: result.Commits}
	categorized := s.analyzer.CategorizeCommits(history.Messages())
	if len(categorized) == 0 {
		s.log.Info("no user-facing changes, skipping changelog", "project", result.Name)
		return "", nil
	}

	entry := changelog.NewEntry(result.NewVersion.String())
	entry.AddCommits(categorized)
	section := entry.Markdown()

	if polisher != nil {
		polished, err := polisher.Polish(section, history.Messages())
		switch {
		case err != nil:
			s.log.Warn("changelog polish failed, using draft",
				"project", result.Name, "error", err)
		case strings.HasPrefix(polished, "## ["):
			section = polished
		default:
			s.log.Warn("polished changelog is malformed, using draft", "project", result.Name)
		}
	}

	relPath := "CHANGELOG.md"
	if result.Prefix != "" {
		relPath = result.Prefix + "/CHANGELOG.md"
	}
	fsPath := s.ResolveWorkdir(relPath)

	existing := ""
	if data, err := os.ReadFile(fsPath); err == nil {
		existing = string(data)
	}

	content := changelog.GenerateWithSection(result.Name, result.NewVersion.String(), section, existing)

	if err := os.MkdirAll(filepath.Dir(fsPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create changelog directory for %s: %w", result.Name, err)
	}
	if err := os.WriteFile(fsPath, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write changelog for %s: %w", result.Name, err)
	}

	changes.Add(relPath)
	s.log.Info("wrote changelog", "project", result.Name, "path", relPath)
	return section, nil
}

// writeManifest builds, signs, and persists the release manifest, adding
// its path to the change list so it rides along in the release commit.
func (s *Session) writeManifest(releases []PreparedRelease, opts PrepareOptions, changes *gitrepo.ChangeList) (string, error) {
	branch, err := s.Repo.CurrentBranch()
	if err != nil {
		return "", err
	}

	m := manifest.New(branch, opts.CreatedBy)
	for _, release := range releases {
		m.AddRelease(manifest.NewProjectRelease(
			release.Name,
			release.Ecosystem,
			release.OldVersion.String(),
			release.NewVersion.String(),
			release.Scheme.String(),
			release.ChangelogSection,
			release.Prefix,
			s.Config.Repo.ReleaseTagNameFormat,
		))
	}

	if opts.SigningSecret != "" {
		if weak := m.Sign(opts.SigningSecret); weak {
			s.log.Warn("manifest signing secret is shorter than recommended",
				"min_bytes", manifest.MinSecretLength)
		}
	} else {
		s.log.Warn("no signing secret configured; release manifest will be unsigned")
	}

	relPath := manifest.Dir + "/" + manifest.GenerateFilename()
	if err := m.SaveToFile(s.ResolveWorkdir(relPath)); err != nil {
		return "", err
	}

	changes.Add(relPath)
	s.log.Info("wrote release manifest", "path", relPath, "signed", opts.SigningSecret != "")
	return relPath, nil
}

// releaseCommitMessage renders the release commit message: a single
// project gets a "chore(release): NAME vVER" subject with a bump line in
// the body; multiple projects get a count subject with one line each.
func releaseCommitMessage(releases []PreparedRelease) string {
	if len(releases) == 1 {
		r := releases[0]
		return fmt.Sprintf("chore(release): %s v%s\n\nBump %s from %s to %s",
			r.Name, r.NewVersion, r.Name, r.OldVersion, r.NewVersion)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "chore(release): release %d packages\n\n", len(releases))
	for _, r := range releases {
		fmt.Fprintf(&b, "- %s: %s -> %s\n", r.Name, r.OldVersion, r.NewVersion)
	}
	return b.String()
}
