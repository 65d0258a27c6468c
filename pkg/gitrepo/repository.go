// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gitrepo isolates all Git state queries and mutations behind a
// narrow interface consumed by the release session.
//
// The release engine never shells out to the git binary; everything goes
// through go-git so that tests can run against throwaway repositories
// created in a temp directory.
package gitrepo

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

// ErrNoUpstream is returned when no upstream remote can be identified.
var ErrNoUpstream = errors.New("no upstream remote configured")

// ErrTagExists is returned by CreateReleaseTags when any tag in the batch
// already exists. No tags are created in that case.
var ErrTagExists = errors.New("release tag already exists")

// DefaultTagNameFormat is the tag template used when the repository
// configuration does not override it.
const DefaultTagNameFormat = "{prefix}/v{version}"

// CommitInfo is a minimal view of one commit in a project's pending history.
type CommitInfo struct {
	// Hash is the full hex commit id.
	Hash string

	// Summary is the first line of the commit message.
	Summary string
}

// Repository wraps one Git working copy.
//
// All paths exchanged with callers are repository-relative and use forward
// slashes, matching Git's own path representation.
type Repository struct {
	repo *git.Repository
	root string
}

// Open discovers the Git repository containing dir.
//
// The search walks upward like `git status` does, so the engine can be
// invoked from any subdirectory of the monorepo.
func Open(dir string) (*Repository, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("not inside a Git working directory (searched from %q): %w", dir, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("repository has no working directory: %w", err)
	}

	return &Repository{repo: repo, root: wt.Filesystem.Root()}, nil
}

// Root returns the absolute path of the working directory root.
func (r *Repository) Root() string {
	return r.root
}

// ResolveWorkdir joins a repository-relative path onto the working
// directory root. Pure path arithmetic; no existence check.
func (r *Repository) ResolveWorkdir(repoRelPath string) string {
	return filepath.Join(r.root, filepath.FromSlash(repoRelPath))
}

// CheckIfDirty reports whether the working tree has uncommitted changes
// outside the ignored path prefixes.
//
// It returns one offending repository-relative path as a hint for the user,
// or "" when the tree is clean. Interactive callers treat a hint as a
// warning; CI mode treats it as a hard precondition failure.
func (r *Repository) CheckIfDirty(ignorePrefixes []string) (string, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("failed to access worktree: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return "", fmt.Errorf("failed to compute worktree status: %w", err)
	}

	for path, st := range status {
		if st.Worktree == git.Unmodified && st.Staging == git.Unmodified {
			continue
		}
		ignored := false
		for _, prefix := range ignorePrefixes {
			if strings.HasPrefix(path, prefix) {
				ignored = true
				break
			}
		}
		if !ignored {
			return path, nil
		}
	}

	return "", nil
}

// CurrentBranch returns the short name of the checked-out branch, or
// "detached-head" when HEAD does not point at a branch.
func (r *Repository) CurrentBranch() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return "detached-head", nil
	}
	return head.Name().Short(), nil
}

// CommitSummary returns the one-line summary of a commit.
func (r *Repository) CommitSummary(hash string) (string, error) {
	commit, err := r.repo.CommitObject(plumbing.NewHash(hash))
	if err != nil {
		return "", fmt.Errorf("failed to load commit %s: %w", hash, err)
	}
	return summaryOf(commit), nil
}

// CommitsForProject walks history from HEAD back to the project's last
// release tag (or to the repository root when the tag does not exist yet)
// and returns the commits attributable to the project.
//
// A commit is attributed when it touches a path under prefix. For a root
// project (empty prefix), paths under any of excludePrefixes are not
// counted, so root-project history is not polluted by sub-project work.
// The full commit message is returned in Summary's place for the first
// line plus any body, so breaking-change footers survive analysis.
func (r *Repository) CommitsForProject(prefix string, excludePrefixes []string, sinceTag string) ([]CommitInfo, error) {
	head, err := r.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve HEAD: %w", err)
	}

	var stopAt plumbing.Hash
	if sinceTag != "" {
		if h, err := r.resolveTagCommit(sinceTag); err == nil {
			stopAt = h
		}
		// A missing tag just means the project has never been released;
		// the walk covers all history in that case.
	}

	iter, err := r.repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("failed to walk commit history: %w", err)
	}
	defer iter.Close()

	var commits []CommitInfo
	err = iter.ForEach(func(c *object.Commit) error {
		if stopAt != plumbing.ZeroHash && c.Hash == stopAt {
			return storer.ErrStop
		}

		touches, err := commitTouchesPrefix(c, prefix, excludePrefixes)
		if err != nil {
			// Stats can fail on exotic objects; treat as not attributable
			// rather than aborting the whole analysis.
			return nil
		}
		if touches {
			commits = append(commits, CommitInfo{
				Hash:    c.Hash.String(),
				Summary: strings.TrimSpace(c.Message),
			})
		}
		return nil
	})
	if err != nil && !errors.Is(err, storer.ErrStop) {
		return nil, fmt.Errorf("failed to walk commit history: %w", err)
	}

	return commits, nil
}

// CreateCommit stages exactly the given repository-relative paths and
// creates a commit. There is no implicit `add -A`.
func (r *Repository) CreateCommit(message string, paths []string) error {
	if len(paths) == 0 {
		return errors.New("refusing to create a commit with no staged paths")
	}

	wt, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to access worktree: %w", err)
	}

	for _, p := range paths {
		if _, err := wt.Add(p); err != nil {
			return fmt.Errorf("failed to stage %q: %w", p, err)
		}
	}

	_, err = wt.Commit(message, &git.CommitOptions{
		Author: r.signature(),
	})
	if err != nil {
		return fmt.Errorf("failed to create commit: %w", err)
	}
	return nil
}

// CreateReleaseTags creates one lightweight tag per name, pointing at HEAD.
//
// The batch is all-or-nothing from the caller's perspective: every tag name
// is checked for existence before any tag is created, so a collision fails
// the whole prepare step instead of leaving a partially-tagged release.
func (r *Repository) CreateReleaseTags(names []string) error {
	head, err := r.repo.Head()
	if err != nil {
		return fmt.Errorf("failed to resolve HEAD: %w", err)
	}

	for _, name := range names {
		if _, err := r.repo.Tag(name); err == nil {
			return fmt.Errorf("%w: %s", ErrTagExists, name)
		}
	}

	for _, name := range names {
		if _, err := r.repo.CreateTag(name, head.Hash(), nil); err != nil {
			return fmt.Errorf("failed to create tag %q: %w", name, err)
		}
	}
	return nil
}

// Push sends the current branch and all tags to the named remote
// ("origin" when empty), using whatever credentials the environment
// provides. Already-up-to-date is not an error.
func (r *Repository) Push(remoteName string) error {
	if remoteName == "" {
		remoteName = "origin"
	}

	err := r.repo.Push(&git.PushOptions{RemoteName: remoteName})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to push commits to %q: %w", remoteName, err)
	}

	err = r.repo.Push(&git.PushOptions{
		RemoteName: remoteName,
		RefSpecs:   []gitconfig.RefSpec{"refs/tags/*:refs/tags/*"},
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to push tags to %q: %w", remoteName, err)
	}
	return nil
}

// TagExists reports whether a tag with the given name exists.
func (r *Repository) TagExists(name string) bool {
	_, err := r.repo.Tag(name)
	return err == nil
}

// UpstreamURL returns the URL of the upstream remote.
//
// When candidateURLs is non-empty, a remote carrying one of those URLs is
// preferred; otherwise the remote named "origin" is used. The returned URL
// is never parsed here; deriving an owner/repo slug is the forge
// collaborator's business.
func (r *Repository) UpstreamURL(candidateURLs []string) (string, error) {
	remotes, err := r.repo.Remotes()
	if err != nil {
		return "", fmt.Errorf("failed to list remotes: %w", err)
	}

	for _, remote := range remotes {
		for _, url := range remote.Config().URLs {
			for _, candidate := range candidateURLs {
				if url == candidate {
					return url, nil
				}
			}
		}
	}

	for _, remote := range remotes {
		if remote.Config().Name == "origin" && len(remote.Config().URLs) > 0 {
			return remote.Config().URLs[0], nil
		}
	}

	return "", ErrNoUpstream
}

// ReleaseTagName renders the tag name for a project release.
//
// The format string supports {prefix} and {version} placeholders. With the
// default format a root project (empty prefix) yields "v{version}" rather
// than "/v{version}".
func ReleaseTagName(format, prefix, version string) string {
	if format == "" {
		format = DefaultTagNameFormat
	}
	if prefix == "" {
		// Strip the prefix placeholder together with its joining
		// punctuation so root projects get a bare "v1.2.3" tag.
		format = strings.ReplaceAll(format, "{prefix}/", "")
		format = strings.ReplaceAll(format, "{prefix}-", "")
		format = strings.ReplaceAll(format, "{prefix}", "")
	} else {
		format = strings.ReplaceAll(format, "{prefix}", prefix)
	}
	return strings.ReplaceAll(format, "{version}", version)
}

// resolveTagCommit resolves a tag name to the commit it points at,
// peeling annotated tags.
func (r *Repository) resolveTagCommit(name string) (plumbing.Hash, error) {
	ref, err := r.repo.Tag(name)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	if tagObj, err := r.repo.TagObject(ref.Hash()); err == nil {
		commit, err := tagObj.Commit()
		if err != nil {
			return plumbing.ZeroHash, err
		}
		return commit.Hash, nil
	}

	return ref.Hash(), nil
}

// signature builds the committer identity, falling back to a fixed bot
// identity when the repository has no user configured.
func (r *Repository) signature() *object.Signature {
	name := "shipyard"
	email := "shipyard@aleutian.ai"

	if cfg, err := r.repo.ConfigScoped(gitconfig.GlobalScope); err == nil {
		if cfg.User.Name != "" {
			name = cfg.User.Name
		}
		if cfg.User.Email != "" {
			email = cfg.User.Email
		}
	}

	return &object.Signature{Name: name, Email: email, When: time.Now()}
}

func summaryOf(c *object.Commit) string {
	msg := strings.TrimSpace(c.Message)
	if idx := strings.IndexByte(msg, '\n'); idx >= 0 {
		return strings.TrimSpace(msg[:idx])
	}
	return msg
}

// commitTouchesPrefix reports whether the commit modified any path under
// prefix. For an empty prefix it matches any path outside excludePrefixes.
func commitTouchesPrefix(c *object.Commit, prefix string, excludePrefixes []string) (bool, error) {
	stats, err := c.Stats()
	if err != nil {
		return false, err
	}

	for _, stat := range stats {
		path := stat.Name
		if prefix == "" {
			excluded := false
			for _, ex := range excludePrefixes {
				if ex != "" && strings.HasPrefix(path, ex+"/") {
					excluded = true
					break
				}
			}
			if !excluded {
				return true, nil
			}
			continue
		}
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true, nil
		}
	}
	return false, nil
}
