// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the per-repository release configuration.
//
// Given the same input repository, shipyard should give reproducible results
// no matter who runs it, so all configuration lives at the repository level
// in a single TOML file at .shipyard/config.toml.
//
// Two schemas are accepted:
//
//   - The unified schema nests everything under a [release] table. This is
//     what `shipyard init` writes and what new repositories should use.
//   - The legacy schema puts [repo], [npm], and [projects.*] at the top
//     level. Legacy files are accepted read-only with a warning; they are
//     never migrated in place.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Path is the repository-relative location of the configuration file.
const Path = ".shipyard/config.toml"

// AttributionStrategy controls how commits are assigned to projects during
// history scoping.
type AttributionStrategy string

const (
	// AttributePathPrefix assigns a commit to a project when the commit
	// touches a path under the project's prefix. This is the default.
	AttributePathPrefix AttributionStrategy = "path-prefix"

	// AttributeScope assigns a commit to a project when the commit's
	// conventional-commit scope maps to the project, falling back to
	// path-prefix matching for commits without a recognized scope.
	AttributeScope AttributionStrategy = "scope"
)

// RepoConfig holds general per-repository settings.
type RepoConfig struct {
	// UpstreamURLs lists Git URLs the upstream remote might be using.
	// Used to recognize the upstream remote among several configured ones.
	UpstreamURLs []string `toml:"upstream_urls"`

	// ReleaseTagNameFormat is the template for release tag names.
	// Supported placeholders: {prefix} and {version}. When empty the
	// default "{prefix}/v{version}" is used ("v{version}" for a root
	// project with no prefix).
	ReleaseTagNameFormat string `toml:"release_tag_name_format"`
}

// AttributionConfig controls commit-to-project attribution.
type AttributionConfig struct {
	// Strategy selects the attribution mode.
	Strategy AttributionStrategy `toml:"strategy" validate:"omitempty,oneof=path-prefix scope"`

	// ScopeMatchMode is "exact" or "prefix"; it controls how commit scopes
	// are compared against the Scopes map keys.
	ScopeMatchMode string `toml:"scope_match_mode" validate:"omitempty,oneof=exact prefix"`

	// Scopes maps a conventional-commit scope label to a project name.
	Scopes map[string]string `toml:"scopes"`
}

// NpmProjectConfig carries npm-specific per-project overrides.
type NpmProjectConfig struct {
	// InternalDepProtocol is a custom resolution protocol for internal
	// dependencies; "workspace" is useful under Yarn workspaces.
	InternalDepProtocol string `toml:"internal_dep_protocol"`
}

// CargoProjectConfig carries cargo-specific per-project overrides.
type CargoProjectConfig struct {
	// PublishRegistry names an alternate registry for this crate.
	PublishRegistry string `toml:"publish_registry"`
}

// ProjectConfig holds per-project overrides, keyed in the Projects map by
// qualified project name.
//
// Whenever possible configuration should live in the project's own manifest
// to preserve locality; only settings that must be centralized belong here.
type ProjectConfig struct {
	// Ignore excludes this project if and when it is automatically
	// detected during the repository walk.
	Ignore bool `toml:"ignore"`

	// Npm holds npm-specific overrides.
	Npm NpmProjectConfig `toml:"npm"`

	// Cargo holds cargo-specific overrides.
	Cargo CargoProjectConfig `toml:"cargo"`
}

// ReleaseConfig is the [release] table of the unified schema.
type ReleaseConfig struct {
	Repo              RepoConfig               `toml:"repo"`
	CommitAttribution AttributionConfig        `toml:"commit_attribution"`
	Projects          map[string]ProjectConfig `toml:"projects"`
}

// File is the loaded, schema-normalized configuration.
type File struct {
	Repo              RepoConfig
	CommitAttribution AttributionConfig
	Projects          map[string]ProjectConfig

	// Legacy is true when the file used the pre-unified top-level schema.
	// Callers should warn the user; legacy files are accepted read-only.
	Legacy bool
}

// unifiedSyntax mirrors the on-disk unified schema.
type unifiedSyntax struct {
	Release *ReleaseConfig `toml:"release"`
}

// legacySyntax mirrors the on-disk legacy schema.
type legacySyntax struct {
	Repo              RepoConfig               `toml:"repo"`
	CommitAttribution AttributionConfig        `toml:"commit_attribution"`
	Projects          map[string]ProjectConfig `toml:"projects"`
}

// Default returns the configuration used when no file exists.
func Default() *File {
	return &File{
		Projects: map[string]ProjectConfig{},
	}
}

// Load reads the configuration file at path.
//
// A missing file is not an error: the defaults are returned, matching the
// behavior of running in a repository that has never been initialized.
// A present-but-malformed file is an error, because silently ignoring it
// would make releases unreproducible.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to open config file %q: %w", path, err)
	}

	cfg, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("could not parse config file %q: %w", path, err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config file %q: %w", path, err)
	}

	return cfg, nil
}

func parse(data []byte) (*File, error) {
	// Unified schema first.
	var unified unifiedSyntax
	if err := toml.Unmarshal(data, &unified); err == nil && unified.Release != nil {
		f := &File{
			Repo:              unified.Release.Repo,
			CommitAttribution: unified.Release.CommitAttribution,
			Projects:          unified.Release.Projects,
		}
		if f.Projects == nil {
			f.Projects = map[string]ProjectConfig{}
		}
		return f, nil
	}

	// Legacy fallback.
	var legacy legacySyntax
	if err := toml.Unmarshal(data, &legacy); err != nil {
		return nil, err
	}

	f := &File{
		Repo:              legacy.Repo,
		CommitAttribution: legacy.CommitAttribution,
		Projects:          legacy.Projects,
		Legacy:            true,
	}
	if f.Projects == nil {
		f.Projects = map[string]ProjectConfig{}
	}
	return f, nil
}

func validate(f *File) error {
	v := validator.New()
	if err := v.Struct(f.CommitAttribution); err != nil {
		return err
	}
	if f.CommitAttribution.Strategy == AttributeScope && len(f.CommitAttribution.Scopes) == 0 {
		return fmt.Errorf("commit_attribution.strategy is %q but no scopes are mapped", AttributeScope)
	}
	return nil
}

// Marshal renders the configuration in the unified schema.
func (f *File) Marshal() ([]byte, error) {
	unified := unifiedSyntax{
		Release: &ReleaseConfig{
			Repo:              f.Repo,
			CommitAttribution: f.CommitAttribution,
			Projects:          f.Projects,
		},
	}
	out, err := toml.Marshal(unified)
	if err != nil {
		return nil, fmt.Errorf("could not serialize configuration into TOML: %w", err)
	}
	return out, nil
}

// Write persists the configuration at path in the unified schema, creating
// parent directories as needed.
func (f *File) Write(path string) error {
	out, err := f.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("failed to write config file %q: %w", path, err)
	}
	return nil
}

// ProjectFor returns the per-project configuration for a project, trying
// the fully qualified "name:ecosystem" key first and the bare name second.
func (f *File) ProjectFor(name, ecosystem string) ProjectConfig {
	if pc, ok := f.Projects[name+":"+ecosystem]; ok {
		return pc
	}
	return f.Projects[name]
}
