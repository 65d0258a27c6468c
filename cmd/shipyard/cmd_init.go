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
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/shipyard/pkg/config"
	"github.com/AleutianAI/shipyard/pkg/gitrepo"
)

// starterConfig is written by `shipyard init`. It spells out the unified
// schema with its defaults so users edit values rather than guess keys.
const starterConfig = `# Shipyard release configuration.

[release.repo]
# Git URLs the upstream remote might use; the first configured remote
# matching one of these is treated as upstream.
upstream_urls = []

# Release tag template. Placeholders: {prefix}, {version}.
release_tag_name_format = "{prefix}/v{version}"

[release.commit_attribution]
# How pending commits are assigned to projects:
#   "path-prefix"  a commit belongs to every project whose directory it touches
#   "scope"        the conventional-commit scope decides, path as fallback
strategy = "path-prefix"

# When strategy = "scope", map scope labels to project names:
# [release.commit_attribution.scopes]
# core = "acme-core"

# Per-project overrides, keyed by project name:
# [release.projects.my-package]
# ignore = true
`

// runInitCommand writes a starter configuration file at the repository
// root. Refuses to overwrite an existing file unless --force is given.
func runInitCommand(cmd *cobra.Command, args []string) error {
	repo, err := gitrepo.Open(".")
	if err != nil {
		return NewReleaseError("init", "", 1, err)
	}
	defer logger.Close()

	path := filepath.Join(repo.Root(), filepath.FromSlash(config.Path))
	if _, err := os.Stat(path); err == nil && !forceInit {
		return NewReleaseError("init", "", 2,
			fmt.Errorf("%s already exists (use --force to overwrite)", config.Path))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return NewReleaseError("init", "", 1, fmt.Errorf("failed to create config directory: %w", err))
	}
	if err := os.WriteFile(path, []byte(starterConfig), 0644); err != nil {
		return NewReleaseError("init", "", 1, fmt.Errorf("failed to write config file: %w", err))
	}

	fmt.Printf("Wrote %s\n", config.Path)
	return nil
}
