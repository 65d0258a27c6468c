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
	"github.com/spf13/cobra"

	"github.com/AleutianAI/shipyard/pkg/logging"
)

// --- Global Command Variables ---
var (
	bumpScheme    string   // requested bump: major/minor/patch/auto
	projectSpecs  []string // per-project bumps as "name:scheme"
	ciMode        bool     // fully automated release path for CI
	pushRelease   bool     // push the release commit and tags upstream
	githubRelease bool     // create GitHub releases for the new tags
	graphFormat   string   // graph output: text/json/yaml
	forceInit     bool     // overwrite an existing config file
	verboseOutput bool

	logger *logging.Logger

	rootCmd = &cobra.Command{
		Use:   "shipyard",
		Short: "Release automation for multi-ecosystem monorepos",
		Long: `Shipyard discovers every releasable package in a monorepo (Cargo,
npm, Python, Go, Elixir), orders them by their internal dependencies,
and prepares coordinated releases: version bumps from conventional
commits, manifest rewrites, changelogs, and a signed release manifest.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := logging.LevelInfo
			if verboseOutput {
				level = logging.LevelDebug
			}
			logger = logging.New(logging.Config{Level: level, Service: "shipyard"})
		},
	}

	prepareCmd = &cobra.Command{
		Use:   "prepare",
		Short: "Bump versions, rewrite manifests, and prepare a release",
		RunE:  runPrepareCommand, // Defined in cmd_prepare.go
	}

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show discovered projects with pending commits and suggested bumps",
		RunE:  runStatusCommand, // Defined in cmd_status.go
	}

	graphCmd = &cobra.Command{
		Use:   "graph",
		Short: "Print the internal dependency graph",
		RunE:  runGraphCommand, // Defined in cmd_graph.go
	}

	initCmd = &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		RunE:  runInitCommand, // Defined in cmd_init.go
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verboseOutput, "verbose", "v", false,
		"Enable debug logging")

	rootCmd.AddCommand(prepareCmd)
	prepareCmd.Flags().StringVar(&bumpScheme, "bump", "auto",
		"Version bump applied to every changed project: major, minor, patch, or auto")
	prepareCmd.Flags().StringArrayVar(&projectSpecs, "project", nil,
		"Per-project bump as name:scheme (repeatable); unnamed projects are left alone")
	prepareCmd.Flags().BoolVar(&ciMode, "ci", false,
		"Fully automated mode: commit, tag, changelog, and signed manifest")
	prepareCmd.Flags().BoolVar(&pushRelease, "push", false,
		"Push the release commit and tags to the upstream remote (requires --ci)")
	prepareCmd.Flags().BoolVar(&githubRelease, "github-release", false,
		"Create a GitHub release per tag (requires --ci and a token)")

	rootCmd.AddCommand(statusCmd)

	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().StringVar(&graphFormat, "format", "text",
		"Output format: text, json, or yaml")

	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&forceInit, "force", false,
		"Overwrite an existing configuration file")
}
