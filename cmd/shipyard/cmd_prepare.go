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
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/shipyard/pkg/forge"
	"github.com/AleutianAI/shipyard/pkg/manifest"
	"github.com/AleutianAI/shipyard/pkg/session"
	"github.com/AleutianAI/shipyard/pkg/version"
)

// runPrepareCommand prepares a release in one of three modes.
//
// Without flags, pending commits are analyzed per project and each one
// gets the bump its conventional commits call for. With --bump the same
// concrete scheme applies to every changed project. With --project
// name:scheme only the named projects are bumped, each with its own
// scheme. With --ci the full pipeline runs: rewrites, changelogs, the
// signed manifest, a release commit, and tags.
func runPrepareCommand(cmd *cobra.Command, args []string) error {
	sess, err := session.New(".", logger)
	if err != nil {
		return NewReleaseError("prepare", "", 1, err)
	}
	defer logger.Close()

	plan, err := buildBumpPlan(bumpScheme, cmd.Flags().Changed("bump"), projectSpecs)
	if err != nil {
		return NewReleaseError("prepare", "", 2, err)
	}

	if ciMode {
		return runPrepareCI(sess, plan)
	}

	if dirty, err := sess.Repo.CheckIfDirty(nil); err == nil && dirty != "" {
		logger.Warn("working tree has uncommitted changes; rewrites will mix with them")
	}

	histories, err := sess.AnalyzeHistories()
	if err != nil {
		return NewReleaseError("prepare", "", 1, err)
	}

	results, err := sess.ApplyBumps(plan, histories)
	if err != nil {
		return NewReleaseError("prepare", "", 1, err)
	}
	if len(results) == 0 {
		fmt.Println("Nothing to release: no project has pending changes.")
		return nil
	}

	changes, err := sess.Rewrite()
	if err != nil {
		return NewReleaseError("rewrite", "", 1, err)
	}

	fmt.Println("Version bumps applied:")
	for _, r := range results {
		fmt.Printf("  %s: %s -> %s (%s)\n", r.Name, r.OldVersion, r.NewVersion, r.Scheme)
	}
	fmt.Println("\nModified files:")
	for _, path := range changes.Paths() {
		fmt.Printf("  %s\n", path)
	}
	fmt.Println("\nReview the changes, then commit them to continue the release.")
	return nil
}

// runPrepareCI executes the fully automated path used by release
// workflows, then optionally pushes and creates GitHub releases.
func runPrepareCI(sess *session.Session, plan session.BumpPlan) error {
	result, err := sess.PrepareRelease(session.PrepareOptions{
		Plan:          &plan,
		CreatedBy:     releaseActor(),
		SigningSecret: os.Getenv("SHIPYARD_SIGNING_SECRET"),
	})
	if err != nil {
		return NewReleaseError("prepare", "", 1, err)
	}
	if len(result.Releases) == 0 {
		fmt.Println("Nothing to release: no project has pending changes.")
		return nil
	}

	fmt.Printf("Release commit created: %s\n", strings.SplitN(result.CommitMessage, "\n", 2)[0])
	fmt.Printf("Release manifest: %s\n", result.ManifestPath)
	fmt.Println("Tags:")
	for _, r := range result.Releases {
		fmt.Printf("  %s\n", r.TagName)
	}

	if pushRelease {
		if err := sess.Repo.Push(""); err != nil {
			return NewReleaseError("push", "", 1, err)
		}
		logger.Info("pushed release commit and tags upstream")
	}

	if githubRelease {
		createGitHubReleases(sess, result)
	}

	releases := manifestReleases(result)
	fmt.Println("\nSuggested pull request:")
	fmt.Printf("Title: %s\n", forge.PRTitle(releases))
	fmt.Println("--- BODY ---")
	fmt.Println(forge.PRBody(releases, result.ManifestPath))
	fmt.Println("--- END BODY ---")
	return nil
}

// createGitHubReleases creates one GitHub release per tag. A failed
// release is logged and skipped; the tags already exist locally and the
// remaining projects still deserve their releases.
func createGitHubReleases(sess *session.Session, result *session.PrepareResult) {
	url, err := sess.Repo.UpstreamURL(sess.Config.Repo.UpstreamURLs)
	if err != nil {
		logger.Warn("cannot create GitHub releases", "error", err)
		return
	}
	slug, err := forge.SlugFromURL(url)
	if err != nil {
		logger.Warn("cannot create GitHub releases", "error", err)
		return
	}

	client := forge.NewClient(forge.EnvCredentials{}, logger)
	for _, r := range result.Releases {
		err := client.CreateRelease(slug, forge.ReleaseParams{
			TagName:    r.TagName,
			Name:       fmt.Sprintf("%s v%s", r.Name, r.NewVersion),
			Body:       r.ChangelogSection,
			Prerelease: r.NewVersion.Prerelease != "",
		})
		if err != nil {
			logger.Warn("failed to create GitHub release",
				"project", r.Name, "tag", r.TagName, "error", err)
			continue
		}
		logger.Info("created GitHub release", "tag", r.TagName)
	}
}

// buildBumpPlan turns the --bump and --project flags into a bump plan.
//
// Explicit --project specs always win over the global scheme; when only
// specs are given (globalExplicit false) the global scheme degrades to
// manual so that unnamed projects are left alone.
func buildBumpPlan(globalSpec string, globalExplicit bool, specs []string) (session.BumpPlan, error) {
	global, err := version.ParseBumpScheme(globalSpec)
	if err != nil {
		return session.BumpPlan{}, err
	}

	plan := session.BumpPlan{Global: global}
	if len(specs) == 0 {
		return plan, nil
	}

	if !globalExplicit {
		plan.Global = version.BumpManual
	}

	plan.PerProject = make(map[string]version.BumpScheme, len(specs))
	for _, spec := range specs {
		name, schemeName, ok := strings.Cut(spec, ":")
		if !ok || name == "" || schemeName == "" {
			return session.BumpPlan{}, fmt.Errorf("invalid --project spec %q (expected name:scheme)", spec)
		}
		scheme, err := version.ParseBumpScheme(schemeName)
		if err != nil {
			return session.BumpPlan{}, fmt.Errorf("invalid --project spec %q: %w", spec, err)
		}
		if !scheme.IsConcrete() && scheme != version.BumpAuto {
			return session.BumpPlan{}, fmt.Errorf("invalid --project spec %q: scheme must be major, minor, patch, or auto", spec)
		}
		plan.PerProject[name] = scheme
	}
	return plan, nil
}

// manifestReleases converts prepared releases into the manifest records
// the PR renderer consumes.
func manifestReleases(result *session.PrepareResult) []manifest.ProjectRelease {
	releases := make([]manifest.ProjectRelease, 0, len(result.Releases))
	for _, r := range result.Releases {
		releases = append(releases, manifest.NewProjectRelease(
			r.Name, r.Ecosystem,
			r.OldVersion.String(), r.NewVersion.String(),
			r.Scheme.String(), r.ChangelogSection, r.Prefix, ""))
	}
	return releases
}

// releaseActor identifies who triggered the release for the manifest's
// created_by field.
func releaseActor() string {
	if actor := os.Getenv("GITHUB_ACTOR"); actor != "" {
		return actor
	}
	return "shipyard"
}
