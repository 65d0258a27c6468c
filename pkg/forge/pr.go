// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package forge

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/shipyard/pkg/manifest"
)

// PRTitle renders the release pull-request title.
//
// One project names it outright, up to three are listed, and larger
// batches fall back to a count.
func PRTitle(releases []manifest.ProjectRelease) string {
	switch {
	case len(releases) == 1:
		r := releases[0]
		return fmt.Sprintf("chore(release): %s v%s", r.Name, r.NewVersion)
	case len(releases) <= 3:
		names := make([]string, len(releases))
		for i, r := range releases {
			names[i] = fmt.Sprintf("%s v%s", r.Name, r.NewVersion)
		}
		return "chore(release): " + strings.Join(names, ", ")
	default:
		return fmt.Sprintf("chore(release): %d packages", len(releases))
	}
}

// PRBody renders the release pull-request body: a version table, per
// project changelogs (collapsed when there are several), and a pointer to
// the release manifest the automation reads after merge.
func PRBody(releases []manifest.ProjectRelease, manifestPath string) string {
	var b strings.Builder

	b.WriteString("## Release Preparation\n\n")
	b.WriteString("This PR was automatically created by `shipyard prepare`.\n\n")

	b.WriteString("### Packages\n\n")
	b.WriteString("| Package | Ecosystem | Version | Bump |\n")
	b.WriteString("|---------|-----------|---------|------|\n")
	for _, r := range releases {
		fmt.Fprintf(&b, "| **%s** | %s | `%s` → `%s` | %s |\n",
			r.Name, ecosystemBadge(r.Ecosystem), r.PreviousVersion, r.NewVersion, bumpBadge(r.BumpType))
	}

	b.WriteString("\n### Changelogs\n\n")
	if len(releases) == 1 {
		if releases[0].Changelog != "" {
			b.WriteString(releases[0].Changelog)
			b.WriteByte('\n')
		}
	} else {
		for _, r := range releases {
			if r.Changelog == "" {
				continue
			}
			fmt.Fprintf(&b, "<details>\n<summary><strong>%s</strong> - %s → %s</summary>\n\n",
				r.Name, r.PreviousVersion, r.NewVersion)
			b.WriteString(r.Changelog)
			b.WriteString("\n</details>\n\n")
		}
	}

	b.WriteString("### Release Manifest\n\n")
	fmt.Fprintf(&b, "`%s`\n\n", manifestPath)

	b.WriteString("---\n\n")
	b.WriteString("### Next Steps\n\n")
	b.WriteString("After merging this PR, release automation will:\n")
	b.WriteString("1. Create Git tags for each package\n")
	b.WriteString("2. Create GitHub Releases with changelogs\n")
	b.WriteString("3. Trigger any configured release workflows\n")

	return b.String()
}

func ecosystemBadge(ecosystem string) string {
	switch ecosystem {
	case "cargo":
		return "🦀 Rust"
	case "npm":
		return "📦 Node.js"
	case "python":
		return "🐍 Python"
	case "go":
		return "🐹 Go"
	case "elixir":
		return "💧 Elixir"
	default:
		return ecosystem
	}
}

func bumpBadge(bumpType string) string {
	switch strings.ToLower(bumpType) {
	case "major":
		return "🔴 **MAJOR**"
	case "minor":
		return "🟡 MINOR"
	case "patch":
		return "🟢 patch"
	default:
		return bumpType
	}
}
