// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package changelog renders categorized commits into "Keep a Changelog"
// documents and merges new sections with prior changelog content.
//
// Merging is prepend-only: existing content is treated as an opaque tail
// preserved verbatim, and the new version section is always inserted before
// the first pre-existing version section. That single rule is what makes
// generation idempotent: rerunning with the same input never duplicates or
// reorders anything.
package changelog

import (
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/shipyard/pkg/analyzer"
)

// sectionMarker starts every version section.
const sectionMarker = "## ["

// Entry is one version's worth of categorized changes.
type Entry struct {
	// Version is the released version, without a "v" prefix.
	Version string

	// Date is the release date stamped into the section heading.
	Date time.Time

	commits []analyzer.CategorizedCommit
}

// NewEntry creates an entry for a version, dated today (UTC).
func NewEntry(version string) *Entry {
	return &Entry{Version: version, Date: time.Now().UTC()}
}

// AddCommits appends categorized commits to the entry. The analyzer
// delivers them pre-sorted by category; that order is preserved.
func (e *Entry) AddCommits(commits []analyzer.CategorizedCommit) {
	e.commits = append(e.commits, commits...)
}

// Empty reports whether the entry has no user-facing changes.
func (e *Entry) Empty() bool {
	return len(e.commits) == 0
}

// Markdown renders the entry as a version section:
//
//	## [1.2.0] - 2026-01-15
//
//	### Added
//
//	- **cli**: new flag
func (e *Entry) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s%s] - %s\n", sectionMarker, e.Version, e.Date.Format("2006-01-02"))

	var current analyzer.Category = -1
	for _, c := range e.commits {
		if c.Category != current {
			current = c.Category
			fmt.Fprintf(&b, "\n### %s\n\n", current)
		}
		b.WriteString(c.FormatForChangelog())
		b.WriteByte('\n')
	}

	return b.String()
}

// header returns the standard document preamble for a project.
func header(projectName string) string {
	return fmt.Sprintf(`# Changelog

All notable changes to %s will be documented in this file.

The format is based on [Keep a Changelog](https://keepachangelog.com/en/1.0.0/),
and this project adheres to [Semantic Versioning](https://semver.org/spec/v2.0.0.html).

`, projectName)
}

// Generate produces the full changelog document: the standard header (when
// the existing document lacks one), the new version's section, then all
// previously existing sections unchanged.
//
// If the existing content already contains a section for the entry's
// version, the document is returned with that content untouched rather
// than prepending a duplicate.
func Generate(projectName string, entry *Entry, existing string) string {
	return GenerateWithSection(projectName, entry.Version, entry.Markdown(), existing)
}

// GenerateWithSection is Generate for a pre-rendered version section, e.g.
// one that has been polished by an external reviewer. The section must
// start with the "## [version]" heading; the same duplicate guard and
// prepend-only merge apply.
func GenerateWithSection(projectName, version, section, existing string) string {
	existing = strings.TrimSpace(existing)

	if existing != "" && strings.Contains(existing, sectionMarker+version+"]") {
		return existing + "\n"
	}

	if !strings.HasSuffix(section, "\n") {
		section += "\n"
	}

	if existing == "" {
		return header(projectName) + section
	}

	if idx := strings.Index(existing, sectionMarker); idx >= 0 {
		// Keep whatever preamble the document already has and slot the
		// new section in front of the first pre-existing version section.
		preamble := existing[:idx]
		tail := existing[idx:]
		return preamble + section + "\n" + tail + "\n"
	}

	// Existing content has no version sections at all (e.g. a bare
	// handwritten header); append below it.
	return existing + "\n\n" + section
}

// SectionFor extracts one version's section from a changelog document,
// heading included. Returns "" when the version has no section.
func SectionFor(content, version string) string {
	marker := sectionMarker + version + "]"

	var b strings.Builder
	in := false
	for _, line := range strings.Split(content, "\n") {
		switch {
		case strings.HasPrefix(line, marker):
			in = true
			b.WriteString(line)
			b.WriteByte('\n')
		case in && strings.HasPrefix(line, sectionMarker):
			return b.String()
		case in:
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String()
}
