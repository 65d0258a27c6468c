// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package changelog

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/shipyard/pkg/analyzer"
)

func testEntry(version string) *Entry {
	e := NewEntry(version)
	e.Date = time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	e.AddCommits([]analyzer.CategorizedCommit{
		{Category: analyzer.CategoryAdded, Message: "new exporter", Scope: "cli"},
		{Category: analyzer.CategoryFixed, Message: "handle empty input"},
	})
	return e
}

func TestEntryMarkdown(t *testing.T) {
	got := testEntry("1.2.0").Markdown()

	assert.Contains(t, got, "## [1.2.0] - 2026-01-15")
	assert.Contains(t, got, "### Added")
	assert.Contains(t, got, "- **cli**: new exporter")
	assert.Contains(t, got, "### Fixed")
	assert.Contains(t, got, "- handle empty input")

	// Added renders before Fixed.
	assert.Less(t, strings.Index(got, "### Added"), strings.Index(got, "### Fixed"))
}

func TestEntryEmpty(t *testing.T) {
	e := NewEntry("1.0.0")
	assert.True(t, e.Empty())
	e.AddCommits([]analyzer.CategorizedCommit{{Category: analyzer.CategoryFixed, Message: "x"}})
	assert.False(t, e.Empty())
}

func TestGenerateFreshDocument(t *testing.T) {
	got := Generate("acme-core", testEntry("1.2.0"), "")

	assert.True(t, strings.HasPrefix(got, "# Changelog"))
	assert.Contains(t, got, "All notable changes to acme-core")
	assert.Contains(t, got, "Keep a Changelog")
	assert.Contains(t, got, "## [1.2.0] - 2026-01-15")
}

func TestGeneratePrependsBeforeExistingSections(t *testing.T) {
	existing := `# Changelog

All notable changes to acme-core will be documented in this file.

## [1.1.0] - 2025-11-02

### Added

- older feature

## [1.0.0] - 2025-09-20

### Added

- initial release
`

	got := Generate("acme-core", testEntry("1.2.0"), existing)

	// New section sits before the first pre-existing one; the tail is
	// preserved verbatim.
	i12 := strings.Index(got, "## [1.2.0]")
	i11 := strings.Index(got, "## [1.1.0]")
	i10 := strings.Index(got, "## [1.0.0]")
	require.True(t, i12 >= 0 && i11 >= 0 && i10 >= 0)
	assert.Less(t, i12, i11)
	assert.Less(t, i11, i10)
	assert.Contains(t, got, "- older feature")
	assert.Contains(t, got, "- initial release")

	// The pre-existing header is kept, not duplicated.
	assert.Equal(t, 1, strings.Count(got, "# Changelog"))
}

func TestGenerateIsIdempotent(t *testing.T) {
	entry := testEntry("1.2.0")

	first := Generate("acme-core", entry, "")
	second := Generate("acme-core", entry, first)
	third := Generate("acme-core", entry, second)

	assert.Equal(t, 1, strings.Count(second, "## [1.2.0]"))
	assert.Equal(t, second, third)
}

func TestGenerateWithHeaderOnlyExisting(t *testing.T) {
	existing := "# Release notes for my tool\n"
	got := Generate("tool", testEntry("0.2.0"), existing)

	assert.True(t, strings.HasPrefix(got, "# Release notes for my tool"))
	assert.Contains(t, got, "## [0.2.0]")
}

func TestSectionFor(t *testing.T) {
	doc := Generate("acme-core", testEntry("1.2.0"), `# Changelog

## [1.1.0] - 2025-11-02

### Added

- older feature
`)

	section := SectionFor(doc, "1.2.0")
	assert.Contains(t, section, "## [1.2.0]")
	assert.Contains(t, section, "- handle empty input")
	assert.NotContains(t, section, "1.1.0")

	older := SectionFor(doc, "1.1.0")
	assert.Contains(t, older, "- older feature")
	assert.NotContains(t, older, "1.2.0")

	assert.Empty(t, SectionFor(doc, "9.9.9"))
}
