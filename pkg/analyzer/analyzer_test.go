// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFeatRecommendsMinor(t *testing.T) {
	a := New()
	rec := a.RecommendBump([]string{"feat: add new feature"})
	assert.Equal(t, RecommendMinor, rec)
}

func TestFixRecommendsPatch(t *testing.T) {
	a := New()
	rec := a.RecommendBump([]string{"fix: correct bug"})
	assert.Equal(t, RecommendPatch, rec)
}

func TestPerfRecommendsPatch(t *testing.T) {
	a := New()
	rec := a.RecommendBump([]string{"perf: faster hot loop"})
	assert.Equal(t, RecommendPatch, rec)
}

func TestBreakingBangRecommendsMajor(t *testing.T) {
	a := New()
	rec := a.RecommendBump([]string{"feat!: remove old API"})
	assert.Equal(t, RecommendMajor, rec)
}

func TestBreakingFooterRecommendsMajor(t *testing.T) {
	a := New()
	rec := a.RecommendBump([]string{"feat: add feature\n\nBREAKING CHANGE: breaks API"})
	assert.Equal(t, RecommendMajor, rec)
}

func TestBreakingPhraseInSubjectIsNotBreaking(t *testing.T) {
	a := New()

	// The token only counts as a footer, past the first blank line.
	rec := a.RecommendBump([]string{"docs: explain BREAKING CHANGE: usage"})
	assert.Equal(t, RecommendNone, rec)

	rec = a.RecommendBump([]string{"fix: mention BREAKING-CHANGE: syntax in docs"})
	assert.Equal(t, RecommendPatch, rec)
}

func TestBreakingHyphenatedFooterRecommendsMajor(t *testing.T) {
	a := New()
	rec := a.RecommendBump([]string{"fix: tighten input checks\n\nBREAKING-CHANGE: rejects empty ids"})
	assert.Equal(t, RecommendMajor, rec)
}

func TestBreakingDominatesRegardlessOfOrder(t *testing.T) {
	a := New()
	rec := a.RecommendBump([]string{"feat: add X", "feat!: remove Y"})
	assert.Equal(t, RecommendMajor, rec)
}

func TestMixedCommitsPickHighest(t *testing.T) {
	a := New()
	rec := a.RecommendBump([]string{
		"fix: bug fix",
		"feat: new feature",
		"docs: update README",
	})
	assert.Equal(t, RecommendMinor, rec)
}

func TestUnparseableMessagesCountAsOther(t *testing.T) {
	a := New()
	analysis := a.AnalyzeCommitMessages([]string{
		"merged some stuff",
		"WIP",
		"fix: one real fix",
	})

	assert.Equal(t, 3, analysis.TotalCommits)
	assert.Equal(t, 2, analysis.OtherCount)
	assert.Equal(t, 1, analysis.FixCount)
	assert.Equal(t, RecommendPatch, analysis.Recommendation)
}

func TestEmptyHistory(t *testing.T) {
	a := New()
	analysis := a.AnalyzeCommitMessages(nil)
	assert.Equal(t, RecommendNone, analysis.Recommendation)
	assert.Equal(t, "no commits to analyze", analysis.Summary())
}

func TestAnalysisCountsAndSummary(t *testing.T) {
	a := New()
	analysis := a.AnalyzeCommitMessages([]string{
		"feat: add feature",
		"fix: fix bug",
		"docs: update",
	})

	assert.Equal(t, 1, analysis.FeatCount)
	assert.Equal(t, 1, analysis.FixCount)
	assert.Equal(t, 1, analysis.OtherCount)
	assert.Equal(t, RecommendMinor, analysis.Recommendation)
	assert.Equal(t, "3 commits: 1 feat, 1 fix, 1 other → suggests MINOR", analysis.Summary())
}

func TestSummarySingleCommit(t *testing.T) {
	a := New()
	analysis := a.AnalyzeCommitMessages([]string{"fix: typo"})
	assert.Equal(t, "1 commit: 1 fix → suggests PATCH", analysis.Summary())
}

func TestMergeProperties(t *testing.T) {
	all := []BumpRecommendation{RecommendNone, RecommendPatch, RecommendMinor, RecommendMajor}

	// Major dominates everything.
	for _, x := range all {
		assert.Equal(t, RecommendMajor, RecommendMajor.Merge(x))
		assert.Equal(t, RecommendMajor, x.Merge(RecommendMajor))
	}

	// Identity.
	assert.Equal(t, RecommendNone, RecommendNone.Merge(RecommendNone))

	// Commutative and associative over the whole domain.
	for _, x := range all {
		for _, y := range all {
			assert.Equal(t, x.Merge(y), y.Merge(x))
			for _, z := range all {
				assert.Equal(t, x.Merge(y).Merge(z), x.Merge(y.Merge(z)))
			}
		}
	}
}

func TestCategorizeCommits(t *testing.T) {
	a := New()
	entries := a.CategorizeCommits([]string{
		"fix(parser): handle empty input",
		"feat: add exporter",
		"chore: bump deps",
		"not conventional at all",
		"refactor: simplify walker",
	})

	// chore and the unparseable line are dropped; result is sorted by
	// category (Added < Changed < Fixed).
	assert.Len(t, entries, 3)
	assert.Equal(t, CategoryAdded, entries[0].Category)
	assert.Equal(t, "add exporter", entries[0].Message)
	assert.Equal(t, CategoryChanged, entries[1].Category)
	assert.Equal(t, CategoryFixed, entries[2].Category)
	assert.Equal(t, "parser", entries[2].Scope)
}

func TestCategorizeBreakingGoesToChanged(t *testing.T) {
	a := New()
	entries := a.CategorizeCommits([]string{"feat!: drop legacy config"})

	assert.Len(t, entries, 1)
	assert.Equal(t, CategoryChanged, entries[0].Category)
	assert.True(t, entries[0].Breaking)
}

func TestFormatForChangelog(t *testing.T) {
	plain := CategorizedCommit{Category: CategoryFixed, Message: "handle nil"}
	assert.Equal(t, "- handle nil", plain.FormatForChangelog())

	scoped := CategorizedCommit{Category: CategoryAdded, Message: "new flag", Scope: "cli"}
	assert.Equal(t, "- **cli**: new flag", scoped.FormatForChangelog())

	breaking := CategorizedCommit{Category: CategoryChanged, Message: "drop it", Breaking: true}
	assert.Equal(t, "- drop it [BREAKING]", breaking.FormatForChangelog())
}

func TestParseScope(t *testing.T) {
	a := New()
	assert.Equal(t, "core", a.ParseScope("fix(core): something"))
	assert.Equal(t, "", a.ParseScope("fix: no scope"))
	assert.Equal(t, "", a.ParseScope("random message"))
}
