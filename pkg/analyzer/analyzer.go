// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analyzer maps raw commit message history to version bump
// recommendations and changelog entries.
//
// Classification follows the Conventional Commits spec: a breaking-change
// marker (a "!" before the colon or a "BREAKING CHANGE:" footer) recommends
// a major bump regardless of declared type; "feat" recommends minor; "fix"
// and "perf" recommend patch; everything else recommends nothing. Messages
// that fail to parse are counted as "other" and never abort analysis; a
// repository full of free-form messages simply yields no recommendation.
package analyzer

import (
	"fmt"
	"sort"
	"strings"

	conventionalcommits "github.com/leodido/go-conventionalcommits"
	"github.com/leodido/go-conventionalcommits/parser"
)

// BumpRecommendation is the merged bump signal for a commit history.
type BumpRecommendation int

const (
	// RecommendNone means no release-worthy commits were found.
	RecommendNone BumpRecommendation = iota

	// RecommendPatch is suggested by fix and perf commits.
	RecommendPatch

	// RecommendMinor is suggested by feat commits.
	RecommendMinor

	// RecommendMajor is suggested by any breaking change.
	RecommendMajor
)

// String returns the bump-scheme spelling of the recommendation, suitable
// for feeding straight into version.ParseBumpScheme.
func (r BumpRecommendation) String() string {
	switch r {
	case RecommendMajor:
		return "major"
	case RecommendMinor:
		return "minor"
	case RecommendPatch:
		return "patch"
	default:
		return "none"
	}
}

// Merge combines two recommendations. The operation is associative and
// commutative, with Major dominating Minor dominating Patch dominating
// None.
func (r BumpRecommendation) Merge(other BumpRecommendation) BumpRecommendation {
	if other > r {
		return other
	}
	return r
}

// Category is a "Keep a Changelog" bucket.
type Category int

// Buckets in their canonical rendering order.
const (
	CategoryAdded Category = iota
	CategoryChanged
	CategoryDeprecated
	CategoryRemoved
	CategoryFixed
	CategorySecurity
)

// String returns the changelog heading for the category.
func (c Category) String() string {
	switch c {
	case CategoryAdded:
		return "Added"
	case CategoryChanged:
		return "Changed"
	case CategoryDeprecated:
		return "Deprecated"
	case CategoryRemoved:
		return "Removed"
	case CategoryFixed:
		return "Fixed"
	case CategorySecurity:
		return "Security"
	default:
		return "Unknown"
	}
}

// categoryForType maps a conventional-commit type to a changelog bucket.
// Types with no user-facing impact (chore, docs, ci, test, style, build)
// map to nothing and are dropped from changelog output entirely.
func categoryForType(commitType string) (Category, bool) {
	switch commitType {
	case "feat":
		return CategoryAdded, true
	case "fix":
		return CategoryFixed, true
	case "perf", "refactor":
		return CategoryChanged, true
	case "revert":
		return CategoryRemoved, true
	case "security":
		return CategorySecurity, true
	default:
		return 0, false
	}
}

// CategorizedCommit is a single commit's changelog entry.
type CategorizedCommit struct {
	// Category is the changelog bucket.
	Category Category

	// Message is the commit description without its type prefix.
	Message string

	// Scope is the optional scope label.
	Scope string

	// Breaking marks a breaking change.
	Breaking bool

	// Original is the raw message the entry was derived from.
	Original string
}

// FormatForChangelog renders the entry as a Markdown list item.
func (c CategorizedCommit) FormatForChangelog() string {
	scope := ""
	if c.Scope != "" {
		scope = fmt.Sprintf("**%s**: ", c.Scope)
	}
	breaking := ""
	if c.Breaking {
		breaking = " [BREAKING]"
	}
	return fmt.Sprintf("- %s%s%s", scope, c.Message, breaking)
}

// CommitAnalysis aggregates per-commit signals over a history.
type CommitAnalysis struct {
	Recommendation BumpRecommendation
	TotalCommits   int
	FeatCount      int
	FixCount       int
	BreakingCount  int
	OtherCount     int
}

// Summary renders a one-line human-readable account of the analysis,
// e.g. "3 commits: 1 feat, 1 fix, 1 other → suggests MINOR".
func (a CommitAnalysis) Summary() string {
	if a.TotalCommits == 0 {
		return "no commits to analyze"
	}

	var parts []string
	if a.FeatCount > 0 {
		parts = append(parts, fmt.Sprintf("%d feat", a.FeatCount))
	}
	if a.FixCount > 0 {
		parts = append(parts, fmt.Sprintf("%d fix", a.FixCount))
	}
	if a.BreakingCount > 0 {
		parts = append(parts, fmt.Sprintf("%d BREAKING", a.BreakingCount))
	}
	if a.OtherCount > 0 {
		parts = append(parts, fmt.Sprintf("%d other", a.OtherCount))
	}

	plural := "s"
	if a.TotalCommits == 1 {
		plural = ""
	}

	var suggests string
	switch a.Recommendation {
	case RecommendMajor:
		suggests = "MAJOR"
	case RecommendMinor:
		suggests = "MINOR"
	case RecommendPatch:
		suggests = "PATCH"
	default:
		suggests = "NO BUMP"
	}

	return fmt.Sprintf("%d commit%s: %s → suggests %s",
		a.TotalCommits, plural, strings.Join(parts, ", "), suggests)
}

// Analyzer parses conventional commit messages.
//
// The parser machine is scoped to the Analyzer instance rather than a
// process-wide global so that concurrent sessions and test cases stay
// independent.
type Analyzer struct {
	machine conventionalcommits.Machine
}

// New creates an Analyzer accepting the conventional type set in
// best-effort mode (a malformed body does not discard a parseable first
// line).
func New() *Analyzer {
	return &Analyzer{
		machine: parser.NewMachine(
			conventionalcommits.WithTypes(conventionalcommits.TypesConventional),
			conventionalcommits.WithBestEffort(),
		),
	}
}

// parsed is the analyzer's internal view of one commit message.
type parsed struct {
	ok          bool
	commitType  string
	scope       string
	description string
	breaking    bool
}

func (a *Analyzer) parse(message string) parsed {
	res, err := a.machine.Parse([]byte(message))
	if err != nil || res == nil {
		return parsed{}
	}

	cc, ok := res.(*conventionalcommits.ConventionalCommit)
	if !ok || !cc.Ok() {
		return parsed{}
	}

	scope := ""
	if cc.Scope != nil {
		scope = *cc.Scope
	}

	// The machine detects "!" markers; a BREAKING CHANGE footer in a
	// multi-paragraph message is additionally detected here so that
	// histories written before footer support still classify correctly.
	breaking := cc.IsBreakingChange() || footerDeclaresBreaking(message)

	return parsed{
		ok:          true,
		commitType:  cc.Type,
		scope:       scope,
		description: cc.Description,
		breaking:    breaking,
	}
}

// footerDeclaresBreaking looks for a BREAKING CHANGE footer token after
// the first blank line. The subject line is excluded on purpose: the
// phrase appearing in a description is prose, not a declaration.
func footerDeclaresBreaking(message string) bool {
	_, footers, ok := strings.Cut(message, "\n\n")
	if !ok {
		return false
	}
	return strings.Contains(footers, "BREAKING CHANGE:") ||
		strings.Contains(footers, "BREAKING-CHANGE:")
}

// AnalyzeCommitMessages merges per-commit bump signals over the whole
// history. Unparseable messages count as "other" and are never propagated
// as errors.
func (a *Analyzer) AnalyzeCommitMessages(messages []string) CommitAnalysis {
	analysis := CommitAnalysis{TotalCommits: len(messages)}

	for _, message := range messages {
		p := a.parse(message)

		var rec BumpRecommendation
		switch {
		case !p.ok:
			analysis.OtherCount++
			rec = RecommendNone
		case p.breaking:
			analysis.BreakingCount++
			rec = RecommendMajor
		case p.commitType == "feat":
			analysis.FeatCount++
			rec = RecommendMinor
		case p.commitType == "fix", p.commitType == "perf":
			analysis.FixCount++
			rec = RecommendPatch
		default:
			analysis.OtherCount++
			rec = RecommendNone
		}

		analysis.Recommendation = analysis.Recommendation.Merge(rec)
	}

	return analysis
}

// RecommendBump is a convenience wrapper returning only the merged
// recommendation.
func (a *Analyzer) RecommendBump(messages []string) BumpRecommendation {
	return a.AnalyzeCommitMessages(messages).Recommendation
}

// CategorizeCommits runs the same parse pass but produces changelog
// entries. Commits whose type maps to no changelog category are dropped
// entirely, as are unparseable messages. The result is sorted by category
// for stable rendering; the sort is stable so commits within a category
// keep history order.
func (a *Analyzer) CategorizeCommits(messages []string) []CategorizedCommit {
	var out []CategorizedCommit

	for _, message := range messages {
		p := a.parse(message)
		if !p.ok {
			continue
		}

		if p.breaking {
			out = append(out, CategorizedCommit{
				Category: CategoryChanged,
				Message:  p.description,
				Scope:    p.scope,
				Breaking: true,
				Original: message,
			})
			continue
		}

		category, ok := categoryForType(p.commitType)
		if !ok {
			continue
		}
		out = append(out, CategorizedCommit{
			Category: category,
			Message:  p.description,
			Scope:    p.scope,
			Original: message,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Category < out[j].Category
	})
	return out
}

// ParseScope returns the scope label of a conventional commit message, or
// "" when the message has none or does not parse. Used by scope-based
// commit attribution.
func (a *Analyzer) ParseScope(message string) string {
	return a.parse(message).scope
}
