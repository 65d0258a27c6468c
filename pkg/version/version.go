// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package version provides the semantic version value type used by every
// project in the release graph, and the bump schemes that mutate it.
//
// All supported ecosystems (cargo, npm, python, go, elixir) declare versions
// that fit the semver grammar, so a single value type covers the whole graph.
// Ordering semantics are delegated to golang.org/x/mod/semver so that our
// comparisons agree with the rest of the Go toolchain.
package version

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// Version is an ecosystem-appropriate semantic version.
//
// The zero value is "0.0.0". Version is a small value type and is passed
// by value throughout the release engine.
type Version struct {
	// Major is incremented for breaking changes.
	Major int

	// Minor is incremented for backwards-compatible features.
	Minor int

	// Patch is incremented for backwards-compatible fixes.
	Patch int

	// Prerelease is the optional pre-release identifier ("rc.1", "beta.2").
	// It never includes the leading hyphen.
	Prerelease string
}

// New creates a Version from its numeric components.
func New(major, minor, patch int) Version {
	return Version{Major: major, Minor: minor, Patch: patch}
}

// Parse parses a version string like "1.2.3" or "0.4.0-rc.1".
//
// A leading "v" is tolerated because Go module tags carry one. Build
// metadata (a "+..." suffix) is rejected: none of the supported manifest
// formats use it and allowing it would make rewrites lossy.
func Parse(s string) (Version, error) {
	raw := strings.TrimSpace(s)
	trimmed := strings.TrimPrefix(raw, "v")

	if trimmed == "" {
		return Version{}, fmt.Errorf("empty version string")
	}
	if strings.Contains(trimmed, "+") {
		return Version{}, fmt.Errorf("version %q: build metadata is not supported", raw)
	}
	if !semver.IsValid("v" + trimmed) {
		return Version{}, fmt.Errorf("version %q is not a valid semantic version", raw)
	}

	var pre string
	core := trimmed
	if idx := strings.IndexByte(trimmed, '-'); idx >= 0 {
		core = trimmed[:idx]
		pre = trimmed[idx+1:]
	}

	parts := strings.Split(core, ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("version %q must have exactly three numeric components", raw)
	}

	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("version %q: component %q is not a non-negative integer", raw, p)
		}
		nums[i] = n
	}

	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2], Prerelease: pre}, nil
}

// String renders the version without a leading "v".
func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Prerelease != "" {
		s += "-" + v.Prerelease
	}
	return s
}

// Compare returns -1, 0, or +1 if v is less than, equal to, or greater
// than other, following semver precedence rules (a prerelease sorts below
// its release).
func (v Version) Compare(other Version) int {
	return semver.Compare("v"+v.String(), "v"+other.String())
}

// =============================================================================
// Bump Schemes
// =============================================================================

// BumpScheme determines how a version is incremented during release
// preparation.
type BumpScheme int

const (
	// BumpMajor increments the major component and zeroes the rest.
	BumpMajor BumpScheme = iota

	// BumpMinor increments the minor component and zeroes the patch.
	BumpMinor

	// BumpPatch increments the patch component.
	BumpPatch

	// BumpAuto resolves to a concrete scheme via conventional-commit
	// analysis before application. Applying it directly is an error.
	BumpAuto

	// BumpManual requires a caller-supplied per-project scheme.
	// Applying it directly is an error.
	BumpManual
)

// String returns the canonical scheme name.
func (b BumpScheme) String() string {
	switch b {
	case BumpMajor:
		return "major"
	case BumpMinor:
		return "minor"
	case BumpPatch:
		return "patch"
	case BumpAuto:
		return "auto"
	case BumpManual:
		return "manual"
	default:
		return "unknown"
	}
}

// ParseBumpScheme parses a user-supplied scheme name.
//
// "micro" is accepted as an alias for "patch"; some ecosystems use that
// terminology and earlier releases of this tool emitted it.
func ParseBumpScheme(s string) (BumpScheme, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "major", "major bump":
		return BumpMajor, nil
	case "minor", "minor bump":
		return BumpMinor, nil
	case "patch", "micro", "micro bump":
		return BumpPatch, nil
	case "auto":
		return BumpAuto, nil
	case "manual":
		return BumpManual, nil
	default:
		return 0, fmt.Errorf("unrecognized bump scheme %q (expected major, minor, patch, auto, or manual)", s)
	}
}

// IsConcrete reports whether the scheme can be applied without further
// resolution.
func (b BumpScheme) IsConcrete() bool {
	return b == BumpMajor || b == BumpMinor || b == BumpPatch
}

// Apply returns the version produced by applying the scheme to base.
//
// Bumping always clears the prerelease identifier: a bump is by definition
// a stable release. The result is strictly greater than base for every
// concrete scheme, and a major bump always exceeds any minor or patch bump
// from the same base.
func (b BumpScheme) Apply(base Version) (Version, error) {
	switch b {
	case BumpMajor:
		return Version{Major: base.Major + 1}, nil
	case BumpMinor:
		return Version{Major: base.Major, Minor: base.Minor + 1}, nil
	case BumpPatch:
		return Version{Major: base.Major, Minor: base.Minor, Patch: base.Patch + 1}, nil
	case BumpAuto:
		return Version{}, fmt.Errorf("bump scheme %q must be resolved through commit analysis before it can be applied", b)
	case BumpManual:
		return Version{}, fmt.Errorf("bump scheme %q requires an explicit per-project scheme", b)
	default:
		return Version{}, fmt.Errorf("cannot apply unknown bump scheme %d", int(b))
	}
}
