// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRelease() ProjectRelease {
	return NewProjectRelease(
		"acme-core", "cargo", "1.0.0", "1.1.0", "minor",
		"## Changes\n- Added feature", "", "")
}

func TestNewManifest(t *testing.T) {
	m := New("main", "test-user")

	assert.Equal(t, "1.0", m.SchemaVersion)
	assert.Equal(t, "main", m.BaseBranch)
	assert.Equal(t, "test-user", m.CreatedBy)
	// RFC-3339 UTC timestamp.
	assert.Contains(t, m.CreatedAt, "T")
	assert.True(t, strings.HasSuffix(m.CreatedAt, "Z"))
}

func TestTagNameDerivation(t *testing.T) {
	withPrefix := NewProjectRelease("core", "cargo", "1.0.0", "2.0.0", "major", "", "packages/core", "")
	assert.Equal(t, "packages/core/v2.0.0", withPrefix.TagName)

	rootProject := NewProjectRelease("core", "cargo", "1.0.0", "2.0.0", "major", "", "", "")
	assert.Equal(t, "v2.0.0", rootProject.TagName)

	dashFormat := NewProjectRelease("core", "cargo", "1.0.0", "2.0.0", "major", "", "core", "{prefix}-v{version}")
	assert.Equal(t, "core-v2.0.0", dashFormat.TagName)
}

func TestSerializationRoundTrip(t *testing.T) {
	m := New("main", "github-actions")
	m.AddRelease(sampleRelease())

	data, err := m.ToJSON()
	require.NoError(t, err)

	loaded, err := FromJSON(data)
	require.NoError(t, err)

	assert.Equal(t, m.SchemaVersion, loaded.SchemaVersion)
	assert.Equal(t, m.CreatedAt, loaded.CreatedAt)
	require.Len(t, loaded.Releases, 1)
	assert.Equal(t, "acme-core", loaded.Releases[0].Name)
	assert.Equal(t, "1.1.0", loaded.Releases[0].NewVersion)
}

func TestJSONFieldNames(t *testing.T) {
	m := New("develop", "ci-bot")
	m.AddRelease(NewProjectRelease("test-pkg", "npm", "2.0.0", "3.0.0", "major", "Breaking changes", "packages/test", ""))

	data, err := m.ToJSON()
	require.NoError(t, err)
	s := string(data)

	assert.Contains(t, s, `"schema_version": "1.0"`)
	assert.Contains(t, s, `"base_branch": "develop"`)
	assert.Contains(t, s, `"created_by": "ci-bot"`)
	assert.Contains(t, s, `"ecosystem": "npm"`)
	assert.Contains(t, s, `"previous_version": "2.0.0"`)
	assert.Contains(t, s, `"bump_type": "major"`)
	// Unsigned manifests omit the signature field entirely.
	assert.NotContains(t, s, `"signature"`)
}

func TestSignCreatesSignature(t *testing.T) {
	m := New("main", "test")
	m.AddRelease(sampleRelease())

	weak := m.Sign("test-secret-key")
	assert.True(t, weak, "short secret should be flagged weak")
	assert.True(t, strings.HasPrefix(m.Signature, "sha256="))
	assert.Len(t, m.Signature, len("sha256=")+64)

	strong := strings.Repeat("k", MinSecretLength)
	weak = m.Sign(strong)
	assert.False(t, weak)
}

func TestVerify(t *testing.T) {
	m := New("main", "test")
	m.AddRelease(sampleRelease())
	m.Sign("correct-horse-battery-staple-32b!")

	assert.True(t, m.Verify("correct-horse-battery-staple-32b!"))
	assert.False(t, m.Verify("wrong-secret"))

	// Any field mutation invalidates the signature.
	m.BaseBranch = "hijacked"
	assert.False(t, m.Verify("correct-horse-battery-staple-32b!"))
}

func TestVerifyUnsignedManifest(t *testing.T) {
	m := New("main", "test")
	assert.False(t, m.Verify("anything"))
}

func TestDifferentSecretsProduceDifferentSignatures(t *testing.T) {
	a := New("main", "test")
	a.AddRelease(sampleRelease())
	b := *a

	a.Sign("secret-one")
	b.Sign("secret-two")
	assert.NotEqual(t, a.Signature, b.Signature)
}

func TestResignAfterMutationChangesSignature(t *testing.T) {
	m := New("main", "test")
	m.AddRelease(sampleRelease())
	m.Sign("shared-secret")
	first := m.Signature

	m.AddRelease(NewProjectRelease("pkg-b", "npm", "2.0.0", "2.0.1", "patch", "", "packages/b", ""))
	m.Sign("shared-secret")

	assert.NotEqual(t, first, m.Signature)
	assert.True(t, m.Verify("shared-secret"))
}

func TestSignatureStableUnderResign(t *testing.T) {
	m := New("main", "test")
	m.AddRelease(sampleRelease())

	m.Sign("shared-secret")
	first := m.Signature
	m.Sign("shared-secret")

	// Re-signing identical content reproduces the same signature; the
	// prior value does not leak into the payload.
	assert.Equal(t, first, m.Signature)
}

func TestSignatureSurvivesJSONRoundTrip(t *testing.T) {
	m := New("main", "test")
	m.AddRelease(sampleRelease())
	m.Sign("roundtrip-secret")

	data, err := m.ToJSON()
	require.NoError(t, err)

	loaded, err := FromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, m.Signature, loaded.Signature)
	assert.True(t, loaded.Verify("roundtrip-secret"))
}

func TestSaveToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, Dir, "test-release.json")

	m := New("main", "test")
	m.AddRelease(sampleRelease())
	require.NoError(t, m.SaveToFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	loaded, err := FromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, "acme-core", loaded.Releases[0].Name)
}

func TestGenerateFilename(t *testing.T) {
	name := GenerateFilename()

	assert.True(t, strings.HasPrefix(name, "release-"))
	assert.True(t, strings.HasSuffix(name, ".json"))

	trimmed := strings.TrimSuffix(strings.TrimPrefix(name, "release-"), ".json")
	parts := strings.Split(trimmed, "-")
	require.Len(t, parts, 3, "expected release-DATE-TIME-SUFFIX.json")
	assert.Len(t, parts[0], 8)
	assert.Len(t, parts[1], 6)
	assert.Len(t, parts[2], 8)

	// Two filenames generated back to back must differ.
	assert.NotEqual(t, name, GenerateFilename())
}
