// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package manifest produces the tamper-evident release manifest.
//
// The manifest is a JSON file written under .shipyard/releases/ describing a
// prepared (but not yet finalized) release. It is the contract between the
// CLI, which prepares releases, and the automation agent that finalizes them
// after the release PR merges. The agent must verify the HMAC signature
// before acting; a verification failure is always fatal on its side and
// must never be repaired by re-signing.
package manifest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/shipyard/pkg/gitrepo"
)

// SchemaVersion identifies the manifest format.
const SchemaVersion = "1.0"

// Dir is the repository-relative directory manifests are persisted under.
const Dir = ".shipyard/releases"

// MinSecretLength is the smallest signing secret that does not trigger a
// weak-key warning.
const MinSecretLength = 32

// ProjectRelease records one project's prepared release.
type ProjectRelease struct {
	Name            string `json:"name"`
	Ecosystem       string `json:"ecosystem"`
	PreviousVersion string `json:"previous_version"`
	NewVersion      string `json:"new_version"`
	BumpType        string `json:"bump_type"`
	Changelog       string `json:"changelog"`
	TagName         string `json:"tag_name"`
	Prefix          string `json:"prefix"`
}

// NewProjectRelease builds a release record, deriving the tag name from the
// configured tag format (pass "" for the default "{prefix}/v{version}").
func NewProjectRelease(name, ecosystem, previousVersion, newVersion, bumpType, changelog, prefix, tagFormat string) ProjectRelease {
	return ProjectRelease{
		Name:            name,
		Ecosystem:       ecosystem,
		PreviousVersion: previousVersion,
		NewVersion:      newVersion,
		BumpType:        bumpType,
		Changelog:       changelog,
		TagName:         gitrepo.ReleaseTagName(tagFormat, prefix, newVersion),
		Prefix:          prefix,
	}
}

// ReleaseManifest is the serializable record of a prepared release.
//
// Once signed it must be treated as immutable; mutating the release list
// and re-signing is allowed only because Sign clears the prior signature
// first, so a stale signature can never survive a mutation.
type ReleaseManifest struct {
	SchemaVersion string           `json:"schema_version"`
	CreatedAt     string           `json:"created_at"`
	CreatedBy     string           `json:"created_by"`
	BaseBranch    string           `json:"base_branch"`
	Releases      []ProjectRelease `json:"releases"`
	Signature     string           `json:"signature,omitempty"`
}

// New stamps a fresh manifest with the current schema version and an
// RFC-3339 UTC timestamp.
func New(baseBranch, createdBy string) *ReleaseManifest {
	return &ReleaseManifest{
		SchemaVersion: SchemaVersion,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
		CreatedBy:     createdBy,
		BaseBranch:    baseBranch,
	}
}

// AddRelease appends a release record. Order is the caller's iteration
// order, typically graph discovery order.
func (m *ReleaseManifest) AddRelease(r ProjectRelease) {
	m.Releases = append(m.Releases, r)
}

// signaturePayload builds the canonical, deterministic payload covered by
// the signature: schema version, timestamp, author, base branch, and a
// comma-joined name@version list, in that fixed order. Any mutation to one
// of those fields changes the payload and therefore the signature.
func (m *ReleaseManifest) signaturePayload() string {
	pairs := make([]string, 0, len(m.Releases))
	for _, r := range m.Releases {
		pairs = append(pairs, r.Name+"@"+r.NewVersion)
	}
	return fmt.Sprintf("%s:%s:%s:%s:%s",
		m.SchemaVersion, m.CreatedAt, m.CreatedBy, m.BaseBranch, strings.Join(pairs, ","))
}

// Sign computes the detached HMAC-SHA256 signature and stores it as
// "sha256=" + hex. Any prior signature is cleared first so a re-sign after
// mutating the release list never leaves a stale value.
//
// The returned flag is true when the secret is shorter than
// MinSecretLength; signing proceeds regardless, and the caller should warn.
func (m *ReleaseManifest) Sign(secret string) (weakSecret bool) {
	m.Signature = ""
	m.Signature = computeSignature(m.signaturePayload(), secret)
	return len(secret) < MinSecretLength
}

// Verify recomputes the signature with the given secret and compares it to
// the stored one in constant time. It detects any mutation to the schema
// version, timestamp, author, branch, or any release's name or version.
func (m *ReleaseManifest) Verify(secret string) bool {
	if m.Signature == "" {
		return false
	}
	expected := computeSignature(m.signaturePayload(), secret)
	return hmac.Equal([]byte(expected), []byte(m.Signature))
}

func computeSignature(payload, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// ToJSON renders the manifest as indented JSON.
func (m *ReleaseManifest) ToJSON() ([]byte, error) {
	out, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize release manifest: %w", err)
	}
	return append(out, '\n'), nil
}

// FromJSON parses a manifest from its JSON form.
func FromJSON(data []byte) (*ReleaseManifest, error) {
	var m ReleaseManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse release manifest: %w", err)
	}
	return &m, nil
}

// SaveToFile persists the manifest at path, creating parent directories as
// needed.
func (m *ReleaseManifest) SaveToFile(path string) error {
	out, err := m.ToJSON()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("failed to write release manifest %q: %w", path, err)
	}
	return nil
}

// GenerateFilename returns a deterministic-prefix, globally-unique manifest
// filename: release-{yyyymmdd-hhmmss}-{8-hex}.json. The random suffix keeps
// two preparations within the same second from colliding.
func GenerateFilename() string {
	stamp := time.Now().UTC().Format("20060102-150405")
	suffix := uuid.NewString()[:8]
	return fmt.Sprintf("release-%s-%s.json", stamp, suffix)
}
