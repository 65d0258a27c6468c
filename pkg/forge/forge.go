// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package forge talks to the code-hosting service (GitHub) for the release
// steps that live outside the local repository: creating releases and
// generating pull-request content.
//
// All network calls use bounded exponential backoff. Only transient
// failures are retried: HTTP 429 and the 5xx gateway statuses, plus
// transport errors. Client errors like 401 or 422 fail immediately; the
// request will not get better by repeating it.
package forge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cenk/backoff"

	"github.com/AleutianAI/shipyard/pkg/logging"
)

// ErrNoToken is returned when no GitHub token is available.
var ErrNoToken = errors.New("no GitHub token found (set SHIPYARD_GITHUB_TOKEN or GITHUB_TOKEN)")

// maxRetries bounds the retry loop for transient failures.
const maxRetries = 4

// retryAfterCap bounds how long a server-supplied Retry-After header can
// make us wait.
const retryAfterCap = 30 * time.Second

// CredentialProvider supplies the API token. Abstracted so tests and
// future credential stores can plug in without touching the client.
type CredentialProvider interface {
	Token() (string, error)
}

// EnvCredentials reads the token from the environment:
// SHIPYARD_GITHUB_TOKEN first, GITHUB_TOKEN as the CI-friendly fallback.
type EnvCredentials struct{}

// Token returns the token from the environment or ErrNoToken.
func (EnvCredentials) Token() (string, error) {
	for _, key := range []string{"SHIPYARD_GITHUB_TOKEN", "GITHUB_TOKEN"} {
		if v := os.Getenv(key); v != "" {
			return v, nil
		}
	}
	return "", ErrNoToken
}

// RepoSlug identifies a repository on the forge.
type RepoSlug struct {
	Owner string
	Repo  string
}

// String returns "owner/repo".
func (s RepoSlug) String() string {
	return s.Owner + "/" + s.Repo
}

// SlugFromURL derives the owner/repo slug from a Git remote URL, accepting
// both SSH ("git@github.com:owner/repo.git") and HTTPS
// ("https://github.com/owner/repo") forms.
func SlugFromURL(url string) (RepoSlug, error) {
	trimmed := strings.TrimSuffix(url, ".git")

	var path string
	switch {
	case strings.HasPrefix(trimmed, "git@"):
		if i := strings.Index(trimmed, ":"); i >= 0 {
			path = trimmed[i+1:]
		}
	case strings.HasPrefix(trimmed, "https://"), strings.HasPrefix(trimmed, "http://"), strings.HasPrefix(trimmed, "ssh://"):
		rest := trimmed[strings.Index(trimmed, "://")+3:]
		if i := strings.Index(rest, "/"); i >= 0 {
			path = rest[i+1:]
		}
	}

	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return RepoSlug{}, fmt.Errorf("cannot derive owner/repo from remote URL %q", url)
	}
	return RepoSlug{Owner: parts[0], Repo: parts[1]}, nil
}

// Client is a minimal GitHub API client for release automation.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      CredentialProvider
	log        *logging.Logger

	// newBackOff builds the retry policy per request; overridable in
	// tests to avoid real waits.
	newBackOff func() backoff.BackOff
}

// NewClient creates a client against the public GitHub API.
func NewClient(creds CredentialProvider, log *logging.Logger) *Client {
	return &Client{
		baseURL:    "https://api.github.com",
		httpClient: &http.Client{Timeout: 30 * time.Second},
		creds:      creds,
		log:        log,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			return backoff.WithMaxRetries(b, maxRetries)
		},
	}
}

// ReleaseParams describes one GitHub release to create.
type ReleaseParams struct {
	TagName string
	Name    string
	Body    string

	// Prerelease marks the release as a prerelease; derived from the
	// version's prerelease identifier by the caller.
	Prerelease bool
}

// CreateRelease creates a GitHub release for an existing tag.
func (c *Client) CreateRelease(slug RepoSlug, params ReleaseParams) error {
	payload, err := json.Marshal(map[string]any{
		"tag_name":   params.TagName,
		"name":       params.Name,
		"body":       params.Body,
		"draft":      false,
		"prerelease": params.Prerelease,
	})
	if err != nil {
		return fmt.Errorf("failed to encode release request: %w", err)
	}

	url := fmt.Sprintf("%s/repos/%s/releases", c.baseURL, slug)
	return c.post(url, payload)
}

// post sends an authenticated POST with the retry policy applied.
func (c *Client) post(url string, payload []byte) error {
	token, err := c.creds.Token()
	if err != nil {
		return err
	}

	operation := func() error {
		req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "token "+token)
		req.Header.Set("Accept", "application/vnd.github.v3+json")
		req.Header.Set("User-Agent", "shipyard")
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			// Transport errors are transient by assumption.
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		reqErr := fmt.Errorf("forge request failed (%s): %s", resp.Status, strings.TrimSpace(string(body)))

		if !retryableStatus(resp.StatusCode) {
			return backoff.Permanent(reqErr)
		}

		if wait := retryAfterDelay(resp); wait > 0 {
			c.log.Warn("forge asked us to back off", "status", resp.StatusCode, "wait", wait.String())
			time.Sleep(wait)
		}
		return reqErr
	}

	notify := func(err error, next time.Duration) {
		c.log.Warn("retrying forge request", "url", url, "error", err, "next_attempt_in", next.String())
	}

	return backoff.RetryNotify(operation, c.newBackOff(), notify)
}

// retryableStatus reports whether a status code is worth retrying.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// retryAfterDelay honors a Retry-After header, capped at retryAfterCap.
func retryAfterDelay(resp *http.Response) time.Duration {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return 0
	}
	wait := time.Duration(seconds) * time.Second
	if wait > retryAfterCap {
		wait = retryAfterCap
	}
	return wait
}
