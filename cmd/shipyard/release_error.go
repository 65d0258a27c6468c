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
)

// ReleaseError wraps a release-pipeline failure with project context.
//
// # Description
//
// Provides rich error context for release failures, including the
// pipeline step that failed, the project being processed (if any), and
// the exit code the CLI should terminate with. Implements the error
// interface and supports unwrapping.
//
// # Example
//
//	err := NewReleaseError("rewrite", "acme-core", 1, originalErr)
//	fmt.Println(err.Error()) // "rewrite failed for acme-core: ..."
//
//	var relErr *ReleaseError
//	if errors.As(err, &relErr) {
//	    os.Exit(relErr.ExitCode)
//	}
type ReleaseError struct {
	// Step is the pipeline step that failed (e.g. "prepare", "rewrite").
	Step string

	// Project is the project being processed, empty for repo-wide steps.
	Project string

	// ExitCode is the code the process should exit with.
	ExitCode int

	// Wrapped is the underlying error (may be nil for status-only exits).
	Wrapped error
}

// Error returns a formatted error message.
func (e *ReleaseError) Error() string {
	switch {
	case e.Project != "" && e.Wrapped != nil:
		return fmt.Sprintf("%s failed for %s: %v", e.Step, e.Project, e.Wrapped)
	case e.Wrapped != nil:
		return fmt.Sprintf("%s failed: %v", e.Step, e.Wrapped)
	case e.Project != "":
		return fmt.Sprintf("%s failed for %s", e.Step, e.Project)
	}
	return fmt.Sprintf("%s failed", e.Step)
}

// Unwrap returns the underlying error.
//
// # Description
//
// Enables errors.Is() and errors.As() to work through the error chain.
func (e *ReleaseError) Unwrap() error {
	return e.Wrapped
}

// NewReleaseError creates a ReleaseError with full context.
//
// # Inputs
//
//   - step: The pipeline step that failed (e.g. "prepare")
//   - project: Project name, or "" for repo-wide failures
//   - exitCode: Exit code the CLI should use
//   - wrapped: Underlying error (may be nil)
func NewReleaseError(step, project string, exitCode int, wrapped error) *ReleaseError {
	return &ReleaseError{
		Step:     step,
		Project:  project,
		ExitCode: exitCode,
		Wrapped:  wrapped,
	}
}

// exitCode is a ReleaseError carrying only an exit code, for commands
// whose status is conveyed through the process exit code rather than an
// error message (shipyard status with no projects).
func exitCode(step string, code int) *ReleaseError {
	return &ReleaseError{Step: step, ExitCode: code}
}
