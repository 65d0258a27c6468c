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

	"github.com/spf13/cobra"

	"github.com/AleutianAI/shipyard/pkg/analyzer"
	"github.com/AleutianAI/shipyard/pkg/session"
)

// runStatusCommand lists every discovered project in dependency order
// with its pending commits and the bump its history suggests.
//
// Exits with code 1 when no releasable projects are found so scripts can
// branch on the result without parsing output.
func runStatusCommand(cmd *cobra.Command, args []string) error {
	sess, err := session.New(".", logger)
	if err != nil {
		return NewReleaseError("status", "", 1, err)
	}
	defer logger.Close()

	order, err := sess.Graph().Toposorted()
	if err != nil {
		return NewReleaseError("status", "", 1, err)
	}
	if len(order) == 0 {
		fmt.Println("No releasable projects found in this repository.")
		return exitCode("status", 1)
	}

	histories, err := sess.AnalyzeHistories()
	if err != nil {
		return NewReleaseError("status", "", 1, err)
	}

	an := analyzer.New()
	fmt.Printf("Found %d projects (in dependency order):\n\n", len(order))
	for _, id := range order {
		proj := sess.Graph().Lookup(id)
		fmt.Printf("%s @ %s (%s) [%s]\n",
			proj.Name(), proj.Version, describePrefix(proj.Prefix), proj.Ecosystem())

		history := histories.Lookup(id)
		if len(history.Commits) == 0 {
			fmt.Println("    up to date")
			continue
		}
		rec := an.RecommendBump(history.Messages())
		fmt.Printf("    %d pending commit(s), suggested bump: %s\n",
			len(history.Commits), rec)
	}
	return nil
}

// describePrefix renders a project location like the rest of the output:
// the repository root is called out by name, everything else is quoted.
func describePrefix(prefix string) string {
	if prefix == "" {
		return "root"
	}
	return "`" + prefix + "`"
}
