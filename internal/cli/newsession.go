// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	newSessionPrompt   string
	newSessionNoBackup bool
)

func init() {
	newSessionCmd.Flags().StringVar(&newSessionPrompt, "prompt", "", "custom first prompt for the new session (default: \"Continue workflow\")")
	newSessionCmd.Flags().BoolVar(&newSessionNoBackup, "no-backup", false, "skip backing up the replaced session file")
	rootCmd.AddCommand(newSessionCmd)
}

var newSessionCmd = &cobra.Command{
	Use:   "new-session",
	Short: "Force-start a new session in place of the current stopped one",
	RunE:  runNewSession,
}

func runNewSession(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	path, message, err := c.NewSession(ctx, newSessionPrompt, newSessionNoBackup)
	if err != nil {
		return notRunningOrErr(err)
	}
	if message != "" {
		fmt.Println(message)
	}
	if path != "" {
		fmt.Println(path)
	}
	return nil
}
