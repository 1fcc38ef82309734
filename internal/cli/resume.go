// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var resumeNow bool

func init() {
	resumeCmd.Flags().BoolVar(&resumeNow, "now", false, "immediately attempt to resume the current session instead of waiting for the next stop event")
	rootCmd.AddCommand(resumeCmd)
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume automatic resume dispatching",
	RunE:  runResume,
}

func runResume(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	if err := c.Resume(ctx, resumeNow); err != nil {
		return notRunningOrErr(err)
	}
	fmt.Println("resumed")
	return nil
}
