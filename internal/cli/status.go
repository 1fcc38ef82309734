// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wingedpig/palingenesis/pkg/client"
)

var statusJSON bool

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the daemon's current state and stats",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	st, err := c.Status(ctx)
	if err != nil {
		return notRunningOrErr(err)
	}

	if statusJSON {
		out, _ := json.MarshalIndent(st, "", "  ")
		fmt.Println(string(out))
		return nil
	}

	fmt.Printf("state:              %s\n", st.State)
	fmt.Printf("uptime:             %s\n", time.Duration(st.UptimeSeconds*float64(time.Second)).Round(time.Second))
	if st.CurrentSession != "" {
		fmt.Printf("current session:    %s\n", st.CurrentSession)
	}
	fmt.Printf("time saved:         %s\n", st.TimeSavedHuman)
	fmt.Println()
	fmt.Printf("%-22s %d\n", "saves:", st.Stats.SavesCount)
	fmt.Printf("%-22s %d\n", "successful resumes:", st.Stats.SuccessfulResumes)
	fmt.Printf("%-22s %d\n", "failed resumes:", st.Stats.FailedResumes)
	fmt.Printf("%-22s %d\n", "rate limits:", st.Stats.RateLimits)
	fmt.Printf("%-22s %d\n", "context exhaustions:", st.Stats.ContextExhaustions)
	return nil
}

// notRunningOrErr classifies a client failure: an *APIError means the
// daemon is up and rejected the request on its own terms (e.g. "no
// active session to replace"), so it's reported as-is; anything else
// is a transport failure, most often because no daemon is listening.
func notRunningOrErr(err error) error {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return userErr("%s", apiErr.Message)
	}
	return userErr("%w (is the daemon running?)", err)
}
