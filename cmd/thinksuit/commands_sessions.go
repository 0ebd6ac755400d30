// Package main provides the CLI entry point for the ThinkSuit
// orchestration engine.
//
// commands_sessions.go contains the session inspection command group:
// list, show, status, fork, and forks.
package main

import (
	"time"

	"github.com/spf13/cobra"
)

// buildSessionsCmd creates the "sessions" command group.
func buildSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and fork session journals",
	}
	cmd.AddCommand(
		buildSessionsListCmd(),
		buildSessionsShowCmd(),
		buildSessionsStatusCmd(),
		buildSessionsForkCmd(),
		buildSessionsForksCmd(),
	)
	return cmd
}

func buildSessionsListCmd() *cobra.Command {
	var (
		limit      int
		since      time.Duration
		ascending  bool
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions with derived status",
		Example: `  # Most recent sessions first
  thinksuit sessions list --limit 20

  # Everything from the last two days, oldest first
  thinksuit sessions list --since 48h --asc`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsList(cmd, limit, since, ascending, jsonOutput)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum sessions to list (0 for all)")
	cmd.Flags().DurationVar(&since, "since", 0, "Only sessions started within this window (e.g. 24h)")
	cmd.Flags().BoolVar(&ascending, "asc", false, "Oldest first instead of newest first")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print metadata records as JSON")
	return cmd
}

func buildSessionsShowCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print a session journal, one event per line",
		Long: `Print every event of a session journal with its line index. The index
is what "sessions fork --at" takes as the fork point.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsShow(cmd, args[0], jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print raw journal lines instead of the formatted view")
	return cmd
}

func buildSessionsStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <session-id>",
		Short: "Probe one session's status without reading the full journal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsStatus(cmd, args[0])
		},
	}
}

func buildSessionsForkCmd() *cobra.Command {
	var at int
	cmd := &cobra.Command{
		Use:   "fork <session-id>",
		Short: "Fork a session at a completed turn",
		Long: `Copy a session journal up to a completed turn into a new session.

The fork point is a journal line index (see "sessions show") and must be
a session.turn.complete event. The source journal is never modified;
lineage is recorded in both sessions' sidecar metadata.`,
		Example: `  thinksuit sessions fork 20260826T120000-af3k9x2m --at 12`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsFork(cmd, args[0], at)
		},
	}
	cmd.Flags().IntVar(&at, "at", -1, "Journal line index of the turn to fork from (required)")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

func buildSessionsForksCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "forks <session-id>",
		Short: "Show the fork tree around a session",
		Long: `Show every fork point of a session: children forked from it, and the
parent fork point it descended from when the session is itself a fork.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsForks(cmd, args[0], jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print fork views as JSON")
	return cmd
}
