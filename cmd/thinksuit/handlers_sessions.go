// Package main provides the CLI entry point for the ThinkSuit
// orchestration engine.
//
// handlers_sessions.go contains the session inspection handlers: list,
// show, status, fork, and forks.
package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/machellerogden/thinksuit-sub000/internal/sessions"
	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

// runSessionsList prints recent sessions with their derived status.
func runSessionsList(cmd *cobra.Command, limit int, since time.Duration, ascending, jsonOutput bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	registry, streams := openRegistry(cfg)
	defer streams.Close()

	opts := sessions.ListOptions{Limit: limit}
	if since > 0 {
		opts.From = time.Now().UTC().Add(-since)
	}
	if ascending {
		opts.SortOrder = "asc"
	}

	records, err := registry.List(cmd.Context(), opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		encoded, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(encoded))
		return nil
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "No sessions found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION ID\tSTATUS\tLAST EVENT\tUPDATED")
	for _, md := range records {
		lastEvent, updated := "-", "-"
		if md.Last != nil {
			lastEvent = string(md.Last.Event)
			updated = md.Last.Time.Local().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", md.SessionID, md.Status, lastEvent, updated)
	}
	return w.Flush()
}

// runSessionsShow prints a session journal with line indexes, the same
// indexes "sessions fork --at" expects.
func runSessionsShow(cmd *cobra.Command, sessionID string, jsonOutput bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	registry, streams := openRegistry(cfg)
	defer streams.Close()

	md, err := registry.GetMetadata(sessionID)
	if err != nil {
		return err
	}
	if md.Status == models.StatusNotFound {
		return fmt.Errorf("session %s not found", sessionID)
	}

	journal, err := registry.Journal(sessionID)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if jsonOutput {
		lines, err := journal.ReadLines()
		if err != nil {
			return err
		}
		for _, line := range lines {
			fmt.Fprintln(out, line)
		}
		return nil
	}

	events, err := journal.ReadEvents()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "IDX\tTIME\tEVENT\tDETAIL")
	for i, ev := range events {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n",
			i, ev.Time.Local().Format("15:04:05.000"), ev.Event, eventDetail(ev))
	}
	return w.Flush()
}

// eventDetail extracts the one payload field worth a glance per event.
func eventDetail(ev models.Event) string {
	switch ev.Event {
	case models.EventSessionInput:
		if text, ok := ev.Data["input"].(string); ok {
			return truncate(text, 60)
		}
	case models.EventSessionResponse:
		if text, ok := ev.Data["response"].(string); ok {
			return truncate(text, 60)
		}
	case models.EventSessionTurnComplete:
		if status, ok := ev.Data["status"].(string); ok {
			return "status=" + status
		}
	case models.EventSessionInterrupted:
		if reason, ok := ev.Data["reason"].(string); ok {
			return truncate(reason, 60)
		}
	case models.EventOrchestrationError:
		if reason, ok := ev.Data["reason"].(string); ok {
			return truncate(reason, 60)
		}
	}
	return ""
}

// runSessionsStatus prints the constant-cost status probe for one
// session.
func runSessionsStatus(cmd *cobra.Command, sessionID string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	registry, streams := openRegistry(cfg)
	defer streams.Close()

	md, err := registry.GetMetadata(sessionID)
	if err != nil {
		return err
	}
	if md.Status == models.StatusNotFound {
		return fmt.Errorf("session %s not found", sessionID)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "session:  %s\n", md.SessionID)
	fmt.Fprintf(out, "status:   %s\n", md.Status)
	fmt.Fprintf(out, "path:     %s\n", md.Path)
	if md.First != nil {
		fmt.Fprintf(out, "started:  %s\n", md.First.Time.Local().Format("2006-01-02 15:04:05"))
	}
	if md.Last != nil {
		fmt.Fprintf(out, "updated:  %s\n", md.Last.Time.Local().Format("2006-01-02 15:04:05"))
		fmt.Fprintf(out, "last:     %s\n", md.Last.Event)
	}
	return nil
}

// runSessionsFork copies a session up to a completed turn into a new
// session.
func runSessionsFork(cmd *cobra.Command, sessionID string, at int) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	registry, streams := openRegistry(cfg)
	defer streams.Close()

	result, err := registry.Fork(sessionID, at)
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("fork failed: %s", result.Error)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Forked %s at event %d\n", sessionID, at)
	fmt.Fprintf(out, "New session: %s\n", result.SessionID)
	return nil
}

// runSessionsForks prints every fork point around a session, marking
// where the queried session sits among the alternatives.
func runSessionsForks(cmd *cobra.Command, sessionID string, jsonOutput bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	registry, streams := openRegistry(cfg)
	defer streams.Close()

	views, err := registry.SessionForks(sessionID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		encoded, err := json.MarshalIndent(views, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(encoded))
		return nil
	}
	if len(views) == 0 {
		fmt.Fprintf(out, "No forks recorded for session %s.\n", sessionID)
		return nil
	}

	for _, view := range views {
		fmt.Fprintf(out, "Fork point %d (event %s):\n", view.ForkPoint, view.EventID)
		for i, sid := range view.Sessions {
			marker := "-"
			if i == view.Index {
				marker = "*"
			}
			suffix := ""
			if i == 0 {
				suffix = " (parent)"
			}
			fmt.Fprintf(out, "  %s %s%s\n", marker, sid, suffix)
		}
	}
	return nil
}
