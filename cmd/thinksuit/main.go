// Package main provides the CLI entry point for the ThinkSuit
// orchestration engine.
//
// ThinkSuit runs one reasoning turn at a time: input is classified into
// signals, rules select an execution plan, and the plan runs against an
// LLM provider with optional MCP tools. Every turn appends to an
// append-only session journal, so sessions can be resumed, inspected,
// and forked from any completed turn.
//
// # Basic Usage
//
// Run a turn in a fresh session:
//
//	thinksuit run "compare these two approaches"
//
// Continue an existing session:
//
//	thinksuit run --session 20260826T120000-af3k9x2m "go deeper on the second one"
//
// Inspect sessions:
//
//	thinksuit sessions list
//	thinksuit sessions show 20260826T120000-af3k9x2m
//	thinksuit sessions fork 20260826T120000-af3k9x2m --at 12
//
// # Environment Variables
//
//   - THINKSUIT_CONFIG: Path to configuration file
//   - ANTHROPIC_API_KEY: Anthropic API key for Claude models
//   - OPENAI_API_KEY: OpenAI API key for GPT models
//   - GEMINI_API_KEY: Google API key for Gemini models
//
// A .env file in the working directory is loaded before config
// resolution.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
//
// Example build command:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version    = "dev"     // Semantic version (e.g., "v1.0.0")
	commit     = "none"    // Git commit SHA
	date       = "unknown" // Build timestamp
	configPath string
)

func main() {
	// API keys and endpoints commonly live in a local .env during
	// development; absence is not an error.
	_ = godotenv.Load(".env")

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// This is separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "thinksuit",
		Short: "ThinkSuit - session-based LLM orchestration engine",
		Long: `ThinkSuit orchestrates LLM reasoning one turn at a time.

Each turn runs a decision pipeline (signal detection, rule evaluation,
plan selection) and executes the selected strategy: a single call, a
sequence of roles, parallel perspectives, or a tool-use task loop.
Sessions are append-only JSONL journals that can be resumed and forked.

Supported providers: Anthropic (Claude), OpenAI (GPT), Google (Gemini)`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		// SilenceUsage prevents printing usage on every error.
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file (or set THINKSUIT_CONFIG)")

	rootCmd.AddCommand(
		buildRunCmd(),
		buildSessionsCmd(),
		buildToolsCmd(),
		buildSchemaCmd(),
		buildValidateCmd(),
	)

	return rootCmd
}
