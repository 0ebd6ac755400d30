// Package main provides the CLI entry point for the ThinkSuit
// orchestration engine.
//
// commands.go contains the cobra command definitions and their flag
// configurations. Each command builder function creates a command and
// wires it to its handler.
package main

import (
	"strings"

	"github.com/spf13/cobra"
)

// =============================================================================
// Run Command
// =============================================================================

// buildRunCmd creates the "run" command that schedules one turn. This is
// the primary command for working with the engine.
func buildRunCmd() *cobra.Command {
	var (
		sessionID   string
		autoApprove bool
		jsonOutput  bool
	)

	cmd := &cobra.Command{
		Use:   "run [input]",
		Short: "Run one turn and print the response",
		Long: `Run one turn against the engine and print the response.

The turn will:
1. Acquire the session (or start a fresh one)
2. Classify the input into signals and evaluate the rule set
3. Execute the selected strategy against the configured provider
4. Append every step to the session journal

Input is taken from the command arguments, or from stdin when piped.
Tool calls pause for interactive approval on a terminal unless
--auto-approve-tools is set. Ctrl-C interrupts the turn cooperatively;
the session stays resumable.`,
		Example: `  # Fresh session
  thinksuit run "summarize the tradeoffs between these designs"

  # Continue a session
  thinksuit run --session 20260826T120000-af3k9x2m "expand the second point"

  # Piped input, machine-readable output
  cat notes.md | thinksuit run --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, sessionID, strings.Join(args, " "), autoApprove, jsonOutput)
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "",
		"Session ID to continue (empty starts a new session)")
	cmd.Flags().BoolVar(&autoApprove, "auto-approve-tools", false,
		"Approve all tool calls without prompting")
	cmd.Flags().BoolVar(&jsonOutput, "json", false,
		"Print the full response as JSON")

	return cmd
}

// =============================================================================
// Tools Commands
// =============================================================================

// buildToolsCmd creates the "tools" command group.
func buildToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect MCP tool discovery",
	}
	cmd.AddCommand(buildToolsListCmd())
	return cmd
}

func buildToolsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Start configured MCP servers and list discovered tools",
		Long: `Start the configured MCP servers, discover their tools, and print
each tool with whether the policy allow/deny lists admit it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToolsList(cmd)
		},
	}
	return cmd
}

// =============================================================================
// Schema / Validate Commands
// =============================================================================

// buildSchemaCmd creates the "schema" command that emits the JSON schema
// for the configuration file.
func buildSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the configuration JSON schema",
		Long: `Print the JSON schema the configuration file is validated against.

The schema is generated from the Config struct itself, so it always
matches what the loader accepts. Useful for editor completion:

  thinksuit schema > thinksuit-config.schema.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(cmd)
		},
	}
}

// buildValidateCmd creates the "validate" command that checks a
// configuration file without running anything.
func buildValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		Long: `Load the configuration file, apply includes and environment expansion,
check it against the schema, and print a summary of the result.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd)
		},
	}
}
