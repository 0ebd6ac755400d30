// Package main provides the CLI entry point for the ThinkSuit
// orchestration engine.
//
// handlers.go contains the command handlers for run, tools, schema, and
// validate. Session inspection handlers live in handlers_sessions.go.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/machellerogden/thinksuit-sub000/internal/approval"
	"github.com/machellerogden/thinksuit-sub000/internal/config"
	"github.com/machellerogden/thinksuit-sub000/internal/observability"
	"github.com/machellerogden/thinksuit-sub000/internal/providers"
	"github.com/machellerogden/thinksuit-sub000/internal/scheduler"
	"github.com/machellerogden/thinksuit-sub000/internal/tools"
)

// approvalPollInterval is how often the run command checks the arbiter
// for tool calls awaiting a decision.
const approvalPollInterval = 250 * time.Millisecond

// =============================================================================
// Run Command Handler
// =============================================================================

// runRun schedules one turn and waits for it, prompting for tool
// approvals and translating Ctrl-C into a cooperative interrupt.
func runRun(cmd *cobra.Command, sessionID, input string, autoApprove, jsonOutput bool) error {
	errOut := cmd.ErrOrStderr()

	if strings.TrimSpace(input) == "" && !term.IsTerminal(int(os.Stdin.Fd())) {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		input = string(data)
	}
	if strings.TrimSpace(input) == "" {
		return fmt.Errorf("input is required; pass it as arguments or pipe it on stdin")
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if autoApprove {
		cfg.Policy.AutoApproveTools = true
	}

	ctx := cmd.Context()

	provider, err := providers.FromConfig(ctx, cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("provider setup: %w", err)
	}

	opts := scheduler.Options{Config: cfg, Provider: provider}

	if cfg.Metrics.Enabled {
		opts.Metrics = observability.NewMetrics()
		metricsSrv := observability.NewMetricsServer(cfg.Metrics.Addr, slog.Default())
		if err := metricsSrv.Start(); err != nil {
			slog.Warn("metrics endpoint unavailable", "error", err)
		} else {
			defer metricsSrv.Shutdown(ctx)
		}
	}
	if cfg.Tracing.Enabled {
		tracer, shutdown := observability.NewTracer(observability.TraceConfig{
			ServiceName:    cfg.Tracing.ServiceName,
			ServiceVersion: version,
			Endpoint:       cfg.Tracing.Endpoint,
			SampleRatio:    cfg.Tracing.SampleRatio,
		})
		opts.Tracer = tracer
		defer func() {
			if err := shutdown(ctx); err != nil {
				slog.Warn("trace exporter shutdown error", "error", err)
			}
		}()
	}

	eng, err := scheduler.New(opts)
	if err != nil {
		return err
	}
	defer eng.Close()

	interactive := !cfg.Policy.AutoApproveTools && term.IsTerminal(int(os.Stdin.Fd()))
	if cfg.Tools.Enabled && !cfg.Policy.AutoApproveTools && !interactive {
		slog.Warn("stdin is not a terminal; tool approvals will wait for the configured timeout",
			"approvalTimeoutMs", cfg.Policy.ApprovalTimeoutMs)
	}

	turn, err := eng.Schedule(ctx, scheduler.TurnRequest{SessionID: sessionID, Input: input})
	if err != nil {
		return err
	}
	if !turn.Scheduled {
		return fmt.Errorf("session %s is busy: %s", turn.SessionID, turn.Reason)
	}

	label := turn.SessionID
	switch {
	case turn.IsNew:
		label += " (new)"
	case turn.IsForked:
		label += " (forked)"
	}
	fmt.Fprintf(errOut, "session: %s\ntrace:   %s\n", label, turn.TraceID)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ticker := time.NewTicker(approvalPollInterval)
	defer ticker.Stop()
	stdin := bufio.NewReader(os.Stdin)

	for {
		select {
		case res := <-turn.Result():
			return printTurnResult(cmd, turn, res, jsonOutput)

		case <-ticker.C:
			if !interactive {
				continue
			}
			for _, req := range eng.Arbiter().PendingRequests() {
				approved := promptApproval(stdin, errOut, req)
				if !eng.Arbiter().Resolve(req.ApprovalID, approved) {
					fmt.Fprintln(errOut, "approval request expired before the decision was recorded")
				}
			}

		case <-sigCh:
			fmt.Fprintln(errOut, "\ninterrupt requested; waiting for the turn to stop")
			turn.Interrupt("interrupted by user")
		}
	}
}

// promptApproval asks for a y/N decision on one pending tool call.
// Anything but an explicit yes denies.
func promptApproval(reader *bufio.Reader, out io.Writer, req approval.Request) bool {
	args := []byte("{}")
	if len(req.Args) > 0 {
		if encoded, err := json.Marshal(req.Args); err == nil {
			args = encoded
		}
	}
	fmt.Fprintf(out, "\nTool approval required\n  tool: %s\n  args: %s\nApprove? [y/N]: ", req.Tool, args)

	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

// printTurnResult renders the terminal outcome of a turn. The response
// text goes to stdout; everything else goes to stderr so output can be
// piped.
func printTurnResult(cmd *cobra.Command, turn *scheduler.Turn, res scheduler.TurnResult, jsonOutput bool) error {
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	switch {
	case res.Err != nil:
		return res.Err

	case res.Interrupt != nil:
		fmt.Fprintf(errOut, "Turn interrupted: %s\n", res.Interrupt.Reason)
		if res.Interrupt.Stage != "" {
			fmt.Fprintf(errOut, "  stage:  %s\n", res.Interrupt.Stage)
		}
		if res.Interrupt.CycleCount > 0 || res.Interrupt.TokensUsed > 0 {
			fmt.Fprintf(errOut, "  cycles: %d  tokens: %d  tool calls: %d\n",
				res.Interrupt.CycleCount, res.Interrupt.TokensUsed, res.Interrupt.ToolCallsExecuted)
		}
		fmt.Fprintf(errOut, "Resume with: thinksuit run --session %s\n", turn.SessionID)
		return nil

	default:
		if jsonOutput {
			encoded, err := json.MarshalIndent(res.Response, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(encoded))
			return nil
		}
		fmt.Fprintln(out, res.Response.Output)
		fmt.Fprintf(errOut, "\n[finish: %s | tokens: %d prompt + %d completion]\n",
			res.Response.FinishReason, res.Response.Usage.Prompt, res.Response.Usage.Completion)
		return nil
	}
}

// =============================================================================
// Tools Command Handlers
// =============================================================================

// runToolsList starts the configured MCP servers, discovers tools, and
// prints each with its policy admission.
func runToolsList(cmd *cobra.Command) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	out := cmd.OutOrStdout()

	if !cfg.Tools.Enabled || len(cfg.Tools.MCPServers) == 0 {
		fmt.Fprintln(out, "Tools are disabled in the configuration.")
		return nil
	}

	mgr, err := tools.StartServers(cmd.Context(), cfg.Tools, tools.StartOptions{
		Cwd:                cfg.Cwd,
		AllowedDirectories: cfg.Tools.AllowedDirectories,
	}, slog.Default())
	if err != nil {
		return fmt.Errorf("start tool servers: %w", err)
	}
	defer func() { _ = mgr.StopAll() }()

	for _, st := range mgr.Status() {
		if !st.Connected {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: server %s is configured but not connected\n", st.Name)
		}
	}

	discovered := tools.Discover(mgr, slog.Default())
	if len(discovered) == 0 {
		fmt.Fprintln(out, "No tools discovered.")
		return nil
	}
	allowed := tools.FilterAllowed(discovered, cfg.Policy.AllowedTools, cfg.Policy.DeniedTools)

	names := make([]string, 0, len(discovered))
	for name := range discovered {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSERVER\tALLOWED\tDESCRIPTION")
	for _, name := range names {
		desc := discovered[name]
		admitted := "no"
		if _, ok := allowed[name]; ok {
			admitted = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", desc.Name, desc.Server, admitted, truncate(desc.Description, 60))
	}
	return w.Flush()
}

// =============================================================================
// Schema / Validate Command Handlers
// =============================================================================

// runSchema prints the generated configuration schema.
func runSchema(cmd *cobra.Command) error {
	data, err := config.JSONSchema()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

// runValidate loads the configuration and prints a summary, failing when
// the file is missing or invalid.
func runValidate(cmd *cobra.Command) error {
	resolved := resolveConfigPath(configPath)
	if resolved == "" {
		return fmt.Errorf("no configuration file found; pass --config or set THINKSUIT_CONFIG")
	}
	cfg, err := config.Load(resolved)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration valid: %s\n", resolved)
	fmt.Fprintf(out, "  module:    %s\n", cfg.Module)
	fmt.Fprintf(out, "  provider:  %s\n", cfg.Provider)
	fmt.Fprintf(out, "  model:     %s\n", cfg.Model)
	fmt.Fprintf(out, "  sessions:  %s\n", cfg.SessionsDir)
	fmt.Fprintf(out, "  traces:    %s\n", cfg.TracesDir)
	if cfg.Tools.Enabled {
		fmt.Fprintf(out, "  tools:     %d MCP server(s)\n", len(cfg.Tools.MCPServers))
	} else {
		fmt.Fprintln(out, "  tools:     disabled")
	}
	if cfg.APIKey() == "" {
		fmt.Fprintf(out, "  warning:   no API key available for provider %q\n", cfg.Provider)
	}
	return nil
}

// truncate shortens s to max runes with an ellipsis.
func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
