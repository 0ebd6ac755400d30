// Package main provides the CLI entry point for the ThinkSuit
// orchestration engine.
//
// config.go contains configuration resolution and the registry helper
// shared by the session inspection commands.
package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/machellerogden/thinksuit-sub000/internal/config"
	"github.com/machellerogden/thinksuit-sub000/internal/journal"
	"github.com/machellerogden/thinksuit-sub000/internal/sessions"
)

// defaultConfigPath is probed when neither the flag nor the environment
// names a file.
const defaultConfigPath = "~/.thinksuit/config.yaml"

// cliStreamBudget bounds journal file handles for one-shot commands.
const cliStreamBudget = 16

// resolveConfigPath determines the configuration file path based on:
// 1. Explicit --config flag
// 2. THINKSUIT_CONFIG environment variable
// 3. The default path, when a file exists there
func resolveConfigPath(path string) string {
	if strings.TrimSpace(path) != "" {
		return path
	}
	if env := strings.TrimSpace(os.Getenv("THINKSUIT_CONFIG")); env != "" {
		return env
	}
	def := config.ExpandPath(defaultConfigPath)
	if _, err := os.Stat(def); err == nil {
		return def
	}
	return ""
}

// loadConfig resolves and loads the configuration, falling back to the
// built-in defaults when no file exists anywhere.
func loadConfig(path string) (*config.Config, error) {
	resolved := resolveConfigPath(path)
	if resolved == "" {
		return config.Default(), nil
	}
	return config.Load(resolved)
}

// openRegistry builds a session registry for inspection commands that
// read journals without scheduling turns. Callers close the streams.
func openRegistry(cfg *config.Config) (*sessions.Registry, *journal.Streams) {
	streams := journal.NewStreams(cliStreamBudget, slog.Default())
	return sessions.NewRegistry(cfg.SessionsDir, streams, slog.Default()), streams
}
