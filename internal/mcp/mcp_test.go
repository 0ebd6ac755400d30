package mcp

import (
	"strings"
	"testing"
)

func TestServerConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ServerConfig
		wantErr string
	}{
		{
			name: "valid stdio",
			cfg:  ServerConfig{Name: "fs", Transport: TransportStdio, Command: "mcp-server-fs", Args: []string{"--root", "/data"}},
		},
		{
			name: "valid http",
			cfg:  ServerConfig{Name: "remote", Transport: TransportHTTP, URL: "https://mcp.example.com"},
		},
		{
			name:    "missing name",
			cfg:     ServerConfig{Transport: TransportStdio, Command: "x"},
			wantErr: "name is required",
		},
		{
			name:    "stdio missing command",
			cfg:     ServerConfig{Name: "fs", Transport: TransportStdio},
			wantErr: "command is required",
		},
		{
			name:    "command path traversal",
			cfg:     ServerConfig{Name: "fs", Transport: TransportStdio, Command: "../../bin/evil"},
			wantErr: "path traversal",
		},
		{
			name:    "workdir path traversal",
			cfg:     ServerConfig{Name: "fs", Transport: TransportStdio, Command: "srv", WorkDir: "/tmp/../../etc"},
			wantErr: "path traversal",
		},
		{
			name:    "shell metachars in args",
			cfg:     ServerConfig{Name: "fs", Transport: TransportStdio, Command: "srv", Args: []string{"a; rm -rf /"}},
			wantErr: "shell metacharacters",
		},
		{
			name:    "command substitution in args",
			cfg:     ServerConfig{Name: "fs", Transport: TransportStdio, Command: "srv", Args: []string{"$(whoami)"}},
			wantErr: "shell metacharacters",
		},
		{
			name:    "http missing url",
			cfg:     ServerConfig{Name: "remote", Transport: TransportHTTP},
			wantErr: "URL is required",
		},
		{
			name:    "http bad scheme",
			cfg:     ServerConfig{Name: "remote", Transport: TransportHTTP, URL: "ftp://mcp.example.com"},
			wantErr: "must start with",
		},
		{
			name:    "unknown transport",
			cfg:     ServerConfig{Name: "x", Transport: "carrier-pigeon"},
			wantErr: "unknown transport",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestUnsafeShellArg(t *testing.T) {
	safe := []string{"--root", "/data/files", "hello world", `--name="a b"`}
	for _, s := range safe {
		if unsafeShellArg(s) {
			t.Errorf("flagged safe arg %q", s)
		}
	}

	dangerous := []string{"a;b", "a|b", "a&&b", "`id`", "a > /etc/passwd", "${HOME}", "$(whoami)", "a\nb"}
	for _, s := range dangerous {
		if !unsafeShellArg(s) {
			t.Errorf("missed dangerous arg %q", s)
		}
	}
}

func TestRequestTimeoutDefault(t *testing.T) {
	cfg := &ServerConfig{Name: "s"}
	if got := cfg.requestTimeout(); got.Seconds() != 30 {
		t.Errorf("default timeout = %v, want 30s", got)
	}
}
