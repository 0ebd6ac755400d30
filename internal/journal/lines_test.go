package journal

import (
	"bytes"
	"strings"
	"testing"
)

func collectLines(t *testing.T, data string) []string {
	t.Helper()
	var lines []string
	err := scanLines(strings.NewReader(data), func(line []byte) error {
		lines = append(lines, string(line))
		return nil
	})
	if err != nil {
		t.Fatalf("scanLines: %v", err)
	}
	return lines
}

func TestScanLines(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty", "", nil},
		{"single unterminated", "abc", []string{"abc"}},
		{"single terminated", "abc\n", []string{"abc"}},
		{"two lines", "a\nb\n", []string{"a", "b"}},
		{"trailing unterminated", "a\nb", []string{"a", "b"}},
		{"crlf", "a\r\nb\r\n", []string{"a", "b"}},
		{"mixed terminators", "a\r\nb\nc", []string{"a", "b", "c"}},
		{"empty lines preserved", "a\n\nb\n", []string{"a", "", "b"}},
		{"leading empty line", "\na\n", []string{"", "a"}},
		{"lone cr is content", "a\rb\n", []string{"a\rb"}},
		{"trailing lone cr", "a\r", []string{"a\r"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := collectLines(t, tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("lines = %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("line %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestScanLines_CRLFAcrossBufferBoundary(t *testing.T) {
	// Place the CR as the final byte of the first read chunk and the LF as
	// the first byte of the second, so the pair must collapse across reads.
	var buf bytes.Buffer
	buf.WriteString(strings.Repeat("a", scanBufSize-1))
	buf.WriteString("\r\n")
	buf.WriteString("b\n")

	lines := collectLines(t, buf.String())
	if len(lines) != 2 {
		t.Fatalf("line count = %d, want 2", len(lines))
	}
	if len(lines[0]) != scanBufSize-1 {
		t.Errorf("first line length = %d, want %d", len(lines[0]), scanBufSize-1)
	}
	if strings.Contains(lines[0], "\r") {
		t.Error("first line should not retain the CR")
	}
	if lines[1] != "b" {
		t.Errorf("second line = %q, want b", lines[1])
	}
}

func TestScanLines_EarlyStop(t *testing.T) {
	seen := 0
	err := scanLines(strings.NewReader("a\nb\nc\n"), func([]byte) error {
		seen++
		if seen == 2 {
			return errStopScan
		}
		return nil
	})
	if err != nil {
		t.Fatalf("scanLines: %v", err)
	}
	if seen != 2 {
		t.Errorf("callback ran %d times, want 2", seen)
	}
}

func TestLastLineOf(t *testing.T) {
	tests := []struct {
		name           string
		input          string
		want           string
		wantTerminated bool
	}{
		{"terminated file", "a\nb\n", "b", true},
		{"unterminated tail", "a\nb", "b", true},
		{"no terminator in window", "partial", "partial", false},
		{"crlf file", "a\r\nb\r\n", "b", true},
		{"trailing empty line", "a\n\n", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, terminated := lastLineOf([]byte(tt.input))
			if string(got) != tt.want || terminated != tt.wantTerminated {
				t.Errorf("lastLineOf(%q) = (%q, %v), want (%q, %v)",
					tt.input, got, terminated, tt.want, tt.wantTerminated)
			}
		})
	}
}
