package tools

import (
	"testing"

	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

func TestIsAllowed(t *testing.T) {
	readFile := Descriptor{Name: "read_file", Server: "fs"}
	webFetch := Descriptor{Name: "fetch", Server: "web"}

	tests := []struct {
		name    string
		allowed []string
		denied  []string
		desc    Descriptor
		want    bool
	}{
		{"empty policy allows", nil, nil, readFile, true},
		{"exact allow", []string{"read_file"}, nil, readFile, true},
		{"allow list excludes others", []string{"read_file"}, nil, webFetch, false},
		{"server wildcard allow", []string{"fs:*"}, nil, readFile, true},
		{"server wildcard misses other server", []string{"fs:*"}, nil, webFetch, false},
		{"star allows everything", []string{"*"}, nil, webFetch, true},
		{"deny wins over allow", []string{"read_file"}, []string{"read_file"}, readFile, false},
		{"deny wins over star", []string{"*"}, []string{"fs:*"}, readFile, false},
		{"deny unrelated", []string{"*"}, []string{"web:*"}, readFile, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAllowed(tt.allowed, tt.denied, tt.desc); got != tt.want {
				t.Errorf("IsAllowed(%v, %v, %s) = %v, want %v",
					tt.allowed, tt.denied, tt.desc.Name, got, tt.want)
			}
		})
	}
}

func TestFilterAllowed(t *testing.T) {
	discovered := map[string]Descriptor{
		"read_file":  {Name: "read_file", Server: "fs"},
		"write_file": {Name: "write_file", Server: "fs"},
		"fetch":      {Name: "fetch", Server: "web"},
	}

	filtered := FilterAllowed(discovered, []string{"fs:*"}, []string{"write_file"})
	if len(filtered) != 1 {
		t.Fatalf("filtered = %v", Names(filtered))
	}
	if _, ok := filtered["read_file"]; !ok {
		t.Error("read_file should survive the filter")
	}
}

func TestFilterNames(t *testing.T) {
	discovered := map[string]Descriptor{
		"read_file": {Name: "read_file", Server: "fs"},
	}

	got := FilterNames([]string{"read_file", "unknown_tool"}, discovered, nil, []string{"unknown_tool"})
	if len(got) != 1 || got[0] != "read_file" {
		t.Errorf("FilterNames = %v", got)
	}
}

func TestValidateDependencies(t *testing.T) {
	discovered := map[string]Descriptor{
		"read_file": {Name: "read_file", Server: "fs"},
	}

	if err := ValidateDependencies([]string{"read_file"}, discovered); err != nil {
		t.Errorf("satisfied deps = %v, want nil", err)
	}

	err := ValidateDependencies([]string{"read_file", "run_query"}, discovered)
	if err == nil {
		t.Fatal("expected error for missing dependency")
	}
	if !models.IsKind(err, models.ErrTool) {
		t.Errorf("kind = %v, want E_TOOL", models.KindOf(err))
	}
}

func TestValidateDependenciesEmpty(t *testing.T) {
	if err := ValidateDependencies(nil, nil); err != nil {
		t.Errorf("no deps = %v, want nil", err)
	}
}
