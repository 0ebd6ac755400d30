package module

import (
	"fmt"
	"strings"

	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

// Issues returns every contract breach found in a module. An empty
// slice means the module is usable.
func Issues(m *Module) []string {
	if m == nil {
		return []string{"module is nil"}
	}

	var issues []string

	if m.Namespace == "" {
		issues = append(issues, "namespace is required")
	}
	if m.Name == "" {
		issues = append(issues, "name is required")
	} else if !identOK(m.Name) {
		issues = append(issues, fmt.Sprintf("name must be lowercase alphanumeric with hyphens: got %q", m.Name))
	}
	if m.Version == "" {
		issues = append(issues, "version is required")
	}

	issues = append(issues, roleIssues(m)...)

	for key, p := range m.Prompts {
		if key == "" {
			issues = append(issues, "prompts: empty key")
			continue
		}
		if p.Text == "" && p.Fn == nil {
			issues = append(issues, fmt.Sprintf("prompts.%s: neither text nor function set", key))
		}
	}

	for dim, fn := range m.Classifiers {
		if dim == "" {
			issues = append(issues, "classifiers: empty dimension")
			continue
		}
		if fn == nil {
			issues = append(issues, fmt.Sprintf("classifiers.%s: nil function", dim))
		}
	}

	seenRules := map[string]bool{}
	for i, r := range m.Rules {
		switch {
		case r.Name == "":
			issues = append(issues, fmt.Sprintf("rules[%d]: name is required", i))
		case seenRules[r.Name]:
			issues = append(issues, fmt.Sprintf("rules[%d]: duplicate name %q", i, r.Name))
		default:
			seenRules[r.Name] = true
		}
		if r.Condition == nil {
			issues = append(issues, fmt.Sprintf("rules[%d] %s: nil condition", i, r.Name))
		}
		if r.Action == nil {
			issues = append(issues, fmt.Sprintf("rules[%d] %s: nil action", i, r.Name))
		}
	}

	if m.Compose == nil {
		issues = append(issues, "composeInstructions is required")
	}

	for i, dep := range m.ToolDependencies {
		if strings.TrimSpace(dep) == "" {
			issues = append(issues, fmt.Sprintf("toolDependencies[%d]: empty name", i))
		}
	}

	return issues
}

func roleIssues(m *Module) []string {
	var issues []string

	if len(m.Roles) == 0 {
		issues = append(issues, "at least one role is required")
		return issues
	}

	seen := map[string]bool{}
	defaults := 0
	for i, r := range m.Roles {
		switch {
		case r.Name == "":
			issues = append(issues, fmt.Sprintf("roles[%d]: name is required", i))
		case !identOK(r.Name):
			issues = append(issues, fmt.Sprintf("roles[%d]: name must be lowercase alphanumeric with hyphens: got %q", i, r.Name))
		case seen[r.Name]:
			issues = append(issues, fmt.Sprintf("roles[%d]: duplicate name %q", i, r.Name))
		default:
			seen[r.Name] = true
		}
		if r.Default {
			defaults++
		}
		if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 2) {
			issues = append(issues, fmt.Sprintf("roles.%s: temperature %v outside [0,2]", r.Name, *r.Temperature))
		}
		if r.BaseTokens < 0 {
			issues = append(issues, fmt.Sprintf("roles.%s: baseTokens must be non-negative", r.Name))
		}
		if r.Prompts.System == "" {
			issues = append(issues, fmt.Sprintf("roles.%s: system prompt is required", r.Name))
		}
	}
	if defaults != 1 {
		issues = append(issues, fmt.Sprintf("exactly one role must be default, found %d", defaults))
	}

	return issues
}

// Validate checks the module against the contract and returns an
// E_VALIDATION error listing every breach, or nil.
func Validate(m *Module) error {
	issues := Issues(m)
	if len(issues) == 0 {
		return nil
	}
	name := "<nil>"
	if m != nil {
		name = m.Key()
	}
	return models.NewKindError(models.ErrValidation,
		"module %s invalid: %s", name, strings.Join(issues, "; "))
}

func identOK(s string) bool {
	for _, r := range s {
		if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-') {
			return false
		}
	}
	return s != ""
}
