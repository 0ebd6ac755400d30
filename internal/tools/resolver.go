package tools

import (
	"sort"
	"strings"
)

// Tool access patterns:
//   - "read_file"  exact tool name
//   - "fs:*"       every tool from server fs
//   - "*"          every tool
//
// Denial always wins over allowance. An empty allow list allows
// everything not denied.

// IsAllowed reports whether a tool passes the allow/deny policy.
func IsAllowed(allowed, denied []string, desc Descriptor) bool {
	for _, pattern := range denied {
		if matchPattern(pattern, desc) {
			return false
		}
	}

	if len(allowed) == 0 {
		return true
	}

	for _, pattern := range allowed {
		if matchPattern(pattern, desc) {
			return true
		}
	}

	return false
}

// FilterAllowed returns the subset of a discovery map that the policy
// admits, preserving descriptor contents.
func FilterAllowed(discovered map[string]Descriptor, allowed, denied []string) map[string]Descriptor {
	result := make(map[string]Descriptor, len(discovered))
	for name, desc := range discovered {
		if IsAllowed(allowed, denied, desc) {
			result[name] = desc
		}
	}
	return result
}

// FilterNames applies the policy to a plain name list using the
// discovery map for server attribution. Unknown names pass through only
// when the allow list is empty and nothing denies them by exact match.
func FilterNames(names []string, discovered map[string]Descriptor, allowed, denied []string) []string {
	var result []string
	for _, name := range names {
		desc, ok := discovered[name]
		if !ok {
			desc = Descriptor{Name: name}
		}
		if IsAllowed(allowed, denied, desc) {
			result = append(result, name)
		}
	}
	sort.Strings(result)
	return result
}

func matchPattern(pattern string, desc Descriptor) bool {
	if pattern == "*" {
		return true
	}

	if server, ok := strings.CutSuffix(pattern, ":*"); ok {
		return desc.Server != "" && desc.Server == server
	}

	return pattern == desc.Name
}
