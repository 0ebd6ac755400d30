package config

import (
	"encoding/json"
	"sort"
	"strings"
)

// Flatten renders the configuration as dotted-path leaves, the shape
// fact aggregation injects into rule evaluation. Keys beginning with an
// underscore are private and skipped. Credentials never appear because
// secret fields are excluded from the JSON form entirely.
func (c *Config) Flatten() map[string]any {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	out := map[string]any{}
	flattenInto(out, "", doc)
	return out
}

func flattenInto(out map[string]any, prefix string, v any) {
	m, ok := v.(map[string]any)
	if !ok {
		out[prefix] = v
		return
	}
	for key, val := range m {
		if strings.HasPrefix(key, "_") {
			continue
		}
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		flattenInto(out, path, val)
	}
}

// FlattenSorted returns the flattened paths in lexicographic order, for
// deterministic fact emission.
func (c *Config) FlattenSorted() []string {
	flat := c.Flatten()
	paths := make([]string, 0, len(flat))
	for p := range flat {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
