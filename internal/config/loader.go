package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

const includeKey = "$include"

// LoadRaw reads a configuration file into a merged raw map, resolving
// $include directives depth-first with cycle detection. Included files
// merge under the including file, so the outermost file wins.
func LoadRaw(path string) (map[string]any, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path is required")
	}
	return loadRawRecursive(ExpandPath(path), map[string]bool{})
}

func loadRawRecursive(path string, seen map[string]bool) (map[string]any, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if seen[absPath] {
		return nil, fmt.Errorf("config include cycle detected at %s", absPath)
	}
	seen[absPath] = true
	defer delete(seen, absPath)

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}
	raw, err := parseRawBytes([]byte(expandEnv(string(data))), absPath)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", absPath, err)
	}

	includes, err := takeIncludes(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}

	base, err := resolveIncludes(filepath.Dir(absPath), includes, seen)
	if err != nil {
		return nil, err
	}
	return mergeMaps(base, raw), nil
}

// resolveIncludes loads each included file, relative paths resolved
// against the including file's directory, and merges them in listed
// order. Later includes win over earlier ones.
// expandEnv substitutes $VAR and ${VAR} references but leaves the
// $include directive alone, since expansion runs before includes are
// extracted.
func expandEnv(s string) string {
	return os.Expand(s, func(name string) string {
		if name == "include" {
			return includeKey
		}
		return os.Getenv(name)
	})
}

func resolveIncludes(baseDir string, includes []string, seen map[string]bool) (map[string]any, error) {
	merged := map[string]any{}
	for _, inc := range includes {
		if strings.TrimSpace(inc) == "" {
			continue
		}
		incPath := ExpandPath(inc)
		if !filepath.IsAbs(incPath) {
			incPath = filepath.Join(baseDir, incPath)
		}
		incRaw, err := loadRawRecursive(incPath, seen)
		if err != nil {
			return nil, err
		}
		merged = mergeMaps(merged, incRaw)
	}
	return merged, nil
}

func parseRawBytes(data []byte, pathHint string) (map[string]any, error) {
	switch strings.ToLower(filepath.Ext(pathHint)) {
	case ".json", ".json5":
		return parseJSON5(data)
	default:
		return parseYAML(data)
	}
}

func parseJSON5(data []byte) (map[string]any, error) {
	var raw map[string]any
	if err := json5.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

func parseYAML(data []byte) (map[string]any, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	var raw map[string]any
	if err := decoder.Decode(&raw); err != nil {
		if err == io.EOF {
			return map[string]any{}, nil
		}
		return nil, err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("expected a single document")
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// takeIncludes removes the $include directive from raw and returns its
// paths.
func takeIncludes(raw map[string]any) ([]string, error) {
	val, ok := raw[includeKey]
	if !ok {
		return nil, nil
	}
	delete(raw, includeKey)

	list, isList := val.([]any)
	if !isList {
		s, isString := val.(string)
		if !isString {
			return nil, fmt.Errorf("$include must be a string or list of strings")
		}
		return []string{s}, nil
	}

	paths := make([]string, 0, len(list))
	for _, entry := range list {
		s, ok := entry.(string)
		if !ok {
			return nil, fmt.Errorf("$include entries must be strings")
		}
		paths = append(paths, s)
	}
	return paths, nil
}

// mergeMaps deep-merges src over dst. Nested maps merge recursively;
// everything else, lists included, replaces wholesale.
func mergeMaps(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for key, incoming := range src {
		current, exists := dst[key]
		if !exists {
			dst[key] = incoming
			continue
		}
		curMap, curOK := current.(map[string]any)
		incMap, incOK := incoming.(map[string]any)
		if curOK && incOK {
			dst[key] = mergeMaps(curMap, incMap)
			continue
		}
		dst[key] = incoming
	}
	return dst
}

// decodeRawConfig strictly decodes a merged raw map; unknown fields at
// any level are an error.
func decodeRawConfig(raw map[string]any) (*Config, error) {
	payload, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("serialize config: %w", err)
	}
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(payload))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		if err == io.EOF {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}
