package config

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/machellerogden/thinksuit-sub000/internal/schema"
	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

var (
	schemaOnce sync.Once
	schemaJSON []byte
	schemaErr  error
)

// JSONSchema returns the JSON Schema generated from the Config struct.
func JSONSchema() ([]byte, error) {
	schemaOnce.Do(func() {
		r := &jsonschema.Reflector{
			FieldNameTag:               "yaml",
			RequiredFromJSONSchemaTags: true,
			DoNotReference:             true,
		}
		s := r.Reflect(&Config{})
		schemaJSON, schemaErr = json.MarshalIndent(s, "", "  ")
	})
	return schemaJSON, schemaErr
}

// knownTopLevelKeys are the only keys accepted at the root of a config
// document, plus the $include directive consumed by the loader.
var knownTopLevelKeys = map[string]bool{
	"module":      true,
	"provider":    true,
	"model":       true,
	"cwd":         true,
	"sessionsDir": true,
	"tracesDir":   true,
	"providers":   true,
	"policy":      true,
	"tools":       true,
	"logging":     true,
	"metrics":     true,
	"tracing":     true,
	"rateLimit":   true,
}

// validateRaw rejects unknown top-level keys, then checks the document
// shape against the generated schema.
func validateRaw(raw map[string]any) error {
	var unknown []string
	for key := range raw {
		if !knownTopLevelKeys[key] {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return models.NewKindError(models.ErrValidation,
			"unknown config keys: %s", strings.Join(unknown, ", "))
	}

	doc, err := JSONSchema()
	if err != nil {
		return fmt.Errorf("generate config schema: %w", err)
	}
	res, err := schema.ValidateDocument("config", string(doc), raw)
	if err != nil {
		return err
	}
	if !res.Valid {
		return models.NewKindError(models.ErrValidation,
			"invalid config: %s", strings.Join(res.Errors, "; "))
	}
	return nil
}
