// Package schema validates decision-plane documents against embedded
// JSON Schemas. Facts crossing stage boundaries and plans about to be
// executed are checked in place; user configuration is checked against a
// schema supplied by the config package. Validation failures surface as
// E_VALIDATION errors listing every offending path.
package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

// Result reports a validation outcome. Errors hold one formatted
// "<path>: <message>" entry per violation.
type Result struct {
	Valid  bool
	Errors []string
}

type registry struct {
	once    sync.Once
	initErr error
	fact    *jsonschema.Schema
	plan    *jsonschema.Schema
}

var schemas registry

func initSchemas() error {
	schemas.once.Do(func() {
		fact, err := jsonschema.CompileString("fact", factSchema)
		if err != nil {
			schemas.initErr = err
			return
		}
		schemas.fact = fact

		plan, err := jsonschema.CompileString("plan", planSchema)
		if err != nil {
			schemas.initErr = err
			return
		}
		schemas.plan = plan
	})
	return schemas.initErr
}

// ValidateFacts checks every fact in the map. The returned result
// aggregates violations across all facts, each prefixed with its type
// and index.
func ValidateFacts(facts models.FactMap) (*Result, error) {
	if err := initSchemas(); err != nil {
		return nil, err
	}
	res := &Result{Valid: true}
	types := make([]models.FactType, 0, len(facts))
	for t := range facts {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	for _, t := range types {
		for i, f := range facts[t] {
			doc, err := roundTrip(f)
			if err != nil {
				return nil, err
			}
			if verr := schemas.fact.Validate(doc); verr != nil {
				res.Valid = false
				prefix := fmt.Sprintf("%s[%d]", t, i)
				res.Errors = append(res.Errors, collect(prefix, verr)...)
			}
		}
	}
	return res, nil
}

// ValidatePlan checks a plan selected for execution.
func ValidatePlan(plan *models.Plan) (*Result, error) {
	if err := initSchemas(); err != nil {
		return nil, err
	}
	if plan == nil {
		return &Result{Errors: []string{"plan: missing"}}, nil
	}
	doc, err := roundTrip(plan)
	if err != nil {
		return nil, err
	}
	res := &Result{Valid: true}
	if verr := schemas.plan.Validate(doc); verr != nil {
		res.Valid = false
		res.Errors = collect("plan", verr)
	}
	return res, nil
}

// ValidateDocument checks an arbitrary document against a caller-compiled
// schema source. The config package routes its generated schema through
// here so all validation reporting shares one format.
func ValidateDocument(name, schemaJSON string, doc any) (*Result, error) {
	compiled, err := jsonschema.CompileString(name, schemaJSON)
	if err != nil {
		return nil, fmt.Errorf("compile %s schema: %w", name, err)
	}
	norm, err := roundTrip(doc)
	if err != nil {
		return nil, err
	}
	res := &Result{Valid: true}
	if verr := compiled.Validate(norm); verr != nil {
		res.Valid = false
		res.Errors = collect(name, verr)
	}
	return res, nil
}

// AssertValidFacts returns an E_VALIDATION error when any fact is
// malformed.
func AssertValidFacts(facts models.FactMap) error {
	res, err := ValidateFacts(facts)
	if err != nil {
		return models.WrapKind(models.ErrValidation, err, "fact validation unavailable")
	}
	return assert(res, "invalid facts")
}

// AssertValidPlan returns an E_VALIDATION error when the plan is
// malformed.
func AssertValidPlan(plan *models.Plan) error {
	res, err := ValidatePlan(plan)
	if err != nil {
		return models.WrapKind(models.ErrValidation, err, "plan validation unavailable")
	}
	return assert(res, "invalid plan")
}

func assert(res *Result, msg string) error {
	if res.Valid {
		return nil
	}
	return models.NewKindError(models.ErrValidation, "%s: %s", msg, strings.Join(res.Errors, "; "))
}

// roundTrip normalizes a Go value into the generic JSON shape the
// validator expects.
func roundTrip(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal for validation: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal for validation: %w", err)
	}
	return doc, nil
}

// collect flattens a validation error tree into "<path>: <message>"
// lines rooted at prefix.
func collect(prefix string, err error) []string {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{fmt.Sprintf("%s: %v", prefix, err)}
	}
	var out []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := prefix
			if e.InstanceLocation != "" {
				loc = prefix + strings.ReplaceAll(e.InstanceLocation, "/", ".")
			}
			out = append(out, fmt.Sprintf("%s: %s", loc, e.Message))
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(verr)
	return out
}
