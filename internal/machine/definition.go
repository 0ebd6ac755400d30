package machine

import (
	_ "embed"
	"encoding/json"
	"sync"

	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

//go:embed cycle.json
var defaultDefinition []byte

// Definition is a declarative cycle: named states, one entry point.
// Nested cycles spawned by execution handlers enter at NestedStartAt
// instead, carrying their plan in, so they never re-run plan selection.
type Definition struct {
	Comment       string           `json:"comment,omitempty"`
	StartAt       string           `json:"startAt"`
	NestedStartAt string           `json:"nestedStartAt,omitempty"`
	States        map[string]State `json:"states"`
}

// State is one node of the definition. Type selects the shape: handler
// states name a resource and either a next state or end; choice states
// route on a blackboard variable; succeed and fail terminate.
type State struct {
	Type     string   `json:"type"`
	Resource string   `json:"resource,omitempty"`
	Next     string   `json:"next,omitempty"`
	End      bool     `json:"end,omitempty"`
	Catch    []Catch  `json:"catch,omitempty"`
	Choices  []Choice `json:"choices,omitempty"`
	Default  string   `json:"default,omitempty"`

	// Error is the kind a fail state raises.
	Error string `json:"error,omitempty"`
}

// Catch routes matching handler errors to another state. Kinds are
// matched literally; "*" matches everything. Interrupts are never
// caught regardless of clauses.
type Catch struct {
	Errors []string `json:"errors"`
	Next   string   `json:"next"`
}

// Choice is one branch of a choice state.
type Choice struct {
	Variable string `json:"variable"`
	Equals   string `json:"equals"`
	Next     string `json:"next"`
}

var (
	defaultOnce   sync.Once
	defaultParsed *Definition
)

// Default returns the built-in cycle definition.
func Default() *Definition {
	defaultOnce.Do(func() {
		d, err := Parse(defaultDefinition)
		if err != nil {
			// The embedded definition is fixed at build time; failing to
			// parse it is a programming error.
			panic(err)
		}
		defaultParsed = d
	})
	return defaultParsed
}

// Parse decodes and structurally validates a definition.
func Parse(data []byte) (*Definition, error) {
	var d Definition
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, models.WrapKind(models.ErrValidation, err, "machine definition does not parse")
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

func (d *Definition) validate() error {
	fail := func(format string, args ...any) error {
		return models.NewKindError(models.ErrValidation, "machine definition: "+format, args...)
	}
	if d.StartAt == "" {
		return fail("startAt missing")
	}
	if _, ok := d.States[d.StartAt]; !ok {
		return fail("startAt %q is not a state", d.StartAt)
	}
	if d.NestedStartAt != "" {
		if _, ok := d.States[d.NestedStartAt]; !ok {
			return fail("nestedStartAt %q is not a state", d.NestedStartAt)
		}
	}
	target := func(name, from string) error {
		if _, ok := d.States[name]; !ok {
			return fail("state %q routes to unknown state %q", from, name)
		}
		return nil
	}
	for name, st := range d.States {
		switch st.Type {
		case "handler":
			if st.Resource == "" {
				return fail("handler state %q names no resource", name)
			}
			if st.Next == "" && !st.End {
				return fail("handler state %q has neither next nor end", name)
			}
			if st.Next != "" {
				if err := target(st.Next, name); err != nil {
					return err
				}
			}
			for _, c := range st.Catch {
				if len(c.Errors) == 0 {
					return fail("catch on %q matches no errors", name)
				}
				if err := target(c.Next, name); err != nil {
					return err
				}
			}
		case "choice":
			if len(st.Choices) == 0 {
				return fail("choice state %q has no choices", name)
			}
			for _, c := range st.Choices {
				if c.Variable == "" {
					return fail("choice on %q names no variable", name)
				}
				if err := target(c.Next, name); err != nil {
					return err
				}
			}
			if st.Default == "" {
				return fail("choice state %q has no default", name)
			}
			if err := target(st.Default, name); err != nil {
				return err
			}
		case "succeed":
		case "fail":
			if st.Error == "" {
				return fail("fail state %q names no error kind", name)
			}
		default:
			return fail("state %q has unknown type %q", name, st.Type)
		}
	}
	return nil
}

// resolveVariable reads a choice variable off the blackboard. Unknown
// variables and nil fields resolve to the empty string, which falls
// through to the choice default.
func resolveVariable(in Input, variable string) string {
	switch variable {
	case "plan.strategy":
		if in.Plan == nil {
			return ""
		}
		return string(in.Plan.Strategy)
	case "plan.role":
		if in.Plan == nil {
			return ""
		}
		return in.Plan.Role
	}
	return ""
}

// matches reports whether a catch clause covers the error kind.
func (c Catch) matches(kind models.ErrorKind) bool {
	for _, e := range c.Errors {
		if e == "*" || e == string(kind) {
			return true
		}
	}
	return false
}
