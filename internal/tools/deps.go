package tools

import (
	"sort"
	"strings"

	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

// ValidateDependencies checks that every tool the module requires was
// actually discovered. A failure here is fatal for the turn: running a
// module whose tools are missing produces confusing half-results, so the
// scheduler reports it instead.
func ValidateDependencies(required []string, discovered map[string]Descriptor) error {
	var missing []string
	for _, name := range required {
		if _, ok := discovered[name]; !ok {
			missing = append(missing, name)
		}
	}

	if len(missing) == 0 {
		return nil
	}

	sort.Strings(missing)
	return models.NewKindError(models.ErrTool,
		"missing required tools: %s (have: %s)",
		strings.Join(missing, ", "),
		strings.Join(Names(discovered), ", "))
}
