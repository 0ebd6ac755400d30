package execute

import (
	"fmt"
	"strings"

	"github.com/machellerogden/thinksuit-sub000/internal/module"
	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

// collapseResults folds per-role outputs into one string per the result
// strategy. errNoun names the failing unit in error markers ("step" for
// sequential plans, "branch" for parallel). formatted falls back to
// label when the module supplies no formatter.
func collapseResults(rs models.ResultStrategy, results []module.BranchResult, errNoun string, format module.FormatFunc) string {
	switch rs {
	case models.ResultConcat:
		parts := make([]string, 0, len(results))
		for _, r := range results {
			parts = append(parts, resultText(r, errNoun))
		}
		return strings.Join(parts, "\n\n")
	case models.ResultLabel:
		parts := make([]string, 0, len(results))
		for _, r := range results {
			parts = append(parts, fmt.Sprintf("[%s]:\n%s", r.Role, resultText(r, errNoun)))
		}
		return strings.Join(parts, "\n\n")
	case models.ResultFormatted:
		if format != nil {
			return format(results)
		}
		return collapseResults(models.ResultLabel, results, errNoun, nil)
	default: // last
		if len(results) == 0 {
			return ""
		}
		return resultText(results[len(results)-1], errNoun)
	}
}

func resultText(r module.BranchResult, errNoun string) string {
	if r.Err != "" {
		return fmt.Sprintf("[Error in %s %s]", r.Role, errNoun)
	}
	return r.Output
}

// gatherPartial attaches completed outputs to an interrupt that does not
// already carry gathered data, so partial work survives the abort.
func gatherPartial(it *models.Interrupt, results []module.BranchResult) *models.Interrupt {
	if it.GatheredData != nil {
		return it
	}
	outputs := make([]map[string]any, 0, len(results))
	for _, r := range results {
		if r.Role == "" {
			continue
		}
		entry := map[string]any{"role": r.Role}
		if r.Err != "" {
			entry["error"] = r.Err
		} else {
			entry["output"] = r.Output
		}
		outputs = append(outputs, entry)
	}
	if len(outputs) == 0 {
		return it
	}
	it.GatheredData = map[string]any{
		"completed": len(outputs),
		"outputs":   outputs,
	}
	return it
}
