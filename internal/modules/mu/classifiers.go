package mu

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/machellerogden/thinksuit-sub000/internal/module"
	"github.com/machellerogden/thinksuit-sub000/internal/providers"
	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

// Signal vocabularies per dimension. The LLM tier filters its answers
// to these; unknown labels are dropped.
var (
	contractVocab    = []string{"ack-only", "capture-only", "explore", "analyze", "plan"}
	claimVocab       = []string{"universal", "high-quantifier", "forecast", "normative"}
	supportVocab     = []string{"source-cited", "tool-result-attached", "anecdote", "unsupported"}
	calibrationVocab = []string{"high-certainty", "hedged"}
	temporalVocab    = []string{"time-specified", "undated"}
)

// Regex tier. Patterns favor precision over recall; the LLM tier picks
// up what these miss when a provider is configured.
var (
	ackRe     = regexp.MustCompile(`(?i)^\s*(ok(ay)?|got it|thanks?|thank you|sounds good|great|cool|noted|ack(nowledged)?|perfect|nice)\s*[.!]*\s*$`)
	captureRe = regexp.MustCompile(`(?i)\b(just noting|for the record|no need to (respond|reply)|capture this|jotting (this|it) down|just so you know|fyi)\b`)
	exploreRe = regexp.MustCompile(`(?i)\b(brainstorm|what if|possibilit|explore|ideas (for|about|on)|imagine|open[- ]ended|riff on|think (out loud|aloud))`)
	analyzeRe = regexp.MustCompile(`(?i)\b(analy[sz]|break (this|it|that) down|compare|evaluate|assess|pros and cons|trade-?offs?|root cause|why (does|did|is|are)|dig into)`)
	planRe    = regexp.MustCompile(`(?i)\b(plan (for|to|out)|roadmap|steps to|sequence the|in what order|milestones)\b`)

	universalRe = regexp.MustCompile(`(?i)\b(all|every|none|no one|nobody|always|never|everyone|everything|nothing)\b`)
	highQuantRe = regexp.MustCompile(`(?i)\b(most|almost (all|every)|hardly any|vast majority|nearly (all|every)|the majority of|very few)\b`)
	forecastRe  = regexp.MustCompile(`(?i)\b(will (be|have|become|happen)|going to|by (next|20\d\d)|predict|forecast|expect(s|ed)? to|is likely to)`)
	normativeRe = regexp.MustCompile(`(?i)\b(should(n't)?|must(n't)?|ought to|have to|needs? to|has to)\b`)

	sourceRe   = regexp.MustCompile(`(?i)(https?://|according to|\bet al\b|\bcitation|a (study|paper|report) (by|from|in)|source:)`)
	anecdoteRe = regexp.MustCompile(`(?i)\b(in my experience|i('ve| have) (seen|noticed|found)|a (friend|colleague)|one time|anecdot)`)

	certaintyRe = regexp.MustCompile(`(?i)\b(definitely|certainly|obviously|clearly|undoubtedly|without (a )?doubt|100%|guaranteed|no question)\b`)
	hedgeRe     = regexp.MustCompile(`(?i)\b(maybe|perhaps|i (think|guess)|possibly|might|could be|not (entirely )?sure|it seems|sort of|kind of|probably)\b`)

	// Month names, relative day terms, years, quarters. "may" is left
	// out of the month list; as a modal verb it false-positives badly.
	timeRe = regexp.MustCompile(`(?i)\b((19|20)\d\d|january|february|march|april|june|july|august|september|october|november|december|yesterday|today|tomorrow|(last|next|this) (week|month|year|quarter)|q[1-4])\b`)
)

// classifierSet builds the per-dimension classifiers. With a provider
// configured, dimensions whose regex tier finds nothing fall through
// to one LLM labeling call.
type classifierSet struct {
	provider providers.Provider
	model    string
	logger   *slog.Logger
}

func (c *classifierSet) classifiers() map[string]module.Classifier {
	return map[string]module.Classifier{
		"contract":    c.twoTier("contract", contractVocab, classifyContract),
		"claim":       c.twoTier("claim", claimVocab, classifyClaim),
		"support":     c.twoTier("support", supportVocab, classifySupport),
		"calibration": c.twoTier("calibration", calibrationVocab, classifyCalibration),
		"temporal":    c.twoTier("temporal", temporalVocab, classifyTemporal),
	}
}

func (c *classifierSet) twoTier(dimension string, vocab []string, regexTier func(models.Thread) []module.SignalHit) module.Classifier {
	return func(ctx context.Context, thread models.Thread) ([]module.SignalHit, error) {
		hits := regexTier(thread)
		if len(hits) > 0 || c.provider == nil {
			return hits, nil
		}
		llmHits, err := c.llmClassify(ctx, dimension, vocab, thread)
		if err != nil {
			// The regex tier already answered "nothing detected";
			// a failed refinement keeps that answer.
			c.logger.Debug("llm classifier tier failed",
				"dimension", dimension, "error", err)
			return hits, nil
		}
		return llmHits, nil
	}
}

func classifyContract(thread models.Thread) []module.SignalHit {
	text := lastUserText(thread)
	if text == "" {
		return nil
	}
	var hits []module.SignalHit
	if ackRe.MatchString(text) {
		hits = append(hits, module.SignalHit{Signal: "ack-only", Confidence: 0.9})
	}
	if captureRe.MatchString(text) {
		hits = append(hits, module.SignalHit{Signal: "capture-only", Confidence: 0.85})
	}
	if exploreRe.MatchString(text) {
		hits = append(hits, module.SignalHit{Signal: "explore", Confidence: 0.7})
	}
	if analyzeRe.MatchString(text) {
		hits = append(hits, module.SignalHit{Signal: "analyze", Confidence: 0.7})
	}
	if planRe.MatchString(text) {
		hits = append(hits, module.SignalHit{Signal: "plan", Confidence: 0.7})
	}
	return hits
}

func classifyClaim(thread models.Thread) []module.SignalHit {
	text := lastUserText(thread)
	if text == "" {
		return nil
	}
	var hits []module.SignalHit
	if universalRe.MatchString(text) {
		hits = append(hits, module.SignalHit{Signal: "universal", Confidence: 0.7})
	}
	if highQuantRe.MatchString(text) {
		hits = append(hits, module.SignalHit{Signal: "high-quantifier", Confidence: 0.65})
	}
	if forecastRe.MatchString(text) {
		hits = append(hits, module.SignalHit{Signal: "forecast", Confidence: 0.6})
	}
	if normativeRe.MatchString(text) {
		hits = append(hits, module.SignalHit{Signal: "normative", Confidence: 0.65})
	}
	return hits
}

func classifySupport(thread models.Thread) []module.SignalHit {
	text := lastUserText(thread)
	var hits []module.SignalHit
	cited := text != "" && sourceRe.MatchString(text)
	anecdotal := text != "" && anecdoteRe.MatchString(text)
	toolBacked := hasToolResults(thread)

	if cited {
		hits = append(hits, module.SignalHit{Signal: "source-cited", Confidence: 0.7})
	}
	if toolBacked {
		hits = append(hits, module.SignalHit{Signal: "tool-result-attached", Confidence: 0.95})
	}
	if anecdotal {
		hits = append(hits, module.SignalHit{Signal: "anecdote", Confidence: 0.6})
	}
	if !cited && !toolBacked && !anecdotal && claimish(text) {
		hits = append(hits, module.SignalHit{Signal: "unsupported", Confidence: 0.6})
	}
	return hits
}

func classifyCalibration(thread models.Thread) []module.SignalHit {
	text := lastUserText(thread)
	if text == "" {
		return nil
	}
	var hits []module.SignalHit
	if certaintyRe.MatchString(text) {
		hits = append(hits, module.SignalHit{Signal: "high-certainty", Confidence: 0.7})
	}
	if hedgeRe.MatchString(text) {
		hits = append(hits, module.SignalHit{Signal: "hedged", Confidence: 0.65})
	}
	return hits
}

func classifyTemporal(thread models.Thread) []module.SignalHit {
	text := lastUserText(thread)
	if text == "" {
		return nil
	}
	var hits []module.SignalHit
	dated := timeRe.MatchString(text)
	if dated {
		hits = append(hits, module.SignalHit{Signal: "time-specified", Confidence: 0.7})
	}
	if !dated && forecastRe.MatchString(text) {
		hits = append(hits, module.SignalHit{Signal: "undated", Confidence: 0.55})
	}
	return hits
}

// claimish reports whether the text asserts anything worth demanding
// support for.
func claimish(text string) bool {
	if text == "" {
		return false
	}
	return universalRe.MatchString(text) ||
		highQuantRe.MatchString(text) ||
		forecastRe.MatchString(text) ||
		normativeRe.MatchString(text)
}

func hasToolResults(thread models.Thread) bool {
	for _, msg := range thread {
		if msg.Role == models.RoleTool || msg.Role == models.RoleFunctionCallOutput {
			return true
		}
	}
	return false
}

func lastUserText(thread models.Thread) string {
	for i := len(thread) - 1; i >= 0; i-- {
		if thread[i].Role == models.RoleUser {
			return thread[i].Content
		}
	}
	return ""
}

// llmLabel is the JSON shape the labeling call must return.
type llmLabel struct {
	Signals []struct {
		Signal     string  `json:"signal"`
		Confidence float64 `json:"confidence"`
	} `json:"signals"`
}

func (c *classifierSet) llmClassify(ctx context.Context, dimension string, vocab []string, thread models.Thread) ([]module.SignalHit, error) {
	text := lastUserText(thread)
	if text == "" {
		return nil, nil
	}
	system := fmt.Sprintf(
		"You label conversation signals for the %q dimension. Known signals: %s. "+
			"Reply with only a JSON object {\"signals\":[{\"signal\":\"<name>\",\"confidence\":<0..1>}]} "+
			"listing the signals present in the message. Use an empty list when none apply.",
		dimension, strings.Join(vocab, ", "))

	resp, err := c.provider.Complete(ctx, providers.Request{
		Model:     c.model,
		System:    system,
		Thread:    models.Thread{models.UserMessage(text)},
		MaxTokens: 200,
	})
	if err != nil {
		return nil, err
	}

	var label llmLabel
	if err := json.Unmarshal([]byte(extractJSON(resp.Output)), &label); err != nil {
		return nil, fmt.Errorf("labeling response not parseable: %w", err)
	}

	known := make(map[string]bool, len(vocab))
	for _, v := range vocab {
		known[v] = true
	}
	var hits []module.SignalHit
	for _, s := range label.Signals {
		if !known[s.Signal] {
			continue
		}
		conf := s.Confidence
		if conf < 0 {
			conf = 0
		}
		if conf > 1 {
			conf = 1
		}
		hits = append(hits, module.SignalHit{Signal: s.Signal, Confidence: conf})
	}
	return hits, nil
}

// extractJSON pulls the first top-level JSON object out of model
// output that may be wrapped in prose or code fences.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}
