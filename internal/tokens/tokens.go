// Package tokens estimates token usage for budget reporting. Estimates
// feed task progress reports and input stats events; provider-reported
// usage remains the source of truth for spend.
package tokens

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

// Counter counts tokens against one model's encoding. A counter whose
// encoding failed to load degrades to the four-characters-per-token
// approximation, so callers never branch on encoder availability.
type Counter struct {
	encoding *tiktoken.Tiktoken
	model    string
}

var (
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	cacheMu       sync.RWMutex
)

// fallbackEncoding maps model families onto tiktoken encodings. Anthropic
// and Gemini counts are approximations; only budget reporting reads them.
func fallbackEncoding(model string) string {
	if strings.HasPrefix(model, "gpt-4o") || strings.HasPrefix(model, "o1") {
		return "o200k_base"
	}
	return "cl100k_base"
}

// NewCounter builds a counter for the model. Encoding load failures are
// not fatal; the counter degrades to estimation.
func NewCounter(model string) *Counter {
	cacheMu.RLock()
	cached, ok := encodingCache[model]
	cacheMu.RUnlock()
	if ok {
		return &Counter{encoding: cached, model: model}
	}

	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding(fallbackEncoding(model))
		if err != nil {
			return &Counter{model: model}
		}
	}

	cacheMu.Lock()
	encodingCache[model] = encoding
	cacheMu.Unlock()

	return &Counter{encoding: encoding, model: model}
}

// Count returns the token count for text.
func (c *Counter) Count(text string) int {
	if c == nil || c.encoding == nil {
		return Estimate(text)
	}
	return len(c.encoding.Encode(text, nil, nil))
}

// CountThread counts a thread with per-message role overhead, following
// the OpenAI message accounting format.
func (c *Counter) CountThread(thread models.Thread) int {
	const tokensPerMessage = 3

	total := 3 // reply priming
	for _, m := range thread {
		total += tokensPerMessage
		total += c.Count(string(m.Role))
		if m.Content != "" {
			total += c.Count(m.Content)
		}
		if m.Output != "" {
			total += c.Count(m.Output)
		}
		if len(m.Arguments) > 0 {
			total += c.Count(string(m.Arguments))
		}
		if m.Name != "" {
			total += c.Count(m.Name)
		}
	}
	return total
}

// Model returns the model this counter was built for.
func (c *Counter) Model() string {
	if c == nil {
		return ""
	}
	return c.model
}

// Estimate approximates tokens as four characters each, for when no
// encoding is available.
func Estimate(text string) int {
	return len(text) / 4
}
