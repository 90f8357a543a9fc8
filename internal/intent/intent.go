// Package intent classifies free-text user input into the fixed set of
// request categories the router dispatches on.
package intent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Intent is the categorical purpose of a user request.
type Intent string

const (
	SQLAnalysis   Intent = "SQL_ANALYSIS"
	CodeScripting Intent = "CODE_SCRIPTING"
	DBKnowledge   Intent = "DB_KNOWLEDGE"
	General       Intent = "GENERAL"
)

// matchOrder is the priority order for label matching. More specific
// categories win when a model response names several.
var matchOrder = []Intent{SQLAnalysis, CodeScripting, DBKnowledge, General}

// Invoker is the slice of the model gateway the classifier needs.
// Interfaces are defined by the consumer.
type Invoker interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

const classifyPrompt = `You are an intent classifier. Classify the input intent into one of these categories:
- SQL_ANALYSIS
- CODE_SCRIPTING
- DB_KNOWLEDGE
- GENERAL

Examples:
"Get total load per substation" -> SQL_ANALYSIS
"Write python/pyspark/..any language code/script" -> CODE_SCRIPTING
"What is the ERD of this DB?" -> DB_KNOWLEDGE
"Hello!" -> GENERAL

Input: %q
Intent:`

// Classifier maps user input to an Intent with a single model call.
type Classifier struct {
	invoker Invoker
	logger  *slog.Logger
}

// New creates a Classifier. A nil logger falls back to slog.Default().
func New(invoker Invoker, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{invoker: invoker, logger: logger}
}

// Classify sends input through the gateway and normalizes the returned
// label. A model failure propagates as-is; the gateway has already applied
// its retry policy.
func (c *Classifier) Classify(ctx context.Context, input string) (Intent, error) {
	raw, err := c.invoker.Invoke(ctx, fmt.Sprintf(classifyPrompt, input))
	if err != nil {
		return "", fmt.Errorf("classifying intent: %w", err)
	}

	got := Normalize(raw)
	c.logger.Debug("classified intent", "intent", got, "raw", strings.TrimSpace(raw))
	return got, nil
}

// Normalize maps a raw model label to an Intent: trimmed, upper-cased, then
// matched by substring containment in priority order. Anything unmatched is
// General.
func Normalize(raw string) Intent {
	label := strings.ToUpper(strings.TrimSpace(raw))
	for _, in := range matchOrder {
		if strings.Contains(label, string(in)) {
			return in
		}
	}
	return General
}
