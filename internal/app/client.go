package app

import (
	"context"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/sqlsage/sqlsage/internal/gateway"
)

// genkitClient adapts one Genkit model to the gateway's Client interface.
type genkitClient struct {
	g           *genkit.Genkit
	model       string
	temperature float32
}

func newGenkitClient(g *genkit.Genkit, model string, temperature float32) *genkitClient {
	// Bare model names get the provider prefix Genkit registers them under.
	if !strings.Contains(model, "/") {
		model = "googleai/" + model
	}
	return &genkitClient{g: g, model: model, temperature: temperature}
}

// Generate runs one completion. Failures come back tagged with a
// gateway.Error kind so the invoker's retry logic never inspects message
// text itself.
func (c *genkitClient) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := genkit.Generate(ctx, c.g,
		ai.WithModelName(c.model),
		ai.WithPrompt(prompt),
		ai.WithConfig(map[string]any{"temperature": c.temperature}),
	)
	if err != nil {
		return "", classifyProviderError(err)
	}
	return resp.Text(), nil
}

// classifyProviderError maps a raw provider error onto a gateway kind.
// This string matching is confined to the adapter: the Google AI backend
// reports quota and availability conditions only through status text, so
// the boundary that talks to it owns the translation.
func classifyProviderError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"),
		strings.Contains(msg, "quota"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "resource_exhausted"),
		strings.Contains(msg, "resource exhausted"):
		return gateway.NewError(gateway.KindRateLimited, err)
	case strings.Contains(msg, "503"),
		strings.Contains(msg, "500"),
		strings.Contains(msg, "unavailable"),
		strings.Contains(msg, "overloaded"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "deadline exceeded"),
		strings.Contains(msg, "connection reset"):
		return gateway.NewError(gateway.KindTransient, err)
	default:
		return gateway.NewError(gateway.KindFatal, err)
	}
}
