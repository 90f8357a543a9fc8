package app

import (
	"errors"
	"testing"

	"github.com/sqlsage/sqlsage/internal/gateway"
)

func TestClassifyProviderError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		msg  string
		want gateway.Kind
	}{
		{"http 429", "googleapi: Error 429: Resource has been exhausted", gateway.KindRateLimited},
		{"quota", "quota exceeded for quota metric", gateway.KindRateLimited},
		{"rate limit", "rate limit reached, retry later", gateway.KindRateLimited},
		{"grpc resource exhausted", "rpc error: code = ResourceExhausted desc = resource_exhausted", gateway.KindRateLimited},
		{"http 503", "googleapi: Error 503: Service Unavailable", gateway.KindTransient},
		{"model overloaded", "the model is overloaded, please try again", gateway.KindTransient},
		{"deadline", "context deadline exceeded", gateway.KindTransient},
		{"bad request", "googleapi: Error 400: invalid argument", gateway.KindFatal},
		{"auth", "API key not valid", gateway.KindFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := classifyProviderError(errors.New(tt.msg))
			if kind := gateway.ClassifyKind(got); kind != tt.want {
				t.Errorf("classifyProviderError(%q) kind = %v, want %v", tt.msg, kind, tt.want)
			}

			var ge *gateway.Error
			if !errors.As(got, &ge) {
				t.Fatalf("classified error is not a gateway.Error: %v", got)
			}
		})
	}
}

func TestClassifyProviderErrorKeepsCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("quota exceeded")
	got := classifyProviderError(cause)
	if !errors.Is(got, cause) {
		t.Fatalf("classified error does not wrap the cause: %v", got)
	}
}

func TestNewGenkitClientModelPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"gemini-2.5-flash", "googleai/gemini-2.5-flash"},
		{"googleai/gemini-2.5-flash", "googleai/gemini-2.5-flash"},
		{"vertexai/gemini-2.5-pro", "vertexai/gemini-2.5-pro"},
	}
	for _, tt := range tests {
		c := newGenkitClient(nil, tt.in, 0)
		if c.model != tt.want {
			t.Errorf("newGenkitClient(%q).model = %q, want %q", tt.in, c.model, tt.want)
		}
	}
}
