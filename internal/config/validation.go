package config

import "fmt"

// Validate checks all configuration values and returns the first problem
// found, wrapped around the matching sentinel error.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderGemini, ProviderGoogleAI:
	default:
		return fmt.Errorf("%w: %q (supported: gemini, googleai)", ErrInvalidProvider, c.Provider)
	}

	for role, name := range map[string]string{
		"sql_model":  c.SQLModel,
		"code_model": c.CodeModel,
		"chat_model": c.ChatModel,
	} {
		if name == "" {
			return fmt.Errorf("%w: %s must not be empty", ErrInvalidModelName, role)
		}
	}

	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: %.2f (must be in [0, 2])", ErrInvalidTemperature, c.Temperature)
	}

	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model must not be empty", ErrInvalidEmbedderModel)
	}

	if c.SearchTopK < 1 || c.SearchTopK > 20 {
		return fmt.Errorf("%w: %d (must be in [1, 20])", ErrInvalidTopK, c.SearchTopK)
	}

	if c.MaxAttempts < 1 || c.MaxAttempts > 10 {
		return fmt.Errorf("%w: max_attempts %d (must be in [1, 10])", ErrInvalidRetryPolicy, c.MaxAttempts)
	}
	if c.BackoffBaseSeconds < 1 {
		return fmt.Errorf("%w: backoff_base_seconds %d (must be >= 1)", ErrInvalidRetryPolicy, c.BackoffBaseSeconds)
	}
	if c.MaxConcurrentCalls < 0 {
		return fmt.Errorf("%w: max_concurrent_calls %d (must be >= 0)", ErrInvalidRetryPolicy, c.MaxConcurrentCalls)
	}
	if c.RequestsPerMinute < 0 {
		return fmt.Errorf("%w: requests_per_minute %d (must be >= 0)", ErrInvalidRetryPolicy, c.RequestsPerMinute)
	}

	if c.CacheSize < 1 {
		return fmt.Errorf("%w: %d (must be >= 1)", ErrInvalidCacheSize, c.CacheSize)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("%w: cache_ttl must not be negative", ErrInvalidCacheSize)
	}
	if c.MaxSessions < 1 {
		return fmt.Errorf("%w: max_sessions %d (must be >= 1)", ErrInvalidCacheSize, c.MaxSessions)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
	}

	return nil
}
