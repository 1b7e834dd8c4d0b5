package trolyindex

import (
	"log/slog"

	"github.com/openai/openai-go/option"
)

/// ======= CLIENT OPTIONS ======= ///

// WithAPIKey sets the API key for the client.
func WithAPIKey(apiKey string) ClientOption {
	return func(c *Config) {
		c.ApiKey = apiKey
	}
}

// WithBaseURL sets the base URL for the client.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Config) {
		c.ApiBase = baseURL
	}
}

// WithDefaultModel sets the embedding model used when a caller does not name one.
func WithDefaultModel(model string) ClientOption {
	return func(c *Config) {
		c.DefaultModel = model
	}
}

// WithRequestOptions adds additional openai-go request options to the client.
func WithRequestOptions(opts ...option.RequestOption) ClientOption {
	return func(c *Config) {
		c.RequestOptions = append(c.RequestOptions, opts...)
	}
}

// WithLogLevel sets the minimum log level for the client's internal logging.
func WithLogLevel(level slog.Level) ClientOption {
	return func(c *Config) {
		c.LogLevel = level
	}
}

// WithLogger replaces the client's stderr logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithMaxRetries sets how many times openai-go retries a failed request.
func WithMaxRetries(retries int) ClientOption {
	return func(c *Config) {
		c.MaxRetries = retries
	}
}

func WithoutEnv() ClientOption {
	return func(c *Config) {
		c.SkipEnv = true
	}
}
