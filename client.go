package trolyindex

import (
	"log/slog"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type Client struct {
	client openai.Client
	config Config
	logger *slog.Logger
}

// ClientOption is a function that configures a Client.
type ClientOption func(*Config)

type Config struct {
	ApiKey         string
	ApiBase        string
	RequestOptions []option.RequestOption
	DefaultModel   string
	LogLevel       slog.Level
	MaxRetries     int
	Logger         *slog.Logger
	// SkipEnv stops NewClient from reading OPENAI_API_KEY / OPENAI_API_BASE.
	// Set it for servers that only speak the OpenAI schema, such as TEI.
	SkipEnv bool
}

// NewClient creates a new Client with the given options.
func NewClient(opts ...ClientOption) *Client {
	c := Config{
		RequestOptions: make([]option.RequestOption, 0),
		LogLevel:       slog.LevelInfo,
		MaxRetries:     3,
	}

	for _, opt := range opts {
		opt(&c)
	}

	// Environment variables only fill what the options left empty.
	if !c.SkipEnv {
		if c.ApiBase == "" {
			c.ApiBase = os.Getenv("OPENAI_API_BASE")
		}
		if c.ApiKey == "" {
			c.ApiKey = os.Getenv("OPENAI_API_KEY")
		}
	}

	logger := c.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: c.LogLevel,
		}))
	}

	if c.ApiKey != "" {
		c.RequestOptions = append(c.RequestOptions, option.WithAPIKey(c.ApiKey))
	} else {
		// openai-go picks OPENAI_API_KEY up on its own; an unauthenticated
		// server must not receive it.
		c.RequestOptions = append(c.RequestOptions, option.WithHeaderDel("authorization"))
	}
	if c.ApiBase != "" {
		c.RequestOptions = append(c.RequestOptions, option.WithBaseURL(c.ApiBase))
	}

	c.RequestOptions = append(
		c.RequestOptions,
		option.WithMaxRetries(c.MaxRetries),
		option.WithMiddleware(LoggingMiddleware(logger, c.LogLevel)),
	)

	return &Client{
		client: openai.NewClient(c.RequestOptions...),
		config: c,
		logger: logger,
	}
}

// GetOpenAI returns the underlying openai-go client.
func (c *Client) GetOpenAI() openai.Client {
	return c.client
}

func (c *Client) Logger() *slog.Logger {
	return c.logger
}

func (c *Client) DefaultModel() string {
	return c.config.DefaultModel
}
