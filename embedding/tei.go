package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Route selects the request shape spoken to a Text Embeddings Inference server.
type Route string

const (
	// RouteNative posts {"inputs": [...]} to /embed.
	RouteNative Route = "native"
	// RouteOpenAI posts {"input": [...], "model": ...} to /v1/embeddings.
	RouteOpenAI Route = "openai"
)

const (
	DefaultTEIBatchSize = 64
	DefaultTEITimeout   = 120 * time.Second
)

// route is one request/response shape. Implementations get a non-empty batch
// and return exactly one vector per input, in input order.
type route interface {
	endpoint() string
	embedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// TEIClient embeds texts through a Hugging Face Text Embeddings Inference server.
// It is immutable after construction and safe for concurrent use.
type TEIClient struct {
	baseURL    string
	apiKey     string
	model      string
	routeKind  Route
	batchSize  int
	retries    uint
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer

	route route
}

type TEIOption func(*TEIClient)

// WithTEIAPIKey attaches "Authorization: Bearer <key>" to every request.
func WithTEIAPIKey(key string) TEIOption {
	return func(c *TEIClient) { c.apiKey = key }
}

// WithTEIModel sets the model name sent on the OpenAI-compatible route.
func WithTEIModel(model string) TEIOption {
	return func(c *TEIClient) { c.model = model }
}

func WithTEIRoute(r Route) TEIOption {
	return func(c *TEIClient) { c.routeKind = r }
}

// WithTEIBatchSize bounds how many texts go into one request.
func WithTEIBatchSize(n int) TEIOption {
	return func(c *TEIClient) { c.batchSize = n }
}

func WithTEIHTTPClient(hc *http.Client) TEIOption {
	return func(c *TEIClient) { c.httpClient = hc }
}

func WithTEITimeout(d time.Duration) TEIOption {
	return func(c *TEIClient) { c.timeout = d }
}

func WithTEILogger(logger *slog.Logger) TEIOption {
	return func(c *TEIClient) { c.logger = logger }
}

// WithTEIRetries retries transport failures up to n extra times per batch.
// Payload failures are never retried.
func WithTEIRetries(n uint) TEIOption {
	return func(c *TEIClient) { c.retries = n }
}

// NewTEIClient validates the base URL and fixes the route for the client's lifetime.
func NewTEIClient(baseURL string, opts ...TEIOption) (*TEIClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%w: TEI base URL is required (set TEI_BASE_URL)", ErrInvalidConfig)
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: TEI base URL %q: %v", ErrInvalidConfig, baseURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: TEI base URL %q must be an absolute http(s) URL", ErrInvalidConfig, baseURL)
	}

	c := &TEIClient{
		baseURL:   baseURL,
		routeKind: RouteNative,
		batchSize: DefaultTEIBatchSize,
		timeout:   DefaultTEITimeout,
		logger:    slog.Default(),
		tracer:    otel.Tracer("github.com/mhrlife/troly-index/embedding"),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.batchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidConfig, c.batchSize)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}

	switch c.routeKind {
	case RouteNative:
		c.route = newNativeRoute(c)
	case RouteOpenAI:
		c.route = newOpenAIRoute(c)
	default:
		return nil, fmt.Errorf("%w: unknown TEI route %q", ErrInvalidConfig, c.routeKind)
	}

	return c, nil
}

func (c *TEIClient) Route() Route { return c.routeKind }

// EmbedTexts returns one vector per text, in input order. Any failing batch
// aborts the call and no partial result is returned.
func (c *TEIClient) EmbedTexts(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	out := make([][]float64, 0, len(texts))
	for i, batch := range lo.Chunk(texts, c.batchSize) {
		vectors, err := c.embedBatch(ctx, i, batch)
		if err != nil {
			return nil, err
		}

		out = append(out, vectors...)
	}

	return out, nil
}

// EmbedText is EmbedTexts for a single text.
func (c *TEIClient) EmbedText(ctx context.Context, text string) ([]float64, error) {
	return EmbedText(ctx, c, text)
}

func (c *TEIClient) embedBatch(ctx context.Context, index int, batch []string) ([][]float64, error) {
	ctx, span := c.tracer.Start(ctx, "tei.embed_batch", trace.WithAttributes(
		attribute.String("tei.route", string(c.routeKind)),
		attribute.Int("tei.batch_index", index),
		attribute.Int("tei.batch_size", len(batch)),
	))
	defer span.End()

	var vectors [][]float64
	err := retry.Do(
		func() error {
			v, err := c.route.embedBatch(ctx, batch)
			if err != nil {
				return err
			}
			vectors = v
			return nil
		},
		retry.Attempts(c.retries+1),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, ErrTransport)
		}),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug("Retrying TEI request",
				"endpoint", c.route.endpoint(),
				"attempt", n+1,
				"error", err.Error(),
			)
		}),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error("TEI batch failed",
			"endpoint", c.route.endpoint(),
			"batch_index", index,
			"batch_size", len(batch),
			"error", err,
		)

		return nil, err
	}

	c.logger.Debug("TEI batch embedded",
		"endpoint", c.route.endpoint(),
		"batch_index", index,
		"batch_size", len(batch),
	)

	return vectors, nil
}
