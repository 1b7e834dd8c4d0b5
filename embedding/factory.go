package embedding

import (
	"fmt"
	"log/slog"

	trolyindex "github.com/mhrlife/troly-index"
	"github.com/mhrlife/troly-index/config"
)

// New builds the client cfg.Backend names. client is only used by the hosted
// OpenAI backend and may be nil otherwise.
func New(cfg config.Embedding, client *trolyindex.Client, logger *slog.Logger) (Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Backend {
	case config.BackendTEI, "":
		opts := []TEIOption{
			WithTEIAPIKey(cfg.TEIAPIKey),
			WithTEIModel(cfg.TEIModel),
			WithTEIRetries(cfg.TEIRetries),
			WithTEILogger(logger),
		}
		if cfg.BatchSize > 0 {
			opts = append(opts, WithTEIBatchSize(cfg.BatchSize))
		}
		if cfg.TEIUseOpenAIRoute {
			opts = append(opts, WithTEIRoute(RouteOpenAI))
		}

		return NewTEIClient(cfg.TEIBaseURL, opts...)

	case config.BackendOpenAI:
		if client == nil {
			client = trolyindex.NewClient(
				trolyindex.WithAPIKey(cfg.OpenAIAPIKey),
				trolyindex.WithBaseURL(cfg.OpenAIBaseURL),
				trolyindex.WithLogger(logger),
			)
		}

		return NewOpenAIEmbeddings(client, cfg.OpenAIModel), nil

	case config.BackendLocal:
		return NewLocalEmbeddings(cfg.LocalModel)
	}

	return nil, fmt.Errorf("%w: unknown embedding backend %q", ErrInvalidConfig, cfg.Backend)
}
