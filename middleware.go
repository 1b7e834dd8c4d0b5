package trolyindex

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/openai/openai-go/option"
)

// LoggingMiddleware logs every outbound request made through openai-go.
func LoggingMiddleware(logger *slog.Logger, level slog.Level) option.Middleware {
	return func(req *http.Request, next option.MiddlewareNext) (*http.Response, error) {
		start := time.Now()
		resp, err := next(req)

		if level > slog.LevelDebug {
			return resp, err
		}

		attrs := []any{
			"method", req.Method,
			"url", req.URL.String(),
			"duration", time.Since(start),
		}
		if resp != nil {
			attrs = append(attrs, "status", resp.StatusCode)
		}
		if err != nil {
			attrs = append(attrs, "error", err)
		}

		logger.DebugContext(req.Context(), "openai request", attrs...)

		return resp, err
	}
}
