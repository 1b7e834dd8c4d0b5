// Package tracing exports OpenTelemetry spans to Langfuse over OTLP/HTTP.
package tracing

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultHost         = "cloud.langfuse.com"
	DefaultURLPath      = "/api/public/otel/v1/traces"
	DefaultServiceName  = "troly-index"
	instrumentationName = "github.com/mhrlife/troly-index"
)

type LangfuseConfig struct {
	SecretKey string
	PublicKey string
	// Host is a bare host ("cloud.langfuse.com", exported over https) or a
	// URL with a scheme ("http://localhost:3000").
	Host        string
	URLPath     string
	Environment string
	ServiceName string
}

// OTELLangfuseTracer owns the tracer provider. Without keys it is disabled and
// every span goes to the global no-op provider.
type OTELLangfuseTracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

func NewOTELLangfuseTracer(config LangfuseConfig) (*OTELLangfuseTracer, error) {
	if config.SecretKey == "" || config.PublicKey == "" {
		return &OTELLangfuseTracer{tracer: otel.Tracer(instrumentationName)}, nil
	}

	if config.Host == "" {
		config.Host = DefaultHost
	}
	if config.URLPath == "" {
		config.URLPath = DefaultURLPath
	}
	if config.ServiceName == "" {
		config.ServiceName = DefaultServiceName
	}

	auth := base64.StdEncoding.EncodeToString([]byte(config.PublicKey + ":" + config.SecretKey))
	opts := []otlptracehttp.Option{
		otlptracehttp.WithHeaders(map[string]string{"Authorization": "Basic " + auth}),
	}
	if strings.Contains(config.Host, "://") {
		opts = append(opts, otlptracehttp.WithEndpointURL(strings.TrimRight(config.Host, "/")+config.URLPath))
	} else {
		opts = append(opts,
			otlptracehttp.WithEndpoint(config.Host),
			otlptracehttp.WithURLPath(config.URLPath),
		)
	}

	exporter, err := otlptracehttp.New(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	attrs := []attribute.KeyValue{attribute.String("service.name", config.ServiceName)}
	if config.Environment != "" {
		attrs = append(attrs, attribute.String("deployment.environment", config.Environment))
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(resource.NewSchemaless(attrs...)),
	)
	otel.SetTracerProvider(provider)

	return &OTELLangfuseTracer{
		provider: provider,
		tracer:   provider.Tracer(instrumentationName),
	}, nil
}

func (t *OTELLangfuseTracer) Tracer() trace.Tracer {
	return t.tracer
}

func (t *OTELLangfuseTracer) IsEnabled() bool {
	return t.provider != nil
}

// Flush exports every finished span now.
func (t *OTELLangfuseTracer) Flush() error {
	if t.provider == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return t.provider.ForceFlush(ctx)
}

func (t *OTELLangfuseTracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}

	return t.provider.Shutdown(ctx)
}
