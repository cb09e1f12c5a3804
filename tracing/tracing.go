// Package tracing installs the global OpenTelemetry tracer provider.
package tracing

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config contains tracing configuration
type Config struct {
	ServiceName string
	Endpoint    string // OTLP gRPC collector; empty keeps spans in-process
}

// Init creates a tracer provider, registers it globally together with the
// W3C trace context propagator and returns it for shutdown.
func Init(ctx context.Context, config Config) (*sdktrace.TracerProvider, error) {
	if config.ServiceName == "" {
		config.ServiceName = "enhancer"
	}

	res := resource.NewSchemaless(attribute.String("service.name", config.ServiceName))
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	}

	if config.Endpoint != "" {
		host, insecure, err := endpointTarget(config.Endpoint)
		if err != nil {
			return nil, err
		}
		clientOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(host)}
		if insecure {
			clientOpts = append(clientOpts, otlptracegrpc.WithInsecure())
		}
		exporter, err := otlptracegrpc.New(ctx, clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp, nil
}

// endpointTarget accepts host:port or an http(s) URL. Plain http and bare
// host:port connect without TLS.
func endpointTarget(endpoint string) (string, bool, error) {
	if !strings.Contains(endpoint, "://") {
		return endpoint, true, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return "", false, fmt.Errorf("invalid OTLP endpoint: %q", endpoint)
	}
	switch u.Scheme {
	case "http":
		return u.Host, true, nil
	case "https":
		return u.Host, false, nil
	default:
		return "", false, fmt.Errorf("unsupported OTLP endpoint scheme: %q", u.Scheme)
	}
}
