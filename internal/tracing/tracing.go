package tracing

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Setup installs the global tracer provider. mode "stdout" pretty-prints
// spans to stderr; anything else leaves the no-op provider in place.
func Setup(mode string) (func(context.Context) error, error) {
	switch mode {
	case "stdout":
		return setupWriter(os.Stderr)
	case "", "none":
		return func(context.Context) error { return nil }, nil
	default:
		return nil, fmt.Errorf("unknown trace exporter: %s", mode)
	}
}

func setupWriter(w io.Writer) (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
