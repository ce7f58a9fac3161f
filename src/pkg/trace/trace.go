// Package trace records per-stage spans of a run into a performance report.
package trace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"

	log "github.com/sirupsen/logrus"
)

var logger = log.WithField("package", "trace")

const PERFORMANCE_REPORT_FILENAME = "trace.json"

var tracerName = "ci-guard"

// InitTracer installs a tracer provider writing spans to <outputDir>/trace.json.
// When disabled the global no-op provider stays in place. The returned func flushes and closes.
func InitTracer(name string, enabled bool, outputDir string) (func(), error) {
	tracerName = name
	if !enabled {
		return func() {}, nil
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	filePath := filepath.Join(outputDir, PERFORMANCE_REPORT_FILENAME)
	f, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create performance report file: %w", err)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(f), stdouttrace.WithPrettyPrint())
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	logger.WithField("filePath", filePath).Info("Performance report enabled")

	return func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.WithField("error", err).Warn("Failed to shutdown tracer provider")
		}
		_ = f.Close()
	}, nil
}

// StartSpan starts a span on the global tracer provider
func StartSpan(ctx context.Context, name string) (context.Context, oteltrace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name)
}
