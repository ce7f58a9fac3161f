package trace

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestInitTracer_Disabled(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	shutdown, err := InitTracer("test", false, dir)
	if err != nil {
		t.Fatalf("InitTracer() error = %v", err)
	}
	shutdown()

	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("output directory created while disabled: %v", err)
	}
}

func TestInitTracer_WritesSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	dir := t.TempDir()
	shutdown, err := InitTracer("test", true, dir)
	if err != nil {
		t.Fatalf("InitTracer() error = %v", err)
	}

	ctx, parent := StartSpan(context.Background(), "Process")
	_, child := StartSpan(ctx, "Classify")
	child.End()
	parent.End()
	shutdown()

	data, err := os.ReadFile(filepath.Join(dir, PERFORMANCE_REPORT_FILENAME))
	if err != nil {
		t.Fatalf("failed to read performance report: %v", err)
	}
	for _, name := range []string{`"Process"`, `"Classify"`} {
		if !strings.Contains(string(data), name) {
			t.Errorf("performance report missing span %s", name)
		}
	}
}
