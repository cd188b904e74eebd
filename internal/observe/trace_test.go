package observe

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// useTracerProvider installs an in-memory tracer provider globally for the
// duration of the test.
func useTracerProvider(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLogs redirects the default logger into a buffer.
func captureLogs(t *testing.T) *strings.Builder {
	t.Helper()
	var sb strings.Builder
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&sb, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &sb
}

func TestStartSpan_NestsUnderParent(t *testing.T) {
	exp := useTracerProvider(t)

	ctx, chapter := StartSpan(context.Background(), "analyzer.analyze_chapter")
	_, detector := StartSpan(ctx, "detector.repetition")
	detector.End()
	chapter.End()

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(spans))
	}
	child, parent := spans[0], spans[1]
	if child.Name != "detector.repetition" || parent.Name != "analyzer.analyze_chapter" {
		t.Fatalf("span names = %q, %q", child.Name, parent.Name)
	}
	if child.Parent.SpanID() != parent.SpanContext.SpanID() {
		t.Error("detector span is not a child of the chapter span")
	}
	if child.SpanContext.TraceID() != parent.SpanContext.TraceID() {
		t.Error("detector span has a different trace ID")
	}
}

func TestCorrelationID(t *testing.T) {
	useTracerProvider(t)

	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID without span = %q, want empty", got)
	}

	seen := make(map[string]bool)
	for range 20 {
		ctx, span := StartSpan(context.Background(), "api.analyze")
		cid := CorrelationID(ctx)
		span.End()

		if len(cid) != 32 || strings.Trim(cid, "0123456789abcdef") != "" {
			t.Fatalf("correlation ID %q is not a 32 char hex trace ID", cid)
		}
		if seen[cid] {
			t.Fatalf("duplicate correlation ID %s", cid)
		}
		seen[cid] = true
	}
}

func TestLogger(t *testing.T) {
	useTracerProvider(t)
	logs := captureLogs(t)

	Logger(context.Background()).Info("no span")
	ctx, span := StartSpan(context.Background(), "correct.run")
	defer span.End()
	Logger(ctx).Warn("primary corrector failed", "err", "timeout")

	lines := strings.Split(strings.TrimSpace(logs.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("logged %d lines, want 2:\n%s", len(lines), logs)
	}
	if strings.Contains(lines[0], "trace_id") {
		t.Errorf("log without span carries trace_id: %s", lines[0])
	}
	if !strings.Contains(lines[1], "trace_id="+CorrelationID(ctx)) || !strings.Contains(lines[1], "span_id=") {
		t.Errorf("log inside span missing trace context: %s", lines[1])
	}
}
