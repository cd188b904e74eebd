// Package observe provides the observability primitives shared by the
// analysis service: OpenTelemetry metrics, tracing, trace-aware structured
// logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and bridged to a
// Prometheus registry by [InitProvider], so they can be scraped from
// /metrics. [DefaultMetrics] returns a package-level instance; tests should
// use [NewMetrics] with their own [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all quillmate metrics.
const meterName = "github.com/MrWong99/quillmate"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// ── Latency ──

	// AnalysisDuration tracks the wall time of one AnalyzeChapter call.
	AnalysisDuration metric.Float64Histogram

	// DetectorDuration tracks individual detector passes. Use with attribute:
	//   attribute.String("detector", ...)
	DetectorDuration metric.Float64Histogram

	// LLMDuration tracks LLM round trips. Use with attribute:
	//   attribute.String("pass", ...)  // correct, awkward, feedback
	LLMDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// ── Counters ──

	// CorrectionPaths counts which correction path served a chapter. Use with
	// attribute: attribute.String("source", ...)  // ai, rule
	CorrectionPaths metric.Int64Counter

	// CorrectionsRejected counts corrections dropped before application. Use
	// with attribute: attribute.String("reason", ...)
	CorrectionsRejected metric.Int64Counter

	// ConsistencyFlags counts raised name inconsistencies by severity.
	ConsistencyFlags metric.Int64Counter

	// LLMTokens counts tokens spent. Use with attribute:
	//   attribute.String("type", ...)  // prompt, completion
	LLMTokens metric.Int64Counter

	// ── Errors ──

	// LLMErrors counts failed LLM passes. Use with attributes:
	//   attribute.String("pass", ...), attribute.String("kind", ...)
	LLMErrors metric.Int64Counter

	// RegistryErrors counts name registry failures. Use with attributes:
	//   attribute.String("backend", ...), attribute.String("op", ...)
	RegistryErrors metric.Int64Counter

	// ── Gauges ──

	// ActiveAnalyses tracks chapters currently being analysed.
	ActiveAnalyses metric.Int64UpDownCounter
}

// latencyBuckets are histogram boundaries in seconds. Detector passes land in
// the low buckets, LLM calls in the high ones.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 20, 30,
}

// NewMetrics creates a fully initialised [Metrics] using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.AnalysisDuration, "quillmate.analysis.duration", "Latency of a full chapter analysis."},
		{&met.DetectorDuration, "quillmate.detector.duration", "Latency of a single detector pass."},
		{&met.LLMDuration, "quillmate.llm.duration", "Latency of LLM requests by pass."},
		{&met.HTTPRequestDuration, "quillmate.http.request.duration", "HTTP request latency by method and path."},
	}
	for _, h := range histograms {
		inst, err := m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		)
		if err != nil {
			return nil, err
		}
		*h.dst = inst
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.CorrectionPaths, "quillmate.correction.paths", "Chapters corrected by source (ai or rule)."},
		{&met.CorrectionsRejected, "quillmate.correction.rejected", "Corrections dropped by reason."},
		{&met.ConsistencyFlags, "quillmate.consistency.flags", "Name inconsistencies raised by severity."},
		{&met.LLMTokens, "quillmate.llm.tokens", "LLM tokens consumed by type."},
		{&met.LLMErrors, "quillmate.llm.errors", "Failed LLM passes by pass and kind."},
		{&met.RegistryErrors, "quillmate.registry.errors", "Name registry failures by backend and operation."},
	}
	for _, c := range counters {
		inst, err := m.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
		*c.dst = inst
	}

	var err error
	if met.ActiveAnalyses, err = m.Int64UpDownCounter("quillmate.active_analyses",
		metric.WithDescription("Number of chapters currently being analysed."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call from [otel.GetMeterProvider]. Panics if instrument creation
// fails, which does not happen with the global provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordCorrectionPath counts one chapter corrected by source.
func (m *Metrics) RecordCorrectionPath(ctx context.Context, source string) {
	m.CorrectionPaths.Add(ctx, 1, metric.WithAttributes(Attr("source", source)))
}

// RecordRejectedCorrection counts one dropped correction.
func (m *Metrics) RecordRejectedCorrection(ctx context.Context, reason string) {
	m.CorrectionsRejected.Add(ctx, 1, metric.WithAttributes(Attr("reason", reason)))
}

// RecordConsistencyFlag counts one raised flag.
func (m *Metrics) RecordConsistencyFlag(ctx context.Context, severity string) {
	m.ConsistencyFlags.Add(ctx, 1, metric.WithAttributes(Attr("severity", severity)))
}

// RecordLLMError counts one failed LLM pass.
func (m *Metrics) RecordLLMError(ctx context.Context, pass, kind string) {
	m.LLMErrors.Add(ctx, 1, metric.WithAttributes(Attr("pass", pass), Attr("kind", kind)))
}

// RecordLLMTokens adds prompt and completion token counts. Zero counts are
// skipped.
func (m *Metrics) RecordLLMTokens(ctx context.Context, prompt, completion int) {
	if prompt > 0 {
		m.LLMTokens.Add(ctx, int64(prompt), metric.WithAttributes(Attr("type", "prompt")))
	}
	if completion > 0 {
		m.LLMTokens.Add(ctx, int64(completion), metric.WithAttributes(Attr("type", "completion")))
	}
}

// RecordRegistryError counts one registry failure.
func (m *Metrics) RecordRegistryError(ctx context.Context, backend, op string) {
	m.RegistryErrors.Add(ctx, 1, metric.WithAttributes(Attr("backend", backend), Attr("op", op)))
}
