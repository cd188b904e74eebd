package observe

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// apiFixture wraps a small mux shaped like the public API in Middleware and
// records its metrics and spans in memory.
func apiFixture(t *testing.T) (http.Handler, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	exp := useTracerProvider(t)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/analyze", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen-Correlation", CorrelationID(r.Context()))
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /v1/authors/{author}/names", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /v1/correct", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "text is required", http.StatusBadRequest)
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return Middleware(m)(mux), reader, exp
}

func serve(h http.Handler, method, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_CorrelationID(t *testing.T) {
	const incoming = "4bf92f3577b34da6a3ce929d0e0e4736"
	tests := []struct {
		name   string
		header map[string]string
		want   string
	}{
		{name: "new trace", want: ""},
		{
			name:   "continues traceparent",
			header: map[string]string{"traceparent": "00-" + incoming + "-00f067aa0ba902b7-01"},
			want:   incoming,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, _ := apiFixture(t)
			rec := serve(h, "POST", "/v1/analyze", tt.header)

			got := rec.Header().Get("X-Correlation-ID")
			if len(got) != 32 {
				t.Fatalf("X-Correlation-ID = %q, want a 32 char trace ID", got)
			}
			if tt.want != "" && got != tt.want {
				t.Errorf("X-Correlation-ID = %q, want %q", got, tt.want)
			}
			if seen := rec.Header().Get("X-Seen-Correlation"); seen != got {
				t.Errorf("handler saw correlation ID %q, response carries %q", seen, got)
			}
			if rec.Header().Get("traceparent") == "" {
				t.Error("response missing traceparent header")
			}
		})
	}
}

func TestMiddleware_SpanCarriesStatus(t *testing.T) {
	h, _, exp := apiFixture(t)

	if rec := serve(h, "POST", "/v1/correct", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if spans[0].Name != "HTTP POST /v1/correct" {
		t.Errorf("span name = %q", spans[0].Name)
	}
	var status int64
	for _, a := range spans[0].Attributes {
		if a.Key == "http.response.status_code" {
			status = a.Value.AsInt64()
		}
	}
	if status != http.StatusBadRequest {
		t.Errorf("span status attribute = %d, want 400", status)
	}
}

func TestMiddleware_DurationPerRoute(t *testing.T) {
	h, reader, _ := apiFixture(t)

	for _, author := range []string{"a1", "a2", "a3"} {
		serve(h, "GET", "/v1/authors/"+author+"/names", nil)
	}
	serve(h, "POST", "/v1/analyze", nil)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "quillmate.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist := met.Data.(metricdata.Histogram[float64])

	counts := make(map[string]uint64)
	for _, dp := range hist.DataPoints {
		path, _ := dp.Attributes.Value("path")
		method, _ := dp.Attributes.Value("method")
		counts[method.AsString()+" "+path.AsString()] += dp.Count
	}
	want := map[string]uint64{
		"GET GET /v1/authors/{author}/names": 3,
		"POST POST /v1/analyze":              1,
	}
	if len(counts) != len(want) {
		t.Fatalf("data points = %v, want %v", counts, want)
	}
	for k, n := range want {
		if counts[k] != n {
			t.Errorf("count[%s] = %d, want %d", k, counts[k], n)
		}
	}
}

func TestMiddleware_ProbesLogAtDebug(t *testing.T) {
	h, _, _ := apiFixture(t)

	var sb strings.Builder
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&sb, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	serve(h, "GET", "/healthz", nil)
	if sb.Len() != 0 {
		t.Errorf("probe request logged at info: %s", sb.String())
	}

	serve(h, "POST", "/v1/analyze", nil)
	if !strings.Contains(sb.String(), "path=/v1/analyze") || !strings.Contains(sb.String(), "status=200") {
		t.Errorf("request line missing fields: %s", sb.String())
	}
}
