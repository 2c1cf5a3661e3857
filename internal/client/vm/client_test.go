package vm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"incident-detector/internal/config"
	"incident-detector/internal/model"
)

// testLogger creates a disabled logger for testing
func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

// writeJSON writes a JSON response with proper headers
func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func vectorResponse(values ...string) QueryResponse {
	samples := make([]Sample, 0, len(values))
	for i, v := range values {
		samples = append(samples, Sample{
			Metric: map[string]string{"ident": "web-01", "path": string(rune('a' + i))},
			Value:  SampleValue{float64(1709294400), v},
		})
	}
	return QueryResponse{
		Status: "success",
		Data:   QueryData{ResultType: "vector", Result: samples},
	}
}

func noRetry() *config.RetryConfig {
	return &config.RetryConfig{MaxRetries: 0, BaseDelay: time.Millisecond}
}

func TestNewClient(t *testing.T) {
	t.Run("with_default_values", func(t *testing.T) {
		cfg := &config.VictoriaMetricsConfig{Endpoint: "http://localhost:8428"}

		client := NewClient(cfg, nil, testLogger())

		if client.endpoint != cfg.Endpoint {
			t.Errorf("expected endpoint %s, got %s", cfg.Endpoint, client.endpoint)
		}
		if client.timeout != 30*time.Second {
			t.Errorf("expected default timeout 30s, got %s", client.timeout)
		}
		if client.retry.MaxRetries != 3 {
			t.Errorf("expected default max retries 3, got %d", client.retry.MaxRetries)
		}
	})

	t.Run("with_custom_values", func(t *testing.T) {
		cfg := &config.VictoriaMetricsConfig{Endpoint: "http://localhost:8428", Timeout: 5 * time.Second}
		retryCfg := &config.RetryConfig{MaxRetries: 5, BaseDelay: 2 * time.Second}

		client := NewClient(cfg, retryCfg, testLogger())

		if client.timeout != 5*time.Second {
			t.Errorf("expected timeout 5s, got %s", client.timeout)
		}
		if client.retry.MaxRetries != 5 {
			t.Errorf("expected max retries 5, got %d", client.retry.MaxRetries)
		}
	})
}

func TestAverageQuery(t *testing.T) {
	tests := []struct {
		name   string
		metric model.TrackedMetric
		entity string
		window time.Duration
		want   string
	}{
		{
			name:   "existing_labels",
			metric: model.VictoriaMetricsMetrics()[0],
			entity: "web-01",
			window: 5 * time.Minute,
			want:   `avg_over_time(cpu_usage_active{cpu="cpu-total", ident="web-01"}[300s])`,
		},
		{
			name:   "bare_metric",
			metric: model.VictoriaMetricsMetrics()[1],
			entity: "web-01",
			window: time.Minute,
			want:   `avg_over_time(mem_used_percent{ident="web-01"}[60s])`,
		},
		{
			name:   "custom_dimension_and_escaping",
			metric: model.TrackedMetric{Name: "x", Metric: "node_load1", Dimension: "instance"},
			entity: `a"b`,
			window: 500 * time.Millisecond,
			want:   `avg_over_time(node_load1{instance="a\"b"}[1s])`,
		},
		{
			name:   "default_dimension",
			metric: model.TrackedMetric{Name: "x", Metric: "up"},
			entity: "h",
			window: 2 * time.Minute,
			want:   `avg_over_time(up{ident="h"}[120s])`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AverageQuery(tt.metric, tt.entity, tt.window)
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestClient_Average(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/query" {
			t.Errorf("expected path /api/v1/query, got %s", r.URL.Path)
		}
		gotQuery = r.URL.Query().Get("query")
		writeJSON(w, vectorResponse("71.5", "88.25", "NaN"))
	}))
	defer server.Close()

	client := NewClient(&config.VictoriaMetricsConfig{Endpoint: server.URL}, noRetry(), testLogger())

	value, ok, err := client.Average(context.Background(), model.VictoriaMetricsMetrics()[2], "web-01", 5*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected data")
	}
	if value != 88.25 {
		t.Errorf("expected highest series 88.25, got %v", value)
	}
	if gotQuery != `avg_over_time(disk_used_percent{ident="web-01"}[300s])` {
		t.Errorf("unexpected query %s", gotQuery)
	}
}

func TestClient_Average_NoData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, vectorResponse())
	}))
	defer server.Close()

	client := NewClient(&config.VictoriaMetricsConfig{Endpoint: server.URL}, noRetry(), testLogger())

	_, ok, err := client.Average(context.Background(), model.VictoriaMetricsMetrics()[0], "web-01", time.Minute)
	if err != nil {
		t.Fatalf("no data must not be an error, got %v", err)
	}
	if ok {
		t.Error("expected ok=false for an empty vector")
	}
}

func TestClient_Average_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, QueryResponse{Status: "error", ErrorType: "bad_data", Error: "parse error"})
	}))
	defer server.Close()

	client := NewClient(&config.VictoriaMetricsConfig{Endpoint: server.URL}, noRetry(), testLogger())

	_, _, err := client.Average(context.Background(), model.VictoriaMetricsMetrics()[0], "web-01", time.Minute)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestClient_Query_RetryOn5xx(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, vectorResponse("1"))
	}))
	defer server.Close()

	client := NewClient(&config.VictoriaMetricsConfig{Endpoint: server.URL},
		&config.RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond}, testLogger())

	if _, err := client.Query(context.Background(), "up"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("expected 3 calls, got %d", got)
	}
}

func TestClient_Query_NoRetryOn4xx(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(&config.VictoriaMetricsConfig{Endpoint: server.URL},
		&config.RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond}, testLogger())

	if _, err := client.Query(context.Background(), "up"); err == nil {
		t.Fatal("expected error for 401")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("expected 1 call, got %d", got)
	}
}
