package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewRegistersAllMetrics(t *testing.T) {
	m := New()
	mfs, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	names := map[string]bool{}
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	for _, want := range []string{
		"bsesim_trades_total",
		"bsesim_cancels_total",
		"bsesim_bid_depth",
		"bsesim_ask_depth",
		"bsesim_strategy_replacements_total",
		"bsesim_sessions_running",
	} {
		if !names[want] {
			t.Errorf("expected metric %q to be registered, got %v", want, names)
		}
	}
}

func TestNewServerMountsMetricsAndExtraHandlers(t *testing.T) {
	m := New()
	m.Trades.Inc()

	extraHit := false
	extra := map[string]http.Handler{
		"/ws/lob": http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			extraHit = true
			w.WriteHeader(http.StatusOK)
		}),
	}
	srv := NewServer(":0", m, nil, extra)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	srv.http.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	if !containsMetric(rr.Body.String(), "bsesim_trades_total") {
		t.Error("expected /metrics output to include bsesim_trades_total")
	}

	rr2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/ws/lob", nil)
	srv.http.Handler.ServeHTTP(rr2, req2)
	if !extraHit {
		t.Error("expected the extra handler mounted at /ws/lob to be invoked")
	}
}

func containsMetric(body, name string) bool {
	for i := 0; i+len(name) <= len(body); i++ {
		if body[i:i+len(name)] == name {
			return true
		}
	}
	return false
}
