package test

import (
	"testing"

	"github.com/dniure/BSE-IntelligentAgents/internal/metrics"
)

// TestIntegrationSessionProducesTrades runs a full session end to end
// and checks that the simulation produced meaningful results: orders
// were issued, trades occurred, and every strategy type accumulated
// per-type statistics.
func TestIntegrationSessionProducesTrades(t *testing.T) {
	result, sess := runSession(t, "integration", 42)

	if result.TradeCount == 0 {
		t.Error("expected at least one trade over a 120-second session")
	}
	if result.TapeHash == "" {
		t.Error("expected a non-empty tape hash")
	}

	summary := metrics.Compute(sess.Population())
	if len(summary.ByType) != 2 {
		t.Fatalf("expected 2 strategy types (GVWY, ZIC), got %d: %+v", len(summary.ByType), summary.ByType)
	}
	for _, st := range summary.ByType {
		if st.NTraders != 6 {
			t.Errorf("type %s: NTraders = %d, want 6 (3 buyers + 3 sellers)", st.Type, st.NTraders)
		}
	}
}

// TestIntegrationMultipleStrategiesAllTrade verifies that both GVWY and
// ZIC traders in the population actually get filled at least once,
// rather than one side starving the other.
func TestIntegrationMultipleStrategiesAllTrade(t *testing.T) {
	_, sess := runSession(t, "integration-fills", 7)

	totalTrades := 0
	byType := map[string]int{}
	for _, tr := range sess.Population() {
		totalTrades += tr.NTrades()
		byType[tr.Type()] += tr.NTrades()
	}
	if totalTrades == 0 {
		t.Fatal("expected some trades across the population")
	}
	for ttype, n := range byType {
		t.Logf("%s: %d fills", ttype, n)
		if n == 0 {
			t.Errorf("type %s: expected at least one fill, got none", ttype)
		}
	}
}
