package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
)

func TestProductionCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewProduction(reg)

	m.ObserveFinalized("Tinta Base", "ok", decimal.Zero)
	m.ObserveFinalized("Tinta Base", "loss", decimal.NewFromInt(-75))
	m.ObserveRejected("insufficient_stock")
	m.ObserveReplayed()

	if got := testutil.ToFloat64(m.Finalized.WithLabelValues("Tinta Base", "loss")); got != 1 {
		t.Errorf("finalized loss = %v", got)
	}
	if got := testutil.ToFloat64(m.Rejected.WithLabelValues("insufficient_stock")); got != 1 {
		t.Errorf("rejected = %v", got)
	}
	if got := testutil.ToFloat64(m.Replayed); got != 1 {
		t.Errorf("replayed = %v", got)
	}
	if n := testutil.CollectAndCount(m.Variance); n != 1 {
		t.Errorf("variance series = %d", n)
	}
}

func TestNilProductionIsNoop(t *testing.T) {
	var m *Production
	m.ObserveFinalized("x", "ok", decimal.Zero)
	m.ObserveRejected("x")
	m.ObserveReplayed()
}
