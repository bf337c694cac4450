package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// counterValue sums a gathered counter family.
func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var sum float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
	}
	return sum
}

func TestNew_RegistersOnCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RawBarsTotal.Inc()
	m.TradeSignals.WithLabelValues("LONG").Add(2)

	if got := counterValue(t, reg, "sigengine_raw_bars_total"); got != 1 {
		t.Errorf("expected raw bars 1, got %v", got)
	}
	if got := counterValue(t, reg, "sigengine_trade_signals_total"); got != 2 {
		t.Errorf("expected 2 signals, got %v", got)
	}
}

func TestHealthz(t *testing.T) {
	h := NewHealthStatus("BTCUSDT")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 before the stream connects, got %d", rec.Code)
	}

	h.SetStreamConnected(true)
	h.SetSQLiteOK(true)
	h.SetLastBarTime(time.Now())
	h.SetWarmup(40, 40)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Status string `json:"status"`
		Symbol string `json:"symbol"`
		Warm   bool   `json:"warm"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "healthy" || body.Symbol != "BTCUSDT" || !body.Warm {
		t.Errorf("unexpected health body %+v", body)
	}

	// redis only matters once enabled
	h.SetRedisEnabled(true)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 with redis enabled but down, got %d", rec.Code)
	}
}
