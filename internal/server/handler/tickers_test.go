package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/xlabhq/triarb/internal/graph"
)

func TestIngestTicker(t *testing.T) {
	g := graph.New(testLogger())
	h := NewTickersHandler(g, nil, nil, testLogger())

	body := `{"exchange":"binance","base":"USDT","market":"BTC","last":6728.13,"baseVolume":1000}`
	req := httptest.NewRequest(http.MethodPost, "/api/tickers", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.IngestTicker(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if _, ok := g.FindEdge("USDT", "BTC"); !ok {
		t.Error("graph not updated by ingest")
	}
}

func TestIngestTicker_Invalid(t *testing.T) {
	g := graph.New(testLogger())
	h := NewTickersHandler(g, nil, nil, testLogger())

	for _, body := range []string{
		`not json`,
		`{"exchange":"binance","base":"USDT","market":"BTC","last":0}`,
		`{"base":"USDT","market":"BTC","last":5}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/tickers", strings.NewReader(body))
		rec := httptest.NewRecorder()
		h.IngestTicker(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestListSymbols(t *testing.T) {
	g := fixtureGraph()
	h := NewSymbolsHandler(g, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/symbols", nil)
	rec := httptest.NewRecorder()
	h.ListSymbols(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	want := `"symbols":["EUR","LTL","USD"]`
	if !strings.Contains(rec.Body.String(), want) {
		t.Errorf("body = %s, want it to contain %s", rec.Body, want)
	}
}

func TestHealthCheck(t *testing.T) {
	h := NewHealthHandler(fixtureGraph(), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	h.HealthCheck(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s", rec.Body)
	}
}
