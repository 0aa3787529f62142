package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/acme/settlement/internal/domain"
	"github.com/acme/settlement/internal/settlement"
)

type stubSettler struct {
	result    domain.SettlementResult
	err       error
	healthy   bool
	merchants []domain.Merchant
	got       settlement.Request
}

func (s *stubSettler) Compute(ctx context.Context, req settlement.Request) (domain.SettlementResult, error) {
	s.got = req
	return s.result, s.err
}

func (s *stubSettler) CheckHealth(ctx context.Context) bool { return s.healthy }

func (s *stubSettler) ListMerchants(ctx context.Context) ([]domain.Merchant, error) {
	return s.merchants, s.err
}

func serve(svc Settler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	NewRouter(svc, slog.New(slog.NewTextHandler(io.Discard, nil))).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestGetSettlement(t *testing.T) {
	svc := &stubSettler{result: domain.SettlementResult{
		MerchantID:       "m",
		MerchantName:     "Acme Coffee",
		SettlementDate:   "2025-08-11",
		SettlementAmount: "150.75",
		Summary: domain.SettlementSummary{
			TotalPurchases:   decimal.RequireFromString("200.50"),
			TotalRefunds:     decimal.RequireFromString("49.75"),
			TransactionCount: 2,
		},
		Transactions: []domain.Transaction{},
	}}

	rec := serve(svc, "/api/v1/settlement?merchant_id=m&date=2025-08-11&timezone=Asia/Tokyo")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type %q", ct)
	}
	if svc.got.Timezone != "Asia/Tokyo" || svc.got.Date != "2025-08-11" {
		t.Errorf("request: %+v", svc.got)
	}

	body := decode(t, rec)
	if body["settlement_amount"] != "150.75" || body["merchant_name"] != "Acme Coffee" {
		t.Errorf("body: %v", body)
	}
	summary, _ := body["summary"].(map[string]any)
	if summary["net_settlement"] != "150.75" {
		t.Errorf("summary: %v", summary)
	}
}

func TestGetSettlementErrors(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrInvalidMerchantID, http.StatusBadRequest},
		{fmt.Errorf("%w: bad", domain.ErrInvalidDate), http.StatusBadRequest},
		{domain.ErrMerchantNotFound, http.StatusNotFound},
		{domain.ErrMerchantUnavailable, http.StatusServiceUnavailable},
		{domain.ErrTransactionsUnavailable, http.StatusServiceUnavailable},
		{domain.ErrMalformedResponse, http.StatusBadGateway},
		{context.Canceled, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := serve(&stubSettler{err: tt.err}, "/api/v1/settlement?merchant_id=m&date=2025-08-11")
			if rec.Code != tt.want {
				t.Fatalf("status %d, want %d", rec.Code, tt.want)
			}
			if decode(t, rec)["error"] == "" {
				t.Errorf("missing error message")
			}
		})
	}
}

func TestGetSettlementMissingParams(t *testing.T) {
	for _, target := range []string{"/api/v1/settlement", "/api/v1/settlement?merchant_id=m", "/api/v1/settlement?date=2025-08-11"} {
		if rec := serve(&stubSettler{}, target); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d", target, rec.Code)
		}
	}
}

func TestHealth(t *testing.T) {
	rec := serve(&stubSettler{healthy: true}, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if body := decode(t, rec); body["status"] != "healthy" || body["acme_api"] != "connected" {
		t.Errorf("body: %v", body)
	}

	rec = serve(&stubSettler{healthy: false}, "/health")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d", rec.Code)
	}
	if body := decode(t, rec); body["status"] != "unhealthy" {
		t.Errorf("body: %v", body)
	}
}

func TestListMerchants(t *testing.T) {
	rec := serve(&stubSettler{merchants: []domain.Merchant{{ID: "a", Name: "A", Timezone: "UTC"}}}, "/api/v1/merchants")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	body := decode(t, rec)
	if body["count"] != float64(1) {
		t.Errorf("body: %v", body)
	}
}

func TestInfo(t *testing.T) {
	rec := serve(&stubSettler{}, "/api")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if decode(t, rec)["service"] != "acme-settlement" {
		t.Errorf("body: %s", rec.Body)
	}
}
