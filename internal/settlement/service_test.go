package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/acme/settlement/internal/domain"
	"github.com/acme/settlement/internal/gateway"
	"github.com/acme/settlement/internal/period"
)

const merchantID = "3f1f8a2e-5b7c-4d0e-9a61-2c4b8e7d9f10"

type fakeUpstream struct {
	merchantStatus     int
	transactionsStatus int
	transactions       string
	calls              int32

	mu        sync.Mutex
	lastQuery string
}

func (f *fakeUpstream) query() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastQuery
}

func (f *fakeUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&f.calls, 1)
	switch {
	case r.URL.Path == "/merchants":
		io.WriteString(w, `{"next":null,"results":[{"id":"`+merchantID+`","name":"Acme Coffee"}]}`)
	case strings.HasPrefix(r.URL.Path, "/merchants/"):
		if f.merchantStatus != 0 {
			w.WriteHeader(f.merchantStatus)
			return
		}
		io.WriteString(w, `{"id":"`+strings.TrimPrefix(r.URL.Path, "/merchants/")+`","name":"Acme Coffee","timezone":null}`)
	case r.URL.Path == "/transactions":
		f.mu.Lock()
		f.lastQuery = r.URL.RawQuery
		f.mu.Unlock()
		if f.transactionsStatus != 0 {
			w.WriteHeader(f.transactionsStatus)
			return
		}
		io.WriteString(w, f.transactions)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestService(t *testing.T, upstream http.Handler) *Service {
	t.Helper()
	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := gateway.New(gateway.Options{
		BaseURL:    srv.URL,
		Timeout:    time.Second,
		MaxRetries: 3,
		Sleep:      func(ctx context.Context, d time.Duration) error { return ctx.Err() },
		Logger:     logger,
	})
	calc := period.NewCalculator(period.WithClock(func() time.Time {
		return time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	}))
	return NewService(client, WithCalculator(calc), WithLogger(logger))
}

func TestComputeSettlement(t *testing.T) {
	upstream := &fakeUpstream{transactions: `{"next":null,"results":[
		{"id":"t1","merchant_id":"` + merchantID + `","amount":"200.50","type":"PURCHASE","timestamp":"2025-08-11T09:00:00Z"},
		{"id":"t2","merchant_id":"` + merchantID + `","amount":"49.75","type":"REFUND","timestamp":"2025-08-11T10:00:00Z"},
		{"id":"t3","merchant_id":"` + merchantID + `","amount":null,"type":"SALE","timestamp":"2025-08-11T11:00:00Z"}
	]}`}
	svc := newTestService(t, upstream)

	result, err := svc.ComputeSettlement(context.Background(), merchantID, "2025-08-11")
	if err != nil {
		t.Fatalf("ComputeSettlement: %v", err)
	}

	if result.MerchantID != merchantID || result.MerchantName != "Acme Coffee" {
		t.Errorf("merchant: %s %s", result.MerchantID, result.MerchantName)
	}
	if result.SettlementDate != "2025-08-11" {
		t.Errorf("date: %s", result.SettlementDate)
	}
	if result.SettlementAmount != "150.75" {
		t.Errorf("settlement amount: %s", result.SettlementAmount)
	}
	if result.SettlementAmount != domain.FormatAmount(result.Summary.NetSettlement()) {
		t.Errorf("settlement amount must equal net settlement")
	}
	if result.Summary.TransactionCount != 3 || len(result.Transactions) != 3 {
		t.Errorf("count: %d / %d", result.Summary.TransactionCount, len(result.Transactions))
	}
	if !strings.Contains(upstream.query(), "merchant_id="+merchantID) {
		t.Errorf("transactions query: %s", upstream.query())
	}
}

func TestComputeSettlementCanonicalisesMerchantID(t *testing.T) {
	upstream := &fakeUpstream{transactions: `[]`}
	svc := newTestService(t, upstream)

	result, err := svc.ComputeSettlement(context.Background(), strings.ToUpper(merchantID), "2025-08-11")
	if err != nil {
		t.Fatalf("ComputeSettlement: %v", err)
	}
	if result.MerchantID != merchantID {
		t.Errorf("merchant id: got %s, want %s", result.MerchantID, merchantID)
	}
	if !strings.Contains(upstream.query(), "merchant_id="+merchantID) {
		t.Errorf("transactions query: %s", upstream.query())
	}
}

func TestComputeSettlementIsIdempotent(t *testing.T) {
	upstream := &fakeUpstream{transactions: `[
		{"id":"t1","amount":"10.10","type":"SALE"},
		{"id":"t2","amount":"0.10","type":"REFUND"}
	]`}
	svc := newTestService(t, upstream)

	first, err := svc.ComputeSettlement(context.Background(), merchantID, "2025-08-11")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := svc.ComputeSettlement(context.Background(), merchantID, "2025-08-11")
	if err != nil {
		t.Fatalf("second: %v", err)
	}

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Fatalf("results differ:\n%s\n%s", a, b)
	}
}

func TestComputeSettlementValidatesBeforeNetwork(t *testing.T) {
	upstream := &fakeUpstream{transactions: `[]`}
	svc := newTestService(t, upstream)

	if _, err := svc.ComputeSettlement(context.Background(), "merchant-1", "2025-08-11"); !errors.Is(err, domain.ErrInvalidMerchantID) {
		t.Errorf("expected ErrInvalidMerchantID, got %v", err)
	}
	if _, err := svc.ComputeSettlement(context.Background(), merchantID, "2025-13-01"); !errors.Is(err, domain.ErrInvalidDate) {
		t.Errorf("expected ErrInvalidDate, got %v", err)
	}
	if _, err := svc.ComputeSettlement(context.Background(), merchantID, "2030-01-01"); !errors.Is(err, domain.ErrInvalidDate) {
		t.Errorf("future date: expected ErrInvalidDate, got %v", err)
	}
	if got := atomic.LoadInt32(&upstream.calls); got != 0 {
		t.Errorf("expected no upstream calls, got %d", got)
	}
}

func TestComputeSettlementUpstreamErrors(t *testing.T) {
	tests := []struct {
		name     string
		upstream *fakeUpstream
		want     error
	}{
		{"merchant not found", &fakeUpstream{merchantStatus: http.StatusNotFound, transactions: `[]`}, domain.ErrMerchantNotFound},
		{"merchant unavailable", &fakeUpstream{merchantStatus: http.StatusServiceUnavailable, transactions: `[]`}, domain.ErrMerchantUnavailable},
		{"transactions unavailable", &fakeUpstream{transactionsStatus: http.StatusBadGateway}, domain.ErrTransactionsUnavailable},
		{"transactions malformed", &fakeUpstream{transactions: `not json`}, domain.ErrMalformedResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, tt.upstream)
			_, err := svc.ComputeSettlement(context.Background(), merchantID, "2025-08-11")
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestComputeWithTimezone(t *testing.T) {
	if _, ok := period.ResolveLocation("Asia/Tokyo"); !ok {
		t.Skip("tzdata unavailable")
	}
	upstream := &fakeUpstream{transactions: `[]`}
	svc := newTestService(t, upstream)

	result, err := svc.Compute(context.Background(), Request{MerchantID: merchantID, Date: "2025-08-11", Timezone: "Asia/Tokyo"})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if got := result.SettlementPeriod.End.Format(domain.PeriodTimeFormat); got != "2025-08-11T23:59:59.999999+09:00" {
		t.Errorf("end: %s", got)
	}
	if result.SettlementAmount != "0.00" || len(result.Transactions) != 0 {
		t.Errorf("empty settlement: %+v", result)
	}
}

func TestCheckHealth(t *testing.T) {
	healthy := newTestService(t, &fakeUpstream{})
	if !healthy.CheckHealth(context.Background()) {
		t.Errorf("expected healthy")
	}

	down := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	if down.CheckHealth(context.Background()) {
		t.Errorf("expected unhealthy")
	}
}

func TestListMerchants(t *testing.T) {
	svc := newTestService(t, &fakeUpstream{})
	merchants, err := svc.ListMerchants(context.Background())
	if err != nil {
		t.Fatalf("ListMerchants: %v", err)
	}
	if len(merchants) != 1 || merchants[0].Name != "Acme Coffee" {
		t.Fatalf("unexpected: %+v", merchants)
	}
}

type stubGetter struct {
	calls int32
	id    string
}

func (s *stubGetter) GetMerchant(ctx context.Context, id string) (domain.Merchant, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.id != "" {
		id = s.id
	}
	return domain.Merchant{ID: id, Name: "From Cache"}, nil
}

func TestWithMerchantGetter(t *testing.T) {
	upstream := &fakeUpstream{transactions: `[]`}
	srv := httptest.NewServer(upstream)
	defer srv.Close()

	getter := &stubGetter{}
	svc := NewService(
		gateway.New(gateway.Options{BaseURL: srv.URL, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}),
		WithMerchantGetter(getter),
		WithCalculator(period.NewCalculator(period.WithClock(func() time.Time { return time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC) }))),
	)

	result, err := svc.ComputeSettlement(context.Background(), merchantID, "2025-08-11")
	if err != nil {
		t.Fatalf("ComputeSettlement: %v", err)
	}
	if result.MerchantName != "From Cache" || atomic.LoadInt32(&getter.calls) != 1 {
		t.Fatalf("getter not used: %+v", result)
	}
	if got := atomic.LoadInt32(&upstream.calls); got != 1 {
		t.Fatalf("expected only the transactions call upstream, got %d", got)
	}
}

func TestComputeReportsRequestedMerchantID(t *testing.T) {
	upstream := &fakeUpstream{transactions: `[]`}
	srv := httptest.NewServer(upstream)
	defer srv.Close()

	svc := NewService(
		gateway.New(gateway.Options{BaseURL: srv.URL, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}),
		WithMerchantGetter(&stubGetter{id: strings.ToUpper(merchantID)}),
		WithCalculator(period.NewCalculator(period.WithClock(func() time.Time { return time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC) }))),
	)

	result, err := svc.ComputeSettlement(context.Background(), merchantID, "2025-08-11")
	if err != nil {
		t.Fatalf("ComputeSettlement: %v", err)
	}
	if result.MerchantID != merchantID {
		t.Fatalf("merchant id: got %s", result.MerchantID)
	}
}

func TestAssemble(t *testing.T) {
	p := domain.SettlementPeriod{
		Start: time.Date(2025, 8, 10, 23, 59, 59, 999999000, time.UTC),
		End:   time.Date(2025, 8, 11, 23, 59, 59, 999999000, time.UTC),
	}
	result := Assemble(domain.Merchant{ID: "m", Name: "M"}, p.End, p, domain.SettlementSummary{}, nil)
	if result.Transactions == nil {
		t.Errorf("transactions should serialize as an empty list")
	}
	if result.SettlementDate != "2025-08-11" || result.SettlementAmount != "0.00" {
		t.Errorf("unexpected: %+v", result)
	}
}
