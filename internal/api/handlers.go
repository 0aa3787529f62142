package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/acme/settlement/internal/domain"
	"github.com/acme/settlement/internal/settlement"
)

// Settler is the settlement service as seen by the HTTP layer.
type Settler interface {
	Compute(ctx context.Context, req settlement.Request) (domain.SettlementResult, error)
	CheckHealth(ctx context.Context) bool
	ListMerchants(ctx context.Context) ([]domain.Merchant, error)
}

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	svc           Settler
	healthTimeout time.Duration
	logger        *slog.Logger
}

// --- helpers ---

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", "error", err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps a settlement error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidMerchantID), errors.Is(err, domain.ErrInvalidDate):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrMerchantNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrMerchantUnavailable), errors.Is(err, domain.ErrTransactionsUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrMalformedResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// --- Info ---

func (h *Handlers) Info(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"service": "acme-settlement",
		"endpoints": map[string]string{
			"settlement": "GET /api/v1/settlement?merchant_id=<uuid>&date=YYYY-MM-DD[&timezone=<IANA zone>]",
			"merchants":  "GET /api/v1/merchants",
			"health":     "GET /health",
		},
	})
}

// --- Health ---

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.healthTimeout)
	defer cancel()

	if !h.svc.CheckHealth(ctx) {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "unhealthy",
			"acme_api": "disconnected",
			"error":    "payments API did not answer",
		})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":   "healthy",
		"acme_api": "connected",
	})
}

// --- ListMerchants ---

func (h *Handlers) ListMerchants(w http.ResponseWriter, r *http.Request) {
	merchants, err := h.svc.ListMerchants(r.Context())
	if err != nil {
		h.writeError(w, statusFor(err), err.Error())
		return
	}

	type entry struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	out := make([]entry, 0, len(merchants))
	for _, m := range merchants {
		out = append(out, entry{ID: m.ID, Name: m.Name})
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"merchants": out,
		"count":     len(out),
	})
}

// --- GetSettlement ---

func (h *Handlers) GetSettlement(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := settlement.Request{
		MerchantID: q.Get("merchant_id"),
		Date:       q.Get("date"),
		Timezone:   q.Get("timezone"),
	}
	if req.MerchantID == "" || req.Date == "" {
		h.writeError(w, http.StatusBadRequest, "merchant_id and date are required")
		return
	}

	result, err := h.svc.Compute(r.Context(), req)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("settlement request failed", "merchant_id", req.MerchantID, "date", req.Date, "status", status, "error", err)
		}
		h.writeError(w, status, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}
