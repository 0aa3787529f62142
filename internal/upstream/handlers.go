// Package upstream serves a local stand-in for the ACME payments API, backed
// by SQLite and able to fail on purpose.
package upstream

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/acme/settlement/internal/repository"
)

// Handlers groups the simulator endpoints and their dependencies.
type Handlers struct {
	merchants *repository.MerchantRepo
	txns      *repository.TransactionRepo
	pageSize  int
	logger    *slog.Logger
}

// pageEnvelope is the paged response shape of the payments API.
type pageEnvelope struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  any     `json:"results"`
}

// --- helpers ---

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", "error", err)
	}
}

func (h *Handlers) writeDetail(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"detail": msg})
}

func parsePage(s string) (int, bool) {
	if s == "" {
		return 1, true
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return 0, false
	}
	return v, true
}

func parseBound(s string) (*time.Time, bool) {
	if s == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, false
	}
	return &t, true
}

// pageLink rewrites the request URL to point at page, or nil when page is out
// of range.
func pageLink(r *http.Request, page, total, size int) *string {
	if page < 1 || (page-1)*size >= total {
		return nil
	}
	u := url.URL{Path: r.URL.Path}
	q := r.URL.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	link := u.String()
	return &link
}

func envelope(r *http.Request, page, total, size int, results any) pageEnvelope {
	return pageEnvelope{
		Count:    total,
		Next:     pageLink(r, page+1, total, size),
		Previous: pageLink(r, page-1, total, size),
		Results:  results,
	}
}

// --- ListMerchants ---

func (h *Handlers) ListMerchants(w http.ResponseWriter, r *http.Request) {
	page, ok := parsePage(r.URL.Query().Get("page"))
	if !ok {
		h.writeDetail(w, http.StatusNotFound, "Invalid page.")
		return
	}

	merchants, total, err := h.merchants.List(page, h.pageSize)
	if err != nil {
		h.logger.Error("list merchants", "error", err)
		h.writeDetail(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.writeJSON(w, http.StatusOK, envelope(r, page, total, h.pageSize, merchants))
}

// --- GetMerchant ---

func (h *Handlers) GetMerchant(w http.ResponseWriter, r *http.Request) {
	m, err := h.merchants.GetByID(chi.URLParam(r, "id"))
	if errors.Is(err, repository.ErrNotFound) {
		h.writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	if err != nil {
		h.logger.Error("get merchant", "error", err)
		h.writeDetail(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.writeJSON(w, http.StatusOK, m)
}

// --- ListTransactions ---

func (h *Handlers) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, ok := parsePage(q.Get("page"))
	if !ok {
		h.writeDetail(w, http.StatusNotFound, "Invalid page.")
		return
	}
	from, okFrom := parseBound(q.Get("start"))
	to, okTo := parseBound(q.Get("end"))
	if !okFrom || !okTo {
		h.writeDetail(w, http.StatusUnprocessableEntity, "start and end must be RFC 3339 timestamps")
		return
	}

	filter := repository.TransactionFilter{
		MerchantID: q.Get("merchant_id"),
		From:       from,
		To:         to,
		Page:       page,
		Limit:      h.pageSize,
	}
	records, total, err := h.txns.List(filter)
	if err != nil {
		h.logger.Error("list transactions", "error", err)
		h.writeDetail(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.writeJSON(w, http.StatusOK, envelope(r, page, total, h.pageSize, records))
}
