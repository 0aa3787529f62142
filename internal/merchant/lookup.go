// Package merchant resolves merchant identifiers to merchant metadata.
package merchant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/google/uuid"

	"github.com/acme/settlement/internal/domain"
	"github.com/acme/settlement/internal/gateway"
)

// Getter is the merchant lookup contract used by the settlement service.
type Getter interface {
	GetMerchant(ctx context.Context, merchantID string) (domain.Merchant, error)
}

// Lookup fetches merchants from the payments API.
type Lookup struct {
	fetcher gateway.Fetcher
	logger  *slog.Logger
}

func NewLookup(fetcher gateway.Fetcher, logger *slog.Logger) *Lookup {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lookup{fetcher: fetcher, logger: logger}
}

// ValidateID reports whether id is a canonical UUID.
func ValidateID(id string) error {
	parsed, err := uuid.Parse(id)
	if err != nil || len(id) != 36 || parsed == uuid.Nil {
		return fmt.Errorf("%w: %q", domain.ErrInvalidMerchantID, id)
	}
	return nil
}

// CanonicalID returns the lower-case hyphenated form of a valid id. Invalid
// ids are returned unchanged.
func CanonicalID(id string) string {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return id
	}
	return parsed.String()
}

type merchantRecord struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Timezone *string `json:"timezone"`
}

func (r merchantRecord) toDomain() domain.Merchant {
	m := domain.Merchant{ID: r.ID, Name: r.Name}
	if r.Timezone != nil {
		m.Timezone = *r.Timezone
	}
	return m
}

// GetMerchant validates merchantID and fetches the merchant record.
func (l *Lookup) GetMerchant(ctx context.Context, merchantID string) (domain.Merchant, error) {
	if err := ValidateID(merchantID); err != nil {
		return domain.Merchant{}, err
	}

	payload, err := l.fetcher.Fetch(ctx, "/merchants/"+url.PathEscape(merchantID), nil)
	if err != nil {
		return domain.Merchant{}, mapError(merchantID, err)
	}

	var rec merchantRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return domain.Merchant{}, fmt.Errorf("%w: merchant %s: %v", domain.ErrMalformedResponse, merchantID, err)
	}
	if rec.ID == "" {
		return domain.Merchant{}, fmt.Errorf("%w: merchant %s: record has no id", domain.ErrMalformedResponse, merchantID)
	}

	l.logger.Debug("merchant fetched", "merchant_id", merchantID, "name", rec.Name)
	return rec.toDomain(), nil
}

// ListMerchants returns the merchants on the first upstream page.
func (l *Lookup) ListMerchants(ctx context.Context) ([]domain.Merchant, error) {
	payload, err := l.fetcher.Fetch(ctx, "/merchants", url.Values{"page": {"1"}})
	if err != nil {
		return nil, mapError("", err)
	}

	page, err := gateway.DecodePage(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: merchant list: %w", domain.ErrMalformedResponse, err)
	}

	merchants := make([]domain.Merchant, 0, len(page.Results))
	for _, raw := range page.Results {
		var rec merchantRecord
		if err := json.Unmarshal(raw, &rec); err != nil || rec.ID == "" {
			l.logger.Warn("skipping malformed merchant record", "record", string(raw))
			continue
		}
		merchants = append(merchants, rec.toDomain())
	}
	return merchants, nil
}

func mapError(merchantID string, err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, gateway.ErrNotFound):
		return fmt.Errorf("%w: %s: %w", domain.ErrMerchantNotFound, merchantID, err)
	case errors.Is(err, gateway.ErrMalformedResponse):
		return fmt.Errorf("%w: %w", domain.ErrMalformedResponse, err)
	default:
		return fmt.Errorf("%w: %w", domain.ErrMerchantUnavailable, err)
	}
}
