// Package aggregation fetches a merchant's transactions for a settlement
// period and reduces them to totals.
package aggregation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/acme/settlement/internal/domain"
	"github.com/acme/settlement/internal/gateway"
)

// QueryTimeFormat is how period bounds are sent upstream.
const QueryTimeFormat = "2006-01-02T15:04:05.000000-07:00"

const defaultMaxPages = 1000

// Aggregator computes settlement summaries from upstream transactions.
type Aggregator struct {
	fetcher  gateway.Fetcher
	logger   *slog.Logger
	maxPages int
}

func New(fetcher gateway.Fetcher, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{fetcher: fetcher, logger: logger, maxPages: defaultMaxPages}
}

// Aggregate fetches every page of transactions for merchantID within p and
// summarizes them. Any page failing fails the whole call; no partial
// summary is ever returned.
func (a *Aggregator) Aggregate(ctx context.Context, merchantID string, p domain.SettlementPeriod) (domain.SettlementSummary, []domain.Transaction, error) {
	records, err := a.fetchAll(ctx, merchantID, p)
	if err != nil {
		return domain.SettlementSummary{}, nil, err
	}

	summary, txns, defaulted := Reduce(records)
	a.logger.Info("transactions aggregated",
		"merchant_id", merchantID,
		"transactions", summary.TransactionCount,
		"unclassified", summary.UnclassifiedCount,
		"defaulted_amounts", defaulted,
	)
	return summary, txns, nil
}

func (a *Aggregator) fetchAll(ctx context.Context, merchantID string, p domain.SettlementPeriod) ([]json.RawMessage, error) {
	query := url.Values{}
	query.Set("merchant_id", merchantID)
	query.Set("start", p.Start.Format(QueryTimeFormat))
	query.Set("end", p.End.Format(QueryTimeFormat))

	var records []json.RawMessage
	for page := 1; ; page++ {
		if page > a.maxPages {
			return nil, fmt.Errorf("%w: pagination exceeded %d pages", domain.ErrMalformedResponse, a.maxPages)
		}
		query.Set("page", strconv.Itoa(page))

		payload, err := a.fetcher.Fetch(ctx, "/transactions", query)
		if err != nil {
			return nil, mapError(page, err)
		}
		decoded, err := gateway.DecodePage(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: transactions page %d: %w", domain.ErrMalformedResponse, page, err)
		}

		records = append(records, decoded.Results...)
		if !decoded.HasNext {
			return records, nil
		}
	}
}

// Reduce sanitizes and classifies records in order. Credits add to
// TotalPurchases and debits to TotalRefunds, both by magnitude; unclassified
// records are kept and counted but excluded from both totals. defaulted is
// the number of records whose amount was unusable and taken as zero.
func Reduce(records []json.RawMessage) (summary domain.SettlementSummary, txns []domain.Transaction, defaulted int) {
	summary.TotalPurchases = decimal.Zero
	summary.TotalRefunds = decimal.Zero
	txns = make([]domain.Transaction, 0, len(records))

	for _, raw := range records {
		txn, ok := sanitize(raw)
		if !ok {
			defaulted++
		}
		switch txn.Classification {
		case domain.ClassCredit:
			summary.TotalPurchases = summary.TotalPurchases.Add(txn.Amount.Abs())
		case domain.ClassDebit:
			summary.TotalRefunds = summary.TotalRefunds.Add(txn.Amount.Abs())
		default:
			summary.UnclassifiedCount++
		}
		txns = append(txns, txn)
	}
	summary.TransactionCount = len(txns)
	return summary, txns, defaulted
}

func mapError(page int, err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, gateway.ErrMalformedResponse):
		return fmt.Errorf("%w: transactions page %d: %w", domain.ErrMalformedResponse, page, err)
	default:
		return fmt.Errorf("%w: transactions page %d: %w", domain.ErrTransactionsUnavailable, page, err)
	}
}
