// Package settlement computes a merchant's net settlement for a date.
package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"golang.org/x/sync/errgroup"

	"github.com/acme/settlement/internal/aggregation"
	"github.com/acme/settlement/internal/domain"
	"github.com/acme/settlement/internal/gateway"
	"github.com/acme/settlement/internal/merchant"
	"github.com/acme/settlement/internal/period"
)

// Request identifies one settlement. Timezone is an optional IANA zone the
// period is computed in; it defaults to UTC.
type Request struct {
	MerchantID string
	Date       string
	Timezone   string
}

// Service is the single entry point for settlement computation.
type Service struct {
	fetcher    gateway.Fetcher
	lookup     *merchant.Lookup
	merchants  merchant.Getter
	aggregator *aggregation.Aggregator
	periods    *period.Calculator
	logger     *slog.Logger
}

type Option func(*Service)

// WithMerchantGetter replaces the merchant lookup used for settlements, e.g.
// with a caching decorator around it.
func WithMerchantGetter(g merchant.Getter) Option { return func(s *Service) { s.merchants = g } }

func WithCalculator(c *period.Calculator) Option { return func(s *Service) { s.periods = c } }

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

func NewService(fetcher gateway.Fetcher, opts ...Option) *Service {
	s := &Service{
		fetcher: fetcher,
		periods: period.NewCalculator(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lookup = merchant.NewLookup(fetcher, s.logger)
	s.aggregator = aggregation.New(fetcher, s.logger)
	if s.merchants == nil {
		s.merchants = s.lookup
	}
	return s
}

// ComputeSettlement computes the settlement for merchantID on date (YYYY-MM-DD, UTC).
func (s *Service) ComputeSettlement(ctx context.Context, merchantID, date string) (domain.SettlementResult, error) {
	return s.Compute(ctx, Request{MerchantID: merchantID, Date: date})
}

// Compute validates req, then fetches the merchant and aggregates its
// transactions concurrently. Either failing cancels the other.
func (s *Service) Compute(ctx context.Context, req Request) (domain.SettlementResult, error) {
	if err := merchant.ValidateID(req.MerchantID); err != nil {
		return domain.SettlementResult{}, err
	}
	req.MerchantID = merchant.CanonicalID(req.MerchantID)

	loc, ok := period.ResolveLocation(req.Timezone)
	if !ok {
		s.logger.Warn("unknown settlement timezone, using UTC", "timezone", req.Timezone)
	}
	p, err := s.periods.Compute(req.Date, loc)
	if err != nil {
		return domain.SettlementResult{}, err
	}

	var (
		m       domain.Merchant
		summary domain.SettlementSummary
		txns    []domain.Transaction
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		m, err = s.merchants.GetMerchant(gctx, req.MerchantID)
		return err
	})
	g.Go(func() error {
		var err error
		summary, txns, err = s.aggregator.Aggregate(gctx, req.MerchantID, p)
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.Error("settlement failed", "merchant_id", req.MerchantID, "date", req.Date, "error", err)
		return domain.SettlementResult{}, err
	}

	m.ID = req.MerchantID
	result := Assemble(m, p.End, p, summary, txns)
	s.logger.Info("settlement computed",
		"merchant_id", req.MerchantID,
		"date", result.SettlementDate,
		"amount", result.SettlementAmount,
		"transactions", summary.TransactionCount,
	)
	return result, nil
}

// Probe makes the smallest upstream call available.
func (s *Service) Probe(ctx context.Context) error {
	if _, err := s.fetcher.Fetch(ctx, "/merchants", url.Values{"page": {"1"}}); err != nil {
		return fmt.Errorf("payments api probe: %w", err)
	}
	return nil
}

// CheckHealth reports whether the payments API answers.
func (s *Service) CheckHealth(ctx context.Context) bool {
	return s.Probe(ctx) == nil
}

// ListMerchants returns the first page of upstream merchants.
func (s *Service) ListMerchants(ctx context.Context) ([]domain.Merchant, error) {
	return s.lookup.ListMerchants(ctx)
}
