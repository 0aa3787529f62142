package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// PeriodTimeFormat renders period boundaries with microsecond precision.
const PeriodTimeFormat = "2006-01-02T15:04:05.000000Z07:00"

// SettlementPeriod is the inclusive window of transactions attributed to a
// settlement date.
type SettlementPeriod struct {
	Start time.Time
	End   time.Time
}

func (p SettlementPeriod) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"start": p.Start.Format(PeriodTimeFormat),
		"end":   p.End.Format(PeriodTimeFormat),
	})
}

// SettlementSummary holds the totals for a period. The net settlement is
// derived from the two totals and never stored.
type SettlementSummary struct {
	TotalPurchases    decimal.Decimal
	TotalRefunds      decimal.Decimal
	TransactionCount  int
	UnclassifiedCount int
}

// NetSettlement returns TotalPurchases - TotalRefunds.
func (s SettlementSummary) NetSettlement() decimal.Decimal {
	return s.TotalPurchases.Sub(s.TotalRefunds)
}

func (s SettlementSummary) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		TotalPurchases    string `json:"total_purchases"`
		TotalRefunds      string `json:"total_refunds"`
		TransactionCount  int    `json:"transaction_count"`
		UnclassifiedCount int    `json:"unclassified_count"`
		NetSettlement     string `json:"net_settlement"`
	}{
		TotalPurchases:    FormatAmount(s.TotalPurchases),
		TotalRefunds:      FormatAmount(s.TotalRefunds),
		TransactionCount:  s.TransactionCount,
		UnclassifiedCount: s.UnclassifiedCount,
		NetSettlement:     FormatAmount(s.NetSettlement()),
	})
}

// SettlementResult is the assembled settlement for one merchant and date.
type SettlementResult struct {
	MerchantID       string            `json:"merchant_id"`
	MerchantName     string            `json:"merchant_name"`
	SettlementDate   string            `json:"settlement_date"`
	SettlementPeriod SettlementPeriod  `json:"settlement_period"`
	SettlementAmount string            `json:"settlement_amount"`
	Summary          SettlementSummary `json:"summary"`
	Transactions     []Transaction     `json:"transactions"`
}
