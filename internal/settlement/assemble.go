package settlement

import (
	"time"

	"github.com/acme/settlement/internal/domain"
)

// Assemble composes the final settlement. settlement_amount is rendered from
// the summary's net so the two can never disagree.
func Assemble(m domain.Merchant, date time.Time, p domain.SettlementPeriod, summary domain.SettlementSummary, txns []domain.Transaction) domain.SettlementResult {
	if txns == nil {
		txns = []domain.Transaction{}
	}
	return domain.SettlementResult{
		MerchantID:       m.ID,
		MerchantName:     m.Name,
		SettlementDate:   date.Format(time.DateOnly),
		SettlementPeriod: p,
		SettlementAmount: domain.FormatAmount(summary.NetSettlement()),
		Summary:          summary,
		Transactions:     txns,
	}
}
