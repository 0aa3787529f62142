package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Known upstream transaction types. SALE is a synonym of PURCHASE.
const (
	TypePurchase = "PURCHASE"
	TypeSale     = "SALE"
	TypeRefund   = "REFUND"
)

// Classification describes the direction a transaction moves money for the merchant.
type Classification string

const (
	ClassCredit       Classification = "credit"
	ClassDebit        Classification = "debit"
	ClassUnclassified Classification = "unclassified"
)

// Transaction is a sanitized upstream transaction record. Amount is always a
// valid decimal; a missing or unparseable upstream amount becomes zero.
type Transaction struct {
	ID             string
	MerchantID     string
	Amount         decimal.Decimal
	Type           string // normalized, may be empty or unknown
	Classification Classification
	Timestamp      *time.Time
}

func (t Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID             string         `json:"id"`
		MerchantID     string         `json:"merchant_id"`
		Amount         string         `json:"amount"`
		Type           string         `json:"type"`
		Classification Classification `json:"classification"`
		Timestamp      *time.Time     `json:"timestamp,omitempty"`
	}{
		ID:             t.ID,
		MerchantID:     t.MerchantID,
		Amount:         FormatAmount(t.Amount),
		Type:           t.Type,
		Classification: t.Classification,
		Timestamp:      t.Timestamp,
	})
}

// FormatAmount renders d as a fixed-point string with at least two decimal
// places, keeping any finer precision the value carries.
func FormatAmount(d decimal.Decimal) string {
	places := int32(2)
	if scale := -d.Exponent(); scale > places {
		places = scale
	}
	return d.StringFixed(places)
}
