package aggregation

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/acme/settlement/internal/domain"
)

// typeSynonyms maps normalized upstream type names to a classification.
var typeSynonyms = map[string]domain.Classification{
	domain.TypePurchase: domain.ClassCredit,
	"PURCHASES":         domain.ClassCredit,
	domain.TypeSale:     domain.ClassCredit,
	"SALES":             domain.ClassCredit,
	domain.TypeRefund:   domain.ClassDebit,
	"REFUNDS":           domain.ClassDebit,
}

// maxAmountExponent bounds the decimal exponent of an upstream amount. Values
// past it are treated as unparseable.
const maxAmountExponent = 18

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

type rawRecord struct {
	ID         json.RawMessage `json:"id"`
	MerchantID json.RawMessage `json:"merchant_id"`
	Merchant   json.RawMessage `json:"merchant"`
	Amount     json.RawMessage `json:"amount"`
	Type       json.RawMessage `json:"type"`
	Timestamp  json.RawMessage `json:"timestamp"`
	CreatedAt  json.RawMessage `json:"created_at"`
}

// sanitize turns one upstream record into a Transaction. It never fails: a
// record that is not an object, or has an unusable amount, yields a zero amount.
// amountOK reports whether the upstream amount parsed.
func sanitize(raw json.RawMessage) (txn domain.Transaction, amountOK bool) {
	var rec rawRecord
	_ = json.Unmarshal(raw, &rec)

	txn = domain.Transaction{
		ID:         scalarString(rec.ID),
		MerchantID: firstNonEmpty(scalarString(rec.MerchantID), scalarString(rec.Merchant)),
		Type:       normalizeType(scalarString(rec.Type)),
		Amount:     decimal.Zero,
	}
	txn.Classification = classify(txn.Type)

	if amount, ok := parseAmount(scalarString(rec.Amount)); ok {
		txn.Amount = amount
		amountOK = true
	}

	ts := firstNonEmpty(scalarString(rec.Timestamp), scalarString(rec.CreatedAt))
	if t, ok := parseTimestamp(ts); ok {
		txn.Timestamp = &t
	}
	return txn, amountOK
}

func parseAmount(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, false
	}
	if exp := d.Exponent(); exp < -maxAmountExponent || exp > maxAmountExponent {
		return decimal.Zero, false
	}
	return d, true
}

// normalizeType upper-cases and trims t, folding spaces and hyphens to underscores.
func normalizeType(t string) string {
	t = strings.ToUpper(strings.TrimSpace(t))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(t)
}

func classify(normalized string) domain.Classification {
	if c, ok := typeSynonyms[normalized]; ok {
		return c
	}
	return domain.ClassUnclassified
}

// scalarString returns a JSON string's value or a JSON number's literal text.
// null, booleans, objects and arrays yield "".
func scalarString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch c := raw[0]; {
	case c == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	case c == '-' || (c >= '0' && c <= '9'):
		return string(raw)
	default:
		return ""
	}
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
