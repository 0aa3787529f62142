// Command generate writes seed data for the upstream simulator:
// testdata/merchants.json and testdata/transactions.json.
//
// The transaction set deliberately includes the dirt seen from the real
// payments API: null and non-numeric amounts, SALE/PURCHASE synonyms, unknown
// types, and the merchant/created_at field spellings.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/acme/settlement/internal/domain"
)

var merchantNames = []string{
	"Acme Coffee", "Blue Door Books", "Corner Hardware", "Delta Florists",
	"Evergreen Grocers", "Fjord Outfitters", "Golden Bakery", "Harbor Fish Market",
}

var timezones = []string{"", "America/New_York", "Europe/Berlin", "Asia/Tokyo"}

func main() {
	perDay := flag.Int("per-day", 6, "transactions per merchant per day")
	days := flag.Int("days", 14, "number of days to generate")
	seed := flag.Int64("seed", 42, "random seed")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))
	baseDir := findTestdataDir()

	merchants := make([]domain.Merchant, len(merchantNames))
	for i, name := range merchantNames {
		merchants[i] = domain.Merchant{
			ID:       deterministicUUID(rng).String(),
			Name:     name,
			Timezone: timezones[i%len(timezones)],
		}
	}
	writeJSONFile(filepath.Join(baseDir, "merchants.json"), merchants)
	fmt.Printf("Generated %d merchants -> merchants.json\n", len(merchants))

	startDate := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	var records []map[string]any
	for _, m := range merchants {
		for d := 0; d < *days; d++ {
			for i := 0; i < *perDay; i++ {
				at := startDate.AddDate(0, 0, d).Add(time.Duration(rng.Intn(24*60*60)) * time.Second)
				records = append(records, transaction(rng, m.ID, at))
			}
		}
	}
	writeJSONFile(filepath.Join(baseDir, "transactions.json"), records)
	fmt.Printf("Generated %d transactions -> transactions.json\n", len(records))
}

func transaction(rng *rand.Rand, merchantID string, at time.Time) map[string]any {
	rec := map[string]any{
		"id":     deterministicUUID(rng).String(),
		"amount": fmt.Sprintf("%d.%02d", 1+rng.Intn(400), rng.Intn(100)),
	}

	switch roll := rng.Intn(100); {
	case roll < 45:
		rec["type"] = "PURCHASE"
	case roll < 75:
		rec["type"] = "SALE"
	case roll < 92:
		rec["type"] = "REFUND"
	case roll < 96:
		rec["type"] = "sale"
	default:
		rec["type"] = "CHARGEBACK"
	}

	switch roll := rng.Intn(100); {
	case roll < 5:
		rec["amount"] = nil
	case roll < 7:
		rec["amount"] = "N/A"
	case roll < 9:
		delete(rec, "amount")
	}

	// Older records use the legacy field names.
	if rng.Intn(5) == 0 {
		rec["merchant"] = merchantID
		rec["created_at"] = at.Format("2006-01-02T15:04:05.000000")
	} else {
		rec["merchant_id"] = merchantID
		rec["timestamp"] = at.Format(time.RFC3339)
	}
	return rec
}

func deterministicUUID(rng *rand.Rand) uuid.UUID {
	var b [16]byte
	rng.Read(b[:])
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return uuid.UUID(b)
}

func writeJSONFile(path string, v any) {
	f, err := os.Create(path)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		panic(err)
	}
}

func findTestdataDir() string {
	for _, c := range []string{"testdata", "../testdata", "../../testdata"} {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			return c
		}
	}
	return "testdata"
}
