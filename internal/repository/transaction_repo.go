package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// storedTimeFormat is fixed-width UTC so text comparison orders like time.
const storedTimeFormat = "2006-01-02T15:04:05.000000Z"

var seedTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
}

type TransactionRepo struct {
	db *sql.DB
}

func NewTransactionRepo(db *sql.DB) *TransactionRepo {
	return &TransactionRepo{db: db}
}

// seedKeys are the columns pulled out of a raw record for indexing. Anything
// unparseable is left empty; the raw record is stored regardless.
type seedKeys struct {
	ID         any    `json:"id"`
	MerchantID string `json:"merchant_id"`
	Merchant   string `json:"merchant"`
	Timestamp  string `json:"timestamp"`
	CreatedAt  string `json:"created_at"`
}

func extractKeys(raw json.RawMessage) (id, merchantID string, createdAt any) {
	var k seedKeys
	_ = json.Unmarshal(raw, &k)

	switch v := k.ID.(type) {
	case string:
		id = v
	case float64:
		id = fmt.Sprintf("%.0f", v)
	}
	if id == "" {
		id = uuid.NewString()
	}

	merchantID = k.MerchantID
	if merchantID == "" {
		merchantID = k.Merchant
	}

	ts := k.Timestamp
	if ts == "" {
		ts = k.CreatedAt
	}
	for _, layout := range seedTimeLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return id, merchantID, t.UTC().Format(storedTimeFormat)
		}
	}
	return id, merchantID, nil
}

// BulkInsert stores raw transaction records. Duplicate ids are ignored.
func (r *TransactionRepo) BulkInsert(records []json.RawMessage) (int, error) {
	inserted := 0
	sqlTx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()

	stmt, err := sqlTx.Prepare(
		`INSERT OR IGNORE INTO transactions (id, merchant_id, created_at, raw) VALUES (?,?,?,?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i, raw := range records {
		id, merchantID, createdAt := extractKeys(raw)
		res, err := stmt.Exec(id, merchantID, createdAt, string(raw))
		if err != nil {
			return inserted, fmt.Errorf("insert row %d: %w", i, err)
		}
		ra, _ := res.RowsAffected()
		inserted += int(ra)
	}

	if err := sqlTx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

func (r *TransactionRepo) Count() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM transactions").Scan(&count)
	return count, err
}

type TransactionFilter struct {
	MerchantID string
	From       *time.Time
	To         *time.Time
	Page       int
	Limit      int
}

// List returns one page of raw records, oldest first, plus the total count.
// Records without a parseable timestamp only match unbounded queries.
func (r *TransactionRepo) List(f TransactionFilter) ([]json.RawMessage, int, error) {
	where, args := buildTransactionWhere(f)

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM transactions"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	page, limit := normalizePage(f.Page, f.Limit)
	querySQL := "SELECT raw FROM transactions" + where + " ORDER BY created_at, id LIMIT ? OFFSET ?"
	args = append(args, limit, (page-1)*limit)

	rows, err := r.db.Query(querySQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	records := []json.RawMessage{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, 0, fmt.Errorf("scan: %w", err)
		}
		records = append(records, json.RawMessage(raw))
	}
	return records, total, rows.Err()
}

func buildTransactionWhere(f TransactionFilter) (string, []any) {
	var clauses []string
	var args []any

	if f.MerchantID != "" {
		clauses = append(clauses, "merchant_id = ?")
		args = append(args, f.MerchantID)
	}
	if f.From != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, f.From.UTC().Format(storedTimeFormat))
	}
	if f.To != nil {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, f.To.UTC().Format(storedTimeFormat))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
