package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/acme/settlement/internal/domain"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

type MerchantRepo struct {
	db *sql.DB
}

func NewMerchantRepo(db *sql.DB) *MerchantRepo {
	return &MerchantRepo{db: db}
}

func (r *MerchantRepo) BulkInsert(merchants []domain.Merchant) (int, error) {
	inserted := 0
	sqlTx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()

	stmt, err := sqlTx.Prepare(`INSERT OR IGNORE INTO merchants (id, name, timezone) VALUES (?,?,?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i, m := range merchants {
		res, err := stmt.Exec(m.ID, m.Name, nullableString(m.Timezone))
		if err != nil {
			return inserted, fmt.Errorf("insert merchant %d: %w", i, err)
		}
		ra, _ := res.RowsAffected()
		inserted += int(ra)
	}

	if err := sqlTx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

func (r *MerchantRepo) Count() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM merchants").Scan(&count)
	return count, err
}

func (r *MerchantRepo) GetByID(id string) (*domain.Merchant, error) {
	var m domain.Merchant
	var tz sql.NullString
	err := r.db.QueryRow("SELECT id, name, timezone FROM merchants WHERE id = ?", id).Scan(&m.ID, &m.Name, &tz)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get merchant: %w", err)
	}
	m.Timezone = tz.String
	return &m, nil
}

// List returns one page of merchants ordered by name, plus the total count.
func (r *MerchantRepo) List(page, limit int) ([]domain.Merchant, int, error) {
	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM merchants").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	page, limit = normalizePage(page, limit)
	rows, err := r.db.Query(
		"SELECT id, name, timezone FROM merchants ORDER BY name, id LIMIT ? OFFSET ?",
		limit, (page-1)*limit,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	merchants := []domain.Merchant{}
	for rows.Next() {
		var m domain.Merchant
		var tz sql.NullString
		if err := rows.Scan(&m.ID, &m.Name, &tz); err != nil {
			return nil, 0, fmt.Errorf("scan: %w", err)
		}
		m.Timezone = tz.String
		merchants = append(merchants, m)
	}
	return merchants, total, rows.Err()
}

func normalizePage(page, limit int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if page <= 0 {
		page = 1
	}
	return page, limit
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
