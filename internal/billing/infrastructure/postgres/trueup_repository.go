package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	billing "aquasplit/internal/billing/domain"
)

const defaultTrueUpsTable = "billing_trueups"

// TrueUpRepository is a Postgres repository for true-up records. Period
// references are stored as a JSON column: they are an immutable snapshot
// read back only for display, never queried by field.
type TrueUpRepository struct {
	db    *sql.DB
	table string
}

// TrueUpRepositoryOption customizes the repository.
type TrueUpRepositoryOption func(*TrueUpRepository)

// WithTrueUpsTable overrides the table name.
func WithTrueUpsTable(table string) TrueUpRepositoryOption {
	return func(r *TrueUpRepository) {
		if table != "" {
			r.table = table
		}
	}
}

// NewTrueUpRepository constructs a repository.
func NewTrueUpRepository(db *sql.DB, opts ...TrueUpRepositoryOption) *TrueUpRepository {
	r := &TrueUpRepository{db: db, table: defaultTrueUpsTable}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

const trueupColumns = `id, covers_start, covers_end, amount, manual_basis, period_refs,
	basis_usage_1_m3, basis_usage_2_m3, share_1, share_2, settlement, basis_total_m3, saved_at`

// List returns all saved true-ups ordered by covered start date.
func (r *TrueUpRepository) List(ctx context.Context) ([]billing.TrueUp, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("trueup repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
SELECT %s
FROM %s
ORDER BY covers_start ASC, saved_at ASC`, trueupColumns, r.table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []billing.TrueUp
	for rows.Next() {
		trueup, err := scanTrueUp(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, trueup)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Save appends a true-up.
func (r *TrueUpRepository) Save(ctx context.Context, trueup *billing.TrueUp) (billing.TrueUpID, error) {
	if r == nil || r.db == nil {
		return "", errors.New("trueup repo: nil db")
	}
	if trueup == nil {
		return "", billing.ErrNilTrueUp
	}
	if err := trueup.Validate(); err != nil {
		return "", err
	}
	if trueup.ID == "" {
		return "", errors.New("trueup repo: missing id")
	}
	if trueup.SavedAt.IsZero() {
		trueup.SavedAt = time.Now().UTC()
	}
	refs, err := json.Marshal(trueup.Refs)
	if err != nil {
		return "", err
	}
	_, err = r.db.ExecContext(ctx, fmt.Sprintf(`
INSERT INTO %s (
	%s
) VALUES (
	$1, $2, $3, $4, $5, $6,
	$7, $8, $9, $10, $11, $12, $13
)`, r.table, trueupColumns),
		string(trueup.ID), trueup.CoversStart, trueup.CoversEnd,
		trueup.Amount, trueup.ManualBasis, refs,
		trueup.Basis.Usage1M3, trueup.Basis.Usage2M3,
		trueup.Result.Share1, trueup.Result.Share2,
		trueup.Result.Settlement, trueup.Result.BasisTotal, trueup.SavedAt,
	)
	if err != nil {
		return "", err
	}
	return trueup.ID, nil
}

func scanTrueUp(row rowScanner) (billing.TrueUp, error) {
	var trueup billing.TrueUp
	var id string
	var refs []byte
	err := row.Scan(
		&id,
		&trueup.CoversStart,
		&trueup.CoversEnd,
		&trueup.Amount,
		&trueup.ManualBasis,
		&refs,
		&trueup.Basis.Usage1M3,
		&trueup.Basis.Usage2M3,
		&trueup.Result.Share1,
		&trueup.Result.Share2,
		&trueup.Result.Settlement,
		&trueup.Result.BasisTotal,
		&trueup.SavedAt,
	)
	if err != nil {
		return billing.TrueUp{}, err
	}
	trueup.ID = billing.TrueUpID(id)
	if len(refs) > 0 {
		if err := json.Unmarshal(refs, &trueup.Refs); err != nil {
			return billing.TrueUp{}, err
		}
	}
	trueup.CoversStart = trueup.CoversStart.UTC()
	trueup.CoversEnd = trueup.CoversEnd.UTC()
	trueup.SavedAt = trueup.SavedAt.UTC()
	return trueup, nil
}
