package repository

import (
	"context"
	"database/sql"
	"errors"
)

var ErrCommissionPolicyNotFound = errors.New("commission policy not found")

type CommissionPolicyRepository struct {
	db      DBTX
	dialect Dialect
}

func NewCommissionPolicyRepository(db DBTX, dialect Dialect) *CommissionPolicyRepository {
	return &CommissionPolicyRepository{db: db, dialect: dialect}
}

// FindPercent returns the commission_percent column as text so callers keep decimal precision.
func (r *CommissionPolicyRepository) FindPercent(ctx context.Context, operationType string) (string, error) {
	query := `SELECT commission_percent FROM commission_policies WHERE operation_type = ?`

	var percent string
	err := r.db.QueryRowContext(ctx, r.dialect.Rebind(query), operationType).Scan(&percent)
	if err == sql.ErrNoRows {
		return "", ErrCommissionPolicyNotFound
	}
	if err != nil {
		return "", err
	}
	return percent, nil
}
