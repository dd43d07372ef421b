package bank

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harborstay/harborstay/internal/platform/httpx"
)

// Repository provides PostgreSQL backed access to bank accounts.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetDefault returns the account payments should be directed to.
func (r *Repository) GetDefault(ctx context.Context) (*Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, bank_code, account_number, holder_name, is_default
FROM bank_accounts WHERE is_default ORDER BY id LIMIT 1`)
	var a Account
	err := row.Scan(&a.ID, &a.BankCode, &a.AccountNumber, &a.HolderName, &a.Default)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("bank: no default account: %w", httpx.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// List returns all registered accounts.
func (r *Repository) List(ctx context.Context) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, bank_code, account_number, holder_name, is_default
FROM bank_accounts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.BankCode, &a.AccountNumber, &a.HolderName, &a.Default); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}
