package stay

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harborstay/harborstay/internal/platform/httpx"
)

// Repository provides PostgreSQL backed lookups over stays.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const stayColumns = `id, code, guest_name, status, check_in, check_out, nights, occupants, room_rate, total_amount`

func scanStay(row pgx.Row) (*Stay, error) {
	var s Stay
	err := row.Scan(&s.ID, &s.Code, &s.GuestName, &s.Status, &s.CheckIn, &s.CheckOut, &s.Nights, &s.Occupants, &s.RoomRate, &s.TotalAmount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("stay: %w", httpx.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Get retrieves one stay by id.
func (r *Repository) Get(ctx context.Context, id int64) (*Stay, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+stayColumns+` FROM stays WHERE id = $1`, id)
	return scanStay(row)
}

// ListInHouse returns every stay currently checked in; the night audit
// iterates over this set.
func (r *Repository) ListInHouse(ctx context.Context) ([]Stay, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+stayColumns+` FROM stays WHERE status = $1 ORDER BY id`, StatusInHouse)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stays []Stay
	for rows.Next() {
		var s Stay
		if err := rows.Scan(&s.ID, &s.Code, &s.GuestName, &s.Status, &s.CheckIn, &s.CheckOut, &s.Nights, &s.Occupants, &s.RoomRate, &s.TotalAmount); err != nil {
			return nil, err
		}
		stays = append(stays, s)
	}
	return stays, rows.Err()
}
