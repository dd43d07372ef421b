package policy

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository loads the configured policy set from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ActiveDepositRule returns the newest active deposit rule. A missing rule is
// not an error; callers fall back to a zero deposit.
func (r *Repository) ActiveDepositRule(ctx context.Context) (DepositRule, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, method, value FROM deposit_rules
WHERE active ORDER BY id DESC LIMIT 1`)
	var rule DepositRule
	err := row.Scan(&rule.ID, &rule.Method, &rule.Value)
	if errors.Is(err, pgx.ErrNoRows) {
		return DepositRule{}, nil
	}
	if err != nil {
		return DepositRule{}, err
	}
	return rule, nil
}

// ListSurcharges returns surcharge policies whose validity window can cover
// the given date. A NULL bound means the window is open on that side. Final
// matching stays in the evaluator.
func (r *Repository) ListSurcharges(ctx context.Context, date time.Time) ([]SurchargePolicy, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, kind, amount, percent_bps, min_occupants, priority, valid_from, valid_to, weekday_mask, created_at
FROM surcharge_policies
WHERE active
  AND (valid_from IS NULL OR valid_from <= $1)
  AND (valid_to IS NULL OR valid_to >= $1)
ORDER BY id`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []SurchargePolicy
	for rows.Next() {
		var p SurchargePolicy
		var mask int16
		var from, to pgtype.Date
		if err := rows.Scan(&p.ID, &p.Name, &p.Kind, &p.Amount, &p.PercentBps, &p.MinOccupants, &p.Priority, &from, &to, &mask, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.ValidFrom = dateValue(from)
		p.ValidTo = dateValue(to)
		p.Weekdays = WeekdayMask(mask)
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

// dateValue maps a NULL date to the zero time, which the evaluator treats as
// an open window bound.
func dateValue(d pgtype.Date) time.Time {
	if !d.Valid {
		return time.Time{}
	}
	return d.Time
}
