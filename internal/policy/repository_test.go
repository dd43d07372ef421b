package policy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"
)

func TestDateValue(t *testing.T) {
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, day, dateValue(pgtype.Date{Time: day, Valid: true}))
	// A NULL bound becomes the zero time, the evaluator's open-window marker.
	require.True(t, dateValue(pgtype.Date{}).IsZero())
}

// The surcharge query and the DDL drift independently; pin the columns the
// query references to the surcharge_policies definition.
func TestSurchargeScheduleMatchesSchema(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("..", "..", "scripts", "schema.sql"))
	require.NoError(t, err)

	ddl := string(raw)
	start := strings.Index(ddl, "CREATE TABLE IF NOT EXISTS surcharge_policies")
	require.GreaterOrEqual(t, start, 0)
	end := strings.Index(ddl[start:], ");")
	require.GreaterOrEqual(t, end, 0)
	table := ddl[start : start+end]

	for _, col := range []string{
		"id", "name", "kind", "amount", "percent_bps", "min_occupants",
		"priority", "valid_from", "valid_to", "weekday_mask", "active",
		"created_at",
	} {
		require.Contains(t, table, col)
	}
}
