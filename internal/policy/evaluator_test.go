package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDepositAmount(t *testing.T) {
	info := StayInfo{Nights: 3, Occupants: 2, RoomRate: 800_000, TotalAmount: 2_400_000}

	tests := []struct {
		name     string
		rule     DepositRule
		override *int64
		want     int64
	}{
		{name: "percent of total", rule: DepositRule{Method: DepositPercent, Value: 3000}, want: 720_000},
		{name: "percent rounds half up", rule: DepositRule{Method: DepositPercent, Value: 3333}, want: 799_920},
		{name: "fixed amount", rule: DepositRule{Method: DepositFixed, Value: 500_000}, want: 500_000},
		{name: "nights capped at stay length", rule: DepositRule{Method: DepositNights, Value: 5}, want: 2_400_000},
		{name: "nights below stay length", rule: DepositRule{Method: DepositNights, Value: 1}, want: 800_000},
		{name: "no rule means no deposit", rule: DepositRule{}, want: 0},
		{name: "override wins", rule: DepositRule{Method: DepositFixed, Value: 500_000}, override: int64ptr(123_000), want: 123_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, DepositAmount(info, tt.rule, tt.override))
		})
	}
}

func TestApplicableSurchargesWeekdayMask(t *testing.T) {
	saturday := time.Date(2026, 2, 7, 0, 0, 0, 0, time.UTC)
	monday := time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC)

	policies := []SurchargePolicy{
		{ID: 1, Name: "Weekend", Kind: SurchargeWeekend, Amount: 100_000, Weekdays: MaskFor(time.Saturday, time.Sunday)},
	}
	info := StayInfo{Occupants: 2, RoomRate: 800_000}

	require.Len(t, ApplicableSurcharges(info, saturday, policies), 1)
	require.Empty(t, ApplicableSurcharges(info, monday, policies))
}

func TestApplicableSurchargesPriorityWinner(t *testing.T) {
	date := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)
	earlier := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	later := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	policies := []SurchargePolicy{
		{ID: 1, Name: "Season base", Kind: SurchargeSeasonal, Amount: 50_000, Priority: 1, CreatedAt: earlier},
		{ID: 2, Name: "Peak season", Kind: SurchargeSeasonal, Amount: 150_000, Priority: 5, CreatedAt: later},
		{ID: 3, Name: "Weekend", Kind: SurchargeWeekend, Amount: 80_000, Priority: 1, CreatedAt: earlier},
	}
	info := StayInfo{Occupants: 2, RoomRate: 800_000}

	out := ApplicableSurcharges(info, date, policies)
	require.Len(t, out, 2)
	// One winner per kind; the higher priority seasonal policy wins.
	byKind := map[SurchargeKind]Surcharge{}
	for _, sc := range out {
		byKind[sc.Kind] = sc
	}
	require.Equal(t, int64(150_000), byKind[SurchargeSeasonal].Amount)
	require.Equal(t, int64(2), byKind[SurchargeSeasonal].PolicyID)
	require.Equal(t, int64(80_000), byKind[SurchargeWeekend].Amount)
}

func TestApplicableSurchargesPriorityTieBreaksByCreation(t *testing.T) {
	date := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)
	earlier := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	later := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	policies := []SurchargePolicy{
		{ID: 2, Name: "Newer", Kind: SurchargeSeasonal, Amount: 99_000, Priority: 3, CreatedAt: later},
		{ID: 1, Name: "Older", Kind: SurchargeSeasonal, Amount: 44_000, Priority: 3, CreatedAt: earlier},
	}
	out := ApplicableSurcharges(StayInfo{Occupants: 1, RoomRate: 500_000}, date, policies)
	require.Len(t, out, 1)
	require.Equal(t, int64(1), out[0].PolicyID)
}

func TestApplicableSurchargesExtraOccupant(t *testing.T) {
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	policies := []SurchargePolicy{
		{ID: 1, Name: "Extra guest", Kind: SurchargeExtraOccupant, Amount: 120_000, MinOccupants: 2},
	}

	out := ApplicableSurcharges(StayInfo{Occupants: 4, RoomRate: 800_000}, date, policies)
	require.Len(t, out, 1)
	require.Equal(t, int64(240_000), out[0].Amount)

	require.Empty(t, ApplicableSurcharges(StayInfo{Occupants: 2, RoomRate: 800_000}, date, policies))
}

func TestApplicableSurchargesPercentOfRate(t *testing.T) {
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	policies := []SurchargePolicy{
		{ID: 1, Name: "Weekend pct", Kind: SurchargeWeekend, PercentBps: 2500},
	}
	out := ApplicableSurcharges(StayInfo{Occupants: 2, RoomRate: 810_000}, date, policies)
	require.Len(t, out, 1)
	require.Equal(t, int64(202_500), out[0].Amount)
}

func TestApplicableSurchargesValidityWindow(t *testing.T) {
	policies := []SurchargePolicy{
		{
			ID: 1, Name: "Summer", Kind: SurchargeSeasonal, Amount: 70_000,
			ValidFrom: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
			ValidTo:   time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC),
		},
	}
	info := StayInfo{Occupants: 2, RoomRate: 800_000}

	require.Empty(t, ApplicableSurcharges(info, time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC), policies))
	require.Len(t, ApplicableSurcharges(info, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), policies), 1)
	require.Empty(t, ApplicableSurcharges(info, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), policies))
}

func int64ptr(v int64) *int64 { return &v }
