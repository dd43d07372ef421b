package policy

import (
	"sort"
	"time"
)

// DepositAmount computes the required deposit for a stay. An explicit
// override wins over every rule.
func DepositAmount(info StayInfo, rule DepositRule, override *int64) int64 {
	if override != nil {
		return *override
	}
	switch rule.Method {
	case DepositPercent:
		return roundBps(info.TotalAmount, rule.Value)
	case DepositFixed:
		return rule.Value
	case DepositNights:
		nights := rule.Value
		if int64(info.Nights) < nights {
			nights = int64(info.Nights)
		}
		return info.RoomRate * nights
	default:
		return 0
	}
}

// ApplicableSurcharges evaluates the policy set for one charge date. Within
// each surcharge kind the highest-priority matching policy wins; ties break
// by creation order.
func ApplicableSurcharges(info StayInfo, date time.Time, policies []SurchargePolicy) []Surcharge {
	winners := make(map[SurchargeKind]SurchargePolicy)
	for _, p := range policies {
		if !matches(p, info, date) {
			continue
		}
		current, ok := winners[p.Kind]
		if !ok || beats(p, current) {
			winners[p.Kind] = p
		}
	}

	var out []Surcharge
	for _, p := range winners {
		amount := surchargeAmount(p, info)
		if amount <= 0 {
			continue
		}
		out = append(out, Surcharge{PolicyID: p.ID, Name: p.Name, Kind: p.Kind, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PolicyID < out[j].PolicyID })
	return out
}

func matches(p SurchargePolicy, info StayInfo, date time.Time) bool {
	if !p.ValidFrom.IsZero() && date.Before(p.ValidFrom) {
		return false
	}
	if !p.ValidTo.IsZero() && date.After(p.ValidTo) {
		return false
	}
	if p.Weekdays != 0 && !p.Weekdays.Matches(date.Weekday()) {
		return false
	}
	if p.Kind == SurchargeExtraOccupant && info.Occupants <= p.MinOccupants {
		return false
	}
	return true
}

func beats(a, b SurchargePolicy) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func surchargeAmount(p SurchargePolicy, info StayInfo) int64 {
	switch p.Kind {
	case SurchargeExtraOccupant:
		extra := int64(info.Occupants - p.MinOccupants)
		if extra <= 0 {
			return 0
		}
		return p.Amount * extra
	default:
		if p.PercentBps > 0 {
			return roundBps(info.RoomRate, p.PercentBps)
		}
		return p.Amount
	}
}

// roundBps applies a basis-point rate with half-up rounding.
func roundBps(amount, bps int64) int64 {
	return (amount*bps + 5000) / 10000
}
