package availability

import "time"

// Period is a named band of local hours, [StartHour, EndHour).
type Period struct {
	Name      string
	StartHour int
	EndHour   int
}

// DefaultPeriods splits the clinic day the way the calendar shows it.
var DefaultPeriods = []Period{
	{Name: "morning", StartHour: 6, EndHour: 12},
	{Name: "day", StartHour: 12, EndHour: 18},
	{Name: "evening", StartHour: 18, EndHour: 24},
}

// PeriodSlots is one period with the slots that start in it.
type PeriodSlots struct {
	Period Period
	Slots  []ReconciledSlot
}

// GroupByPeriod buckets slots by their local start hour in loc. Slots outside
// every period are left out; order within a period is preserved.
func GroupByPeriod(slots []ReconciledSlot, loc *time.Location, periods []Period) []PeriodSlots {
	out := make([]PeriodSlots, len(periods))
	for i, p := range periods {
		out[i].Period = p
	}
	for _, s := range slots {
		hour := s.Start.In(loc).Hour()
		for i, p := range periods {
			if hour >= p.StartHour && hour < p.EndHour {
				out[i].Slots = append(out[i].Slots, s)
				break
			}
		}
	}
	return out
}
