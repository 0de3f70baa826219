package availability

import (
	"fmt"
	"time"
)

// GridSpec fixes everything about a day grid except the day itself.
type GridSpec struct {
	Location    *time.Location
	StartHour   int
	EndHour     int
	StepMinutes int
}

// DefaultGridSpec is the clinic calendar: 06:00-24:00 Moscow time in 30-minute steps.
func DefaultGridSpec() (GridSpec, error) {
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		return GridSpec{}, fmt.Errorf("load clinic timezone: %w", err)
	}
	return GridSpec{Location: loc, StartHour: 6, EndHour: 24, StepMinutes: 30}, nil
}

// Validate rejects bounds Generate could not honour.
func (g GridSpec) Validate() error {
	if g.Location == nil {
		return fmt.Errorf("%w: reference timezone is required", ErrInvalidGrid)
	}
	if g.StartHour < 0 || g.EndHour > 24 {
		return fmt.Errorf("%w: hours must lie in [0,24], got %d-%d", ErrInvalidGrid, g.StartHour, g.EndHour)
	}
	if g.StartHour >= g.EndHour {
		return fmt.Errorf("%w: start hour %d must be before end hour %d", ErrInvalidGrid, g.StartHour, g.EndHour)
	}
	if g.StepMinutes <= 0 || g.StepMinutes > 60 {
		return fmt.Errorf("%w: step must be in (0,60] minutes, got %d", ErrInvalidGrid, g.StepMinutes)
	}
	return nil
}

// SlotDuration is the width of every slot on the grid.
func (g GridSpec) SlotDuration() time.Duration {
	return time.Duration(g.StepMinutes) * time.Minute
}

// Generate returns the grid starts for date.
func (g GridSpec) Generate(date Date) ([]time.Time, error) {
	return Generate(date, g.Location, g.StartHour, g.EndHour, g.StepMinutes)
}

// Generate lays out date@hour:minute wall-clock times in loc for every hour in
// [startHour,endHour) and every minute in [0,60) stepping by stepMinutes, and
// returns them as ascending UTC instants.
//
// Offsets come from the zone database as-is. When a daylight-saving gap
// folds two wall-clock times onto one instant the later duplicate is dropped,
// so the output is always strictly increasing.
func Generate(date Date, loc *time.Location, startHour, endHour, stepMinutes int) ([]time.Time, error) {
	spec := GridSpec{Location: loc, StartHour: startHour, EndHour: endHour, StepMinutes: stepMinutes}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	perHour := (60 + stepMinutes - 1) / stepMinutes
	out := make([]time.Time, 0, (endHour-startHour)*perHour)
	for hour := startHour; hour < endHour; hour++ {
		for minute := 0; minute < 60; minute += stepMinutes {
			t := date.At(hour, minute, loc).UTC()
			if n := len(out); n > 0 && !t.After(out[n-1]) {
				continue
			}
			out = append(out, t)
		}
	}
	return out, nil
}
