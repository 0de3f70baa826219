package availability

import (
	"context"
	"fmt"
)

// DoctorDay is the read-only patient view of one doctor's day: the grid
// reconciled against what the doctor has opened on date. No edit session is
// involved.
func DoctorDay(ctx context.Context, store Store, doctorID string, date Date, grid GridSpec) ([]ReconciledSlot, error) {
	if doctorID == "" {
		return nil, fmt.Errorf("doctor id is required")
	}
	starts, err := grid.Generate(date)
	if err != nil {
		return nil, err
	}
	serverSlots, err := store.ListForDoctor(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	return Reconcile(starts, serverSlots, grid.SlotDuration()), nil
}

// Bookable keeps the open, unbooked server slots a patient can reserve.
func Bookable(slots []ReconciledSlot) []ReconciledSlot {
	var out []ReconciledSlot
	for _, s := range slots {
		if s.State == StateOpen {
			out = append(out, s)
		}
	}
	return out
}
