package availability

import "time"

// Reconcile lays the server records over grid. Every grid start yields exactly
// one slot, in grid order. A server record is matched only by an exactly equal
// start instant; records that match no grid start are ignored.
func Reconcile(grid []time.Time, serverSlots []TimeSlot, slotDuration time.Duration) []ReconciledSlot {
	byStart := make(map[int64]TimeSlot, len(serverSlots))
	for _, s := range serverSlots {
		k := s.Start.UnixNano()
		if _, dup := byStart[k]; dup {
			continue
		}
		byStart[k] = s
	}

	out := make([]ReconciledSlot, 0, len(grid))
	for _, start := range grid {
		start = start.UTC()
		slot := ReconciledSlot{
			ID:    RecordID(FormatInstant(start)),
			Start: start,
			End:   start.Add(slotDuration),
			State: StateCandidate,
		}
		if existing, ok := byStart[start.UnixNano()]; ok {
			if existing.ID != "" {
				slot.ID = existing.ID
			}
			slot.Booking = existing.Booking
			slot.State = StateOpen
			if existing.Booked {
				slot.State = StateBooked
			}
		}
		slot.Selected = slot.IsFromServer()
		out = append(out, slot)
	}
	return out
}
