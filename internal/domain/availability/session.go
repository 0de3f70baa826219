package availability

import "fmt"

// Mode is the edit mode of a calendar.
type Mode int

const (
	ModeNone Mode = iota
	ModeAdd
	ModeDelete
)

func (m Mode) String() string {
	switch m {
	case ModeAdd:
		return "add"
	case ModeDelete:
		return "delete"
	default:
		return "none"
	}
}

// EditSession is a doctor's uncommitted batch edit of one day. Add sessions
// only switch slots on; delete sessions only switch server slots off and back.
// Booked slots never change in either.
type EditSession struct {
	mode  Mode
	slots []ReconciledSlot
	index map[string]int
}

// NewEditSession seeds a working set from the current reconciled day.
func NewEditSession(mode Mode, slots []ReconciledSlot) (*EditSession, error) {
	if mode != ModeAdd && mode != ModeDelete {
		return nil, fmt.Errorf("edit session mode must be add or delete, got %s", mode)
	}
	s := &EditSession{
		mode:  mode,
		slots: cloneSlots(slots),
		index: make(map[string]int, len(slots)),
	}
	for i, sl := range s.slots {
		s.index[sl.Key()] = i
	}
	return s, nil
}

func (s *EditSession) Mode() Mode { return s.mode }

// Slots returns a copy of the working set in grid order.
func (s *EditSession) Slots() []ReconciledSlot { return cloneSlots(s.slots) }

// Slot looks a working-set entry up by key.
func (s *EditSession) Slot(key string) (ReconciledSlot, bool) {
	i, ok := s.index[key]
	if !ok {
		return ReconciledSlot{}, false
	}
	return s.slots[i], true
}

// Toggle applies the mode's toggle rule to one slot and reports whether the
// selection changed. Rule violations are silent no-ops.
func (s *EditSession) Toggle(key string) (bool, error) {
	i, ok := s.index[key]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownSlot, key)
	}
	slot := &s.slots[i]
	if slot.Booked() {
		return false, nil
	}

	switch s.mode {
	case ModeAdd:
		if slot.Selected {
			return false, nil
		}
		slot.Selected = true
		return true, nil
	case ModeDelete:
		if !slot.IsFromServer() {
			return false, nil
		}
		slot.Selected = !slot.Selected
		return true, nil
	}
	return false, nil
}

// Additions lists the newly selected slots that are not yet on the server.
func (s *EditSession) Additions() []NewSlot {
	var out []NewSlot
	for _, sl := range s.slots {
		if sl.Selected && !sl.IsFromServer() && !sl.Booked() {
			out = append(out, NewSlot{Start: sl.Start, End: sl.End})
		}
	}
	return out
}

// Removals lists the ids of server slots deselected during the session.
func (s *EditSession) Removals() []RecordID {
	var out []RecordID
	for _, sl := range s.slots {
		if sl.IsFromServer() && !sl.Booked() && !sl.Selected {
			out = append(out, sl.ID)
		}
	}
	return out
}

// Dirty reports whether saving would call the store.
func (s *EditSession) Dirty() bool {
	switch s.mode {
	case ModeAdd:
		return len(s.Additions()) > 0
	case ModeDelete:
		return len(s.Removals()) > 0
	}
	return false
}
