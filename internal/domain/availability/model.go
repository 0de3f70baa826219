// Package availability holds the doctor calendar core: the canonical slot grid
// for a day, its reconciliation against server-reported availability, and the
// add/delete edit session a doctor uses to change it.
package availability

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// WireTimeLayout is the ISO-8601 UTC layout slot instants travel in.
const WireTimeLayout = "2006-01-02T15:04:05Z"

// RecordID is an opaque server identifier. The backend issues numeric ids,
// other deployments use strings; both decode into the same type.
type RecordID string

func (id RecordID) String() string { return string(id) }

// MarshalJSON emits integer-looking ids as JSON numbers so they round-trip to
// the backend in the form it issued them.
func (id RecordID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id *RecordID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = RecordID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("record id: %w", err)
	}
	*id = RecordID(n.String())
	return nil
}

// TimeSlot is a server availability record.
type TimeSlot struct {
	ID       RecordID        `json:"id"`
	DoctorID RecordID        `json:"doctor_id,omitempty"`
	Start    time.Time       `json:"start"`
	End      time.Time       `json:"end"`
	Booked   bool            `json:"booked"`
	Booking  json.RawMessage `json:"booking,omitempty"`
}

// Key is the locally-derived identity of a slot: its start instant in wire form.
func (s TimeSlot) Key() string { return FormatInstant(s.Start) }

type timeSlotJSON struct {
	ID        RecordID        `json:"id"`
	DoctorID  RecordID        `json:"doctor_id,omitempty"`
	Start     string          `json:"start"`
	End       string          `json:"end"`
	StartTime string          `json:"start_time,omitempty"`
	EndTime   string          `json:"end_time,omitempty"`
	Booked    bool            `json:"booked"`
	Booking   json.RawMessage `json:"booking,omitempty"`
}

func (s TimeSlot) MarshalJSON() ([]byte, error) {
	return json.Marshal(timeSlotJSON{
		ID:       s.ID,
		DoctorID: s.DoctorID,
		Start:    FormatInstant(s.Start),
		End:      FormatInstant(s.End),
		Booked:   s.Booked,
		Booking:  s.Booking,
	})
}

// UnmarshalJSON accepts both start/end and the older start_time/end_time keys.
func (s *TimeSlot) UnmarshalJSON(data []byte) error {
	var raw timeSlotJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	startStr, endStr := raw.Start, raw.End
	if startStr == "" {
		startStr = raw.StartTime
	}
	if endStr == "" {
		endStr = raw.EndTime
	}
	start, err := ParseInstant(startStr)
	if err != nil {
		return fmt.Errorf("slot %s start: %w", raw.ID, err)
	}
	end, err := ParseInstant(endStr)
	if err != nil {
		return fmt.Errorf("slot %s end: %w", raw.ID, err)
	}
	booking := raw.Booking
	if bytes.Equal(bytes.TrimSpace(booking), []byte("null")) {
		booking = nil
	}
	*s = TimeSlot{
		ID:       raw.ID,
		DoctorID: raw.DoctorID,
		Start:    start,
		End:      end,
		Booked:   raw.Booked,
		Booking:  booking,
	}
	return nil
}

// NewSlot is the create payload for one slot: bare UTC bounds, no bookkeeping.
type NewSlot struct {
	Start time.Time
	End   time.Time
}

func (n NewSlot) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Start string `json:"start"`
		End   string `json:"end"`
	}{FormatInstant(n.Start), FormatInstant(n.End)})
}

func (n *NewSlot) UnmarshalJSON(data []byte) error {
	var raw struct {
		Start string `json:"start"`
		End   string `json:"end"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	start, err := ParseInstant(raw.Start)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	end, err := ParseInstant(raw.End)
	if err != nil {
		return fmt.Errorf("end: %w", err)
	}
	n.Start, n.End = start, end
	return nil
}

// FormatInstant renders t as a UTC wire timestamp.
func FormatInstant(t time.Time) string { return t.UTC().Format(WireTimeLayout) }

// ParseInstant reads an RFC 3339 timestamp, with or without fractional
// seconds, and returns it in UTC.
func ParseInstant(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// SortByStart orders slots by start instant in place.
func SortByStart(slots []TimeSlot) {
	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].Start.Before(slots[j].Start)
	})
}

// SlotState discriminates the three kinds of reconciled slot.
type SlotState int

const (
	// StateCandidate is a grid slot with no server record behind it.
	StateCandidate SlotState = iota
	// StateOpen is doctor-declared availability that nobody has booked.
	StateOpen
	// StateBooked is a slot reserved by a patient. It is read only.
	StateBooked
)

func (s SlotState) String() string {
	switch s {
	case StateCandidate:
		return "candidate"
	case StateOpen:
		return "open"
	case StateBooked:
		return "booked"
	default:
		return "unknown"
	}
}

// ReconciledSlot is one grid position with its server facts and selection.
type ReconciledSlot struct {
	// ID is the server id for server-backed slots and the wire start
	// timestamp for candidates.
	ID       RecordID
	Start    time.Time
	End      time.Time
	State    SlotState
	Booking  json.RawMessage
	Selected bool
}

// IsFromServer reports whether deleting the slot needs a server delete call.
func (s ReconciledSlot) IsFromServer() bool { return s.State != StateCandidate }

// Booked reports whether a patient has reserved the slot.
func (s ReconciledSlot) Booked() bool { return s.State == StateBooked }

// Key is the identity toggles address the slot by.
func (s ReconciledSlot) Key() string { return string(s.ID) }

// TimeSlot strips the selection bookkeeping.
func (s ReconciledSlot) TimeSlot() TimeSlot {
	ts := TimeSlot{Start: s.Start, End: s.End, Booked: s.Booked(), Booking: s.Booking}
	if s.IsFromServer() {
		ts.ID = s.ID
	}
	return ts
}

func cloneSlots(in []ReconciledSlot) []ReconciledSlot {
	if in == nil {
		return nil
	}
	out := make([]ReconciledSlot, len(in))
	copy(out, in)
	return out
}
