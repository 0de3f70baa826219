package sandbox

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository is a thread-safe in-memory Repository.
type MemoryRepository struct {
	mu           sync.RWMutex
	nextID       int64
	slots        map[int64]*Slot
	appointments map[uuid.UUID]*Appointment
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		slots:        make(map[int64]*Slot),
		appointments: make(map[uuid.UUID]*Appointment),
	}
}

// overlaps reports whether [aStart,aEnd) and [bStart,bEnd) intersect.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

func (r *MemoryRepository) ListByDoctor(_ context.Context, doctorID string, from, to time.Time) ([]Slot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Slot
	for _, s := range r.slots {
		if s.DoctorID != doctorID {
			continue
		}
		if !from.IsZero() && s.Start.Before(from) {
			continue
		}
		if !to.IsZero() && !s.Start.Before(to) {
			continue
		}
		out = append(out, copySlot(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (r *MemoryRepository) CreateSlots(_ context.Context, doctorID string, in []SlotInput) ([]Slot, error) {
	if err := validateInputs(in); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i, s := range in {
		conflict := false
		for _, existing := range r.slots {
			if existing.DoctorID == doctorID && overlaps(s.Start, s.End, existing.Start, existing.End) {
				conflict = true
				break
			}
		}
		for _, prev := range in[:i] {
			if overlaps(s.Start, s.End, prev.Start, prev.End) {
				conflict = true
				break
			}
		}
		if conflict {
			return nil, fmt.Errorf("%w: %s", ErrSlotConflict, s.Start.UTC().Format(time.RFC3339))
		}
	}

	out := make([]Slot, 0, len(in))
	for _, s := range in {
		r.nextID++
		slot := &Slot{ID: r.nextID, DoctorID: doctorID, Start: s.Start.UTC(), End: s.End.UTC()}
		r.slots[slot.ID] = slot
		out = append(out, *slot)
	}
	return out, nil
}

func (r *MemoryRepository) DeleteSlots(_ context.Context, doctorID string, ids []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ids {
		s, ok := r.slots[id]
		if !ok || s.DoctorID != doctorID {
			return fmt.Errorf("%w: %d", ErrSlotNotFound, id)
		}
		if s.Booked() {
			return fmt.Errorf("%w: %d", ErrSlotBooked, id)
		}
	}
	for _, id := range ids {
		delete(r.slots, id)
	}
	return nil
}

func (r *MemoryRepository) Book(_ context.Context, req BookingRequest) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[req.AvailabilityID]
	if !ok || (req.DoctorID != "" && s.DoctorID != req.DoctorID) {
		return nil, ErrSlotNotFound
	}
	if s.Booked() {
		return nil, ErrSlotAlreadyBooked
	}

	appt := &Appointment{
		ID:             uuid.New(),
		AvailabilityID: s.ID,
		DoctorID:       s.DoctorID,
		PatientID:      req.PatientID,
		Notes:          req.Notes,
		Status:         StatusScheduled,
		Start:          s.Start,
		End:            s.End,
		CreatedAt:      time.Now().UTC(),
	}
	appt.UpdatedAt = appt.CreatedAt
	r.appointments[appt.ID] = appt
	s.Booking = &Booking{AppointmentID: appt.ID, PatientID: req.PatientID, Notes: req.Notes}

	out := *appt
	return &out, nil
}

func (r *MemoryRepository) ListAppointments(_ context.Context, patientID string) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Appointment
	for _, a := range r.appointments {
		if a.PatientID == patientID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryRepository) UpdateAppointmentNotes(_ context.Context, patientID string, id uuid.UUID, notes string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, err := r.activeAppointment(patientID, id)
	if err != nil {
		return nil, err
	}
	a.Notes = notes
	a.UpdatedAt = time.Now().UTC()
	if b := r.bookingOf(a); b != nil {
		b.Notes = notes
	}
	out := *a
	return &out, nil
}

func (r *MemoryRepository) CancelAppointment(_ context.Context, patientID string, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, err := r.activeAppointment(patientID, id)
	if err != nil {
		return nil, err
	}
	a.Status = StatusCancelled
	a.UpdatedAt = time.Now().UTC()
	if s, ok := r.slots[a.AvailabilityID]; ok && r.bookingOf(a) != nil {
		s.Booking = nil
	}
	out := *a
	return &out, nil
}

// activeAppointment must be called with r.mu held.
func (r *MemoryRepository) activeAppointment(patientID string, id uuid.UUID) (*Appointment, error) {
	a, ok := r.appointments[id]
	if !ok || a.PatientID != patientID {
		return nil, ErrAppointmentNotFound
	}
	if !a.Active() {
		return nil, ErrAppointmentCancelled
	}
	return a, nil
}

// bookingOf returns the slot booking held by a, if the slot still exists.
func (r *MemoryRepository) bookingOf(a *Appointment) *Booking {
	s, ok := r.slots[a.AvailabilityID]
	if !ok || s.Booking == nil || s.Booking.AppointmentID != a.ID {
		return nil
	}
	return s.Booking
}

func copySlot(s *Slot) Slot {
	out := *s
	if s.Booking != nil {
		b := *s.Booking
		out.Booking = &b
	}
	return out
}
