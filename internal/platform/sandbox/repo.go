package sandbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository stores availability and appointments. Batch writes are
// all-or-nothing.
type Repository interface {
	// ListByDoctor returns doctorID's slots starting in [from, to), ordered by
	// start. A zero bound is open.
	ListByDoctor(ctx context.Context, doctorID string, from, to time.Time) ([]Slot, error)
	CreateSlots(ctx context.Context, doctorID string, in []SlotInput) ([]Slot, error)
	// DeleteSlots fails with ErrSlotNotFound if any id is missing or belongs
	// to another doctor, and with ErrSlotBooked if any is booked.
	DeleteSlots(ctx context.Context, doctorID string, ids []int64) error
	Book(ctx context.Context, req BookingRequest) (*Appointment, error)

	// ListAppointments returns every appointment of patientID, cancelled ones
	// included, ordered by start.
	ListAppointments(ctx context.Context, patientID string) ([]Appointment, error)
	// UpdateAppointmentNotes and CancelAppointment fail with
	// ErrAppointmentNotFound when id does not belong to patientID, and with
	// ErrAppointmentCancelled when it was already cancelled.
	UpdateAppointmentNotes(ctx context.Context, patientID string, id uuid.UUID, notes string) (*Appointment, error)
	// CancelAppointment releases the slot so it can be booked again.
	CancelAppointment(ctx context.Context, patientID string, id uuid.UUID) (*Appointment, error)
}
