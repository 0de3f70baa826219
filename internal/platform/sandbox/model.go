// Package sandbox is a local stand-in for the telemedicine REST backend. It
// serves the availability and appointment endpoints the client uses, backed
// by memory or PostgreSQL, and can seed reproducible demo calendars.
package sandbox

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSlotNotFound      = errors.New("slot not found")
	ErrSlotConflict      = errors.New("slot overlaps an existing slot")
	ErrSlotBooked        = errors.New("slot is booked and cannot be deleted")
	ErrSlotAlreadyBooked = errors.New("slot is already booked")
	ErrInvalidSlot       = errors.New("slot end must be after its start")

	ErrAppointmentNotFound  = errors.New("appointment not found")
	ErrAppointmentCancelled = errors.New("appointment is cancelled")
)

const (
	StatusScheduled = "scheduled"
	StatusCancelled = "cancelled"
)

// Slot is one stored availability record.
type Slot struct {
	ID       int64
	DoctorID string
	Start    time.Time
	End      time.Time
	Booking  *Booking
}

func (s Slot) Booked() bool { return s.Booking != nil }

// Booking is the patient-facing part of an appointment attached to a slot.
type Booking struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	PatientID     string    `json:"patient_id"`
	Notes         string    `json:"notes,omitempty"`
}

// SlotInput is a slot to create.
type SlotInput struct {
	Start time.Time
	End   time.Time
}

// Appointment is a patient's booking. A cancelled appointment keeps the slot
// times it was booked for but no longer holds the slot.
type Appointment struct {
	ID             uuid.UUID `json:"id"`
	AvailabilityID int64     `json:"availability_id"`
	DoctorID       string    `json:"doctor_id"`
	PatientID      string    `json:"patient_id"`
	Notes          string    `json:"notes"`
	Status         string    `json:"status"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (a Appointment) Active() bool { return a.Status == StatusScheduled }

// BookingRequest asks to reserve AvailabilityID with DoctorID for PatientID.
type BookingRequest struct {
	AvailabilityID int64
	DoctorID       string
	PatientID      string
	Notes          string
}

func validateInputs(in []SlotInput) error {
	for _, s := range in {
		if s.Start.IsZero() || !s.End.After(s.Start) {
			return ErrInvalidSlot
		}
	}
	return nil
}
