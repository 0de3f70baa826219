package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation    = "23505"
	pgExclusionViolation = "23P01"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// PGRepository stores slots in the availabilities table and bookings in
// appointments (see migrations/).
type PGRepository struct{ pool *pgxpool.Pool }

var _ Repository = (*PGRepository)(nil)

func NewPGRepository(pool *pgxpool.Pool) *PGRepository { return &PGRepository{pool: pool} }

const slotCols = `a.id, a.doctor_id, a.start_at, a.end_at, ap.id::text, ap.patient_id, ap.notes`

const slotFrom = ` FROM availabilities a
	LEFT JOIN appointments ap ON ap.availability_id = a.id AND ap.status = 'scheduled'`

func scanSlot(row pgx.Row) (Slot, error) {
	var s Slot
	var apptID, patientID, notes *string
	if err := row.Scan(&s.ID, &s.DoctorID, &s.Start, &s.End, &apptID, &patientID, &notes); err != nil {
		return Slot{}, err
	}
	s.Start, s.End = s.Start.UTC(), s.End.UTC()
	if apptID != nil {
		id, err := uuid.Parse(*apptID)
		if err != nil {
			return Slot{}, fmt.Errorf("parse appointment id: %w", err)
		}
		s.Booking = &Booking{AppointmentID: id}
		if patientID != nil {
			s.Booking.PatientID = *patientID
		}
		if notes != nil {
			s.Booking.Notes = *notes
		}
	}
	return s, nil
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (r *PGRepository) ListByDoctor(ctx context.Context, doctorID string, from, to time.Time) ([]Slot, error) {
	return listByDoctor(ctx, r.pool, doctorID, from, to)
}

func listByDoctor(ctx context.Context, q queryable, doctorID string, from, to time.Time) ([]Slot, error) {
	rows, err := q.Query(ctx, `SELECT `+slotCols+slotFrom+`
		WHERE a.doctor_id = $1
		  AND ($2::timestamptz IS NULL OR a.start_at >= $2)
		  AND ($3::timestamptz IS NULL OR a.start_at < $3)
		ORDER BY a.start_at`, doctorID, optionalTime(from), optionalTime(to))
	if err != nil {
		return nil, fmt.Errorf("list availability: %w", err)
	}
	defer rows.Close()

	var out []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan availability: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PGRepository) CreateSlots(ctx context.Context, doctorID string, in []SlotInput) ([]Slot, error) {
	if err := validateInputs(in); err != nil {
		return nil, err
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	out := make([]Slot, 0, len(in))
	for _, s := range in {
		slot := Slot{DoctorID: doctorID, Start: s.Start.UTC(), End: s.End.UTC()}
		err := tx.QueryRow(ctx,
			`INSERT INTO availabilities (doctor_id, start_at, end_at) VALUES ($1, $2, $3) RETURNING id`,
			doctorID, slot.Start, slot.End).Scan(&slot.ID)
		if isUniqueViolation(err) || isExclusionViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrSlotConflict, slot.Start.Format(time.RFC3339))
		}
		if err != nil {
			return nil, fmt.Errorf("insert availability: %w", err)
		}
		out = append(out, slot)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return out, nil
}

func (r *PGRepository) DeleteSlots(ctx context.Context, doctorID string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT a.id, ap.id IS NOT NULL
		FROM availabilities a
		LEFT JOIN appointments ap ON ap.availability_id = a.id AND ap.status = 'scheduled'
		WHERE a.doctor_id = $1 AND a.id = ANY($2)
		FOR UPDATE OF a`, doctorID, ids)
	if err != nil {
		return fmt.Errorf("lock availability: %w", err)
	}
	found := make(map[int64]bool, len(ids))
	for rows.Next() {
		var id int64
		var booked bool
		if err := rows.Scan(&id, &booked); err != nil {
			rows.Close()
			return fmt.Errorf("scan availability: %w", err)
		}
		if booked {
			rows.Close()
			return fmt.Errorf("%w: %d", ErrSlotBooked, id)
		}
		found[id] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("lock availability: %w", err)
	}
	for _, id := range ids {
		if !found[id] {
			return fmt.Errorf("%w: %d", ErrSlotNotFound, id)
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM availabilities WHERE doctor_id = $1 AND id = ANY($2)`, doctorID, ids); err != nil {
		return fmt.Errorf("delete availability: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *PGRepository) Book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	slot, err := scanSlot(tx.QueryRow(ctx, `SELECT `+slotCols+slotFrom+` WHERE a.id = $1 FOR UPDATE OF a`, req.AvailabilityID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSlotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load availability: %w", err)
	}
	if req.DoctorID != "" && slot.DoctorID != req.DoctorID {
		return nil, ErrSlotNotFound
	}
	if slot.Booked() {
		return nil, ErrSlotAlreadyBooked
	}

	appt := &Appointment{
		ID:             uuid.New(),
		AvailabilityID: slot.ID,
		DoctorID:       slot.DoctorID,
		PatientID:      req.PatientID,
		Notes:          req.Notes,
		Status:         StatusScheduled,
		Start:          slot.Start,
		End:            slot.End,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO appointments (id, availability_id, doctor_id, patient_id, notes, status, start_at, end_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING created_at`,
		appt.ID.String(), appt.AvailabilityID, appt.DoctorID, appt.PatientID, appt.Notes, appt.Status, appt.Start, appt.End,
	).Scan(&appt.CreatedAt)
	if isUniqueViolation(err) {
		return nil, ErrSlotAlreadyBooked
	}
	if err != nil {
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	appt.CreatedAt = appt.CreatedAt.UTC()
	appt.UpdatedAt = appt.CreatedAt
	return appt, nil
}

const appointmentCols = `id::text, availability_id, doctor_id, patient_id, notes, status, start_at, end_at, created_at, updated_at`

func scanAppointment(row pgx.Row) (Appointment, error) {
	var a Appointment
	var id string
	var availabilityID *int64
	var start, end *time.Time
	if err := row.Scan(&id, &availabilityID, &a.DoctorID, &a.PatientID, &a.Notes, &a.Status,
		&start, &end, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return Appointment{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Appointment{}, fmt.Errorf("parse appointment id: %w", err)
	}
	a.ID = parsed
	if availabilityID != nil {
		a.AvailabilityID = *availabilityID
	}
	if start != nil {
		a.Start = start.UTC()
	}
	if end != nil {
		a.End = end.UTC()
	}
	a.CreatedAt, a.UpdatedAt = a.CreatedAt.UTC(), a.UpdatedAt.UTC()
	return a, nil
}

func (r *PGRepository) ListAppointments(ctx context.Context, patientID string) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+appointmentCols+` FROM appointments
		WHERE patient_id = $1
		ORDER BY start_at NULLS LAST, created_at`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PGRepository) UpdateAppointmentNotes(ctx context.Context, patientID string, id uuid.UUID, notes string) (*Appointment, error) {
	return r.modifyAppointment(ctx, patientID, id, `UPDATE appointments SET notes = $2, updated_at = NOW()
		WHERE id = $1 RETURNING `+appointmentCols, notes)
}

// CancelAppointment flips the status; the slot is free again because slot
// queries only join scheduled appointments.
func (r *PGRepository) CancelAppointment(ctx context.Context, patientID string, id uuid.UUID) (*Appointment, error) {
	return r.modifyAppointment(ctx, patientID, id, `UPDATE appointments SET status = $2, updated_at = NOW()
		WHERE id = $1 RETURNING `+appointmentCols, StatusCancelled)
}

// modifyAppointment locks a scheduled appointment of patientID and runs
// update with the id as $1 and arg as $2.
func (r *PGRepository) modifyAppointment(ctx context.Context, patientID string, id uuid.UUID, update string, arg any) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := scanAppointment(tx.QueryRow(ctx, `SELECT `+appointmentCols+` FROM appointments
		WHERE id = $1 AND patient_id = $2 FOR UPDATE`, id.String(), patientID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if !current.Active() {
		return nil, ErrAppointmentCancelled
	}

	updated, err := scanAppointment(tx.QueryRow(ctx, update, id.String(), arg))
	if err != nil {
		return nil, fmt.Errorf("update appointment: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &updated, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// isExclusionViolation matches the availabilities_no_overlap constraint.
func isExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgExclusionViolation
}
