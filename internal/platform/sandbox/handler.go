package sandbox

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medconnect/telemed/internal/domain/availability"
	"github.com/medconnect/telemed/internal/platform/auth"
)

// Handler serves the availability REST contract.
type Handler struct {
	repo   Repository
	loc    *time.Location
	logger zerolog.Logger
}

// NewHandler builds a Handler. Calendar dates in queries are read in loc.
func NewHandler(repo Repository, loc *time.Location, logger zerolog.Logger) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{repo: repo, loc: loc, logger: logger}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	doctor := g.Group("", auth.RequireRole(auth.RoleDoctor))
	doctor.GET("/my_availabilities", h.ListMine)
	doctor.POST("/availabilities", h.CreateSlots)
	doctor.DELETE("/availabilities", h.DeleteSlots)

	g.GET("/availabilities", h.ListForDoctor)

	patient := auth.RequireRole(auth.RolePatient)
	g.POST("/appointments", h.BookAppointment, patient)
	g.GET("/my_appointments", h.ListMyAppointments, patient)
	g.PATCH("/appointments/:id", h.UpdateAppointment, patient)
	g.DELETE("/appointments/:id/cancel", h.CancelAppointment, patient)
}

type slotResponse struct {
	ID       int64    `json:"id"`
	DoctorID string   `json:"doctor_id"`
	Date     string   `json:"date"`
	Start    string   `json:"start"`
	End      string   `json:"end"`
	Booked   bool     `json:"booked"`
	Booking  *Booking `json:"booking"`
}

func (h *Handler) toResponse(s Slot) slotResponse {
	return slotResponse{
		ID:       s.ID,
		DoctorID: s.DoctorID,
		Date:     availability.DateOf(s.Start, h.loc).String(),
		Start:    availability.FormatInstant(s.Start),
		End:      availability.FormatInstant(s.End),
		Booked:   s.Booked(),
		Booking:  s.Booking,
	}
}

func (h *Handler) toResponses(slots []Slot) []slotResponse {
	out := make([]slotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, h.toResponse(s))
	}
	return out
}

// ListMine handles GET /my_availabilities. With group=date the slots come
// back as an object keyed by calendar date.
func (h *Handler) ListMine(c echo.Context) error {
	doctorID := auth.UserIDFromContext(c.Request().Context())
	slots, err := h.repo.ListByDoctor(c.Request().Context(), doctorID, time.Time{}, time.Time{})
	if err != nil {
		return h.internal(c, err)
	}
	resp := h.toResponses(slots)
	if c.QueryParam("group") != "date" {
		return c.JSON(http.StatusOK, resp)
	}
	byDate := make(map[string][]slotResponse)
	for _, s := range resp {
		byDate[s.Date] = append(byDate[s.Date], s)
	}
	return c.JSON(http.StatusOK, byDate)
}

// ListForDoctor handles GET /availabilities?doctor_id=&date=.
func (h *Handler) ListForDoctor(c echo.Context) error {
	doctorID := c.QueryParam("doctor_id")
	if doctorID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "doctor_id is required")
	}
	date, err := availability.ParseDate(c.QueryParam("date"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "date must be YYYY-MM-DD")
	}
	from := date.At(0, 0, h.loc)
	to := date.AddDays(1).At(0, 0, h.loc)

	slots, err := h.repo.ListByDoctor(c.Request().Context(), doctorID, from, to)
	if err != nil {
		return h.internal(c, err)
	}
	return c.JSON(http.StatusOK, h.toResponses(slots))
}

type createSlotsRequest struct {
	Slots []availability.NewSlot `json:"slots"`
}

// CreateSlots handles POST /availabilities.
func (h *Handler) CreateSlots(c echo.Context) error {
	var req createSlotsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	if len(req.Slots) == 0 {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "slots must not be empty")
	}
	in := make([]SlotInput, 0, len(req.Slots))
	for _, s := range req.Slots {
		in = append(in, SlotInput{Start: s.Start, End: s.End})
	}
	sort.Slice(in, func(i, j int) bool { return in[i].Start.Before(in[j].Start) })

	doctorID := auth.UserIDFromContext(c.Request().Context())
	created, err := h.repo.CreateSlots(c.Request().Context(), doctorID, in)
	switch {
	case errors.Is(err, ErrInvalidSlot):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrSlotConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case err != nil:
		return h.internal(c, err)
	}

	h.logger.Info().Str("doctor_id", doctorID).Int("count", len(created)).Msg("availability created")
	return c.JSON(http.StatusCreated, h.toResponses(created))
}

type deleteSlotsRequest struct {
	SlotIDs []availability.RecordID `json:"slot_ids"`
}

// DeleteSlots handles DELETE /availabilities.
func (h *Handler) DeleteSlots(c echo.Context) error {
	var req deleteSlotsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	if len(req.SlotIDs) == 0 {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "slot_ids must not be empty")
	}
	ids := make([]int64, 0, len(req.SlotIDs))
	for _, raw := range req.SlotIDs {
		id, err := strconv.ParseInt(raw.String(), 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, "invalid slot id: "+raw.String())
		}
		ids = append(ids, id)
	}

	doctorID := auth.UserIDFromContext(c.Request().Context())
	err := h.repo.DeleteSlots(c.Request().Context(), doctorID, ids)
	switch {
	case errors.Is(err, ErrSlotNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrSlotBooked):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case err != nil:
		return h.internal(c, err)
	}

	h.logger.Info().Str("doctor_id", doctorID).Int("count", len(ids)).Msg("availability deleted")
	return c.NoContent(http.StatusNoContent)
}

type bookRequest struct {
	Appointment struct {
		DoctorID       availability.RecordID `json:"doctor_id"`
		AvailabilityID availability.RecordID `json:"availability_id"`
		Notes          string                `json:"notes"`
	} `json:"appointment"`
}

// BookAppointment handles POST /appointments.
func (h *Handler) BookAppointment(c echo.Context) error {
	var req bookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	slotID, err := strconv.ParseInt(req.Appointment.AvailabilityID.String(), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "availability_id is required")
	}

	patientID := auth.UserIDFromContext(c.Request().Context())
	appt, err := h.repo.Book(c.Request().Context(), BookingRequest{
		AvailabilityID: slotID,
		DoctorID:       req.Appointment.DoctorID.String(),
		PatientID:      patientID,
		Notes:          req.Appointment.Notes,
	})
	switch {
	case errors.Is(err, ErrSlotNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrSlotAlreadyBooked):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case err != nil:
		return h.internal(c, err)
	}

	h.logger.Info().
		Str("appointment_id", appt.ID.String()).
		Int64("availability_id", appt.AvailabilityID).
		Msg("appointment booked")
	return c.JSON(http.StatusCreated, map[string]*Appointment{"appointment": appt})
}

// ListMyAppointments handles GET /my_appointments.
func (h *Handler) ListMyAppointments(c echo.Context) error {
	patientID := auth.UserIDFromContext(c.Request().Context())
	appts, err := h.repo.ListAppointments(c.Request().Context(), patientID)
	if err != nil {
		return h.internal(c, err)
	}
	if appts == nil {
		appts = []Appointment{}
	}
	return c.JSON(http.StatusOK, appts)
}

type updateAppointmentRequest struct {
	Notes *string `json:"notes"`
}

// UpdateAppointment handles PATCH /appointments/:id. Only the notes are
// editable.
func (h *Handler) UpdateAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, ErrAppointmentNotFound.Error())
	}
	var req updateAppointmentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	if req.Notes == nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "notes is required")
	}

	patientID := auth.UserIDFromContext(c.Request().Context())
	appt, err := h.repo.UpdateAppointmentNotes(c.Request().Context(), patientID, id, *req.Notes)
	if err != nil {
		return h.appointmentError(c, err)
	}
	h.logger.Info().Str("appointment_id", appt.ID.String()).Msg("appointment notes updated")
	return c.JSON(http.StatusOK, map[string]*Appointment{"appointment": appt})
}

// CancelAppointment handles DELETE /appointments/:id/cancel.
func (h *Handler) CancelAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, ErrAppointmentNotFound.Error())
	}
	patientID := auth.UserIDFromContext(c.Request().Context())
	appt, err := h.repo.CancelAppointment(c.Request().Context(), patientID, id)
	if err != nil {
		return h.appointmentError(c, err)
	}
	h.logger.Info().
		Str("appointment_id", appt.ID.String()).
		Int64("availability_id", appt.AvailabilityID).
		Msg("appointment cancelled")
	return c.JSON(http.StatusOK, map[string]*Appointment{"appointment": appt})
}

func (h *Handler) appointmentError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrAppointmentNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrAppointmentCancelled):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return h.internal(c, err)
}

func (h *Handler) internal(c echo.Context, err error) error {
	rid, _ := c.Get("request_id").(string)
	h.logger.Error().Err(err).Str("request_id", rid).Msg("repository failure")
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
