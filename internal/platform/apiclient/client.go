// Package apiclient talks to the telemedicine REST backend. Client implements
// availability.Store and adds appointment booking for the patient flow.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medconnect/telemed/internal/domain/availability"
)

const maxErrorBody = 4096

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithTimeout sets the per-request timeout. It applies to a copy of the HTTP
// client, so a client passed to WithHTTPClient is never modified.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.timeout = d }
}

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option {
	return func(cl *Client) { cl.token = token }
}

func WithLogger(l zerolog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// Client is an HTTP availability store.
type Client struct {
	baseURL    *url.URL
	token      string
	httpClient *http.Client
	timeout    time.Duration
	logger     zerolog.Logger
}

var _ availability.Store = (*Client)(nil)

// New creates a Client for the backend rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api base url must be http or https, got %q", baseURL)
	}
	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.timeout > 0 {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	return c, nil
}

// ListMine returns every slot of the authenticated doctor. The backend answers
// with either a flat array or an object keyed by date; both are flattened and
// sorted by start.
func (c *Client) ListMine(ctx context.Context) ([]availability.TimeSlot, error) {
	var raw json.RawMessage
	if err := c.do(ctx, "list_mine", http.MethodGet, "/my_availabilities", nil, nil, &raw); err != nil {
		return nil, err
	}
	slots, err := decodeSlotList(raw)
	if err != nil {
		return nil, &availability.StoreError{Kind: availability.TransportFailure, Op: "list_mine", Message: "malformed response", Err: err}
	}
	return slots, nil
}

// ListForDoctor returns one doctor's slots on date.
func (c *Client) ListForDoctor(ctx context.Context, doctorID string, date availability.Date) ([]availability.TimeSlot, error) {
	q := url.Values{}
	q.Set("doctor_id", doctorID)
	q.Set("date", date.String())
	var raw json.RawMessage
	if err := c.do(ctx, "list_for_doctor", http.MethodGet, "/availabilities", q, nil, &raw); err != nil {
		return nil, err
	}
	slots, err := decodeSlotList(raw)
	if err != nil {
		return nil, &availability.StoreError{Kind: availability.TransportFailure, Op: "list_for_doctor", Message: "malformed response", Err: err}
	}
	return slots, nil
}

type createRequest struct {
	Slots []availability.NewSlot `json:"slots"`
}

func (c *Client) Create(ctx context.Context, slots []availability.NewSlot) error {
	return c.do(ctx, "create", http.MethodPost, "/availabilities", nil, createRequest{Slots: slots}, nil)
}

type deleteRequest struct {
	SlotIDs []availability.RecordID `json:"slot_ids"`
}

func (c *Client) Delete(ctx context.Context, ids []availability.RecordID) error {
	return c.do(ctx, "delete", http.MethodDelete, "/availabilities", nil, deleteRequest{SlotIDs: ids}, nil)
}

// Appointment is a patient's reservation of one availability slot.
type Appointment struct {
	ID             availability.RecordID `json:"id"`
	DoctorID       availability.RecordID `json:"doctor_id"`
	AvailabilityID availability.RecordID `json:"availability_id"`
	PatientID      availability.RecordID `json:"patient_id,omitempty"`
	Notes          string                `json:"notes,omitempty"`
	Status         string                `json:"status,omitempty"`
	Start          time.Time             `json:"start"`
	End            time.Time             `json:"end"`
}

type bookPayload struct {
	DoctorID       availability.RecordID `json:"doctor_id"`
	AvailabilityID availability.RecordID `json:"availability_id"`
	Notes          string                `json:"notes,omitempty"`
}

type bookRequest struct {
	Appointment bookPayload `json:"appointment"`
}

// BookAppointment reserves slotID with doctorID. The response may be the bare
// appointment or one wrapped in an "appointment" key.
func (c *Client) BookAppointment(ctx context.Context, doctorID, slotID availability.RecordID, notes string) (*Appointment, error) {
	if doctorID == "" || slotID == "" {
		return nil, fmt.Errorf("doctor id and slot id are required")
	}
	req := bookRequest{Appointment: bookPayload{DoctorID: doctorID, AvailabilityID: slotID, Notes: notes}}
	var raw json.RawMessage
	if err := c.do(ctx, "book", http.MethodPost, "/appointments", nil, req, &raw); err != nil {
		return nil, err
	}
	appt, err := decodeAppointment("book", raw)
	if err != nil {
		return nil, err
	}
	if appt.AvailabilityID == "" {
		appt.DoctorID, appt.AvailabilityID, appt.Notes = doctorID, slotID, notes
	}
	return appt, nil
}

// ListMyAppointments returns the authenticated patient's appointments. Both a
// bare array and one wrapped in an "appointments" key are accepted.
func (c *Client) ListMyAppointments(ctx context.Context) ([]Appointment, error) {
	var raw json.RawMessage
	if err := c.do(ctx, "list_appointments", http.MethodGet, "/my_appointments", nil, nil, &raw); err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var appts []Appointment
	var err error
	if raw[0] == '{' {
		var wrapped struct {
			Appointments []Appointment `json:"appointments"`
		}
		err = json.Unmarshal(raw, &wrapped)
		appts = wrapped.Appointments
	} else {
		err = json.Unmarshal(raw, &appts)
	}
	if err != nil {
		return nil, &availability.StoreError{Kind: availability.TransportFailure, Op: "list_appointments", Message: "malformed response", Err: err}
	}
	return appts, nil
}

type notesRequest struct {
	Notes string `json:"notes"`
}

// UpdateAppointmentNotes replaces the notes on appointment id. A backend that
// answers with an empty body yields an Appointment carrying only id and notes.
func (c *Client) UpdateAppointmentNotes(ctx context.Context, id availability.RecordID, notes string) (*Appointment, error) {
	if id == "" {
		return nil, fmt.Errorf("appointment id is required")
	}
	var raw json.RawMessage
	path := "/appointments/" + url.PathEscape(id.String())
	if err := c.do(ctx, "update_appointment", http.MethodPatch, path, nil, notesRequest{Notes: notes}, &raw); err != nil {
		return nil, err
	}
	appt, err := decodeAppointment("update_appointment", raw)
	if err != nil {
		return nil, err
	}
	if appt.ID == "" {
		appt.ID, appt.Notes = id, notes
	}
	return appt, nil
}

// CancelAppointment cancels appointment id and releases its slot.
func (c *Client) CancelAppointment(ctx context.Context, id availability.RecordID) error {
	if id == "" {
		return fmt.Errorf("appointment id is required")
	}
	path := "/appointments/" + url.PathEscape(id.String()) + "/cancel"
	return c.do(ctx, "cancel_appointment", http.MethodDelete, path, nil, nil, nil)
}

func decodeAppointment(op string, raw json.RawMessage) (*Appointment, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return &Appointment{}, nil
	}
	var wrapped struct {
		Appointment *Appointment `json:"appointment"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Appointment != nil {
		return wrapped.Appointment, nil
	}
	var appt Appointment
	if err := json.Unmarshal(raw, &appt); err != nil {
		return nil, &availability.StoreError{Kind: availability.TransportFailure, Op: op, Message: "malformed response", Err: err}
	}
	return &appt, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	requestID := uuid.New().String()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		c.logger.Error().Err(err).
			Str("request_id", requestID).
			Str("method", method).
			Str("path", path).
			Dur("latency", latency).
			Msg("api request failed")
		return &availability.StoreError{Kind: availability.TransportFailure, Op: op, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("request_id", requestID).
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", latency).
		Msg("api request")

	if resp.StatusCode >= 300 {
		return statusError(op, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return &availability.StoreError{Kind: availability.TransportFailure, Op: op, Err: err}
		}
		*raw = b
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &availability.StoreError{Kind: availability.TransportFailure, Op: op, Message: "malformed response", Err: err}
	}
	return nil
}

// statusError classifies a non-2xx response: 5xx is a transport failure the
// caller may retry, anything else is the server rejecting the request.
func statusError(op string, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	kind := availability.ValidationFailure
	if resp.StatusCode >= 500 {
		kind = availability.TransportFailure
	}
	return &availability.StoreError{
		Kind:    kind,
		Op:      op,
		Status:  resp.StatusCode,
		Message: errorMessage(b, resp.Status),
	}
}

// errorMessage pulls a human-readable message out of an error body. Rails
// style {"errors":{...}} and echo style {"message":"..."} are both understood.
func errorMessage(body []byte, fallback string) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return fallback
	}
	var parsed struct {
		Message string          `json:"message"`
		Error   string          `json:"error"`
		Errors  json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return string(body)
	}
	switch {
	case parsed.Message != "":
		return parsed.Message
	case parsed.Error != "":
		return parsed.Error
	case len(parsed.Errors) > 0:
		return flattenErrors(parsed.Errors)
	}
	return string(body)
}

func flattenErrors(raw json.RawMessage) string {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, "; ")
	}
	var byField map[string][]string
	if err := json.Unmarshal(raw, &byField); err == nil {
		var parts []string
		for field, msgs := range byField {
			parts = append(parts, field+" "+strings.Join(msgs, ", "))
		}
		sort.Strings(parts)
		return strings.Join(parts, "; ")
	}
	return string(raw)
}

var errUnexpectedShape = errors.New("expected a slot array or an object keyed by date")

func decodeSlotList(raw json.RawMessage) ([]availability.TimeSlot, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	switch raw[0] {
	case '[':
		var slots []availability.TimeSlot
		if err := json.Unmarshal(raw, &slots); err != nil {
			return nil, err
		}
		availability.SortByStart(slots)
		return slots, nil
	case '{':
		var byDate map[string][]availability.TimeSlot
		if err := json.Unmarshal(raw, &byDate); err != nil {
			return nil, err
		}
		var slots []availability.TimeSlot
		for _, day := range byDate {
			slots = append(slots, day...)
		}
		availability.SortByStart(slots)
		return slots, nil
	}
	return nil, errUnexpectedShape
}
