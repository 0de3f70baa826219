package availability

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRecordID_JSON(t *testing.T) {
	tests := []struct {
		in   string
		want RecordID
		out  string
	}{
		{`17`, "17", `17`},
		{`"17"`, "17", `17`},
		{`"a1b2"`, "a1b2", `"a1b2"`},
		{`"007"`, "007", `"007"`},
		{`null`, "", `""`},
	}
	for _, tt := range tests {
		var id RecordID
		if err := json.Unmarshal([]byte(tt.in), &id); err != nil {
			t.Fatalf("unmarshal %s: %v", tt.in, err)
		}
		if id != tt.want {
			t.Errorf("unmarshal %s = %q, want %q", tt.in, id, tt.want)
		}
		b, err := json.Marshal(id)
		if err != nil {
			t.Fatalf("marshal %q: %v", id, err)
		}
		if string(b) != tt.out {
			t.Errorf("marshal %q = %s, want %s", id, b, tt.out)
		}
	}
}

func TestTimeSlot_UnmarshalLegacyKeys(t *testing.T) {
	var s TimeSlot
	data := `{"id":5,"doctor_id":3,"start_time":"2025-06-10T09:00:00+03:00","end_time":"2025-06-10T06:30:00.000Z","booked":true,"booking":null}`
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if s.ID != "5" || s.DoctorID != "3" || !s.Booked {
		t.Errorf("unexpected slot %+v", s)
	}
	if !s.Start.Equal(time.Date(2025, 6, 10, 6, 0, 0, 0, time.UTC)) || s.Start.Location() != time.UTC {
		t.Errorf("start = %s", s.Start)
	}
	if s.Booking != nil {
		t.Errorf("null booking should decode to nil, got %s", s.Booking)
	}
}

func TestTimeSlot_UnmarshalMissingStart(t *testing.T) {
	var s TimeSlot
	if err := json.Unmarshal([]byte(`{"id":1,"end":"2025-06-10T06:30:00Z"}`), &s); err == nil {
		t.Error("expected error for missing start")
	}
}

func TestNewSlot_MarshalStripsBookkeeping(t *testing.T) {
	b, err := json.Marshal(NewSlot{Start: local(t, 9, 0), End: local(t, 9, 30)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"start":"2025-06-10T06:00:00Z","end":"2025-06-10T06:30:00Z"}`
	if string(b) != want {
		t.Errorf("got %s, want %s", b, want)
	}
}

func TestReconciledSlot_TimeSlot(t *testing.T) {
	cand := ReconciledSlot{ID: "2025-06-10T06:00:00Z", Start: local(t, 9, 0), State: StateCandidate}
	if cand.TimeSlot().ID != "" {
		t.Error("candidate leaked its start key as a server id")
	}
	booked := ReconciledSlot{ID: "9", State: StateBooked}
	if ts := booked.TimeSlot(); ts.ID != "9" || !ts.Booked {
		t.Errorf("booked = %+v", ts)
	}
}

func TestStoreError(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := error(&StoreError{Kind: TransportFailure, Op: "list", Err: cause})
	if !errors.Is(err, cause) || !IsTransport(err) || IsValidation(err) {
		t.Errorf("classification wrong for %v", err)
	}
	v := &StoreError{Kind: ValidationFailure, Op: "create", Status: 422, Message: "overlaps"}
	if !IsValidation(v) || !strings.Contains(v.Error(), "status 422") {
		t.Errorf("unexpected %v", v)
	}
}
