package main

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/medconnect/telemed/internal/domain/availability"
	"github.com/medconnect/telemed/internal/platform/auth"
	"github.com/medconnect/telemed/internal/platform/db"
	"github.com/medconnect/telemed/internal/platform/sandbox"
)

var testDate = availability.Date{Year: 2025, Month: time.June, Day: 10}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func lineFor(out, prefix string) string {
	for _, l := range strings.Split(out, "\n") {
		if strings.HasPrefix(l, prefix) {
			return l
		}
	}
	return ""
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		h, m    int
		wantErr bool
	}{
		{"09:00", 9, 0, false},
		{" 23:30 ", 23, 30, false},
		{"9am", 0, 0, true},
		{"25:00", 0, 0, true},
	}
	for _, tt := range tests {
		h, m, err := parseClock(tt.in)
		if (err != nil) != tt.wantErr || h != tt.h || m != tt.m {
			t.Errorf("parseClock(%q) = %d, %d, %v", tt.in, h, m, err)
		}
	}
}

func TestResolveKeys(t *testing.T) {
	grid, err := availability.DefaultGridSpec()
	if err != nil {
		t.Fatal(err)
	}
	starts, _ := grid.Generate(testDate)
	slots := availability.Reconcile(starts, nil, grid.SlotDuration())

	keys, err := resolveKeys(slots, testDate, grid.Location, []string{"09:00", "09:30"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if keys[0] != "2025-06-10T06:00:00Z" || keys[1] != "2025-06-10T06:30:00Z" {
		t.Errorf("unexpected keys %v", keys)
	}
	if _, err := resolveKeys(slots, testDate, grid.Location, []string{"09:15"}); err == nil {
		t.Error("expected off-grid time to fail")
	}
	if _, err := resolveKeys(slots, testDate, grid.Location, []string{"03:00"}); err == nil {
		t.Error("expected time before the grid to fail")
	}
}

func TestGridCmd(t *testing.T) {
	out, err := run(t, "grid", "--date", "2025-06-10")
	if err != nil {
		t.Fatalf("grid: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 36 {
		t.Fatalf("expected 36 lines, got %d", len(lines))
	}
	if lines[0] != "06:00 2025-06-10T03:00:00Z" || lines[35] != "23:30 2025-06-10T20:30:00Z" {
		t.Errorf("unexpected bounds %q .. %q", lines[0], lines[35])
	}

	if _, err := run(t, "grid", "--date", "10.06.2025"); err == nil {
		t.Error("expected bad date to fail")
	}
}

func TestCalendarWorkflow(t *testing.T) {
	grid, _ := availability.DefaultGridSpec()
	srv := httptest.NewServer(sandbox.NewServer(sandbox.ServerConfig{
		Repo:      sandbox.NewMemoryRepository(),
		Location:  grid.Location,
		Logger:    zerolog.Nop(),
		DevUserID: "1",
		DevRole:   auth.RoleDoctor,
	}))
	defer srv.Close()
	t.Setenv("API_BASE_URL", srv.URL)

	out, err := run(t, "calendar", "add", "--date", "2025-06-10", "--at", "09:00,09:30")
	if err != nil {
		t.Fatalf("calendar add: %v", err)
	}
	if l := lineFor(out, "09:00"); !strings.Contains(l, "2025-06-10T06:00:00Z") || !strings.Contains(l, "open") {
		t.Errorf("09:00 not open: %q", l)
	}
	if l := lineFor(out, "10:00"); !strings.Contains(l, "candidate") {
		t.Errorf("10:00 should stay a candidate: %q", l)
	}

	out, err = run(t, "doctor-slots", "--doctor", "1", "--date", "2025-06-10")
	if err != nil {
		t.Fatalf("doctor-slots: %v", err)
	}
	if l := lineFor(out, "morning:"); l != "morning: 09:00(#1) 09:30(#2)" {
		t.Errorf("unexpected morning line %q", l)
	}
	if l := lineFor(out, "evening:"); l != "evening: -" {
		t.Errorf("unexpected evening line %q", l)
	}

	tok, err := auth.Mint([]byte("k"), "", "p1", auth.RolePatient, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	t.Setenv("API_TOKEN", tok)
	out, err = run(t, "book", "--doctor", "1", "--slot", "1", "--notes", "first visit")
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if !strings.Contains(out, "for slot 1: scheduled") {
		t.Errorf("unexpected book output %q", out)
	}

	t.Setenv("API_TOKEN", "")
	out, err = run(t, "calendar", "delete", "--date", "2025-06-10", "--at", "09:00,09:30")
	if err != nil {
		t.Fatalf("calendar delete: %v", err)
	}
	if l := lineFor(out, "09:00"); !strings.Contains(l, "booked") {
		t.Errorf("booked slot must survive delete: %q", l)
	}
	if l := lineFor(out, "09:30"); !strings.Contains(l, "candidate") {
		t.Errorf("09:30 should be removed: %q", l)
	}

	if _, err := run(t, "calendar", "add", "--date", "2025-06-10"); err == nil {
		t.Error("expected add without --at to fail")
	}
}

func TestAppointmentsWorkflow(t *testing.T) {
	grid, _ := availability.DefaultGridSpec()
	repo := sandbox.NewMemoryRepository()
	ctx := context.Background()
	start := testDate.At(9, 0, grid.Location)
	created, err := repo.CreateSlots(ctx, "1", []sandbox.SlotInput{{Start: start, End: start.Add(30 * time.Minute)}})
	if err != nil {
		t.Fatal(err)
	}
	appt, err := repo.Book(ctx, sandbox.BookingRequest{AvailabilityID: created[0].ID, PatientID: "p1", Notes: "first visit"})
	if err != nil {
		t.Fatal(err)
	}
	id := appt.ID.String()

	srv := httptest.NewServer(sandbox.NewServer(sandbox.ServerConfig{
		Repo:      repo,
		Location:  grid.Location,
		Logger:    zerolog.Nop(),
		DevUserID: "p1",
		DevRole:   auth.RolePatient,
	}))
	defer srv.Close()
	t.Setenv("API_BASE_URL", srv.URL)

	out, err := run(t, "appointments", "list")
	if err != nil {
		t.Fatalf("appointments list: %v", err)
	}
	if l := lineFor(out, id); !strings.Contains(l, "2025-06-10 09:00") || !strings.Contains(l, "scheduled") || !strings.Contains(l, "first visit") {
		t.Errorf("unexpected appointment row %q", l)
	}

	if out, err = run(t, "appointments", "notes", id, "--text", "bring lab results"); err != nil {
		t.Fatalf("appointments notes: %v", err)
	}
	if !strings.Contains(out, "notes updated") {
		t.Errorf("unexpected notes output %q", out)
	}

	if out, err = run(t, "appointments", "cancel", id); err != nil {
		t.Fatalf("appointments cancel: %v", err)
	}
	if !strings.Contains(out, id+" cancelled") {
		t.Errorf("unexpected cancel output %q", out)
	}

	out, _ = run(t, "appointments", "list")
	if l := lineFor(out, id); !strings.Contains(l, "cancelled") || !strings.Contains(l, "bring lab results") {
		t.Errorf("unexpected row after cancel %q", l)
	}
	slots, _ := repo.ListByDoctor(ctx, "1", time.Time{}, time.Time{})
	if len(slots) != 1 || slots[0].Booked() {
		t.Errorf("cancelled slot should be free again: %+v", slots)
	}

	if _, err := run(t, "appointments", "cancel", id); !availability.IsValidation(err) {
		t.Errorf("second cancel: expected validation failure, got %v", err)
	}
	if _, err := run(t, "appointments", "cancel"); err == nil {
		t.Error("expected cancel without an id to fail")
	}
}

func TestCalendarShow_BackendDown(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := srv.URL
	srv.Close()
	t.Setenv("API_BASE_URL", url)

	_, err := run(t, "calendar", "show", "--date", "2025-06-10")
	if !availability.IsTransport(err) {
		t.Errorf("expected transport failure, got %v", err)
	}
}

func TestTokenCmd(t *testing.T) {
	out, err := run(t, "token", "--subject", "17", "--role", "doctor", "--ttl", "1h")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	claims, err := auth.Inspect(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if claims.Subject != "17" || claims.Role != auth.RoleDoctor || claims.Issuer != "telemed" {
		t.Errorf("unexpected claims %+v", claims)
	}

	if _, err := run(t, "token", "--role", "doctor"); err == nil {
		t.Error("expected missing subject to fail")
	}
	if _, err := run(t, "token", "--subject", "17", "--role", "nurse"); err == nil {
		t.Error("expected unknown role to fail")
	}
}

func TestPrintMigrationStatus(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	printMigrationStatus(&buf, []db.MigrationStatus{
		{Version: 1, Name: "availability", Applied: true, AppliedAt: &at},
		{Version: 2, Name: "appointments"},
	})
	out := buf.String()
	if !strings.Contains(out, "applied    2025-06-01 12:00:00") {
		t.Errorf("missing applied row:\n%s", out)
	}
	if l := lineFor(out, "2 "); !strings.Contains(l, "pending") {
		t.Errorf("missing pending row:\n%s", out)
	}
}

func TestMigrate_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := run(t, "migrate", "status"); err == nil {
		t.Error("expected error without DATABASE_URL")
	}
}
