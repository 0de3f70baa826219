package availability

import (
	"context"
	"errors"
	"testing"
)

func newTestCalendar(t *testing.T, store *fakeStore) *Calendar {
	t.Helper()
	c, err := NewCalendar(store, testGrid(t), testDate)
	if err != nil {
		t.Fatalf("NewCalendar: %v", err)
	}
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	return c
}

func slotByStart(t *testing.T, slots []ReconciledSlot, hour, minute int) ReconciledSlot {
	t.Helper()
	want := local(t, hour, minute)
	for _, s := range slots {
		if s.Start.Equal(want) {
			return s
		}
	}
	t.Fatalf("no slot at %02d:%02d", hour, minute)
	return ReconciledSlot{}
}

func TestNewCalendar_Validation(t *testing.T) {
	if _, err := NewCalendar(nil, testGrid(t), testDate); err == nil {
		t.Error("expected error for nil store")
	}
	bad := testGrid(t)
	bad.StepMinutes = 0
	if _, err := NewCalendar(newFakeStore(), bad, testDate); !errors.Is(err, ErrInvalidGrid) {
		t.Errorf("expected ErrInvalidGrid, got %v", err)
	}
}

func TestCalendar_AddTwoSlots(t *testing.T) {
	store := newFakeStore()
	c := newTestCalendar(t, store)
	ctx := context.Background()

	if err := c.EnterAdd(); err != nil {
		t.Fatalf("EnterAdd: %v", err)
	}
	for _, k := range []string{keyAt(t, 9, 0), keyAt(t, 9, 30)} {
		if _, err := c.Toggle(k); err != nil {
			t.Fatalf("Toggle(%s): %v", k, err)
		}
	}
	if err := c.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if len(store.created) != 1 {
		t.Fatalf("expected one create call, got %d", len(store.created))
	}
	got := store.created[0]
	want := [][2]string{
		{"2025-06-10T06:00:00Z", "2025-06-10T06:30:00Z"},
		{"2025-06-10T06:30:00Z", "2025-06-10T07:00:00Z"},
	}
	if len(got) != len(want) {
		t.Fatalf("created %d slots, want %d", len(got), len(want))
	}
	for i, w := range want {
		if FormatInstant(got[i].Start) != w[0] || FormatInstant(got[i].End) != w[1] {
			t.Errorf("slot %d = %s-%s, want %s-%s", i,
				FormatInstant(got[i].Start), FormatInstant(got[i].End), w[0], w[1])
		}
	}

	if c.Mode() != ModeNone {
		t.Errorf("expected session closed, mode %s", c.Mode())
	}
	if store.listed != 2 {
		t.Errorf("expected refresh after save, listed %d times", store.listed)
	}
	s := slotByStart(t, c.Slots(), 9, 0)
	if s.State != StateOpen || !s.Selected || s.ID == RecordID(keyAt(t, 9, 0)) {
		t.Errorf("09:00 after save = %+v, want server-backed open slot", s)
	}
}

func TestCalendar_DeleteSendsOnlyDeselected(t *testing.T) {
	store := newFakeStore(
		serverSlot("A", local(t, 9, 0), false),
		serverSlot("B", local(t, 10, 0), false),
	)
	c := newTestCalendar(t, store)

	if err := c.EnterDelete(); err != nil {
		t.Fatalf("EnterDelete: %v", err)
	}
	if changed, err := c.Toggle("B"); err != nil || !changed {
		t.Fatalf("Toggle(B) = %v, %v", changed, err)
	}
	if err := c.Save(context.Background()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if len(store.deleted) != 1 || len(store.deleted[0]) != 1 || store.deleted[0][0] != "B" {
		t.Fatalf("deleted = %v, want [[B]]", store.deleted)
	}
	if len(store.created) != 0 {
		t.Errorf("delete save issued create calls: %v", store.created)
	}
	if s := slotByStart(t, c.Slots(), 10, 0); s.State != StateCandidate {
		t.Errorf("10:00 after delete = %s, want candidate", s.State)
	}
	if s := slotByStart(t, c.Slots(), 9, 0); s.ID != "A" {
		t.Errorf("09:00 after delete = %q, want A", s.ID)
	}
}

func TestCalendar_BookedSlotInDeleteMode(t *testing.T) {
	store := newFakeStore(serverSlot("42", local(t, 14, 0), true))
	c := newTestCalendar(t, store)
	ctx := context.Background()

	if err := c.EnterDelete(); err != nil {
		t.Fatalf("EnterDelete: %v", err)
	}
	changed, err := c.Toggle("42")
	if err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if changed {
		t.Error("booked slot toggled")
	}
	if err := c.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(store.deleted) != 0 {
		t.Errorf("expected no delete call, got %v", store.deleted)
	}
	if s := slotByStart(t, c.Slots(), 14, 0); !s.Booked() || !s.Selected {
		t.Errorf("booked slot after save = %+v", s)
	}
}

func TestCalendar_RoundTrip(t *testing.T) {
	store := newFakeStore()
	c := newTestCalendar(t, store)
	ctx := context.Background()

	picked := []string{keyAt(t, 6, 0), keyAt(t, 12, 30), keyAt(t, 23, 30)}
	c.EnterAdd()
	for _, k := range picked {
		c.Toggle(k)
	}
	if err := c.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}

	for _, s := range c.Slots() {
		want := false
		for _, k := range picked {
			if FormatInstant(s.Start) == k {
				want = true
			}
		}
		if s.IsFromServer() != want {
			t.Errorf("slot %s from server = %v, want %v", FormatInstant(s.Start), s.IsFromServer(), want)
		}
		if s.Booked() {
			t.Errorf("slot %s unexpectedly booked", FormatInstant(s.Start))
		}
	}
}

func TestCalendar_SaveFailureKeepsSession(t *testing.T) {
	store := newFakeStore()
	store.createErr = &StoreError{Kind: TransportFailure, Op: "create", Message: "connection refused"}
	c := newTestCalendar(t, store)

	c.EnterAdd()
	c.Toggle(keyAt(t, 9, 0))
	err := c.Save(context.Background())
	if !IsTransport(err) {
		t.Fatalf("expected transport failure, got %v", err)
	}
	if c.Mode() != ModeAdd {
		t.Fatalf("session closed after failure, mode %s", c.Mode())
	}
	if s := slotByStart(t, c.Slots(), 9, 0); !s.Selected {
		t.Error("selection lost after failed save")
	}

	store.createErr = nil
	if err := c.Save(context.Background()); err != nil {
		t.Fatalf("retry Save: %v", err)
	}
	if len(store.created) != 2 {
		t.Errorf("expected retry to call create again, got %d calls", len(store.created))
	}
}

func TestCalendar_EmptyAddSaveSkipsCreate(t *testing.T) {
	store := newFakeStore(serverSlot("1", local(t, 9, 0), false))
	c := newTestCalendar(t, store)

	c.EnterAdd()
	c.Toggle("1")
	if err := c.Save(context.Background()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(store.created) != 0 {
		t.Errorf("expected no create call, got %v", store.created)
	}
	if c.Mode() != ModeNone {
		t.Errorf("expected session closed, mode %s", c.Mode())
	}
	if store.listed != 2 {
		t.Errorf("expected refresh, listed %d times", store.listed)
	}
}

func TestCalendar_SessionErrors(t *testing.T) {
	c := newTestCalendar(t, newFakeStore())

	if _, err := c.Toggle(keyAt(t, 9, 0)); !errors.Is(err, ErrNoSession) {
		t.Errorf("Toggle without session: %v", err)
	}
	if err := c.Save(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Errorf("Save without session: %v", err)
	}
	if err := c.EnterAdd(); err != nil {
		t.Fatalf("EnterAdd: %v", err)
	}
	if err := c.EnterDelete(); !errors.Is(err, ErrSessionActive) {
		t.Errorf("EnterDelete during add: %v", err)
	}
}

func TestCalendar_CancelDiscardsWithoutStoreCalls(t *testing.T) {
	store := newFakeStore()
	c := newTestCalendar(t, store)

	c.EnterAdd()
	c.Toggle(keyAt(t, 9, 0))
	c.Cancel()

	if c.Mode() != ModeNone {
		t.Errorf("expected ModeNone, got %s", c.Mode())
	}
	if s := slotByStart(t, c.Slots(), 9, 0); s.Selected {
		t.Error("cancelled selection is still visible")
	}
	if len(store.created)+len(store.deleted) != 0 || store.listed != 1 {
		t.Errorf("cancel touched the store")
	}
}

func TestCalendar_SelectDateDiscardsSession(t *testing.T) {
	store := newFakeStore()
	c := newTestCalendar(t, store)

	c.EnterAdd()
	c.Toggle(keyAt(t, 9, 0))
	next := testDate.AddDays(1)
	if err := c.SelectDate(context.Background(), next); err != nil {
		t.Fatalf("SelectDate: %v", err)
	}
	if c.Mode() != ModeNone {
		t.Errorf("session survived date change")
	}
	if c.Date() != next {
		t.Errorf("date = %s, want %s", c.Date(), next)
	}
	slots := c.Slots()
	if len(slots) != 36 {
		t.Fatalf("expected 36 slots, got %d", len(slots))
	}
	if DateOf(slots[0].Start, moscow(t)) != next {
		t.Errorf("first slot on %s, want %s", DateOf(slots[0].Start, moscow(t)), next)
	}
}

func TestCalendar_RefreshFailureKeepsSlots(t *testing.T) {
	store := newFakeStore(serverSlot("1", local(t, 9, 0), false))
	c := newTestCalendar(t, store)

	store.listErr = &StoreError{Kind: TransportFailure, Op: "list", Status: 503}
	if err := c.Refresh(context.Background()); !IsTransport(err) {
		t.Fatalf("expected transport failure, got %v", err)
	}
	if s := slotByStart(t, c.Slots(), 9, 0); s.ID != "1" {
		t.Errorf("slots lost after failed refresh: %+v", s)
	}
}
