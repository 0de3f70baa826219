package availability

import (
	"context"
	"strconv"
	"sync"
	"time"
	_ "time/tzdata"
)

// fakeStore is an in-memory Store that records every call.
type fakeStore struct {
	mu      sync.Mutex
	slots   []TimeSlot
	nextID  int
	created [][]NewSlot
	deleted [][]RecordID
	listed  int

	createErr error
	deleteErr error
	listErr   error
}

func newFakeStore(seed ...TimeSlot) *fakeStore {
	return &fakeStore{slots: append([]TimeSlot(nil), seed...), nextID: 100}
}

func (f *fakeStore) ListMine(_ context.Context) ([]TimeSlot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listed++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]TimeSlot(nil), f.slots...), nil
}

func (f *fakeStore) ListForDoctor(_ context.Context, _ string, date Date) ([]TimeSlot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []TimeSlot
	for _, s := range f.slots {
		if DateOf(s.Start, time.UTC) == date {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) Create(_ context.Context, slots []NewSlot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, append([]NewSlot(nil), slots...))
	if f.createErr != nil {
		return f.createErr
	}
	for _, s := range slots {
		f.nextID++
		f.slots = append(f.slots, TimeSlot{
			ID:    RecordID(strconv.Itoa(f.nextID)),
			Start: s.Start,
			End:   s.End,
		})
	}
	return nil
}

func (f *fakeStore) Delete(_ context.Context, ids []RecordID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, append([]RecordID(nil), ids...))
	if f.deleteErr != nil {
		return f.deleteErr
	}
	drop := make(map[RecordID]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := f.slots[:0]
	for _, s := range f.slots {
		if !drop[s.ID] {
			kept = append(kept, s)
		}
	}
	f.slots = kept
	return nil
}

func moscow(t interface{ Fatalf(string, ...any) }) *time.Location {
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		t.Fatalf("load Europe/Moscow: %v", err)
	}
	return loc
}

func testGrid(t interface{ Fatalf(string, ...any) }) GridSpec {
	return GridSpec{Location: moscow(t), StartHour: 6, EndHour: 24, StepMinutes: 30}
}

var testDate = Date{Year: 2025, Month: time.June, Day: 10}

// local returns hour:minute on testDate in Moscow, as UTC.
func local(t interface{ Fatalf(string, ...any) }, hour, minute int) time.Time {
	return testDate.At(hour, minute, moscow(t)).UTC()
}

func serverSlot(id string, start time.Time, booked bool) TimeSlot {
	return TimeSlot{ID: RecordID(id), Start: start, End: start.Add(30 * time.Minute), Booked: booked}
}

func testCtx() context.Context { return context.Background() }
