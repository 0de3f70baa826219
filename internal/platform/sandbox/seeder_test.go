package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/medconnect/telemed/internal/domain/availability"
)

func seedGrid(t *testing.T) availability.GridSpec {
	t.Helper()
	grid, err := availability.DefaultGridSpec()
	if err != nil {
		t.Fatalf("grid: %v", err)
	}
	return grid
}

func TestSeed_Deterministic(t *testing.T) {
	grid := seedGrid(t)
	start := availability.Date{Year: 2025, Month: time.June, Day: 10}
	cfg := DefaultSeedConfig()

	snapshot := func() ([]Slot, *SeedResult) {
		repo := NewMemoryRepository()
		res, err := Seed(context.Background(), repo, grid, start, cfg)
		if err != nil {
			t.Fatalf("Seed: %v", err)
		}
		var all []Slot
		for _, d := range res.Doctors {
			slots, _ := repo.ListByDoctor(context.Background(), d, time.Time{}, time.Time{})
			all = append(all, slots...)
		}
		return all, res
	}

	a, resA := snapshot()
	b, resB := snapshot()
	if resA.Slots != resB.Slots || resA.Booked != resB.Booked {
		t.Fatalf("results differ: %+v vs %+v", resA, resB)
	}
	if resA.Slots == 0 || resA.Booked == 0 || resA.Booked > resA.Slots {
		t.Fatalf("unexpected seed shape %+v", resA)
	}
	if len(a) != len(b) {
		t.Fatalf("slot counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].DoctorID != b[i].DoctorID || !a[i].Start.Equal(b[i].Start) || a[i].Booked() != b[i].Booked() {
			t.Fatalf("slot %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestSeed_SlotsLieOnGrid(t *testing.T) {
	grid := seedGrid(t)
	start := availability.Date{Year: 2025, Month: time.June, Day: 10}
	repo := NewMemoryRepository()
	cfg := SeedConfig{Doctors: 1, Days: 1, FillRatio: 1, Seed: 7}

	res, err := Seed(context.Background(), repo, grid, start, cfg)
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if res.Slots != 36 || res.Booked != 0 {
		t.Errorf("expected a full unbooked day, got %+v", res)
	}
	starts, _ := grid.Generate(start)
	slots, _ := repo.ListByDoctor(context.Background(), "1", time.Time{}, time.Time{})
	for i, s := range slots {
		if !s.Start.Equal(starts[i]) || s.End.Sub(s.Start) != 30*time.Minute {
			t.Errorf("slot %d off grid: %v-%v", i, s.Start, s.End)
		}
	}
}

func TestSeed_InvalidConfig(t *testing.T) {
	_, err := Seed(context.Background(), NewMemoryRepository(), seedGrid(t), availability.Date{Year: 2025, Month: 1, Day: 1}, SeedConfig{})
	if err == nil {
		t.Error("expected error for empty config")
	}
}
