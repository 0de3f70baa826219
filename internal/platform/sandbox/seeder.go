package sandbox

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"

	"github.com/medconnect/telemed/internal/domain/availability"
)

// SeedConfig controls the shape of a generated demo calendar.
type SeedConfig struct {
	Doctors     int     `json:"doctors"`
	Days        int     `json:"days"`
	FillRatio   float64 `json:"fill_ratio"`
	BookedRatio float64 `json:"booked_ratio"`
	Seed        int64   `json:"seed"`
}

func DefaultSeedConfig() SeedConfig {
	return SeedConfig{Doctors: 3, Days: 7, FillRatio: 0.3, BookedRatio: 0.2, Seed: 1}
}

// SeedResult summarizes a seed run.
type SeedResult struct {
	Doctors []string `json:"doctors"`
	Slots   int      `json:"slots"`
	Booked  int      `json:"booked"`
}

// Seed opens availability for doctors "1".."N" on grid days starting at
// start, and books a share of it for synthetic patients. The same config
// and start always produce the same calendar.
func Seed(ctx context.Context, repo Repository, grid availability.GridSpec, start availability.Date, cfg SeedConfig) (*SeedResult, error) {
	if cfg.Doctors <= 0 || cfg.Days <= 0 {
		return nil, fmt.Errorf("doctors and days must be positive")
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	res := &SeedResult{}

	for d := 1; d <= cfg.Doctors; d++ {
		doctorID := strconv.Itoa(d)
		res.Doctors = append(res.Doctors, doctorID)

		var inputs []SlotInput
		for day := 0; day < cfg.Days; day++ {
			starts, err := grid.Generate(start.AddDays(day))
			if err != nil {
				return nil, err
			}
			for _, s := range starts {
				if rng.Float64() < cfg.FillRatio {
					inputs = append(inputs, SlotInput{Start: s, End: s.Add(grid.SlotDuration())})
				}
			}
		}
		if len(inputs) == 0 {
			continue
		}
		created, err := repo.CreateSlots(ctx, doctorID, inputs)
		if err != nil {
			return nil, fmt.Errorf("seed doctor %s: %w", doctorID, err)
		}
		res.Slots += len(created)

		for _, s := range created {
			if rng.Float64() >= cfg.BookedRatio {
				continue
			}
			_, err := repo.Book(ctx, BookingRequest{
				AvailabilityID: s.ID,
				DoctorID:       doctorID,
				PatientID:      fmt.Sprintf("patient-%d", rng.Intn(50)+1),
				Notes:          "seeded",
			})
			if err != nil {
				return nil, fmt.Errorf("seed booking %d: %w", s.ID, err)
			}
			res.Booked++
		}
	}
	return res, nil
}
