package availability

import "context"

// Store is the backend that owns availability records. Implementations return
// *StoreError for every failure.
type Store interface {
	// ListMine returns the calling doctor's slots across all dates.
	ListMine(ctx context.Context) ([]TimeSlot, error)
	// ListForDoctor returns one doctor's slots for a calendar date.
	ListForDoctor(ctx context.Context, doctorID string, date Date) ([]TimeSlot, error)
	// Create persists new slots; the server assigns their ids.
	Create(ctx context.Context, slots []NewSlot) error
	// Delete removes slots by id.
	Delete(ctx context.Context, ids []RecordID) error
}
