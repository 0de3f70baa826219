package availability

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Calendar is the doctor-facing controller for one selected day. It keeps the
// reconciled slots for that day and at most one open EditSession.
//
// Store calls run without holding the lock so readers are never blocked by
// the network; a second Save while one is pending is rejected.
type Calendar struct {
	mu      sync.Mutex
	store   Store
	grid    GridSpec
	logger  zerolog.Logger
	date    Date
	slots   []ReconciledSlot
	session *EditSession
	saving  bool

	// savingSession is the session whose save is in flight.
	savingSession *EditSession
}

// CalendarOption configures a Calendar.
type CalendarOption func(*Calendar)

// WithLogger sets the logger used for store round trips.
func WithLogger(l zerolog.Logger) CalendarOption {
	return func(c *Calendar) { c.logger = l }
}

// NewCalendar builds a calendar on date. The slots stay empty until Refresh.
func NewCalendar(store Store, grid GridSpec, date Date, opts ...CalendarOption) (*Calendar, error) {
	if store == nil {
		return nil, fmt.Errorf("availability store is required")
	}
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	c := &Calendar{
		store:  store,
		grid:   grid,
		logger: zerolog.Nop(),
		date:   date,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Calendar) Date() Date {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.date
}

func (c *Calendar) Grid() GridSpec { return c.grid }

func (c *Calendar) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ModeNone
	}
	return c.session.Mode()
}

// Slots returns what the doctor should see: the working set while a session
// is open, otherwise the last reconciled day.
func (c *Calendar) Slots() []ReconciledSlot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return c.session.Slots()
	}
	return cloneSlots(c.slots)
}

// Refresh refetches the doctor's slots and rebuilds the selected day. A
// result that arrives after the date has changed is discarded.
func (c *Calendar) Refresh(ctx context.Context) error {
	c.mu.Lock()
	date := c.date
	c.mu.Unlock()

	grid, err := c.grid.Generate(date)
	if err != nil {
		return err
	}
	serverSlots, err := c.store.ListMine(ctx)
	if err != nil {
		c.logger.Error().Err(err).Str("date", date.String()).Msg("list availability failed")
		return err
	}
	reconciled := Reconcile(grid, serverSlots, c.grid.SlotDuration())

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.date != date {
		return nil
	}
	c.slots = reconciled
	c.logger.Debug().Str("date", date.String()).Int("count", len(serverSlots)).Msg("calendar refreshed")
	return nil
}

// SelectDate moves the calendar to another day. Any open session is
// discarded because its slot identities belong to the old day.
func (c *Calendar) SelectDate(ctx context.Context, date Date) error {
	c.mu.Lock()
	if c.session != nil {
		c.logger.Info().Str("mode", c.session.Mode().String()).Msg("edit session discarded by date change")
	}
	c.session = nil
	c.date = date
	c.slots = nil
	c.mu.Unlock()
	return c.Refresh(ctx)
}

func (c *Calendar) EnterAdd() error { return c.enter(ModeAdd) }

func (c *Calendar) EnterDelete() error { return c.enter(ModeDelete) }

func (c *Calendar) enter(mode Mode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return ErrSessionActive
	}
	s, err := NewEditSession(mode, c.slots)
	if err != nil {
		return err
	}
	c.session = s
	return nil
}

// Toggle flips one slot under the open session's rule. The working set is
// frozen while its save is in flight.
func (c *Calendar) Toggle(key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return false, ErrNoSession
	}
	if c.saving && c.session == c.savingSession {
		return false, ErrSaveInProgress
	}
	return c.session.Toggle(key)
}

// Cancel discards the open session without touching the store.
func (c *Calendar) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = nil
}

// Save commits the open session. On a store failure the session stays open
// and unchanged so the doctor can retry. On success the session closes and the
// day is rebuilt from the store.
func (c *Calendar) Save(ctx context.Context) error {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return ErrNoSession
	}
	if c.saving {
		c.mu.Unlock()
		return ErrSaveInProgress
	}
	sess := c.session
	additions := sess.Additions()
	removals := sess.Removals()
	c.saving = true
	c.savingSession = sess
	c.mu.Unlock()

	var err error
	switch sess.Mode() {
	case ModeAdd:
		if len(additions) > 0 {
			err = c.store.Create(ctx, additions)
		}
	case ModeDelete:
		if len(removals) > 0 {
			err = c.store.Delete(ctx, removals)
		}
	}

	c.mu.Lock()
	c.saving = false
	c.savingSession = nil
	if err != nil {
		c.mu.Unlock()
		c.logger.Error().Err(err).Str("mode", sess.Mode().String()).Msg("save availability failed")
		return err
	}
	if c.session == sess {
		c.session = nil
	}
	c.mu.Unlock()

	c.logger.Info().
		Str("mode", sess.Mode().String()).
		Int("created", len(additions)).
		Int("deleted", len(removals)).
		Msg("availability saved")

	if err := c.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh after save: %w", err)
	}
	return nil
}
