package freetimer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/caseroll/go/internal/metrics"
	"github.com/mcdev12/caseroll/go/internal/models"
	"github.com/rs/zerolog/log"
)

const (
	DefaultTickInterval   = time.Second
	DefaultResyncInterval = 30 * time.Second
)

// ErrStopped is returned by Sync once the synchronizer has been stopped.
var ErrStopped = errors.New("free timer stopped")

// Source reports the authoritative free-case state of a user.
type Source interface {
	FreeCaseCheck(ctx context.Context, userID int64) (models.FreeTimerState, error)
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithClock replaces the real clock.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Synchronizer) { s.clock = clock }
}

// WithIntervals overrides the local tick and the server resync periods.
func WithIntervals(tick, resync time.Duration) Option {
	return func(s *Synchronizer) {
		if tick > 0 {
			s.tick = tick
		}
		if resync > 0 {
			s.resync = resync
		}
	}
}

// Synchronizer keeps a local countdown of the free case in line with the
// server. Sync overwrites the local state; between syncs a local ticker
// counts down and flips to available at zero. The local value is for display
// only.
type Synchronizer struct {
	source Source
	userID int64
	clock  clockwork.Clock
	tick   time.Duration
	resync time.Duration

	mu        sync.Mutex
	state     models.FreeTimerState
	ticker    clockwork.Ticker
	tickStop  chan struct{}
	tickGen   uint64
	stopped   bool
	listeners []func(models.FreeTimerState)
}

// New creates a synchronizer for userID. Until the first successful Sync the
// state is unavailable with zero seconds remaining.
func New(source Source, userID int64, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		source: source,
		userID: userID,
		clock:  clockwork.NewRealClock(),
		tick:   DefaultTickInterval,
		resync: DefaultResyncInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnChange registers fn to receive every new state.
func (s *Synchronizer) OnChange(fn func(models.FreeTimerState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// State returns the current local state.
func (s *Synchronizer) State() models.FreeTimerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Sync fetches the server state and overwrites the local one. On failure the
// local state is left untouched and the error is returned for logging only.
func (s *Synchronizer) Sync(ctx context.Context) error {
	if s.isStopped() {
		return ErrStopped
	}
	st, err := s.source.FreeCaseCheck(ctx, s.userID)
	if err != nil {
		metrics.RecordTimerSync(false)
		log.Debug().Err(err).Int64("user_id", s.userID).Msg("free timer sync failed, keeping last state")
		return err
	}
	metrics.RecordTimerSync(true)

	if st.Available || st.RemainingSeconds < 0 {
		st.RemainingSeconds = 0
	}

	s.mu.Lock()
	// Stop may have run while the request was in flight.
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	s.state = st
	if !st.Available && st.RemainingSeconds > 0 {
		s.startTickerLocked()
	} else {
		s.stopTickerLocked()
	}
	listeners := s.listeners
	s.mu.Unlock()

	log.Debug().
		Int64("user_id", s.userID).
		Bool("available", st.Available).
		Int("remaining_seconds", st.RemainingSeconds).
		Msg("free timer synced")
	notify(listeners, st)
	return nil
}

// Tick applies one local second.
func (s *Synchronizer) Tick() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	st, listeners := s.tickLocked()
	s.mu.Unlock()
	notify(listeners, st)
}

func (s *Synchronizer) tickLocked() (models.FreeTimerState, []func(models.FreeTimerState)) {
	if s.state.RemainingSeconds > 0 {
		s.state.RemainingSeconds--
	}
	if s.state.RemainingSeconds <= 0 {
		s.stopTickerLocked()
		s.state.Available = true
	}
	return s.state, s.listeners
}

// TickerRunning reports whether the local countdown is scheduled.
func (s *Synchronizer) TickerRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticker != nil
}

// startTickerLocked is a no-op while a ticker is already running or after
// Stop.
func (s *Synchronizer) startTickerLocked() {
	if s.ticker != nil || s.stopped {
		return
	}
	s.tickGen++
	s.ticker = s.clock.NewTicker(s.tick)
	s.tickStop = make(chan struct{})
	go s.runTicker(s.ticker, s.tickStop, s.tickGen)
}

func (s *Synchronizer) stopTickerLocked() {
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.tickStop)
	s.ticker = nil
	s.tickStop = nil
}

func (s *Synchronizer) runTicker(ticker clockwork.Ticker, stop <-chan struct{}, gen uint64) {
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			s.mu.Lock()
			// A tick already buffered when the ticker was replaced is stale.
			if s.tickGen != gen || s.ticker == nil {
				s.mu.Unlock()
				return
			}
			st, listeners := s.tickLocked()
			s.mu.Unlock()
			notify(listeners, st)
		}
	}
}

// ResyncLoop calls Sync every resync interval until ctx is done. Failures are
// swallowed.
func (s *Synchronizer) ResyncLoop(ctx context.Context) {
	ticker := s.clock.NewTicker(s.resync)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			_ = s.Sync(ctx)
		}
	}
}

// Stop halts the local countdown for good. The state is kept, later syncs
// and ticks are ignored.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.stopTickerLocked()
}

func (s *Synchronizer) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func notify(listeners []func(models.FreeTimerState), st models.FreeTimerState) {
	for _, fn := range listeners {
		fn(st)
	}
}
