package gateway

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/caseroll/go/internal/asset"
	"github.com/mcdev12/caseroll/go/internal/events"
	"github.com/mcdev12/caseroll/go/internal/models"
	"github.com/mcdev12/caseroll/go/internal/rendering"
	"github.com/mcdev12/caseroll/go/internal/roulette"
)

// recordingSender keeps every command and optionally reacts to it.
type recordingSender struct {
	mu     sync.Mutex
	cmds   []Command
	refuse bool
	onSend func(Command)
}

func (r *recordingSender) Send(cmd Command) bool {
	r.mu.Lock()
	if r.refuse {
		r.mu.Unlock()
		return false
	}
	r.cmds = append(r.cmds, cmd)
	hook := r.onSend
	r.mu.Unlock()

	if hook != nil {
		hook(cmd)
	}
	return true
}

func (r *recordingSender) ofType(t CommandType) []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Command
	for _, c := range r.cmds {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out
}

func (r *recordingSender) count(t CommandType) int {
	return len(r.ofType(t))
}

type docResolver struct {
	missing map[int]bool
}

func (d *docResolver) Resolve(_ context.Context, key int) (*asset.Document, error) {
	if d.missing[key] {
		return nil, &asset.FetchError{Key: key, Status: 404, Err: fmt.Errorf("not found")}
	}
	return &asset.Document{Key: key, Version: "5.5.2", Raw: []byte(fmt.Sprintf(`{"v":"5.5.2","nm":"gift_%d"}`, key))}, nil
}

type fakeCases struct {
	mu        sync.Mutex
	items     []models.CaseItem
	itemsErr  error
	result    models.OpenResult
	openErr   error
	openGate  chan struct{}
	timer     models.FreeTimerState
	timerErr  error
	opens     int
	timerHits atomic.Int32
}

func (f *fakeCases) CaseItems(_ context.Context, _ int64) ([]models.CaseItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items, f.itemsErr
}

func (f *fakeCases) OpenCase(ctx context.Context, _, _ int64) (models.OpenResult, error) {
	f.mu.Lock()
	f.opens++
	gate := f.openGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return models.OpenResult{}, ctx.Err()
		}
	}
	return f.result, f.openErr
}

func (f *fakeCases) FreeCaseCheck(_ context.Context, _ int64) (models.FreeTimerState, error) {
	f.timerHits.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.timer, f.timerErr
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, events.Event) error { return nil }
func (nopPublisher) Close() error                                { return nil }

func caseItems(n int) []models.CaseItem {
	items := make([]models.CaseItem, n)
	for i := range items {
		items[i] = models.CaseItem{
			ID:         int64(i + 1),
			DropChance: 100 / float64(n),
			Gift:       models.Gift{ID: int64(40 + i), Name: fmt.Sprintf("gift %d", i), Rarity: models.RarityRare},
		}
	}
	return items
}

// quickConfig shrinks every spin timing so a full spin runs on the real
// clock in a few milliseconds.
func quickConfig() rendering.Config {
	cfg := rendering.DefaultConfig()
	cfg.Roulette.FrameInterval = 5 * time.Millisecond
	cfg.Roulette.LayoutDelay = time.Millisecond
	cfg.Roulette.HighlightPause = time.Millisecond
	cfg.Roulette.RevealPause = 2 * time.Millisecond
	cfg.Roulette.Patterns = []roulette.Pattern{{
		Name:     "quick",
		Easing:   roulette.CubicBezier{X1: 0.25, Y1: 0.1, X2: 0.25, Y2: 1},
		Duration: 10 * time.Millisecond,
	}}
	return cfg
}

func newTestSession(t *testing.T, cases *fakeCases, userID int64, send *recordingSender) *Session {
	t.Helper()
	cfg := SessionConfig{
		Rendering:      quickConfig(),
		Resolver:       &docResolver{},
		Cases:          cases,
		Publisher:      nopPublisher{},
		Clock:          clockwork.NewRealClock(),
		MeasureTimeout: time.Second,
	}
	s := NewSession(cfg, "test-session", userID, send)
	t.Cleanup(s.Close)
	return s
}

// answerMeasures makes the sender reply to every measure request through
// the session, the way the shim does.
func answerMeasures(send *recordingSender, s *Session) {
	send.mu.Lock()
	defer send.mu.Unlock()
	send.onSend = func(cmd Command) {
		if cmd.Type != CommandMeasure {
			return
		}
		reply := fmt.Sprintf(`{"type":"geometry","request_id":%q,"data":{"geometry":{"container_left":20,"container_width":400,"slot_left":4820,"slot_width":90}}}`, cmd.RequestID)
		go func() { _ = s.Handle([]byte(reply)) }()
	}
}
