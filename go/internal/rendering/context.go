package rendering

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/caseroll/go/internal/events"
	"github.com/mcdev12/caseroll/go/internal/models"
	"github.com/mcdev12/caseroll/go/internal/roulette"
	"github.com/mcdev12/caseroll/go/internal/tiles"
	"github.com/rs/zerolog/log"
)

const (
	// ResultNodeID is the node the won item is drawn into on the result screen.
	ResultNodeID = "result_tgs"

	DefaultGridTileSize   = 80
	DefaultResultTileSize = 150

	publishTimeout = 2 * time.Second
)

// Config sizes the tiles and strips of one rendering context.
type Config struct {
	Roulette        roulette.Config
	RootMargin      float64
	TileConcurrency int
	GridTileSize    int
	ResultTileSize  int
}

// DefaultConfig returns the stock layout.
func DefaultConfig() Config {
	return Config{
		Roulette:        roulette.DefaultConfig(),
		RootMargin:      tiles.DefaultRootMargin,
		TileConcurrency: tiles.DefaultRenderConcurrency,
		GridTileSize:    DefaultGridTileSize,
		ResultTileSize:  DefaultResultTileSize,
	}
}

// PreviewNodeID names the preview grid tile of item i of a case.
func PreviewNodeID(caseID int64, i int) string {
	return fmt.Sprintf("prev_%d_%d", caseID, i)
}

// SpinRequest is a confirmed open result to present.
type SpinRequest struct {
	CaseID int64
	UserID int64
	Result models.OpenResult
	Items  []models.CaseItem
}

// Context owns everything one client screen draws: the tile table, its
// viewport observer and the roulette engine. The asset resolver is shared
// across contexts. Create one per client at connect time and Close it on
// disconnect.
type Context struct {
	cfg       Config
	sessionID string
	manager   *tiles.Manager
	engine    *roulette.Engine
	publisher events.Publisher
	spinning  atomic.Bool

	mu           sync.Mutex
	screen       context.Context
	screenCancel context.CancelFunc
	runCancel    context.CancelFunc
	closed       bool
}

// Option configures a Context.
type Option func(*options)

type options struct {
	sessionID string
	publisher events.Publisher
	engine    []roulette.Option
}

// WithSessionID tags logs and events with the owning session.
func WithSessionID(id string) Option {
	return func(o *options) { o.sessionID = id }
}

// WithPublisher sends spin lifecycle events to p.
func WithPublisher(p events.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithEngineOptions passes options through to the roulette engine.
func WithEngineOptions(opts ...roulette.Option) Option {
	return func(o *options) { o.engine = append(o.engine, opts...) }
}

// New creates a context drawing through renderer and resolving assets with
// resolver, and starts its visibility loop.
func New(cfg Config, resolver tiles.Resolver, renderer tiles.Renderer, opts ...Option) *Context {
	o := options{sessionID: uuid.NewString(), publisher: events.LogPublisher{}}
	for _, opt := range opts {
		opt(&o)
	}
	if cfg.GridTileSize <= 0 {
		cfg.GridTileSize = DefaultGridTileSize
	}
	if cfg.ResultTileSize <= 0 {
		cfg.ResultTileSize = DefaultResultTileSize
	}

	manager := tiles.NewManager(resolver, renderer, tiles.NewObserver(cfg.RootMargin, 0))
	manager.SetConcurrency(cfg.TileConcurrency)

	c := &Context{
		cfg:       cfg,
		sessionID: o.sessionID,
		manager:   manager,
		engine:    roulette.NewEngine(cfg.Roulette, manager, o.engine...),
		publisher: o.publisher,
	}
	c.screen, c.screenCancel = context.WithCancel(context.Background())

	runCtx, cancel := context.WithCancel(context.Background())
	c.runCancel = cancel
	go manager.Run(runCtx)

	return c
}

// Manager exposes the tile table, e.g. to feed viewport geometry.
func (c *Context) Manager() *tiles.Manager { return c.manager }

// Observer is the shared viewport observer.
func (c *Context) Observer() *tiles.Observer { return c.manager.Observer() }

// Engine is the roulette engine of this context.
func (c *Context) Engine() *roulette.Engine { return c.engine }

// SessionID identifies the owner in logs and events.
func (c *Context) SessionID() string { return c.sessionID }

// screenContext lives until the next teardown.
func (c *Context) screenContext() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.screen
}

// RenderTile draws key into nodeID. Failures leave the placeholder in place
// and are returned for logging.
func (c *Context) RenderTile(ctx context.Context, nodeID string, key, size int) error {
	return c.manager.Render(ctx, nodeID, key, size)
}

// RenderTiles draws tiles in the background of the current screen. The
// returned channel yields the number of degraded tiles once all are done.
func (c *Context) RenderTiles(ts []tiles.Tile) <-chan int {
	screen := c.screenContext()
	done := make(chan int, 1)
	go func() {
		done <- c.manager.RenderAll(screen, ts)
	}()
	return done
}

// StartPreview shows the opening screen of a case: a grid tile per item and
// the endless preview strip.
func (c *Context) StartPreview(ctx context.Context, caseID int64, items []models.CaseItem, track roulette.PreviewTrack) error {
	grid := make([]tiles.Tile, len(items))
	for i, item := range items {
		grid[i] = tiles.Tile{NodeID: PreviewNodeID(caseID, i), Key: item.Gift.AssetKey(), Size: c.cfg.GridTileSize}
	}
	if err := c.engine.StartPreview(c.screenContext(), items, track); err != nil {
		return err
	}
	c.RenderTiles(grid)

	log.Debug().
		Str("session_id", c.sessionID).
		Int64("case_id", caseID).
		Int("items", len(items)).
		Msg("preview started")
	return nil
}

// StopPreview stops the preview loop.
func (c *Context) StopPreview() {
	c.engine.StopPreview()
}

// RunSpin leaves the current screen, runs the spin for req and, once it has
// settled, tears the spin strip down and draws the won item into
// ResultNodeID before handing over to presenter. Once started the spin runs to
// the end even if the screen is left; only ctx cancels it.
func (c *Context) RunSpin(ctx context.Context, req SpinRequest, track roulette.Track, presenter roulette.Presenter) (roulette.SpinResult, error) {
	if !c.spinning.CompareAndSwap(false, true) {
		return roulette.SpinResult{}, roulette.ErrSpinInProgress
	}
	defer c.spinning.Store(false)
	c.TeardownAll()

	spin := roulette.Spin{ID: uuid.New(), Declared: req.Result.Gift, Items: req.Items}
	c.publish(ctx, events.EventTypeSpinStarted, spin.ID, events.SpinPayload{
		CaseID:     req.CaseID,
		UserID:     req.UserID,
		GiftID:     req.Result.Gift.ID,
		TargetSlot: c.engine.Config().TargetSlot,
	})

	reveal := &revealer{c: c, ctx: ctx, next: presenter}
	res, err := c.engine.RunSpin(ctx, spin, track, reveal)

	payload := events.SpinPayload{
		CaseID:     req.CaseID,
		UserID:     req.UserID,
		GiftID:     req.Result.Gift.ID,
		Pattern:    res.Pattern.Name,
		TargetSlot: res.TargetSlot,
		Offset:     res.Offset,
		Mismatch:   res.Mismatch,
	}
	if err != nil {
		payload.Error = err.Error()
		c.publish(ctx, events.EventTypeSpinFailed, spin.ID, payload)
		return res, err
	}
	c.publish(ctx, events.EventTypeSpinSettled, spin.ID, payload)
	return res, nil
}

// revealer switches to the result screen before the caller's presenter runs.
type revealer struct {
	c    *Context
	ctx  context.Context
	next roulette.Presenter
}

func (r *revealer) Reveal(_ context.Context, res roulette.SpinResult) error {
	r.c.TeardownAll()

	if err := r.c.RenderTile(r.ctx, ResultNodeID, res.Item.Gift.AssetKey(), r.c.cfg.ResultTileSize); err != nil {
		log.Warn().
			Err(err).
			Str("session_id", r.c.sessionID).
			Int64("gift_id", res.Item.Gift.ID).
			Msg("result tile degraded to placeholder")
	}
	if r.next == nil {
		return nil
	}
	return r.next.Reveal(r.ctx, res)
}

// TeardownAll leaves the current screen: the preview stops, in-flight tile
// renders are dropped and every live tile is destroyed. It returns how many
// tiles were live.
func (c *Context) TeardownAll() int {
	c.engine.StopPreview()

	c.mu.Lock()
	c.screenCancel()
	c.screen, c.screenCancel = context.WithCancel(context.Background())
	c.mu.Unlock()

	n := c.manager.DestroyAll()
	c.manager.Observer().PruneBounds()
	c.engine.Reset()

	log.Debug().
		Str("session_id", c.sessionID).
		Int("destroyed", n).
		Int("observed", c.manager.Observer().Tracked()).
		Msg("screen torn down")
	return n
}

// Reset tears down the screen and forgets viewport and node geometry.
func (c *Context) Reset() {
	c.TeardownAll()
	c.manager.Observer().Reset()
}

// Close releases the context. It is safe to call more than once.
func (c *Context) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.Reset()
	c.mu.Lock()
	c.screenCancel()
	c.mu.Unlock()
	c.runCancel()
}

func (c *Context) publish(ctx context.Context, eventType string, spinID uuid.UUID, payload events.SpinPayload) {
	ev, err := events.NewSpinEvent(eventType, spinID, c.sessionID, payload)
	if err != nil {
		log.Warn().Err(err).Str("event_type", eventType).Msg("failed to build spin event")
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := c.publisher.Publish(pubCtx, ev); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn().
			Err(err).
			Str("event_type", eventType).
			Str("spin_id", spinID.String()).
			Msg("failed to publish spin event")
	}
}
