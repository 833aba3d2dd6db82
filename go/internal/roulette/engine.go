package roulette

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/caseroll/go/internal/metrics"
	"github.com/mcdev12/caseroll/go/internal/models"
	"github.com/mcdev12/caseroll/go/internal/tiles"
	"github.com/rs/zerolog/log"
)

// State is the phase of the current presentation.
type State int

const (
	StateIdle State = iota
	StateSpinning
	StateDecelerating
	StateHighlighting
	StateRevealed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSpinning:
		return "spinning"
	case StateDecelerating:
		return "decelerating"
	case StateHighlighting:
		return "highlighting"
	case StateRevealed:
		return "revealed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// TileRenderer renders strip slots. tiles.Manager satisfies it.
type TileRenderer interface {
	RenderAll(ctx context.Context, tiles []tiles.Tile) int
}

// Surface lays out the slot containers of a strip.
type Surface interface {
	Build(ctx context.Context, strip Strip) error
}

// PreviewTrack is the surface of the endless preview strip.
type PreviewTrack interface {
	Surface
	SetOffset(offset float64)
}

// Track is the surface of the one-shot spin strip.
type Track interface {
	Surface
	// Measure returns the live geometry of slot and its container.
	Measure(ctx context.Context, slot int) (Geometry, error)
	// Translate starts a single transition to offset.
	Translate(ctx context.Context, offset float64, duration time.Duration, easing CubicBezier) error
	Highlight(ctx context.Context, slot int) error
}

// Presenter shows the result screen once the spin has settled.
type Presenter interface {
	Reveal(ctx context.Context, res SpinResult) error
}

// Spin is a request to present a confirmed result. A nil ID is generated.
type Spin struct {
	ID       uuid.UUID
	Declared models.Gift
	Items    []models.CaseItem
}

// SpinResult describes one settled spin. Item is always the item at
// TargetSlot.
type SpinResult struct {
	ID         uuid.UUID
	Item       models.CaseItem
	Pattern    Pattern
	TargetSlot int
	Offset     float64
	Mismatch   bool
}

// AutoTargetSlot places the target slot at four fifths of the spin strip.
const AutoTargetSlot = -1

// Config holds the strip dimensions and spin timings. TargetSlot 0 is a valid
// slot; use AutoTargetSlot to derive it from SpinSlots.
type Config struct {
	PreviewSlots     int
	PreviewSlotWidth float64
	PreviewTileSize  int
	PreviewSpeed     float64
	FrameInterval    time.Duration

	SpinSlots      int
	TargetSlot     int
	SpinTileSize   int
	LayoutDelay    time.Duration
	HighlightPause time.Duration
	RevealPause    time.Duration

	Patterns []Pattern
}

// DefaultConfig returns the stock strip layout and timings.
func DefaultConfig() Config {
	return Config{
		PreviewSlots:     40,
		PreviewSlotWidth: 126,
		PreviewTileSize:  108,
		PreviewSpeed:     0.35,
		FrameInterval:    16 * time.Millisecond,
		SpinSlots:        60,
		TargetSlot:       48,
		SpinTileSize:     90,
		LayoutDelay:      300 * time.Millisecond,
		HighlightPause:   400 * time.Millisecond,
		RevealPause:      1200 * time.Millisecond,
		Patterns:         DefaultPatterns(),
	}
}

// Validate reports settings the engine cannot run with once defaults are
// applied.
func (c Config) Validate() error {
	d := c.withDefaults()
	if d.TargetSlot >= d.SpinSlots {
		return fmt.Errorf("target slot %d outside strip of %d", d.TargetSlot, d.SpinSlots)
	}
	if c.RevealPause > 0 && c.RevealPause < d.HighlightPause {
		return fmt.Errorf("reveal pause %s is shorter than highlight pause %s", c.RevealPause, d.HighlightPause)
	}
	return nil
}

// withDefaults fills unset fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PreviewSlots <= 0 {
		c.PreviewSlots = d.PreviewSlots
	}
	if c.PreviewSlotWidth <= 0 {
		c.PreviewSlotWidth = d.PreviewSlotWidth
	}
	if c.PreviewTileSize <= 0 {
		c.PreviewTileSize = d.PreviewTileSize
	}
	if c.PreviewSpeed <= 0 {
		c.PreviewSpeed = d.PreviewSpeed
	}
	if c.FrameInterval <= 0 {
		c.FrameInterval = d.FrameInterval
	}
	if c.SpinSlots <= 0 {
		c.SpinSlots = d.SpinSlots
	}
	if c.TargetSlot < 0 {
		c.TargetSlot = c.SpinSlots * 4 / 5
	}
	if c.SpinTileSize <= 0 {
		c.SpinTileSize = d.SpinTileSize
	}
	if c.LayoutDelay <= 0 {
		c.LayoutDelay = d.LayoutDelay
	}
	if c.HighlightPause <= 0 {
		c.HighlightPause = d.HighlightPause
	}
	if c.RevealPause < c.HighlightPause {
		c.RevealPause = c.HighlightPause
	}
	if len(c.Patterns) == 0 {
		c.Patterns = d.Patterns
	}
	return c
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the real clock, e.g. with a clockwork.FakeClock.
func WithClock(clock clockwork.Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithRNG replaces the random source for filler slots and patterns.
func WithRNG(rng RNG) Option {
	return func(e *Engine) { e.rng = rng }
}

// Engine runs the preview loop and the spin sequence of one presentation
// surface.
type Engine struct {
	cfg   Config
	clock clockwork.Clock
	rng   RNG
	tiles TileRenderer

	previewMu sync.Mutex
	preview   *PreviewLoop

	mu       sync.Mutex
	state    State
	spinning bool
}

// NewEngine creates an idle engine rendering through r.
func NewEngine(cfg Config, r TileRenderer, opts ...Option) *Engine {
	e := &Engine{
		cfg:   cfg.withDefaults(),
		clock: clockwork.NewRealClock(),
		rng:   stdRNG{},
		tiles: r,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// State returns the current phase.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	prev := e.state
	e.state = s
	e.mu.Unlock()

	if prev != s {
		log.Debug().Str("from", prev.String()).Str("to", s.String()).Msg("roulette state changed")
	}
}

// StartPreview lays out the endless strip for items, renders its tiles in the
// background and starts scrolling. Any running preview is stopped first.
func (e *Engine) StartPreview(ctx context.Context, items []models.CaseItem, track PreviewTrack) error {
	strip, err := BuildPreviewStrip(items, e.cfg.PreviewSlots, e.cfg.PreviewTileSize)
	if err != nil {
		return err
	}

	e.previewMu.Lock()
	defer e.previewMu.Unlock()

	if e.preview != nil {
		e.preview.Stop()
		e.preview = nil
	}

	if err := track.Build(ctx, strip); err != nil {
		return fmt.Errorf("failed to build preview track: %w", err)
	}
	go e.tiles.RenderAll(ctx, strip.Tiles())

	loop := NewPreviewLoop(e.clock, e.cfg.FrameInterval, e.cfg.PreviewSpeed,
		LoopWidth(len(strip.Slots), e.cfg.PreviewSlotWidth), track.SetOffset)
	loop.Start()
	e.preview = loop
	return nil
}

// StopPreview stops the preview loop. It is a no-op when none is running.
func (e *Engine) StopPreview() {
	e.previewMu.Lock()
	defer e.previewMu.Unlock()

	if e.preview != nil {
		e.preview.Stop()
		e.preview = nil
	}
}

// PreviewOffset returns the preview translation, or 0 when stopped.
func (e *Engine) PreviewOffset() float64 {
	e.previewMu.Lock()
	defer e.previewMu.Unlock()
	if e.preview == nil {
		return 0
	}
	return e.preview.Offset()
}

// Reset returns a settled engine to idle.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.spinning {
		e.state = StateIdle
	}
}

// RunSpin plays the full sequence for a confirmed result and returns once the
// result screen has been presented:
//
//	build strip -> render -> layout delay -> measure -> translate
//	-> decelerate -> highlight -> reveal
//
// The target slot always shows spin.Declared. A second call while one is running
// fails with ErrSpinInProgress. Tile, measure, translate and highlight
// failures are logged and never stop the sequence.
func (e *Engine) RunSpin(ctx context.Context, spin Spin, track Track, presenter Presenter) (SpinResult, error) {
	e.mu.Lock()
	if e.spinning {
		e.mu.Unlock()
		return SpinResult{}, ErrSpinInProgress
	}
	e.spinning = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.spinning = false
		e.mu.Unlock()
	}()

	if spin.ID == uuid.Nil {
		spin.ID = uuid.New()
	}
	target := e.cfg.TargetSlot
	strip, err := BuildSpinStrip(spin.Items, spin.Declared, e.cfg.SpinSlots, target, e.cfg.SpinTileSize, e.rng)
	var mismatch *ResultMismatchError
	if err != nil && !errors.As(err, &mismatch) {
		return SpinResult{}, err
	}

	res := SpinResult{
		ID:         spin.ID,
		Item:       strip.Slots[target].Item,
		TargetSlot: target,
		Mismatch:   mismatch != nil,
	}
	logger := log.With().Str("spin_id", res.ID.String()).Int64("gift_id", spin.Declared.ID).Logger()
	if mismatch != nil {
		logger.Warn().Err(mismatch).Int("items", len(spin.Items)).Msg("declared gift missing from case items")
	}

	e.setState(StateSpinning)
	fail := func(err error) (SpinResult, error) {
		e.setState(StateIdle)
		return res, err
	}

	if err := track.Build(ctx, strip); err != nil {
		return fail(fmt.Errorf("failed to build spin track: %w", err))
	}

	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		if degraded := e.tiles.RenderAll(ctx, strip.Tiles()); degraded > 0 {
			logger.Warn().Int("degraded", degraded).Msg("spin strip rendered with placeholders")
		}
	}()

	if err := e.sleep(ctx, e.cfg.LayoutDelay); err != nil {
		return fail(err)
	}

	res.Pattern = ChoosePattern(e.cfg.Patterns, e.rng)
	geo, err := track.Measure(ctx, target)
	if err != nil {
		logger.Warn().Err(err).Msg("target slot not measurable, skipping transition")
	} else {
		res.Offset = TargetOffset(geo, res.Pattern.ExtraOffset)
		if err := track.Translate(ctx, res.Offset, res.Pattern.Duration, res.Pattern.Easing); err != nil {
			logger.Warn().Err(err).Msg("spin transition failed")
		}
	}
	logger.Debug().
		Str("pattern", res.Pattern.Name).
		Dur("duration", res.Pattern.Duration).
		Float64("offset", res.Offset).
		Msg("spin transition started")

	decel := res.Pattern.DecelerateAfter()
	if err := e.sleep(ctx, decel); err != nil {
		return fail(err)
	}
	e.setState(StateDecelerating)

	if err := e.sleep(ctx, res.Pattern.Duration-decel+e.cfg.HighlightPause); err != nil {
		return fail(err)
	}
	e.setState(StateHighlighting)
	if err := track.Highlight(ctx, target); err != nil {
		logger.Warn().Err(err).Msg("highlight failed")
	}

	if err := e.sleep(ctx, e.cfg.RevealPause-e.cfg.HighlightPause); err != nil {
		return fail(err)
	}
	select {
	case <-rendered:
	case <-ctx.Done():
		return fail(ctx.Err())
	}

	e.setState(StateRevealed)
	metrics.RecordSpin(res.Pattern.Name, res.Mismatch)

	if presenter != nil {
		if err := presenter.Reveal(ctx, res); err != nil {
			return res, fmt.Errorf("failed to reveal result: %w", err)
		}
	}
	logger.Info().
		Str("pattern", res.Pattern.Name).
		Int("target_slot", target).
		Bool("mismatch", res.Mismatch).
		Msg("spin settled")
	return res, nil
}

// sleep waits d on the engine clock.
func (e *Engine) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := e.clock.NewTimer(d)
	select {
	case <-timer.Chan():
		return nil
	case <-ctx.Done():
		stopAndDrainTimer(timer)
		return ctx.Err()
	}
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
