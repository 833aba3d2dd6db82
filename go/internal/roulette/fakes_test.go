package roulette

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/caseroll/go/internal/models"
	"github.com/mcdev12/caseroll/go/internal/tiles"
)

type seededRNG struct {
	r *rand.Rand
}

func newSeededRNG(seed uint64) *seededRNG {
	return &seededRNG{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *seededRNG) Intn(n int) int { return s.r.IntN(n) }

// fixedRNG always answers val mod n.
type fixedRNG struct{ val int }

func (r fixedRNG) Intn(n int) int { return r.val % n }

func gift(id int64, name string, rarity models.Rarity) models.Gift {
	return models.Gift{ID: id, Name: name, Rarity: rarity, GiftNumber: int(id)}
}

// weightedItems is a case of five items with drop chances 50/20/15/10/5.
func weightedItems() []models.CaseItem {
	return []models.CaseItem{
		{ID: 1, DropChance: 50, Gift: gift(11, "Heart", models.RarityCommon)},
		{ID: 2, DropChance: 20, Gift: gift(12, "Bear", models.RarityCommon)},
		{ID: 3, DropChance: 15, Gift: gift(13, "Rose", models.RarityRare)},
		{ID: 4, DropChance: 10, Gift: gift(14, "Cake", models.RarityEpic)},
		{ID: 5, DropChance: 5, Gift: gift(15, "Diamond", models.RarityLegendary)},
	}
}

type fakeTiles struct {
	mu    sync.Mutex
	calls [][]tiles.Tile
}

func (f *fakeTiles) RenderAll(ctx context.Context, ts []tiles.Tile) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ts)
	return 0
}

func (f *fakeTiles) Calls() [][]tiles.Tile {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]tiles.Tile(nil), f.calls...)
}

type translateCall struct {
	at       time.Duration
	offset   float64
	duration time.Duration
	easing   CubicBezier
}

type fakeTrack struct {
	mu          sync.Mutex
	clock       clockwork.Clock
	start       time.Time
	engine      *Engine
	geometry    Geometry
	measureErr  error
	built       []Strip
	offsets     []float64
	translates  []translateCall
	highlightAt time.Duration
	highlighted []int
	stateAtHigh State
}

func newFakeTrack(clock clockwork.Clock) *fakeTrack {
	return &fakeTrack{
		clock: clock,
		start: clock.Now(),
		geometry: Geometry{
			ContainerLeft:  20,
			ContainerWidth: 400,
			SlotLeft:       20 + 48*100,
			SlotWidth:      90,
		},
	}
}

func (t *fakeTrack) Build(ctx context.Context, strip Strip) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.built = append(t.built, strip)
	return nil
}

func (t *fakeTrack) SetOffset(offset float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.offsets = append(t.offsets, offset)
}

func (t *fakeTrack) Offsets() []float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]float64(nil), t.offsets...)
}

func (t *fakeTrack) Measure(ctx context.Context, slot int) (Geometry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.geometry, t.measureErr
}

func (t *fakeTrack) Translate(ctx context.Context, offset float64, d time.Duration, easing CubicBezier) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.translates = append(t.translates, translateCall{
		at:       t.clock.Since(t.start),
		offset:   offset,
		duration: d,
		easing:   easing,
	})
	return nil
}

func (t *fakeTrack) Highlight(ctx context.Context, slot int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.highlightAt = t.clock.Since(t.start)
	t.highlighted = append(t.highlighted, slot)
	if t.engine != nil {
		t.stateAtHigh = t.engine.State()
	}
	return nil
}

type fakePresenter struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	start    time.Time
	revealAt time.Duration
	results  []SpinResult
	err      error
}

func (p *fakePresenter) Reveal(ctx context.Context, res SpinResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revealAt = p.clock.Since(p.start)
	p.results = append(p.results, res)
	return p.err
}

var errMeasure = errors.New("container not in layout")
