package roulette

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/mcdev12/caseroll/go/internal/models"
	"github.com/mcdev12/caseroll/go/internal/tiles"
)

var (
	// ErrEmptyCase is returned when a strip is requested for a case without
	// items.
	ErrEmptyCase = errors.New("case has no items")
	// ErrSpinInProgress is returned when a spin is requested while another is
	// still running.
	ErrSpinInProgress = errors.New("spin already in progress")
)

// ResultMismatchError reports a declared winning gift that the case item list
// does not contain.
type ResultMismatchError struct {
	GiftID int64
}

func (e *ResultMismatchError) Error() string {
	return fmt.Sprintf("declared gift %d is not among the case items", e.GiftID)
}

// RNG is the random source for filler slots and pattern choice.
type RNG interface {
	// Intn returns a non-negative random int in [0, n).
	Intn(n int) int
}

type stdRNG struct{}

func (stdRNG) Intn(n int) int { return rand.IntN(n) }

// Slot is one position of a strip.
type Slot struct {
	Index  int
	NodeID string
	Item   models.CaseItem
}

// Key is the asset key drawn in the slot.
func (s Slot) Key() int {
	return s.Item.Gift.AssetKey()
}

// Strip is an ordered run of slots rendered as one track.
type Strip struct {
	Slots    []Slot
	TileSize int
}

// PreviewSlotCount is the smallest even multiple of items that holds at
// least atLeast slots, so the second half of a preview strip repeats the first.
func PreviewSlotCount(items, atLeast int) int {
	if items <= 0 {
		return 0
	}
	period := 2 * items
	if atLeast <= period {
		return period
	}
	return (atLeast + period - 1) / period * period
}

// BuildPreviewStrip repeats items in order across at least n slots. The slot
// count is rounded up with PreviewSlotCount.
func BuildPreviewStrip(items []models.CaseItem, n, tileSize int) (Strip, error) {
	if len(items) == 0 {
		return Strip{}, ErrEmptyCase
	}
	n = PreviewSlotCount(len(items), n)
	strip := Strip{Slots: make([]Slot, n), TileSize: tileSize}
	for i := range strip.Slots {
		strip.Slots[i] = Slot{
			Index:  i,
			NodeID: fmt.Sprintf("prv_rou_%d", i),
			Item:   items[i%len(items)],
		}
	}
	return strip, nil
}

// ResolveTarget returns the case item the target slot commits to. When the
// declared gift is missing from items the gift itself is still used, wrapped
// in a synthetic item, and a ResultMismatchError is returned alongside.
func ResolveTarget(items []models.CaseItem, declared models.Gift) (models.CaseItem, error) {
	if item, ok := models.FindByGift(items, declared.ID); ok {
		return item, nil
	}
	return models.CaseItem{Gift: declared}, &ResultMismatchError{GiftID: declared.ID}
}

// BuildSpinStrip draws n slots at random from items and commits target to
// the slot at index target. The returned error is a ResultMismatchError when
// the declared gift is absent from items; the strip is valid regardless.
func BuildSpinStrip(items []models.CaseItem, declared models.Gift, n, target, tileSize int, rng RNG) (Strip, error) {
	if len(items) == 0 {
		return Strip{}, ErrEmptyCase
	}
	if target < 0 || target >= n {
		return Strip{}, fmt.Errorf("target slot %d outside strip of %d", target, n)
	}

	won, mismatch := ResolveTarget(items, declared)

	strip := Strip{Slots: make([]Slot, n), TileSize: tileSize}
	for i := range strip.Slots {
		item := won
		if i != target {
			item = items[rng.Intn(len(items))]
		}
		strip.Slots[i] = Slot{Index: i, NodeID: fmt.Sprintf("rou_%d", i), Item: item}
	}
	return strip, mismatch
}

// LoopWidth is the offset magnitude at which a preview strip of n slots wraps.
func LoopWidth(n int, slotWidth float64) float64 {
	return float64(n/2) * slotWidth
}

// Geometry is the on-screen layout of the spin track measured right before
// the transition starts.
type Geometry struct {
	ContainerLeft  float64 `json:"container_left"`
	ContainerWidth float64 `json:"container_width"`
	SlotLeft       float64 `json:"slot_left"`
	SlotWidth      float64 `json:"slot_width"`
}

// TargetOffset is the translation that centers the measured slot in the
// container, shifted by extra.
func TargetOffset(g Geometry, extra float64) float64 {
	center := g.SlotLeft - g.ContainerLeft + g.SlotWidth/2
	return -(center - g.ContainerWidth/2) + extra
}

// Tiles lists the strip's slots as tiles to render.
func (s Strip) Tiles() []tiles.Tile {
	out := make([]tiles.Tile, len(s.Slots))
	for i, slot := range s.Slots {
		out[i] = tiles.Tile{NodeID: slot.NodeID, Key: slot.Key(), Size: s.TileSize}
	}
	return out
}
