package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/caseroll/go/internal/asset"
	"github.com/mcdev12/caseroll/go/internal/rendering"
	"github.com/mcdev12/caseroll/go/internal/roulette"
	"github.com/mcdev12/caseroll/go/internal/tiles"
)

const (
	DefaultMeasureTimeout = 2 * time.Second
	DefaultPlaceholderSrc = "/static/images/star.png"
)

var (
	// ErrNotDelivered is returned when a command could not be queued for the
	// shim, e.g. because the connection is gone or its buffer is full.
	ErrNotDelivered = errors.New("command not delivered")

	// ErrMeasureTimeout is returned when the shim does not answer a measure
	// request in time.
	ErrMeasureTimeout = errors.New("measure timed out")
)

// Sender queues commands for the shim without blocking.
type Sender interface {
	Send(cmd Command) bool
}

func deliver(s Sender, cmd Command) error {
	if !s.Send(cmd) {
		return fmt.Errorf("%s: %w", cmd.Type, ErrNotDelivered)
	}
	return nil
}

// remoteRenderer mounts players in the shim. A document is shipped once per
// session; later mounts of the same key refer to it by key only.
type remoteRenderer struct {
	send           Sender
	placeholderSrc string

	mu       sync.Mutex
	sentKeys map[int]bool
}

func newRemoteRenderer(send Sender, placeholderSrc string) *remoteRenderer {
	if placeholderSrc == "" {
		placeholderSrc = DefaultPlaceholderSrc
	}
	return &remoteRenderer{send: send, placeholderSrc: placeholderSrc, sentKeys: make(map[int]bool)}
}

func (r *remoteRenderer) Mount(nodeID string, doc *asset.Document, size int) (tiles.Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	payload := MountPayload{NodeID: nodeID, Key: doc.Key, Size: size, Loop: true, Autoplay: true}
	first := !r.sentKeys[doc.Key]
	if first {
		payload.Animation = doc.Raw
	}
	if err := deliver(r.send, Command{Type: CommandMount, Data: payload}); err != nil {
		return nil, err
	}
	if first {
		r.sentKeys[doc.Key] = true
	}
	return &remotePlayer{nodeID: nodeID, send: r.send}, nil
}

func (r *remoteRenderer) Placeholder(nodeID string) error {
	return deliver(r.send, Command{Type: CommandPlaceholder, Data: PlaceholderPayload{NodeID: nodeID, Src: r.placeholderSrc}})
}

func (r *remoteRenderer) Clear(nodeID string) {
	r.send.Send(Command{Type: CommandClear, Data: NodePayload{NodeID: nodeID}})
}

type remotePlayer struct {
	nodeID string
	send   Sender
}

func (p *remotePlayer) Play() {
	p.send.Send(Command{Type: CommandPlay, Data: NodePayload{NodeID: p.nodeID}})
}

func (p *remotePlayer) Pause() {
	p.send.Send(Command{Type: CommandPause, Data: NodePayload{NodeID: p.nodeID}})
}

func (p *remotePlayer) Destroy() {
	p.send.Send(Command{Type: CommandDestroy, Data: NodePayload{NodeID: p.nodeID}})
}

func stripPayload(track string, strip roulette.Strip) StripPayload {
	slots := make([]SlotView, len(strip.Slots))
	for i, s := range strip.Slots {
		slots[i] = SlotView{NodeID: s.NodeID, GiftID: s.Item.Gift.ID, Rarity: s.Item.Gift.RarityOrDefault()}
	}
	return StripPayload{Track: track, TileSize: strip.TileSize, Slots: slots}
}

// previewTrack is the endlessly scrolling strip of the opening screen.
type previewTrack struct {
	send Sender
}

func (t *previewTrack) Build(_ context.Context, strip roulette.Strip) error {
	return deliver(t.send, Command{Type: CommandStrip, Data: stripPayload(TrackPreview, strip)})
}

func (t *previewTrack) SetOffset(offset float64) {
	t.send.Send(Command{Type: CommandOffset, Data: OffsetPayload{Track: TrackPreview, Offset: offset}})
}

// measurements pairs measure requests with the geometry replies of the shim.
type measurements struct {
	clock   clockwork.Clock
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]chan GeometryPayload
}

func newMeasurements(clock clockwork.Clock, timeout time.Duration) *measurements {
	if timeout <= 0 {
		timeout = DefaultMeasureTimeout
	}
	return &measurements{clock: clock, timeout: timeout, pending: make(map[string]chan GeometryPayload)}
}

func (m *measurements) request(ctx context.Context, send Sender, slot int) (roulette.Geometry, error) {
	id := uuid.NewString()
	reply := make(chan GeometryPayload, 1)

	m.mu.Lock()
	m.pending[id] = reply
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.pending, id)
		m.mu.Unlock()
	}()

	cmd := Command{Type: CommandMeasure, RequestID: id, Data: SlotPayload{Track: TrackSpin, Slot: slot}}
	if err := deliver(send, cmd); err != nil {
		return roulette.Geometry{}, err
	}

	timer := m.clock.NewTimer(m.timeout)
	defer timer.Stop()

	select {
	case g := <-reply:
		if g.Error != "" {
			return roulette.Geometry{}, fmt.Errorf("measure slot %d: %s", slot, g.Error)
		}
		return g.Geometry, nil
	case <-timer.Chan():
		return roulette.Geometry{}, ErrMeasureTimeout
	case <-ctx.Done():
		return roulette.Geometry{}, ctx.Err()
	}
}

// resolve hands a geometry reply to its waiting request. Late or unknown
// replies are dropped.
func (m *measurements) resolve(requestID string, g GeometryPayload) bool {
	m.mu.Lock()
	reply, ok := m.pending[requestID]
	if ok {
		delete(m.pending, requestID)
	}
	m.mu.Unlock()

	if ok {
		reply <- g
	}
	return ok
}

func (m *measurements) waiting() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// spinTrack is the strip the spin decelerates along.
type spinTrack struct {
	send     Sender
	measures *measurements
}

func (t *spinTrack) Build(_ context.Context, strip roulette.Strip) error {
	return deliver(t.send, Command{Type: CommandStrip, Data: stripPayload(TrackSpin, strip)})
}

func (t *spinTrack) Measure(ctx context.Context, slot int) (roulette.Geometry, error) {
	return t.measures.request(ctx, t.send, slot)
}

func (t *spinTrack) Translate(_ context.Context, offset float64, duration time.Duration, easing roulette.CubicBezier) error {
	return deliver(t.send, Command{Type: CommandTranslate, Data: TranslatePayload{
		Track:      TrackSpin,
		Offset:     offset,
		DurationMS: duration.Milliseconds(),
		Easing:     easing.CSS(),
	}})
}

func (t *spinTrack) Highlight(_ context.Context, slot int) error {
	return deliver(t.send, Command{Type: CommandHighlight, Data: SlotPayload{Track: TrackSpin, Slot: slot}})
}

// remotePresenter switches the shim to the result screen.
type remotePresenter struct {
	send Sender
}

func (p *remotePresenter) Reveal(_ context.Context, res roulette.SpinResult) error {
	return deliver(p.send, Command{Type: CommandReveal, Data: RevealPayload{
		NodeID:     rendering.ResultNodeID,
		Gift:       res.Item.Gift,
		Pattern:    res.Pattern.Name,
		TargetSlot: res.TargetSlot,
		Mismatch:   res.Mismatch,
	}})
}
