package tiles

import (
	"sync"

	"github.com/mcdev12/caseroll/go/internal/metrics"
)

// DefaultRootMargin starts animations this many pixels before a node scrolls
// into view.
const DefaultRootMargin = 400

// Rect is an axis-aligned rectangle in viewport pixels.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Expand grows the rectangle by m on every side.
func (r Rect) Expand(m float64) Rect {
	return Rect{X: r.X - m, Y: r.Y - m, W: r.W + 2*m, H: r.H + 2*m}
}

// Intersects reports whether r and o overlap or touch.
func (r Rect) Intersects(o Rect) bool {
	return r.X <= o.X+o.W && o.X <= r.X+r.W &&
		r.Y <= o.Y+o.H && o.Y <= r.Y+r.H
}

// Visibility is one enter/exit transition of a tracked node.
type Visibility struct {
	NodeID  string `json:"node_id"`
	Visible bool   `json:"visible"`
}

// Observer tracks which nodes intersect the viewport (grown by a root margin)
// and emits a Visibility event whenever a tracked node changes state. It only
// remembers node ids and their last state, never player lifetime.
type Observer struct {
	margin float64

	// sendMu keeps event delivery in the order transitions were computed.
	sendMu sync.Mutex

	mu          sync.Mutex
	viewport    Rect
	hasViewport bool
	bounds      map[string]Rect
	tracked     map[string]bool

	events chan Visibility
}

// NewObserver creates an observer. Events must be drained, normally by
// Manager.Run.
func NewObserver(margin float64, buffer int) *Observer {
	if buffer <= 0 {
		buffer = 256
	}
	return &Observer{
		margin:  margin,
		bounds:  make(map[string]Rect),
		tracked: make(map[string]bool),
		events:  make(chan Visibility, buffer),
	}
}

// Events is the stream of visibility transitions.
func (o *Observer) Events() <-chan Visibility {
	return o.events
}

// visibleLocked is optimistic: a node with unknown geometry counts as visible.
func (o *Observer) visibleLocked(nodeID string) bool {
	b, ok := o.bounds[nodeID]
	if !ok || !o.hasViewport {
		return true
	}
	return o.viewport.Expand(o.margin).Intersects(b)
}

// measuredLocked reports whether visibility of nodeID can be computed from
// geometry. Until then the last reported or initial state stands.
func (o *Observer) measuredLocked(nodeID string) bool {
	_, ok := o.bounds[nodeID]
	return ok && o.hasViewport
}

// Observe starts tracking nodeID and returns its current visibility.
func (o *Observer) Observe(nodeID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.tracked[nodeID]; !ok {
		metrics.AddObservedNodes(1)
	}
	visible := o.visibleLocked(nodeID)
	o.tracked[nodeID] = visible
	return visible
}

// Unobserve stops tracking nodeID. Its last known bounds are kept so a
// re-rendered node starts with the right state; PruneBounds drops them.
func (o *Observer) Unobserve(nodeID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.tracked[nodeID]; ok {
		delete(o.tracked, nodeID)
		metrics.AddObservedNodes(-1)
	}
}

// SetViewport updates the viewport and re-evaluates every tracked node.
func (o *Observer) SetViewport(r Rect) {
	o.sendMu.Lock()
	defer o.sendMu.Unlock()

	o.mu.Lock()
	o.viewport = r
	o.hasViewport = true
	var changed []Visibility
	for id, was := range o.tracked {
		if !o.measuredLocked(id) {
			continue
		}
		if now := o.visibleLocked(id); now != was {
			o.tracked[id] = now
			changed = append(changed, Visibility{NodeID: id, Visible: now})
		}
	}
	o.mu.Unlock()

	o.send(changed...)
}

// SetBounds records where nodeID is laid out and re-evaluates it.
func (o *Observer) SetBounds(nodeID string, r Rect) {
	o.sendMu.Lock()
	defer o.sendMu.Unlock()

	o.mu.Lock()
	o.bounds[nodeID] = r
	var changed []Visibility
	if was, ok := o.tracked[nodeID]; ok && o.measuredLocked(nodeID) {
		if now := o.visibleLocked(nodeID); now != was {
			o.tracked[nodeID] = now
			changed = append(changed, Visibility{NodeID: nodeID, Visible: now})
		}
	}
	o.mu.Unlock()

	o.send(changed...)
}

// Report applies a transition computed elsewhere, e.g. by a client-side
// intersection observer. Reports for untracked nodes are ignored.
func (o *Observer) Report(v Visibility) {
	o.sendMu.Lock()
	defer o.sendMu.Unlock()

	o.mu.Lock()
	was, ok := o.tracked[v.NodeID]
	if ok && was != v.Visible {
		o.tracked[v.NodeID] = v.Visible
	}
	o.mu.Unlock()

	if ok && was != v.Visible {
		o.send(v)
	}
}

func (o *Observer) send(events ...Visibility) {
	for _, ev := range events {
		o.events <- ev
	}
}

// Visible returns the last known state of a tracked node.
func (o *Observer) Visible(nodeID string) (visible, tracked bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	visible, tracked = o.tracked[nodeID]
	return visible, tracked
}

// Tracked returns the number of observed nodes.
func (o *Observer) Tracked() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.tracked)
}

// PruneBounds forgets the geometry of nodes that are no longer tracked and
// returns how many entries were dropped.
func (o *Observer) PruneBounds() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	n := 0
	for id := range o.bounds {
		if _, ok := o.tracked[id]; !ok {
			delete(o.bounds, id)
			n++
		}
	}
	return n
}

// Reset forgets every node and the viewport.
func (o *Observer) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()

	metrics.AddObservedNodes(-len(o.tracked))
	o.tracked = make(map[string]bool)
	o.bounds = make(map[string]Rect)
	o.hasViewport = false
}
