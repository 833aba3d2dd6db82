package tiles

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/mcdev12/caseroll/go/internal/asset"
	"github.com/mcdev12/caseroll/go/internal/metrics"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DefaultRenderConcurrency bounds parallel renders in RenderAll.
const DefaultRenderConcurrency = 8

type instance struct {
	player Player
	key    int
	size   int
}

// Manager owns the node id -> player table. At most one live instance exists
// per node id; every mutation goes through Render, Destroy and DestroyAll.
type Manager struct {
	resolver    Resolver
	renderer    Renderer
	observer    *Observer
	concurrency int

	mu        sync.Mutex
	instances map[string]*instance
	// pending holds the generation of the newest in-flight render per node.
	// A render whose generation was superseded is discarded on completion.
	pending map[string]uint64
	gen     uint64
}

// NewManager creates a manager drawing through renderer and tracking
// visibility through observer.
func NewManager(resolver Resolver, renderer Renderer, observer *Observer) *Manager {
	if observer == nil {
		observer = NewObserver(DefaultRootMargin, 0)
	}
	return &Manager{
		resolver:    resolver,
		renderer:    renderer,
		observer:    observer,
		concurrency: DefaultRenderConcurrency,
		instances:   make(map[string]*instance),
		pending:     make(map[string]uint64),
	}
}

// SetConcurrency changes the RenderAll worker bound.
func (m *Manager) SetConcurrency(n int) {
	if n > 0 {
		m.concurrency = n
	}
}

// Observer returns the shared viewport observer.
func (m *Manager) Observer() *Observer {
	return m.observer
}

// Render draws the animation for key into nodeID, replacing any instance the
// node already has. When the asset cannot be resolved or mounted the node
// gets the placeholder glyph, no instance is registered, and the cause is
// returned so the caller can log it. A render superseded by a newer Render or
// Destroy of the same node is dropped and returns nil.
func (m *Manager) Render(ctx context.Context, nodeID string, key, size int) error {
	if size <= 0 {
		size = DefaultTileSize
	}

	m.mu.Lock()
	m.destroyLocked(nodeID)
	m.gen++
	gen := m.gen
	m.pending[nodeID] = gen
	m.mu.Unlock()

	if m.renderer == nil {
		m.mu.Lock()
		delete(m.pending, nodeID)
		m.mu.Unlock()
		return &RenderError{NodeID: nodeID, Err: ErrNoRenderer}
	}

	doc, resolveErr := m.resolver.Resolve(ctx, key)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending[nodeID] != gen {
		metrics.RecordTileRender("discarded")
		log.Debug().Str("node_id", nodeID).Int("asset_key", key).Msg("render superseded")
		return nil
	}
	delete(m.pending, nodeID)

	// The screen that asked for this tile is gone.
	if err := ctx.Err(); err != nil {
		metrics.RecordTileRender("discarded")
		return err
	}

	if resolveErr != nil {
		m.placeholderLocked(nodeID)
		return resolveErr
	}

	m.destroyLocked(nodeID)
	player, err := m.mountLocked(nodeID, doc, size)
	if err != nil {
		m.placeholderLocked(nodeID)
		return err
	}

	m.instances[nodeID] = &instance{player: player, key: key, size: size}
	metrics.AddLiveInstances(1)
	metrics.RecordTileRender("animated")

	if visible := m.observer.Observe(nodeID); !visible {
		_ = guard(nodeID, "pause", func() error { player.Pause(); return nil })
	}
	return nil
}

func (m *Manager) mountLocked(nodeID string, doc *asset.Document, size int) (Player, error) {
	var player Player
	err := guard(nodeID, "mount", func() error {
		p, err := m.renderer.Mount(nodeID, doc, size)
		if err != nil {
			return &RenderError{NodeID: nodeID, Err: err}
		}
		player = p
		return nil
	})
	if err == nil && player == nil {
		err = &RenderError{NodeID: nodeID, Err: ErrNoRenderer}
	}
	return player, err
}

func (m *Manager) placeholderLocked(nodeID string) {
	metrics.RecordTileRender("placeholder")
	err := guard(nodeID, "placeholder", func() error {
		m.renderer.Clear(nodeID)
		return m.renderer.Placeholder(nodeID)
	})
	if err != nil {
		log.Warn().Err(err).Str("node_id", nodeID).Msg("placeholder render failed")
	}
}

// destroyLocked releases the instance of nodeID, if any.
func (m *Manager) destroyLocked(nodeID string) bool {
	inst, ok := m.instances[nodeID]
	if !ok {
		return false
	}
	delete(m.instances, nodeID)
	metrics.AddLiveInstances(-1)

	if err := guard(nodeID, "destroy", func() error { inst.player.Destroy(); return nil }); err != nil {
		log.Warn().Err(err).Str("node_id", nodeID).Msg("player destroy failed")
	}
	m.observer.Unobserve(nodeID)
	if m.renderer != nil {
		_ = guard(nodeID, "clear", func() error { m.renderer.Clear(nodeID); return nil })
	}
	return true
}

// Destroy releases the instance of nodeID and cancels any in-flight render
// for it. Destroying an unknown node is a no-op.
func (m *Manager) Destroy(nodeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.pending, nodeID)
	m.destroyLocked(nodeID)
}

// DestroyAll releases every instance, cancels in-flight renders and returns
// how many instances were live.
func (m *Manager) DestroyAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id := range m.instances {
		if m.destroyLocked(id) {
			n++
		}
	}
	m.pending = make(map[string]uint64)

	log.Debug().Int("destroyed", n).Int("observed", m.observer.Tracked()).Msg("all tiles destroyed")
	return n
}

// RenderAll renders tiles concurrently. A failing tile degrades to the
// placeholder and never stops its siblings. It returns the number of tiles
// that degraded. Tiles still pending when ctx is cancelled are dropped
// without a placeholder.
func (m *Manager) RenderAll(ctx context.Context, tiles []Tile) int {
	var (
		g        errgroup.Group
		degraded atomic.Int32
	)
	g.SetLimit(m.concurrency)

	for _, t := range tiles {
		t := t
		g.Go(func() error {
			err := m.Render(ctx, t.NodeID, t.Key, t.Size)
			if err != nil && ctx.Err() == nil {
				degraded.Add(1)
				log.Warn().
					Err(err).
					Str("node_id", t.NodeID).
					Int("asset_key", t.Key).
					Msg("tile degraded to placeholder")
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(degraded.Load())
}

// HandleVisibility plays or pauses the instance behind a transition.
func (m *Manager) HandleVisibility(v Visibility) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.instances[v.NodeID]
	if !ok {
		return
	}
	err := guard(v.NodeID, "visibility", func() error {
		if v.Visible {
			inst.player.Play()
		} else {
			inst.player.Pause()
		}
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("node_id", v.NodeID).Msg("visibility toggle failed")
	}
}

// Run consumes the observer's event stream until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	events := m.observer.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case v := <-events:
			m.HandleVisibility(v)
		}
	}
}

// Live returns the number of live instances.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.instances)
}

// Has reports whether nodeID has a live instance.
func (m *Manager) Has(nodeID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.instances[nodeID]
	return ok
}
