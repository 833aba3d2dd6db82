package tiles

import (
	"context"
	"net/http"
	"sync"

	"github.com/mcdev12/caseroll/go/internal/asset"
)

type fakePlayer struct {
	mu        sync.Mutex
	nodeID    string
	playing   bool
	destroyed bool
	plays     int
	pauses    int
}

func (p *fakePlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = true
	p.plays++
}

func (p *fakePlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
	p.pauses++
}

func (p *fakePlayer) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
	p.destroyed = true
}

func (p *fakePlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *fakePlayer) Destroyed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.destroyed
}

type fakeRenderer struct {
	mu           sync.Mutex
	players      []*fakePlayer
	placeholders map[string]int
	cleared      map[string]int
	sizes        map[string]int
	panicOn      map[string]bool
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{
		placeholders: make(map[string]int),
		cleared:      make(map[string]int),
		sizes:        make(map[string]int),
		panicOn:      make(map[string]bool),
	}
}

func (r *fakeRenderer) Mount(nodeID string, doc *asset.Document, size int) (Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.panicOn[nodeID] {
		panic("lottie exploded")
	}
	p := &fakePlayer{nodeID: nodeID, playing: true}
	r.players = append(r.players, p)
	r.sizes[nodeID] = size
	return p, nil
}

func (r *fakeRenderer) Placeholder(nodeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.placeholders[nodeID]++
	return nil
}

func (r *fakeRenderer) Clear(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared[nodeID]++
}

func (r *fakeRenderer) Placeholders(nodeID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.placeholders[nodeID]
}

func (r *fakeRenderer) PlayersFor(nodeID string) []*fakePlayer {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*fakePlayer
	for _, p := range r.players {
		if p.nodeID == nodeID {
			out = append(out, p)
		}
	}
	return out
}

type fakeResolver struct {
	mu      sync.Mutex
	missing map[int]bool
	gates   map[int]chan struct{}
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{missing: make(map[int]bool), gates: make(map[int]chan struct{})}
}

func (f *fakeResolver) gate(key int) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[key] = ch
	return ch
}

func (f *fakeResolver) Resolve(ctx context.Context, key int) (*asset.Document, error) {
	f.mu.Lock()
	gate := f.gates[key]
	missing := f.missing[key]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if missing {
		return nil, &asset.FetchError{Key: key, Status: http.StatusNotFound}
	}
	return &asset.Document{Key: key}, nil
}
