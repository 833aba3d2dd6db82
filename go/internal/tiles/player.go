package tiles

import (
	"context"
	"errors"
	"fmt"

	"github.com/mcdev12/caseroll/go/internal/asset"
)

// DefaultTileSize is the declared pixel size used when none is given.
const DefaultTileSize = 80

// ErrNoRenderer is returned when the manager has no renderer to draw with.
var ErrNoRenderer = errors.New("no renderer available")

// RenderError reports a renderer that is missing, fails or panics.
type RenderError struct {
	NodeID string
	Err    error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %v", e.NodeID, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Player is a live animation bound to one node.
type Player interface {
	Play()
	Pause()
	Destroy()
}

// Renderer draws into nodes. Mount creates a looping, autoplaying player
// sized size x size; Placeholder draws the static fallback glyph; Clear
// empties the node.
type Renderer interface {
	Mount(nodeID string, doc *asset.Document, size int) (Player, error)
	Placeholder(nodeID string) error
	Clear(nodeID string)
}

// Resolver provides decoded documents by key.
type Resolver interface {
	Resolve(ctx context.Context, key int) (*asset.Document, error)
}

// Tile describes one node to render.
type Tile struct {
	NodeID string
	Key    int
	Size   int
}

// guard runs fn, converting a panic into a RenderError.
func guard(nodeID, op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &RenderError{NodeID: nodeID, Err: fmt.Errorf("%s panicked: %v", op, r)}
		}
	}()
	return fn()
}
