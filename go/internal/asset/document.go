package asset

import (
	"time"

	jsoniter "github.com/json-iterator/go"
)

// Document is a decoded vector keyframe animation (Lottie/TGS). It is
// immutable once decoded and shared read-only by every tile showing the key.
type Document struct {
	Key       int                   `json:"-"`
	Version   string                `json:"v"`
	Name      string                `json:"nm"`
	FrameRate float64               `json:"fr"`
	InPoint   float64               `json:"ip"`
	OutPoint  float64               `json:"op"`
	Width     float64               `json:"w"`
	Height    float64               `json:"h"`
	TGS       int                   `json:"tgs,omitempty"`
	Layers    []jsoniter.RawMessage `json:"layers"`
	Assets    []jsoniter.RawMessage `json:"assets,omitempty"`

	// Raw is the decompressed JSON, forwarded as-is to players.
	Raw []byte `json:"-"`
}

// Frames returns the number of frames in one loop.
func (d *Document) Frames() float64 {
	if d.OutPoint <= d.InPoint {
		return 0
	}
	return d.OutPoint - d.InPoint
}

// Duration returns the length of one loop.
func (d *Document) Duration() time.Duration {
	if d.FrameRate <= 0 {
		return 0
	}
	return time.Duration(d.Frames() / d.FrameRate * float64(time.Second))
}
