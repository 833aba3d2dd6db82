package roulette

import (
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// PreviewStep advances a preview offset by one frame. Once the offset has
// travelled loopWidth it wraps to exactly zero; the strip's second half is a
// copy of the first so the wrap is invisible.
func PreviewStep(offset, speed, loopWidth float64) float64 {
	offset -= speed
	if math.Abs(offset) >= loopWidth {
		return 0
	}
	return offset
}

// PreviewLoop scrolls the preview strip once per frame until stopped.
type PreviewLoop struct {
	clock     clockwork.Clock
	frame     time.Duration
	speed     float64
	loopWidth float64
	sink      func(offset float64)

	// ctl serializes Start and Stop.
	ctl sync.Mutex

	mu      sync.Mutex
	offset  float64
	stop    chan struct{}
	done    chan struct{}
	running bool
}

// NewPreviewLoop creates a stopped loop. sink receives every new offset from
// the loop goroutine.
func NewPreviewLoop(clock clockwork.Clock, frame time.Duration, speed, loopWidth float64, sink func(float64)) *PreviewLoop {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if sink == nil {
		sink = func(float64) {}
	}
	return &PreviewLoop{
		clock:     clock,
		frame:     frame,
		speed:     speed,
		loopWidth: loopWidth,
		sink:      sink,
	}
}

// Start rewinds the offset to zero and starts scrolling. A running loop is
// stopped first, so there is never more than one frame callback.
func (l *PreviewLoop) Start() {
	l.ctl.Lock()
	defer l.ctl.Unlock()
	l.halt()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.offset = 0
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	l.running = true

	ticker := l.clock.NewTicker(l.frame)
	go l.run(ticker, l.stop, l.done)

	log.Debug().
		Dur("frame", l.frame).
		Float64("speed", l.speed).
		Float64("loop_width", l.loopWidth).
		Msg("preview loop started")
}

func (l *PreviewLoop) run(ticker clockwork.Ticker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			l.mu.Lock()
			l.offset = PreviewStep(l.offset, l.speed, l.loopWidth)
			offset := l.offset
			l.mu.Unlock()

			l.sink(offset)
		}
	}
}

// Stop cancels the frame callback and waits for it to exit. Safe to call on
// a stopped loop.
func (l *PreviewLoop) Stop() {
	l.ctl.Lock()
	defer l.ctl.Unlock()
	l.halt()
}

func (l *PreviewLoop) halt() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	stop, done := l.stop, l.done
	l.mu.Unlock()

	close(stop)
	<-done
	log.Debug().Msg("preview loop stopped")
}

// Offset returns the current translation in pixels.
func (l *PreviewLoop) Offset() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.offset
}

// Running reports whether the loop is scheduled.
func (l *PreviewLoop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}
