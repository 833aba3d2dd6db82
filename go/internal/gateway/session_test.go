package gateway

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/caseroll/go/clients/case_api_client"
	"github.com/mcdev12/caseroll/go/internal/models"
	"github.com/mcdev12/caseroll/go/internal/rendering"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

func openCaseMessage(caseID int64, free bool) []byte {
	return []byte(fmt.Sprintf(`{"type":"open_case","data":{"case_id":%d,"is_free":%t}}`, caseID, free))
}

func stripsOf(send *recordingSender, track string) []StripPayload {
	var out []StripPayload
	for _, c := range send.ofType(CommandStrip) {
		if p := c.Data.(StripPayload); p.Track == track {
			out = append(out, p)
		}
	}
	return out
}

func mountOf(send *recordingSender, nodeID string) (MountPayload, bool) {
	for _, c := range send.ofType(CommandMount) {
		if p := c.Data.(MountPayload); p.NodeID == nodeID {
			return p, true
		}
	}
	return MountPayload{}, false
}

func TestSession_OpenCase(t *testing.T) {
	items := caseItems(5)
	cases := &fakeCases{items: items, result: models.OpenResult{OpeningID: 1, Gift: items[2].Gift, Balance: 900}}
	send := &recordingSender{}
	s := newTestSession(t, cases, 7, send)
	answerMeasures(send, s)

	require.NoError(t, s.Handle(openCaseMessage(3, false)))
	require.Eventually(t, func() bool { return send.count(CommandReveal) == 1 }, waitFor, time.Millisecond)

	balance := send.ofType(CommandBalance)
	require.Len(t, balance, 1)
	assert.Equal(t, BalancePayload{Balance: 900}, balance[0].Data)

	strips := stripsOf(send, TrackSpin)
	require.Len(t, strips, 1)
	require.Len(t, strips[0].Slots, 60)
	assert.Equal(t, items[2].Gift.ID, strips[0].Slots[48].GiftID)
	assert.Equal(t, "rou_48", strips[0].Slots[48].NodeID)

	translates := send.ofType(CommandTranslate)
	require.Len(t, translates, 1)
	tr := translates[0].Data.(TranslatePayload)
	assert.Equal(t, int64(10), tr.DurationMS)
	// The target slot centre lands on the container centre.
	assert.InDelta(t, -(4820-20+45-200), tr.Offset, 0.001)

	assert.Equal(t, SlotPayload{Track: TrackSpin, Slot: 48}, send.ofType(CommandHighlight)[0].Data)

	reveal := send.ofType(CommandReveal)[0].Data.(RevealPayload)
	assert.Equal(t, items[2].Gift.ID, reveal.Gift.ID)
	assert.False(t, reveal.Mismatch)

	result, ok := mountOf(send, rendering.ResultNodeID)
	require.True(t, ok)
	assert.Equal(t, 150, result.Size)

	// Only the result tile outlives the spin.
	assert.Equal(t, 1, s.Rendering().Manager().Live())
	assert.Equal(t, 0, int(cases.timerHits.Load()))
	assert.Equal(t, 0, send.count(CommandNotify))
}

func TestSession_OpenFreeCaseResyncsTimer(t *testing.T) {
	items := caseItems(3)
	cases := &fakeCases{
		items:  items,
		result: models.OpenResult{Gift: items[0].Gift, Balance: 50},
		timer:  models.FreeTimerState{Available: false, RemainingSeconds: 86399},
	}
	send := &recordingSender{}
	s := newTestSession(t, cases, 7, send)
	answerMeasures(send, s)

	require.NoError(t, s.Handle(openCaseMessage(1, true)))
	require.Eventually(t, func() bool { return send.count(CommandReveal) == 1 }, waitFor, time.Millisecond)

	assert.Equal(t, int32(1), cases.timerHits.Load())
	timers := send.ofType(CommandFreeTimer)
	require.NotEmpty(t, timers)
	assert.Equal(t, FreeTimerPayload{Available: false, RemainingSeconds: 86399, Text: "23:59:59"}, timers[0].Data)
}

func TestSession_OpenCaseRevealsWhenTrackNotMeasurable(t *testing.T) {
	items := caseItems(3)
	cases := &fakeCases{items: items, result: models.OpenResult{Gift: items[0].Gift, Balance: 10}}
	send := &recordingSender{}
	s := newTestSession(t, cases, 7, send)

	send.mu.Lock()
	send.onSend = func(cmd Command) {
		if cmd.Type != CommandMeasure {
			return
		}
		reply := fmt.Sprintf(`{"type":"geometry","request_id":%q,"data":{"error":"track hidden"}}`, cmd.RequestID)
		go func() { _ = s.Handle([]byte(reply)) }()
	}
	send.mu.Unlock()

	require.NoError(t, s.Handle(openCaseMessage(1, false)))
	require.Eventually(t, func() bool { return send.count(CommandReveal) == 1 }, waitFor, time.Millisecond)

	assert.Equal(t, 0, send.count(CommandTranslate))
	assert.Equal(t, 1, send.count(CommandHighlight))
	assert.Equal(t, 0, send.count(CommandNotify))
}

func TestSession_OpenCaseFailure(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
	}{
		{
			name:    "business failure is shown as worded",
			err:     &case_api_client.APIError{Endpoint: "/api/open-case", Message: "Insufficient balance"},
			message: "Insufficient balance",
		},
		{
			name:    "transport failure is generic",
			err:     errors.New("dial tcp: connection refused"),
			message: openFailedMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cases := &fakeCases{items: caseItems(3), openErr: tt.err}
			send := &recordingSender{}
			s := newTestSession(t, cases, 7, send)

			require.NoError(t, s.Handle(openCaseMessage(1, true)))
			require.Eventually(t, func() bool { return send.count(CommandNotify) == 1 }, waitFor, time.Millisecond)

			assert.Equal(t, NotifyPayload{Level: notifyError, Message: tt.message}, send.ofType(CommandNotify)[0].Data)
			assert.Equal(t, 0, send.count(CommandBalance))
			assert.Empty(t, stripsOf(send, TrackSpin))
			// A failed free open leaves the timer alone.
			assert.Equal(t, int32(0), cases.timerHits.Load())
			assert.Eventually(t, func() bool { return !s.opening.Load() }, waitFor, time.Millisecond)
		})
	}
}

func TestSession_OpenCaseWhileOpening(t *testing.T) {
	items := caseItems(3)
	gate := make(chan struct{})
	cases := &fakeCases{items: items, result: models.OpenResult{Gift: items[1].Gift}, openGate: gate}
	send := &recordingSender{}
	s := newTestSession(t, cases, 7, send)
	answerMeasures(send, s)

	require.NoError(t, s.Handle(openCaseMessage(1, false)))
	require.NoError(t, s.Handle(openCaseMessage(1, false)))

	notes := send.ofType(CommandNotify)
	require.Len(t, notes, 1)
	assert.Equal(t, NotifyPayload{Level: notifyInfo, Message: busyMessage}, notes[0].Data)

	close(gate)
	require.Eventually(t, func() bool { return send.count(CommandReveal) == 1 }, waitFor, time.Millisecond)

	cases.mu.Lock()
	defer cases.mu.Unlock()
	assert.Equal(t, 1, cases.opens)
}

func TestSession_OpenCaseWithoutItems(t *testing.T) {
	won := models.Gift{ID: 77, Name: "Durov's Cap", Rarity: models.RarityLegendary}
	cases := &fakeCases{itemsErr: errors.New("timeout"), result: models.OpenResult{Gift: won}}
	send := &recordingSender{}
	s := newTestSession(t, cases, 7, send)
	answerMeasures(send, s)

	require.NoError(t, s.Handle(openCaseMessage(1, false)))
	require.Eventually(t, func() bool { return send.count(CommandReveal) == 1 }, waitFor, time.Millisecond)

	strips := stripsOf(send, TrackSpin)
	require.Len(t, strips, 1)
	for _, slot := range strips[0].Slots {
		assert.Equal(t, won.ID, slot.GiftID)
	}
}

func TestSession_PreviewAndLeave(t *testing.T) {
	cases := &fakeCases{items: caseItems(5)}
	send := &recordingSender{}
	s := newTestSession(t, cases, 0, send)

	require.NoError(t, s.Handle([]byte(`{"type":"preview","data":{"case_id":3}}`)))
	require.Eventually(t, func() bool { return send.count(CommandOffset) > 2 }, waitFor, time.Millisecond)
	require.Eventually(t, func() bool { return s.Rendering().Manager().Live() == 45 }, waitFor, time.Millisecond)

	strips := stripsOf(send, TrackPreview)
	require.Len(t, strips, 1)
	assert.Len(t, strips[0].Slots, 40)
	assert.Equal(t, 108, strips[0].TileSize)

	grid, ok := mountOf(send, rendering.PreviewNodeID(3, 4))
	require.True(t, ok)
	assert.Equal(t, 80, grid.Size)

	require.NoError(t, s.Handle([]byte(`{"type":"screen","data":{"name":"main"}}`)))
	assert.Equal(t, 0, s.Rendering().Manager().Live())
	assert.Equal(t, 45, send.count(CommandDestroy))

	offsets := send.count(CommandOffset)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, offsets, send.count(CommandOffset), "preview kept scrolling after leaving the screen")
}

func TestSession_PreviewFailure(t *testing.T) {
	cases := &fakeCases{itemsErr: errors.New("bad gateway")}
	send := &recordingSender{}
	s := newTestSession(t, cases, 0, send)

	require.NoError(t, s.Handle([]byte(`{"type":"preview","data":{"case_id":3}}`)))
	require.Eventually(t, func() bool { return send.count(CommandNotify) == 1 }, waitFor, time.Millisecond)
	assert.Equal(t, NotifyPayload{Level: notifyError, Message: previewFailedMessage}, send.ofType(CommandNotify)[0].Data)
	assert.Empty(t, stripsOf(send, TrackPreview))
}

func TestSession_RenderTiles(t *testing.T) {
	send := &recordingSender{}
	s := newTestSession(t, &fakeCases{}, 0, send)

	msg := `{"type":"render_tile","data":{"tiles":[
		{"node_id":"inv_1","gift_id":121},
		{"node_id":"inv_2","gift_id":1,"size":64},
		{"gift_id":5}
	]}}`
	require.NoError(t, s.Handle([]byte(msg)))
	require.Eventually(t, func() bool { return send.count(CommandMount) == 2 }, waitFor, time.Millisecond)

	shipped := 0
	for _, c := range send.ofType(CommandMount) {
		p := c.Data.(MountPayload)
		assert.Equal(t, 1, p.Key)
		if len(p.Animation) > 0 {
			shipped++
		}
	}
	assert.Equal(t, 1, shipped)

	inv2, ok := mountOf(send, "inv_2")
	require.True(t, ok)
	assert.Equal(t, 64, inv2.Size)
}

func TestSession_VisibilityDrivesPlayback(t *testing.T) {
	send := &recordingSender{}
	s := newTestSession(t, &fakeCases{}, 0, send)

	require.NoError(t, s.Handle([]byte(`{"type":"viewport","data":{"x":0,"y":0,"w":390,"h":844}}`)))
	require.NoError(t, s.Handle([]byte(`{"type":"bounds","data":{"nodes":[{"node_id":"inv_1","rect":{"x":0,"y":5000,"w":80,"h":80}}]}}`)))
	require.NoError(t, s.Handle([]byte(`{"type":"render_tile","data":{"tiles":[{"node_id":"inv_1","key":9}]}}`)))

	// Mounted off screen, so it starts paused.
	require.Eventually(t, func() bool { return send.count(CommandPause) == 1 }, waitFor, time.Millisecond)

	require.NoError(t, s.Handle([]byte(`{"type":"visibility","data":{"node_id":"inv_1","visible":true}}`)))
	require.Eventually(t, func() bool { return send.count(CommandPlay) == 1 }, waitFor, time.Millisecond)

	require.NoError(t, s.Handle([]byte(`{"type":"viewport","data":{"x":0,"y":1000,"w":390,"h":844}}`)))
	require.Eventually(t, func() bool { return send.count(CommandPause) == 2 }, waitFor, time.Millisecond)
}

func TestSession_FreeTimerOnStart(t *testing.T) {
	cases := &fakeCases{timer: models.FreeTimerState{Available: false, RemainingSeconds: 125}}
	send := &recordingSender{}
	s := newTestSession(t, cases, 7, send)
	require.NotNil(t, s.Timer())

	s.Start()
	require.Eventually(t, func() bool { return send.count(CommandFreeTimer) >= 1 }, waitFor, time.Millisecond)

	first := send.ofType(CommandFreeTimer)[0].Data.(FreeTimerPayload)
	assert.False(t, first.Available)
	assert.Equal(t, "00:02:05", first.Text)
}

func TestSession_AnonymousHasNoTimer(t *testing.T) {
	cases := &fakeCases{}
	send := &recordingSender{}
	s := newTestSession(t, cases, 0, send)

	assert.Nil(t, s.Timer())
	s.Start()
	assert.Equal(t, int32(0), cases.timerHits.Load())
}

func TestSession_InvalidMessages(t *testing.T) {
	send := &recordingSender{}
	s := newTestSession(t, &fakeCases{}, 0, send)

	assert.Error(t, s.Handle([]byte(`{}`)))
	assert.Error(t, s.Handle([]byte(`{"type":"warp","data":{}}`)))
	assert.Error(t, s.Handle([]byte(`{"type":"open_case"}`)))
	assert.Empty(t, send.ofType(CommandNotify))
}

func TestSession_LateGeometryIsDropped(t *testing.T) {
	send := &recordingSender{}
	s := newTestSession(t, &fakeCases{}, 0, send)

	msg := `{"type":"geometry","request_id":"gone","data":{"geometry":{"container_left":0,"container_width":400,"slot_left":10,"slot_width":90}}}`
	assert.NoError(t, s.Handle([]byte(msg)))
}

// slowTimerCases answers the free-case check only after release, ignoring
// cancellation the way a request already on the wire does.
type slowTimerCases struct {
	fakeCases
	entered chan struct{}
	release chan struct{}
}

func (c *slowTimerCases) FreeCaseCheck(_ context.Context, _ int64) (models.FreeTimerState, error) {
	close(c.entered)
	<-c.release
	return models.FreeTimerState{Available: false, RemainingSeconds: 86400}, nil
}

func TestSession_CloseDuringTimerSync(t *testing.T) {
	cases := &slowTimerCases{entered: make(chan struct{}), release: make(chan struct{})}
	send := &recordingSender{}
	s := NewSession(SessionConfig{
		Rendering: quickConfig(),
		Resolver:  &docResolver{},
		Cases:     cases,
		Publisher: nopPublisher{},
		Clock:     clockwork.NewRealClock(),
		TimerTick: time.Millisecond,
	}, "closing", 7, send)

	s.Start()
	<-cases.entered

	closed := make(chan struct{})
	go func() {
		s.Close()
		close(closed)
	}()
	// Let Close stop the timer before the response lands.
	time.Sleep(20 * time.Millisecond)
	close(cases.release)
	<-closed

	assert.False(t, s.Timer().TickerRunning())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, send.count(CommandFreeTimer))
}
