package gateway

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/caseroll/go/clients/case_api_client"
	"github.com/mcdev12/caseroll/go/internal/events"
	"github.com/mcdev12/caseroll/go/internal/freetimer"
	"github.com/mcdev12/caseroll/go/internal/models"
	"github.com/mcdev12/caseroll/go/internal/rendering"
	"github.com/mcdev12/caseroll/go/internal/roulette"
	"github.com/mcdev12/caseroll/go/internal/tiles"
	"github.com/rs/zerolog/log"
)

const (
	notifyError = "error"
	notifyInfo  = "info"

	openFailedMessage    = "Failed to open case"
	previewFailedMessage = "Failed to load case"
	busyMessage          = "A case is already being opened"
	spinFailedMessage    = "Failed to show the result, check your inventory"
)

// CaseService is the slice of the case API a session talks to.
type CaseService interface {
	CaseItems(ctx context.Context, caseID int64) ([]models.CaseItem, error)
	OpenCase(ctx context.Context, caseID, userID int64) (models.OpenResult, error)
	FreeCaseCheck(ctx context.Context, userID int64) (models.FreeTimerState, error)
}

// SessionConfig holds what every session shares.
type SessionConfig struct {
	Rendering      rendering.Config
	Resolver       tiles.Resolver
	Cases          CaseService
	Publisher      events.Publisher
	Clock          clockwork.Clock
	MeasureTimeout time.Duration
	PlaceholderSrc string
	TimerTick      time.Duration
	TimerResync    time.Duration
	EngineOptions  []roulette.Option
}

// Session is the server half of one connected screen. It owns the rendering
// context and free-case timer of the client and translates shim messages
// into operations on them.
type Session struct {
	id     string
	userID int64
	send   Sender
	cases  CaseService

	rc        *rendering.Context
	timer     *freetimer.Synchronizer
	measures  *measurements
	preview   *previewTrack
	spin      *spinTrack
	presenter *remotePresenter

	ctx     context.Context
	cancel  context.CancelFunc
	opening atomic.Bool
	wg      sync.WaitGroup
}

// NewSession creates a session for userID. Anonymous sessions (userID 0) get
// no free-case timer.
func NewSession(cfg SessionConfig, id string, userID int64, send Sender) *Session {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	engineOpts := append([]roulette.Option{roulette.WithClock(cfg.Clock)}, cfg.EngineOptions...)
	opts := []rendering.Option{
		rendering.WithSessionID(id),
		rendering.WithEngineOptions(engineOpts...),
	}
	if cfg.Publisher != nil {
		opts = append(opts, rendering.WithPublisher(cfg.Publisher))
	}

	s := &Session{
		id:        id,
		userID:    userID,
		send:      send,
		cases:     cfg.Cases,
		rc:        rendering.New(cfg.Rendering, cfg.Resolver, newRemoteRenderer(send, cfg.PlaceholderSrc), opts...),
		measures:  newMeasurements(cfg.Clock, cfg.MeasureTimeout),
		preview:   &previewTrack{send: send},
		presenter: &remotePresenter{send: send},
	}
	s.spin = &spinTrack{send: send, measures: s.measures}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if userID > 0 && cfg.Cases != nil {
		s.timer = freetimer.New(cfg.Cases, userID,
			freetimer.WithClock(cfg.Clock),
			freetimer.WithIntervals(cfg.TimerTick, cfg.TimerResync),
		)
		s.timer.OnChange(s.pushFreeTimer)
	}
	return s
}

// ID identifies the session in logs and events.
func (s *Session) ID() string { return s.id }

// Rendering exposes the rendering context of the session.
func (s *Session) Rendering() *rendering.Context { return s.rc }

// Timer is the free-case synchronizer, nil for anonymous sessions.
func (s *Session) Timer() *freetimer.Synchronizer { return s.timer }

// Start performs the initial free-case sync and keeps resyncing in the
// background until Close.
func (s *Session) Start() {
	if s.timer == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		// Errors are logged by the synchronizer; the next resync retries.
		_ = s.timer.Sync(s.ctx)
		s.timer.ResyncLoop(s.ctx)
	}()
}

// Close cancels everything the session started and destroys its tiles.
func (s *Session) Close() {
	s.cancel()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.rc.Close()
	s.wg.Wait()
}

// Handle processes one raw shim message. Long running work (case loading,
// spins) continues in the background so the caller can keep reading.
func (s *Session) Handle(data []byte) error {
	msg, err := ParseClientMessage(data)
	if err != nil {
		return err
	}
	payload, err := ParsePayload(msg)
	if err != nil {
		return err
	}

	switch p := payload.(type) {
	case *tiles.Rect:
		s.rc.Observer().SetViewport(*p)
	case *BoundsPayload:
		for _, nb := range p.Nodes {
			s.rc.Observer().SetBounds(nb.NodeID, nb.Rect)
		}
	case *tiles.Visibility:
		s.rc.Observer().Report(*p)
	case *GeometryPayload:
		if !s.measures.resolve(msg.RequestID, *p) {
			log.Debug().Str("session_id", s.id).Str("request_id", msg.RequestID).Msg("late geometry reply dropped")
		}
	case *ScreenPayload:
		n := s.rc.TeardownAll()
		log.Debug().Str("session_id", s.id).Str("screen", p.Name).Int("destroyed", n).Msg("screen changed")
	case *PreviewPayload:
		s.goBackground(func(ctx context.Context) { s.startPreview(ctx, p.CaseID) })
	case *OpenCasePayload:
		s.openCase(*p)
	case *RenderTilePayload:
		s.renderTiles(p.Tiles)
	}
	return nil
}

func (s *Session) goBackground(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}

func (s *Session) startPreview(ctx context.Context, caseID int64) {
	items, err := s.cases.CaseItems(ctx, caseID)
	if err != nil {
		log.Warn().Err(err).Str("session_id", s.id).Int64("case_id", caseID).Msg("failed to load case items")
		s.notify(notifyError, userMessage(err, previewFailedMessage))
		return
	}
	if err := s.rc.StartPreview(ctx, caseID, items, s.preview); err != nil {
		log.Warn().Err(err).Str("session_id", s.id).Int64("case_id", caseID).Msg("failed to start preview")
	}
}

// openCase asks the server to open a case and, once confirmed, presents the
// result. Only one open runs at a time per session.
func (s *Session) openCase(p OpenCasePayload) {
	if !s.opening.CompareAndSwap(false, true) {
		s.notify(notifyInfo, busyMessage)
		return
	}
	s.goBackground(func(ctx context.Context) {
		defer s.opening.Store(false)

		res, err := s.cases.OpenCase(ctx, p.CaseID, s.userID)
		if err != nil {
			log.Warn().
				Err(err).
				Str("session_id", s.id).
				Int64("case_id", p.CaseID).
				Int64("user_id", s.userID).
				Msg("open case failed")
			s.notify(notifyError, userMessage(err, openFailedMessage))
			return
		}
		s.send.Send(Command{Type: CommandBalance, Data: BalancePayload{Balance: res.Balance}})

		if p.IsFree && s.timer != nil {
			_ = s.timer.Sync(ctx)
		}

		items, err := s.cases.CaseItems(ctx, p.CaseID)
		if err != nil || len(items) == 0 {
			// The strip is filled with the won item alone.
			log.Warn().Err(err).Str("session_id", s.id).Int64("case_id", p.CaseID).Msg("case items unavailable for spin")
			items = []models.CaseItem{{Gift: res.Gift, DropChance: 100}}
		}

		req := rendering.SpinRequest{CaseID: p.CaseID, UserID: s.userID, Result: res, Items: items}
		spin, err := s.rc.RunSpin(ctx, req, s.spin, s.presenter)
		if err != nil {
			log.Warn().Err(err).Str("session_id", s.id).Int64("case_id", p.CaseID).Msg("spin aborted")
			if !errors.Is(err, context.Canceled) {
				s.notify(notifyError, spinFailedMessage)
			}
			return
		}
		log.Info().
			Str("session_id", s.id).
			Str("spin_id", spin.ID.String()).
			Int64("case_id", p.CaseID).
			Int64("gift_id", spin.Item.Gift.ID).
			Str("pattern", spin.Pattern.Name).
			Msg("case opened")
	})
}

func (s *Session) renderTiles(reqs []TileRequest) {
	ts := make([]tiles.Tile, 0, len(reqs))
	for _, r := range reqs {
		if r.NodeID == "" {
			continue
		}
		ts = append(ts, tiles.Tile{NodeID: r.NodeID, Key: r.AssetKey(), Size: r.Size})
	}
	if len(ts) == 0 {
		return
	}
	done := s.rc.RenderTiles(ts)
	s.goBackground(func(ctx context.Context) {
		select {
		case degraded := <-done:
			if degraded > 0 {
				log.Debug().Str("session_id", s.id).Int("tiles", len(ts)).Int("degraded", degraded).Msg("tiles rendered")
			}
		case <-ctx.Done():
		}
	})
}

func (s *Session) pushFreeTimer(st models.FreeTimerState) {
	s.send.Send(Command{Type: CommandFreeTimer, Data: FreeTimerPayload{
		Available:        st.Available,
		RemainingSeconds: st.RemainingSeconds,
		Text:             models.FormatCountdown(st.RemainingSeconds),
	}})
}

func (s *Session) notify(level, message string) {
	s.send.Send(Command{Type: CommandNotify, Data: NotifyPayload{Level: level, Message: message}})
}

// userMessage shows business failures as the server worded them and hides
// everything else behind fallback.
func userMessage(err error, fallback string) string {
	var apiErr *case_api_client.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
