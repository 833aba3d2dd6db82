package gateway

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/mcdev12/caseroll/go/internal/models"
	"github.com/mcdev12/caseroll/go/internal/roulette"
	"github.com/mcdev12/caseroll/go/internal/tiles"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// CommandType names an instruction sent to the browser shim.
type CommandType string

const (
	CommandMount       CommandType = "mount"
	CommandPlaceholder CommandType = "placeholder"
	CommandClear       CommandType = "clear"
	CommandPlay        CommandType = "play"
	CommandPause       CommandType = "pause"
	CommandDestroy     CommandType = "destroy"
	CommandStrip       CommandType = "strip"
	CommandOffset      CommandType = "offset"
	CommandTranslate   CommandType = "translate"
	CommandHighlight   CommandType = "highlight"
	CommandMeasure     CommandType = "measure"
	CommandReveal      CommandType = "reveal"
	CommandFreeTimer   CommandType = "free_timer"
	CommandBalance     CommandType = "balance"
	CommandNotify      CommandType = "notify"
)

// Track names used in strip commands.
const (
	TrackPreview = "preview"
	TrackSpin    = "spin"
)

// Command is one server to shim message.
type Command struct {
	Type      CommandType `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// MountPayload asks the shim to start a looping, autoplaying animation in a
// node. Animation is omitted when the shim already holds the document for
// Key.
type MountPayload struct {
	NodeID    string              `json:"node_id"`
	Key       int                 `json:"key"`
	Size      int                 `json:"size"`
	Loop      bool                `json:"loop"`
	Autoplay  bool                `json:"autoplay"`
	Animation jsoniter.RawMessage `json:"animation,omitempty"`
}

type NodePayload struct {
	NodeID string `json:"node_id"`
}

type PlaceholderPayload struct {
	NodeID string `json:"node_id"`
	Src    string `json:"src"`
}

// SlotView is one slot container of a strip.
type SlotView struct {
	NodeID string        `json:"node_id"`
	GiftID int64         `json:"gift_id"`
	Rarity models.Rarity `json:"rarity"`
}

type StripPayload struct {
	Track    string     `json:"track"`
	TileSize int        `json:"tile_size"`
	Slots    []SlotView `json:"slots"`
}

type OffsetPayload struct {
	Track  string  `json:"track"`
	Offset float64 `json:"offset"`
}

type TranslatePayload struct {
	Track      string  `json:"track"`
	Offset     float64 `json:"offset"`
	DurationMS int64   `json:"duration_ms"`
	Easing     string  `json:"easing"`
}

type SlotPayload struct {
	Track string `json:"track"`
	Slot  int    `json:"slot"`
}

type RevealPayload struct {
	NodeID     string      `json:"node_id"`
	Gift       models.Gift `json:"gift"`
	Pattern    string      `json:"pattern"`
	TargetSlot int         `json:"target_slot"`
	Mismatch   bool        `json:"mismatch"`
}

type FreeTimerPayload struct {
	Available        bool   `json:"available"`
	RemainingSeconds int    `json:"remaining_seconds"`
	Text             string `json:"text"`
}

type BalancePayload struct {
	Balance int64 `json:"balance"`
}

type NotifyPayload struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// ClientMessageType names a shim to server message.
type ClientMessageType string

const (
	MessageViewport   ClientMessageType = "viewport"
	MessageBounds     ClientMessageType = "bounds"
	MessageVisibility ClientMessageType = "visibility"
	MessageGeometry   ClientMessageType = "geometry"
	MessageScreen     ClientMessageType = "screen"
	MessagePreview    ClientMessageType = "preview"
	MessageOpenCase   ClientMessageType = "open_case"
	MessageRenderTile ClientMessageType = "render_tile"
)

// ClientMessage is one shim to server message.
type ClientMessage struct {
	Type      ClientMessageType   `json:"type"`
	RequestID string              `json:"request_id,omitempty"`
	Data      jsoniter.RawMessage `json:"data"`
}

type NodeBounds struct {
	NodeID string     `json:"node_id"`
	Rect   tiles.Rect `json:"rect"`
}

type BoundsPayload struct {
	Nodes []NodeBounds `json:"nodes"`
}

type GeometryPayload struct {
	Geometry roulette.Geometry `json:"geometry"`
	Error    string            `json:"error,omitempty"`
}

// ScreenPayload announces a screen switch. It tears down every tile and the
// preview; a spin already running still finishes and reveals.
type ScreenPayload struct {
	Name string `json:"name"`
}

type PreviewPayload struct {
	CaseID int64 `json:"case_id"`
}

type OpenCasePayload struct {
	CaseID int64 `json:"case_id"`
	IsFree bool  `json:"is_free"`
}

// TileRequest asks for an animated tile. Key wins over the gift fields when
// set.
type TileRequest struct {
	NodeID     string `json:"node_id"`
	Key        int    `json:"key,omitempty"`
	GiftID     int64  `json:"gift_id,omitempty"`
	GiftNumber int    `json:"gift_number,omitempty"`
	Size       int    `json:"size,omitempty"`
}

// AssetKey resolves the animation key of the request.
func (t TileRequest) AssetKey() int {
	if t.Key > 0 {
		return t.Key
	}
	return models.Gift{ID: t.GiftID, GiftNumber: t.GiftNumber}.AssetKey()
}

type RenderTilePayload struct {
	Tiles []TileRequest `json:"tiles"`
}

// ParseClientMessage decodes the envelope of a shim message.
func ParseClientMessage(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("invalid client message: %w", err)
	}
	if msg.Type == "" {
		return ClientMessage{}, fmt.Errorf("invalid client message: missing type")
	}
	return msg, nil
}

// ParsePayload decodes the data of a shim message into the matching
// payload type.
func ParsePayload(msg ClientMessage) (interface{}, error) {
	var payload interface{}
	switch msg.Type {
	case MessageViewport:
		payload = &tiles.Rect{}
	case MessageBounds:
		payload = &BoundsPayload{}
	case MessageVisibility:
		payload = &tiles.Visibility{}
	case MessageGeometry:
		payload = &GeometryPayload{}
	case MessageScreen:
		payload = &ScreenPayload{}
	case MessagePreview:
		payload = &PreviewPayload{}
	case MessageOpenCase:
		payload = &OpenCasePayload{}
	case MessageRenderTile:
		payload = &RenderTilePayload{}
	default:
		return nil, fmt.Errorf("unknown client message type %q", msg.Type)
	}
	if len(msg.Data) == 0 {
		return nil, fmt.Errorf("%s: missing data", msg.Type)
	}
	if err := json.Unmarshal(msg.Data, payload); err != nil {
		return nil, fmt.Errorf("%s: %w", msg.Type, err)
	}
	return payload, nil
}
