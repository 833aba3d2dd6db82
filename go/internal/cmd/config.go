package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mcdev12/caseroll/go/clients/asset_store_client"
	"github.com/mcdev12/caseroll/go/clients/case_api_client"
	"github.com/mcdev12/caseroll/go/internal/asset"
	"github.com/mcdev12/caseroll/go/internal/freetimer"
	"github.com/mcdev12/caseroll/go/internal/gateway"
	"github.com/mcdev12/caseroll/go/internal/rendering"
	"github.com/mcdev12/caseroll/go/internal/roulette"
	"gopkg.in/yaml.v3"
)

// Config is the environment of the daemon.
type Config struct {
	Port              string
	CaseAPIURL        string
	AssetBaseURL      string
	AssetCacheSize    int
	AssetFetchTimeout time.Duration
	NATSURL           string
	TuningFile        string
	LogLevel          string
	LogFormat         string
}

func configFromEnv() Config {
	return Config{
		Port:              getEnv("PORT", "8080"),
		CaseAPIURL:        getEnv("CASE_API_URL", case_api_client.DefaultBaseURL),
		AssetBaseURL:      getEnv("ASSET_BASE_URL", asset_store_client.DefaultBaseURL),
		AssetCacheSize:    getEnvAsInt("ASSET_CACHE_SIZE", asset.DefaultCacheSize),
		AssetFetchTimeout: getEnvAsDuration("ASSET_FETCH_TIMEOUT", 15*time.Second),
		NATSURL:           getEnv("NATS_URL", ""),
		TuningFile:        getEnv("TUNING_FILE", "config/roulette.yaml"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// Tuning is the roulette.yaml file. Every field is optional; zero values
// keep the built-in defaults.
type Tuning struct {
	Preview struct {
		Slots     int           `yaml:"slots"`
		SlotWidth float64       `yaml:"slot_width"`
		TileSize  int           `yaml:"tile_size"`
		Speed     float64       `yaml:"speed"`
		Frame     time.Duration `yaml:"frame"`
	} `yaml:"preview"`

	Spin struct {
		Slots          int           `yaml:"slots"`
		TargetSlot     *int          `yaml:"target_slot"`
		TileSize       int           `yaml:"tile_size"`
		LayoutDelay    time.Duration `yaml:"layout_delay"`
		HighlightPause time.Duration `yaml:"highlight_pause"`
		RevealPause    time.Duration `yaml:"reveal_pause"`
	} `yaml:"spin"`

	Patterns []PatternTuning `yaml:"patterns"`

	Tiles struct {
		RootMargin     *float64      `yaml:"root_margin"`
		Concurrency    int           `yaml:"concurrency"`
		GridSize       int           `yaml:"grid_size"`
		ResultSize     int           `yaml:"result_size"`
		Placeholder    string        `yaml:"placeholder"`
		MeasureTimeout time.Duration `yaml:"measure_timeout"`
	} `yaml:"tiles"`

	FreeTimer struct {
		Tick   time.Duration `yaml:"tick"`
		Resync time.Duration `yaml:"resync"`
	} `yaml:"free_timer"`
}

// PatternTuning is one spin pattern; easing is [x1, y1, x2, y2].
type PatternTuning struct {
	Name        string        `yaml:"name"`
	Easing      []float64     `yaml:"easing"`
	Duration    time.Duration `yaml:"duration"`
	ExtraOffset float64       `yaml:"extra_offset"`
}

func (p PatternTuning) pattern() (roulette.Pattern, error) {
	if p.Name == "" {
		return roulette.Pattern{}, errors.New("pattern without name")
	}
	if len(p.Easing) != 4 {
		return roulette.Pattern{}, fmt.Errorf("pattern %s: easing needs 4 control values, got %d", p.Name, len(p.Easing))
	}
	if p.Easing[0] < 0 || p.Easing[0] > 1 || p.Easing[2] < 0 || p.Easing[2] > 1 {
		return roulette.Pattern{}, fmt.Errorf("pattern %s: easing x values must be within [0, 1]", p.Name)
	}
	if p.Duration <= 0 {
		return roulette.Pattern{}, fmt.Errorf("pattern %s: duration must be positive", p.Name)
	}
	return roulette.Pattern{
		Name:        p.Name,
		Easing:      roulette.CubicBezier{X1: p.Easing[0], Y1: p.Easing[1], X2: p.Easing[2], Y2: p.Easing[3]},
		Duration:    p.Duration,
		ExtraOffset: p.ExtraOffset,
	}, nil
}

// loadTuning reads the tuning file. A missing file yields the defaults.
func loadTuning(path string) (*Tuning, error) {
	var tuning Tuning
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &tuning, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read tuning file: %w", err)
	}
	if err := yaml.Unmarshal(data, &tuning); err != nil {
		return nil, fmt.Errorf("failed to parse tuning file: %w", err)
	}
	return &tuning, nil
}

// sessionConfig maps the tuning onto the per-connection configuration.
// Shared dependencies are filled in by setupServices.
func (t *Tuning) sessionConfig() (gateway.SessionConfig, error) {
	rc := rendering.DefaultConfig()
	r := &rc.Roulette

	setInt(&r.PreviewSlots, t.Preview.Slots)
	setFloat(&r.PreviewSlotWidth, t.Preview.SlotWidth)
	setInt(&r.PreviewTileSize, t.Preview.TileSize)
	setFloat(&r.PreviewSpeed, t.Preview.Speed)
	setDuration(&r.FrameInterval, t.Preview.Frame)

	setInt(&r.SpinSlots, t.Spin.Slots)
	setInt(&r.SpinTileSize, t.Spin.TileSize)
	setDuration(&r.LayoutDelay, t.Spin.LayoutDelay)
	setDuration(&r.HighlightPause, t.Spin.HighlightPause)
	setDuration(&r.RevealPause, t.Spin.RevealPause)
	switch {
	case t.Spin.TargetSlot != nil:
		if *t.Spin.TargetSlot < 0 {
			return gateway.SessionConfig{}, fmt.Errorf("spin.target_slot %d is negative", *t.Spin.TargetSlot)
		}
		r.TargetSlot = *t.Spin.TargetSlot
	case t.Spin.Slots > 0:
		r.TargetSlot = r.SpinSlots * 4 / 5
	}
	if err := r.Validate(); err != nil {
		return gateway.SessionConfig{}, fmt.Errorf("invalid spin tuning: %w", err)
	}

	if len(t.Patterns) > 0 {
		r.Patterns = make([]roulette.Pattern, 0, len(t.Patterns))
		for _, pt := range t.Patterns {
			p, err := pt.pattern()
			if err != nil {
				return gateway.SessionConfig{}, err
			}
			r.Patterns = append(r.Patterns, p)
		}
	}

	if t.Tiles.RootMargin != nil {
		rc.RootMargin = *t.Tiles.RootMargin
	}
	setInt(&rc.TileConcurrency, t.Tiles.Concurrency)
	setInt(&rc.GridTileSize, t.Tiles.GridSize)
	setInt(&rc.ResultTileSize, t.Tiles.ResultSize)

	return gateway.SessionConfig{
		Rendering:      rc,
		PlaceholderSrc: t.Tiles.Placeholder,
		MeasureTimeout: t.Tiles.MeasureTimeout,
		TimerTick:      orDuration(t.FreeTimer.Tick, freetimer.DefaultTickInterval),
		TimerResync:    orDuration(t.FreeTimer.Resync, freetimer.DefaultResyncInterval),
	}, nil
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setFloat(dst *float64, v float64) {
	if v > 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}

func orDuration(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}
