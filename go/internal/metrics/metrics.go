package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	assetFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "caseroll",
			Subsystem: "asset",
			Name:      "fetches_total",
			Help:      "Remote asset fetches by outcome.",
		},
		[]string{"outcome"},
	)

	assetLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "caseroll",
			Subsystem: "asset",
			Name:      "cache_lookups_total",
			Help:      "Asset cache lookups by result (hit, miss, shared).",
		},
		[]string{"result"},
	)

	assetDecodeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "caseroll",
			Subsystem: "asset",
			Name:      "decode_failures_total",
			Help:      "Asset payloads that could not be decoded.",
		},
		[]string{"reason"},
	)

	assetDecodeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "caseroll",
			Subsystem: "asset",
			Name:      "decode_duration_seconds",
			Help:      "Time spent decompressing and parsing an asset.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		},
	)

	liveInstances = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "caseroll",
			Subsystem: "tiles",
			Name:      "live_instances",
			Help:      "Animation players currently alive across all sessions.",
		},
	)

	observedNodes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "caseroll",
			Subsystem: "tiles",
			Name:      "observed_nodes",
			Help:      "Nodes currently tracked by viewport observers.",
		},
	)

	tileRenders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "caseroll",
			Subsystem: "tiles",
			Name:      "renders_total",
			Help:      "Tile renders by outcome (animated, placeholder, discarded).",
		},
		[]string{"outcome"},
	)

	spins = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "caseroll",
			Subsystem: "roulette",
			Name:      "spins_total",
			Help:      "Completed spins by pattern and mismatch flag.",
		},
		[]string{"pattern", "mismatch"},
	)

	timerSyncs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "caseroll",
			Subsystem: "free_timer",
			Name:      "syncs_total",
			Help:      "Free timer syncs by outcome.",
		},
		[]string{"outcome"},
	)

	sessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "caseroll",
			Subsystem: "gateway",
			Name:      "sessions",
			Help:      "Connected client sessions.",
		},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		assetFetches,
		assetLookups,
		assetDecodeFailures,
		assetDecodeDuration,
		liveInstances,
		observedNodes,
		tileRenders,
		spins,
		timerSyncs,
		sessions,
	)
}

// Handler exposes the registry over HTTP.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func RecordAssetFetch(success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	assetFetches.WithLabelValues(outcome).Inc()
}

func RecordCacheLookup(result string) {
	assetLookups.WithLabelValues(result).Inc()
}

func RecordDecodeFailure(reason string) {
	assetDecodeFailures.WithLabelValues(reason).Inc()
}

func ObserveDecodeSeconds(seconds float64) {
	assetDecodeDuration.Observe(seconds)
}

func AddLiveInstances(delta int) {
	liveInstances.Add(float64(delta))
}

func AddObservedNodes(delta int) {
	observedNodes.Add(float64(delta))
}

func RecordTileRender(outcome string) {
	tileRenders.WithLabelValues(outcome).Inc()
}

func RecordSpin(pattern string, mismatch bool) {
	spins.WithLabelValues(pattern, strconv.FormatBool(mismatch)).Inc()
}

func RecordTimerSync(success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	timerSyncs.WithLabelValues(outcome).Inc()
}

func AddSessions(delta int) {
	sessions.Add(float64(delta))
}
