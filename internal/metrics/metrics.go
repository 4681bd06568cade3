package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gauges
var (
	ActiveRecordings = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voicenote_active_recordings",
		Help: "Number of capture sessions currently recording",
	})
	EngineReady = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voicenote_engine_ready",
		Help: "1 when a transcoding engine instance is loaded",
	})
)

// Counters
var (
	RecordingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicenote_recordings_total",
		Help: "Recording sessions by outcome",
	}, []string{"outcome"})
	EngineLoadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicenote_engine_loads_total",
		Help: "Engine load attempts by outcome",
	}, []string{"outcome"})
	EngineLoadJoinsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicenote_engine_load_joins_total",
		Help: "Acquire calls that joined a load already in flight",
	})
	TranscodesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicenote_transcodes_total",
		Help: "Transcode calls by outcome",
	}, []string{"outcome"})
	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicenote_uploads_total",
		Help: "Voice note sends by outcome",
	}, []string{"outcome"})
)

// Histograms
var (
	EngineLoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voicenote_engine_load_duration_seconds",
		Help:    "Time spent loading the transcoding engine",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})
	TranscodeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voicenote_transcode_duration_seconds",
		Help:    "Time spent converting a recording to Ogg/Opus",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})
	RecordedBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voicenote_recorded_bytes",
		Help:    "Size of stopped recordings in bytes",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
	})
)
