package utils

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// TimingStats holds timing information for the stages of a CLI run.
type TimingStats struct {
	TotalTime     time.Duration
	ConfigTime    time.Duration
	ModelInitTime time.Duration
	WeightsIOTime time.Duration
	PredictTime   time.Duration
}

// Track returns a func that adds the elapsed time since Track to *d.
//
//	defer utils.Track(&stats.PredictTime)()
func Track(d *time.Duration) func() {
	start := time.Now()
	return func() { *d += time.Since(start) }
}

// LogTimingStats logs each stage in micro-seconds at debug level.
func LogTimingStats(stats *TimingStats) {
	log.WithFields(log.Fields{
		"total_us":      DurationUS(stats.TotalTime),
		"config_us":     DurationUS(stats.ConfigTime),
		"model_init_us": DurationUS(stats.ModelInitTime),
		"weights_io_us": DurationUS(stats.WeightsIOTime),
		"predict_us":    DurationUS(stats.PredictTime),
	}).Debug("timing statistics")
}

// DurationUS converts any time.Duration to micro-seconds as float64
func DurationUS(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1_000.0
}
