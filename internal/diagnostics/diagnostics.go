package diagnostics

import (
	"runtime"

	"github.com/sirupsen/logrus"

	"github.com/i474232898/epd-weather/internal/logger"
)

// SignalReporter supplies the current radio signal strength of the uplink.
// ok is false when no reading is available.
type SignalReporter interface {
	RSSI() (dBm int, ok bool)
}

// NoSignal is a SignalReporter that never has a reading.
type NoSignal struct{}

// RSSI implements SignalReporter.
func (NoSignal) RSSI() (int, bool) { return 0, false }

// StaticSignal reports a fixed reading.
type StaticSignal int

// RSSI implements SignalReporter.
func (s StaticSignal) RSSI() (int, bool) { return int(s), true }

// SignalDescription buckets an RSSI reading the way the status bar labels it.
func SignalDescription(rssi int) string {
	switch {
	case rssi == 0:
		return "No Connection"
	case rssi >= -50:
		return "Excellent"
	case rssi >= -60:
		return "Good"
	case rssi >= -70:
		return "Fair"
	default:
		return "Weak"
	}
}

// LogHeapUsage logs the current heap figures at debug level.
func LogHeapUsage() {
	if !logger.Log.IsLevelEnabled(logrus.DebugLevel) {
		return
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	logger.Log.WithFields(logrus.Fields{
		"heap_sys":    m.HeapSys,
		"heap_alloc":  m.HeapAlloc,
		"heap_idle":   m.HeapIdle,
		"total_alloc": m.TotalAlloc,
		"num_gc":      m.NumGC,
	}).Debug("heap usage")
}
