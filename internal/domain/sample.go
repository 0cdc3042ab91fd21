package domain

import "time"

// Sample is one telemetry reading from the sensor device. Every reading is
// optional so rows written by older firmware (no battery, no power) decode
// as null instead of zero.
type Sample struct {
	Voltage     *float64  `json:"voltaje"`
	Current     *float64  `json:"corriente"`
	Temperature *float64  `json:"temperatura"`
	Battery     *float64  `json:"bateria"`
	Power       *float64  `json:"potencia"`
	Timestamp   time.Time `json:"timestamp"`
}

// StoredSample is a Sample after persistence, carrying the id assigned by the
// store in insertion order.
type StoredSample struct {
	ID int64 `json:"id"`
	Sample
}

// TimestampPrecision is the resolution kept by every store backend.
const TimestampPrecision = time.Microsecond

// Normalize truncates the timestamp to the store precision and forces UTC so
// the persisted, broadcast and queried forms of a sample compare equal.
func (s Sample) Normalize() Sample {
	s.Timestamp = s.Timestamp.UTC().Truncate(TimestampPrecision)
	return s
}

// Float returns a pointer to v; handy for building samples in code.
func Float(v float64) *float64 { return &v }
