package domain

import (
	"maps"
	"time"
)

// Reading is one telemetry data point. It is immutable once constructed.
type Reading struct {
	Timestamp time.Time          `json:"timestamp"`
	Value     float64            `json:"value"`
	Sensor    string             `json:"sensor,omitempty"`
	Fields    map[string]float64 `json:"fields,omitempty"`
}

// NewReading builds a Reading, copying fields so the caller cannot mutate it afterwards.
func NewReading(ts time.Time, value float64, sensor string, fields map[string]float64) Reading {
	r := Reading{Timestamp: ts.UTC(), Value: value, Sensor: sensor}
	if len(fields) > 0 {
		r.Fields = maps.Clone(fields)
	}
	return r
}
