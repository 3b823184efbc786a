package main

import (
	"encoding/json"
	"math/rand/v2"
	"time"
)

// reading is the payload a multi-sensor device emits: the relay uses the
// configured primary field as the reading value and keeps the rest as fields.
type reading struct {
	Gas       float64 `json:"gas"`
	Temp      float64 `json:"temp"`
	Sensor3   float64 `json:"sensor3"`
	Timestamp int64   `json:"timestamp"`
}

// generator produces a slow random walk so consecutive readings look plausible.
type generator struct {
	rng  *rand.Rand
	now  func() time.Time
	last reading
}

func newGenerator(seed int64) *generator {
	return &generator{
		rng:  rand.New(rand.NewPCG(uint64(seed), uint64(seed>>1))),
		now:  time.Now,
		last: reading{Gas: 400, Temp: 21.5, Sensor3: 50},
	}
}

func (g *generator) Next() ([]byte, error) {
	g.last.Gas = clamp(g.last.Gas+g.step(10), 0, 2000)
	g.last.Temp = clamp(g.last.Temp+g.step(0.5), -40, 85)
	g.last.Sensor3 = clamp(g.last.Sensor3+g.step(2), 0, 100)
	g.last.Timestamp = g.now().UnixMilli()
	return json.Marshal(g.last)
}

func (g *generator) step(scale float64) float64 {
	return (g.rng.Float64()*2 - 1) * scale
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}
