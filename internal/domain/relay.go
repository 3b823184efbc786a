package domain

import "context"

// BroadcastReport summarises one fan-out. Every viewer present in the
// snapshot is counted in exactly one bucket.
type BroadcastReport struct {
	Delivered           int `json:"delivered"`
	Dropped             int `json:"dropped"`
	SkippedDisconnected int `json:"skipped_disconnected"`
	Failed              int `json:"failed"`
}

// Total returns the number of viewers the broadcast considered.
func (r BroadcastReport) Total() int {
	return r.Delivered + r.Dropped + r.SkippedDisconnected + r.Failed
}

// Publisher accepts raw inbound payloads from any ingest path and fans them out.
// source identifies the ingest path for logs and metrics ("websocket", "http", "redis").
type Publisher interface {
	Publish(ctx context.Context, source string, raw []byte) (BroadcastReport, error)
}
