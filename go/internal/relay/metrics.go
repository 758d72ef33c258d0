package relay

import "sync/atomic"

// Metrics counts what happened to emitted events.
type Metrics struct {
	emitted   atomic.Int64
	published atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of the relay counters.
type MetricsSnapshot struct {
	Emitted   int64 `json:"emitted"`
	Published int64 `json:"published"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
	Buffered  int   `json:"buffered"`
}

func (m *Metrics) snapshot(buffered int) MetricsSnapshot {
	return MetricsSnapshot{
		Emitted:   m.emitted.Load(),
		Published: m.published.Load(),
		Failed:    m.failed.Load(),
		Dropped:   m.dropped.Load(),
		Buffered:  buffered,
	}
}
