package bot

import (
	"sync/atomic"
	"time"

	"github.com/michaelbrown/artoo/internal/dispatch"
)

// Stats are counters updated by the poll loop and read by the status
// server. All fields are safe for concurrent use.
type Stats struct {
	Seen       atomic.Int64
	Tagged     atomic.Int64
	Dispatched atomic.Int64
	Confused   atomic.Int64
	Failed     atomic.Int64
	Duplicates atomic.Int64
	PostErrors atomic.Int64
	Panics     atomic.Int64
	Reconnects atomic.Int64

	started time.Time
	online  atomic.Bool
}

func newStats() *Stats {
	return &Stats{started: time.Now()}
}

func (s *Stats) connected(v bool) { s.online.Store(v) }

func (s *Stats) record(out dispatch.Outcome) {
	switch {
	case out.Failed:
		s.Failed.Add(1)
	case out.State == dispatch.Confused:
		s.Confused.Add(1)
	default:
		s.Dispatched.Add(1)
	}
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	Connected  bool      `json:"connected"`
	StartedAt  time.Time `json:"started_at"`
	Seen       int64     `json:"seen"`
	Tagged     int64     `json:"tagged"`
	Dispatched int64     `json:"dispatched"`
	Confused   int64     `json:"confused"`
	Failed     int64     `json:"failed"`
	Duplicates int64     `json:"duplicates"`
	PostErrors int64     `json:"post_errors"`
	Panics     int64     `json:"panics"`
	Reconnects int64     `json:"reconnects"`
}

// Snapshot copies the current counters.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Connected:  s.online.Load(),
		StartedAt:  s.started,
		Seen:       s.Seen.Load(),
		Tagged:     s.Tagged.Load(),
		Dispatched: s.Dispatched.Load(),
		Confused:   s.Confused.Load(),
		Failed:     s.Failed.Load(),
		Duplicates: s.Duplicates.Load(),
		PostErrors: s.PostErrors.Load(),
		Panics:     s.Panics.Load(),
		Reconnects: s.Reconnects.Load(),
	}
}
