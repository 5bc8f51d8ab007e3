package reconcile

import "sync/atomic"

type Stats struct {
	received   atomic.Int64
	duplicates atomic.Int64
	rejected   atomic.Int64
	malformed  atomic.Int64
	handled    atomic.Int64
	unhandled  atomic.Int64
	failed     atomic.Int64
}

type StatsSnapshot struct {
	Received   int64 `json:"received"`
	Duplicates int64 `json:"duplicates"`
	Rejected   int64 `json:"rejected"`
	Malformed  int64 `json:"malformed"`
	Handled    int64 `json:"handled"`
	Unhandled  int64 `json:"unhandled"`
	Failed     int64 `json:"failed"`
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Received:   s.received.Load(),
		Duplicates: s.duplicates.Load(),
		Rejected:   s.rejected.Load(),
		Malformed:  s.malformed.Load(),
		Handled:    s.handled.Load(),
		Unhandled:  s.unhandled.Load(),
		Failed:     s.failed.Load(),
	}
}

func (s *Stats) recordOutcome(o Outcome) {
	switch o {
	case OutcomeHandled:
		s.handled.Add(1)
	case OutcomeUnhandled:
		s.unhandled.Add(1)
	case OutcomeFailed:
		s.failed.Add(1)
	}
}
