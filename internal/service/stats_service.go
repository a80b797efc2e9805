// Package service contains application services.
package service

import (
	"sync"
	"sync/atomic"
)

// StatsService tracks runtime statistics using lock-free atomic counters.
// All counter operations are safe for concurrent access from multiple
// goroutines.
type StatsService struct {
	ingested    atomic.Int64
	rejected    atomic.Int64
	rateLimited atomic.Int64
	notified    atomic.Int64
	extensions  atomic.Int64
	redirects   atomic.Int64
	reportFails atomic.Int64

	// Per-kind and per-source counters (mutex-protected maps).
	mu           sync.Mutex
	kindCounts   map[string]int64
	sourceCounts map[string]int64
}

// NewStatsService creates a new StatsService with all counters
// initialized to zero.
func NewStatsService() *StatsService {
	return &StatsService{
		kindCounts:   make(map[string]int64),
		sourceCounts: make(map[string]int64),
	}
}

// RecordIngest counts one accepted activity event.
func (s *StatsService) RecordIngest(kind, source string) {
	s.ingested.Add(1)
	s.mu.Lock()
	if kind != "" {
		s.kindCounts[kind]++
	}
	if source != "" {
		s.sourceCounts[source]++
	}
	s.mu.Unlock()
}

// RecordRejected counts one event refused at ingest (bad kind, filter).
func (s *StatsService) RecordRejected() {
	s.rejected.Add(1)
}

// RecordRateLimited counts one event refused by the ingest limiter.
func (s *StatsService) RecordRateLimited() {
	s.rateLimited.Add(1)
}

// RecordNotification counts one debounced activity notification.
func (s *StatsService) RecordNotification() {
	s.notified.Add(1)
}

// RecordExtension counts one granted session extension.
func (s *StatsService) RecordExtension() {
	s.extensions.Add(1)
}

// RecordRedirect counts one expiry redirect.
func (s *StatsService) RecordRedirect() {
	s.redirects.Add(1)
}

// RecordReportFailure counts one failed activity report to the status
// authority.
func (s *StatsService) RecordReportFailure() {
	s.reportFails.Add(1)
}

// Stats holds a snapshot of all counters at a point in time.
type Stats struct {
	EventsIngested    int64            `json:"events_ingested"`
	EventsRejected    int64            `json:"events_rejected"`
	EventsRateLimited int64            `json:"events_rate_limited"`
	Notifications     int64            `json:"notifications"`
	Extensions        int64            `json:"extensions"`
	Redirects         int64            `json:"redirects"`
	ReportFailures    int64            `json:"report_failures"`
	KindCounts        map[string]int64 `json:"kind_counts"`
	SourceCounts      map[string]int64 `json:"source_counts"`
}

// GetStats returns a snapshot of all counters. The snapshot is
// consistent per-counter but not atomically across all counters.
func (s *StatsService) GetStats() Stats {
	s.mu.Lock()
	kc := make(map[string]int64, len(s.kindCounts))
	for k, v := range s.kindCounts {
		kc[k] = v
	}
	sc := make(map[string]int64, len(s.sourceCounts))
	for k, v := range s.sourceCounts {
		sc[k] = v
	}
	s.mu.Unlock()

	return Stats{
		EventsIngested:    s.ingested.Load(),
		EventsRejected:    s.rejected.Load(),
		EventsRateLimited: s.rateLimited.Load(),
		Notifications:     s.notified.Load(),
		Extensions:        s.extensions.Load(),
		Redirects:         s.redirects.Load(),
		ReportFailures:    s.reportFails.Load(),
		KindCounts:        kc,
		SourceCounts:      sc,
	}
}

// Reset sets all counters to zero.
func (s *StatsService) Reset() {
	s.ingested.Store(0)
	s.rejected.Store(0)
	s.rateLimited.Store(0)
	s.notified.Store(0)
	s.extensions.Store(0)
	s.redirects.Store(0)
	s.reportFails.Store(0)

	s.mu.Lock()
	s.kindCounts = make(map[string]int64)
	s.sourceCounts = make(map[string]int64)
	s.mu.Unlock()
}
