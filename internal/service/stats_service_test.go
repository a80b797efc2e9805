package service

import (
	"sync"
	"testing"
)

func TestStatsService_RecordAndGet(t *testing.T) {
	s := NewStatsService()

	s.RecordIngest("click", "ui-main")
	s.RecordIngest("scroll", "ui-main")
	s.RecordRejected()
	s.RecordRateLimited()
	s.RecordNotification()
	s.RecordNotification()
	s.RecordNotification()
	s.RecordExtension()
	s.RecordRedirect()
	s.RecordReportFailure()

	stats := s.GetStats()

	if stats.EventsIngested != 2 {
		t.Errorf("EventsIngested = %d, want 2", stats.EventsIngested)
	}
	if stats.EventsRejected != 1 {
		t.Errorf("EventsRejected = %d, want 1", stats.EventsRejected)
	}
	if stats.EventsRateLimited != 1 {
		t.Errorf("EventsRateLimited = %d, want 1", stats.EventsRateLimited)
	}
	if stats.Notifications != 3 {
		t.Errorf("Notifications = %d, want 3", stats.Notifications)
	}
	if stats.Extensions != 1 {
		t.Errorf("Extensions = %d, want 1", stats.Extensions)
	}
	if stats.Redirects != 1 {
		t.Errorf("Redirects = %d, want 1", stats.Redirects)
	}
	if stats.ReportFailures != 1 {
		t.Errorf("ReportFailures = %d, want 1", stats.ReportFailures)
	}
}

func TestStatsService_Reset(t *testing.T) {
	s := NewStatsService()

	s.RecordIngest("click", "ui-main")
	s.RecordRejected()
	s.RecordRateLimited()
	s.RecordNotification()
	s.RecordExtension()
	s.RecordRedirect()
	s.RecordReportFailure()

	s.Reset()

	stats := s.GetStats()
	if stats.EventsIngested != 0 || stats.EventsRejected != 0 || stats.EventsRateLimited != 0 ||
		stats.Notifications != 0 || stats.Extensions != 0 || stats.Redirects != 0 || stats.ReportFailures != 0 {
		t.Errorf("after Reset, stats should be all zero: got %+v", stats)
	}
	if len(stats.KindCounts) != 0 {
		t.Errorf("after Reset, kind counts should be empty: got %+v", stats.KindCounts)
	}
	if len(stats.SourceCounts) != 0 {
		t.Errorf("after Reset, source counts should be empty: got %+v", stats.SourceCounts)
	}
}

func TestStatsService_ConcurrentAccess(t *testing.T) {
	s := NewStatsService()

	const goroutines = 100
	const opsPerGoroutine = 1000

	var wg sync.WaitGroup
	wg.Add(goroutines * 4)

	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < opsPerGoroutine; j++ {
				s.RecordIngest("click", "ui-main")
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < opsPerGoroutine; j++ {
				s.RecordRejected()
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < opsPerGoroutine; j++ {
				s.RecordNotification()
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < opsPerGoroutine; j++ {
				s.RecordExtension()
			}
		}()
	}

	wg.Wait()

	stats := s.GetStats()
	expected := int64(goroutines * opsPerGoroutine)

	if stats.EventsIngested != expected {
		t.Errorf("EventsIngested = %d, want %d", stats.EventsIngested, expected)
	}
	if stats.EventsRejected != expected {
		t.Errorf("EventsRejected = %d, want %d", stats.EventsRejected, expected)
	}
	if stats.Notifications != expected {
		t.Errorf("Notifications = %d, want %d", stats.Notifications, expected)
	}
	if stats.Extensions != expected {
		t.Errorf("Extensions = %d, want %d", stats.Extensions, expected)
	}
	if stats.KindCounts["click"] != expected {
		t.Errorf("KindCounts[click] = %d, want %d", stats.KindCounts["click"], expected)
	}
}

func TestStatsService_InitialZero(t *testing.T) {
	s := NewStatsService()
	stats := s.GetStats()

	if stats.EventsIngested != 0 || stats.EventsRejected != 0 || stats.Notifications != 0 {
		t.Errorf("new StatsService should have all zero counters: got %+v", stats)
	}
	if len(stats.KindCounts) != 0 {
		t.Errorf("new StatsService should have empty kind counts, got %+v", stats.KindCounts)
	}
	if len(stats.SourceCounts) != 0 {
		t.Errorf("new StatsService should have empty source counts, got %+v", stats.SourceCounts)
	}
}

func TestStatsService_KindAndSourceCounts(t *testing.T) {
	s := NewStatsService()

	s.RecordIngest("click", "ui-main")
	s.RecordIngest("click", "ui-sidebar")
	s.RecordIngest("scroll", "ui-main")
	s.RecordIngest("keypress", "ui-main")
	s.RecordIngest("keypress", "")

	stats := s.GetStats()
	if stats.KindCounts["click"] != 2 {
		t.Errorf("click = %d, want 2", stats.KindCounts["click"])
	}
	if stats.KindCounts["scroll"] != 1 {
		t.Errorf("scroll = %d, want 1", stats.KindCounts["scroll"])
	}
	if stats.KindCounts["keypress"] != 2 {
		t.Errorf("keypress = %d, want 2", stats.KindCounts["keypress"])
	}
	if stats.SourceCounts["ui-main"] != 3 {
		t.Errorf("ui-main = %d, want 3", stats.SourceCounts["ui-main"])
	}
	if stats.SourceCounts["ui-sidebar"] != 1 {
		t.Errorf("ui-sidebar = %d, want 1", stats.SourceCounts["ui-sidebar"])
	}
	if len(stats.SourceCounts) != 2 {
		t.Errorf("empty source should be skipped, got %+v", stats.SourceCounts)
	}
}

func TestStatsService_GetStats_Snapshot(t *testing.T) {
	s := NewStatsService()

	s.RecordIngest("click", "ui-main")

	stats := s.GetStats()

	// Verify it's a copy (modifying returned map shouldn't affect service)
	stats.KindCounts["click"] = 999
	stats.SourceCounts["ui-main"] = 999

	stats2 := s.GetStats()
	if stats2.KindCounts["click"] != 1 {
		t.Errorf("snapshot should be a copy, got click = %d", stats2.KindCounts["click"])
	}
	if stats2.SourceCounts["ui-main"] != 1 {
		t.Errorf("snapshot should be a copy, got ui-main = %d", stats2.SourceCounts["ui-main"])
	}
}
