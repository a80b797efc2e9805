package service

import (
	"context"
	"errors"
	"testing"

	"github.com/Session-Vigil/Sessionvigil/internal/domain/session"
)

func TestInstrumentSource_CountsExtensions(t *testing.T) {
	stats := NewStatsService()
	inner := &fakeStatusSource{}
	src := InstrumentSource(stats, inner)

	if _, err := src.Extend(context.Background()); err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if got := stats.GetStats().Extensions; got != 1 {
		t.Errorf("Extensions = %d, want 1", got)
	}

	inner.extendErr = errors.New("no more extensions")
	if _, err := src.Extend(context.Background()); err == nil {
		t.Fatal("expected extend error")
	}
	if got := stats.GetStats().Extensions; got != 1 {
		t.Errorf("failed extend should not count: Extensions = %d, want 1", got)
	}
}

func TestInstrumentSource_CountsReportFailures(t *testing.T) {
	stats := NewStatsService()
	inner := &fakeStatusSource{}
	src := InstrumentSource(stats, inner)

	if err := src.ReportActivity(context.Background()); err != nil {
		t.Fatalf("ReportActivity: %v", err)
	}
	if got := stats.GetStats().ReportFailures; got != 0 {
		t.Errorf("successful report should not count: ReportFailures = %d, want 0", got)
	}

	inner.reportErr = errors.New("authority unreachable")
	if err := src.ReportActivity(context.Background()); err == nil {
		t.Fatal("expected report error")
	}
	if got := stats.GetStats().ReportFailures; got != 1 {
		t.Errorf("ReportFailures = %d, want 1", got)
	}
}

func TestInstrumentSource_PassesThroughStatus(t *testing.T) {
	stats := NewStatsService()
	inner := &fakeStatusSource{}
	src := InstrumentSource(stats, inner)

	snap, err := src.GetStatus(context.Background())
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if snap.MaxExtensions != 3 {
		t.Errorf("MaxExtensions = %d, want 3", snap.MaxExtensions)
	}
	if inner.statusCalls != 1 {
		t.Errorf("statusCalls = %d, want 1", inner.statusCalls)
	}
}

func TestInstrumentSource_NilStatsReturnsInner(t *testing.T) {
	inner := &fakeStatusSource{}
	if src := InstrumentSource(nil, inner); src != session.StatusSource(inner) {
		t.Error("nil stats should return the inner source unchanged")
	}
}

type recordingRedirector struct {
	calls   int
	lastCtx context.Context
	reason  string
}

func (r *recordingRedirector) Redirect(ctx context.Context, reason string) error {
	r.calls++
	r.lastCtx = ctx
	r.reason = reason
	return nil
}

func TestCountRedirects_CountsAndDelegates(t *testing.T) {
	stats := NewStatsService()
	inner := &recordingRedirector{}
	r := CountRedirects(stats, inner)

	if err := r.Redirect(context.Background(), "session_expired"); err != nil {
		t.Fatalf("Redirect: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("inner redirect calls = %d, want 1", inner.calls)
	}
	if inner.reason != "session_expired" {
		t.Errorf("reason = %q, want %q", inner.reason, "session_expired")
	}
	if got := stats.GetStats().Redirects; got != 1 {
		t.Errorf("Redirects = %d, want 1", got)
	}
}

func TestCountRedirects_NilInnerStillCounts(t *testing.T) {
	stats := NewStatsService()
	r := CountRedirects(stats, nil)

	if err := r.Redirect(context.Background(), "session_expired"); err != nil {
		t.Fatalf("Redirect: %v", err)
	}
	if got := stats.GetStats().Redirects; got != 1 {
		t.Errorf("Redirects = %d, want 1", got)
	}
}

func TestCountRedirects_NilStatsReturnsInner(t *testing.T) {
	inner := &recordingRedirector{}
	if r := CountRedirects(nil, inner); r != session.Redirector(inner) {
		t.Error("nil stats should return the inner redirector unchanged")
	}
}
