package service

import (
	"context"

	"github.com/Session-Vigil/Sessionvigil/internal/domain/session"
)

// instrumentedSource wraps a StatusSource so extension grants and
// failed liveness reports show up in the stats snapshot no matter
// which path triggered them.
type instrumentedSource struct {
	inner session.StatusSource
	stats *StatsService
}

// InstrumentSource decorates src with stats recording. A nil stats
// returns src unchanged.
func InstrumentSource(stats *StatsService, src session.StatusSource) session.StatusSource {
	if stats == nil {
		return src
	}
	return &instrumentedSource{inner: src, stats: stats}
}

func (s *instrumentedSource) GetStatus(ctx context.Context) (session.Snapshot, error) {
	return s.inner.GetStatus(ctx)
}

func (s *instrumentedSource) Extend(ctx context.Context) (session.ExtendGrant, error) {
	grant, err := s.inner.Extend(ctx)
	if err == nil {
		s.stats.RecordExtension()
	}
	return grant, err
}

func (s *instrumentedSource) ReportActivity(ctx context.Context) error {
	err := s.inner.ReportActivity(ctx)
	if err != nil {
		s.stats.RecordReportFailure()
	}
	return err
}

var _ session.StatusSource = (*instrumentedSource)(nil)

// countingRedirector wraps a Redirector and counts expiry redirects.
type countingRedirector struct {
	inner session.Redirector
	stats *StatsService
}

// CountRedirects decorates r with redirect counting. A nil stats
// returns r unchanged; a nil r yields a wrapper that only counts.
func CountRedirects(stats *StatsService, r session.Redirector) session.Redirector {
	if stats == nil {
		return r
	}
	return &countingRedirector{inner: r, stats: stats}
}

func (c *countingRedirector) Redirect(ctx context.Context, reason string) error {
	c.stats.RecordRedirect()
	if c.inner == nil {
		return nil
	}
	return c.inner.Redirect(ctx, reason)
}

var _ session.Redirector = (*countingRedirector)(nil)
