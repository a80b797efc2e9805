package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Session-Vigil/Sessionvigil/internal/domain/activity"
	"github.com/Session-Vigil/Sessionvigil/internal/domain/session"
)

// LivenessService owns the runtime lifecycle of the activity detector
// and the session timeout controller, and the wiring between them: the
// detector's debounced notifications drive both the stats counters and
// the controller's activity reports.
type LivenessService struct {
	detector   *activity.Detector
	controller *session.TimeoutController
	stats      *StatsService
	logger     *slog.Logger

	mu         sync.Mutex
	running    bool
	stopped    bool
	listenerID int

	stopOnce sync.Once
}

// NewLivenessService wires the detector and controller together. Start
// must be called before the service does anything.
func NewLivenessService(detector *activity.Detector, controller *session.TimeoutController, stats *StatsService, logger *slog.Logger) *LivenessService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LivenessService{
		detector:   detector,
		controller: controller,
		stats:      stats,
		logger:     logger,
	}
}

// Start launches the detector and controller and attaches the detector
// to the controller so debounced activity reaches the status source.
// Calling Start again or after Stop is a no-op.
func (s *LivenessService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.detector.Start(ctx); err != nil {
		return err
	}

	id := s.detector.AddListener(func(time.Time) {
		s.stats.RecordNotification()
	})

	s.mu.Lock()
	s.running = true
	s.listenerID = id
	s.mu.Unlock()

	s.controller.AttachDetector(s.detector)
	s.controller.Start(ctx)

	s.logger.Info("liveness service started")
	return nil
}

// Stop tears the runtime down in reverse order: controller first so no
// new activity reports fire, then the detector. Idempotent.
func (s *LivenessService) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		running := s.running
		s.running = false
		id := s.listenerID
		s.mu.Unlock()

		s.controller.Stop()
		if running {
			s.detector.RemoveListener(id)
		}
		s.detector.Stop()
		s.logger.Info("liveness service stopped")
	})
}

// Running reports whether Start has completed and Stop has not been
// called.
func (s *LivenessService) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Detector returns the supervised activity detector.
func (s *LivenessService) Detector() *activity.Detector {
	return s.detector
}

// Controller returns the supervised timeout controller.
func (s *LivenessService) Controller() *session.TimeoutController {
	return s.controller
}

// Stats returns the shared stats service.
func (s *LivenessService) Stats() *StatsService {
	return s.stats
}
