package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/input-output-hk/catalyst-forge-pipeline/domain"
)

// Sink receives run and stage lifecycle events. Implementations must be
// safe for concurrent use and must not block the run.
type Sink interface {
	Publish(event any)
}

type noopSink struct{}

func (noopSink) Publish(any) {}

// MemorySink collects events in memory. Used in tests.
type MemorySink struct {
	mu     sync.Mutex
	events []any
}

// Publish implements the Sink interface.
func (s *MemorySink) Publish(event any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

// Events returns a snapshot of the collected events.
func (s *MemorySink) Events() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]any, len(s.events))
	copy(out, s.events)
	return out
}

// StageEvents returns only the collected stage events, in order.
func (s *MemorySink) StageEvents() []domain.StageEvent {
	var out []domain.StageEvent
	for _, e := range s.Events() {
		if se, ok := e.(domain.StageEvent); ok {
			out = append(out, se)
		}
	}
	return out
}

// LogSink writes events to a zap logger.
type LogSink struct {
	Logger *zap.Logger
}

// Publish implements the Sink interface.
func (s *LogSink) Publish(event any) {
	switch e := event.(type) {
	case domain.RunEvent:
		s.Logger.Info("run event",
			zap.String("run_id", e.RunID),
			zap.String("status", e.Status.String()))
	case domain.StageEvent:
		s.Logger.Info("stage event",
			zap.String("run_id", e.RunID),
			zap.String("stage", e.Stage),
			zap.String("status", e.Status.String()),
			zap.String("error", e.Error))
	default:
		s.Logger.Info("event", zap.Any("event", e))
	}
}

func (e *Engine) emitRun(run *domain.PipelineRun, runErr error) {
	event := domain.RunEvent{
		EventID:   uuid.NewString(),
		Timestamp: time.Now().UTC(),
		RunID:     run.ID,
		Status:    run.Status,
	}
	if runErr != nil {
		event.Metadata = map[string]string{"error": runErr.Error()}
	}
	e.cfg.Events.Publish(event)
}

func (e *Engine) emitStage(run *domain.PipelineRun, exec *domain.StageExecution) {
	e.cfg.Events.Publish(domain.StageEvent{
		EventID:   uuid.NewString(),
		Timestamp: time.Now().UTC(),
		RunID:     run.ID,
		Stage:     exec.Name,
		Status:    exec.Status,
		Error:     exec.Error,
	})
}
