package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"orderbridge/internal/logger"

	"github.com/hibiken/asynq"
)

// Mux routes asynq tasks to handlers, logging each one and turning a
// handler panic into a non-retried failure.
type Mux struct {
	mux *asynq.ServeMux
	log *logger.Logger
}

func NewMux(log *logger.Logger) *Mux {
	return &Mux{mux: asynq.NewServeMux(), log: log.Named("Worker")}
}

func (m *Mux) HandleFunc(t string, h func(ctx context.Context, task *asynq.Task) error) {
	m.mux.HandleFunc(t, func(ctx context.Context, task *asynq.Task) (err error) {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				m.log.Error().Str("task", t).Str("stack", string(debug.Stack())).Msgf("task panicked: %v", r)
				err = fmt.Errorf("task %s panicked: %v: %w", t, r, asynq.SkipRetry)
			}
			ev := m.log.Debug()
			if err != nil {
				ev = m.log.Warn().Err(err)
			}
			ev.Str("task", t).Dur("took", time.Since(start)).Msg("task handled")
		}()
		return h(ctx, task)
	})
}

func (m *Mux) Mux() *asynq.ServeMux { return m.mux }
