// Package automation is the inbound side of the engine: it validates order
// requests, picks a transport backend, runs the pipeline synchronously or
// through the task queue, and reports outcomes.
package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"

	"orderbridge/internal/core/job"
	"orderbridge/internal/core/order"
	"orderbridge/internal/logger"
	"orderbridge/internal/platform/events"
	"orderbridge/internal/platform/tasks"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// ErrUnknownBackend is returned when a request names a backend that is not registered.
var ErrUnknownBackend = errors.New("unknown backend")

const (
	BackendHTTP    = "http"
	BackendBrowser = "browser"
)

type Enqueuer interface {
	Enqueue(task *asynq.Task, queue string, maxRetries int) error
}

type Publisher interface {
	Publish(ctx context.Context, e events.Event) error
}

type Options struct {
	DefaultBackend string
	Pipeline       order.Options
}

type Deps struct {
	// Backends maps a backend name to the factory building its transports.
	Backends map[string]order.Factory
	Jobs     *job.JobService
	Tasks    Enqueuer
	Events   Publisher
}

type Service struct {
	opts     Options
	deps     Deps
	pipeline *order.Pipeline
	log      *logger.Logger
}

// Payload is the queued form of an order. It carries the reseller
// credentials, so the queue must be as private as the API itself.
type Payload struct {
	JobID   string             `json:"job_id"`
	Request order.OrderRequest `json:"request"`
}

func NewService(opts Options, deps Deps, log *logger.Logger) *Service {
	if opts.DefaultBackend == "" {
		opts.DefaultBackend = BackendHTTP
	}
	return &Service{
		opts:     opts,
		deps:     deps,
		pipeline: order.NewPipeline(opts.Pipeline, log),
		log:      log.Named("Automation"),
	}
}

// Backends lists the registered backend names.
func (s *Service) Backends() []string {
	names := make([]string, 0, len(s.deps.Backends))
	for name := range s.deps.Backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ProcessOrder places one order and waits for the outcome. It never panics
// and always returns a result.
func (s *Service) ProcessOrder(ctx context.Context, req order.OrderRequest) order.AutomationResult {
	return s.process(ctx, uuid.NewString(), req)
}

func (s *Service) process(ctx context.Context, jobID string, req order.OrderRequest) (res order.AutomationResult) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("job", jobID).Msgf("order processing panicked: %v", r)
			res = order.Failure(fmt.Errorf("panic: %v", r), string(debug.Stack()))
		}
	}()

	backend, factory, err := s.backend(req.Backend)
	if err != nil {
		return order.Failure(err, "")
	}
	if err := req.Validate(); err != nil {
		s.log.Warn().Str("job", jobID).Err(err).Msg("order rejected")
		return order.Failure(err, "")
	}

	t, err := factory(req.Credentials)
	if err != nil {
		s.log.Error().Str("job", jobID).Str("backend", backend).Err(err).Msg("transport setup failed")
		res = order.Failure(fmt.Errorf("%s backend: %w", backend, err), "")
		s.publish(ctx, jobID, backend, req, res)
		return res
	}

	s.log.Info().Str("job", jobID).Str("backend", backend).Int("products", len(req.Produits)).Msg("processing order")
	res = s.pipeline.Run(ctx, req, t)
	s.publish(ctx, jobID, backend, req, res)
	return res
}

// TestConnection checks that the portal answers through the named backend,
// or the default one when name is empty.
func (s *Service) TestConnection(ctx context.Context, name string) (bool, error) {
	backend, factory, err := s.backend(name)
	if err != nil {
		return false, err
	}
	t, err := factory(order.Credentials{})
	if err != nil {
		return false, fmt.Errorf("%s backend: %w", backend, err)
	}
	defer func() {
		if err := t.Cleanup(); err != nil {
			s.log.Warn().Err(err).Msg("connection test cleanup")
		}
	}()
	ok := t.TestConnection(ctx)
	s.log.Info().Str("backend", backend).Bool("ok", ok).Msg("connection test")
	return ok, nil
}

// Enqueue stores a pending job and queues the order. Queued orders are
// never retried: a retry could place the same order twice.
func (s *Service) Enqueue(ctx context.Context, req order.OrderRequest) (string, error) {
	if s.deps.Tasks == nil || s.deps.Jobs == nil {
		return "", errors.New("async processing is not configured")
	}
	backend, _, err := s.backend(req.Backend)
	if err != nil {
		return "", err
	}
	if err := req.Validate(); err != nil {
		return "", err
	}

	jobID := uuid.NewString()
	payload, err := json.Marshal(Payload{JobID: jobID, Request: req})
	if err != nil {
		return "", err
	}
	if err := s.deps.Jobs.InitPending(ctx, jobID, backend); err != nil {
		return "", fmt.Errorf("store job: %w", err)
	}
	if err := s.deps.Tasks.Enqueue(asynq.NewTask(tasks.TaskTypeOrder, payload), tasks.QueueOrders, 0); err != nil {
		_ = s.deps.Jobs.Complete(ctx, jobID, order.Failure(fmt.Errorf("enqueue: %w", err), ""))
		return "", fmt.Errorf("enqueue order: %w", err)
	}
	s.log.Info().Str("job", jobID).Str("backend", backend).Msg("order queued")
	return jobID, nil
}

// HandleTask runs a queued order and stores its result. A failed order is
// a stored result, not a task error.
func (s *Service) HandleTask(ctx context.Context, task *asynq.Task) error {
	var p Payload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("decode order payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := s.deps.Jobs.SetProcessing(ctx, p.JobID); err != nil {
		return err
	}
	res := s.process(ctx, p.JobID, p.Request)
	return s.deps.Jobs.Complete(context.WithoutCancel(ctx), p.JobID, res)
}

func (s *Service) Job(ctx context.Context, id string) (*job.Job, error) {
	if s.deps.Jobs == nil {
		return nil, job.ErrNotFound
	}
	return s.deps.Jobs.GetJobStatus(ctx, id)
}

func (s *Service) backend(name string) (string, order.Factory, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = s.opts.DefaultBackend
	}
	f, ok := s.deps.Backends[name]
	if !ok {
		return name, nil, fmt.Errorf("%w %q (available: %s)", ErrUnknownBackend, name, strings.Join(s.Backends(), ", "))
	}
	return name, f, nil
}

func (s *Service) publish(ctx context.Context, jobID, backend string, req order.OrderRequest, res order.AutomationResult) {
	if s.deps.Events == nil {
		return
	}
	e := events.NewEvent(jobID, backend, req, res)
	if err := s.deps.Events.Publish(context.WithoutCancel(ctx), e); err != nil {
		s.log.Warn().Str("job", jobID).Err(err).Msg("publish order event")
	}
}
