package order

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"orderbridge/internal/core/extract"
	"orderbridge/internal/logger"

	"github.com/google/uuid"
)

// MsgLinkNotFound is the error of a run that went through every step but
// could not read a confirmation link.
const MsgLinkNotFound = "link not found"

type Options struct {
	StepTimeout     time.Duration
	FinalizeTimeout time.Duration
	// ProductDelay is the pause after every product addition.
	ProductDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.StepTimeout <= 0 {
		o.StepTimeout = 30 * time.Second
	}
	if o.FinalizeTimeout <= 0 {
		o.FinalizeTimeout = 2 * o.StepTimeout
	}
	if o.ProductDelay < 0 {
		o.ProductDelay = 0
	}
	return o
}

// Pipeline moves one transport through Init, ClientSubmitted, ProductsAdded,
// ShippingSelected and Finalized. It holds no per-run state and may serve
// concurrent runs.
type Pipeline struct {
	opts Options
	log  *logger.Logger
}

func NewPipeline(opts Options, log *logger.Logger) *Pipeline {
	return &Pipeline{opts: opts.withDefaults(), log: log.Named("Pipeline")}
}

// Run places req through t and always returns exactly one result. Cleanup is
// called on t on every path, panics included.
func (p *Pipeline) Run(ctx context.Context, req OrderRequest, t Transport) (res AutomationResult) {
	runID := uuid.NewString()
	start := time.Now()
	target := StateInit

	defer func() {
		if r := recover(); r != nil {
			err := &StepError{State: target, Err: fmt.Errorf("panic: %v", r)}
			p.log.Error().Str("run", runID).Err(err).Msg("run panicked")
			res = p.fail(ctx, runID, t, err, string(debug.Stack()))
		}
		if err := safely(t.Cleanup); err != nil {
			p.log.Warn().Str("run", runID).Err(err).Msg("cleanup failed")
		}
		ev := p.log.Info()
		if !res.Success {
			ev = p.log.Warn()
		}
		ev.Str("run", runID).
			Bool("ok", res.Success).
			Dur("elapsed", time.Since(start)).
			Msg("run finished")
	}()

	if err := req.Validate(); err != nil {
		p.log.Warn().Str("run", runID).Err(err).Msg("rejected order request")
		return Failure(err, "")
	}

	p.log.Info().
		Str("run", runID).
		Int("products", len(req.Produits)).
		Msg("run started")

	if err := p.step(ctx, runID, StateInit, p.opts.StepTimeout, t.InitializeSession); err != nil {
		return p.fail(ctx, runID, t, err, "")
	}

	target = StateClientSubmitted
	if err := p.step(ctx, runID, target, p.opts.StepTimeout, func(ctx context.Context) error {
		return t.SubmitClient(ctx, req.Client)
	}); err != nil {
		return p.fail(ctx, runID, t, err, "")
	}

	target = StateProductsAdded
	for i, prod := range req.Produits {
		err := p.step(ctx, runID, target, p.opts.StepTimeout, func(ctx context.Context) error {
			if err := t.AddProduct(ctx, prod); err != nil {
				return fmt.Errorf("product %d/%d (%s): %w", i+1, len(req.Produits), prod.Ref, err)
			}
			return nil
		})
		if err != nil {
			return p.fail(ctx, runID, t, err, "")
		}
		if err := sleep(ctx, p.opts.ProductDelay); err != nil {
			return p.fail(ctx, runID, t, &StepError{State: target, Err: err}, "")
		}
	}

	target = StateShippingSelected
	if err := p.step(ctx, runID, target, p.opts.StepTimeout, t.SelectShipping); err != nil {
		return p.fail(ctx, runID, t, err, "")
	}

	target = StateFinalized
	var link string
	if err := p.step(ctx, runID, target, p.opts.FinalizeTimeout, func(ctx context.Context) error {
		var err error
		link, err = t.Finalize(ctx)
		return err
	}); err != nil {
		return p.fail(ctx, runID, t, err, "")
	}

	p.log.Success().Str("run", runID).Str("link", link).Msg("order completed")
	return AutomationResult{Success: true, ChoganLink: link}
}

func (p *Pipeline) step(ctx context.Context, runID string, state State, timeout time.Duration, fn func(context.Context) error) error {
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	err := fn(sctx)
	if err != nil {
		if ctx.Err() == nil && errors.Is(sctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", timeout, err)
		}
		return &StepError{State: state, Err: err}
	}
	p.log.Debug().
		Str("run", runID).
		Str("state", state.String()).
		Dur("took", time.Since(started)).
		Msg("step completed")
	return nil
}

// fail converts err into a failed result, attaching whatever artifacts the
// transport can still capture.
func (p *Pipeline) fail(ctx context.Context, runID string, t Transport, err error, stack string) AutomationResult {
	state := StateInit
	var se *StepError
	if errors.As(err, &se) {
		state = se.State
	}

	msg := err.Error()
	if errors.Is(err, extract.ErrLinkNotFound) {
		msg = MsgLinkNotFound
	}

	details := fmt.Sprintf("failed at %s: %v", state, err)
	if stack != "" {
		details += "\n" + stack
	}

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.StepTimeout)
	defer cancel()
	var shots []string
	if cerr := safely(func() error {
		shots = t.CaptureFailure(cctx, state)
		return nil
	}); cerr != nil {
		p.log.Warn().Str("run", runID).Err(cerr).Msg("failure capture failed")
	}

	p.log.ErrorWithFields(map[string]interface{}{
		"run":       runID,
		"state":     state.String(),
		"artifacts": shots,
	}).Err(err).Msg("run failed")

	return AutomationResult{Success: false, Error: msg, Details: details, Screenshots: shots}
}

func safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
