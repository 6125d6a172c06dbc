// Package fallback runs an ordered list of increasingly generic strategies
// and stops at the first one that succeeds.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNoControlFound is returned when every strategy of a chain failed.
var ErrNoControlFound = errors.New("no control found")

type Strategy struct {
	Name string
	Try  func(ctx context.Context) error
}

type Chain struct {
	// Target names what the chain is looking for, for error messages.
	Target     string
	Strategies []Strategy
	// PerAttempt bounds each strategy. Zero leaves only the caller's deadline.
	PerAttempt time.Duration
	// OnAttempt, when set, observes every attempt.
	OnAttempt func(name string, err error)
}

// Run tries the strategies in declared order and returns the name of the
// first that succeeded. When all fail the error wraps ErrNoControlFound and
// every individual failure.
func (c Chain) Run(ctx context.Context) (string, error) {
	var errs []error
	for _, s := range c.Strategies {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		err := c.attempt(ctx, s)
		if c.OnAttempt != nil {
			c.OnAttempt(s.Name, err)
		}
		if err == nil {
			return s.Name, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
	}
	return "", fmt.Errorf("%s: %w", c.Target, errors.Join(append([]error{ErrNoControlFound}, errs...)...))
}

func (c Chain) attempt(ctx context.Context, s Strategy) error {
	if c.PerAttempt <= 0 {
		return s.Try(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, c.PerAttempt)
	defer cancel()
	return s.Try(actx)
}
