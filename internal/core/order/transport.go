package order

import (
	"context"
	"fmt"
)

// Transport drives the remote order form. Both the HTTP and the browser
// backend implement it; one value serves exactly one run.
type Transport interface {
	InitializeSession(ctx context.Context) error
	SubmitClient(ctx context.Context, c Client) error
	AddProduct(ctx context.Context, p Product) error
	SelectShipping(ctx context.Context) error
	// Finalize completes the order and returns the confirmation link.
	Finalize(ctx context.Context) (string, error)
	// Cleanup releases every resource the transport holds. It must be safe
	// to call after a partial InitializeSession.
	Cleanup() error
	TestConnection(ctx context.Context) bool
	// CaptureFailure stores what the transport last saw (screenshot, HTML)
	// and returns the artifact locations.
	CaptureFailure(ctx context.Context, state State) []string
}

// Artifacts stores failure snapshots and returns where they were put.
type Artifacts interface {
	Save(run, name string, data []byte) (string, error)
}

// Factory builds the transport for one run. Credentials are bound at
// construction and used by InitializeSession to log in.
type Factory func(c Credentials) (Transport, error)

// State is a pipeline position. States are strictly ordered.
type State int

const (
	StateInit State = iota
	StateClientSubmitted
	StateProductsAdded
	StateShippingSelected
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateClientSubmitted:
		return "client_submitted"
	case StateProductsAdded:
		return "products_added"
	case StateShippingSelected:
		return "shipping_selected"
	case StateFinalized:
		return "finalized"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// StepError is a failure while moving into State.
type StepError struct {
	State State
	Err   error
}

func (e *StepError) Error() string { return fmt.Sprintf("step %s: %v", e.State, e.Err) }
func (e *StepError) Unwrap() error { return e.Err }
