// Package mirror rotates requests across interchangeable service
// endpoints. Public mirrors of the same dataset fail independently, so
// instead of retrying one endpoint the pool moves to the next and only
// gives up after every endpoint has been tried in every pass.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/logging"
)

// Pool walks a fixed endpoint list. A request is attempted once per
// endpoint per pass; there is no per-endpoint retry.
type Pool[T any] struct {
	Endpoints []string
	Passes    int
	Log       logging.Logger
}

// New builds a pool over endpoints with the given number of passes.
func New[T any](endpoints []string, passes int, log logging.Logger) *Pool[T] {
	if passes < 1 {
		passes = 1
	}
	if log == nil {
		log = logging.Noop()
	}
	return &Pool[T]{Endpoints: endpoints, Passes: passes, Log: log}
}

// AggregateError collects the per-endpoint failures after the pool is
// exhausted.
type AggregateError struct {
	Attempts []AttemptError
}

// AttemptError is one failed call against one endpoint.
type AttemptError struct {
	Endpoint string
	Pass     int
	Err      error
}

func (e *AggregateError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "all %d endpoint attempts failed", len(e.Attempts))
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, "; pass %d %s: %v", a.Pass+1, a.Endpoint, a.Err)
	}
	return b.String()
}

func (e *AggregateError) Unwrap() []error {
	errs := make([]error, len(e.Attempts))
	for i, a := range e.Attempts {
		errs[i] = a.Err
	}
	return errs
}

// permanentError marks a failure every endpoint would reproduce.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps an error so the pool stops walking: a request the
// service deterministically rejects fails the same way on every
// mirror, and retrying it anywhere is wasted load.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls fn against each endpoint until one succeeds. Endpoints are
// walked in order, then walked again for each remaining pass. A
// context cancellation stops the walk immediately and returns the
// context's error; an error wrapped with Permanent stops it and
// returns the aggregate of the attempts so far.
func (p *Pool[T]) Do(ctx context.Context, fn func(ctx context.Context, endpoint string) (T, error)) (T, error) {
	var zero T
	if len(p.Endpoints) == 0 {
		return zero, errors.New("mirror pool has no endpoints")
	}

	agg := &AggregateError{}
	for pass := 0; pass < p.Passes; pass++ {
		for _, ep := range p.Endpoints {
			if err := ctx.Err(); err != nil {
				return zero, err
			}
			out, err := fn(ctx, ep)
			if err == nil {
				return out, nil
			}
			if ctx.Err() != nil {
				return zero, ctx.Err()
			}
			var perm *permanentError
			if errors.As(err, &perm) {
				p.Log.Warn(ctx, "endpoint rejected the request, giving up",
					logging.String("endpoint", ep),
					logging.Err(perm.err))
				agg.Attempts = append(agg.Attempts, AttemptError{Endpoint: ep, Pass: pass, Err: perm.err})
				return zero, agg
			}
			p.Log.Warn(ctx, "endpoint failed, moving to next",
				logging.String("endpoint", ep),
				logging.Int("pass", pass+1),
				logging.Err(err))
			agg.Attempts = append(agg.Attempts, AttemptError{Endpoint: ep, Pass: pass, Err: err})
		}
	}
	return zero, agg
}
