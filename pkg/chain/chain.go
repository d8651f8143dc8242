// Package chain implements an immutable chain-of-responsibility executor.
//
// A Chain threads a payload through an ordered list of interceptors. Each
// interceptor either continues the chain with [Chain.Proceed], short-circuits
// by returning a result directly, or aborts by returning an error.
//
// Interceptors are type selective: the chain asks [Interceptor.Accepts]
// before dispatch and skips interceptors that decline the current payload,
// handing the same payload to the next one. A single interceptor list can
// therefore hold handlers for several payload kinds and only the matching
// ones act.
//
// Chains are values. Proceed builds a new view positioned after the current
// interceptor, so one interceptor list may be shared by any number of
// concurrent executions.
package chain

import (
	"context"
	"fmt"
	"runtime/debug"
)

// Interceptor handles one step of a chain execution.
type Interceptor[P any] interface {
	// Accepts reports whether the interceptor handles payload. Declined
	// payloads are passed unchanged to the next interceptor.
	Accepts(payload P) bool

	// Intercept processes payload. It calls next.Proceed to continue, or
	// returns without doing so to finish the chain with its own result.
	Intercept(ctx context.Context, next Chain[P], payload P) (P, error)
}

// Chain is a position within an ordered, immutable interceptor list.
type Chain[P any] struct {
	interceptors []Interceptor[P]
	index        int
}

// New returns a chain positioned at the first interceptor. The slice is
// copied so later changes by the caller do not affect the chain.
func New[P any](interceptors ...Interceptor[P]) Chain[P] {
	list := make([]Interceptor[P], len(interceptors))
	copy(list, interceptors)
	return Chain[P]{interceptors: list}
}

// With returns a new chain at index 0 with extra appended after the
// receiver's interceptors.
func (c Chain[P]) With(extra ...Interceptor[P]) Chain[P] {
	list := make([]Interceptor[P], 0, len(c.interceptors)+len(extra))
	list = append(list, c.interceptors...)
	list = append(list, extra...)
	return Chain[P]{interceptors: list}
}

// Len returns the number of interceptors in the underlying list.
func (c Chain[P]) Len() int { return len(c.interceptors) }

// Index returns the position of the next interceptor to run.
func (c Chain[P]) Index() int { return c.index }

// Proceed hands payload to the next accepting interceptor. When no
// interceptor remains the payload is the chain's result.
func (c Chain[P]) Proceed(ctx context.Context, payload P) (P, error) {
	for i := c.index; i < len(c.interceptors); i++ {
		ic := c.interceptors[i]
		if !ic.Accepts(payload) {
			continue
		}
		if err := ctx.Err(); err != nil {
			var zero P
			return zero, err
		}
		return ic.Intercept(ctx, Chain[P]{interceptors: c.interceptors, index: i + 1}, payload)
	}
	return payload, nil
}

// Run executes the chain from its current position. It returns exactly one
// outcome per call: the terminal payload or the first error. A panic in an
// interceptor is recovered and returned as a *PanicError.
func (c Chain[P]) Run(ctx context.Context, payload P) (result P, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero P
			result = zero
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return c.Proceed(ctx, payload)
}

// PanicError reports a panic raised by an interceptor.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("chain: interceptor panicked: %v", e.Value)
}

// Unwrap exposes the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
