package authsdk

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/aussiebroadwan/treeauth/pkg/chain"
)

// Listener receives the outcome of an asynchronous operation. Exactly one
// of its methods is called, exactly once.
type Listener[T any] interface {
	OnSuccess(value T)
	OnException(err error)
}

// ListenerFunc adapts a function to Listener. err is nil on success.
type ListenerFunc[T any] func(value T, err error)

func (f ListenerFunc[T]) OnSuccess(value T) { f(value, nil) }

func (f ListenerFunc[T]) OnException(err error) {
	var zero T
	f(zero, err)
}

// NodeListener receives the step a tree moved to.
type NodeListener = Listener[*Step]

// Future is a Listener that can be waited on. The first completion wins;
// later ones are ignored.
type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

// NewFuture returns an incomplete Future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) OnSuccess(value T)     { f.complete(value, nil) }
func (f *Future[T]) OnException(err error) { f.complete(*new(T), err) }

// complete records the outcome and reports whether it was the first.
func (f *Future[T]) complete(value T, err error) bool {
	first := false
	f.once.Do(func() {
		f.value, f.err = value, err
		close(f.done)
		first = true
	})
	return first
}

// Done is closed once the future completes.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Get blocks until the future completes or ctx is done.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// GetTimeout blocks for at most d.
func (f *Future[T]) GetTimeout(d time.Duration) (T, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return f.Get(ctx)
}

// Go runs fn on a new goroutine and returns its future. A panic in fn
// completes the future with a *chain.PanicError.
func Go[T any](ctx context.Context, fn func(context.Context) (T, error)) *Future[T] {
	f := NewFuture[T]()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				f.OnException(&chain.PanicError{Value: r, Stack: debug.Stack()})
			}
		}()
		value, err := fn(ctx)
		if err != nil {
			f.OnException(err)
			return
		}
		f.OnSuccess(value)
	}()
	return f
}

// notify forwards a future's outcome to l once it completes.
func notify[T any](f *Future[T], l Listener[T]) {
	go func() {
		<-f.done
		if f.err != nil {
			l.OnException(f.err)
			return
		}
		l.OnSuccess(f.value)
	}()
}

// NextAsync starts the tree on a new goroutine and reports the step to l.
func (s *AuthService) NextAsync(ctx context.Context, l NodeListener) *Future[*Step] {
	f := Go(ctx, s.Next)
	if l != nil {
		notify(f, l)
	}
	return f
}

// NextAsync submits the node on a new goroutine and reports the step to l.
func (n *Node) NextAsync(ctx context.Context, l NodeListener) *Future[*Step] {
	f := Go(ctx, n.Next)
	if l != nil {
		notify(f, l)
	}
	return f
}
