package chain

import "context"

// Func adapts plain functions to the Interceptor interface. A nil AcceptsFn
// accepts every payload.
type Func[P any] struct {
	AcceptsFn   func(P) bool
	InterceptFn func(ctx context.Context, next Chain[P], payload P) (P, error)
}

func (f Func[P]) Accepts(payload P) bool {
	if f.AcceptsFn == nil {
		return true
	}
	return f.AcceptsFn(payload)
}

func (f Func[P]) Intercept(ctx context.Context, next Chain[P], payload P) (P, error) {
	return f.InterceptFn(ctx, next, payload)
}

// Typed returns an interceptor that only accepts payloads whose dynamic type
// is T. fn receives the payload already converted.
func Typed[P any, T any](fn func(ctx context.Context, next Chain[P], payload T) (P, error)) Interceptor[P] {
	return Func[P]{
		AcceptsFn: func(p P) bool {
			_, ok := any(p).(T)
			return ok
		},
		InterceptFn: func(ctx context.Context, next Chain[P], p P) (P, error) {
			return fn(ctx, next, any(p).(T))
		},
	}
}
