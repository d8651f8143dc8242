package authsdk

import (
	"context"

	"github.com/aussiebroadwan/treeauth/pkg/chain"
)

// Kind names an Outcome variant.
type Kind string

const (
	KindNone        Kind = ""
	KindSSOToken    Kind = "sso_token"
	KindAccessToken Kind = "access_token"
	KindSession     Kind = "session"
	KindUser        Kind = "user"
)

// Outcome is the payload threaded through a tree's interceptor chain. The
// chain starts with an *SSOToken (or nil) and interceptors turn it into
// whatever the caller asked for.
type Outcome interface {
	Kind() Kind
}

func (*SSOToken) Kind() Kind    { return KindSSOToken }
func (*AccessToken) Kind() Kind { return KindAccessToken }

// KindOf returns the kind of o, KindNone for nil.
func KindOf(o Outcome) Kind {
	if o == nil {
		return KindNone
	}
	return o.Kind()
}

// Interceptor is a chain step over Outcome payloads.
type Interceptor = chain.Interceptor[Outcome]

// Chain is a position in an Outcome interceptor chain.
type Chain = chain.Chain[Outcome]

// InterceptorFunc builds an interceptor that only acts on payloads of kind.
func InterceptorFunc(kind Kind, fn func(ctx context.Context, next Chain, payload Outcome) (Outcome, error)) Interceptor {
	return chain.Func[Outcome]{
		AcceptsFn:   func(p Outcome) bool { return KindOf(p) == kind },
		InterceptFn: fn,
	}
}
