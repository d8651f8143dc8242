package authsdk

import (
	"context"
	"encoding/json"
	"fmt"
)

// Node is one step of a tree: the server's authId plus the callbacks the
// caller has to answer before calling Next.
type Node struct {
	// AuthID correlates the step with the server side tree session and is
	// echoed back verbatim.
	AuthID string

	Stage       string
	Header      string
	Description string

	callbacks     []*Callback
	authServiceID string
	client        *SDKClient
}

// Callbacks returns the node's callbacks in server order. Answers are
// written to the returned callbacks directly.
func (n *Node) Callbacks() []*Callback { return n.callbacks }

// Callback returns the first callback of kind, or nil.
func (n *Node) Callback(kind CallbackKind) *Callback {
	for _, cb := range n.callbacks {
		if cb.Type == kind {
			return cb
		}
	}
	return nil
}

// CallbacksOf returns every callback of kind.
func (n *Node) CallbacksOf(kind CallbackKind) []*Callback {
	var out []*Callback
	for _, cb := range n.callbacks {
		if cb.Type == kind {
			out = append(out, cb)
		}
	}
	return out
}

// SetCallback replaces a callback. A node with a single callback always
// has it replaced; otherwise the callback with the same ID is replaced.
// It reports whether a replacement happened.
func (n *Node) SetCallback(cb *Callback) bool {
	if len(n.callbacks) == 1 {
		n.callbacks[0] = cb
		return true
	}
	for i, existing := range n.callbacks {
		if existing.ID == cb.ID {
			n.callbacks[i] = cb
			return true
		}
	}
	return false
}

// AuthServiceID returns the id of the tree the node belongs to.
func (n *Node) AuthServiceID() string { return n.authServiceID }

// Next submits the node's answers and returns the following step.
func (n *Node) Next(ctx context.Context) (*Step, error) {
	if n.client == nil {
		return nil, ErrAuthServiceNotFound
	}
	return n.client.goToNext(ctx, n)
}

type nodeJSON struct {
	AuthID    string      `json:"authId"`
	Stage     string      `json:"stage,omitempty"`
	Callbacks []*Callback `json:"callbacks"`
}

// MarshalJSON returns the body submitted to the authenticate endpoint.
func (n *Node) MarshalJSON() ([]byte, error) {
	cbs := n.callbacks
	if cbs == nil {
		cbs = []*Callback{}
	}
	return json.Marshal(nodeJSON{AuthID: n.AuthID, Stage: n.Stage, Callbacks: cbs})
}

// Step is the outcome of one authenticate round trip. Exactly one of Node
// and Result is set unless the tree ended without a value.
type Step struct {
	// Node is set while the tree waits for more callbacks.
	Node *Node

	// Result is the interceptor chain's value once the tree completed.
	Result Outcome
}

// Done reports whether the tree finished.
func (s *Step) Done() bool { return s.Node == nil }

// authenticateResponse is the success body of the authenticate endpoint.
type authenticateResponse struct {
	AuthID      string            `json:"authId"`
	TokenID     string            `json:"tokenId"`
	SuccessURL  string            `json:"successUrl"`
	Realm       string            `json:"realm"`
	Stage       string            `json:"stage"`
	Header      string            `json:"header"`
	Description string            `json:"description"`
	Callbacks   []json.RawMessage `json:"callbacks"`
}

// parseNode builds a Node from a continue response. Any callback failing
// to parse rejects the whole node.
func parseNode(resp *authenticateResponse, authServiceID string, reg *CallbackRegistry) (*Node, error) {
	node := &Node{
		AuthID:        resp.AuthID,
		Stage:         resp.Stage,
		Header:        resp.Header,
		Description:   resp.Description,
		authServiceID: authServiceID,
		callbacks:     make([]*Callback, 0, len(resp.Callbacks)),
	}

	for i, raw := range resp.Callbacks {
		cb, err := parseCallback(raw, i, reg)
		if err != nil {
			return nil, err
		}
		node.callbacks = append(node.callbacks, cb)
	}

	if node.Stage == "" {
		for _, cb := range node.callbacks {
			if stage := cb.metadataStage(); stage != "" {
				node.Stage = stage
				break
			}
		}
	}
	return node, nil
}

func (n *Node) String() string {
	return fmt.Sprintf("Node{authService=%s stage=%q callbacks=%d}", n.authServiceID, n.Stage, len(n.callbacks))
}
