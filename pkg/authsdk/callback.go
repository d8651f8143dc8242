package authsdk

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// CallbackKind is the "type" string AM puts on each callback.
type CallbackKind string

// Callback kinds AM ships with.
const (
	NameCallback                     CallbackKind = "NameCallback"
	PasswordCallback                 CallbackKind = "PasswordCallback"
	ChoiceCallback                   CallbackKind = "ChoiceCallback"
	ConfirmationCallback             CallbackKind = "ConfirmationCallback"
	TextOutputCallback               CallbackKind = "TextOutputCallback"
	TextInputCallback                CallbackKind = "TextInputCallback"
	HiddenValueCallback              CallbackKind = "HiddenValueCallback"
	MetadataCallback                 CallbackKind = "MetadataCallback"
	PollingWaitCallback              CallbackKind = "PollingWaitCallback"
	SuspendedTextOutputCallback      CallbackKind = "SuspendedTextOutputCallback"
	RedirectCallback                 CallbackKind = "RedirectCallback"
	ValidatedCreateUsernameCallback  CallbackKind = "ValidatedCreateUsernameCallback"
	ValidatedCreatePasswordCallback  CallbackKind = "ValidatedCreatePasswordCallback"
	StringAttributeInputCallback     CallbackKind = "StringAttributeInputCallback"
	BooleanAttributeInputCallback    CallbackKind = "BooleanAttributeInputCallback"
	NumberAttributeInputCallback     CallbackKind = "NumberAttributeInputCallback"
	KbaCreateCallback                CallbackKind = "KbaCreateCallback"
	TermsAndConditionsCallback       CallbackKind = "TermsAndConditionsCallback"
	ConsentMappingCallback           CallbackKind = "ConsentMappingCallback"
	ReCaptchaCallback                CallbackKind = "ReCaptchaCallback"
	ReCaptchaEnterpriseCallback      CallbackKind = "ReCaptchaEnterpriseCallback"
	DeviceProfileCallback            CallbackKind = "DeviceProfileCallback"
	DeviceBindingCallback            CallbackKind = "DeviceBindingCallback"
	DeviceSigningVerifierCallback    CallbackKind = "DeviceSigningVerifierCallback"
	SelectIdPCallback                CallbackKind = "SelectIdPCallback"
	IdPCallback                      CallbackKind = "IdPCallback"
	AppIntegrityCallback             CallbackKind = "AppIntegrityCallback"
	PingOneProtectInitializeCallback CallbackKind = "PingOneProtectInitializeCallback"
	PingOneProtectEvaluationCallback CallbackKind = "PingOneProtectEvaluationCallback"
)

var builtinCallbackKinds = []CallbackKind{
	NameCallback, PasswordCallback, ChoiceCallback, ConfirmationCallback,
	TextOutputCallback, TextInputCallback, HiddenValueCallback, MetadataCallback,
	PollingWaitCallback, SuspendedTextOutputCallback, RedirectCallback,
	ValidatedCreateUsernameCallback, ValidatedCreatePasswordCallback,
	StringAttributeInputCallback, BooleanAttributeInputCallback, NumberAttributeInputCallback,
	KbaCreateCallback, TermsAndConditionsCallback, ConsentMappingCallback,
	ReCaptchaCallback, ReCaptchaEnterpriseCallback, DeviceProfileCallback,
	DeviceBindingCallback, DeviceSigningVerifierCallback, SelectIdPCallback, IdPCallback,
	AppIntegrityCallback, PingOneProtectInitializeCallback, PingOneProtectEvaluationCallback,
}

// CallbackRegistry is the set of callback kinds a client understands.
// Nodes containing any other kind are rejected.
type CallbackRegistry struct {
	mu    sync.RWMutex
	kinds map[CallbackKind]struct{}
}

// NewCallbackRegistry returns a registry holding the built-in kinds.
func NewCallbackRegistry() *CallbackRegistry {
	r := &CallbackRegistry{kinds: make(map[CallbackKind]struct{}, len(builtinCallbackKinds))}
	for _, k := range builtinCallbackKinds {
		r.kinds[k] = struct{}{}
	}
	return r
}

// Register adds extension kinds, e.g. a custom node's callback.
func (r *CallbackRegistry) Register(kinds ...CallbackKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range kinds {
		r.kinds[k] = struct{}{}
	}
}

// Supports reports whether kind is registered.
func (r *CallbackRegistry) Supports(kind CallbackKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.kinds[kind]
	return ok
}

// ============================================================================
// Callback
// ============================================================================

// Field is one name/value pair of a callback's output or input list.
type Field struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Callback is one prompt within a node. Output carries what the server
// shows; Input carries what the client sends back.
type Callback struct {
	Type   CallbackKind
	Output []Field
	Input  []Field

	// ID is the server's _id when sent, otherwise the callback's position
	// in the node.
	ID int

	explicitID bool

	// raw is the callback object as the server sent it. Keys other than
	// the ones above are echoed back untouched.
	raw map[string]json.RawMessage
}

type callbackJSON struct {
	Type   CallbackKind `json:"type"`
	Output []Field      `json:"output"`
	Input  []Field      `json:"input,omitempty"`
	ID     *int         `json:"_id,omitempty"`
}

func (c *Callback) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.raw)+4)
	for k, v := range c.raw {
		out[k] = v
	}

	out["type"] = c.Type
	if c.Output == nil {
		out["output"] = []Field{}
	} else {
		out["output"] = c.Output
	}
	if len(c.Input) > 0 {
		out["input"] = c.Input
	} else {
		delete(out, "input")
	}
	if c.explicitID {
		out["_id"] = c.ID
	} else {
		delete(out, "_id")
	}
	return json.Marshal(out)
}

// parseCallback decodes one callback at position index.
func parseCallback(raw json.RawMessage, index int, reg *CallbackRegistry) (*Callback, error) {
	var in callbackJSON
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("failed to decode callback %d: %w", index, err)
	}
	if !reg.Supports(in.Type) {
		return nil, &UnsupportedCallbackError{Type: string(in.Type)}
	}

	var rawFields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &rawFields); err != nil {
		return nil, fmt.Errorf("failed to decode callback %d: %w", index, err)
	}

	cb := &Callback{Type: in.Type, Output: in.Output, Input: in.Input, ID: index, raw: rawFields}
	if in.ID != nil {
		cb.ID = *in.ID
		cb.explicitID = true
	}
	return cb, nil
}

// OutputValue returns the output field called name.
func (c *Callback) OutputValue(name string) (any, bool) {
	for _, f := range c.Output {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// OutputString is OutputValue for string fields; "" when absent.
func (c *Callback) OutputString(name string) string {
	v, _ := c.OutputValue(name)
	s, _ := v.(string)
	return s
}

// Prompt returns the human readable prompt, if the callback has one.
func (c *Callback) Prompt() string {
	for _, name := range []string{"prompt", "message"} {
		if s := c.OutputString(name); s != "" {
			return s
		}
	}
	return ""
}

// InputValue returns the current value of the input field called name.
// Names may be given in full ("IDToken1") or by suffix ("validateOnly"
// matches "IDToken1validateOnly").
func (c *Callback) InputValue(name string) (any, bool) {
	if i := c.inputIndex(name); i >= 0 {
		return c.Input[i].Value, true
	}
	return nil, false
}

// SetValue sets the first input field, the one every single-value
// callback uses for its answer.
func (c *Callback) SetValue(v any) error {
	if len(c.Input) == 0 {
		return fmt.Errorf("authsdk: %s has no input", c.Type)
	}
	c.Input[0].Value = v
	return nil
}

// SetInput sets the input field called name, matched like InputValue.
func (c *Callback) SetInput(name string, v any) error {
	i := c.inputIndex(name)
	if i < 0 {
		return fmt.Errorf("authsdk: %s has no input %q", c.Type, name)
	}
	c.Input[i].Value = v
	return nil
}

func (c *Callback) inputIndex(name string) int {
	for i, f := range c.Input {
		if f.Name == name {
			return i
		}
	}
	for i, f := range c.Input {
		if strings.HasSuffix(f.Name, name) && f.Name != name {
			return i
		}
	}
	return -1
}

// Choices returns the options of a ChoiceCallback or ConfirmationCallback.
func (c *Callback) Choices() []string {
	for _, name := range []string{"choices", "options"} {
		v, ok := c.OutputValue(name)
		if !ok {
			continue
		}
		list, _ := v.([]any)
		out := make([]string, 0, len(list))
		for _, item := range list {
			out = append(out, fmt.Sprint(item))
		}
		return out
	}
	return nil
}

// WaitTime returns the waitTime output of a PollingWaitCallback in
// milliseconds, or 0.
func (c *Callback) WaitTime() int {
	v, _ := c.OutputValue("waitTime")
	switch n := v.(type) {
	case float64:
		return int(n)
	case string:
		var ms int
		_, _ = fmt.Sscan(n, &ms)
		return ms
	}
	return 0
}

// metadataStage returns the "stage" key of a MetadataCallback's data
// output. Older AM versions send the node stage this way.
func (c *Callback) metadataStage() string {
	if c.Type != MetadataCallback {
		return ""
	}
	data, ok := c.OutputValue("data")
	if !ok {
		return ""
	}
	m, _ := data.(map[string]any)
	stage, _ := m["stage"].(string)
	return stage
}
