package authsdk

import (
	"encoding/base64"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
)

// AdviceType identifies the kind of policy advice AM returned with a
// denied policy decision.
type AdviceType int

const (
	AdviceUnknown               AdviceType = -1
	AdviceAuthLevel             AdviceType = 1
	AdviceAuthScheme            AdviceType = 2
	AdviceAuthenticateToRealm   AdviceType = 3
	AdviceAuthenticateToService AdviceType = 4
	AdviceAuthenticateToTree    AdviceType = 5
	AdviceTransaction           AdviceType = 6
)

var adviceTypeNames = map[AdviceType]string{
	AdviceAuthLevel:             "AuthLevelConditionAdvice",
	AdviceAuthScheme:            "AuthSchemeConditionAdvice",
	AdviceAuthenticateToRealm:   "AuthenticateToRealmConditionAdvice",
	AdviceAuthenticateToService: "AuthenticateToServiceConditionAdvice",
	AdviceAuthenticateToTree:    "AuthenticateToTreeConditionAdvice",
	AdviceTransaction:           "TransactionConditionAdvice",
}

// String returns the attribute name AM uses for the advice type.
func (t AdviceType) String() string {
	if name, ok := adviceTypeNames[t]; ok {
		return name
	}
	return "Unknown"
}

// ParseAdviceType maps an advice attribute name to its type.
func ParseAdviceType(name string) AdviceType {
	for t, n := range adviceTypeNames {
		if n == name {
			return t
		}
	}
	return AdviceUnknown
}

// PolicyAdvice directs a tree at a step-up requirement, for example a
// higher auth level or a transaction authorization.
type PolicyAdvice struct {
	Type  string
	Value string
}

// NewPolicyAdvice returns an advice of a known type.
func NewPolicyAdvice(t AdviceType, value string) *PolicyAdvice {
	return &PolicyAdvice{Type: t.String(), Value: value}
}

// Kind returns the typed form of Type.
func (a *PolicyAdvice) Kind() AdviceType { return ParseAdviceType(a.Type) }

// String returns the composite advice XML sent as authIndexValue.
func (a *PolicyAdvice) String() string {
	var b strings.Builder
	b.WriteString(`<Advices><AttributeValuePair><Attribute name="`)
	_ = xml.EscapeText(&b, []byte(a.Type))
	b.WriteString(`"/><Value>`)
	_ = xml.EscapeText(&b, []byte(a.Value))
	b.WriteString(`</Value></AttributeValuePair></Advices>`)
	return b.String()
}

type advicesXML struct {
	XMLName xml.Name `xml:"Advices"`
	Pairs   []struct {
		Attribute struct {
			Name string `xml:"name,attr"`
		} `xml:"Attribute"`
		Values []string `xml:"Value"`
	} `xml:"AttributeValuePair"`
}

// ParseAdvice reads the first attribute/value pair of an advice XML
// document.
func ParseAdvice(doc string) (*PolicyAdvice, error) {
	var parsed advicesXML
	if err := xml.Unmarshal([]byte(doc), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse advice: %w", err)
	}
	for _, p := range parsed.Pairs {
		if p.Attribute.Name == "" {
			continue
		}
		advice := &PolicyAdvice{Type: p.Attribute.Name}
		if len(p.Values) > 0 {
			advice.Value = strings.TrimSpace(p.Values[0])
		}
		return advice, nil
	}
	return nil, errors.New("authsdk: advice has no attribute")
}

// ParseAdviceBase64XML decodes base64 (standard or URL alphabet) and
// parses the result with ParseAdvice.
func ParseAdviceBase64XML(encoded string) (*PolicyAdvice, error) {
	raw, err := decodeBase64(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode advice: %w", err)
	}
	return ParseAdvice(string(raw))
}

// ParseAdviceBase64JSON decodes the base64 JSON form AM puts in the
// WWW-Authenticate header for transactional authorization, e.g.
// {"TransactionConditionAdvice":["7b8bfd4c-60fe-4271-928d-d09b94496f84"]}.
func ParseAdviceBase64JSON(encoded string) (*PolicyAdvice, error) {
	raw, err := decodeBase64(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode advice: %w", err)
	}

	var parsed map[string][]string
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse advice: %w", err)
	}
	for name, values := range parsed {
		advice := &PolicyAdvice{Type: name}
		if len(values) > 0 {
			advice.Value = values[0]
		}
		return advice, nil
	}
	return nil, errors.New("authsdk: advice has no attribute")
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding,
	} {
		if raw, err := enc.DecodeString(s); err == nil {
			return raw, nil
		}
	}
	return nil, errors.New("invalid base64")
}
