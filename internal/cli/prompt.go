package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
	"golang.org/x/term"

	"github.com/aussiebroadwan/treeauth/pkg/authsdk"
)

var errNoInput = errors.New("cli: input closed")

// otpPromptHints mark a text prompt as asking for a one-time password.
var otpPromptHints = []string{"one time password", "one-time password", "verification code", "otp"}

// Prompter answers node callbacks from a terminal. One-time password
// prompts are answered from the configured TOTP secret when there is one.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer

	// readSecret reads a password without echo. Nil falls back to in.
	readSecret func() (string, error)

	totpSecret string
	now        func() time.Time
}

func NewPrompter(in io.Reader, out io.Writer, totpSecret string) *Prompter {
	return &Prompter{
		in:         bufio.NewReader(in),
		out:        out,
		readSecret: terminalSecretReader(in),
		totpSecret: strings.TrimSpace(totpSecret),
		now:        time.Now,
	}
}

// terminalSecretReader returns a no-echo reader when in is a terminal.
func terminalSecretReader(in io.Reader) func() (string, error) {
	f, ok := in.(interface{ Fd() uintptr })
	if !ok {
		return nil
	}
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return nil
	}
	return func() (string, error) {
		b, err := term.ReadPassword(fd)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}
}

// Answer fills in every callback of node.
func (p *Prompter) Answer(node *authsdk.Node) error {
	if node.Header != "" {
		p.printf("%s\n", node.Header)
	}
	if node.Description != "" {
		p.printf("%s\n", node.Description)
	}

	for _, cb := range node.Callbacks() {
		if err := p.answer(cb); err != nil {
			return fmt.Errorf("%s: %w", cb.Type, err)
		}
	}
	return nil
}

func (p *Prompter) answer(cb *authsdk.Callback) error {
	switch cb.Type {
	case authsdk.NameCallback, authsdk.TextInputCallback,
		authsdk.ValidatedCreateUsernameCallback, authsdk.StringAttributeInputCallback:
		code, ok, err := p.oneTimePassword(cb.Prompt())
		if err != nil {
			return err
		}
		if ok {
			p.printf("%s: (generated)\n", cb.Prompt())
			return cb.SetValue(code)
		}
		value, err := p.ask(cb.Prompt())
		if err != nil {
			return err
		}
		return cb.SetValue(value)

	case authsdk.PasswordCallback, authsdk.ValidatedCreatePasswordCallback:
		value, err := p.askSecret(cb.Prompt())
		if err != nil {
			return err
		}
		return cb.SetValue(value)

	case authsdk.ChoiceCallback, authsdk.ConfirmationCallback:
		return p.choose(cb)

	case authsdk.BooleanAttributeInputCallback, authsdk.TermsAndConditionsCallback:
		if terms := cb.OutputString("terms"); terms != "" {
			p.printf("%s\n", terms)
		}
		prompt := cb.Prompt()
		if prompt == "" {
			prompt = "Accept"
		}
		value, err := p.ask(prompt + " [y/N]")
		if err != nil {
			return err
		}
		yes := strings.EqualFold(value, "y") || strings.EqualFold(value, "yes")
		return cb.SetValue(yes)

	case authsdk.NumberAttributeInputCallback:
		value, err := p.ask(cb.Prompt())
		if err != nil {
			return err
		}
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("not a number: %q", value)
		}
		return cb.SetValue(n)

	case authsdk.KbaCreateCallback:
		question, err := p.ask("Security question")
		if err != nil {
			return err
		}
		answer, err := p.ask("Answer")
		if err != nil {
			return err
		}
		if err := cb.SetInput("question", question); err != nil {
			return err
		}
		return cb.SetInput("answer", answer)

	case authsdk.TextOutputCallback, authsdk.SuspendedTextOutputCallback, authsdk.PollingWaitCallback:
		if msg := cb.Prompt(); msg != "" {
			p.printf("%s\n", msg)
		}
		return nil

	case authsdk.HiddenValueCallback, authsdk.MetadataCallback:
		return nil
	}

	return errors.New("cannot be answered from a terminal")
}

// choose answers a choice or confirmation with the option's index.
func (p *Prompter) choose(cb *authsdk.Callback) error {
	options := cb.Choices()
	if len(options) == 0 {
		return errors.New("no options offered")
	}

	def := -1
	for _, name := range []string{"defaultChoice", "defaultOption"} {
		if v, ok := cb.OutputValue(name); ok {
			if f, ok := v.(float64); ok {
				def = int(f)
			}
		}
	}

	if prompt := cb.Prompt(); prompt != "" {
		p.printf("%s\n", prompt)
	}
	for i, opt := range options {
		marker := " "
		if i == def {
			marker = "*"
		}
		p.printf("%s %d) %s\n", marker, i+1, opt)
	}

	for {
		value, err := p.ask("Choose")
		if err != nil {
			return err
		}
		if value == "" && def >= 0 {
			return cb.SetValue(def)
		}
		n, err := strconv.Atoi(value)
		if err == nil && n >= 1 && n <= len(options) {
			return cb.SetValue(n - 1)
		}
		p.printf("Enter a number between 1 and %d\n", len(options))
	}
}

// oneTimePassword returns a TOTP code when prompt asks for one and a
// secret is configured.
func (p *Prompter) oneTimePassword(prompt string) (string, bool, error) {
	if p.totpSecret == "" || !isOTPPrompt(prompt) {
		return "", false, nil
	}
	code, err := totp.GenerateCode(p.totpSecret, p.now())
	if err != nil {
		return "", false, fmt.Errorf("failed to generate one-time password: %w", err)
	}
	return code, true, nil
}

func isOTPPrompt(prompt string) bool {
	lower := strings.ToLower(prompt)
	for _, hint := range otpPromptHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

func (p *Prompter) ask(prompt string) (string, error) {
	if prompt == "" {
		prompt = "Value"
	}
	p.printf("%s: ", prompt)

	line, err := p.in.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		if errors.Is(err, io.EOF) {
			return "", errNoInput
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (p *Prompter) askSecret(prompt string) (string, error) {
	if p.readSecret == nil {
		return p.ask(prompt)
	}
	if prompt == "" {
		prompt = "Password"
	}
	p.printf("%s: ", prompt)
	value, err := p.readSecret()
	p.printf("\n")
	if err != nil {
		return "", err
	}
	return value, nil
}

func (p *Prompter) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.out, format, args...)
}
