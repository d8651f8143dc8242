package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/treeauth/pkg/authsdk"
)

func textCallback(kind authsdk.CallbackKind, prompt string) *authsdk.Callback {
	return &authsdk.Callback{
		Type:   kind,
		Output: []authsdk.Field{{Name: "prompt", Value: prompt}},
		Input:  []authsdk.Field{{Name: "IDToken1", Value: ""}},
	}
}

func inputValue(t *testing.T, cb *authsdk.Callback, name string) any {
	t.Helper()
	v, ok := cb.InputValue(name)
	require.True(t, ok)
	return v
}

func TestPrompterText(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	p := NewPrompter(strings.NewReader("alice\r\nsecret\n"), &out, "")

	name := textCallback(authsdk.NameCallback, "User Name")
	password := textCallback(authsdk.PasswordCallback, "Password")
	require.NoError(t, p.answer(name))
	require.NoError(t, p.answer(password))

	require.Equal(t, "alice", inputValue(t, name, "IDToken1"))
	require.Equal(t, "secret", inputValue(t, password, "IDToken1"))
	require.Contains(t, out.String(), "User Name: ")

	_, err := p.ask("more")
	require.ErrorIs(t, err, errNoInput)
}

func TestPrompterSecretSkipsLineReader(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	p := NewPrompter(strings.NewReader("alice\n"), &out, "")
	require.Nil(t, p.readSecret)

	reads := 0
	p.readSecret = func() (string, error) {
		reads++
		return "hunter2", nil
	}

	name := textCallback(authsdk.NameCallback, "User Name")
	password := textCallback(authsdk.ValidatedCreatePasswordCallback, "Password")
	require.NoError(t, p.answer(name))
	require.NoError(t, p.answer(password))

	require.Equal(t, 1, reads)
	require.Equal(t, "alice", inputValue(t, name, "IDToken1"))
	require.Equal(t, "hunter2", inputValue(t, password, "IDToken1"))
	require.NotContains(t, out.String(), "hunter2")
	require.Contains(t, out.String(), "Password: \n")

	_, err := p.ask("more")
	require.ErrorIs(t, err, errNoInput)
}

func TestPrompterChoice(t *testing.T) {
	t.Parallel()

	choice := &authsdk.Callback{
		Type: authsdk.ChoiceCallback,
		Output: []authsdk.Field{
			{Name: "prompt", Value: "Send code by"},
			{Name: "choices", Value: []any{"sms", "email"}},
			{Name: "defaultChoice", Value: float64(1)},
		},
		Input: []authsdk.Field{{Name: "IDToken1", Value: 0}},
	}

	t.Run("explicit", func(t *testing.T) {
		t.Parallel()
		cb := *choice
		cb.Input = []authsdk.Field{{Name: "IDToken1", Value: 0}}
		var out bytes.Buffer
		p := NewPrompter(strings.NewReader("7\n1\n"), &out, "")
		require.NoError(t, p.answer(&cb))
		require.Equal(t, 0, inputValue(t, &cb, "IDToken1"))
		require.Contains(t, out.String(), "Enter a number between 1 and 2")
		require.Contains(t, out.String(), "* 2) email")
	})

	t.Run("default", func(t *testing.T) {
		t.Parallel()
		cb := *choice
		cb.Input = []authsdk.Field{{Name: "IDToken1", Value: 0}}
		p := NewPrompter(strings.NewReader("\n"), &bytes.Buffer{}, "")
		require.NoError(t, p.answer(&cb))
		require.Equal(t, 1, inputValue(t, &cb, "IDToken1"))
	})
}

func TestPrompterTypedInputs(t *testing.T) {
	t.Parallel()

	boolean := textCallback(authsdk.BooleanAttributeInputCallback, "Subscribe")
	number := textCallback(authsdk.NumberAttributeInputCallback, "Age")
	kba := &authsdk.Callback{
		Type: authsdk.KbaCreateCallback,
		Input: []authsdk.Field{
			{Name: "IDToken1question", Value: ""},
			{Name: "IDToken1answer", Value: ""},
		},
	}

	p := NewPrompter(strings.NewReader("yes\n42\nFirst pet?\nRex\n"), &bytes.Buffer{}, "")
	require.NoError(t, p.answer(boolean))
	require.NoError(t, p.answer(number))
	require.NoError(t, p.answer(kba))

	require.Equal(t, true, inputValue(t, boolean, "IDToken1"))
	require.Equal(t, float64(42), inputValue(t, number, "IDToken1"))
	require.Equal(t, "First pet?", inputValue(t, kba, "question"))
	require.Equal(t, "Rex", inputValue(t, kba, "answer"))

	bad := NewPrompter(strings.NewReader("many\n"), &bytes.Buffer{}, "")
	require.Error(t, bad.answer(textCallback(authsdk.NumberAttributeInputCallback, "Age")))
}

func TestPrompterOutputsAndUnsupported(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	p := NewPrompter(strings.NewReader(""), &out, "")

	message := &authsdk.Callback{
		Type:   authsdk.TextOutputCallback,
		Output: []authsdk.Field{{Name: "message", Value: "Check your inbox"}},
	}
	require.NoError(t, p.answer(message))
	require.NoError(t, p.answer(&authsdk.Callback{Type: authsdk.HiddenValueCallback}))
	require.Contains(t, out.String(), "Check your inbox")

	require.Error(t, p.answer(&authsdk.Callback{Type: authsdk.DeviceBindingCallback}))
}

func TestPrompterOneTimePassword(t *testing.T) {
	t.Parallel()

	key, err := totp.Generate(totp.GenerateOpts{Issuer: "treeauth", AccountName: "alice"})
	require.NoError(t, err)

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p := NewPrompter(strings.NewReader(""), &bytes.Buffer{}, key.Secret())
	p.now = func() time.Time { return now }

	cb := textCallback(authsdk.NameCallback, "Enter verification code")
	require.NoError(t, p.answer(cb))

	want, err := totp.GenerateCode(key.Secret(), now)
	require.NoError(t, err)
	require.Equal(t, want, inputValue(t, cb, "IDToken1"))

	require.True(t, isOTPPrompt("One Time Password"))
	require.False(t, isOTPPrompt("User Name"))
}
