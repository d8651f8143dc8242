package cryptox_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aussiebroadwan/treeauth/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func staticKey(s string) cryptox.KeySource {
	return cryptox.KeySourceFunc(func() ([]byte, error) { return []byte(s), nil })
}

func TestCipherRoundTrip(t *testing.T) {
	t.Parallel()

	c := cryptox.NewCipher(staticKey("test-master-key"), "treeauth/secrets")

	sealed, err := c.Seal([]byte(`{"value":"at"}`), []byte("tokens/access_token"))
	require.NoError(t, err)

	again, err := c.Seal([]byte(`{"value":"at"}`), []byte("tokens/access_token"))
	require.NoError(t, err)
	require.NotEqual(t, sealed, again, "nonces must differ")

	plain, err := c.Open(sealed, []byte("tokens/access_token"))
	require.NoError(t, err)
	require.Equal(t, `{"value":"at"}`, string(plain))

	t.Run("wrong aad", func(t *testing.T) {
		_, err := c.Open(sealed, []byte("sso/sso_token"))
		require.Error(t, err)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := c.Open(sealed[:4], nil)
		require.Error(t, err)
	})
}

func TestCipherInfoSeparatesKeys(t *testing.T) {
	t.Parallel()

	a := cryptox.NewCipher(staticKey("same"), "a")
	b := cryptox.NewCipher(staticKey("same"), "b")

	sealed, err := a.Seal([]byte("x"), nil)
	require.NoError(t, err)
	_, err = b.Open(sealed, nil)
	require.Error(t, err)
}

func TestCipherResetReloadsSource(t *testing.T) {
	t.Parallel()

	loads := 0
	src := cryptox.KeySourceFunc(func() ([]byte, error) {
		loads++
		if loads == 1 {
			return nil, errors.New("keystore locked")
		}
		return []byte("recovered"), nil
	})
	c := cryptox.NewCipher(src, "t")

	_, err := c.Seal([]byte("x"), nil)
	require.Error(t, err)

	c.Reset()
	_, err = c.Seal([]byte("x"), nil)
	require.NoError(t, err)

	// Cached after a successful load.
	_, err = c.Seal([]byte("y"), nil)
	require.NoError(t, err)
	require.Equal(t, 2, loads)
}

func TestEphemeralKeyInvalidatesOnReset(t *testing.T) {
	t.Parallel()

	c := cryptox.NewCipher(cryptox.EphemeralKey(), "t")
	sealed, err := c.Seal([]byte("x"), nil)
	require.NoError(t, err)

	c.Reset()
	_, err = c.Open(sealed, nil)
	require.Error(t, err)
}

func TestKeySources(t *testing.T) {
	t.Run("file trims whitespace", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "master.key")
		require.NoError(t, os.WriteFile(path, []byte("  abc\n"), 0o600))

		material, err := cryptox.FileKey(path).Load()
		require.NoError(t, err)
		require.Equal(t, "abc", string(material))
	})

	t.Run("static", func(t *testing.T) {
		material, err := cryptox.StaticKey("configured").Load()
		require.NoError(t, err)
		require.Equal(t, "configured", string(material))
	})

	t.Run("first key falls through", func(t *testing.T) {
		src := cryptox.FirstKey(
			cryptox.FileKey(filepath.Join(t.TempDir(), "missing")),
			cryptox.StaticKey(""),
			staticKey("last"),
		)
		material, err := src.Load()
		require.NoError(t, err)
		require.Equal(t, "last", string(material))
	})

	t.Run("first key exhausted", func(t *testing.T) {
		_, err := cryptox.FirstKey(cryptox.StaticKey("")).Load()
		require.ErrorIs(t, err, cryptox.ErrNoKeyMaterial)
	})
}
