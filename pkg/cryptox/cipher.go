package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/crypto/hkdf"
)

// ErrNoKeyMaterial is returned by a KeySource that has nothing to offer.
var ErrNoKeyMaterial = errors.New("cryptox: no key material")

// KeySource yields raw master key material. The material is stretched with
// HKDF, so it does not need to be exactly 32 bytes.
type KeySource interface {
	Load() ([]byte, error)
}

// KeySourceFunc adapts a function to KeySource.
type KeySourceFunc func() ([]byte, error)

func (f KeySourceFunc) Load() ([]byte, error) { return f() }

// StaticKey returns material as-is. An empty string is reported as
// missing key material.
func StaticKey(material string) KeySource {
	return KeySourceFunc(func() ([]byte, error) {
		if material == "" {
			return nil, fmt.Errorf("%w: empty master key", ErrNoKeyMaterial)
		}
		return []byte(material), nil
	})
}

// FileKey reads key material from path. Surrounding whitespace is trimmed
// so keys written with a trailing newline still work.
func FileKey(path string) KeySource {
	return KeySourceFunc(func() ([]byte, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read master key file: %w", err)
		}
		data = []byte(strings.TrimSpace(string(data)))
		if len(data) == 0 {
			return nil, fmt.Errorf("%w: %s is empty", ErrNoKeyMaterial, path)
		}
		return data, nil
	})
}

// EphemeralKey generates fresh random material on every load. Values sealed
// under it do not survive a restart or a Reset.
func EphemeralKey() KeySource {
	return KeySourceFunc(func() ([]byte, error) {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("failed to generate ephemeral master key: %w", err)
		}
		return buf, nil
	})
}

// FirstKey tries each source in order and returns the first material found.
func FirstKey(sources ...KeySource) KeySource {
	return KeySourceFunc(func() ([]byte, error) {
		var errs []error
		for _, s := range sources {
			material, err := s.Load()
			if err == nil {
				return material, nil
			}
			errs = append(errs, err)
		}
		return nil, errors.Join(append([]error{ErrNoKeyMaterial}, errs...)...)
	})
}

// Cipher seals values with AES-256-GCM under a key derived from a
// KeySource. The key is loaded lazily and cached until Reset.
//
// Sealed format: [12-byte nonce][ciphertext][16-byte tag].
type Cipher struct {
	source KeySource
	info   []byte

	mu   sync.Mutex
	aead cipher.AEAD
}

// NewCipher returns a Cipher over source. info separates keys derived from
// the same material for different purposes.
func NewCipher(source KeySource, info string) *Cipher {
	return &Cipher{source: source, info: []byte(info)}
}

func (c *Cipher) load() (cipher.AEAD, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.aead != nil {
		return c.aead, nil
	}

	material, err := c.source.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load master key: %w", err)
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, material, nil, c.info), key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	c.aead = aead
	return aead, nil
}

// Seal encrypts plaintext. aad is authenticated but not encrypted; callers
// bind the storage key here so values cannot be swapped between rows.
func (c *Cipher) Seal(plaintext, aad []byte) ([]byte, error) {
	aead, err := c.load()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, aad), nil
}

// Open decrypts data produced by Seal with the same aad.
func (c *Cipher) Open(sealed, aad []byte) ([]byte, error) {
	aead, err := c.load()
	if err != nil {
		return nil, err
	}

	nonceSize := aead.NonceSize()
	if len(sealed) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}

	plaintext, err := aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], aad)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}

// Reset drops the cached key so the next operation reloads material from
// the source. Values sealed before a Reset may no longer open.
func (c *Cipher) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aead = nil
}
