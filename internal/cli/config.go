package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

const (
	envPrefix = "TREEAUTH_"

	defaultDatabaseFile = "treeauth.db"
	defaultLogLevel     = "warn"
	defaultLogFormat    = "text"
	defaultEnv          = "dev"
	defaultScope        = "openid profile email"
)

type Config struct {
	URL         string `validate:"required,http_url"` // AM base URL, e.g. https://am.example.com/am
	Realm       string // Optional: realm (default: root)
	CookieName  string // Optional: session cookie name (default: iPlanetDirectoryPro)
	ClientID    string `validate:"required"`     // OAuth2 client the CLI acts as
	RedirectURI string `validate:"required,uri"` // Registered redirect URI; never actually served
	Scope       string `validate:"required"`

	Tree             string // Optional: login tree (default: Login)
	RegistrationTree string // Optional: registration tree (default: Registration)

	DatabaseFile  string `validate:"required"` // SQLite file holding the encrypted session
	MasterKey     string // Optional: master key material, environment only
	MasterKeyFile string // Optional: master key file, used when MasterKey is empty
	TOTPSecret    string // Optional: base32 secret used to answer one-time password prompts

	Timeout  time.Duration `validate:"gte=0"`
	CacheTTL time.Duration `validate:"gte=0"`

	Env       string
	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=json text"`

	// LogOutput defaults to stderr.
	LogOutput io.Writer `validate:"-"`
}

func NewConfig() *Config {
	return &Config{
		Scope:        defaultScope,
		DatabaseFile: defaultDatabaseFile,
		Env:          defaultEnv,
		LogLevel:     defaultLogLevel,
		LogFormat:    defaultLogFormat,
	}
}

// LoadDotEnv applies a .env file from the working directory, if present.
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))
	switch {
	case err == nil:
		c.LoadEnv(func(key string) string { return envMap[key] })
		return nil
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return fmt.Errorf("failed to read .env: %w", err)
	}
}

// LoadEnv applies every non-empty TREEAUTH_* variable.
func (c *Config) LoadEnv(getenv func(string) string) {
	for key, set := range c.setters() {
		if value := getenv(envPrefix + key); value != "" {
			set(value)
		}
	}
}

// BindFlags registers a flag per option. Flags start empty so that only
// the ones given on the command line override the environment; see
// ApplyFlags.
func BindFlags(fs *pflag.FlagSet) {
	fs.String("url", "", "AM base URL")
	fs.String("realm", "", "AM realm")
	fs.String("cookie-name", "", "AM session cookie name")
	fs.String("client-id", "", "OAuth2 client id")
	fs.String("redirect-uri", "", "OAuth2 redirect URI")
	fs.String("scope", "", "OAuth2 scope")
	fs.String("database", "", "session database file")
	fs.String("master-key-file", "", "file holding the session encryption key")
	fs.String("totp-secret", "", "base32 TOTP secret used to answer one-time password prompts")
	fs.String("timeout", "", "HTTP timeout, e.g. 30s")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.String("log-format", "", "log format (json, text)")
}

// ApplyFlags copies the flags that were set on the command line.
func (c *Config) ApplyFlags(fs *pflag.FlagSet) {
	setters := c.setters()
	fs.Visit(func(f *pflag.Flag) {
		if set, ok := setters[flagEnvNames[f.Name]]; ok {
			set(f.Value.String())
		}
	})
}

var flagEnvNames = map[string]string{
	"url":             "URL",
	"realm":           "REALM",
	"cookie-name":     "COOKIE_NAME",
	"client-id":       "CLIENT_ID",
	"redirect-uri":    "REDIRECT_URI",
	"scope":           "SCOPE",
	"tree":            "TREE",
	"database":        "DATABASE_FILE",
	"master-key-file": "MASTER_KEY_FILE",
	"totp-secret":     "TOTP_SECRET",
	"timeout":         "TIMEOUT",
	"log-level":       "LOG_LEVEL",
	"log-format":      "LOG_FORMAT",
}

// setters maps environment names (without prefix) to field setters.
func (c *Config) setters() map[string]func(string) {
	setString := func(o *string) func(string) {
		return func(v string) { *o = v }
	}
	setDuration := func(o *time.Duration) func(string) {
		return func(v string) {
			if d, err := time.ParseDuration(v); err == nil {
				*o = d
				return
			}
			// Bare integers are seconds.
			if secs, err := strconv.Atoi(v); err == nil {
				*o = time.Duration(secs) * time.Second
			}
		}
	}

	return map[string]func(string){
		"URL":               setString(&c.URL),
		"REALM":             setString(&c.Realm),
		"COOKIE_NAME":       setString(&c.CookieName),
		"CLIENT_ID":         setString(&c.ClientID),
		"REDIRECT_URI":      setString(&c.RedirectURI),
		"SCOPE":             setString(&c.Scope),
		"TREE":              setString(&c.Tree),
		"REGISTRATION_TREE": setString(&c.RegistrationTree),
		"DATABASE_FILE":     setString(&c.DatabaseFile),
		"MASTER_KEY":        setString(&c.MasterKey),
		"MASTER_KEY_FILE":   setString(&c.MasterKeyFile),
		"TOTP_SECRET":       setString(&c.TOTPSecret),
		"TIMEOUT":           setDuration(&c.Timeout),
		"CACHE_TTL":         setDuration(&c.CacheTTL),
		"ENV":               setString(&c.Env),
		"LOG_LEVEL":         setString(&c.LogLevel),
		"LOG_FORMAT":        setString(&c.LogFormat),
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
