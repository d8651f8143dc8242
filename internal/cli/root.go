package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/treeauth/pkg/authsdk"
)

// Env is the process environment a command tree runs against.
type Env struct {
	In     io.Reader
	Out    io.Writer
	Err    io.Writer
	Getenv func(string) string
	Getwd  func() (string, error)

	// SDKOptions are appended to the client options, e.g. a custom
	// HTTP client.
	SDKOptions []authsdk.Option
}

func osEnv() Env {
	return Env{
		In:     os.Stdin,
		Out:    os.Stdout,
		Err:    os.Stderr,
		Getenv: os.Getenv,
		Getwd:  os.Getwd,
	}
}

// Execute runs the CLI against the process environment until it finishes
// or is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCommand(osEnv()).ExecuteContext(ctx)
}

// NewRootCommand builds the command tree.
func NewRootCommand(env Env) *cobra.Command {
	var (
		cfg *Config
		app *Application
	)

	root := &cobra.Command{
		Use:           "treeauth",
		Short:         "Walk AM authentication trees from the terminal",
		Long:          "treeauth signs in to ForgeRock/PingAM by walking an intelligent tree and keeps the resulting session, encrypted, on disk.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" || cmd.Name() == "help" {
				return nil
			}

			cfg = NewConfig()
			if err := cfg.LoadDotEnv(env.Getwd); err != nil {
				return err
			}
			cfg.LoadEnv(env.Getenv)
			cfg.ApplyFlags(cmd.Flags())
			if cfg.LogOutput == nil {
				cfg.LogOutput = env.Err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			var err error
			app, err = New(*cfg, env.SDKOptions...)
			return err
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if app == nil {
				return nil
			}
			return app.Close()
		},
	}
	root.SetIn(env.In)
	root.SetOut(env.Out)
	root.SetErr(env.Err)
	BindFlags(root.PersistentFlags())

	prompter := func() *Prompter { return NewPrompter(env.In, env.Out, cfg.TOTPSecret) }
	client := func() *authsdk.SDKClient { return app.Client() }

	login := &cobra.Command{
		Use:   "login",
		Short: "Walk the login tree and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			step, err := client().Login(cmd.Context())
			return finishUserTree(cmd, step, err, prompter())
		},
	}
	login.Flags().String("tree", "", "tree to walk instead of the configured login tree")

	register := &cobra.Command{
		Use:   "register",
		Short: "Walk the registration tree and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			step, err := client().Register(cmd.Context())
			return finishUserTree(cmd, step, err, prompter())
		},
	}

	var refresh bool
	token := &cobra.Command{
		Use:   "token",
		Short: "Print the current access token, refreshing it when expired",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			user, err := currentUser(cmd, client())
			if err != nil || user == nil {
				return err
			}

			var at *authsdk.AccessToken
			if refresh {
				at, err = client().Sessions().Refresh(ctx)
			} else {
				at, err = user.AccessToken(ctx)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), tokenView{
				AccessToken: at.Value,
				TokenType:   at.TokenType,
				ExpiresAt:   at.Expiration.UTC().Format(time.RFC3339),
				Scope:       at.Scope.String(),
			})
		},
	}
	token.Flags().BoolVar(&refresh, "refresh", false, "refresh the token even if it is still valid")

	userinfo := &cobra.Command{
		Use:   "userinfo",
		Short: "Print the OIDC userinfo of the current user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := currentUser(cmd, client())
			if err != nil || user == nil {
				return err
			}
			info, err := user.UserInfo(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), info.Claims)
		},
	}

	logout := &cobra.Command{
		Use:   "logout",
		Short: "Revoke the stored tokens and end the AM session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := currentUser(cmd, client())
			if err != nil || user == nil {
				return err
			}
			if err := user.Logout(cmd.Context()); err != nil {
				return err
			}
			cmd.Println("Logged out.")
			return nil
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show whether a session is stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			sessions := client().Sessions()
			return printJSON(cmd.OutOrStdout(), statusView{
				Session:     sessions.SingleSignOnManager().HasToken(ctx),
				AccessToken: sessions.TokenManager().HasToken(ctx),
			})
		},
	}

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the version number of treeauth",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s\n", BuildVersion)
		},
	}

	root.AddCommand(login, register, token, userinfo, logout, status, version)
	return root
}

func finishUserTree(cmd *cobra.Command, step *authsdk.Step, err error, p *Prompter) error {
	if errors.Is(err, authsdk.ErrAlreadyAuthenticated) {
		cmd.Println("Already logged in; run logout first.")
		return nil
	}
	if err != nil {
		return err
	}

	step, err = walk(cmd.Context(), step, p)
	if err != nil {
		return err
	}
	if step.User() == nil {
		return errors.New("tree completed without a session")
	}
	cmd.Println("Logged in.")
	return nil
}

// currentUser returns nil without an error when nothing is stored, after
// telling the user so.
func currentUser(cmd *cobra.Command, client *authsdk.SDKClient) (*authsdk.User, error) {
	user, err := client.CurrentUser(cmd.Context())
	if errors.Is(err, authsdk.ErrSessionNotFound) {
		cmd.Println("Not logged in.")
		return nil, nil
	}
	return user, err
}

type tokenView struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	ExpiresAt   string `json:"expires_at"`
	Scope       string `json:"scope,omitempty"`
}

type statusView struct {
	Session     bool `json:"session"`
	AccessToken bool `json:"access_token"`
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
