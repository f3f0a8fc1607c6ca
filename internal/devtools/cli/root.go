// Package cli is the devtools command surface: thin cobra commands over
// the keys, token, compose and history packages.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/dbaccess-devtools/internal/devtools/app"
	"github.com/aussiebroadwan/dbaccess-devtools/pkg/slogx"
)

type rootFlags struct {
	BaseDir   string
	KeyDir    string
	LogLevel  string
	KeyPolicy string
}

// env is what every subcommand runs against. It is filled in by the root
// command's PersistentPreRunE, after flags are parsed.
type env struct {
	app *app.Application
	con *console
}

// NewRootCommand builds the devtools command tree. opts are passed to
// app.New and exist for tests.
func NewRootCommand(opts ...app.Option) *cobra.Command {
	return newRoot(&env{}, opts...)
}

func newRoot(e *env, opts ...app.Option) *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:   "devtools",
		Short: "Keys, test tokens and local stacks for the dbaccess API",
		Long: `devtools manages the local tooling around the safe-temporary-db-access API.

It generates the EC256 key pair the API trusts, mints short-lived ES256
tokens for the seeded test users, produces deliberately broken tokens for
negative testing, and starts or stops the local Docker Compose stacks.

Paths and claims are configured through DEVTOOLS_* environment variables.`,
		Version:       app.BuildVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg := app.LoadConfig()
			if flags.BaseDir != "" {
				cfg = cfg.Rebase(flags.BaseDir)
			}
			if flags.KeyDir != "" {
				cfg.KeyDir = flags.KeyDir
			}
			if flags.LogLevel != "" {
				cfg.LogLevel = flags.LogLevel
			}
			if flags.KeyPolicy != "" {
				cfg.KeyPolicy = flags.KeyPolicy
			}

			a, err := app.New(cfg, opts...)
			if err != nil {
				return err
			}
			e.app = a
			e.con = newConsole(cmd.OutOrStdout(), cmd.ErrOrStderr())

			ctx, _ := slogx.ForCommand(cmd.Context(), a.Logger(), cmd.CommandPath())
			cmd.SetContext(ctx)
			return nil
		},
	}
	cmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.BaseDir, "base-dir", "", "repository root (default: $DEVTOOLS_BASE_DIR or the working directory)")
	pf.StringVar(&flags.KeyDir, "key-dir", "", "JWT key directory (default: <base>/devtools/jwt)")
	pf.StringVar(&flags.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&flags.KeyPolicy, "key-policy", "", "auto generates missing keys, require refuses")

	cmd.AddCommand(
		newDepsCommand(e),
		newKeysCommand(e),
		newTokenCommand(e),
		newComposeCommand(e),
		newHistoryCommand(e),
	)

	return cmd
}

// Execute runs the command tree with args and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer, opts ...app.Option) int {
	e := &env{}
	root := newRoot(e, opts...)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if e.app != nil {
		_ = e.app.Close()
	}

	if err == nil {
		return 0
	}
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(stderr, "interrupted")
		return 130
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	return 1
}

// newSubcommandGroup is a parent command that only groups children.
func newSubcommandGroup(use, short string, subs ...*cobra.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(subs...)
	return cmd
}
