package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/dbaccess-devtools/internal/devtools/token"
	"github.com/aussiebroadwan/dbaccess-devtools/pkg/cryptox"
	"github.com/aussiebroadwan/dbaccess-devtools/pkg/jwtx"
	"github.com/aussiebroadwan/dbaccess-devtools/pkg/slogx"
)

func newTokenCommand(e *env) *cobra.Command {
	return newSubcommandGroup("token", "Mint and check test tokens",
		newTokenIssue(e),
		newTokenBroken(e),
		newTokenVariants(e),
		newTokenVerify(e),
	)
}

func newTokenIssue(e *env) *cobra.Command {
	var copyFlag bool

	cmd := &cobra.Command{
		Use:   "issue SUBJECT",
		Short: "Issue a valid 5 minute ES256 token for a test user",
		Long: `Issues a token for one of the configured test users (alice, bob and
charlie by default). The token goes to stdout on its own line; the claim
summary goes to stderr.

With the default key policy a missing key pair is generated first.
With DEVTOOLS_KEY_POLICY=require the command fails instead.`,
		Example: `  curl -H "Authorization: Bearer $(devtools token issue alice)" ...`,
		Args:    cobra.ExactArgs(1),
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return e.app.Issuer().Config().Subjects, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			issued, err := e.app.Issuer().Issue(ctx, args[0])
			if errors.Is(err, token.ErrKeysMissing) {
				e.con.Error("Keys missing. Generate them first with 'devtools keys generate'.")
				return err
			}
			if errors.Is(err, token.ErrUnknownSubject) {
				e.con.Error("Unknown subject %q, choose one of: %s", args[0],
					strings.Join(e.app.Issuer().Config().Subjects, ", "))
				return err
			}
			if err != nil {
				return err
			}

			if issued.KeyCreated {
				e.con.Success("EC256 key pair generated in %s", e.app.Keys().Paths().Dir)
			}
			e.app.RecordIssued(ctx, issued)

			e.con.Result("%s", issued.Token)
			e.con.Heading("Token claims")
			e.con.Table(e.con.errOut, claimRows(&issued.Claims))
			if copyFlag {
				e.con.Copy(issued.Token)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&copyFlag, "copy", "c", false, "also copy the token to the clipboard")

	return cmd
}

func newTokenBroken(e *env) *cobra.Command {
	var copyFlag bool

	cmd := &cobra.Command{
		Use:   "broken VARIANT",
		Short: "Issue a deliberately broken token for negative testing",
		Long: `Issues a token the API must refuse. Run 'devtools token variants' for the
list of variants and the response the API is expected to give for each.`,
		Args: cobra.ExactArgs(1),
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			var names []string
			for _, v := range token.Variants() {
				names = append(names, v.String())
			}
			return names, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			variant, err := token.ParseVariant(args[0])
			if err != nil {
				e.con.Error("Unknown variant %q, run 'devtools token variants' for the list", args[0])
				return err
			}

			broken, err := e.app.Issuer().IssueBroken(ctx, variant)
			if errors.Is(err, token.ErrKeysMissing) {
				e.con.Error("Keys missing. Generate them first with 'devtools keys generate'.")
				return err
			}
			if err != nil {
				return err
			}
			e.app.RecordBroken(ctx, broken)

			e.con.Result("%s", broken.Token)
			e.con.Heading("Broken token: " + broken.Label())
			e.con.Table(e.con.errOut, [][]string{
				{"FIELD", "VALUE"},
				{"Purpose", variant.Describe()},
				{"Expected", fmt.Sprintf("%d %s", variant.Expect().Status(), variant.Expect())},
			})
			if copyFlag {
				e.con.Copy(broken.Token)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&copyFlag, "copy", "c", false, "also copy the token to the clipboard")

	return cmd
}

func newTokenVariants(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "variants",
		Short: "List broken token variants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows := [][]string{{"VARIANT", "PURPOSE", "API RESPONSE"}}
			for _, v := range token.Variants() {
				rows = append(rows, []string{
					v.String(),
					v.Describe(),
					strconv.Itoa(v.Expect().Status()) + " " + string(v.Expect()),
				})
			}
			e.con.Table(cmd.OutOrStdout(), rows)
			return nil
		},
	}
}

func newTokenVerify(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "verify TOKEN",
		Short: "Check a token against the API's acceptance rules",
		Long: `Verifies TOKEN locally with the DER public key, applying the same checks in
the same order as the API: signature, subject, expiry, lifetime, issuer,
audience and finally the user allowlist. Exits non-zero when the API would
refuse the token. Pass - to read the token from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			raw := args[0]
			if raw == "-" {
				b, err := readAllTrimmed(cmd)
				if err != nil {
					return err
				}
				raw = b
			}

			v, err := e.app.Verifier()
			if err != nil {
				return err
			}

			e.describeKnown(cmd, raw)

			claims, err := v.Verify(raw)
			var rej *token.Rejection
			if errors.As(err, &rej) {
				slogx.FromContext(ctx).Info("token rejected", "reason", string(rej.Reason), "error", rej.Err)
				e.con.Result("rejected: %d %s", rej.Reason.Status(), rej.Reason)
				return rej
			}
			if err != nil {
				return err
			}

			e.con.Result("accepted: sub=%s", claims.Subject)
			e.con.Table(e.con.errOut, claimRows(claims))
			return nil
		},
	}
}

// describeKnown reports where a token came from when the history has seen
// it. The history database is only consulted if it already exists.
func (e *env) describeKnown(cmd *cobra.Command, raw string) {
	if _, err := os.Stat(e.app.Config().HistoryFile); err != nil {
		return
	}
	db, err := e.app.History()
	if err != nil {
		return
	}
	iss, err := db.Issuances().FindByFingerprint(cmd.Context(), cryptox.FingerprintToken(raw))
	if err != nil {
		return
	}
	e.con.Info("Issued by devtools at %s as %s (%s)", iss.CreatedAt.Local().Format(time.DateTime), iss.Kind, iss.ID)
}

func claimRows(c *jwtx.Claims) [][]string {
	rows := [][]string{
		{"CLAIM", "VALUE"},
		{"sub", c.Subject},
		{"iss", c.Issuer},
		{"aud", strings.Join(c.Audience, ", ")},
	}
	if c.IssuedAt != nil {
		rows = append(rows, []string{"iat", c.IssuedAt.UTC().Format(time.RFC3339)})
	}
	if c.ExpiresAt != nil {
		rows = append(rows, []string{"exp", c.ExpiresAt.UTC().Format(time.RFC3339)})
	}
	return rows
}

func readAllTrimmed(cmd *cobra.Command) (string, error) {
	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return "", errors.New("no token on stdin")
	}
	return s, nil
}
