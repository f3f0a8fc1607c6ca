package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/dbaccess-devtools/pkg/jwtx"
	"github.com/aussiebroadwan/dbaccess-devtools/pkg/slogx"
)

func newKeysCommand(e *env) *cobra.Command {
	return newSubcommandGroup("keys", "Manage the EC256 key pair the API trusts",
		newKeysGenerate(e),
		newKeysShow(e),
	)
}

func newKeysGenerate(e *env) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate the EC256 key pair if it is missing",
		Long: `Generates a P-256 key pair and writes the private key (PKCS8 PEM) and the
public key (PEM and DER) to the key directory. Existing keys are left
untouched unless --force is given, which deletes and recreates them.

The API must be restarted to pick up a regenerated key.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			provider := e.app.Keys()

			if force && provider.Exists() {
				if err := provider.Remove(); err != nil {
					return err
				}
				slogx.FromContext(ctx).Warn("existing key pair removed", "dir", provider.Paths().Dir)
			}

			created, err := provider.EnsureKeyPair(ctx)
			if err != nil {
				return err
			}
			if created {
				e.con.Success("EC256 key pair generated in %s", provider.Paths().Dir)
			} else {
				e.con.Info("Keys already exist in %s", provider.Paths().Dir)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "delete and regenerate an existing key pair")

	return cmd
}

func newKeysShow(e *env) *cobra.Command {
	var asJWK bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show key file paths and the public key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			provider := e.app.Keys()
			paths := provider.Paths()

			if !provider.Exists() {
				e.con.Error("No keys found in %s", paths.Dir)
				e.con.Info("Run 'devtools keys generate' first.")
				return fmt.Errorf("no keys in %s", paths.Dir)
			}

			// Everything shown is derived from the DER file, which is what
			// the API loads.
			pub, err := provider.LoadPublicKey()
			if err != nil {
				return err
			}
			ks := jwtx.NewKeySet()
			jwk, err := ks.AddPublicKey("", pub)
			if err != nil {
				return err
			}

			if asJWK {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(ks.PublicJWKS())
			}

			e.con.Heading("Key files")
			e.con.Table(cmd.OutOrStdout(), [][]string{
				{"TYPE", "PATH"},
				{"Private key (PEM)", paths.PrivatePEM},
				{"Public key (PEM)", paths.PublicPEM},
				{"Public key (DER)", paths.PublicDER},
			})
			e.con.Info("Key ID (kid header): %s", jwk.Kid)

			pemStr, err := jwk.PEM()
			if err != nil {
				return err
			}
			e.con.Result("\n%s", pemStr)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJWK, "jwk", false, "print the public key as a JWKS document")

	return cmd
}
