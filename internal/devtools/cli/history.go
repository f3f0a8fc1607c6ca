package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/dbaccess-devtools/internal/devtools/domain"
	"github.com/aussiebroadwan/dbaccess-devtools/internal/devtools/store"
	"github.com/aussiebroadwan/dbaccess-devtools/internal/devtools/token"
	"github.com/aussiebroadwan/dbaccess-devtools/pkg/idx"
	"github.com/aussiebroadwan/dbaccess-devtools/pkg/slogx"
)

func newHistoryCommand(e *env) *cobra.Command {
	return newSubcommandGroup("history", "Inspect the log of issued tokens",
		newHistoryList(e),
		newHistoryShow(e),
		newHistoryPrune(e),
	)
}

func newHistoryList(e *env) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recently issued tokens, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := e.app.History()
			if err != nil {
				return err
			}
			list, err := db.Issuances().List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				e.con.Info("No tokens issued yet.")
				return nil
			}

			now := time.Now()
			rows := [][]string{{"ID", "ISSUED", "KIND", "SUBJECT", "ALG", "STATE"}}
			for _, iss := range list {
				state := "-"
				switch {
				case iss.ExpiresAt == nil:
				case iss.ExpiredAt(now):
					state = "expired"
				default:
					state = "expires " + iss.ExpiresAt.Local().Format(time.TimeOnly)
				}
				subject := iss.Subject
				if subject == "" {
					subject = "-"
				}
				rows = append(rows, []string{
					iss.ID.String(),
					iss.CreatedAt.Local().Format(time.DateTime),
					iss.Kind,
					subject,
					iss.Algorithm,
					state,
				})
			}
			e.con.Table(cmd.OutOrStdout(), rows)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum entries to show (0 for all)")

	return cmd
}

func newHistoryShow(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show one history entry and the response the API should give",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := idx.Parse(args[0])
			if err != nil {
				e.con.Error("%q is not a history id, see 'devtools history list'", args[0])
				return err
			}

			db, err := e.app.History()
			if err != nil {
				return err
			}
			iss, err := db.Issuances().Get(cmd.Context(), id)
			if errors.Is(err, store.ErrNotFound) {
				e.con.Error("No history entry %s", id)
				return err
			}
			if err != nil {
				return err
			}

			rows := [][]string{
				{"FIELD", "VALUE"},
				{"id", iss.ID.String()},
				{"created", iss.CreatedAt.Local().Format(time.DateTime)},
				{"kind", iss.Kind},
				{"subject", iss.Subject},
				{"alg", iss.Algorithm},
			}
			if iss.IssuedAt != nil {
				rows = append(rows, []string{"iat", iss.IssuedAt.UTC().Format(time.RFC3339)})
			}
			if iss.ExpiresAt != nil {
				rows = append(rows, []string{"exp", iss.ExpiresAt.UTC().Format(time.RFC3339)})
			}
			rows = append(rows,
				[]string{"fingerprint", iss.Fingerprint},
				[]string{"expected", expectedResponse(iss, time.Now())},
			)
			e.con.Table(cmd.OutOrStdout(), rows)
			return nil
		},
	}
}

// expectedResponse is what the API should answer if the recorded token
// were sent at now.
func expectedResponse(iss domain.Issuance, now time.Time) string {
	if iss.Valid() {
		if iss.ExpiredAt(now) {
			return fmt.Sprintf("%d %s", token.ReasonExpired.Status(), token.ReasonExpired)
		}
		return "accepted"
	}
	v, err := token.ParseVariant(iss.Kind)
	if err != nil {
		return "unknown"
	}
	return fmt.Sprintf("%d %s", v.Expect().Status(), v.Expect())
}

func newHistoryPrune(e *env) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete history entries older than a cutoff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				olderThan = e.app.Config().HistoryRetention
			}
			db, err := e.app.History()
			if err != nil {
				return err
			}

			cutoff := time.Now().Add(-olderThan)
			n, err := db.Issuances().Prune(cmd.Context(), cutoff)
			if err != nil {
				return err
			}
			slogx.FromContext(cmd.Context()).Info("pruned history", "deleted", n, "cutoff", cutoff)
			e.con.Success("Deleted %d entries older than %s", n, olderThan)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "age cutoff (default: $DEVTOOLS_HISTORY_RETENTION, 720h)")

	return cmd
}
