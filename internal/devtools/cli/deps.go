package cli

import (
	"errors"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"
)

func newDepsCommand(e *env) *cobra.Command {
	return newSubcommandGroup("deps", "Check the external tools devtools relies on",
		newDepsCheck(e),
	)
}

func newDepsCheck(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check that docker, compose and a clipboard utility are available",
		Long: `Checks for the external programs devtools shells out to. Nothing is
installed; missing tools are reported with their error. Docker and compose
are required for the compose commands, the clipboard only for --copy.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows := [][]string{{"TOOL", "STATUS"}}
			var missing bool

			for _, tool := range e.app.Compose().CheckTools(cmd.Context()) {
				status := tool.Version
				if tool.Err != nil {
					status = "missing: " + tool.Err.Error()
					missing = true
				}
				rows = append(rows, []string{tool.Name, status})
			}

			clip := "available"
			if clipboard.Unsupported {
				clip = "unavailable (optional)"
			}
			rows = append(rows, []string{"clipboard", clip})

			e.con.Table(cmd.OutOrStdout(), rows)
			if missing {
				return errors.New("required tools are missing")
			}
			return nil
		},
	}
}
