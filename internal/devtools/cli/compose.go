package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/dbaccess-devtools/internal/devtools/compose"
)

func newComposeCommand(e *env) *cobra.Command {
	return newSubcommandGroup("compose", "Start and stop the local Docker Compose stacks",
		newComposeUp(e),
		newComposeDown(e),
		newComposeStatus(e),
		newComposeEnv(e),
	)
}

var stackNames = []string{"dev", "image"}

func newComposeUp(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "up dev|image",
		Short: "Start a stack and wait for its containers",
		Long: `Starts a compose stack detached and waits for each container to report
running.

  dev    databases, Prometheus and Grafana only; run the API from your IDE
  image  the same plus the prebuilt API image on :8080

Containers left over from earlier runs are removed first.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: stackNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, err := e.app.Stack(args[0])
			if err != nil {
				return err
			}

			ctl := e.app.Compose()
			ctl.Progress = func(ev compose.Event) {
				switch ev.Phase {
				case compose.PhaseRemoving:
					e.con.Warn("Removing existing container '%s'", ev.Container)
				case compose.PhaseWaiting:
					e.con.Info("Starting %s...", ev.Container)
				case compose.PhaseReady:
					e.con.Success("%s is running", ev.Container)
				case compose.PhaseFailed:
					e.con.Error("%s did not start", ev.Container)
				}
			}

			report, err := ctl.Start(cmd.Context(), stack)
			if errors.Is(err, compose.ErrComposeFileMissing) {
				e.con.Warn("Missing Docker Compose file: %s", stack.File)
				return nil
			}
			if err != nil {
				return err
			}

			if report.UpErr != nil {
				e.con.Warn("compose up reported an error: %v", report.UpErr)
			}
			failed := report.Failed()
			if len(failed) > 0 {
				e.con.Error("Failed to start: %s", strings.Join(failed, ", "))
			}

			if stack.LocalDev {
				return errOr(failed, e.printLocalDevPanel(cmd))
			}
			if len(failed) == 0 {
				e.con.Heading("All services ready")
				e.con.Success("%s started successfully", stack.Project)
				e.con.Result("%s", stack.Message)
			}
			return errOr(failed, nil)
		},
	}
}

// errOr turns a list of failed containers into the command error.
func errOr(failed []string, err error) error {
	if err != nil {
		return err
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d container(s) failed to start", len(failed))
	}
	return nil
}

func newComposeDown(e *env) *cobra.Command {
	return &cobra.Command{
		Use:       "down dev|image",
		Short:     "Stop a stack",
		Args:      cobra.ExactArgs(1),
		ValidArgs: stackNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, err := e.app.Stack(args[0])
			if err != nil {
				return err
			}

			err = e.app.Compose().Stop(cmd.Context(), stack)
			if errors.Is(err, compose.ErrComposeFileMissing) {
				e.con.Warn("Compose file not found: %s", stack.File)
				return nil
			}
			if err != nil {
				return err
			}
			e.con.Success("'%s' stopped", stack.Project)
			return nil
		},
	}
}

func newComposeStatus(e *env) *cobra.Command {
	return &cobra.Command{
		Use:       "status [dev|image]",
		Short:     "Show whether each stack container is running",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: stackNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			// The image stack is a superset of dev.
			name := "image"
			if len(args) == 1 {
				name = args[0]
			}

			stack, err := e.app.Stack(name)
			if err != nil {
				return err
			}

			statuses, err := e.app.Compose().Status(cmd.Context(), stack)
			if err != nil {
				return err
			}

			rows := [][]string{{"CONTAINER", "STATE"}}
			for _, st := range statuses {
				state := "running"
				if !st.Running {
					state = "not running"
				}
				rows = append(rows, []string{st.Name, state})
			}
			e.con.Table(cmd.OutOrStdout(), rows)
			return nil
		},
	}
}

func newComposeEnv(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Print the env vars for running the API against the dev stack",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.printLocalDevPanel(cmd)
		},
	}
}

// printLocalDevPanel prints what the API's run configuration needs when it
// is launched by hand against the dev stack. The variables go to stdout as
// KEY=VALUE lines so they can be pasted or sourced.
func (e *env) printLocalDevPanel(cmd *cobra.Command) error {
	vars, err := e.app.LocalDevEnv()
	if err != nil {
		return err
	}

	stack, err := e.app.Stack("dev")
	if err != nil {
		return err
	}

	e.con.Heading("Ready for local development")
	e.con.Info("%s", stack.Message)
	e.con.Info("Set the following environment variables:")
	for _, v := range vars {
		fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", v.Name, v.Value)
	}
	return nil
}
