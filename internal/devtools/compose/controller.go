package compose

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/aussiebroadwan/dbaccess-devtools/pkg/slogx"
)

// Options tunes how the controller drives docker. The zero value is not
// usable; start from DefaultOptions.
type Options struct {
	// ComposeCmd is the compose invocation, e.g. ["docker-compose"] or
	// ["docker", "compose"].
	ComposeCmd []string
	DockerCmd  string

	// Settle is how long to wait after "up" before the first probe.
	Settle time.Duration

	// PollAttempts probes are made per container, PollInterval apart.
	PollAttempts int
	PollInterval time.Duration
}

func DefaultOptions() Options {
	return Options{
		ComposeCmd:   []string{"docker-compose"},
		DockerCmd:    "docker",
		Settle:       2 * time.Second,
		PollAttempts: 10,
		PollInterval: 500 * time.Millisecond,
	}
}

// ParseComposeCmd splits a configured compose command ("docker compose")
// into program and leading arguments.
func ParseComposeCmd(s string) []string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return DefaultOptions().ComposeCmd
	}
	return fields
}

// Phase is where a container is in Start.
type Phase int

const (
	PhaseRemoving Phase = iota + 1
	PhaseWaiting
	PhaseReady
	PhaseFailed
)

// Event reports progress for a single container.
type Event struct {
	Container string
	Phase     Phase
}

// ContainerStatus is the outcome of probing one container.
type ContainerStatus struct {
	Name     string
	Running  bool
	Attempts int
	Err      error
}

// Report summarises a Start.
type Report struct {
	Stack      Stack
	Removed    []string
	Containers []ContainerStatus

	// UpErr is the compose "up" failure, if any. Probing still runs; the
	// stack may be partly up.
	UpErr error
}

// Failed lists containers that never reported running.
func (r Report) Failed() []string {
	var out []string
	for _, c := range r.Containers {
		if !c.Running {
			out = append(out, c.Name)
		}
	}
	return out
}

func (r Report) OK() bool { return r.UpErr == nil && len(r.Failed()) == 0 }

type Controller struct {
	runner Runner
	opts   Options

	// Progress, when set, receives an Event per container state change.
	Progress func(Event)
}

func NewController(r Runner, opts Options) *Controller {
	if len(opts.ComposeCmd) == 0 {
		opts.ComposeCmd = DefaultOptions().ComposeCmd
	}
	if opts.DockerCmd == "" {
		opts.DockerCmd = DefaultOptions().DockerCmd
	}
	if opts.PollAttempts <= 0 {
		opts.PollAttempts = 1
	}
	return &Controller{runner: r, opts: opts}
}

// Start clears leftover containers, brings the stack up detached and waits
// for every container to report running. A container that never comes
// up is recorded in the report; it does not stop the remaining checks.
func (c *Controller) Start(ctx context.Context, stack Stack) (Report, error) {
	logger := slogx.FromContext(ctx).With("project", stack.Project)

	if err := checkFile(stack.File); err != nil {
		return Report{}, err
	}

	report := Report{Stack: stack}

	removed, err := c.removeExisting(ctx, stack.Containers)
	if err != nil {
		return report, err
	}
	report.Removed = removed

	args := append(c.composeArgs(stack), "up", "-d", "--build")
	if _, err := c.runner.Run(ctx, c.opts.ComposeCmd[0], args...); err != nil {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		logger.Warn("compose up failed", "error", err)
		report.UpErr = err
	}

	if err := sleepCtx(ctx, c.opts.Settle); err != nil {
		return report, err
	}

	limiter := rate.NewLimiter(rate.Every(c.opts.PollInterval), 1)
	for _, name := range stack.Containers {
		c.emit(name, PhaseWaiting)
		st, err := c.waitRunning(ctx, limiter, name)
		if err != nil {
			return report, err
		}
		report.Containers = append(report.Containers, st)
		if st.Running {
			c.emit(name, PhaseReady)
		} else {
			c.emit(name, PhaseFailed)
			logger.Warn("container did not start", "container", name, "attempts", st.Attempts)
		}
	}

	logger.Info("compose up finished", "failed", len(report.Failed()))
	return report, nil
}

// Stop brings the stack down.
func (c *Controller) Stop(ctx context.Context, stack Stack) error {
	if err := checkFile(stack.File); err != nil {
		return err
	}
	args := append(c.composeArgs(stack), "down")
	if _, err := c.runner.Run(ctx, c.opts.ComposeCmd[0], args...); err != nil {
		return fmt.Errorf("compose: down %s: %w", stack.Project, err)
	}
	slogx.FromContext(ctx).Info("compose down finished", "project", stack.Project)
	return nil
}

// Status probes every container of the stack once.
func (c *Controller) Status(ctx context.Context, stack Stack) ([]ContainerStatus, error) {
	out := make([]ContainerStatus, 0, len(stack.Containers))
	for _, name := range stack.Containers {
		running, err := c.inspect(ctx, name)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, ctxErr
		}
		out = append(out, ContainerStatus{Name: name, Running: running, Attempts: 1, Err: err})
	}
	return out, nil
}

// Tool is one external program the controller shells out to.
type Tool struct {
	Name    string
	Version string
	Err     error
}

// CheckTools asks docker and compose for their versions.
func (c *Controller) CheckTools(ctx context.Context) []Tool {
	probe := func(name string, args ...string) Tool {
		display := strings.Join(append([]string{name}, args[:len(args)-1]...), " ")
		out, err := c.runner.Run(ctx, name, args...)
		return Tool{Name: display, Version: firstLine(out), Err: err}
	}

	composeArgs := append(slices.Clone(c.opts.ComposeCmd[1:]), "version")
	return []Tool{
		probe(c.opts.DockerCmd, "--version"),
		probe(c.opts.ComposeCmd[0], composeArgs...),
	}
}

func (c *Controller) composeArgs(stack Stack) []string {
	args := slices.Clone(c.opts.ComposeCmd[1:])
	return append(args, "-f", stack.File, "-p", stack.Project)
}

// removeExisting force-removes any container that already holds one of
// the stack's fixed names, whichever project created it.
func (c *Controller) removeExisting(ctx context.Context, names []string) ([]string, error) {
	out, err := c.runner.Run(ctx, c.opts.DockerCmd, "ps", "-a", "--format", "{{.Names}}")
	if err != nil {
		return nil, fmt.Errorf("compose: list containers: %w", err)
	}

	existing := make(map[string]bool)
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		existing[strings.TrimSpace(sc.Text())] = true
	}

	var removed []string
	for _, name := range names {
		if !existing[name] {
			continue
		}
		c.emit(name, PhaseRemoving)
		if _, err := c.runner.Run(ctx, c.opts.DockerCmd, "rm", "-f", name); err != nil {
			return removed, fmt.Errorf("compose: remove %s: %w", name, err)
		}
		removed = append(removed, name)
	}
	return removed, nil
}

func (c *Controller) waitRunning(ctx context.Context, limiter *rate.Limiter, name string) (ContainerStatus, error) {
	st := ContainerStatus{Name: name}
	for st.Attempts < c.opts.PollAttempts {
		if err := limiter.Wait(ctx); err != nil {
			return st, err
		}
		st.Attempts++
		running, err := c.inspect(ctx, name)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return st, ctxErr
		}
		st.Running, st.Err = running, err
		if running {
			return st, nil
		}
	}
	return st, nil
}

func (c *Controller) inspect(ctx context.Context, name string) (bool, error) {
	out, err := c.runner.Run(ctx, c.opts.DockerCmd, "inspect", "-f", "{{.State.Running}}", name)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(string(out)) == "true", nil
}

func (c *Controller) emit(name string, phase Phase) {
	if c.Progress != nil {
		c.Progress(Event{Container: name, Phase: phase})
	}
}

func checkFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrComposeFileMissing, path)
		}
		return fmt.Errorf("compose: stat %s: %w", path, err)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func firstLine(b []byte) string {
	line, _, _ := strings.Cut(strings.TrimSpace(string(b)), "\n")
	return line
}
