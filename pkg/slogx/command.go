package slogx

import (
	"context"
	"log/slog"

	"github.com/aussiebroadwan/dbaccess-devtools/pkg/idx"
)

// ForCommand attaches a contextual logger for one CLI invocation: a fresh
// run id plus the full command path ("token broken", "compose up").
// Every record the command writes through FromContext carries both.
func ForCommand(ctx context.Context, base *slog.Logger, command string) (context.Context, idx.ID) {
	runID := idx.New()
	logger := base.With(
		"run_id", runID.String(),
		"command", command,
	)
	return WithContext(ctx, logger), runID
}
