package restart

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/eugenenazirov/trendradar-webui/internal/metrics"
)

// DefaultCommand restarts the TrendRadar container.
const DefaultCommand = "docker restart trendradar"

// ErrNoCommand is returned when no restart command is configured.
var ErrNoCommand = errors.New("restart command is empty")

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Restarter runs the container restart command. Concurrent calls share a
// single execution.
type Restarter struct {
	command []string
	timeout time.Duration
	run     Runner
	logger  *zap.Logger

	group singleflight.Group
}

// Option configures a Restarter.
type Option func(*Restarter)

// WithRunner replaces the process runner, primarily for tests.
func WithRunner(run Runner) Option {
	return func(r *Restarter) {
		r.run = run
	}
}

// New builds a Restarter for a whitespace-separated command line.
func New(command string, timeout time.Duration, logger *zap.Logger, opts ...Option) *Restarter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	r := &Restarter{
		command: strings.Fields(command),
		timeout: timeout,
		run:     execRunner,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Command returns the configured command line.
func (r *Restarter) Command() string {
	return strings.Join(r.command, " ")
}

// ManualInstruction tells operators what to run when the restart fails.
func (r *Restarter) ManualInstruction() string {
	cmd := r.Command()
	if cmd == "" {
		cmd = DefaultCommand
	}
	return fmt.Sprintf("Please run manually: %s", cmd)
}

// Restart runs the command once, bounded by the configured timeout. Request
// cancellation does not abort a restart that is already running.
func (r *Restarter) Restart(ctx context.Context) error {
	if len(r.command) == 0 {
		metrics.RestartsTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return ErrNoCommand
	}

	_, err, shared := r.group.Do("restart", func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()

		start := time.Now()
		out, err := r.run(runCtx, r.command[0], r.command[1:]...)
		if err != nil {
			r.logger.Warn("container restart failed",
				zap.String("command", r.Command()),
				zap.ByteString("output", out),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err),
			)
			metrics.RestartsTotal.WithLabelValues(metrics.ResultFailure).Inc()
			return nil, fmt.Errorf("run %q: %w", r.Command(), err)
		}

		r.logger.Info("container restarted",
			zap.String("command", r.Command()),
			zap.Duration("duration", time.Since(start)),
		)
		metrics.RestartsTotal.WithLabelValues(metrics.ResultSuccess).Inc()
		return nil, nil
	})
	if shared {
		r.logger.Debug("joined in-flight restart")
	}
	return err
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}
