// Package proc runs external tools (git, nodeenv, prettier) on behalf of task
// handlers. A run is bound to its context: when the context ends the child
// receives SIGTERM, then SIGKILL after a grace period.
package proc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

const (
	// maxStderrBytes caps the amount of stderr kept from a run.
	maxStderrBytes = 64 * 1024

	// DefaultGracePeriod is the wait between SIGTERM and SIGKILL.
	DefaultGracePeriod = 5 * time.Second
)

// ExitError reports a command that ran and exited non-zero.
type ExitError struct {
	Name   string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("%s exited with status %d", e.Name, e.Code)
	}
	return fmt.Sprintf("%s exited with status %d: %s", e.Name, e.Code, msg)
}

// Cmd describes one invocation.
type Cmd struct {
	Name  string
	Args  []string
	Dir   string
	Env   []string
	Stdin io.Reader
}

func (c Cmd) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result holds captured output of a finished command.
type Result struct {
	Stdout   []byte
	Stderr string
	ExitCode int
}

// Runner executes commands.
type Runner struct {
	Grace  time.Duration
	Logger *slog.Logger
}

// NewRunner returns a Runner with the default grace period.
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{Grace: DefaultGracePeriod, Logger: logger}
}

// Run starts c and waits for it. A non-zero exit yields *ExitError together
// with the captured Result. If ctx ends first the child is terminated and
// ctx.Err() is returned.
func (r *Runner) Run(ctx context.Context, c Cmd) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	// Not CommandContext: termination is escalated by hand below.
	cmd := exec.Command(c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = c.Env
	}
	cmd.Stdin = c.Stdin
	// Own process group so grandchildren (git remote helpers, npm) are
	// signalled too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = r.grace()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger := r.Logger.With("cmd", c.Name)
	logger.Debug("starting command", "args", c.Args, "dir", c.Dir)

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("start %s: %w", c.Name, err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	select {
	case <-ctx.Done():
		logger.Warn("command cancelled, sending SIGTERM", "reason", ctx.Err())
		if err := signalGroup(cmd, syscall.SIGTERM); err != nil {
			logger.Error("failed to send SIGTERM", "error", err)
		}

		grace := time.NewTimer(r.grace())
		defer grace.Stop()

		select {
		case <-waitErr:
			logger.Info("command exited after SIGTERM")
		case <-grace.C:
			logger.Warn("command did not exit after SIGTERM, sending SIGKILL")
			if err := signalGroup(cmd, syscall.SIGKILL); err != nil {
				logger.Error("failed to send SIGKILL", "error", err)
			}
			<-waitErr
		}
		return Result{Stdout: stdout.Bytes(), Stderr: truncateStderr(stderr.String()), ExitCode: -1}, ctx.Err()

	case err := <-waitErr:
		res := Result{Stdout: stdout.Bytes(), Stderr: truncateStderr(stderr.String())}
		if err == nil {
			return res, nil
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			logger.Warn("command exited with non-zero status", "exit_code", res.ExitCode)
			return res, &ExitError{Name: c.Name, Code: res.ExitCode, Stderr: res.Stderr}
		}
		return res, fmt.Errorf("wait for %s: %w", c.Name, err)
	}
}

func (r *Runner) grace() time.Duration {
	if r.Grace > 0 {
		return r.Grace
	}
	return DefaultGracePeriod
}

func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if err := syscall.Kill(-cmd.Process.Pid, sig); err != nil {
		return cmd.Process.Signal(sig)
	}
	return nil
}

func truncateStderr(s string) string {
	if len(s) > maxStderrBytes {
		return s[:maxStderrBytes]
	}
	return s
}
