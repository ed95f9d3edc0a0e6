package proc

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestRunCapturesStdout(t *testing.T) {
	requireShell(t)
	r := NewRunner(nil)

	res, err := r.Run(context.Background(), Cmd{Name: "sh", Args: []string{"-c", "echo hello; echo warn 1>&2"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := strings.TrimSpace(string(res.Stdout)); got != "hello" {
		t.Fatalf("stdout = %q, want hello", got)
	}
	if !strings.Contains(res.Stderr, "warn") {
		t.Fatalf("stderr = %q, want warn", res.Stderr)
	}
	if res.ExitCode != 0 {
		t.Fatalf("exit code = %d", res.ExitCode)
	}
}

func TestRunPassesStdinAndDir(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	r := NewRunner(nil)

	res, err := r.Run(context.Background(), Cmd{
		Name:  "sh",
		Args:  []string{"-c", "cat; pwd"},
		Dir:   dir,
		Stdin: strings.NewReader("input\n"),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	out := string(res.Stdout)
	if !strings.HasPrefix(out, "input\n") {
		t.Fatalf("stdout = %q, want stdin echoed", out)
	}
}

func TestRunNonZeroExit(t *testing.T) {
	requireShell(t)
	r := NewRunner(nil)

	res, err := r.Run(context.Background(), Cmd{Name: "sh", Args: []string{"-c", "echo bad 1>&2; exit 3"}})
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("error = %v, want *ExitError", err)
	}
	if exitErr.Code != 3 || res.ExitCode != 3 {
		t.Fatalf("exit code = %d/%d, want 3", exitErr.Code, res.ExitCode)
	}
	if !strings.Contains(exitErr.Error(), "bad") {
		t.Fatalf("error message %q should include stderr", exitErr.Error())
	}
}

func TestRunMissingBinary(t *testing.T) {
	r := NewRunner(nil)
	if _, err := r.Run(context.Background(), Cmd{Name: "definitely-not-a-real-binary-xyz"}); err == nil {
		t.Fatal("expected start error")
	}
}

func TestRunTerminatesOnContextDone(t *testing.T) {
	requireShell(t)
	r := NewRunner(nil)
	r.Grace = 200 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := r.Run(ctx, Cmd{Name: "sh", Args: []string{"-c", "trap '' TERM; sleep 10"}})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("Run took %s, child was not killed", elapsed)
	}
}

func TestRunAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewRunner(nil).Run(ctx, Cmd{Name: "sh"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want Canceled", err)
	}
}

func TestTruncateStderr(t *testing.T) {
	long := strings.Repeat("x", maxStderrBytes+10)
	if got := truncateStderr(long); len(got) != maxStderrBytes {
		t.Fatalf("len = %d, want %d", len(got), maxStderrBytes)
	}
	if got := truncateStderr("short"); got != "short" {
		t.Fatalf("got %q", got)
	}
}
