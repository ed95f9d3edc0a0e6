package handler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattjoyce/taskgate/internal/proc"
	"github.com/mattjoyce/taskgate/internal/task"
)

const defaultBootstrapTimeout = 2 * time.Minute

// Toolchain is a node environment with prettier installed, bootstrapped at
// most once per process. A failed bootstrap is remembered and reported to
// every later caller.
type Toolchain struct {
	Dir              string
	NodeenvBinary    string
	PrettierVersion  string
	BootstrapTimeout time.Duration
	Runner           Runner

	once sync.Once
	err  error
}

// Ensure bootstraps the toolchain on first use. The bootstrap is detached
// from the caller's cancellation so one request timing out does not poison
// the toolchain for the rest of the process.
func (t *Toolchain) Ensure(ctx context.Context) error {
	t.once.Do(func() {
		timeout := t.BootstrapTimeout
		if timeout <= 0 {
			timeout = defaultBootstrapTimeout
		}
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		t.err = t.bootstrap(bctx)
	})
	return t.err
}

func (t *Toolchain) prettier() string { return filepath.Join(t.Dir, "bin", "prettier") }

func (t *Toolchain) bootstrap(ctx context.Context) error {
	if t.Runner == nil {
		return errors.New("toolchain has no command runner")
	}
	if _, err := os.Stat(t.prettier()); err == nil {
		return nil
	}

	if _, err := os.Stat(filepath.Join(t.Dir, "bin", "npm")); err != nil {
		nodeenv := t.NodeenvBinary
		if nodeenv == "" {
			nodeenv = "nodeenv"
		}
		if _, err := t.Runner.Run(ctx, proc.Cmd{Name: nodeenv, Args: []string{t.Dir}}); err != nil {
			return fmt.Errorf("create node environment: %w", err)
		}
	}

	pkg := "prettier"
	if t.PrettierVersion != "" {
		pkg += "@" + t.PrettierVersion
	}
	npm := filepath.Join(t.Dir, "bin", "npm")
	if _, err := t.Runner.Run(ctx, proc.Cmd{Name: npm, Args: []string{"install", "-g", pkg}}); err != nil {
		return fmt.Errorf("install %s: %w", pkg, err)
	}
	return nil
}

type codeFormatting struct {
	toolchain *Toolchain
}

// Handle formats input in place with prettier. The prettier version is the
// toolchain's pinned one; a descriptor "version" is not consulted.
func (c *codeFormatting) Handle(ctx context.Context, d task.Descriptor) (string, error) {
	in, err := d.String(task.ParamInput)
	if err != nil {
		return "", err
	}
	if err := c.toolchain.Ensure(ctx); err != nil {
		return "", fmt.Errorf("formatter toolchain: %w", err)
	}
	if _, err := c.toolchain.Runner.Run(ctx, proc.Cmd{
		Name: c.toolchain.prettier(),
		Args: []string{"--write", "--", in},
	}); err != nil {
		return "", fmt.Errorf("prettier failed: %w", err)
	}
	return SuccessMessage, nil
}
