package handler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattjoyce/taskgate/internal/proc"
	"github.com/mattjoyce/taskgate/internal/task"
)

type gitOp struct {
	runner Runner
	cfg    GitConfig
}

func newGitOp(r Runner, cfg GitConfig) *gitOp {
	if cfg.Binary == "" {
		cfg.Binary = "git"
	}
	if cfg.AuthorName == "" {
		cfg.AuthorName = "taskgate"
	}
	if cfg.AuthorEmail == "" {
		cfg.AuthorEmail = "taskgate@localhost"
	}
	return &gitOp{runner: r, cfg: cfg}
}

// Handle clones repo_url into output and, when commit_changes is set,
// stages files (relative to the clone) and commits them.
func (g *gitOp) Handle(ctx context.Context, d task.Descriptor) (string, error) {
	repoURL, err := d.String("repo_url")
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(strings.TrimSpace(repoURL), "-") {
		return "", fmt.Errorf("%w: repo_url %q looks like an option", task.ErrInvalidParameter, repoURL)
	}
	dest, err := d.String(task.ParamOutput)
	if err != nil {
		return "", err
	}
	commit, err := d.Bool("commit_changes")
	if err != nil {
		return "", err
	}

	var files []string
	var message string
	if commit {
		if files, err = d.Strings("files"); err != nil {
			return "", err
		}
		if message, err = d.String("commit_message"); err != nil {
			return "", err
		}
		for _, f := range files {
			if err := insideRepo(dest, f); err != nil {
				return "", err
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create clone parent: %w", err)
	}
	if _, err := g.git(ctx, "", "clone", "--", repoURL, dest); err != nil {
		return "", fmt.Errorf("git clone: %w", err)
	}
	if !commit {
		return SuccessMessage, nil
	}

	addArgs := append([]string{"add", "--"}, files...)
	if _, err := g.git(ctx, dest, addArgs...); err != nil {
		return "", fmt.Errorf("git add: %w", err)
	}
	if _, err := g.git(ctx, dest,
		"-c", "user.name="+g.cfg.AuthorName,
		"-c", "user.email="+g.cfg.AuthorEmail,
		"commit", "-m", message,
	); err != nil {
		return "", fmt.Errorf("git commit: %w", err)
	}
	return SuccessMessage, nil
}

func (g *gitOp) git(ctx context.Context, dir string, args ...string) (proc.Result, error) {
	return g.runner.Run(ctx, proc.Cmd{
		Name: g.cfg.Binary,
		Args: args,
		Dir:  dir,
		Env:  append(os.Environ(), "GIT_TERMINAL_PROMPT=0"),
	})
}

// insideRepo rejects file arguments that would reach outside the clone.
func insideRepo(repo, file string) error {
	if filepath.IsAbs(file) {
		rel, err := filepath.Rel(repo, file)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return fmt.Errorf("%w: file %q is outside the repository", task.ErrInvalidParameter, file)
		}
		return nil
	}
	clean := filepath.Clean(file)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: file %q is outside the repository", task.ErrInvalidParameter, file)
	}
	return nil
}
