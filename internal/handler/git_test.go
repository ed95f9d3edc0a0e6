package handler

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/taskgate/internal/proc"
	"github.com/mattjoyce/taskgate/internal/task"
)

func TestGitClone(t *testing.T) {
	runner := &fakeRunner{}
	h := newGitOp(runner, GitConfig{})
	dest := filepath.Join(t.TempDir(), "repos", "demo")

	_, err := h.Handle(context.Background(), task.NewDescriptor(task.KindGitOperation, map[string]any{
		"repo_url": "https://example.com/demo.git", "output": dest,
	}))
	require.NoError(t, err)

	calls := runner.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "git", calls[0].Name)
	assert.Equal(t, []string{"clone", "--", "https://example.com/demo.git", dest}, calls[0].Args)
	assert.Contains(t, calls[0].Env, "GIT_TERMINAL_PROMPT=0")
	assert.DirExists(t, filepath.Dir(dest))
}

func TestGitCloneAndCommit(t *testing.T) {
	runner := &fakeRunner{}
	h := newGitOp(runner, GitConfig{Binary: "/usr/bin/git", AuthorName: "Bot", AuthorEmail: "bot@example.com"})
	dest := filepath.Join(t.TempDir(), "demo")

	_, err := h.Handle(context.Background(), task.NewDescriptor(task.KindGitOperation, map[string]any{
		"repo_url":       "https://example.com/demo.git",
		"output":         dest,
		"commit_changes": true,
		"files":          []any{"README.md", "docs/a.md"},
		"commit_message": "update docs",
	}))
	require.NoError(t, err)

	calls := runner.calls()
	require.Len(t, calls, 3)
	assert.Equal(t, []string{"add", "--", "README.md", "docs/a.md"}, calls[1].Args)
	assert.Equal(t, dest, calls[1].Dir)
	assert.Equal(t, []string{"-c", "user.name=Bot", "-c", "user.email=bot@example.com", "commit", "-m", "update docs"}, calls[2].Args)
	assert.Equal(t, "/usr/bin/git", calls[2].Name)
}

func TestGitRejectsBadParameters(t *testing.T) {
	runner := &fakeRunner{}
	h := newGitOp(runner, GitConfig{})
	dest := filepath.Join(t.TempDir(), "demo")

	_, err := h.Handle(context.Background(), task.NewDescriptor(task.KindGitOperation, map[string]any{
		"repo_url": "--upload-pack=evil", "output": dest,
	}))
	assert.ErrorIs(t, err, task.ErrInvalidParameter)

	_, err = h.Handle(context.Background(), task.NewDescriptor(task.KindGitOperation, map[string]any{
		"repo_url": "https://example.com/demo.git", "output": dest,
		"commit_changes": true, "files": []any{"../../etc/passwd"}, "commit_message": "x",
	}))
	assert.ErrorIs(t, err, task.ErrInvalidParameter)

	_, err = h.Handle(context.Background(), task.NewDescriptor(task.KindGitOperation, map[string]any{
		"repo_url": "https://example.com/demo.git", "output": dest, "commit_changes": true, "files": []any{"a"},
	}))
	assert.ErrorIs(t, err, task.ErrInvalidParameter)

	assert.Empty(t, runner.calls(), "nothing runs before parameters validate")
}

func TestGitCloneFailure(t *testing.T) {
	runner := &fakeRunner{hook: func(c proc.Cmd) (proc.Result, error) {
		return proc.Result{ExitCode: 128}, &proc.ExitError{Name: c.Name, Code: 128, Stderr: "repository not found"}
	}}
	h := newGitOp(runner, GitConfig{})

	_, err := h.Handle(context.Background(), task.NewDescriptor(task.KindGitOperation, map[string]any{
		"repo_url": "https://example.com/missing.git", "output": filepath.Join(t.TempDir(), "demo"),
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repository not found")
}

func TestInsideRepo(t *testing.T) {
	assert.NoError(t, insideRepo("/data/repo", "a/b.txt"))
	assert.NoError(t, insideRepo("/data/repo", "/data/repo/a.txt"))
	assert.Error(t, insideRepo("/data/repo", "/data/other/a.txt"))
	assert.Error(t, insideRepo("/data/repo", "../x"))
}
