package guard

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGuard(t *testing.T) (*Guard, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.MkdirAll(root, 0o755))
	g, err := New(root)
	require.NoError(t, err)
	return g, g.Root()
}

func TestNewRejectsBadRoots(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)

	_, err = New("relative/data")
	assert.Error(t, err)
}

func TestNewAllowsMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "not-yet")
	g, err := New(root)
	require.NoError(t, err)

	v := g.ValidatePath(filepath.Join(root, "x.txt"))
	assert.True(t, v.OK(), v.Reason)
}

func TestValidatePath(t *testing.T) {
	g, root := newTestGuard(t)
	sibling := root + "2"
	require.NoError(t, os.MkdirAll(sibling, 0o755))

	tests := []struct {
		name string
		path string
		want Decision
	}{
		{"root itself", root, Accepted},
		{"root with trailing slash", root + "/", Accepted},
		{"direct child", filepath.Join(root, "x.txt"), Accepted},
		{"nested missing file", filepath.Join(root, "a", "b", "c.txt"), Accepted},
		{"relative path", "dates.txt", Accepted},
		{"dot segments staying inside", filepath.Join(root, "a", "..", "x.txt"), Accepted},
		{"prefix sibling", filepath.Join(sibling, "x.txt"), AccessDenied},
		{"escape via dot dot", filepath.Join(root, "..", "x.txt"), AccessDenied},
		{"relative escape", "../../etc/passwd", AccessDenied},
		{"system file", "/etc/passwd", AccessDenied},
		{"empty", "", AccessDenied},
		{"blank", "   ", AccessDenied},
		{"nul byte", root + "/x\x00.txt", AccessDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := g.ValidatePath(tt.path)
			assert.Equal(t, tt.want, v.Decision, "path %q: %s", tt.path, v.Reason)
			if tt.want == AccessDenied {
				assert.NotEmpty(t, v.Reason)
				assert.Empty(t, v.Canonical)
			}
		})
	}
}

func TestValidatePathLiteralDataRoot(t *testing.T) {
	if _, err := os.Lstat("/data"); err == nil {
		t.Skip("/data exists on this machine")
	}
	g, err := New("/data")
	require.NoError(t, err)

	assert.True(t, g.ValidatePath("/data/x.txt").OK())
	assert.False(t, g.ValidatePath("/data2/x.txt").OK())
	assert.False(t, g.ValidatePath("/etc/passwd").OK())
}

func TestValidatePathCanonicalForm(t *testing.T) {
	g, root := newTestGuard(t)

	v := g.ValidatePath(filepath.Join(root, "sub", "..", "out.txt"))
	require.True(t, v.OK())
	assert.Equal(t, filepath.Join(root, "out.txt"), v.Canonical)

	v = g.ValidatePath("nested/out.txt")
	require.True(t, v.OK())
	assert.Equal(t, filepath.Join(root, "nested", "out.txt"), v.Canonical)
}

func TestValidatePathSymlinkEscape(t *testing.T) {
	g, root := newTestGuard(t)
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("s"), 0o644))

	link := filepath.Join(root, "escape")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	v := g.ValidatePath(filepath.Join(link, "secret.txt"))
	assert.Equal(t, AccessDenied, v.Decision)

	v = g.ValidatePath(filepath.Join(link, "new-file.txt"))
	assert.Equal(t, AccessDenied, v.Decision, "missing files behind an escaping link must be denied too")
}

func TestValidatePathSymlinkInside(t *testing.T) {
	g, root := newTestGuard(t)
	target := filepath.Join(root, "real")
	require.NoError(t, os.MkdirAll(target, 0o755))

	link := filepath.Join(root, "alias")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	v := g.ValidatePath(filepath.Join(link, "f.txt"))
	require.True(t, v.OK(), v.Reason)
	assert.Equal(t, filepath.Join(target, "f.txt"), v.Canonical)
}

func TestValidatePathDotDotAfterSymlink(t *testing.T) {
	g, root := newTestGuard(t)
	outside := t.TempDir()
	if err := os.Symlink(outside, filepath.Join(root, "escape")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	target := filepath.Join(root, "real")
	require.NoError(t, os.MkdirAll(target, 0o755))
	require.NoError(t, os.Symlink(target, filepath.Join(root, "alias")))

	// Built by hand; filepath.Join would clean away the "..".
	v := g.ValidatePath(root + "/escape/../x.txt")
	assert.Equal(t, AccessDenied, v.Decision, "'..' must step out of the link target, not the link")

	v = g.ValidatePath(root + "/alias/../x.txt")
	require.True(t, v.OK(), v.Reason)
	assert.Equal(t, filepath.Join(root, "x.txt"), v.Canonical)

	v = g.ValidatePath("escape/../x.txt")
	assert.Equal(t, AccessDenied, v.Decision, "relative paths follow the same rule")
}

func TestValidatePathRelativeLinkEscape(t *testing.T) {
	g, root := newTestGuard(t)
	if err := os.Symlink("..", filepath.Join(root, "up")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	assert.Equal(t, AccessDenied, g.ValidatePath(filepath.Join(root, "up", "secret.txt")).Decision)
	assert.Equal(t, AccessDenied, g.ValidatePath(filepath.Join(root, "up")).Decision)
}

func TestValidatePathSymlinkLoop(t *testing.T) {
	g, root := newTestGuard(t)
	if err := os.Symlink(filepath.Join(root, "b"), filepath.Join(root, "a")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	require.NoError(t, os.Symlink(filepath.Join(root, "a"), filepath.Join(root, "b")))

	v := g.ValidatePath(filepath.Join(root, "a", "x.txt"))
	assert.Equal(t, AccessDenied, v.Decision)
	assert.Contains(t, v.Reason, "symlinks")
}

func TestValidatePathIdempotentAndSideEffectFree(t *testing.T) {
	g, root := newTestGuard(t)
	path := filepath.Join(root, "a", "b", "out.txt")

	first := g.ValidatePath(path)
	second := g.ValidatePath(path)
	assert.Equal(t, first, second)
	assert.Equal(t, root, g.Root())

	_, err := os.Stat(filepath.Join(root, "a"))
	assert.True(t, os.IsNotExist(err), "validation must not create directories")

	denied1 := g.ValidatePath("/etc/passwd")
	denied2 := g.ValidatePath("/etc/passwd")
	assert.Equal(t, denied1, denied2)
}

func TestValidateOperation(t *testing.T) {
	g, _ := newTestGuard(t)

	denied := []string{"delete", "DELETE", " Remove ", "unlink", "RmDir", "rm", "\tdrop\n", "Truncate"}
	for _, op := range denied {
		v := g.ValidateOperation(op)
		assert.Equal(t, OperationDenied, v.Decision, "op %q", op)
		assert.Contains(t, v.Reason, "Operation denied")
	}

	allowed := []string{"count_weekday", "sort_json", "resize", "compress", "", "deleted_items_report", "extract_email"}
	for _, op := range allowed {
		assert.True(t, g.ValidateOperation(op).OK(), "op %q", op)
	}
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "accepted", Accepted.String())
	assert.Equal(t, "access_denied", AccessDenied.String())
	assert.Equal(t, "operation_denied", OperationDenied.String())
	assert.Equal(t, "decision(9)", Decision(9).String())
}
