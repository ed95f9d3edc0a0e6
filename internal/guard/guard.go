// Package guard confines task paths to the sandbox root and refuses
// destructive operation verbs.
//
// Both checks return a Verdict instead of an error so callers must look at
// the decision explicitly. A Guard is immutable after New and safe for
// concurrent use; no check touches the filesystem beyond reading symlinks.
//
// Paths are resolved one component at a time as the kernel would: a ".."
// after a symlink steps out of the link's target, not out of the link.
// Components that do not exist yet are appended lexically.
package guard

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// Decision is the tag of a Verdict.
type Decision int

const (
	Accepted Decision = iota
	AccessDenied
	OperationDenied
)

func (d Decision) String() string {
	switch d {
	case Accepted:
		return "accepted"
	case AccessDenied:
		return "access_denied"
	case OperationDenied:
		return "operation_denied"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Verdict is the result of a single guard check.
type Verdict struct {
	Decision Decision
	// Canonical is the resolved absolute path for path checks.
	Canonical string
	// Reason explains a denial.
	Reason string
}

// OK reports whether the check passed.
func (v Verdict) OK() bool { return v.Decision == Accepted }

// deniedOperations are refused regardless of case or surrounding whitespace.
var deniedOperations = map[string]struct{}{
	"delete":   {},
	"remove":   {},
	"unlink":   {},
	"rmdir":    {},
	"rm":       {},
	"del":      {},
	"erase":    {},
	"destroy":  {},
	"purge":    {},
	"truncate": {},
	"shred":    {},
	"drop":     {},
}

// Guard validates paths against one sandbox root.
type Guard struct {
	root string
}

// New canonicalizes root once. The root must be absolute; it does not have to
// exist yet.
func New(root string) (*Guard, error) {
	trimmed := strings.TrimSpace(root)
	if trimmed == "" {
		return nil, fmt.Errorf("sandbox root is empty")
	}
	if !filepath.IsAbs(trimmed) {
		return nil, fmt.Errorf("sandbox root %q must be absolute", root)
	}
	canonical, err := canonicalize(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve sandbox root %q: %w", root, err)
	}
	return &Guard{root: canonical}, nil
}

// Root returns the canonical sandbox root.
func (g *Guard) Root() string { return g.root }

// ValidatePath accepts p iff its canonical form is the sandbox root or lies
// beneath it. Relative paths are taken relative to the root.
func (g *Guard) ValidatePath(p string) Verdict {
	if strings.TrimSpace(p) == "" {
		return denyPath("path is empty")
	}
	if strings.ContainsRune(p, 0) {
		return denyPath("path contains a NUL byte")
	}

	abs := p
	if !filepath.IsAbs(abs) {
		// Join would clean the path before symlinks are seen.
		abs = g.root + string(filepath.Separator) + abs
	}
	canonical, err := canonicalize(abs)
	if err != nil {
		return denyPath(fmt.Sprintf("Access denied: cannot resolve %s: %v", p, err))
	}
	if !within(g.root, canonical) {
		return denyPath(fmt.Sprintf("Access denied: Path %s is outside %s", canonical, g.root))
	}
	return Verdict{Decision: Accepted, Canonical: canonical}
}

// ValidateOperation refuses destructive verbs. Anything not on the denylist
// passes.
func (g *Guard) ValidateOperation(op string) Verdict {
	return ValidateOperation(op)
}

// ValidateOperation is the root-independent operation check.
func ValidateOperation(op string) Verdict {
	normalized := strings.ToLower(strings.TrimSpace(op))
	if _, denied := deniedOperations[normalized]; denied {
		return Verdict{
			Decision: OperationDenied,
			Reason:   fmt.Sprintf("Operation denied: %s is not allowed", strings.TrimSpace(op)),
		}
	}
	return Verdict{Decision: Accepted}
}

func denyPath(reason string) Verdict {
	return Verdict{Decision: AccessDenied, Reason: reason}
}

// within compares on path components so /data2 is not inside /data.
func within(root, p string) bool {
	if p == root {
		return true
	}
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// maxSymlinks matches the Linux limit on links followed in one lookup.
const maxSymlinks = 40

// canonicalize resolves an absolute path component by component, following
// symlinks on every existing prefix and re-appending the part that does not
// exist yet.
func canonicalize(p string) (string, error) {
	sep := string(filepath.Separator)
	pending := strings.Split(p, sep)
	resolved := sep
	links := 0

	for len(pending) > 0 {
		comp := pending[0]
		pending = pending[1:]

		switch comp {
		case "", ".":
			continue
		case "..":
			resolved = filepath.Dir(resolved)
			continue
		}

		next := filepath.Join(resolved, comp)
		info, err := os.Lstat(next)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) && !errors.Is(err, syscall.ENOTDIR) {
				return "", fmt.Errorf("stat %q: %w", next, err)
			}
			resolved = next
			continue
		}
		if info.Mode()&os.ModeSymlink == 0 {
			resolved = next
			continue
		}

		links++
		if links > maxSymlinks {
			return "", fmt.Errorf("too many symlinks in %q", p)
		}
		target, err := os.Readlink(next)
		if err != nil {
			return "", fmt.Errorf("readlink %q: %w", next, err)
		}
		if filepath.IsAbs(target) {
			resolved = sep
		}
		pending = append(strings.Split(target, sep), pending...)
	}
	return resolved, nil
}
