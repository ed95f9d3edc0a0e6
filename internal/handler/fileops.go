package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mattjoyce/taskgate/internal/fsutil"
	"github.com/mattjoyce/taskgate/internal/task"
)

const recentLogsLimit = 10

// dateLayouts are tried in order for count_weekday.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	time.RFC3339,
	"Jan 2, 2006",
	"Jan 02, 2006",
	"January 2, 2006",
	"02-Jan-2006",
	"2-Jan-2006",
	"Mon, 02 Jan 2006",
}

type fileOps struct {
	paths  PathChecker
	logger *slog.Logger
}

func (f *fileOps) Handle(_ context.Context, d task.Descriptor) (string, error) {
	op, err := operation(d)
	if err != nil {
		return "", err
	}
	in, out, err := paths(d)
	if err != nil {
		return "", err
	}

	switch op {
	case "count_weekday":
		var weekday time.Weekday
		if weekday, err = weekdayParam(d); err == nil {
			err = countWeekday(in, out, weekday)
		}
	case "sort_json":
		err = sortContacts(in, out)
	case "recent_logs":
		err = f.recentLogs(in, out)
	case "markdown_index":
		err = f.markdownIndex(in, out)
	default:
		return "", unsupportedOperation(d.Kind, op)
	}
	if err != nil {
		return "", err
	}
	f.logger.Debug("file operation complete", "operation", op, "output", out)
	return SuccessMessage, nil
}

func weekdayParam(d task.Descriptor) (time.Weekday, error) {
	name, err := d.String("weekday")
	if err != nil {
		return 0, err
	}
	return parseWeekday(name)
}

func parseWeekday(name string) (time.Weekday, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		full := strings.ToLower(wd.String())
		if n == full || n == full[:3] {
			return wd, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown weekday %q", task.ErrInvalidParameter, name)
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// countWeekday writes how many dates in in (one per line) fall on weekday.
func countWeekday(in, out string, weekday time.Weekday) error {
	file, err := os.Open(in)
	if err != nil {
		return fmt.Errorf("open dates: %w", err)
	}
	defer file.Close()

	count := 0
	line := 0
	sc := bufio.NewScanner(file)
	for sc.Scan() {
		line++
		s := strings.TrimSpace(sc.Text())
		if s == "" {
			continue
		}
		t, err := parseDate(s)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if t.Weekday() == weekday {
			count++
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read dates: %w", err)
	}
	return fsutil.AtomicWrite(out, []byte(strconv.Itoa(count)))
}

// sortContacts sorts a JSON array of objects by last_name, then first_name.
func sortContacts(in, out string) error {
	raw, err := os.ReadFile(in)
	if err != nil {
		return fmt.Errorf("read contacts: %w", err)
	}
	var contacts []map[string]any
	if err := json.Unmarshal(raw, &contacts); err != nil {
		return fmt.Errorf("decode contacts: %w", err)
	}
	sort.SliceStable(contacts, func(i, j int) bool {
		li, lj := field(contacts[i], "last_name"), field(contacts[j], "last_name")
		if li != lj {
			return li < lj
		}
		return field(contacts[i], "first_name") < field(contacts[j], "first_name")
	})
	return fsutil.AtomicWriteJSON(out, contacts)
}

func field(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// contained resolves an entry found inside a guarded directory. Entries that
// resolve outside the sandbox, through a symlink, are skipped.
func (f *fileOps) contained(path string) (string, bool) {
	v := f.paths.ValidatePath(path)
	if !v.OK() {
		f.logger.Warn("skipping entry outside the sandbox", "path", path, "reason", v.Reason)
		return "", false
	}
	return v.Canonical, true
}

// recentLogs writes the first line of the most recently modified *.log
// files in dir, newest first.
func (f *fileOps) recentLogs(dir, out string) error {
	matches, err := filepath.Glob(filepath.Join(dir, "*.log"))
	if err != nil {
		return fmt.Errorf("list logs: %w", err)
	}

	type logFile struct {
		path    string
		modTime time.Time
	}
	files := make([]logFile, 0, len(matches))
	for _, m := range matches {
		resolved, ok := f.contained(m)
		if !ok {
			continue
		}
		info, err := os.Stat(resolved)
		if err != nil {
			return fmt.Errorf("stat %s: %w", m, err)
		}
		if info.IsDir() {
			continue
		}
		files = append(files, logFile{path: resolved, modTime: info.ModTime()})
	}
	sort.SliceStable(files, func(i, j int) bool { return files[i].modTime.After(files[j].modTime) })
	if len(files) > recentLogsLimit {
		files = files[:recentLogsLimit]
	}

	lines := make([]string, 0, len(files))
	for _, lf := range files {
		first, err := firstLine(lf.path)
		if err != nil {
			return err
		}
		lines = append(lines, first)
	}
	return fsutil.AtomicWrite(out, []byte(strings.Join(lines, "\n")))
}

func firstLine(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && line == "" {
		return "", nil
	}
	return strings.TrimSpace(line), nil
}

// markdownIndex maps every *.md file under dir (relative, slash separated)
// to the text of its first "# " heading.
func (f *fileOps) markdownIndex(dir, out string) error {
	index := map[string]string{}
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || filepath.Ext(path) != ".md" {
			return nil
		}
		resolved, ok := f.contained(path)
		if !ok {
			return nil
		}
		title, found, err := firstHeading(resolved)
		if err != nil || !found {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		index[filepath.ToSlash(rel)] = title
		return nil
	})
	if err != nil {
		return fmt.Errorf("index markdown: %w", err)
	}
	return fsutil.AtomicWriteJSON(out, index)
}

func firstHeading(path string) (string, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", false, err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := sc.Text(); strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:]), true, nil
		}
	}
	return "", false, sc.Err()
}
