// Package doctor inspects a loaded taskgate configuration and the host it
// runs on, reporting problems that config validation cannot see: missing
// binaries, an unreachable sandbox, budgets that cannot fit in the deadline.
package doctor

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mattjoyce/taskgate/internal/config"
)

// Result holds the outcome of a doctor run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor checks one config against the local machine.
type Doctor struct {
	cfg      *config.Config
	lookPath func(string) (string, error)
}

// New creates a Doctor that resolves binaries through $PATH.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg, lookPath: exec.LookPath}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateSandbox(r)
	d.validateAPI(r)
	d.validateCredentials(r)
	d.validateBudgets(r)
	d.warnMissingBinaries(r)
	d.warnMissingEnvVars(r)
	d.warnUnlockedConfig(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateSandbox checks the root is a writable directory. A missing root is
// only a warning; handlers create parents on write.
func (d *Doctor) validateSandbox(r *Result) {
	root := d.cfg.Sandbox.Root
	info, err := os.Stat(root)
	switch {
	case errors.Is(err, os.ErrNotExist):
		d.addWarning(r, "sandbox", "sandbox.root", fmt.Sprintf("sandbox root %s does not exist yet", root))
		return
	case err != nil:
		d.addError(r, "sandbox", "sandbox.root", fmt.Sprintf("cannot stat sandbox root %s: %v", root, err))
		return
	case !info.IsDir():
		d.addError(r, "sandbox", "sandbox.root", fmt.Sprintf("sandbox root %s is not a directory", root))
		return
	}

	scratch, err := os.CreateTemp(root, ".taskgate-doctor-*")
	if err != nil {
		d.addError(r, "sandbox", "sandbox.root", fmt.Sprintf("sandbox root %s is not writable: %v", root, err))
		return
	}
	scratch.Close()
	os.Remove(scratch.Name())
}

func (d *Doctor) validateAPI(r *Result) {
	listen := d.cfg.API.Listen
	if listen == "" {
		d.addError(r, "api", "api.listen", "api.listen is required")
		return
	}
	host, _, err := net.SplitHostPort(listen)
	if err != nil {
		d.addError(r, "api", "api.listen", fmt.Sprintf("invalid listen address %q: %v", listen, err))
		return
	}
	if d.cfg.API.Auth.APIKey == "" && !isLoopback(host) {
		d.addWarning(r, "api", "api.auth.api_key",
			fmt.Sprintf("API listens on %s without authentication", listen))
	}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (d *Doctor) validateCredentials(r *Result) {
	if d.cfg.LLM.APIKey == "" {
		d.addWarning(r, "credentials", "llm.api_key",
			fmt.Sprintf("no LLM credential configured; set %s or llm.api_key", config.TokenEnvVar))
	}
}

// validateBudgets flags collaborator timeouts that can never finish inside
// the supervisor deadline.
func (d *Doctor) validateBudgets(r *Result) {
	deadline := d.cfg.Supervisor.Deadline
	if d.cfg.Fetch.Timeout >= deadline {
		d.addWarning(r, "budget", "fetch.timeout",
			fmt.Sprintf("fetch timeout %s is not below the task deadline %s", d.cfg.Fetch.Timeout, deadline))
	}
	if d.cfg.Toolchain.BootstrapTimeout > deadline {
		d.addWarning(r, "budget", "toolchain.bootstrap_timeout",
			fmt.Sprintf("the first code_formatting task may time out while the toolchain bootstraps (up to %s)", d.cfg.Toolchain.BootstrapTimeout))
	}
}

func (d *Doctor) warnMissingBinaries(r *Result) {
	if _, err := d.lookPath(d.cfg.Git.Binary); err != nil {
		d.addWarning(r, "binaries", "git.binary",
			fmt.Sprintf("%s not found; git_operation tasks will fail", d.cfg.Git.Binary))
	}

	prettier := filepath.Join(d.cfg.Toolchain.Dir, "bin", "prettier")
	if _, err := os.Stat(prettier); err == nil {
		return
	}
	if _, err := d.lookPath(d.cfg.Toolchain.NodeenvBinary); err != nil {
		d.addWarning(r, "binaries", "toolchain.nodeenv_binary",
			fmt.Sprintf("%s not found and no prettier in %s; code_formatting tasks will fail",
				d.cfg.Toolchain.NodeenvBinary, d.cfg.Toolchain.Dir))
	}
}

var envVarRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// warnMissingEnvVars reports ${VAR} references in the config file whose
// variable is unset. Interpolation turns them into empty strings silently.
func (d *Doctor) warnMissingEnvVars(r *Result) {
	if d.cfg.SourcePath == "" {
		return
	}
	data, err := os.ReadFile(d.cfg.SourcePath)
	if err != nil {
		return
	}
	seen := map[string]bool{}
	for _, m := range envVarRe.FindAllStringSubmatch(string(data), -1) {
		name := m[1]
		if seen[name] {
			continue
		}
		seen[name] = true
		if _, ok := os.LookupEnv(name); !ok {
			d.addWarning(r, "env_vars", "", fmt.Sprintf("environment variable ${%s} not set", name))
		}
	}
}

func (d *Doctor) warnUnlockedConfig(r *Result) {
	if d.cfg.SourcePath == "" {
		d.addWarning(r, "integrity", "", "running on built-in defaults; no config file loaded")
		return
	}
	if _, err := config.LoadChecksums(filepath.Dir(d.cfg.SourcePath)); errors.Is(err, config.ErrNoChecksums) {
		d.addWarning(r, "integrity", "",
			fmt.Sprintf("config is not locked; run: taskgate config lock --config %s", d.cfg.SourcePath))
	}
}

// FormatHuman returns a human-readable report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid {
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	} else {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		writeIssue(&b, "ERROR", e)
	}
	for _, w := range r.Warnings {
		writeIssue(&b, "WARN ", w)
	}
	return b.String()
}

func writeIssue(b *strings.Builder, label string, i Issue) {
	if i.Field != "" {
		fmt.Fprintf(b, "  %s [%s] %s: %s\n", label, i.Category, i.Field, i.Message)
		return
	}
	fmt.Fprintf(b, "  %s [%s] %s\n", label, i.Category, i.Message)
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
