package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is looked up when Load is given a directory.
const DefaultFileName = "config.yaml"

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads, verifies and validates a configuration file. A directory path
// means <dir>/config.yaml. When a .checksums manifest sits next to the file,
// the file must match it.
func Load(configPath string) (*Config, error) {
	absPath, err := resolvePath(configPath)
	if err != nil {
		return nil, err
	}

	if err := verifyConfigHash(absPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", absPath, err)
	}
	cfg.SourcePath = absPath

	cfg = applyConfigDefaults(cfg)
	resolveCredentials(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads configPath, or returns validated defaults when it is
// empty.
func LoadOrDefault(configPath string) (*Config, error) {
	if configPath != "" {
		return Load(configPath)
	}
	cfg := Defaults()
	resolveCredentials(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// resolvePath returns the absolute config file path for a file or directory.
func resolvePath(configPath string) (string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, DefaultFileName)
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("directory provided but %s not found: %s", DefaultFileName, absPath)
		}
	}
	return absPath, nil
}

// verifyConfigHash checks path against the manifest in its directory. A
// missing manifest skips verification.
func verifyConfigHash(path string) error {
	dir := filepath.Dir(path)
	manifest, err := LoadChecksums(dir)
	if errors.Is(err, ErrNoChecksums) {
		return nil
	}
	if err != nil {
		return err
	}

	base := filepath.Base(path)
	expected, ok := manifest.Hashes[base]
	if !ok {
		return fmt.Errorf("config file %s has no hash in checksums at %s\n"+
			"Run: taskgate config lock --config %s", base, dir, path)
	}
	if err := VerifyFileHash(path, expected); err != nil {
		return fmt.Errorf("config verification failed for %s: %w\n"+
			"If you edited this file intentionally, run: taskgate config lock --config %s", path, err, path)
	}
	return nil
}

// applyConfigDefaults fills every unset field from Defaults().
func applyConfigDefaults(cfg *Config) *Config {
	d := Defaults()

	setString(&cfg.Service.Name, d.Service.Name)
	setString(&cfg.Service.LogLevel, d.Service.LogLevel)
	setString(&cfg.Service.LogFormat, d.Service.LogFormat)

	setString(&cfg.Sandbox.Root, d.Sandbox.Root)
	setString(&cfg.State.LockPath, d.State.LockPath)

	setString(&cfg.API.Listen, d.API.Listen)
	if cfg.API.MaxBodyBytes == 0 {
		cfg.API.MaxBodyBytes = d.API.MaxBodyBytes
	}

	if cfg.Supervisor.Deadline == 0 {
		cfg.Supervisor.Deadline = d.Supervisor.Deadline
	}

	setString(&cfg.LLM.BaseURL, d.LLM.BaseURL)
	setString(&cfg.LLM.ClassifierModel, d.LLM.ClassifierModel)
	setString(&cfg.LLM.ChatModel, d.LLM.ChatModel)
	setString(&cfg.LLM.VisionModel, d.LLM.VisionModel)
	setString(&cfg.LLM.EmbeddingModel, d.LLM.EmbeddingModel)
	setString(&cfg.LLM.TranscriptionModel, d.LLM.TranscriptionModel)
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = d.LLM.Timeout
	}

	if cfg.Fetch.Timeout == 0 {
		cfg.Fetch.Timeout = d.Fetch.Timeout
	}
	if cfg.Fetch.MaxBodyBytes == 0 {
		cfg.Fetch.MaxBodyBytes = d.Fetch.MaxBodyBytes
	}
	setString(&cfg.Fetch.UserAgent, d.Fetch.UserAgent)

	setString(&cfg.Git.Binary, d.Git.Binary)
	setString(&cfg.Git.AuthorName, d.Git.AuthorName)
	setString(&cfg.Git.AuthorEmail, d.Git.AuthorEmail)

	setString(&cfg.Toolchain.Dir, d.Toolchain.Dir)
	setString(&cfg.Toolchain.NodeenvBinary, d.Toolchain.NodeenvBinary)
	setString(&cfg.Toolchain.PrettierVersion, d.Toolchain.PrettierVersion)
	if cfg.Toolchain.BootstrapTimeout == 0 {
		cfg.Toolchain.BootstrapTimeout = d.Toolchain.BootstrapTimeout
	}

	return cfg
}

func setString(dst *string, def string) {
	if strings.TrimSpace(*dst) == "" {
		*dst = def
	}
}

// resolveCredentials interpolates the LLM key and falls back to
// AIPROXY_TOKEN. A placeholder that is still unresolved counts as unset.
func resolveCredentials(cfg *Config) {
	cfg.LLM.APIKey = interpolateEnv(cfg.LLM.APIKey)
	if envVarPattern.MatchString(cfg.LLM.APIKey) {
		cfg.LLM.APIKey = ""
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv(TokenEnvVar)
	}
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	switch strings.ToLower(cfg.Service.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("service.log_level %q must be one of debug, info, warn, error", cfg.Service.LogLevel)
	}
	switch strings.ToLower(cfg.Service.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("service.log_format %q must be json or text", cfg.Service.LogFormat)
	}

	if !filepath.IsAbs(cfg.Sandbox.Root) {
		return fmt.Errorf("sandbox.root %q must be an absolute path", cfg.Sandbox.Root)
	}
	if filepath.Clean(cfg.Sandbox.Root) == "/" {
		return fmt.Errorf("sandbox.root must not be the filesystem root")
	}

	if cfg.API.MaxBodyBytes < 0 {
		return fmt.Errorf("api.max_body_bytes must be positive")
	}
	if envVarPattern.MatchString(cfg.API.Auth.APIKey) {
		return fmt.Errorf("api.auth.api_key references an unset environment variable: %s", cfg.API.Auth.APIKey)
	}

	if cfg.Supervisor.Deadline < 0 {
		return fmt.Errorf("supervisor.deadline must be positive")
	}

	u, err := url.Parse(cfg.LLM.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("llm.base_url %q must be an http(s) URL", cfg.LLM.BaseURL)
	}
	if cfg.LLM.Timeout < 0 {
		return fmt.Errorf("llm.timeout must be positive")
	}
	if cfg.LLM.Timeout >= cfg.Supervisor.Deadline {
		return fmt.Errorf("llm.timeout (%s) must be shorter than supervisor.deadline (%s)", cfg.LLM.Timeout, cfg.Supervisor.Deadline)
	}

	if cfg.Fetch.Timeout < 0 || cfg.Fetch.MaxBodyBytes < 0 {
		return fmt.Errorf("fetch.timeout and fetch.max_body_bytes must be positive")
	}
	if cfg.Toolchain.BootstrapTimeout < 0 {
		return fmt.Errorf("toolchain.bootstrap_timeout must be positive")
	}
	return nil
}
