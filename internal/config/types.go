package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/mattjoyce/taskgate/internal/llm"
)

// TokenEnvVar is consulted when llm.api_key is empty or unresolved.
const TokenEnvVar = "AIPROXY_TOKEN"

// Config represents the complete taskgate configuration.
type Config struct {
	Service    ServiceConfig    `yaml:"service"`
	Sandbox    SandboxConfig    `yaml:"sandbox"`
	State      StateConfig      `yaml:"state"`
	API        APIConfig        `yaml:"api"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	LLM        LLMConfig        `yaml:"llm"`
	Fetch      FetchConfig      `yaml:"fetch"`
	Git        GitConfig        `yaml:"git"`
	Toolchain  ToolchainConfig  `yaml:"toolchain"`

	// SourcePath is the file the config was read from. Empty for defaults.
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// SandboxConfig names the only directory tasks may touch.
type SandboxConfig struct {
	Root string `yaml:"root"`
}

// StateConfig holds process state locations.
type StateConfig struct {
	LockPath string `yaml:"lock_path"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Listen       string        `yaml:"listen"`
	Auth         APIAuthConfig `yaml:"auth"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
}

// APIAuthConfig defines API authentication settings. An empty key disables
// auth.
type APIAuthConfig struct {
	APIKey string `yaml:"api_key"`
}

type SupervisorConfig struct {
	Deadline time.Duration `yaml:"deadline"`
}

// LLMConfig configures the OpenAI-compatible proxy and the model used for
// each kind of call.
type LLMConfig struct {
	BaseURL            string        `yaml:"base_url"`
	APIKey             string        `yaml:"api_key"`
	ClassifierModel    string        `yaml:"classifier_model"`
	ChatModel          string        `yaml:"chat_model"`
	VisionModel        string        `yaml:"vision_model"`
	EmbeddingModel     string        `yaml:"embedding_model"`
	TranscriptionModel string        `yaml:"transcription_model"`
	Timeout            time.Duration `yaml:"timeout"`
}

type FetchConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	UserAgent    string        `yaml:"user_agent"`
}

type GitConfig struct {
	Binary      string `yaml:"binary"`
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
}

// ToolchainConfig locates the node environment used by code_formatting.
type ToolchainConfig struct {
	Dir              string        `yaml:"dir"`
	NodeenvBinary    string        `yaml:"nodeenv_binary"`
	PrettierVersion  string        `yaml:"prettier_version"`
	BootstrapTimeout time.Duration `yaml:"bootstrap_timeout"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "taskgate",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Sandbox: SandboxConfig{
			Root: "/data",
		},
		State: StateConfig{
			LockPath: filepath.Join(os.TempDir(), "taskgate.pid"),
		},
		API: APIConfig{
			Listen:       "127.0.0.1:8000",
			MaxBodyBytes: 64 << 10,
		},
		Supervisor: SupervisorConfig{
			Deadline: 19 * time.Second,
		},
		LLM: LLMConfig{
			BaseURL:            llm.DefaultBaseURL,
			APIKey:             "${" + TokenEnvVar + "}",
			ClassifierModel:    "gpt-4o-mini",
			ChatModel:          "gpt-4o-mini",
			VisionModel:        "gpt-4o-mini",
			EmbeddingModel:     "text-embedding-3-small",
			TranscriptionModel: "whisper-1",
			Timeout:            15 * time.Second,
		},
		Fetch: FetchConfig{
			Timeout:      10 * time.Second,
			MaxBodyBytes: 10 << 20,
			UserAgent:    "taskgate/1.0",
		},
		Git: GitConfig{
			Binary:      "git",
			AuthorName:  "taskgate",
			AuthorEmail: "taskgate@localhost",
		},
		Toolchain: ToolchainConfig{
			Dir:              filepath.Join(os.TempDir(), "taskgate-node"),
			NodeenvBinary:    "nodeenv",
			PrettierVersion:  "3.4.2",
			BootstrapTimeout: 2 * time.Minute,
		},
	}
}
