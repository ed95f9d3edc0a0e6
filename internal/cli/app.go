package cli

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mattjoyce/taskgate/internal/api"
	"github.com/mattjoyce/taskgate/internal/classify"
	"github.com/mattjoyce/taskgate/internal/config"
	"github.com/mattjoyce/taskgate/internal/events"
	"github.com/mattjoyce/taskgate/internal/guard"
	"github.com/mattjoyce/taskgate/internal/handler"
	"github.com/mattjoyce/taskgate/internal/llm"
	"github.com/mattjoyce/taskgate/internal/log"
	"github.com/mattjoyce/taskgate/internal/proc"
	"github.com/mattjoyce/taskgate/internal/supervisor"
)

const eventHistory = 256

// app holds the long-lived collaborators built once from config.
type app struct {
	cfg        *config.Config
	guard      *guard.Guard
	registry   *handler.Registry
	supervisor *supervisor.Supervisor
	events     *events.Hub
	logger     *slog.Logger
}

func buildApp(cfg *config.Config) (*app, error) {
	g, err := guard.New(cfg.Sandbox.Root)
	if err != nil {
		return nil, fmt.Errorf("sandbox: %w", err)
	}

	client := llm.New(llm.Config{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Timeout: cfg.Supervisor.Deadline,
	})
	runner := proc.NewRunner(log.WithComponent("proc"))

	registry, err := handler.NewRegistry(handler.Deps{
		Chat:       client,
		Embed:      client,
		Transcribe: client,
		Models: handler.Models{
			Chat:          cfg.LLM.ChatModel,
			Vision:        cfg.LLM.VisionModel,
			Embedding:     cfg.LLM.EmbeddingModel,
			Transcription: cfg.LLM.TranscriptionModel,
		},
		HTTP: &http.Client{Timeout: cfg.Fetch.Timeout},
		Fetch: handler.FetchConfig{
			MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
			UserAgent:    cfg.Fetch.UserAgent,
		},
		Runner: runner,
		Git: handler.GitConfig{
			Binary:      cfg.Git.Binary,
			AuthorName:  cfg.Git.AuthorName,
			AuthorEmail: cfg.Git.AuthorEmail,
		},
		Toolchain: &handler.Toolchain{
			Dir:              cfg.Toolchain.Dir,
			NodeenvBinary:    cfg.Toolchain.NodeenvBinary,
			PrettierVersion:  cfg.Toolchain.PrettierVersion,
			BootstrapTimeout: cfg.Toolchain.BootstrapTimeout,
			Runner:           runner,
		},
		Paths:  g,
		Logger: log.WithComponent("handler"),
	})
	if err != nil {
		return nil, fmt.Errorf("handler registry: %w", err)
	}

	hub := events.NewHub(eventHistory)
	classifier := classify.NewLLMClassifier(client, cfg.LLM.ClassifierModel, cfg.LLM.Timeout)
	sup := supervisor.New(classifier, registry, g, supervisor.Options{
		Deadline: cfg.Supervisor.Deadline,
		Events:   hub,
		Logger:   log.WithComponent("supervisor"),
	})

	return &app{
		cfg:        cfg,
		guard:      g,
		registry:   registry,
		supervisor: sup,
		events:     hub,
		logger:     log.WithComponent("main"),
	}, nil
}

func (a *app) apiServer() *api.Server {
	return api.New(api.Config{
		Listen:       a.cfg.API.Listen,
		APIKey:       a.cfg.API.Auth.APIKey,
		MaxBodyBytes: a.cfg.API.MaxBodyBytes,
		WriteTimeout: a.cfg.Supervisor.Deadline + writeTimeoutSlack,
	}, a.supervisor, a.guard, a.registry, a.events, log.WithComponent("api"))
}
