// Package handler holds the operation bodies and the registry that maps
// every task kind to exactly one of them.
//
// Handlers receive a descriptor whose input/output paths are already
// canonical and inside the sandbox. They return a success message or a single
// wrapped error, and every error is reported to the caller as a handler
// failure. Paths a handler discovers on its own, such as directory entries,
// are re-checked through Deps.Paths before they are opened.
package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mattjoyce/taskgate/internal/guard"
	"github.com/mattjoyce/taskgate/internal/llm"
	"github.com/mattjoyce/taskgate/internal/proc"
	"github.com/mattjoyce/taskgate/internal/task"
)

// SuccessMessage is the result every built-in handler returns.
const SuccessMessage = "Success"

// Handler performs one task kind's side effect.
type Handler interface {
	Handle(ctx context.Context, d task.Descriptor) (string, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, d task.Descriptor) (string, error)

func (f HandlerFunc) Handle(ctx context.Context, d task.Descriptor) (string, error) {
	return f(ctx, d)
}

type Chatter interface {
	Chat(ctx context.Context, req llm.ChatRequest) (string, error)
}

type Embedder interface {
	Embed(ctx context.Context, model string, inputs []string) ([][]float64, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, model, filename string, audio io.Reader) (string, error)
}

// Runner executes external commands.
type Runner interface {
	Run(ctx context.Context, c proc.Cmd) (proc.Result, error)
}

// PathChecker validates a path against the sandbox. *guard.Guard satisfies it.
type PathChecker interface {
	ValidatePath(p string) guard.Verdict
}

// Models names the model used for each kind of LLM call.
type Models struct {
	Chat          string
	Vision        string
	Embedding     string
	Transcription string
}

// GitConfig configures git_operation.
type GitConfig struct {
	Binary      string
	AuthorName  string
	AuthorEmail string
}

// FetchConfig configures api_fetch and web_scraping.
type FetchConfig struct {
	MaxBodyBytes int64
	UserAgent    string
}

// Deps are the shared collaborators handlers are built from. They are
// constructed once at startup and never mutated afterwards.
type Deps struct {
	Chat       Chatter
	Embed      Embedder
	Transcribe Transcriber
	Models     Models
	HTTP       *http.Client
	Fetch      FetchConfig
	Runner     Runner
	Git        GitConfig
	Toolchain  *Toolchain
	Paths      PathChecker
	Logger     *slog.Logger
}

// Registry is the fixed kind → handler table.
type Registry struct {
	handlers map[task.Kind]Handler
}

// NewRegistry builds a handler for every kind in task.Kinds(). A kind the
// switch in handlerFor does not cover, or a handler missing a collaborator,
// is a startup error.
func NewRegistry(deps Deps) (*Registry, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	r := &Registry{handlers: make(map[task.Kind]Handler, len(task.Kinds()))}
	for _, k := range task.Kinds() {
		h, err := handlerFor(k, deps)
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", k, err)
		}
		r.handlers[k] = h
	}
	return r, nil
}

// Resolve returns the handler for kind. Unknown kinds return false.
func (r *Registry) Resolve(kind task.Kind) (Handler, bool) {
	h, ok := r.handlers[kind]
	return h, ok
}

// Len is the number of registered kinds.
func (r *Registry) Len() int { return len(r.handlers) }

func handlerFor(k task.Kind, deps Deps) (Handler, error) {
	switch k {
	case task.KindFileOperation:
		if deps.Paths == nil {
			return nil, fmt.Errorf("path checker is required")
		}
		return &fileOps{paths: deps.Paths, logger: deps.Logger}, nil
	case task.KindLLMOperation:
		if deps.Chat == nil {
			return nil, fmt.Errorf("chat client is required")
		}
		return &llmOps{chat: deps.Chat, models: deps.Models}, nil
	case task.KindDatabaseOperation:
		return HandlerFunc(databaseOperation), nil
	case task.KindEmbeddingOperation:
		if deps.Embed == nil {
			return nil, fmt.Errorf("embedding client is required")
		}
		return &embeddingOp{embed: deps.Embed, model: deps.Models.Embedding}, nil
	case task.KindAPIFetch:
		return &apiFetch{fetcher: newFetcher(deps)}, nil
	case task.KindGitOperation:
		if deps.Runner == nil {
			return nil, fmt.Errorf("command runner is required")
		}
		return newGitOp(deps.Runner, deps.Git), nil
	case task.KindDatabaseQuery:
		return HandlerFunc(databaseQuery), nil
	case task.KindWebScraping:
		return &webScrape{fetcher: newFetcher(deps)}, nil
	case task.KindImageProcessing:
		return HandlerFunc(imageProcessing), nil
	case task.KindAudioTranscription:
		if deps.Transcribe == nil {
			return nil, fmt.Errorf("transcription client is required")
		}
		return &audioTranscription{transcribe: deps.Transcribe, model: deps.Models.Transcription}, nil
	case task.KindMarkdownConversion:
		return newMarkdownConversion(), nil
	case task.KindCodeFormatting:
		if deps.Toolchain == nil {
			return nil, fmt.Errorf("formatter toolchain is required")
		}
		return &codeFormatting{toolchain: deps.Toolchain}, nil
	default:
		return nil, fmt.Errorf("no handler for kind %q", k)
	}
}

// paths returns the guarded input and output parameters.
func paths(d task.Descriptor) (string, string, error) {
	in, err := d.String(task.ParamInput)
	if err != nil {
		return "", "", err
	}
	out, err := d.String(task.ParamOutput)
	if err != nil {
		return "", "", err
	}
	return in, out, nil
}

func operation(d task.Descriptor) (string, error) {
	op, err := d.String(task.ParamOperation)
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(op)), nil
}

func unsupportedOperation(kind task.Kind, op string) error {
	return fmt.Errorf("%w: %s does not support operation %q", task.ErrInvalidParameter, kind, op)
}
