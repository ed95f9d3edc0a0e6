package classify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattjoyce/taskgate/internal/llm"
	"github.com/mattjoyce/taskgate/internal/task"
)

const (
	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = 15 * time.Second
)

// ErrEmptyTask is returned for blank task text; no model call is made.
var ErrEmptyTask = errors.New("task text is empty")

// Chatter is the slice of the LLM client the classifier needs.
type Chatter interface {
	Chat(ctx context.Context, req llm.ChatRequest) (string, error)
}

// LLMClassifier asks a chat model for a JSON descriptor.
type LLMClassifier struct {
	chat    Chatter
	model   string
	timeout time.Duration
	prompt  string
}

func NewLLMClassifier(chat Chatter, model string, timeout time.Duration) *LLMClassifier {
	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &LLMClassifier{chat: chat, model: model, timeout: timeout, prompt: systemPrompt()}
}

// Classify applies its own timeout on top of ctx, so a slow model leaves the
// rest of the request budget to the handler.
func (c *LLMClassifier) Classify(ctx context.Context, text string) (task.Descriptor, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return task.Descriptor{}, ErrEmptyTask
	}

	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.chat.Chat(cctx, llm.ChatRequest{
		Model:    c.model,
		System:   c.prompt,
		Messages: []llm.Message{llm.Text("user", text)},
		JSONMode: true,
	})
	if err != nil {
		return task.Descriptor{}, fmt.Errorf("classify task: %w", err)
	}

	d, err := task.ParseDescriptor([]byte(raw))
	if err != nil {
		return task.Descriptor{}, fmt.Errorf("classify task: %w", err)
	}
	return d, nil
}

// kindHints documents the parameters each handler reads.
var kindHints = map[task.Kind]string{
	task.KindFileOperation:      `operation ∈ count_weekday (input, output, weekday) | sort_json (input, output) | recent_logs (input dir, output) | markdown_index (input dir, output)`,
	task.KindLLMOperation:       `operation ∈ extract_email (input text file, output) | extract_card (input image, output)`,
	task.KindDatabaseOperation:  `operation = sum_gold_tickets (input sqlite file, output)`,
	task.KindEmbeddingOperation: `input (one item per line), output; writes the most similar pair`,
	task.KindAPIFetch:           `api_url, output`,
	task.KindGitOperation:       `repo_url, output (clone dir), optional commit_changes, files, commit_message`,
	task.KindDatabaseQuery:      `db_type (sqlite), input (db file), query, output (csv)`,
	task.KindWebScraping:        `url, selector, output`,
	task.KindImageProcessing:    `operation ∈ resize (width, height) | compress (quality); input, output`,
	task.KindAudioTranscription: `input (audio file), output`,
	task.KindMarkdownConversion: `input (.md), output (.html)`,
	task.KindCodeFormatting:     `input (file to format in place)`,
}

func systemPrompt() string {
	var b strings.Builder
	b.WriteString("Parse the task into a single JSON object. ")
	b.WriteString(`The "type" key names the task type and must be one of the values below. `)
	b.WriteString("Put every parameter as a top-level key. Paths are absolute and live under /data unless the task says otherwise.\n\n")
	for _, k := range task.Kinds() {
		fmt.Fprintf(&b, "- %s: %s\n", k, kindHints[k])
	}
	b.WriteString("\nReply with JSON only.")
	return b.String()
}
