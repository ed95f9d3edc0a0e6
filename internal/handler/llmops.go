package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"unicode"

	"github.com/mattjoyce/taskgate/internal/fsutil"
	"github.com/mattjoyce/taskgate/internal/llm"
	"github.com/mattjoyce/taskgate/internal/task"
)

const (
	extractEmailPrompt = "Extract the sender's email address from this email message. Reply with the address only."
	extractCardPrompt  = "Extract the credit card number from this image. Reply with the number only."
)

var errNoCardNumber = errors.New("model returned no card digits")

type llmOps struct {
	chat   Chatter
	models Models
}

func (l *llmOps) Handle(ctx context.Context, d task.Descriptor) (string, error) {
	op, err := operation(d)
	if err != nil {
		return "", err
	}
	in, out, err := paths(d)
	if err != nil {
		return "", err
	}

	switch op {
	case "extract_email":
		err = l.extractEmail(ctx, in, out)
	case "extract_card":
		err = l.extractCard(ctx, in, out)
	default:
		return "", unsupportedOperation(d.Kind, op)
	}
	if err != nil {
		return "", err
	}
	return SuccessMessage, nil
}

func (l *llmOps) extractEmail(ctx context.Context, in, out string) error {
	content, err := os.ReadFile(in)
	if err != nil {
		return fmt.Errorf("read email: %w", err)
	}
	reply, err := l.chat.Chat(ctx, llm.ChatRequest{
		Model:    l.models.Chat,
		System:   extractEmailPrompt,
		Messages: []llm.Message{llm.Text("user", string(content))},
	})
	if err != nil {
		return fmt.Errorf("extract email: %w", err)
	}
	return fsutil.AtomicWrite(out, []byte(strings.TrimSpace(reply)))
}

func (l *llmOps) extractCard(ctx context.Context, in, out string) error {
	img, err := os.ReadFile(in)
	if err != nil {
		return fmt.Errorf("read card image: %w", err)
	}
	reply, err := l.chat.Chat(ctx, llm.ChatRequest{
		Model:    l.models.Vision,
		Messages: []llm.Message{llm.Image(extractCardPrompt, http.DetectContentType(img), img)},
	})
	if err != nil {
		return fmt.Errorf("extract card: %w", err)
	}
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, reply)
	if digits == "" {
		return errNoCardNumber
	}
	return fsutil.AtomicWrite(out, []byte(digits))
}
