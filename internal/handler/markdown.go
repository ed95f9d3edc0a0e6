package handler

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/mattjoyce/taskgate/internal/fsutil"
	"github.com/mattjoyce/taskgate/internal/task"
)

type markdownConversion struct {
	md goldmark.Markdown
}

func newMarkdownConversion() *markdownConversion {
	return &markdownConversion{md: goldmark.New(goldmark.WithExtensions(extension.GFM))}
}

func (m *markdownConversion) Handle(_ context.Context, d task.Descriptor) (string, error) {
	in, out, err := paths(d)
	if err != nil {
		return "", err
	}
	src, err := os.ReadFile(in)
	if err != nil {
		return "", fmt.Errorf("read markdown: %w", err)
	}
	err = fsutil.AtomicWriteFunc(out, func(w io.Writer) error {
		return m.md.Convert(src, w)
	})
	if err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return SuccessMessage, nil
}
