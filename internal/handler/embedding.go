package handler

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/mattjoyce/taskgate/internal/fsutil"
	"github.com/mattjoyce/taskgate/internal/task"
)

type embeddingOp struct {
	embed Embedder
	model string
}

// Handle writes the two most similar lines of the input file.
func (e *embeddingOp) Handle(ctx context.Context, d task.Descriptor) (string, error) {
	in, out, err := paths(d)
	if err != nil {
		return "", err
	}
	lines, err := nonEmptyLines(in)
	if err != nil {
		return "", err
	}
	if len(lines) < 2 {
		return "", fmt.Errorf("need at least two lines to compare, got %d", len(lines))
	}

	vectors, err := e.embed.Embed(ctx, e.model, lines)
	if err != nil {
		return "", fmt.Errorf("embed lines: %w", err)
	}
	i, j := mostSimilarPair(vectors)
	if err := fsutil.AtomicWrite(out, []byte(lines[i]+"\n"+lines[j])); err != nil {
		return "", err
	}
	return SuccessMessage, nil
}

func nonEmptyLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if s := strings.TrimSpace(sc.Text()); s != "" {
			lines = append(lines, s)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return lines, nil
}

// mostSimilarPair returns i < j maximizing cosine similarity. Ties keep the
// first pair found.
func mostSimilarPair(vectors [][]float64) (int, int) {
	bestI, bestJ := 0, 1
	best := math.Inf(-1)
	for i := 0; i < len(vectors); i++ {
		for j := i + 1; j < len(vectors); j++ {
			if s := cosine(vectors[i], vectors[j]); s > best {
				best, bestI, bestJ = s, i, j
			}
		}
	}
	return bestI, bestJ
}

func cosine(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for k := 0; k < n; k++ {
		dot += a[k] * b[k]
		na += a[k] * a[k]
		nb += b[k] * b[k]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
