package handler

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/mattjoyce/taskgate/internal/fsutil"
	"github.com/mattjoyce/taskgate/internal/task"
)

const defaultJPEGQuality = 75

// imageProcessing resizes or re-encodes input into output. The output
// format follows the output file extension.
func imageProcessing(_ context.Context, d task.Descriptor) (string, error) {
	op, err := operation(d)
	if err != nil {
		return "", err
	}
	in, out, err := paths(d)
	if err != nil {
		return "", err
	}
	format, err := imaging.FormatFromFilename(out)
	if err != nil {
		return "", fmt.Errorf("%w: output %s: %v", task.ErrInvalidParameter, filepath.Base(out), err)
	}

	var opts []imaging.EncodeOption
	var transform func(image.Image) image.Image
	switch op {
	case "resize":
		width, height, err := dimensions(d)
		if err != nil {
			return "", err
		}
		transform = func(img image.Image) image.Image {
			return imaging.Resize(img, width, height, imaging.Lanczos)
		}
	case "compress":
		q, err := jpegQuality(d)
		if err != nil {
			return "", err
		}
		opts = append(opts,
			imaging.JPEGQuality(q),
			imaging.PNGCompressionLevel(png.BestCompression),
		)
	default:
		return "", unsupportedOperation(d.Kind, op)
	}

	img, err := imaging.Open(in, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	if transform != nil {
		img = transform(img)
	}
	err = fsutil.AtomicWriteFunc(out, func(w io.Writer) error {
		return imaging.Encode(w, img, format, opts...)
	})
	if err != nil {
		return "", fmt.Errorf("encode image: %w", err)
	}
	return SuccessMessage, nil
}

// dimensions requires at least one positive side; a zero side keeps the
// aspect ratio.
func dimensions(d task.Descriptor) (int, int, error) {
	width, err := optionalInt(d, "width")
	if err != nil {
		return 0, 0, err
	}
	height, err := optionalInt(d, "height")
	if err != nil {
		return 0, 0, err
	}
	if width < 0 || height < 0 || (width == 0 && height == 0) {
		return 0, 0, fmt.Errorf("%w: resize needs a positive width or height, got %dx%d", task.ErrInvalidParameter, width, height)
	}
	return width, height, nil
}

func jpegQuality(d task.Descriptor) (int, error) {
	if !d.Has("quality") {
		return defaultJPEGQuality, nil
	}
	q, err := d.Int("quality")
	if err != nil {
		return 0, err
	}
	if q < 1 || q > 100 {
		return 0, fmt.Errorf("%w: quality must be within 1..100, got %d", task.ErrInvalidParameter, q)
	}
	return q, nil
}

func optionalInt(d task.Descriptor, key string) (int, error) {
	if !d.Has(key) || d.Params[key] == nil {
		return 0, nil
	}
	return d.Int(key)
}

type audioTranscription struct {
	transcribe Transcriber
	model      string
}

func (a *audioTranscription) Handle(ctx context.Context, d task.Descriptor) (string, error) {
	in, out, err := paths(d)
	if err != nil {
		return "", err
	}
	f, err := os.Open(in)
	if err != nil {
		return "", fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	text, err := a.transcribe.Transcribe(ctx, a.model, filepath.Base(in), f)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	if err := fsutil.AtomicWrite(out, []byte(strings.TrimSpace(text))); err != nil {
		return "", err
	}
	return SuccessMessage, nil
}
