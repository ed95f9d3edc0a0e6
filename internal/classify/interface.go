package classify

import (
	"context"

	"github.com/mattjoyce/taskgate/internal/task"
)

//go:generate mockgen -destination=mocks/mock_classifier.go -package=mocks github.com/mattjoyce/taskgate/internal/classify Classifier

// Classifier turns free task text into a structured descriptor.
type Classifier interface {
	Classify(ctx context.Context, text string) (task.Descriptor, error)
}
