package pipeline

import (
	"context"
	"fmt"

	"github.com/couchcryptid/hydrometry-etl/internal/domain"
)

// FanOutLoader writes every batch to each of its loaders in order. The first
// failure aborts the batch so that offsets are not committed.
type FanOutLoader []BatchLoader

func (f FanOutLoader) LoadBatch(ctx context.Context, events []domain.OutputEvent) error {
	for i, l := range f {
		if err := l.LoadBatch(ctx, events); err != nil {
			return fmt.Errorf("loader %d: %w", i, err)
		}
	}
	return nil
}
