package ports

import (
	"context"

	"aadhaarlens/adapters/tabular"
	"aadhaarlens/domain/dataset"
)

// SourceReader loads the raw monthly tables for one dataset source.
// Implementations resolve where a source's files live; the pipeline only
// names the source it wants.
type SourceReader interface {
	ReadSource(ctx context.Context, source dataset.Source) ([]*tabular.Table, error)
}
