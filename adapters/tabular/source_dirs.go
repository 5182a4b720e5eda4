package tabular

import (
	"context"
	"path/filepath"

	"aadhaarlens/domain/dataset"
)

// SourceDirs reads each dataset source from its own subdirectory under a
// common data root: <root>/enrolment, <root>/demographic, <root>/biometric.
type SourceDirs struct {
	root string
}

func NewSourceDirs(root string) *SourceDirs {
	return &SourceDirs{root: root}
}

// ReadSource loads every table file in the source's directory.
func (s *SourceDirs) ReadSource(ctx context.Context, source dataset.Source) ([]*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ReadDir(filepath.Join(s.root, string(source)), string(source))
}
