package content

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/knowledge-enrichment-connector/internal/core/domain"
	"github.com/kirillkom/knowledge-enrichment-connector/internal/infrastructure/storage/localfs"
)

const spoolPrefix = "spool"

// Spool materializes in-memory content as temporary files.
type Spool struct {
	storage *localfs.Storage
}

func NewSpool(storage *localfs.Storage) *Spool {
	return &Spool{storage: storage}
}

// Materialize writes r to a fresh file. Release deletes it.
func (s *Spool) Materialize(ctx context.Context, name string, r io.Reader) (domain.LocalFile, error) {
	key := spoolPrefix + "/" + uuid.NewString() + strings.ToLower(filepath.Ext(name))
	if err := s.storage.Save(ctx, key, r); err != nil {
		return domain.LocalFile{}, fmt.Errorf("spool %s: %w", name, err)
	}
	path, err := s.storage.Path(key)
	if err != nil {
		return domain.LocalFile{}, err
	}
	return domain.LocalFile{
		Path: path,
		Release: func() error {
			return s.storage.Delete(context.Background(), key)
		},
	}, nil
}
