package content

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/kirillkom/knowledge-enrichment-connector/internal/core/domain"
)

// FileSource is content already on local disk. It is never deleted.
type FileSource struct {
	path      string
	mediaType string
}

func NewFileSource(path, mediaType string) *FileSource {
	return &FileSource{path: path, mediaType: mediaType}
}

func (s *FileSource) Name() string              { return filepath.Base(s.path) }
func (s *FileSource) DeclaredMediaType() string { return s.mediaType }

func (s *FileSource) LocalFile(context.Context) (domain.LocalFile, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return domain.LocalFile{}, fmt.Errorf("stat %s: %w", s.path, err)
	}
	if !info.Mode().IsRegular() {
		return domain.LocalFile{}, fmt.Errorf("%s is not a regular file", s.path)
	}
	return domain.LocalFile{Path: s.path}, nil
}

// BlobSource is in-memory content spooled to disk on demand.
type BlobSource struct {
	name      string
	data      []byte
	mediaType string
	spool     *Spool
}

func NewBlobSource(name string, data []byte, mediaType string, spool *Spool) *BlobSource {
	return &BlobSource{name: name, data: data, mediaType: mediaType, spool: spool}
}

func (s *BlobSource) Name() string              { return s.name }
func (s *BlobSource) DeclaredMediaType() string { return s.mediaType }

func (s *BlobSource) LocalFile(ctx context.Context) (domain.LocalFile, error) {
	return s.spool.Materialize(ctx, s.name, bytes.NewReader(s.data))
}

// spooledSource wraps a file the spool already holds. Close deletes it,
// whether or not it was ever handed out.
type spooledSource struct {
	name      string
	mediaType string

	mu     sync.Mutex
	local  domain.LocalFile
	closed bool
}

func (s *spooledSource) Name() string              { return s.name }
func (s *spooledSource) DeclaredMediaType() string { return s.mediaType }

func (s *spooledSource) LocalFile(context.Context) (domain.LocalFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.LocalFile{}, fmt.Errorf("%s was already released", s.name)
	}
	return domain.LocalFile{Path: s.local.Path}, nil
}

func (s *spooledSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.local.Release == nil {
		return nil
	}
	return s.local.Release()
}
