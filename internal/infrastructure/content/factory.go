package content

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/kirillkom/knowledge-enrichment-connector/internal/core/domain"
)

// Factory builds content items and resolves their media type: explicit,
// then declared by the source, then detected from the bytes.
type Factory struct {
	detector *Detector
	spool    *Spool
}

func NewFactory(detector *Detector, spool *Spool) *Factory {
	return &Factory{detector: detector, spool: spool}
}

func (f *Factory) FromFile(sourceID, path, mediaType string) (*domain.ContentItem, error) {
	source := NewFileSource(path, strings.TrimSpace(mediaType))
	resolved := source.DeclaredMediaType()
	if resolved == "" {
		detected, err := f.detector.DetectFile(path)
		if err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "content from file", err)
		}
		resolved = detected
	}
	return domain.NewContentItem(sourceID, source, resolved)
}

func (f *Factory) FromBlob(sourceID, name string, data []byte, mediaType string) (*domain.ContentItem, error) {
	source := NewBlobSource(name, data, strings.TrimSpace(mediaType), f.spool)
	resolved := source.DeclaredMediaType()
	if resolved == "" {
		resolved = f.detector.DetectBytes(data, name)
	}
	return domain.NewContentItem(sourceID, source, resolved)
}

// FromReader spools r right away so large uploads never sit in memory.
// Releasing the item deletes the spooled file.
func (f *Factory) FromReader(ctx context.Context, sourceID, name string, r io.Reader, mediaType string) (*domain.ContentItem, error) {
	local, err := f.spool.Materialize(ctx, name, r)
	if err != nil {
		return nil, err
	}

	source := &spooledSource{name: name, mediaType: strings.TrimSpace(mediaType), local: local}
	resolved := source.DeclaredMediaType()
	if resolved == "" {
		detected, err := f.detector.DetectFile(local.Path)
		if err != nil {
			_ = source.Close()
			return nil, domain.WrapError(domain.ErrInvalidInput, "content from reader", err)
		}
		resolved = detected
	}

	item, err := domain.NewContentItem(sourceID, source, resolved)
	if err != nil {
		_ = source.Close()
		return nil, fmt.Errorf("content from reader: %w", err)
	}
	return item, nil
}
