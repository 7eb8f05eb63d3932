package domain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

// CustomIDPrefix marks source ids generated on behalf of the caller.
const CustomIDPrefix = "CUSTOM_ID-"

// GenerateSourceID returns a UUID-shaped id whose head is replaced by
// CustomIDPrefix, so it keeps the length of a UUID.
func GenerateSourceID() string {
	id := uuid.NewString()
	return CustomIDPrefix + id[len(CustomIDPrefix):]
}

type ItemState string

const (
	ItemPending   ItemState = "pending"
	ItemSucceeded ItemState = "succeeded"
	ItemFailed    ItemState = "failed"
)

// LocalFile is a readable file on local disk. Release frees whatever was
// materialized to provide it and may be nil.
type LocalFile struct {
	Path    string
	Release func() error
}

// ContentSource is one underlying piece of content: a file already on disk,
// or a blob that has to be materialized before it can be streamed.
type ContentSource interface {
	Name() string
	DeclaredMediaType() string
	LocalFile(ctx context.Context) (LocalFile, error)
}

// ContentItem is one unit of input to an orchestration together with the
// caller correlation id and its processing outcome.
type ContentItem struct {
	SourceID  string
	MediaType string
	ObjectKey string
	State     ItemState
	Error     string

	source ContentSource
	local  *LocalFile
}

func NewContentItem(sourceID string, source ContentSource, mediaType string) (*ContentItem, error) {
	if source == nil {
		return nil, WrapError(ErrInvalidInput, "new content item", errors.New("content source is required"))
	}
	mediaType = strings.TrimSpace(mediaType)
	if mediaType == "" {
		return nil, WrapError(ErrInvalidInput, "new content item", fmt.Errorf("media type of %q is not resolved", source.Name()))
	}
	if strings.TrimSpace(sourceID) == "" {
		sourceID = GenerateSourceID()
	}
	return &ContentItem{
		SourceID:  sourceID,
		MediaType: mediaType,
		State:     ItemPending,
		source:    source,
	}, nil
}

func (c *ContentItem) Name() string {
	return c.source.Name()
}

// LocalPath materializes the content on first use.
func (c *ContentItem) LocalPath(ctx context.Context) (string, error) {
	if c.local != nil {
		return c.local.Path, nil
	}
	local, err := c.source.LocalFile(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve local file for %s: %w", c.SourceID, err)
	}
	c.local = &local
	return local.Path, nil
}

// Release frees the materialized local file, if any, and closes the source
// when it holds resources of its own. Safe to call repeatedly.
func (c *ContentItem) Release() error {
	var err error
	if c.local != nil {
		release := c.local.Release
		c.local = nil
		if release != nil {
			err = release()
		}
	}
	if closer, ok := c.source.(io.Closer); ok {
		if closeErr := closer.Close(); err == nil {
			err = closeErr
		}
	}
	return err
}

func (c *ContentItem) MarkUploaded(objectKey string) {
	c.ObjectKey = objectKey
	c.State = ItemSucceeded
	c.Error = ""
}

func (c *ContentItem) MarkFailed(message string) {
	c.ObjectKey = ""
	c.State = ItemFailed
	c.Error = message
}

func (c *ContentItem) Succeeded() bool {
	return c.State == ItemSucceeded
}

// UploadedObjectKeys lists the object keys of items that were uploaded, in
// input order.
func UploadedObjectKeys(items []*ContentItem) []string {
	keys := make([]string, 0, len(items))
	for _, item := range items {
		if item.Succeeded() {
			keys = append(keys, item.ObjectKey)
		}
	}
	return keys
}

func UploadedMapping(items []*ContentItem) []ObjectKeyMapping {
	mapping := make([]ObjectKeyMapping, 0, len(items))
	for _, item := range items {
		if item.Succeeded() {
			mapping = append(mapping, ObjectKeyMapping{SourceID: item.SourceID, ObjectKey: item.ObjectKey})
		}
	}
	return mapping
}
