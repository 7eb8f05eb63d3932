package content

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/knowledge-enrichment-connector/internal/core/domain"
	"github.com/kirillkom/knowledge-enrichment-connector/internal/infrastructure/storage/localfs"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func newFactoryForTest(t *testing.T) (*Factory, string) {
	t.Helper()
	dir := t.TempDir()
	storage, err := localfs.New(dir)
	if err != nil {
		t.Fatalf("localfs.New() error = %v", err)
	}
	return NewFactory(NewDetector(), NewSpool(storage)), dir
}

func spooledFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(dir, spoolPrefix))
	if os.IsNotExist(err) {
		return 0
	}
	if err != nil {
		t.Fatalf("read spool dir: %v", err)
	}
	return len(entries)
}

func zipBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create("notes.txt")
	if err != nil {
		t.Fatalf("zip create: %v", err)
	}
	_, _ = f.Write([]byte("hello"))
	if err := w.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func TestDetectBytes(t *testing.T) {
	d := NewDetector()
	cases := []struct {
		name string
		data []byte
		want string
	}{
		{"scan.pdf", []byte("%PDF-1.7\n1 0 obj\n<<>>\nendobj\n"), "application/pdf"},
		{"photo.bin", pngHeader, "image/png"},
		{"notes.txt", []byte("just some words"), "text/plain"},
		{"archive.zip", zipBytes(t), "application/zip"},
		{"report.docx", zipBytes(t), "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := d.DetectBytes(tc.data, tc.name); got != tc.want {
				t.Fatalf("DetectBytes(%s) = %q, want %q", tc.name, got, tc.want)
			}
		})
	}
}

func TestFromBlobSpoolsOnDemand(t *testing.T) {
	factory, dir := newFactoryForTest(t)

	item, err := factory.FromBlob("", "image.png", pngHeader, "")
	if err != nil {
		t.Fatalf("FromBlob() error = %v", err)
	}
	if item.MediaType != "image/png" {
		t.Fatalf("expected detected image/png, got %q", item.MediaType)
	}
	if !strings.HasPrefix(item.SourceID, domain.CustomIDPrefix) {
		t.Fatalf("expected generated source id, got %q", item.SourceID)
	}
	if spooledFiles(t, dir) != 0 {
		t.Fatalf("blob must not be spooled before use")
	}

	path, err := item.LocalPath(context.Background())
	if err != nil {
		t.Fatalf("LocalPath() error = %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil || !bytes.Equal(raw, pngHeader) {
		t.Fatalf("spooled file mismatch: %v", err)
	}
	if err := item.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if spooledFiles(t, dir) != 0 {
		t.Fatalf("release must delete the spooled file")
	}
}

func TestFromBlobKeepsExplicitMediaType(t *testing.T) {
	factory, _ := newFactoryForTest(t)
	item, err := factory.FromBlob("doc-1", "data", []byte("{}"), "application/json")
	if err != nil {
		t.Fatalf("FromBlob() error = %v", err)
	}
	if item.MediaType != "application/json" || item.SourceID != "doc-1" {
		t.Fatalf("unexpected item %+v", item)
	}
}

func TestFromReaderReleasesWithoutMaterialization(t *testing.T) {
	factory, dir := newFactoryForTest(t)

	item, err := factory.FromReader(context.Background(), "doc-1", "scan.pdf", strings.NewReader("%PDF-1.4\n%%EOF\n"), "")
	if err != nil {
		t.Fatalf("FromReader() error = %v", err)
	}
	if item.MediaType != "application/pdf" {
		t.Fatalf("expected application/pdf, got %q", item.MediaType)
	}
	if spooledFiles(t, dir) != 1 {
		t.Fatalf("reader content must be spooled immediately")
	}
	if err := item.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if err := item.Release(); err != nil {
		t.Fatalf("second Release() error = %v", err)
	}
	if spooledFiles(t, dir) != 0 {
		t.Fatalf("release must delete the spooled file")
	}
	if _, err := item.LocalPath(context.Background()); err == nil {
		t.Fatalf("released content must not be materialized again")
	}
}

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) { return 0, errors.New("upload aborted") }

func TestFromReaderFailedCopyLeavesNoSpoolFile(t *testing.T) {
	factory, dir := newFactoryForTest(t)

	body := io.MultiReader(strings.NewReader("%PDF-1.4\n"), brokenReader{})
	if _, err := factory.FromReader(context.Background(), "doc-1", "scan.pdf", body, ""); err == nil {
		t.Fatalf("expected error from failing reader")
	}
	if n := spooledFiles(t, dir); n != 0 {
		t.Fatalf("expected no spooled files, got %d", n)
	}
}

func TestFromFile(t *testing.T) {
	factory, _ := newFactoryForTest(t)
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("plain words"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	item, err := factory.FromFile("doc-1", path, "")
	if err != nil {
		t.Fatalf("FromFile() error = %v", err)
	}
	if item.MediaType != "text/plain" {
		t.Fatalf("expected text/plain, got %q", item.MediaType)
	}
	local, err := item.LocalPath(context.Background())
	if err != nil || local != path {
		t.Fatalf("LocalPath() = %q, %v", local, err)
	}
	_ = item.Release()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("file-backed content must survive release: %v", err)
	}
}

func TestFromFileMissing(t *testing.T) {
	factory, _ := newFactoryForTest(t)
	missing := filepath.Join(t.TempDir(), "missing.pdf")

	if _, err := factory.FromFile("doc-1", missing, ""); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput without a media type, got %v", err)
	}

	item, err := factory.FromFile("doc-1", missing, "application/pdf")
	if err != nil {
		t.Fatalf("FromFile() with explicit type error = %v", err)
	}
	if _, err := item.LocalPath(context.Background()); err == nil {
		t.Fatalf("expected local file error for a missing file")
	}
}
