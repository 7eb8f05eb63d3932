package content

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Container formats whose real type only the file extension reveals.
var (
	zipOverrides = map[string]string{
		".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
		".vsdx": "application/vnd.ms-visio.drawing.main+xml",
		".odt":  "application/vnd.oasis.opendocument.text",
		".ods":  "application/vnd.oasis.opendocument.spreadsheet",
		".odp":  "application/vnd.oasis.opendocument.presentation",
	}
	oleOverrides = map[string]string{
		".doc": "application/msword",
		".xls": "application/vnd.ms-excel",
		".ppt": "application/vnd.ms-powerpoint",
		".vsd": "application/vnd.ms-visio.drawing",
	}
)

// Detector resolves media types from magic bytes.
type Detector struct{}

func NewDetector() *Detector {
	return &Detector{}
}

func (d *Detector) DetectFile(path string) (string, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("detect media type: %w", err)
	}
	return d.resolve(mtype.String(), path), nil
}

// DetectBytes uses name only to refine container formats.
func (d *Detector) DetectBytes(data []byte, name string) string {
	return d.resolve(mimetype.Detect(data).String(), name)
}

func (d *Detector) resolve(detected, name string) string {
	base, _, _ := strings.Cut(detected, ";")
	base = strings.TrimSpace(base)
	ext := strings.ToLower(filepath.Ext(name))

	var overrides map[string]string
	switch base {
	case "application/zip", "application/x-zip-compressed":
		overrides = zipOverrides
	case "application/x-ole-storage", "application/x-cfb":
		overrides = oleOverrides
	default:
		return base
	}

	if override, ok := overrides[ext]; ok {
		slog.Debug("media_type_override", "detected", base, "override", override, "ext", ext)
		return override
	}
	return base
}
