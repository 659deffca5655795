package decode

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"skystack/internal/imaging"
	"skystack/internal/logging"
)

// originPrefix tags file-based ingestion provenance on decoded images.
const originPrefix = "FILE : "

// Decoder reads image files from disk and normalizes them into Images.
type Decoder struct {
	logger *slog.Logger
}

// New constructs a Decoder. A nil logger silences the decode side channel.
func New(logger *slog.Logger) *Decoder {
	return &Decoder{logger: logging.NewComponentLogger(logger, "decoder")}
}

// Read decodes the file at path into an Image, dispatching on the extension:
// .fit/.fits (case-insensitive) use the FITS container reader, everything
// else the RAW sensor dump reader. The returned image has its Origin stamped
// with the resolved absolute source path.
func (d *Decoder) Read(path string) (*imaging.Image, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	var img *imaging.Image
	if IsFITS(abs) {
		img, err = d.readFITS(abs)
	} else {
		img, err = readRAW(abs)
	}
	if err != nil {
		return nil, err
	}

	img.Origin = originPrefix + abs
	return img, nil
}

// IsFITS reports whether the path would dispatch to the FITS reader.
func IsFITS(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".fit", ".fits":
		return true
	}
	return false
}
