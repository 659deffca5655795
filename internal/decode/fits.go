package decode

import (
	"fmt"
	"os"

	"github.com/astrogo/fitsio"

	"skystack/internal/imaging"
	"skystack/internal/logging"
)

// bayerCard is the FITS header keyword advertising the sensor mosaic pattern.
const bayerCard = "BAYERPAT"

// maxSamples caps a single image's sample count. Real sensors stay orders of
// magnitude below it; header-driven sizes above it are corruption and must be
// rejected before any allocation.
const maxSamples = 1 << 28

// sampleCount validates axis extents and returns their product, guarding
// against overflow and absurd header values.
func sampleCount(axes []int) (int, error) {
	size := 1
	for _, axis := range axes {
		if axis <= 0 {
			return 0, fmt.Errorf("invalid axis extent %d", axis)
		}
		if axis > maxSamples/size {
			return 0, fmt.Errorf("image dimensions %v exceed the supported size", axes)
		}
		size *= axis
	}
	return size, nil
}

// readFITS loads the first data unit of a FITS container. A BAYERPAT header
// card, when present, is assumed to already be in canonical reading order.
func (d *Decoder) readFITS(path string) (*imaging.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fits %s: %w", path, err)
	}
	defer file.Close()

	fits, err := fitsio.Open(file)
	if err != nil {
		return nil, fmt.Errorf("parse fits %s: %w", path, err)
	}
	defer fits.Close()

	hdu := fits.HDU(0)
	if hdu == nil {
		return nil, fmt.Errorf("fits %s has no primary data unit", path)
	}
	imageHDU, ok := hdu.(fitsio.Image)
	if !ok {
		return nil, fmt.Errorf("fits %s primary data unit is not an image", path)
	}

	hdr := imageHDU.Header()
	axes := hdr.Axes()
	if len(axes) < 2 || len(axes) > 3 {
		return nil, fmt.Errorf("fits %s has unsupported rank %d", path, len(axes))
	}
	size, err := sampleCount(axes)
	if err != nil {
		return nil, fmt.Errorf("fits %s: %w", path, err)
	}

	data, err := readFITSSamples(imageHDU, hdr.Bitpix(), size)
	if err != nil {
		return nil, fmt.Errorf("read fits %s samples: %w", path, err)
	}

	// FITS axes run fastest-first (NAXIS1 = width); row-major shape is the
	// reverse.
	shape := make([]int, len(axes))
	for i, axis := range axes {
		shape[len(axes)-1-i] = axis
	}
	img, err := imaging.New(data, shape...)
	if err != nil {
		return nil, fmt.Errorf("fits %s: %w", path, err)
	}

	if card := hdr.Get(bayerCard); card != nil {
		raw := fmt.Sprint(card.Value)
		if pattern, ok := imaging.NormalizePattern(raw); ok {
			img.BayerPattern = pattern
		} else {
			d.logger.Warn("ignoring malformed bayer pattern header",
				logging.String(logging.FieldEventType, "bayer_header_malformed"),
				logging.String(logging.FieldPath, path),
				logging.String("bayerpat", raw),
			)
		}
	}
	return img, nil
}

func readFITSSamples(hdu fitsio.Image, bitpix, size int) ([]float32, error) {
	out := make([]float32, size)
	switch bitpix {
	case 8:
		raw := make([]int8, size)
		if err := hdu.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw {
			out[i] = float32(v)
		}
	case 16:
		raw := make([]int16, size)
		if err := hdu.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw {
			out[i] = float32(v)
		}
	case 32:
		raw := make([]int32, size)
		if err := hdu.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw {
			out[i] = float32(v)
		}
	case 64:
		raw := make([]int64, size)
		if err := hdu.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw {
			out[i] = float32(v)
		}
	case -32:
		raw := make([]float32, size)
		if err := hdu.Read(&raw); err != nil {
			return nil, err
		}
		copy(out, raw)
	case -64:
		raw := make([]float64, size)
		if err := hdu.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw {
			out[i] = float32(v)
		}
	default:
		return nil, fmt.Errorf("unsupported bitpix %d", bitpix)
	}
	return out, nil
}
