package decode

import (
	"encoding/binary"
	"fmt"
	"os"

	"skystack/internal/imaging"
)

// The RAW path handles TIFF-based sensor dumps (DNG and friends): the file is
// walked as a chain of IFDs until one tagged as a color filter array is
// found, and that IFD supplies the sensor-native mosaic description plus the
// uncompressed pixel grid.
//
// TIFF tags used below.
const (
	tagImageWidth          = 0x0100
	tagImageLength         = 0x0101
	tagBitsPerSample       = 0x0102
	tagCompression         = 0x0103
	tagPhotometric         = 0x0106
	tagStripOffsets        = 0x0111
	tagStripByteCounts     = 0x0117
	tagSubIFDs             = 0x014A
	tagCFARepeatPatternDim = 0x828D
	tagCFAPattern          = 0x828E
	tagCFAPlaneColor       = 0xC616
)

const (
	photometricCFA    = 32803
	compressionNone   = 1
	tiffMagic         = 42
	planeColorRed     = 0
	planeColorGreen   = 1
	planeColorBlue    = 2
	maxIFDsFollowed   = 32
	maxEntriesPerIFD  = 512
	sensorTileColumns = 2
	sensorTileRows    = 2
)

// readRAW loads a TIFF-based RAW sensor dump and canonicalizes its mosaic
// metadata. Every malformed input is a recoverable error.
func readRAW(path string) (*imaging.Image, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open raw %s: %w", path, err)
	}

	tr, err := newTIFFReader(blob)
	if err != nil {
		return nil, fmt.Errorf("raw %s: %w", path, err)
	}
	cfa, err := tr.findCFA()
	if err != nil {
		return nil, fmt.Errorf("raw %s: %w", path, err)
	}

	img, err := cfa.decode(tr)
	if err != nil {
		return nil, fmt.Errorf("raw %s: %w", path, err)
	}
	return img, nil
}

type tiffReader struct {
	data  []byte
	order binary.ByteOrder
}

func newTIFFReader(data []byte) (*tiffReader, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("file too short for a TIFF header")
	}
	var order binary.ByteOrder
	switch {
	case data[0] == 'I' && data[1] == 'I':
		order = binary.LittleEndian
	case data[0] == 'M' && data[1] == 'M':
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("not a TIFF container")
	}
	if order.Uint16(data[2:4]) != tiffMagic {
		return nil, fmt.Errorf("bad TIFF magic")
	}
	return &tiffReader{data: data, order: order}, nil
}

type ifdEntry struct {
	typ   uint16
	count uint32
	value []byte
}

type ifd map[uint16]ifdEntry

// findCFA walks IFD0, its chain, and one level of SubIFDs looking for the
// image tagged with CFA photometric interpretation.
func (tr *tiffReader) findCFA() (ifd, error) {
	offset := int64(tr.order.Uint32(tr.data[4:8]))
	visited := 0
	for offset != 0 && visited < maxIFDsFollowed {
		dir, next, err := tr.parseIFD(offset)
		if err != nil {
			return nil, err
		}
		visited++

		if dir.uintOr(tagPhotometric, 0, tr.order) == photometricCFA {
			return dir, nil
		}
		if sub, ok := dir[tagSubIFDs]; ok {
			for _, subOffset := range parseUints(sub, tr.order) {
				subDir, _, err := tr.parseIFD(int64(subOffset))
				if err != nil {
					continue
				}
				if subDir.uintOr(tagPhotometric, 0, tr.order) == photometricCFA {
					return subDir, nil
				}
			}
		}
		offset = next
	}
	return nil, fmt.Errorf("no color filter array image found")
}

func (tr *tiffReader) parseIFD(offset int64) (ifd, int64, error) {
	if offset < 0 || offset+2 > int64(len(tr.data)) {
		return nil, 0, fmt.Errorf("IFD offset %d out of bounds", offset)
	}
	entryCount := int(tr.order.Uint16(tr.data[offset : offset+2]))
	if entryCount > maxEntriesPerIFD {
		return nil, 0, fmt.Errorf("IFD with %d entries refused", entryCount)
	}
	end := offset + 2 + int64(entryCount)*12 + 4
	if end > int64(len(tr.data)) {
		return nil, 0, fmt.Errorf("truncated IFD at offset %d", offset)
	}

	dir := make(ifd, entryCount)
	for i := 0; i < entryCount; i++ {
		base := offset + 2 + int64(i)*12
		tag := tr.order.Uint16(tr.data[base : base+2])
		typ := tr.order.Uint16(tr.data[base+2 : base+4])
		count := tr.order.Uint32(tr.data[base+4 : base+8])

		size := int64(typeSize(typ)) * int64(count)
		if size <= 0 {
			continue
		}
		var value []byte
		if size <= 4 {
			value = tr.data[base+8 : base+8+size]
		} else {
			valueOffset := int64(tr.order.Uint32(tr.data[base+8 : base+12]))
			if valueOffset+size > int64(len(tr.data)) {
				return nil, 0, fmt.Errorf("tag 0x%04X value out of bounds", tag)
			}
			value = tr.data[valueOffset : valueOffset+size]
		}
		dir[tag] = ifdEntry{typ: typ, count: count, value: value}
	}

	next := int64(tr.order.Uint32(tr.data[end-4 : end]))
	return dir, next, nil
}

func typeSize(typ uint16) int {
	switch typ {
	case 1, 2, 6, 7: // BYTE, ASCII, SBYTE, UNDEFINED
		return 1
	case 3, 8: // SHORT, SSHORT
		return 2
	case 4, 9, 11: // LONG, SLONG, FLOAT
		return 4
	case 5, 10, 12: // RATIONAL, SRATIONAL, DOUBLE
		return 8
	default:
		return 0
	}
}

func parseUints(entry ifdEntry, order binary.ByteOrder) []uint64 {
	out := make([]uint64, 0, entry.count)
	switch entry.typ {
	case 1, 6, 7:
		for _, b := range entry.value {
			out = append(out, uint64(b))
		}
	case 3:
		for i := 0; i+2 <= len(entry.value); i += 2 {
			out = append(out, uint64(order.Uint16(entry.value[i:i+2])))
		}
	case 4:
		for i := 0; i+4 <= len(entry.value); i += 4 {
			out = append(out, uint64(order.Uint32(entry.value[i:i+4])))
		}
	}
	return out
}

func (dir ifd) uintOr(tag uint16, fallback uint64, order binary.ByteOrder) uint64 {
	entry, ok := dir[tag]
	if !ok {
		return fallback
	}
	values := parseUints(entry, order)
	if len(values) == 0 {
		return fallback
	}
	return values[0]
}

func (dir ifd) uintsOf(tag uint16, order binary.ByteOrder) []uint64 {
	entry, ok := dir[tag]
	if !ok {
		return nil
	}
	return parseUints(entry, order)
}

// decode assembles the Image from a CFA-tagged IFD.
func (dir ifd) decode(tr *tiffReader) (*imaging.Image, error) {
	width := int(dir.uintOr(tagImageWidth, 0, tr.order))
	height := int(dir.uintOr(tagImageLength, 0, tr.order))
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid sensor dimensions %dx%d", width, height)
	}
	if compression := dir.uintOr(tagCompression, compressionNone, tr.order); compression != compressionNone {
		return nil, fmt.Errorf("compressed sensor data (scheme %d) not supported", compression)
	}
	bits := int(dir.uintOr(tagBitsPerSample, 16, tr.order))
	if bits != 8 && bits != 16 {
		return nil, fmt.Errorf("unsupported bit depth %d", bits)
	}

	dims := dir.uintsOf(tagCFARepeatPatternDim, tr.order)
	if len(dims) != 2 || dims[0] != sensorTileRows || dims[1] != sensorTileColumns {
		return nil, fmt.Errorf("unsupported mosaic tile geometry %v", dims)
	}

	indices, colors, err := sensorArtifacts(dir, tr.order)
	if err != nil {
		return nil, err
	}
	pattern, err := imaging.CanonicalPattern(indices, colors)
	if err != nil {
		return nil, fmt.Errorf("canonicalize mosaic: %w", err)
	}

	samples, err := dir.readSamples(tr, width, height, bits)
	if err != nil {
		return nil, err
	}

	img, err := imaging.New(samples, height, width)
	if err != nil {
		return nil, err
	}
	img.BayerPattern = pattern
	return img, nil
}

// sensorArtifacts extracts the decoder-native mosaic description: the 2x2
// index tile in reading order and the color label per index. A three-plane
// color map (plain RGB) is widened to the four-label form LibRaw-style
// drivers report, the second green cell becoming its own plane.
func sensorArtifacts(dir ifd, order binary.ByteOrder) ([]int, string, error) {
	patternEntry, ok := dir[tagCFAPattern]
	if !ok {
		return nil, "", fmt.Errorf("missing mosaic index tile")
	}
	rawIndices := parseUints(patternEntry, order)
	indices := make([]int, len(rawIndices))
	for i, v := range rawIndices {
		indices[i] = int(v)
	}

	planes := dir.uintsOf(tagCFAPlaneColor, order)
	if len(planes) == 0 {
		planes = []uint64{planeColorRed, planeColorGreen, planeColorBlue}
	}
	labels := make([]byte, len(planes))
	greenPlane := -1
	for i, code := range planes {
		switch code {
		case planeColorRed:
			labels[i] = 'R'
		case planeColorGreen:
			labels[i] = 'G'
			if greenPlane < 0 {
				greenPlane = i
			}
		case planeColorBlue:
			labels[i] = 'B'
		default:
			return nil, "", fmt.Errorf("unsupported plane color code %d", code)
		}
	}

	if len(labels) == 3 && greenPlane >= 0 {
		seenGreen := false
		for i, idx := range indices {
			if idx == greenPlane {
				if seenGreen {
					indices[i] = len(labels)
				}
				seenGreen = true
			}
		}
		labels = append(labels, 'G')
	}
	return indices, string(labels), nil
}

func (dir ifd) readSamples(tr *tiffReader, width, height, bits int) ([]float32, error) {
	offsets := dir.uintsOf(tagStripOffsets, tr.order)
	counts := dir.uintsOf(tagStripByteCounts, tr.order)
	if len(offsets) == 0 || len(offsets) != len(counts) {
		return nil, fmt.Errorf("inconsistent strip layout (%d offsets, %d counts)", len(offsets), len(counts))
	}

	// Uncompressed sensor data must fit inside the file, so header-driven
	// sizes beyond it are corruption; reject them before allocating anything.
	bytesPerSample := bits / 8
	fileSize := int64(len(tr.data))
	if int64(width) > fileSize || int64(height) > fileSize ||
		int64(width)*int64(height)*int64(bytesPerSample) > fileSize {
		return nil, fmt.Errorf("sensor dimensions %dx%d exceed the file size", width, height)
	}
	want := width * height * bytesPerSample
	raw := make([]byte, 0, want)
	for i := range offsets {
		start, length := int64(offsets[i]), int64(counts[i])
		if start < 0 || start+length > int64(len(tr.data)) {
			return nil, fmt.Errorf("strip %d out of bounds", i)
		}
		raw = append(raw, tr.data[start:start+length]...)
	}
	if len(raw) < want {
		return nil, fmt.Errorf("sensor data truncated: %d bytes, want %d", len(raw), want)
	}
	raw = raw[:want]

	samples := make([]float32, width*height)
	if bits == 8 {
		for i, b := range raw {
			samples[i] = float32(b)
		}
		return samples, nil
	}
	for i := range samples {
		samples[i] = float32(tr.order.Uint16(raw[2*i : 2*i+2]))
	}
	return samples, nil
}
