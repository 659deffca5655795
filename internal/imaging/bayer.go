package imaging

import (
	"fmt"
	"strings"
)

// PatternLength is the number of cells in the repeating 2x2 mosaic tile,
// flattened in natural reading order: top-left, top-right, bottom-left,
// bottom-right.
const PatternLength = 4

// CanonicalPattern remaps a sensor-native mosaic description into the reading
// order FITS headers already use.
//
// indices is the decoder-reported 2x2 index tile flattened in reading order;
// each value indexes into colors, the color label per sensor-native index.
// The result is colors[indices[i]] for i in tile order, e.g.
// indices=[0,1,3,2] with colors="RGBG" yields "RGGB".
//
// Malformed input (length mismatch, index out of range, or a label outside
// R/G/B) is a recoverable error, never a panic.
func CanonicalPattern(indices []int, colors string) (string, error) {
	if len(indices) != PatternLength {
		return "", fmt.Errorf("mosaic index tile has %d cells, want %d", len(indices), PatternLength)
	}
	if len(colors) != len(indices) {
		return "", fmt.Errorf("color labels %q do not match %d-cell index tile", colors, len(indices))
	}
	var sb strings.Builder
	for i, idx := range indices {
		if idx < 0 || idx >= len(colors) {
			return "", fmt.Errorf("mosaic index %d at cell %d out of range", idx, i)
		}
		label := colors[idx]
		if label != 'R' && label != 'G' && label != 'B' {
			return "", fmt.Errorf("unsupported color label %q in %q", string(label), colors)
		}
		sb.WriteByte(label)
	}
	return sb.String(), nil
}

// NormalizePattern cleans up a pattern string as found in a FITS header:
// surrounding whitespace and quotes are stripped and the result upper-cased.
// ok is false when the cleaned value is not a valid canonical pattern.
func NormalizePattern(raw string) (pattern string, ok bool) {
	cleaned := strings.ToUpper(strings.Trim(strings.TrimSpace(raw), "'\""))
	if len(cleaned) != PatternLength {
		return "", false
	}
	for i := 0; i < len(cleaned); i++ {
		switch cleaned[i] {
		case 'R', 'G', 'B':
		default:
			return "", false
		}
	}
	return cleaned, true
}
