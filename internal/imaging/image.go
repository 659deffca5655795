package imaging

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"
)

// OriginUndefined is the provenance value of an Image no decoder has stamped.
const OriginUndefined = "UNDEFINED"

// Image is the basic processing unit of the pipeline.
//
// Data is stored flat in row-major order; Shape gives the axis extents.
// Rank 2 means mono or a raw sensor mosaic, rank 3 means color with one axis
// of length 3 or 4 holding the channels. BayerPattern, when set, is the
// canonical 4-character reading-order pattern (see CanonicalPattern).
type Image struct {
	ID           uuid.UUID
	Data         []float32
	Shape        []int
	BayerPattern string
	Origin       string
	Destination  string
}

// New builds an Image over the given sample array. The data length must match
// the product of the shape extents and the rank must be 2 or 3.
func New(data []float32, shape ...int) (*Image, error) {
	if len(shape) < 2 || len(shape) > 3 {
		return nil, fmt.Errorf("image rank must be 2 or 3, got %d", len(shape))
	}
	size := 1
	for _, extent := range shape {
		if extent <= 0 {
			return nil, fmt.Errorf("invalid axis extent %d", extent)
		}
		size *= extent
	}
	if size != len(data) {
		return nil, fmt.Errorf("data length %d does not match shape %v", len(data), shape)
	}
	return &Image{
		ID:          uuid.New(),
		Data:        data,
		Shape:       append([]int{}, shape...),
		Origin:      OriginUndefined,
		Destination: OriginUndefined,
	}, nil
}

// Clone returns a copy with its own sample array. Metadata, including the ID,
// is carried over so log lines on both copies correlate.
func (img *Image) Clone() *Image {
	data := make([]float32, len(img.Data))
	copy(data, img.Data)
	return &Image{
		ID:           img.ID,
		Data:         data,
		Shape:        append([]int{}, img.Shape...),
		BayerPattern: img.BayerPattern,
		Origin:       img.Origin,
		Destination:  img.Destination,
	}
}

// IsColor reports whether the image carries color information (rank > 2).
func (img *Image) IsColor() bool {
	return len(img.Shape) > 2
}

// IsMono reports whether the image is plain monochrome: rank 2 with no
// mosaic pattern attached.
func (img *Image) IsMono() bool {
	return len(img.Shape) == 2 && img.BayerPattern == ""
}

// NeedsDebayering reports whether the image is a raw sensor mosaic that still
// has to be interpolated into color planes.
func (img *Image) NeedsDebayering() bool {
	return img.BayerPattern != "" && len(img.Shape) == 2
}

// Dimensions returns the spatial extents: the shape minus the color axis for
// color images. The color axis is the first axis of minimum extent; for
// near-square color tiles where a spatial axis ties with the channel axis the
// first-axis rule still applies, so callers must not rely on Dimensions for
// tiny tiles.
func (img *Image) Dimensions() []int {
	if len(img.Shape) == 2 {
		return append([]int{}, img.Shape...)
	}
	drop := minAxis(img.Shape)
	dims := make([]int, 0, len(img.Shape)-1)
	for i, extent := range img.Shape {
		if i == drop {
			continue
		}
		dims = append(dims, extent)
	}
	return dims
}

// Width returns the larger spatial extent in pixels.
func (img *Image) Width() int {
	width := 0
	for _, extent := range img.Dimensions() {
		if extent > width {
			width = extent
		}
	}
	return width
}

// Height returns the smaller spatial extent in pixels.
func (img *Image) Height() int {
	dims := img.Dimensions()
	if len(dims) == 0 {
		return 0
	}
	height := dims[0]
	for _, extent := range dims[1:] {
		if extent < height {
			height = extent
		}
	}
	return height
}

// SameShape reports whether both images have identical sample array shapes.
func (img *Image) SameShape(other *Image) bool {
	if other == nil || len(img.Shape) != len(other.Shape) {
		return false
	}
	for i := range img.Shape {
		if img.Shape[i] != other.Shape[i] {
			return false
		}
	}
	return true
}

// ErrNotColor is returned by SetColorAxis on rank-2 images.
var ErrNotColor = errors.New("image has no color axis")

// SetColorAxis reorganizes the sample array so the channel axis sits at the
// wanted position. The channel axis is located with the same first-minimum
// rule as Dimensions. Data is rewritten in place.
func (img *Image) SetColorAxis(wanted int) error {
	if len(img.Shape) != 3 {
		return ErrNotColor
	}
	if wanted < 0 || wanted > 2 {
		return fmt.Errorf("axis %d out of range", wanted)
	}
	current := minAxis(img.Shape)
	if current == wanted {
		return nil
	}

	perm := moveAxisPerm(current, wanted)
	oldShape := img.Shape
	newShape := []int{oldShape[perm[0]], oldShape[perm[1]], oldShape[perm[2]]}

	oldStride := []int{oldShape[1] * oldShape[2], oldShape[2], 1}
	out := make([]float32, len(img.Data))
	idx := 0
	for a := 0; a < newShape[0]; a++ {
		for b := 0; b < newShape[1]; b++ {
			for c := 0; c < newShape[2]; c++ {
				pos := [3]int{}
				pos[perm[0]] = a
				pos[perm[1]] = b
				pos[perm[2]] = c
				out[idx] = img.Data[pos[0]*oldStride[0]+pos[1]*oldStride[1]+pos[2]*oldStride[2]]
				idx++
			}
		}
	}
	img.Data = out
	img.Shape = newShape
	return nil
}

// moveAxisPerm maps new axis positions to old ones after moving axis from to
// position to, keeping the relative order of the remaining axes.
func moveAxisPerm(from, to int) [3]int {
	rest := make([]int, 0, 2)
	for axis := 0; axis < 3; axis++ {
		if axis != from {
			rest = append(rest, axis)
		}
	}
	var perm [3]int
	restIdx := 0
	for axis := 0; axis < 3; axis++ {
		if axis == to {
			perm[axis] = from
			continue
		}
		perm[axis] = rest[restIdx]
		restIdx++
	}
	return perm
}

func minAxis(shape []int) int {
	axis := 0
	for i, extent := range shape {
		if extent < shape[axis] {
			axis = i
		}
	}
	return axis
}

// ChannelMeans returns the mean sample value per channel for color images, or
// a single overall mean for rank-2 images.
func (img *Image) ChannelMeans() []float64 {
	if len(img.Shape) == 2 {
		return []float64{stat.Mean(toFloat64(img.Data), nil)}
	}

	work := img
	if minAxis(img.Shape) != 0 {
		work = img.Clone()
		if err := work.SetColorAxis(0); err != nil {
			return nil
		}
	}
	channels := work.Shape[0]
	plane := work.Shape[1] * work.Shape[2]
	means := make([]float64, channels)
	for ch := 0; ch < channels; ch++ {
		means[ch] = stat.Mean(toFloat64(work.Data[ch*plane:(ch+1)*plane]), nil)
	}
	return means
}

func toFloat64(data []float32) []float64 {
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = float64(v)
	}
	return out
}

// String renders a diagnostic summary.
func (img *Image) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Image(color=%t, needs_debayer=%t, bayer=%q, width=%d, height=%d, shape=%v, origin=%q, destination=%q",
		img.IsColor(), img.NeedsDebayering(), img.BayerPattern, img.Width(), img.Height(), img.Shape, img.Origin, img.Destination)
	for i, mean := range img.ChannelMeans() {
		if i == 0 {
			sb.WriteString(", means=")
		} else {
			sb.WriteString("/")
		}
		fmt.Fprintf(&sb, "%.1f", mean)
	}
	sb.WriteString(")")
	return sb.String()
}
