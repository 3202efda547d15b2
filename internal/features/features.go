package features

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io"
	"math"
	"os"

	"imgcluster/internal/core"
)

// Dimensions is the arity of vectors produced by this package
const Dimensions = 3

// Positions of each statistic in the feature vector
const (
	Brightness = 0
	Contrast   = 1
	Noise      = 2
)

// ErrEmptyImage is returned for images without pixels
var ErrEmptyImage = errors.New("image has no pixels")

// Extractor reduces an image file to a fixed-arity feature vector
type Extractor interface {
	Extract(path string) (core.Vector, error)
	ExtractBytes(data []byte) (core.Vector, error)
	Dimensions() int
}

// StatsExtractor describes an image by the brightness, contrast and noise of
// its grayscale rendition
type StatsExtractor struct{}

// NewStatsExtractor creates the default brightness/contrast/noise extractor
func NewStatsExtractor() *StatsExtractor {
	return &StatsExtractor{}
}

// Dimensions returns the length of vectors produced by the extractor
func (e *StatsExtractor) Dimensions() int { return Dimensions }

// Extract decodes the file at path and computes its features
func (e *StatsExtractor) Extract(path string) (core.Vector, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	return e.extract(f)
}

// ExtractBytes decodes an in-memory image and computes its features
func (e *StatsExtractor) ExtractBytes(data []byte) (core.Vector, error) {
	return e.extract(bytes.NewReader(data))
}

func (e *StatsExtractor) extract(r io.Reader) (core.Vector, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	vec, err := ExtractImage(img)
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s features: %w", format, err)
	}
	return vec, nil
}

// ExtractImage computes [brightness, contrast, noise] for img:
//   - brightness is the mean gray level (0-255)
//   - contrast is the population standard deviation of gray levels
//   - noise is the mean absolute difference between vertically adjacent
//     pixels plus the same for horizontally adjacent pixels
func ExtractImage(img image.Image) (core.Vector, error) {
	gray, w, h := toGray(img)
	if w == 0 || h == 0 {
		return nil, ErrEmptyImage
	}

	n := float64(len(gray))

	var sum float64
	for _, v := range gray {
		sum += float64(v)
	}
	mean := sum / n

	var sq float64
	for _, v := range gray {
		d := float64(v) - mean
		sq += d * d
	}
	stddev := math.Sqrt(sq / n)

	return core.Vector{mean, stddev, verticalNoise(gray, w, h) + horizontalNoise(gray, w, h)}, nil
}

// verticalNoise is the mean |g[y+1][x] - g[y][x]|; 0 for single-row images
func verticalNoise(gray []uint8, w, h int) float64 {
	if h < 2 {
		return 0
	}
	var sum float64
	for y := 0; y < h-1; y++ {
		row, next := gray[y*w:(y+1)*w], gray[(y+1)*w:(y+2)*w]
		for x := 0; x < w; x++ {
			sum += absDiff(next[x], row[x])
		}
	}
	return sum / float64(w*(h-1))
}

// horizontalNoise is the mean |g[y][x+1] - g[y][x]|; 0 for single-column images
func horizontalNoise(gray []uint8, w, h int) float64 {
	if w < 2 {
		return 0
	}
	var sum float64
	for y := 0; y < h; y++ {
		row := gray[y*w : (y+1)*w]
		for x := 0; x < w-1; x++ {
			sum += absDiff(row[x+1], row[x])
		}
	}
	return sum / float64((w-1)*h)
}

func absDiff(a, b uint8) float64 {
	if a > b {
		return float64(a - b)
	}
	return float64(b - a)
}

// toGray flattens img into row-major 8-bit luma values
func toGray(img image.Image) ([]uint8, int, int) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, 0, 0
	}

	gray := make([]uint8, w*h)

	if g, ok := img.(*image.Gray); ok {
		for y := 0; y < h; y++ {
			start := g.PixOffset(b.Min.X, b.Min.Y+y)
			copy(gray[y*w:(y+1)*w], g.Pix[start:start+w])
		}
		return gray, w, h
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gray[y*w+x] = luma(img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return gray, w, h
}

// luma converts c to an 8-bit gray level from its unpremultiplied color,
// ignoring alpha, so transparent pixels keep their stored color
func luma(c color.Color) uint8 {
	var r, g, b uint32
	switch px := c.(type) {
	case color.NRGBA:
		r, g, b = uint32(px.R), uint32(px.G), uint32(px.B)
	case color.NRGBA64:
		r, g, b = uint32(px.R>>8), uint32(px.G>>8), uint32(px.B>>8)
	default:
		n := color.NRGBAModel.Convert(c).(color.NRGBA)
		r, g, b = uint32(n.R), uint32(n.G), uint32(n.B)
	}
	// ITU-R 601 weights in 16.16 fixed point
	return uint8((19595*r + 38470*g + 7471*b + 1<<15) >> 16)
}
