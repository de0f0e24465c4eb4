// Package imagecrop cuts diagram regions out of a rendered page.
package imagecrop

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"math"

	"github.com/p-n-ai/exam-shuffler/internal/exam"
)

// Scale is the upper bound of normalized box coordinates.
const Scale = 1000

// JPEGQuality is the encoder quality for cropped diagrams.
const JPEGQuality = 95

var (
	// ErrInvalidBox is returned for boxes outside 0..Scale or with no area.
	ErrInvalidBox = errors.New("invalid bounding box")
	// ErrEmptyCrop is returned when the clamped region has no pixels.
	ErrEmptyCrop = errors.New("crop region is empty")
)

// Box is a bounding box normalized to 0..1000 on both axes.
type Box struct {
	YMin, XMin, YMax, XMax float64
}

// BoxFromSlice builds a Box from the [ymin, xmin, ymax, xmax] order used by
// vision models.
func BoxFromSlice(v []float64) (Box, error) {
	if len(v) != 4 {
		return Box{}, fmt.Errorf("%w: want 4 values, got %d", ErrInvalidBox, len(v))
	}
	b := Box{YMin: v[0], XMin: v[1], YMax: v[2], XMax: v[3]}
	return b, b.Validate()
}

// Validate checks range and ordering.
func (b Box) Validate() error {
	for _, c := range []float64{b.YMin, b.XMin, b.YMax, b.XMax} {
		if math.IsNaN(c) || c < 0 || c > Scale {
			return fmt.Errorf("%w: coordinate %v out of range", ErrInvalidBox, c)
		}
	}
	if b.YMin >= b.YMax || b.XMin >= b.XMax {
		return fmt.Errorf("%w: min must be below max", ErrInvalidBox)
	}
	return nil
}

// Rect maps b onto a w×h page with asymmetric padding: generous on the
// sides, a sliver on top and none below, so text under a diagram is not
// captured. The result is clamped to the page and its bottom edge never
// extends past the box's ymax.
func Rect(b Box, w, h int) image.Rectangle {
	fw, fh := float64(w), float64(h)

	padX := math.Max(fw*0.08, 40)
	padTop := math.Max(fh*0.005, 4)

	x0 := math.Max(0, b.XMin/Scale*fw-padX)
	y0 := math.Max(0, b.YMin/Scale*fh-padTop)
	x1 := math.Min(fw, b.XMax/Scale*fw+padX)
	y1 := math.Min(fh, b.YMax/Scale*fh)

	return image.Rect(
		int(math.Floor(x0)),
		int(math.Floor(y0)),
		int(math.Ceil(x1)),
		int(math.Floor(y1)),
	).Intersect(image.Rect(0, 0, w, h))
}

// Crop cuts the region for b out of page onto a white background and
// encodes it as JPEG.
func Crop(page image.Image, b Box) (*exam.Image, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	bounds := page.Bounds()
	r := Rect(b, bounds.Dx(), bounds.Dy()).Add(bounds.Min)
	if r.Empty() {
		return nil, ErrEmptyCrop
	}

	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), page, r.Min, draw.Over)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encoding crop: %w", err)
	}

	return &exam.Image{Data: buf.Bytes(), Width: r.Dx(), Height: r.Dy()}, nil
}
