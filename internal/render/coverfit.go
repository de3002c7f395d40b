// Package render draws decoded frames into a fixed-width viewport using
// cover-fit scaling and turns the result into terminal cells.
package render

import "math"

// DefaultAspect is used until the first frame reports its real dimensions.
const DefaultAspect = 16.0 / 9.0

// Fit is the placement of an image inside a canvas.
type Fit struct {
	Ratio   float64
	OffsetX float64
	OffsetY float64
}

// CoverFit scales an iw×ih image so it covers a cw×ch canvas and centers it.
// Overflow on one axis is cropped evenly, so offsets can be negative.
func CoverFit(cw, ch, iw, ih int) Fit {
	if iw <= 0 || ih <= 0 {
		return Fit{}
	}
	ratio := math.Max(float64(cw)/float64(iw), float64(ch)/float64(ih))
	return Fit{
		Ratio:   ratio,
		OffsetX: (float64(cw) - float64(iw)*ratio) / 2,
		OffsetY: (float64(ch) - float64(ih)*ratio) / 2,
	}
}

// CanvasHeight returns the viewport height for width at the given aspect.
func CanvasHeight(width int, aspect float64) int {
	if aspect <= 0 {
		aspect = DefaultAspect
	}
	return int(math.Round(float64(width) / aspect))
}
