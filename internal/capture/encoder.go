package capture

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/jpeg"
	"math"

	"golang.org/x/image/draw"
)

// Encoder scales a frame and encodes it as base64 JPEG text, the payload
// format viewers expect.
type Encoder struct {
	Scale float64 // 1 keeps the source size
}

// Encode returns the base64 payload for img at quality.
func (e Encoder) Encode(img image.Image, quality int) ([]byte, error) {
	src := img
	b := img.Bounds()
	if e.Scale > 0 && e.Scale != 1 {
		w := max(1, int(math.Round(float64(b.Dx())*e.Scale)))
		h := max(1, int(math.Round(float64(b.Dy())*e.Scale)))
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		src = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	out := make([]byte, base64.StdEncoding.EncodedLen(buf.Len()))
	base64.StdEncoding.Encode(out, buf.Bytes())
	return out, nil
}

// QualityPolicy adapts JPEG quality to the frame rate a feed achieves.
type QualityPolicy struct {
	TargetFPS float64
	Min, Max  int
	Step      int
}

// Next returns the quality to use after a window that ran at fps. Below 80%
// of the target the quality drops a step; above 120% it rises a step.
func (p QualityPolicy) Next(current int, fps float64) int {
	switch {
	case fps < 0.8*p.TargetFPS:
		current -= p.Step
	case fps > 1.2*p.TargetFPS && current < p.Max:
		current += p.Step
	}
	return min(max(current, p.Min), p.Max)
}
