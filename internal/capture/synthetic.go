package capture

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"math/rand"
	"net/url"
	"strconv"
)

const (
	defaultSyntheticWidth  = 640
	defaultSyntheticHeight = 360
)

var barColors = []color.RGBA{
	{192, 192, 192, 255}, {192, 192, 0, 255}, {0, 192, 192, 255}, {0, 192, 0, 255},
	{192, 0, 192, 255}, {192, 0, 0, 255}, {0, 0, 192, 255},
}

// SyntheticSource renders an animated test pattern. The host names the
// pattern: bars, gradient, noise or bounce. Query parameters w and h set the
// frame size; failat=N makes every frame from the Nth on fail.
type SyntheticSource struct {
	pattern string
	w, h    int
	failAt  int
	tick    int
	rng     *rand.Rand
}

// NewSyntheticSource parses a synthetic:// URL.
func NewSyntheticSource(u *url.URL) (*SyntheticSource, error) {
	s := &SyntheticSource{
		pattern: u.Host,
		w:       defaultSyntheticWidth,
		h:       defaultSyntheticHeight,
		rng:     rand.New(rand.NewSource(1)),
	}
	if s.pattern == "" {
		s.pattern = "bars"
	}
	switch s.pattern {
	case "bars", "gradient", "noise", "bounce":
	default:
		return nil, fmt.Errorf("%w: synthetic pattern %q", ErrUnsupportedSource, s.pattern)
	}

	q := u.Query()
	for key, dst := range map[string]*int{"w": &s.w, "h": &s.h, "failat": &s.failAt} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || (key != "failat" && (n == 0 || n > 4096)) {
			return nil, fmt.Errorf("capture: synthetic %s=%q out of range", key, v)
		}
		*dst = n
	}
	return s, nil
}

func (s *SyntheticSource) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.tick++
	if s.failAt > 0 && s.tick >= s.failAt {
		return nil, fmt.Errorf("synthetic: frame %d failed", s.tick)
	}

	img := image.NewRGBA(image.Rect(0, 0, s.w, s.h))
	switch s.pattern {
	case "bars":
		s.drawBars(img)
	case "gradient":
		s.drawGradient(img)
	case "noise":
		s.drawNoise(img)
	case "bounce":
		s.drawBounce(img)
	}
	return img, nil
}

func (s *SyntheticSource) Close() error { return nil }

// drawBars scrolls classic colour bars one pixel per frame.
func (s *SyntheticSource) drawBars(img *image.RGBA) {
	barW := s.w / len(barColors)
	if barW == 0 {
		barW = 1
	}
	for y := 0; y < s.h; y++ {
		for x := 0; x < s.w; x++ {
			i := ((x + s.tick) / barW) % len(barColors)
			img.SetRGBA(x, y, barColors[i])
		}
	}
}

func (s *SyntheticSource) drawGradient(img *image.RGBA) {
	phase := float64(s.tick) / 25
	for y := 0; y < s.h; y++ {
		for x := 0; x < s.w; x++ {
			r := 127 + 127*math.Sin(phase+float64(x)/float64(s.w)*math.Pi)
			g := 127 + 127*math.Sin(phase+float64(y)/float64(s.h)*math.Pi)
			img.SetRGBA(x, y, color.RGBA{uint8(r), uint8(g), 160, 255})
		}
	}
}

func (s *SyntheticSource) drawNoise(img *image.RGBA) {
	s.rng.Read(img.Pix)
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
}

// drawBounce moves a square along a Lissajous path on a dark background.
func (s *SyntheticSource) drawBounce(img *image.RGBA) {
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 16, 16, 32, 255
	}
	size := s.h / 5
	if size < 1 {
		size = 1
	}
	t := float64(s.tick) / 20
	cx := int(float64(s.w-size) * (0.5 + 0.5*math.Sin(t)))
	cy := int(float64(s.h-size) * (0.5 + 0.5*math.Sin(1.7*t)))
	for y := cy; y < cy+size && y < s.h; y++ {
		for x := cx; x < cx+size && x < s.w; x++ {
			img.SetRGBA(x, y, color.RGBA{240, 200, 40, 255})
		}
	}
}
