package render

import (
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/rolvdeihai/rtsp-stream-viewer/internal/frame"
	"golang.org/x/image/draw"
)

var background = image.NewUniform(color.Black)

// Viewport is the drawing surface of one stream. The session loop calls
// Render and Resize; the UI reads Snapshot from its own goroutine.
type Viewport struct {
	mu     sync.Mutex
	width  int
	aspect float64
	canvas *image.RGBA
	last   image.Image
	seq    uint64
}

// NewViewport returns a viewport width pixels wide at the default aspect.
func NewViewport(width int) *Viewport {
	v := &Viewport{width: width, aspect: DefaultAspect}
	v.allocLocked()
	return v
}

// Render draws bm, adopting its aspect ratio for the canvas height.
func (v *Viewport) Render(bm frame.Bitmap) {
	if bm.Image == nil {
		return
	}
	b := bm.Image.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.aspect = float64(b.Dx()) / float64(b.Dy())
	v.last = bm.Image
	v.seq = bm.Seq
	v.allocLocked()
	v.drawLocked()
}

// Resize changes the viewport width and redraws the last frame.
func (v *Viewport) Resize(width int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if width == v.width {
		return
	}
	v.width = width
	v.allocLocked()
	v.drawLocked()
}

// Clear forgets the last frame and blanks the canvas.
func (v *Viewport) Clear() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.last = nil
	v.seq = 0
	v.drawLocked()
}

// Snapshot returns a copy of the canvas and the sequence number of the frame
// it shows. A nil image means nothing has been rendered.
func (v *Viewport) Snapshot() (*image.RGBA, uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.last == nil || v.canvas == nil {
		return nil, 0
	}
	out := image.NewRGBA(v.canvas.Bounds())
	copy(out.Pix, v.canvas.Pix)
	return out, v.seq
}

// Size returns the current canvas dimensions.
func (v *Viewport) Size() (int, int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.width, CanvasHeight(v.width, v.aspect)
}

// Aspect returns the aspect ratio of the last rendered frame.
func (v *Viewport) Aspect() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.aspect
}

func (v *Viewport) allocLocked() {
	w, h := v.width, CanvasHeight(v.width, v.aspect)
	if w <= 0 || h <= 0 {
		v.canvas = nil
		return
	}
	if v.canvas != nil && v.canvas.Bounds().Dx() == w && v.canvas.Bounds().Dy() == h {
		return
	}
	v.canvas = image.NewRGBA(image.Rect(0, 0, w, h))
}

func (v *Viewport) drawLocked() {
	if v.canvas == nil {
		return
	}
	cb := v.canvas.Bounds()
	draw.Draw(v.canvas, cb, background, image.Point{}, draw.Src)
	if v.last == nil {
		return
	}

	src := v.last.Bounds()
	fit := CoverFit(cb.Dx(), cb.Dy(), src.Dx(), src.Dy())
	x0 := int(math.Round(fit.OffsetX))
	y0 := int(math.Round(fit.OffsetY))
	dst := image.Rect(x0, y0,
		x0+int(math.Round(float64(src.Dx())*fit.Ratio)),
		y0+int(math.Round(float64(src.Dy())*fit.Ratio)))
	draw.ApproxBiLinear.Scale(v.canvas, dst, v.last, src, draw.Src, nil)
}
