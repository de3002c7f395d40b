package capture

import (
	"context"
	"image"
	"time"
)

// Live is implemented by sources that push frames at their own pace, like
// an ffmpeg pipe or an MJPEG body. Reading them only once per paced tick
// would queue frames inside the source, so a feed drains them continuously
// and encodes only the newest one.
type Live interface {
	Live() bool
}

func isLive(src Source) bool {
	l, ok := src.(Live)
	return ok && l.Live()
}

type grabbed struct {
	img image.Image
	err error
}

// grabber reads a live source into a single latest-wins slot.
type grabber struct {
	src        Source
	retryDelay time.Duration
	onSkip     func()
	slot       chan grabbed
	done       chan struct{}
}

func newGrabber(src Source, retryDelay time.Duration, onSkip func()) *grabber {
	return &grabber{
		src:        src,
		retryDelay: retryDelay,
		onSkip:     onSkip,
		slot:       make(chan grabbed, 1),
		done:       make(chan struct{}),
	}
}

func (g *grabber) run(ctx context.Context) {
	defer close(g.done)
	for {
		img, err := g.src.Next(ctx)
		if ctx.Err() != nil {
			return
		}
		g.put(grabbed{img: img, err: err})
		if err != nil {
			select {
			case <-time.After(g.retryDelay):
			case <-ctx.Done():
				return
			}
		}
	}
}

// put is only called from run, so after draining the slot the send cannot block.
func (g *grabber) put(v grabbed) {
	select {
	case g.slot <- v:
		return
	default:
	}
	select {
	case <-g.slot:
		if g.onSkip != nil {
			g.onSkip()
		}
	default:
	}
	select {
	case g.slot <- v:
	default:
	}
}

// Next returns the newest frame not yet taken, waiting for one if needed.
func (g *grabber) Next(ctx context.Context) (image.Image, error) {
	select {
	case v := <-g.slot:
		return v.img, v.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *grabber) wait() {
	<-g.done
}
