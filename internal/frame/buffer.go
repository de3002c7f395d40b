// Package frame holds the per-stream coalescing buffer that sits between the
// transport and the renderer, plus the payload decoder.
//
// A Buffer is owned by exactly one goroutine (the session loop) and is not
// safe for concurrent use.
package frame

import "image"

// Payload is one encoded frame as received from the transport.
type Payload struct {
	Seq  uint64
	Data []byte
}

// Bitmap is a decoded frame ready for drawing.
type Bitmap struct {
	Seq   uint64
	Image image.Image
}

// Renderer draws decoded frames. render.Viewport implements it.
type Renderer interface {
	Render(bm Bitmap)
}

// Stats counts what happened to payloads that entered the buffer.
type Stats struct {
	Ingested  uint64
	Coalesced uint64 // pending payloads overwritten by a newer one
	Failed    uint64
	Rendered  uint64
}

// Buffer keeps at most one decode in flight and at most one pending payload.
// A payload arriving while a decode runs replaces the pending one, so the
// next frame decoded is always the most recent one received.
type Buffer struct {
	renderer Renderer
	dispatch func(Payload)

	inFlight   bool
	pending    *Payload
	lastRender uint64
	stats      Stats
}

// NewBuffer returns a Buffer that hands payloads to dispatch for decoding
// and draws successful results on r. dispatch must not block; the decode
// result comes back through Complete.
func NewBuffer(r Renderer, dispatch func(Payload)) *Buffer {
	return &Buffer{renderer: r, dispatch: dispatch}
}

// Ingest accepts a new payload.
func (b *Buffer) Ingest(p Payload) {
	b.stats.Ingested++
	b.ingest(p)
}

func (b *Buffer) ingest(p Payload) {
	if !b.inFlight {
		b.inFlight = true
		b.dispatch(p)
		return
	}
	if b.pending != nil {
		b.stats.Coalesced++
	}
	b.pending = &p
}

// Complete reports the outcome of the decode in flight. On success the
// bitmap is rendered; a failed decode is discarded. Either way the pending
// payload, if any, is dispatched next.
func (b *Buffer) Complete(bm Bitmap, err error) {
	if !b.inFlight {
		return
	}
	b.inFlight = false

	switch {
	case err != nil:
		b.stats.Failed++
	case bm.Seq < b.lastRender:
		// An older frame can never replace a newer one on screen.
	default:
		b.lastRender = bm.Seq
		b.stats.Rendered++
		b.renderer.Render(bm)
	}

	if b.pending != nil {
		next := *b.pending
		b.pending = nil
		b.ingest(next)
	}
}

// Reset drops the in-flight marker and the pending payload. A Complete for
// the decode that was in flight becomes a no-op.
func (b *Buffer) Reset() {
	b.inFlight = false
	b.pending = nil
}

// InFlight reports whether a decode is outstanding.
func (b *Buffer) InFlight() bool { return b.inFlight }

// HasPending reports whether a payload is waiting for the current decode.
func (b *Buffer) HasPending() bool { return b.pending != nil }

// Stats returns the buffer counters.
func (b *Buffer) Stats() Stats { return b.stats }
