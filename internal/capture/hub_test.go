package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/config"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeSource struct {
	fail   atomic.Bool
	closed atomic.Bool
}

func (s *fakeSource) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.fail.Load() {
		return nil, errors.New("camera offline")
	}
	return image.NewRGBA(image.Rect(0, 0, 20, 10)), nil
}

func (s *fakeSource) Close() error {
	s.closed.Store(true)
	return nil
}

type fakeOpener struct {
	mu      sync.Mutex
	opened  map[string]int
	sources map[string]*fakeSource
	failing bool
}

func newFakeOpener() *fakeOpener {
	return &fakeOpener{opened: map[string]int{}, sources: map[string]*fakeSource{}}
}

func (o *fakeOpener) open(ctx context.Context, source string) (Source, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failing {
		return nil, errors.New("no route to host")
	}
	o.opened[source]++
	s := &fakeSource{}
	o.sources[source] = s
	return s, nil
}

func (o *fakeOpener) source(name string) *fakeSource {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sources[name]
}

func (o *fakeOpener) opens(name string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opened[name]
}

// slotSub keeps the latest frame like the server's client mailbox.
type slotSub struct {
	mu       sync.Mutex
	latest   []byte
	received int
	closed   error
}

func (s *slotSub) Send(payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	replaced := s.latest != nil
	s.latest = payload
	s.received++
	return replaced
}

func (s *slotSub) take() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.latest
	s.latest = nil
	return p
}

func (s *slotSub) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.received
}

func (s *slotSub) Close(reason error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = reason
}

func (s *slotSub) closeReason() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func testCaptureConfig() config.CaptureConfig {
	return config.CaptureConfig{
		TargetFPS:      200,
		ScaleFactor:    0.5,
		Quality:        65,
		MinQuality:     40,
		MaxQuality:     80,
		QualityStep:    5,
		AdjustInterval: 50 * time.Millisecond,
		MaxFailures:    3,
		RetryDelay:     5 * time.Millisecond,
	}
}

func newTestHub(t *testing.T, o *fakeOpener) (*Hub, *metrics.Server) {
	t.Helper()
	return newTestHubWith(t, o, testCaptureConfig())
}

func newTestHubWith(t *testing.T, o *fakeOpener, cfg config.CaptureConfig) (*Hub, *metrics.Server) {
	t.Helper()
	m := metrics.NewServer()
	h := NewHub(cfg, o.open, zaptest.NewLogger(t), m)
	t.Cleanup(h.Close)
	return h, m
}

func decodePayload(payload []byte) (image.Image, error) {
	raw, err := base64.StdEncoding.DecodeString(string(payload))
	if err != nil {
		return nil, err
	}
	return jpeg.Decode(bytes.NewReader(raw))
}

func TestHub_SharesOneFeedPerSource(t *testing.T) {
	o := newFakeOpener()
	h, m := newTestHub(t, o)

	a, b := &slotSub{}, &slotSub{}
	unsubA, err := h.Subscribe("synthetic://bars", a)
	require.NoError(t, err)
	unsubB, err := h.Subscribe("synthetic://bars", b)
	require.NoError(t, err)

	assert.Equal(t, 1, o.opens("synthetic://bars"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveFeeds))

	require.Eventually(t, func() bool { return a.count() > 0 && b.count() > 0 }, time.Second, 5*time.Millisecond)

	stats := h.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, 2, stats[0].Subscribers)
	assert.Equal(t, Healthy, stats[0].Health)

	unsubA()
	unsubA() // idempotent
	assert.False(t, o.source("synthetic://bars").closed.Load())

	unsubB()
	assert.True(t, o.source("synthetic://bars").closed.Load())
	assert.Empty(t, h.Stats())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveFeeds))

	// A new subscriber reopens the source.
	unsubC, err := h.Subscribe("synthetic://bars", &slotSub{})
	require.NoError(t, err)
	defer unsubC()
	assert.Equal(t, 2, o.opens("synthetic://bars"))
}

func TestHub_OpenFailure(t *testing.T) {
	o := newFakeOpener()
	o.failing = true
	h, _ := newTestHub(t, o)

	_, err := h.Subscribe("rtsp://down/live", &slotSub{})
	assert.Error(t, err)
	assert.Empty(t, h.Stats())
}

func TestHub_PayloadIsScaledBase64JPEG(t *testing.T) {
	o := newFakeOpener()
	h, _ := newTestHub(t, o)

	sub := &slotSub{}
	unsub, err := h.Subscribe("synthetic://bars", sub)
	require.NoError(t, err)
	defer unsub()

	var payload []byte
	require.Eventually(t, func() bool {
		payload = sub.take()
		return payload != nil
	}, time.Second, 5*time.Millisecond)

	img, err := decodePayload(payload)
	require.NoError(t, err)
	assert.Equal(t, 10, img.Bounds().Dx())
	assert.Equal(t, 5, img.Bounds().Dy())
}

func TestHub_SlowSubscriberDropsStaleFrames(t *testing.T) {
	o := newFakeOpener()
	h, m := newTestHub(t, o)

	sub := &slotSub{}
	unsub, err := h.Subscribe("synthetic://bars", sub)
	require.NoError(t, err)
	defer unsub()

	// Nobody drains the slot, so every frame after the first replaces one.
	require.Eventually(t, func() bool { return sub.count() >= 5 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.FramesDropped) >= 4
	}, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, h.Stats()[0].Dropped, uint64(4))
}

func TestHub_FailingSourceDisconnectsSubscribers(t *testing.T) {
	o := newFakeOpener()
	h, m := newTestHub(t, o)

	a, b := &slotSub{}, &slotSub{}
	unsubA, err := h.Subscribe("rtsp://cam/live", a)
	require.NoError(t, err)
	defer unsubA()
	unsubB, err := h.Subscribe("rtsp://cam/live", b)
	require.NoError(t, err)
	defer unsubB()

	o.source("rtsp://cam/live").fail.Store(true)

	require.Eventually(t, func() bool {
		return a.closeReason() != nil && b.closeReason() != nil
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, errors.Is(a.closeReason(), ErrSourceFailed))
	assert.Empty(t, h.Stats())
	assert.Equal(t, 3.0, testutil.ToFloat64(m.CaptureFailures.WithLabelValues("rtsp://cam/live")))
	require.Eventually(t, func() bool { return o.source("rtsp://cam/live").closed.Load() }, time.Second, 5*time.Millisecond)
}

func TestHub_RecoversFromTransientFailures(t *testing.T) {
	o := newFakeOpener()
	cfg := testCaptureConfig()
	cfg.MaxFailures = 1000
	h, _ := newTestHubWith(t, o, cfg)

	sub := &slotSub{}
	unsub, err := h.Subscribe("rtsp://flaky/live", sub)
	require.NoError(t, err)
	defer unsub()
	src := o.source("rtsp://flaky/live")

	src.fail.Store(true)
	require.Eventually(t, func() bool {
		st := h.Stats()
		return len(st) == 1 && st[0].Health == Degraded
	}, time.Second, time.Millisecond)
	src.fail.Store(false)

	require.Eventually(t, func() bool {
		st := h.Stats()
		return len(st) == 1 && st[0].Health == Healthy
	}, time.Second, 5*time.Millisecond)
	assert.Nil(t, sub.closeReason())
}

func TestHub_CloseDisconnectsEveryone(t *testing.T) {
	o := newFakeOpener()
	m := metrics.NewServer()
	h := NewHub(testCaptureConfig(), o.open, zaptest.NewLogger(t), m)

	sub := &slotSub{}
	_, err := h.Subscribe("synthetic://bars", sub)
	require.NoError(t, err)

	h.Close()
	assert.True(t, errors.Is(sub.closeReason(), ErrHubClosed))
	assert.True(t, o.source("synthetic://bars").closed.Load())

	_, err = h.Subscribe("synthetic://bars", &slotSub{})
	assert.True(t, errors.Is(err, ErrHubClosed))
}

// pushSource emits a new frame every 2ms, each one pixel wider than the last.
type pushSource struct {
	seq    atomic.Int64
	closed atomic.Bool
}

func (s *pushSource) Next(ctx context.Context) (image.Image, error) {
	select {
	case <-time.After(2 * time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	n := s.seq.Add(1)
	return image.NewRGBA(image.Rect(0, 0, int(n), 2)), nil
}

func (s *pushSource) Live() bool { return true }

func (s *pushSource) Close() error {
	s.closed.Store(true)
	return nil
}

func TestHub_LiveSourceSendsNewestFrame(t *testing.T) {
	src := &pushSource{}
	cfg := testCaptureConfig()
	cfg.TargetFPS = 20
	cfg.ScaleFactor = 1
	m := metrics.NewServer()
	h := NewHub(cfg, func(ctx context.Context, source string) (Source, error) {
		return src, nil
	}, zaptest.NewLogger(t), m)
	t.Cleanup(h.Close)

	sub := &slotSub{}
	unsub, err := h.Subscribe("rtsp://cam/live", sub)
	require.NoError(t, err)

	// At 500 frames/s against 20 sent/s, reading in order would fall ~240
	// frames behind by the tenth send.
	require.Eventually(t, func() bool { return sub.count() >= 10 }, 3*time.Second, 10*time.Millisecond)
	payload := sub.take()
	require.NotNil(t, payload)
	img, err := decodePayload(payload)
	require.NoError(t, err)

	produced := src.seq.Load()
	lag := produced - int64(img.Bounds().Dx())
	assert.Less(t, lag, int64(100), "sent frame %d while the source is at %d", img.Bounds().Dx(), produced)

	stats := h.Stats()
	require.Len(t, stats, 1)
	assert.Positive(t, stats[0].Skipped)
	assert.Positive(t, testutil.ToFloat64(m.FramesSkipped.WithLabelValues("rtsp://cam/live")))

	unsub()
	assert.True(t, src.closed.Load())
}

func TestGrabber_KeepsOnlyNewest(t *testing.T) {
	var skipped int
	g := newGrabber(&fakeSource{}, time.Millisecond, func() { skipped++ })

	for w := 1; w <= 3; w++ {
		g.put(grabbed{img: image.NewRGBA(image.Rect(0, 0, w, 1))})
	}
	img, err := g.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, img.Bounds().Dx())
	assert.Equal(t, 2, skipped)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
