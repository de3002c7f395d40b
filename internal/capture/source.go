// Package capture turns a source URL into a paced stream of base64 JPEG
// frames and shares one capture per source between all its viewers.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/url"
	"strings"
	"time"
)

// ErrUnsupportedSource is returned for a URL scheme no Source handles.
var ErrUnsupportedSource = errors.New("capture: unsupported source")

// Source yields decoded frames. Next blocks until a frame is available or
// ctx is done. A Source is used by one feed goroutine at a time.
type Source interface {
	Next(ctx context.Context) (image.Image, error)
	Close() error
}

// SourceOptions carries what the openers need from the configuration.
type SourceOptions struct {
	FFmpegPath  string
	HTTPTimeout time.Duration
	FPS         float64 // output rate requested from ffmpeg, 0 = source rate
}

// Opener opens a Source for a URL.
type Opener func(ctx context.Context, rawURL string) (Source, error)

// NewOpener returns the default Opener, dispatching on the URL scheme.
func NewOpener(opts SourceOptions) Opener {
	return func(ctx context.Context, rawURL string) (Source, error) {
		return Open(ctx, rawURL, opts)
	}
}

// Open returns the Source for rawURL.
func Open(ctx context.Context, rawURL string, opts SourceOptions) (Source, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("capture: parse %q: %w", rawURL, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "synthetic":
		return NewSyntheticSource(u)
	case "file":
		return NewFileSource(u.Path)
	case "http", "https":
		return NewHTTPSource(ctx, rawURL, opts.HTTPTimeout)
	case "rtsp", "rtsps", "rtmp", "rtmps":
		return NewFFmpegSource(ctx, opts.FFmpegPath, rawURL, opts.FPS)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedSource, u.Scheme)
}
