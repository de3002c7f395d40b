package capture

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// HTTPSource reads an MJPEG stream (multipart/x-mixed-replace) or, when the
// URL serves a single image, polls it once per frame.
type HTTPSource struct {
	url    string
	client *http.Client

	body  io.ReadCloser
	parts *multipart.Reader // nil in snapshot mode
	first image.Image       // snapshot fetched while probing
}

// NewHTTPSource probes url and picks the streaming or snapshot mode.
func NewHTTPSource(ctx context.Context, url string, timeout time.Duration) (*HTTPSource, error) {
	s := &HTTPSource{url: url, client: &http.Client{}}
	if timeout > 0 {
		// Streams never finish, so only the snapshot requests get a deadline.
		s.client.Transport = &http.Transport{ResponseHeaderTimeout: timeout, Proxy: http.ProxyFromEnvironment}
	}

	resp, err := s.get(ctx)
	if err != nil {
		return nil, err
	}
	mediaType, params, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if strings.HasPrefix(mediaType, "multipart/") && params["boundary"] != "" {
		s.body = resp.Body
		s.parts = multipart.NewReader(resp.Body, params["boundary"])
		return s, nil
	}

	defer resp.Body.Close()
	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("capture: %s is not an image or mjpeg stream: %w", url, err)
	}
	s.first = img
	return s, nil
}

func (s *HTTPSource) get(ctx context.Context) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("capture: %s returned %s", s.url, resp.Status)
	}
	return resp, nil
}

func (s *HTTPSource) Next(ctx context.Context) (image.Image, error) {
	if s.parts != nil {
		part, err := s.parts.NextPart()
		if err != nil {
			return nil, fmt.Errorf("mjpeg: %w", err)
		}
		defer part.Close()
		img, _, err := image.Decode(part)
		if err != nil {
			return nil, fmt.Errorf("mjpeg part: %w", err)
		}
		return img, nil
	}

	if s.first != nil {
		img := s.first
		s.first = nil
		return img, nil
	}
	resp, err := s.get(ctx)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return img, nil
}

// Live reports whether the source is an MJPEG stream rather than a polled snapshot.
func (s *HTTPSource) Live() bool { return s.parts != nil }

func (s *HTTPSource) Close() error {
	if s.body != nil {
		return s.body.Close()
	}
	return nil
}
