package capture

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

const maxJPEGSize = 16 << 20

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// FFmpegSource pulls an RTSP/RTMP stream through an ffmpeg child process
// that writes MJPEG to stdout.
type FFmpegSource struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	frames *JPEGSplitter

	mu     sync.Mutex
	stderr bytes.Buffer
}

// NewFFmpegSource starts ffmpeg for url. A positive fps makes ffmpeg emit at
// that rate. The process is killed when ctx is done or on Close.
func NewFFmpegSource(ctx context.Context, ffmpegPath, url string, fps float64) (*FFmpegSource, error) {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	args := []string{"-hide_banner", "-loglevel", "error"}
	if strings.HasPrefix(url, "rtsp") {
		args = append(args, "-rtsp_transport", "tcp")
	}
	args = append(args,
		"-i", url,
		"-an",
	)
	if fps > 0 {
		args = append(args, "-r", strconv.FormatFloat(fps, 'f', -1, 64))
	}
	args = append(args,
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "3",
		"pipe:1",
	)

	pctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(pctx, ffmpegPath, args...)
	s := &FFmpegSource{cmd: cmd, cancel: cancel}
	cmd.Stderr = &lockedWriter{mu: &s.mu, w: &s.stderr}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	s.frames = NewJPEGSplitter(stdout)
	return s, nil
}

func (s *FFmpegSource) Next(ctx context.Context) (image.Image, error) {
	data, err := s.frames.Next()
	if err != nil {
		if msg := s.stderrTail(); msg != "" {
			return nil, fmt.Errorf("ffmpeg: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("ffmpeg: %w", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("ffmpeg frame: %w", err)
	}
	return img, nil
}

func (s *FFmpegSource) Live() bool { return true }

func (s *FFmpegSource) Close() error {
	s.cancel()
	err := s.cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) || errors.Is(err, context.Canceled) {
		// Killed on purpose.
		return nil
	}
	return err
}

func (s *FFmpegSource) stderrTail() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := strings.TrimSpace(s.stderr.String())
	if len(out) > 200 {
		out = out[len(out)-200:]
	}
	return out
}

type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// JPEGSplitter cuts a concatenated MJPEG byte stream into single images on
// the SOI/EOI markers.
type JPEGSplitter struct {
	r   *bufio.Reader
	buf bytes.Buffer
}

// NewJPEGSplitter reads JPEG images back to back from r.
func NewJPEGSplitter(r io.Reader) *JPEGSplitter {
	return &JPEGSplitter{r: bufio.NewReaderSize(r, 64<<10)}
}

// Next returns the next complete JPEG. Bytes before an SOI are skipped.
func (j *JPEGSplitter) Next() ([]byte, error) {
	j.buf.Reset()
	inImage := false
	var prev byte
	for {
		b, err := j.r.ReadByte()
		if err != nil {
			return nil, err
		}
		if !inImage {
			if prev == jpegSOI[0] && b == jpegSOI[1] {
				inImage = true
				j.buf.Write(jpegSOI)
			}
			prev = b
			continue
		}
		j.buf.WriteByte(b)
		if prev == jpegEOI[0] && b == jpegEOI[1] {
			out := make([]byte, j.buf.Len())
			copy(out, j.buf.Bytes())
			return out, nil
		}
		if j.buf.Len() > maxJPEGSize {
			return nil, fmt.Errorf("jpeg frame exceeds %d bytes", maxJPEGSize)
		}
		prev = b
	}
}
