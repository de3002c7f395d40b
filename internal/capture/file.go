package capture

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileSource loops over the JPEG and PNG images of a directory in name order.
type FileSource struct {
	files []string
	next  int
}

// NewFileSource lists dir. A directory without images is an error.
func NewFileSource(dir string) (*FileSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("capture: file source: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("capture: no images in %s", dir)
	}
	sort.Strings(files)
	return &FileSource{files: files}, nil
}

func (s *FileSource) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := s.files[s.next]
	s.next = (s.next + 1) % len(s.files)

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

func (s *FileSource) Close() error { return nil }
