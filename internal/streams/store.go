package streams

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const (
	streamsFileName = "streams.json"
	appDirName      = "rtsp-stream-viewer"
)

// Stream is one configured video source. Only Playing changes after creation.
type Stream struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	URL     string `json:"url"`
	Playing bool   `json:"playing"`
}

// Store handles loading and saving the stream list to disk.
type Store struct {
	dir string // directory containing streams.json
}

// NewStore creates a Store that reads/writes the list in the given directory.
// The directory is created (with parents) on the first Save if it does not
// exist. Pass an empty string to use the default XDG state path.
func NewStore(dir string) *Store {
	if dir == "" {
		dir = defaultStateDir()
	}
	return &Store{dir: dir}
}

// Path returns the full path to the streams file.
func (s *Store) Path() string {
	return filepath.Join(s.dir, streamsFileName)
}

// Load reads the list from disk. A missing file yields an empty list.
// Entries saved without an id are given a fresh one.
func (s *Store) Load() ([]Stream, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return []Stream{}, nil
		}
		return nil, fmt.Errorf("reading streams: %w", err)
	}

	var list []Stream
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parsing streams: %w", err)
	}
	if list == nil {
		list = []Stream{}
	}
	for i := range list {
		if list[i].ID == "" {
			list[i].ID = uuid.NewString()
		}
	}
	return list, nil
}

// Save writes the list using an atomic temp-file-then-rename pattern.
func (s *Store) Save(list []Stream) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}

	if list == nil {
		list = []Stream{}
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling streams: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(s.dir, ".streams-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path()); err != nil {
		return fmt.Errorf("renaming streams file: %w", err)
	}
	committed = true

	return nil
}

// defaultStateDir returns ~/.local/state/rtsp-stream-viewer, respecting
// XDG_STATE_HOME if set.
func defaultStateDir() string {
	if base := os.Getenv("XDG_STATE_HOME"); base != "" {
		return filepath.Join(base, appDirName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".local", "state", appDirName)
}
