package streams

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore_DefaultDir(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/tmp/xdg-state")
	s := NewStore("")
	assert.Equal(t, filepath.Join("/tmp/xdg-state", appDirName), s.dir)
}

func TestStore_Path(t *testing.T) {
	s := NewStore("/tmp/test-dir")
	assert.Equal(t, "/tmp/test-dir/streams.json", s.Path())
}

func TestStore_LoadMissing(t *testing.T) {
	s := NewStore(t.TempDir())
	list, err := s.Load()
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestStore_RoundTripPreservesOrder(t *testing.T) {
	s := NewStore(t.TempDir())
	want := []Stream{
		{ID: "c", Name: "Garage", URL: "rtsp://10.0.0.3/live", Playing: true},
		{ID: "a", Name: "Door", URL: "rtsp://10.0.0.1/live", Playing: false},
		{ID: "b", Name: "Yard", URL: "http://10.0.0.2/mjpeg", Playing: true},
	}
	require.NoError(t, s.Save(want))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStore_LoadAssignsMissingIDs(t *testing.T) {
	dir := t.TempDir()
	legacy := `[{"name":"Door","url":"rtsp://door/live","playing":true},{"id":"keep","name":"Yard","url":"rtsp://yard","playing":false}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, streamsFileName), []byte(legacy), 0o600))

	got, err := NewStore(dir).Load()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.NotEmpty(t, got[0].ID)
	assert.Equal(t, "keep", got[1].ID)
	assert.Equal(t, "Door", got[0].Name)
}

func TestStore_LoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, streamsFileName), []byte("{not json"), 0o600))
	_, err := NewStore(dir).Load()
	assert.Error(t, err)
}

func TestStore_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	require.NoError(t, s.Save([]Stream{{ID: "1", Name: "a", URL: "b"}}))
	require.NoError(t, s.Save(nil))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, streamsFileName, entries[0].Name())

	got, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestList_AddRejectsBlank(t *testing.T) {
	l, err := Open(NewStore(t.TempDir()))
	require.NoError(t, err)

	for _, tc := range []struct{ name, url string }{
		{"", "rtsp://x"},
		{"cam", ""},
		{"   ", "rtsp://x"},
		{"cam", " \t"},
	} {
		_, err := l.Add(tc.name, tc.url)
		assert.True(t, errors.Is(err, ErrInvalidStream))
	}
	assert.Equal(t, 0, l.Len())
}

func TestList_MutationsArePersisted(t *testing.T) {
	store := NewStore(t.TempDir())
	l, err := Open(store)
	require.NoError(t, err)

	door, err := l.Add(" Door ", "rtsp://door/live")
	require.NoError(t, err)
	assert.Equal(t, "Door", door.Name)
	assert.True(t, door.Playing)

	yard, err := l.Add("Yard", "rtsp://yard/live")
	require.NoError(t, err)

	toggled, ok, err := l.Toggle(door.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, toggled.Playing)

	reopened, err := Open(store)
	require.NoError(t, err)
	all := reopened.All()
	require.Len(t, all, 2)
	assert.Equal(t, door.ID, all[0].ID)
	assert.False(t, all[0].Playing)
	assert.Equal(t, yard.ID, all[1].ID)

	deleted, err := reopened.Delete(door.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	again, err := Open(store)
	require.NoError(t, err)
	assert.Equal(t, []Stream{yard}, again.All())
}

func TestList_UnknownID(t *testing.T) {
	l, err := Open(NewStore(t.TempDir()))
	require.NoError(t, err)

	_, ok, err := l.Toggle("missing")
	assert.NoError(t, err)
	assert.False(t, ok)

	deleted, err := l.Delete("missing")
	assert.NoError(t, err)
	assert.False(t, deleted)

	_, ok = l.Get("missing")
	assert.False(t, ok)
}

func TestList_AllReturnsCopy(t *testing.T) {
	l, err := Open(NewStore(t.TempDir()))
	require.NoError(t, err)
	s, err := l.Add("Door", "rtsp://door")
	require.NoError(t, err)

	all := l.All()
	all[0].Name = "changed"

	got, ok := l.Get(s.ID)
	require.True(t, ok)
	assert.Equal(t, "Door", got.Name)
}
