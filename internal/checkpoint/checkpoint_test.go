package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exercise runs the shared Store contract against a store that reopens
// from the same location.
func exercise(t *testing.T, open func() (Store, error)) {
	t.Helper()
	s, err := open()
	require.NoError(t, err)
	assert.Empty(t, s.Codes())

	require.NoError(t, s.Mark("A1"))
	require.NoError(t, s.Mark("A3"))
	require.NoError(t, s.Mark("A1"))
	assert.True(t, s.Processed("A1"))
	assert.False(t, s.Processed("A2"))
	assert.Equal(t, []string{"A2", "A4"}, s.Pending([]string{"A1", "A2", "A3", "A4"}))
	require.NoError(t, s.Close())

	reopened, err := open()
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "A3"}, reopened.Codes())

	require.NoError(t, reopened.Clear())
	assert.False(t, reopened.Processed("A1"))
	require.NoError(t, reopened.Close())

	cleared, err := open()
	require.NoError(t, err)
	assert.Empty(t, cleared.Codes())
	require.NoError(t, cleared.Close())
}

func TestLineFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "checkpoint_remesas.txt")
	exercise(t, func() (Store, error) { return OpenLineFile(path) })
}

func TestLineFileFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.txt")
	s, err := OpenLineFile(path)
	require.NoError(t, err)
	require.NoError(t, s.Mark("R1"))
	require.NoError(t, s.Mark("R2"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "R1\nR2\n", string(data))
}

func TestJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifiestos_checkpoint.json")
	exercise(t, func() (Store, error) { return OpenJSONFile(path) })
}

func TestJSONFileLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.json")
	s, err := OpenJSONFile(path)
	require.NoError(t, err)
	require.NoError(t, s.Mark("M2"))
	require.NoError(t, s.Mark("M1"))

	var doc jsonDoc
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, []string{"M2", "M1"}, doc.Processed)
	assert.NotEmpty(t, doc.Date)
}

func TestJSONFileToleratesCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	s, err := OpenJSONFile(path)
	require.NoError(t, err)
	assert.Empty(t, s.Codes())
}

func TestSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.db")
	exercise(t, func() (Store, error) { return OpenSQLite(path, "remesas") })
}

func TestSQLiteSeparatesKinds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.db")
	r, err := OpenSQLite(path, "remesas")
	require.NoError(t, err)
	require.NoError(t, r.Mark("X"))
	require.NoError(t, r.Close())

	m, err := OpenSQLite(path, "manifiestos")
	require.NoError(t, err)
	defer m.Close()
	assert.False(t, m.Processed("X"))
}

func TestOpenPicksBackend(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(BackendFile, dir, "remesas")
	require.NoError(t, err)
	assert.IsType(t, &LineFile{}, s)

	s, err = Open("", dir, "manifiestos")
	require.NoError(t, err)
	assert.IsType(t, &JSONFile{}, s)

	s, err = Open(BackendSQLite, dir, "remesas")
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, s)
	require.NoError(t, s.Close())

	_, err = Open("redis", dir, "remesas")
	assert.Error(t, err)
}
