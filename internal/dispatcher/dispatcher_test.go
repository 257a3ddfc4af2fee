package dispatcher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplits(t *testing.T) {
	cases := []struct {
		path string
		want []Split
	}{
		{"", []Split{{"", ""}}},
		{"/", []Split{{"", ""}}},
		{"a", []Split{{"a", ""}}},
		{"/a", []Split{{"a", ""}}},
		{"a/b", []Split{{"a", "/b"}, {"a/b", ""}}},
		{"/a/b/c", []Split{{"a", "/b/c"}, {"a/b", "/c"}, {"a/b/c", ""}}},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Splits(c.path), "path=%q", c.path)
	}
}

func TestDispatchShortestPrefixWins(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Chdir(dir))

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a", "b"), []byte("wasm-bytes"), 0o644))

	m, err := Dispatch("/a/b/extra")
	require.NoError(t, err)
	assert.Equal(t, "/a/b", m.ScriptName)
	assert.Equal(t, "/extra", m.PathInfo)
	assert.Equal(t, []byte("wasm-bytes"), m.Bytes)
}

func TestDispatchPrefersShorterFileOverLonger(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Chdir(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), []byte("short"), 0o644))

	m, err := Dispatch("/a/b/c")
	require.NoError(t, err)
	assert.Equal(t, "/a", m.ScriptName)
	assert.Equal(t, "/b/c", m.PathInfo)
}

func TestDispatchNoMatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Chdir(dir))

	_, err := Dispatch("/nope/here")
	require.Error(t, err)
	var noMatch *ErrNoMatch
	assert.ErrorAs(t, err, &noMatch)
}

func TestDispatchEmptyPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Chdir(dir))

	_, err := Dispatch("")
	require.Error(t, err)
}
