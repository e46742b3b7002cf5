package assets

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeShader(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLibraryRegisterAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeShader(t, dir, "sprite.wgsl", "@vertex fn vs_main() {}")

	lib, err := NewLibrary(nil)
	require.NoError(t, err)
	defer lib.Close()

	require.NoError(t, lib.Register("sprite", path))

	code, err := lib.Load("sprite")
	require.NoError(t, err)
	assert.Equal(t, "@vertex fn vs_main() {}", string(code))

	_, err = lib.Load("missing")
	require.Error(t, err)

	err = lib.Register("ghost", filepath.Join(dir, "ghost.wgsl"))
	require.Error(t, err)

	err = lib.Register("", path)
	require.Error(t, err)
}

func TestLibraryReRegisterMovesPath(t *testing.T) {
	dir := t.TempDir()
	first := writeShader(t, dir, "a.wgsl", "first")
	second := writeShader(t, dir, "b.wgsl", "second")

	lib, err := NewLibrary(nil)
	require.NoError(t, err)
	defer lib.Close()

	require.NoError(t, lib.Register("shader", first))
	require.NoError(t, lib.Register("shader", second))

	code, err := lib.Load("shader")
	require.NoError(t, err)
	assert.Equal(t, "second", string(code))

	path, ok := lib.Path("shader")
	require.True(t, ok)
	assert.Equal(t, second, path)
}

func TestWatcherDeliversChangeForRegisteredFile(t *testing.T) {
	dir := t.TempDir()
	path := writeShader(t, dir, "sprite.wgsl", "v1")

	lib, err := NewLibrary(&LibraryConfig{WatchShaders: true})
	require.NoError(t, err)
	defer lib.Close()

	require.NoError(t, lib.Register("sprite", path))

	writeShader(t, dir, "sprite.wgsl", "v2")

	select {
	case ev := <-lib.Events():
		assert.Equal(t, "sprite", ev.Name)
		assert.False(t, ev.ModTime.IsZero())
	case <-time.After(3 * time.Second):
		t.Fatal("no shader event delivered")
	}

	code, err := lib.Load("sprite")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(code))
}

func TestWatcherIgnoresUnregisteredSiblings(t *testing.T) {
	dir := t.TempDir()
	path := writeShader(t, dir, "sprite.wgsl", "v1")

	lib, err := NewLibrary(&LibraryConfig{WatchShaders: true, EventBuffer: 4})
	require.NoError(t, err)
	defer lib.Close()

	require.NoError(t, lib.Register("sprite", path))

	writeShader(t, dir, "unrelated.wgsl", "noise")

	select {
	case ev := <-lib.Events():
		t.Fatalf("unexpected event for %s", ev.Name)
	case <-time.After(300 * time.Millisecond):
	}
}
