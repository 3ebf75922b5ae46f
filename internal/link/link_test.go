package link

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxgog/keg/internal/errs"
)

func makeKeg(t *testing.T, root, name, version string, bins ...string) string {
	t.Helper()
	keg := filepath.Join(root, "Cellar", name, version)
	require.NoError(t, os.MkdirAll(filepath.Join(keg, "bin"), 0o755))
	for _, b := range bins {
		require.NoError(t, os.WriteFile(filepath.Join(keg, "bin", b), []byte("#!/bin/sh\n"), 0o755))
	}
	return keg
}

func TestLinkAndUnlink(t *testing.T) {
	root := t.TempDir()
	bin := filepath.Join(root, "bin")
	keg := makeKeg(t, root, "seekfs", "1.0.0", "SeekFS", "seekfs-index")
	require.NoError(t, os.WriteFile(filepath.Join(keg, "bin", "README"), []byte("x"), 0o644))

	linked, err := Link(keg, bin)
	require.NoError(t, err)
	assert.Equal(t, []string{"SeekFS", "seekfs-index"}, linked)

	target, err := os.Readlink(filepath.Join(bin, "SeekFS"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(keg, "bin", "SeekFS"), target)
	_, err = os.Lstat(filepath.Join(bin, "README"))
	assert.True(t, os.IsNotExist(err), "non-executables are not linked")

	// Linking again is a no-op.
	linked, err = Link(keg, bin)
	require.NoError(t, err)
	assert.Empty(t, linked)

	removed, err := Unlink(keg, bin)
	require.NoError(t, err)
	assert.Equal(t, []string{"SeekFS", "seekfs-index"}, removed)
	entries, err := os.ReadDir(bin)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLinkReplacesOlderVersion(t *testing.T) {
	root := t.TempDir()
	bin := filepath.Join(root, "bin")
	old := makeKeg(t, root, "seekfs", "1.0.0", "SeekFS")
	newer := makeKeg(t, root, "seekfs", "1.1.0", "SeekFS")

	_, err := Link(old, bin)
	require.NoError(t, err)
	linked, err := Link(newer, bin)
	require.NoError(t, err)
	assert.Equal(t, []string{"SeekFS"}, linked)

	target, err := os.Readlink(filepath.Join(bin, "SeekFS"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(newer, "bin", "SeekFS"), target)

	// The old keg no longer owns anything.
	removed, err := Unlink(old, bin)
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestLinkConflict(t *testing.T) {
	root := t.TempDir()
	bin := filepath.Join(root, "bin")
	other := makeKeg(t, root, "findutils", "4.9", "find")
	keg := makeKeg(t, root, "seekfs", "1.0.0", "SeekFS", "find")

	_, err := Link(other, bin)
	require.NoError(t, err)

	linked, err := Link(keg, bin)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrLinkConflict))
	assert.Empty(t, linked)
	_, err = os.Lstat(filepath.Join(bin, "SeekFS"))
	assert.True(t, os.IsNotExist(err), "nothing is linked on conflict")
}

func TestLinkConflictWithFile(t *testing.T) {
	root := t.TempDir()
	bin := filepath.Join(root, "bin")
	require.NoError(t, os.MkdirAll(bin, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bin, "SeekFS"), []byte("mine"), 0o755))
	keg := makeKeg(t, root, "seekfs", "1.0.0", "SeekFS")

	_, err := Link(keg, bin)
	assert.True(t, errors.Is(err, errs.ErrLinkConflict))
}

func TestLinkWithoutBin(t *testing.T) {
	root := t.TempDir()
	keg := filepath.Join(root, "Cellar", "headers", "1.0")
	require.NoError(t, os.MkdirAll(filepath.Join(keg, "include"), 0o755))

	linked, err := Link(keg, filepath.Join(root, "bin"))
	require.NoError(t, err)
	assert.Empty(t, linked)

	removed, err := Unlink(keg, filepath.Join(root, "bin"))
	require.NoError(t, err)
	assert.Empty(t, removed)
}
