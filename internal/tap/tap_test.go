package tap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxgog/keg/internal/config"
	"github.com/maxgog/keg/internal/errs"
)

const seekfsYAML = `name: seekfs
desc: Advanced file search utility
url: https://github.com/maxgog/SeekFS/archive/v1.0.0.tar.gz
sha256: 5f70bf18a086007016e948b04aed3b82103a36bea41755b6cddfaf10ace3c6ef
install:
  - [cmake, -S, ., -B, build]
`

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFormulaeListsFormulaDir(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "Formula", "seekfs.yml"), seekfsYAML)
	write(t, filepath.Join(dir, "Formula", "z", "zlib.toml"), "name = \"zlib\"\n")
	write(t, filepath.Join(dir, "Formula", "README.md"), "docs")
	write(t, filepath.Join(dir, "Formula", ".hidden", "x.yml"), "name: x\n")
	write(t, filepath.Join(dir, "other.yml"), "name: other\n")

	tp := &Tap{Name: "core", Dir: dir}
	paths, err := tp.Formulae()
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "Formula", "seekfs.yml"),
		filepath.Join(dir, "Formula", "z", "zlib.toml"),
	}, paths)

	p, ok := tp.Path("zlib")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "Formula", "z", "zlib.toml"), p)

	_, ok = tp.Path("other")
	assert.False(t, ok, "files outside Formula/ are not formulae")
}

func TestFormulaeMissingDir(t *testing.T) {
	tp := &Tap{Name: "gone", Dir: filepath.Join(t.TempDir(), "nope")}
	paths, err := tp.Formulae()
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestRegistryFind(t *testing.T) {
	core, extra := t.TempDir(), t.TempDir()
	write(t, filepath.Join(core, "seekfs.yml"), seekfsYAML)
	write(t, filepath.Join(extra, "seekfs.yml"), "name: seekfs\nversion: 2.0.0\n")

	r := NewRegistry(&Tap{Name: "core", Dir: core}, &Tap{Name: "extra", Dir: extra})

	f, err := r.Find("seekfs")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(core, "seekfs.yml"), f.Path, "first tap wins")

	f, err = r.Find("extra/seekfs")
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", f.Version)

	f, err = r.Find(filepath.Join(extra, "seekfs.yml"))
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", f.Version)

	_, err = r.Find("nosuch")
	assert.True(t, errors.Is(err, errs.ErrFormulaNotFound))
	_, err = r.Find("nosuchtap/seekfs")
	assert.True(t, errors.Is(err, errs.ErrFormulaNotFound))
}

func TestRegistryFindInvalidFormula(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "bad.yml"), "name: [unterminated\n")
	r := NewRegistry(&Tap{Name: "core", Dir: dir})

	_, err := r.Find("bad")
	assert.True(t, errors.Is(err, errs.ErrInvalidFormula), "got %v", err)
}

func TestRegistryMemoInvalidatedOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tool.yml")
	write(t, path, "name: tool\nversion: 1.0.0\n")
	r := NewRegistry(&Tap{Name: "core", Dir: dir})

	f, err := r.Find("tool")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", f.Version)

	// Callers get copies.
	f.Version = "mutated"
	f, err = r.Find("tool")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", f.Version)

	write(t, path, "name: tool\nversion: 1.10.0\n")
	later := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, later, later))

	f, err = r.Find("tool")
	require.NoError(t, err)
	assert.Equal(t, "1.10.0", f.Version)
}

func TestRegistryAll(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "seekfs.yml"), seekfsYAML)
	write(t, filepath.Join(dir, "broken.toml"), "name = \n")
	r := NewRegistry(&Tap{Name: "core", Dir: dir})

	list, failures := r.All()
	require.Len(t, list, 1)
	assert.Equal(t, "seekfs", list[0].Name)
	assert.Len(t, failures, 1)
}

func TestFromConfig(t *testing.T) {
	root := t.TempDir()
	t.Setenv("KEG_ROOT", root)
	c, err := config.Load(filepath.Join(t.TempDir(), "config.yml"))
	require.NoError(t, err)

	custom := t.TempDir()
	c.AddTap(config.Tap{Name: "custom", Dir: custom})
	c.AddTap(config.Tap{Name: "core", Remote: "https://example.com/core.git", Ref: "HEAD"})
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Taps", "local"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Taps", "core"), 0o755))

	r, err := FromConfig(c)
	require.NoError(t, err)

	var names []string
	for _, tp := range r.Taps() {
		names = append(names, tp.Name)
	}
	assert.Equal(t, []string{"custom", "core", "local"}, names)

	core, ok := r.Tap("core")
	require.True(t, ok)
	assert.True(t, core.IsGit())
	assert.Equal(t, filepath.Join(root, "Taps", "core"), core.Dir)
}

type fakeVCS struct {
	synced []string
	fail   error
	latest string
}

func (f *fakeVCS) Sync(_ context.Context, remote, ref, dir string) error {
	f.synced = append(f.synced, remote+"@"+ref+"->"+dir)
	return f.fail
}

func (f *fakeVCS) Head(context.Context, string) (string, error) { return "abc123", nil }

func (f *fakeVCS) Latest(context.Context, string, string) (string, error) { return f.latest, nil }

func TestRegistrySync(t *testing.T) {
	r := NewRegistry(
		&Tap{Name: "plain", Dir: t.TempDir()},
		&Tap{Name: "core", Dir: "/taps/core", Remote: "https://example.com/core.git", Ref: "main"},
	)
	v := &fakeVCS{}
	require.NoError(t, r.Sync(context.Background(), v))
	assert.Equal(t, []string{"https://example.com/core.git@main->/taps/core"}, v.synced)

	v.fail = errors.New("network down")
	err := r.Sync(context.Background(), v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tap core")
}

func TestSyncSkipsUpToDateTap(t *testing.T) {
	core := &Tap{Name: "core", Dir: "/taps/core", Remote: "https://example.com/core.git", Ref: "main"}
	v := &fakeVCS{latest: "abc123"}
	require.NoError(t, core.Sync(context.Background(), v))
	assert.Empty(t, v.synced)

	v.latest = "def456"
	require.NoError(t, core.Sync(context.Background(), v))
	assert.Len(t, v.synced, 1)
}
