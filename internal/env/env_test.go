package env

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRootFromEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("KEG_ROOT", dir)

	root, err := Root()
	if err != nil {
		t.Fatalf("Root() returned error: %v", err)
	}
	if root != dir {
		t.Errorf("Root() = %q, want %q", root, dir)
	}
}

func TestRootDefault(t *testing.T) {
	t.Setenv("KEG_ROOT", "")

	root, err := Root()
	if err != nil {
		t.Fatalf("Root() returned error: %v", err)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("os.UserHomeDir() returned error: %v", err)
	}
	if want := filepath.Join(home, ".keg"); root != want {
		t.Errorf("Root() = %q, want %q", root, want)
	}
}

func TestCacheDirDefault(t *testing.T) {
	t.Setenv("KEG_CACHE", "")

	dir, err := CacheDir()
	if err != nil {
		t.Fatalf("CacheDir() returned error: %v", err)
	}
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		t.Fatalf("os.UserCacheDir() returned error: %v", err)
	}
	if want := filepath.Join(userCacheDir, "keg"); dir != want {
		t.Errorf("CacheDir() = %q, want %q", dir, want)
	}
}

func TestConfigFileFromEnv(t *testing.T) {
	t.Setenv("KEG_CONFIG", "/tmp/keg.yml")
	p, err := ConfigFile()
	if err != nil {
		t.Fatal(err)
	}
	if p != "/tmp/keg.yml" {
		t.Errorf("ConfigFile() = %q", p)
	}
}

func TestLayout(t *testing.T) {
	root := t.TempDir()
	l := Layout{Root: root, Cache: filepath.Join(root, "cache")}

	if got, want := l.Keg("seekfs", "1.0.0"), filepath.Join(root, "Cellar", "seekfs", "1.0.0"); got != want {
		t.Errorf("Keg() = %q, want %q", got, want)
	}
	if got, want := l.Logs("seekfs"), filepath.Join(root, "var", "log", "seekfs"); got != want {
		t.Errorf("Logs() = %q, want %q", got, want)
	}

	if err := l.Ensure(); err != nil {
		t.Fatalf("Ensure() failed: %v", err)
	}
	for _, dir := range []string{l.Cellar(), l.Bin(), l.Taps(), l.Locks(), l.Tmp(), l.Downloads()} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("directory was not created: %v", err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
	}

	// Ensure is idempotent.
	if err := l.Ensure(); err != nil {
		t.Fatalf("second Ensure() failed: %v", err)
	}
}
