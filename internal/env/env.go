// Package env locates the directories keg works in.
//
// Layout of a keg root:
//
//	<root>/
//	  Cellar/<name>/<version>/   # one keg per installed version
//	  bin/                       # links into Cellar/*/*/bin
//	  Taps/<tap>/                # formula repositories
//	  var/keg.db                 # install database
//	  var/locks/                 # per-formula install locks
//	  var/log/<name>/            # step logs of the last install
//	  var/tmp/                   # unpacked source trees while building
//
// Downloads live outside the root in <cache>/downloads.
package env

import (
	"os"
	"path/filepath"
)

// Root returns the default keg root: $KEG_ROOT, else <home>/.keg.
func Root() (string, error) {
	if dir := os.Getenv("KEG_ROOT"); dir != "" {
		return filepath.Abs(dir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".keg"), nil
}

// CacheDir returns the default download cache: $KEG_CACHE, else
// <UserCacheDir>/keg.
func CacheDir() (string, error) {
	if dir := os.Getenv("KEG_CACHE"); dir != "" {
		return filepath.Abs(dir)
	}
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userCacheDir, "keg"), nil
}

// ConfigFile returns the config file path: $KEG_CONFIG, else
// <UserConfigDir>/keg/config.yml. The file need not exist.
func ConfigFile() (string, error) {
	if p := os.Getenv("KEG_CONFIG"); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "keg", "config.yml"), nil
}

// Layout names the directories below a root and a cache.
type Layout struct {
	Root  string
	Cache string
}

func (l Layout) Cellar() string    { return filepath.Join(l.Root, "Cellar") }
func (l Layout) Bin() string       { return filepath.Join(l.Root, "bin") }
func (l Layout) Taps() string      { return filepath.Join(l.Root, "Taps") }
func (l Layout) Var() string       { return filepath.Join(l.Root, "var") }
func (l Layout) Database() string  { return filepath.Join(l.Var(), "keg.db") }
func (l Layout) Locks() string     { return filepath.Join(l.Var(), "locks") }
func (l Layout) Tmp() string       { return filepath.Join(l.Var(), "tmp") }
func (l Layout) Downloads() string { return filepath.Join(l.Cache, "downloads") }

// Logs returns the step log directory of a formula.
func (l Layout) Logs(name string) string {
	return filepath.Join(l.Var(), "log", name)
}

// Rack returns the directory holding every installed version of a formula.
func (l Layout) Rack(name string) string {
	return filepath.Join(l.Cellar(), name)
}

// Keg returns the install prefix of one version of a formula.
func (l Layout) Keg(name, version string) string {
	return filepath.Join(l.Rack(name), version)
}

// Ensure creates the fixed directories of the layout.
func (l Layout) Ensure() error {
	for _, dir := range []string{l.Cellar(), l.Bin(), l.Taps(), l.Locks(), l.Tmp()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.MkdirAll(l.Downloads(), 0o700)
}
