// Package config loads the keg configuration file.
package config

import (
	"os"
	"path/filepath"
	"time"

	"emperror.dev/errors"
	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	"github.com/maxgog/keg/internal/env"
)

// Configuration is the content of config.yml. Zero values are replaced by
// the defaults declared in the struct tags, then by the env package.
type Configuration struct {
	// Root is the directory kegs, links, taps and the database live in.
	Root string `yaml:"root,omitempty"`

	// CacheDir holds downloaded source archives.
	CacheDir string `yaml:"cache_dir,omitempty"`

	// Debug enables debug logging.
	Debug bool `yaml:"debug"`

	// Jobs bounds the parallel downloads of fetch and the parallel checks of audit.
	Jobs int `yaml:"jobs" default:"4"`

	// HTTPTimeout bounds a single download.
	HTTPTimeout time.Duration `yaml:"http_timeout" default:"10m"`

	// Verbose mirrors step output to the terminal.
	Verbose bool `yaml:"verbose"`

	// Taps are the formula repositories, searched in order.
	Taps []Tap `yaml:"taps"`

	path string
	// Directories as written in the file, before env and flag overrides.
	fileRoot, fileCache string
}

// Tap configures one formula repository. A tap with a remote is a git
// checkout kept in <root>/Taps/<name> unless Dir is set.
type Tap struct {
	Name   string `yaml:"name"`
	Dir    string `yaml:"dir,omitempty"`
	Remote string `yaml:"remote,omitempty"`
	Ref    string `yaml:"ref,omitempty" default:"HEAD"`
}

// Load reads the configuration at path. A missing file yields the defaults.
func Load(path string) (*Configuration, error) {
	c := &Configuration{path: path}
	if err := defaults.Set(c); err != nil {
		return nil, errors.Wrap(err, "config: could not set defaults")
	}
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, errors.Wrapf(err, "config: could not parse %s", path)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, errors.WithStack(err)
	}
	for i := range c.Taps {
		if err := defaults.Set(&c.Taps[i]); err != nil {
			return nil, errors.WithStack(err)
		}
	}
	c.fileRoot, c.fileCache = c.Root, c.CacheDir
	if err := c.resolve(); err != nil {
		return nil, err
	}
	return c, nil
}

// resolve fills unset directories. KEG_ROOT wins over the file.
func (c *Configuration) resolve() error {
	if dir := os.Getenv("KEG_ROOT"); dir != "" || c.Root == "" {
		root, err := env.Root()
		if err != nil {
			return errors.WithStack(err)
		}
		c.Root = root
	}
	if c.CacheDir == "" {
		dir, err := env.CacheDir()
		if err != nil {
			return errors.WithStack(err)
		}
		c.CacheDir = dir
	}
	if c.Jobs < 1 {
		c.Jobs = 1
	}
	return nil
}

// SetRoot overrides the root directory, e.g. from a command line flag.
func (c *Configuration) SetRoot(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return errors.WithStack(err)
	}
	c.Root = abs
	return nil
}

// Layout returns the directory layout described by the configuration.
func (c *Configuration) Layout() env.Layout {
	return env.Layout{Root: c.Root, Cache: c.CacheDir}
}

// TapDir returns the local directory of a tap.
func (c *Configuration) TapDir(t Tap) string {
	if t.Dir != "" {
		return t.Dir
	}
	return filepath.Join(c.Layout().Taps(), t.Name)
}

// AddTap adds or replaces the tap with the same name.
func (c *Configuration) AddTap(t Tap) {
	for i := range c.Taps {
		if c.Taps[i].Name == t.Name {
			c.Taps[i] = t
			return
		}
	}
	c.Taps = append(c.Taps, t)
}

// RemoveTap drops the tap with the given name and reports whether it existed.
func (c *Configuration) RemoveTap(name string) bool {
	for i := range c.Taps {
		if c.Taps[i].Name == name {
			c.Taps = append(c.Taps[:i], c.Taps[i+1:]...)
			return true
		}
	}
	return false
}

// Path returns the file the configuration was loaded from.
func (c *Configuration) Path() string {
	return c.path
}

// Save writes the configuration back to the file it was loaded from. The
// root and cache directories keep the values the file had, so overrides from
// KEG_ROOT, KEG_CACHE or --root are not persisted.
func (c *Configuration) Save() error {
	if c.path == "" {
		return errors.New("config: no file to save to")
	}
	out := *c
	out.Root, out.CacheDir = c.fileRoot, c.fileCache
	b, err := yaml.Marshal(&out)
	if err != nil {
		return errors.WithStack(err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.WriteFile(c.path, b, 0o644))
}
