package tap

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/patrickmn/go-cache"

	"github.com/maxgog/keg/formula"
	"github.com/maxgog/keg/internal/config"
	"github.com/maxgog/keg/internal/errs"
	"github.com/maxgog/keg/internal/vcs"
)

// Registry searches a list of taps in order.
type Registry struct {
	taps []*Tap
	memo *cache.Cache
}

type memoized struct {
	modTime time.Time
	size    int64
	f       *formula.Formula
}

// NewRegistry returns a registry over taps, searched in the given order.
func NewRegistry(taps ...*Tap) *Registry {
	return &Registry{
		taps: taps,
		memo: cache.New(cache.NoExpiration, 10*time.Minute),
	}
}

// FromConfig builds the registry of the configured taps followed by any
// other directory found under <root>/Taps.
func FromConfig(c *config.Configuration) (*Registry, error) {
	var taps []*Tap
	seen := make(map[string]bool)
	for _, t := range c.Taps {
		taps = append(taps, &Tap{Name: t.Name, Dir: c.TapDir(t), Remote: t.Remote, Ref: t.Ref})
		seen[t.Name] = true
	}
	entries, err := os.ReadDir(c.Layout().Taps())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, errors.WithStack(err)
	}
	for _, e := range entries {
		if !e.IsDir() || seen[e.Name()] || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		taps = append(taps, &Tap{Name: e.Name(), Dir: filepath.Join(c.Layout().Taps(), e.Name())})
	}
	return NewRegistry(taps...), nil
}

// Taps returns the taps in search order.
func (r *Registry) Taps() []*Tap {
	return r.taps
}

// Tap returns the tap with the given name.
func (r *Registry) Tap(name string) (*Tap, bool) {
	for _, t := range r.taps {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// Find resolves a formula reference. ref is either a path to a formula
// file, "tap/name", or a bare name searched in every tap.
func (r *Registry) Find(ref string) (*formula.Formula, error) {
	f, ok, err := r.Lookup(ref)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.E(errs.ErrFormulaNotFound, nil, "formula", ref)
	}
	return f, nil
}

// Lookup is Find without the not-found error.
func (r *Registry) Lookup(ref string) (*formula.Formula, bool, error) {
	if formula.IsFormulaFile(ref) {
		if fi, err := os.Stat(ref); err == nil && !fi.IsDir() {
			f, err := r.load(ref)
			return f, err == nil, err
		}
	}
	if i := strings.LastIndexByte(ref, '/'); i > 0 {
		t, ok := r.Tap(ref[:i])
		if !ok {
			return nil, false, nil
		}
		return r.loadFrom(t, ref[i+1:])
	}
	for _, t := range r.taps {
		f, ok, err := r.loadFrom(t, ref)
		if ok || err != nil {
			return f, ok, err
		}
	}
	return nil, false, nil
}

func (r *Registry) loadFrom(t *Tap, name string) (*formula.Formula, bool, error) {
	p, ok := t.Path(name)
	if !ok {
		return nil, false, nil
	}
	f, err := r.load(p)
	if err != nil {
		return nil, false, err
	}
	return f, true, nil
}

// All parses every formula of every tap. Files that fail to parse are
// reported in the error slice; the rest are still returned.
func (r *Registry) All() ([]*formula.Formula, []error) {
	var (
		list     []*formula.Formula
		failures []error
	)
	for _, t := range r.taps {
		paths, err := t.Formulae()
		if err != nil {
			failures = append(failures, err)
			continue
		}
		for _, p := range paths {
			f, err := r.load(p)
			if err != nil {
				failures = append(failures, err)
				continue
			}
			list = append(list, f)
		}
	}
	return list, failures
}

// Sync updates every git tap.
func (r *Registry) Sync(ctx context.Context, v vcs.VCS) error {
	var errList []error
	for _, t := range r.taps {
		if err := t.Sync(ctx, v); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Combine(errList...)
}

// load parses a formula file, reusing the previous result while the file is
// unchanged.
func (r *Registry) load(path string) (*formula.Formula, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if v, ok := r.memo.Get(path); ok {
		m := v.(memoized)
		if m.modTime.Equal(fi.ModTime()) && m.size == fi.Size() {
			cp := *m.f
			return &cp, nil
		}
	}
	f, err := formula.ParseFile(path)
	if err != nil {
		return nil, err
	}
	r.memo.Set(path, memoized{modTime: fi.ModTime(), size: fi.Size(), f: f}, cache.NoExpiration)
	cp := *f
	return &cp, nil
}
