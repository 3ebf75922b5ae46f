package install

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"emperror.dev/errors"
	"github.com/apex/log"
	"github.com/karrick/godirwalk"

	"github.com/maxgog/keg/internal/errs"
	"github.com/maxgog/keg/internal/link"
	"github.com/maxgog/keg/internal/store"
	"github.com/maxgog/keg/internal/version"
)

// Uninstall removes an installed keg. It refuses while other installed
// kegs need it at runtime, unless force is set.
func (in *Installer) Uninstall(ctx context.Context, name string, force bool) error {
	k, err := in.Store.Get(name)
	if err != nil {
		return err
	}
	dependents, err := in.Store.Dependents(name)
	if err != nil {
		return err
	}
	if len(dependents) > 0 && !force {
		return errs.E(errs.ErrRequiredBy, nil, "formula", name, "dependents", strings.Join(dependents, ", "))
	}

	unlock, err := in.lock(name)
	if err != nil {
		return err
	}
	defer unlock()

	log.WithFields(log.Fields{"formula": name, "prefix": k.Prefix}).Info("Uninstalling " + name + " " + k.Version)
	if err := in.remove(k); err != nil {
		return err
	}
	in.record(&store.Activity{Event: store.EventUninstall, Formula: name, Version: k.Version})
	return nil
}

// Outdated is an installed keg with a newer version in the taps.
type Outdated struct {
	Name      string
	Installed string
	Available string
}

// Outdated lists the installed kegs whose formula offers a newer version.
// Kegs whose formula can no longer be found are skipped.
func (in *Installer) Outdated() ([]Outdated, error) {
	kegs, err := in.Store.List()
	if err != nil {
		return nil, err
	}
	var list []Outdated
	for _, k := range kegs {
		f, ok, err := in.Taps.Lookup(k.Name)
		if err != nil || !ok {
			log.WithField("formula", k.Name).Debug("formula not found in any tap")
			continue
		}
		v, err := f.PkgVersion()
		if err != nil {
			continue
		}
		if version.Newer(v, k.Version) {
			list = append(list, Outdated{Name: k.Name, Installed: k.Version, Available: v})
		}
	}
	return list, nil
}

// Upgrade installs the tap version of name when it is newer than the
// installed one, then removes the old keg. It reports whether an upgrade
// happened.
func (in *Installer) Upgrade(ctx context.Context, name string, opts Options) (bool, error) {
	old, err := in.Store.Get(name)
	if err != nil {
		return false, err
	}
	f, err := in.Taps.Find(name)
	if err != nil {
		return false, err
	}
	v, err := f.PkgVersion()
	if err != nil {
		return false, err
	}
	if !version.Newer(v, old.Version) {
		log.WithFields(log.Fields{"formula": name, "version": old.Version}).Info(name + " is up to date")
		return false, nil
	}

	log.WithFields(log.Fields{"formula": name, "from": old.Version, "to": v}).Info("Upgrading " + name)
	_, err = in.Install(ctx, f, Options{SkipTest: opts.SkipTest, KeepTmp: opts.KeepTmp, Verbose: opts.Verbose})
	// A failing test leaves the new keg installed.
	if err != nil && !errors.Is(err, errs.ErrTestFailed) {
		return false, err
	}

	if !in.isKeg(old.Prefix) {
		return true, errs.E(errs.ErrInvalidFormula, nil, "formula", name, "prefix", old.Prefix)
	}
	if _, uerr := link.Unlink(old.Prefix, in.Layout.Bin()); uerr != nil {
		return true, uerr
	}
	if rerr := os.RemoveAll(old.Prefix); rerr != nil {
		return true, errors.WithStack(rerr)
	}
	in.record(&store.Activity{Event: store.EventUpgrade, Formula: name, Version: v, Metadata: store.Metadata{"from": old.Version}})
	return true, err
}

// Cleanup removes cached downloads and leftover build directories and
// returns the number of bytes freed.
func (in *Installer) Cleanup() (int64, error) {
	freed, err := in.Fetcher.Clean()
	if err != nil {
		return freed, err
	}
	entries, err := os.ReadDir(in.Layout.Tmp())
	if errors.Is(err, os.ErrNotExist) {
		return freed, nil
	}
	if err != nil {
		return freed, errors.WithStack(err)
	}
	for _, e := range entries {
		p := filepath.Join(in.Layout.Tmp(), e.Name())
		freed += diskUsage(p)
		if err := os.RemoveAll(p); err != nil {
			return freed, errors.WithStack(err)
		}
	}
	return freed, nil
}

func diskUsage(root string) int64 {
	var n int64
	godirwalk.Walk(root, &godirwalk.Options{
		Unsorted: true,
		Callback: func(p string, de *godirwalk.Dirent) error {
			if de.IsRegular() {
				if fi, err := os.Lstat(p); err == nil {
					n += fi.Size()
				}
			}
			return nil
		},
		ErrorCallback: func(string, error) godirwalk.ErrorAction {
			return godirwalk.SkipNode
		},
	})
	return n
}
