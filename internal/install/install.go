// Package install runs the install pipeline of a formula: dependencies,
// download, checksum, build steps, receipt, links and smoke test.
package install

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/apex/log"
	"github.com/karrick/godirwalk"

	"github.com/maxgog/keg/formula"
	"github.com/maxgog/keg/internal/archive"
	"github.com/maxgog/keg/internal/deps"
	"github.com/maxgog/keg/internal/env"
	"github.com/maxgog/keg/internal/errs"
	"github.com/maxgog/keg/internal/fetch"
	"github.com/maxgog/keg/internal/link"
	"github.com/maxgog/keg/internal/lockedfile"
	"github.com/maxgog/keg/internal/store"
	"github.com/maxgog/keg/x/cmake"
)

// Finder resolves formula references, see tap.Registry.
type Finder interface {
	Find(ref string) (*formula.Formula, error)
	Lookup(ref string) (*formula.Formula, bool, error)
}

// Options tune a single install.
type Options struct {
	// Force reinstalls a version that is already installed.
	Force bool
	// SkipTest skips the test steps after installing.
	SkipTest bool
	// KeepTmp keeps the build directory, even on failure.
	KeepTmp bool
	// Verbose mirrors step output to the installer's Stdout.
	Verbose bool
}

// Result describes a finished install.
type Result struct {
	Name    string
	Version string
	Prefix  string
	Linked  []string
	// Skipped is set when the version was already installed.
	Skipped bool
	// Dependencies lists the formulae installed first.
	Dependencies []string
}

// Installer owns the directories, taps and database of one keg root.
type Installer struct {
	Layout  env.Layout
	Taps    Finder
	Store   *store.Store
	Fetcher *fetch.Downloader

	// CMake is the cmake program used by cmake steps; resolved on PATH
	// when empty.
	CMake string
	// KegVersion is written into receipts.
	KegVersion string

	Stdout io.Writer
}

// New returns an Installer.
func New(layout env.Layout, taps Finder, db *store.Store, fetcher *fetch.Downloader) *Installer {
	return &Installer{
		Layout:     layout,
		Taps:       taps,
		Store:      db,
		Fetcher:    fetcher,
		KegVersion: "dev",
		Stdout:     os.Stdout,
	}
}

// Install installs f and whatever it depends on. Each stage runs only after
// the previous one succeeded, and nothing is retried.
func (in *Installer) Install(ctx context.Context, f *formula.Formula, opts Options) (*Result, error) {
	if err := formula.Validate(f); err != nil {
		return nil, err
	}
	version, err := f.PkgVersion()
	if err != nil {
		return nil, err
	}
	logger := log.WithFields(log.Fields{"formula": f.Name, "version": version})
	prefix := in.Layout.Keg(f.Name, version)
	if !in.isKeg(prefix) {
		return nil, errs.E(errs.ErrInvalidFormula, nil, "formula", f.Name, "version", version, "prefix", prefix)
	}

	if err := in.Layout.Ensure(); err != nil {
		return nil, errors.WithStack(err)
	}
	unlock, err := in.lock(f.Name)
	if err != nil {
		return nil, err
	}
	defer unlock()

	res := &Result{Name: f.Name, Version: version, Prefix: prefix}
	if k, err := in.Store.Get(f.Name); err == nil && k.Version == version {
		if !opts.Force {
			logger.Warn("already installed, use --force to reinstall")
			res.Skipped = true
			return res, nil
		}
		if err := in.remove(k); err != nil {
			return nil, err
		}
	}

	plan, err := deps.Resolve(ctx, f, in.Taps.Lookup, in.Store.IsInstalled)
	if err != nil {
		return nil, err
	}
	for _, dep := range plan.Install {
		logger.WithField("dependency", dep.Name).Info("installing dependency " + dep.Name)
		// Dependencies are not tested and never forced.
		r, err := in.Install(ctx, dep, Options{SkipTest: true, KeepTmp: opts.KeepTmp, Verbose: opts.Verbose})
		if err != nil {
			return nil, err
		}
		res.Dependencies = append(res.Dependencies, r.Name)
	}

	if err := in.build(ctx, f, version, plan, opts, res); err != nil {
		in.record(&store.Activity{Event: store.EventFailed, Formula: f.Name, Version: version, Message: err.Error(), Metadata: failureMeta(err)})
		return nil, err
	}
	logger.WithField("prefix", res.Prefix).Info(f.Name + " " + version + " is installed")

	if opts.SkipTest || len(f.Test) == 0 {
		return res, nil
	}
	return res, in.test(ctx, f, res.Prefix, version, opts.Verbose)
}

// build runs the stages from download to link. On failure the partial keg
// is removed.
func (in *Installer) build(ctx context.Context, f *formula.Formula, version string, plan *deps.Plan, opts Options, res *Result) error {
	started := time.Now()
	logger := log.WithFields(log.Fields{"formula": f.Name, "version": version})
	keg := res.Prefix

	logger.WithField("url", f.URL).Info("Fetching " + f.Name)
	archivePath, err := in.Fetcher.Fetch(ctx, f.URL, f.SHA256)
	if err != nil {
		return err
	}
	logger.Debug("checksum verified")

	if err := os.MkdirAll(in.Layout.Tmp(), 0o755); err != nil {
		return errors.WithStack(err)
	}
	tmp, err := os.MkdirTemp(in.Layout.Tmp(), f.Name+"-"+version+"-")
	if err != nil {
		return errors.WithStack(err)
	}
	defer func() {
		if opts.KeepTmp {
			logger.WithField("path", tmp).Info("kept build directory")
			return
		}
		if rerr := os.RemoveAll(tmp); rerr != nil {
			logger.WithError(rerr).Warn("could not remove build directory")
		}
	}()

	src, err := archive.Extract(ctx, archivePath, tmp)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(keg, 0o755); err != nil {
		return errors.WithStack(err)
	}
	committed := false
	defer func() {
		if !committed {
			os.RemoveAll(keg)
			os.Remove(in.Layout.Rack(f.Name))
		}
	}()

	r, err := in.newRunner(f, version, keg, src, opts)
	if err != nil {
		return err
	}
	logsDir := in.Layout.Logs(f.Name)
	if err := os.RemoveAll(logsDir); err != nil {
		return errors.WithStack(err)
	}

	logger.Info("Building " + f.Name + " " + version)
	for i, step := range f.Install {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.run(ctx, i+1, step); err != nil {
			return stepError(errs.ErrStepFailed, f.Name, err)
		}
	}

	if empty, err := isEmpty(keg); err != nil {
		return err
	} else if empty {
		return errs.E(errs.ErrEmptyInstall, nil, "formula", f.Name, "prefix", keg)
	}

	receipt := in.receipt(f, version, plan, r.cm, time.Since(started))
	if err := store.WriteReceipt(keg, receipt); err != nil {
		return err
	}
	depNames := make([]string, 0, len(f.RuntimeDeps()))
	for _, d := range f.RuntimeDeps() {
		depNames = append(depNames, d.Name)
	}
	if err := in.Store.Save(&store.Keg{
		Name:        f.Name,
		Version:     version,
		Prefix:      keg,
		URL:         f.URL,
		SHA256:      f.SHA256,
		FormulaPath: f.Path,
		InstallID:   receipt.InstallID,
		RuntimeDeps: depNames,
	}); err != nil {
		return err
	}
	committed = true
	in.record(&store.Activity{Event: store.EventInstall, Formula: f.Name, Version: version, Metadata: store.Metadata{"install_id": receipt.InstallID}})

	linked, err := link.Link(keg, in.Layout.Bin())
	if err != nil {
		return err
	}
	res.Linked = linked
	return nil
}

func (in *Installer) newRunner(f *formula.Formula, version, keg, src string, opts Options) (*runner, error) {
	cm := cmake.New(src, filepath.Join(src, "build"), keg)
	paths := []string{in.Layout.Bin()}
	for _, d := range f.DependsOn {
		k, err := in.Store.Get(d.Name)
		if err != nil {
			continue
		}
		cm.Use(k.Prefix)
		paths = append(paths, filepath.Join(k.Prefix, "bin"))
	}
	if p := os.Getenv("PATH"); p != "" {
		paths = append(paths, p)
	}
	cm.Env("PATH", strings.Join(paths, string(os.PathListSeparator)))

	if in.CMake != "" {
		cm.Program = in.CMake
	} else if p, err := lookPathIn("cmake", cm.Getenv("PATH")); err == nil {
		cm.Program = p
	}

	r := &runner{
		vars: formula.Vars{
			Name:         f.Name,
			Version:      version,
			Prefix:       keg,
			BuildPath:    src,
			Cache:        in.Layout.Downloads(),
			StdCMakeArgs: cmake.StdArgs(keg),
		},
		workDir: src,
		logDir:  in.Layout.Logs(f.Name),
		cm:      cm,
	}
	if opts.Verbose {
		r.stdout = in.Stdout
	}
	return r, nil
}

func (in *Installer) receipt(f *formula.Formula, version string, plan *deps.Plan, cm *cmake.CMake, took time.Duration) *store.Receipt {
	r := store.NewReceipt(f.Name, version)
	r.Source = store.Source{URL: f.URL, SHA256: strings.ToLower(f.SHA256)}
	r.FormulaPath = f.Path
	r.Duration = took.Round(time.Millisecond).String()
	r.KegVersion = in.KegVersion
	for _, d := range f.DependsOn {
		rd := store.ReceiptDep{Name: d.Name, Type: string(d.Kind())}
		if k, err := in.Store.Get(d.Name); err == nil {
			rd.Version = k.Version
			rd.Path = k.Prefix
		}
		for _, s := range plan.Satisfied {
			if s.Name == d.Name && s.By == deps.ByPath {
				rd.Path = s.Path
			}
		}
		r.Dependencies = append(r.Dependencies, rd)
	}
	r.Environment = make(map[string]string)
	for _, key := range []string{"PATH", "CMAKE_PREFIX_PATH", "PKG_CONFIG_PATH"} {
		if v := cm.Getenv(key); v != "" {
			r.Environment[key] = v
		}
	}
	return r
}

func (in *Installer) lock(name string) (func(), error) {
	unlock, err := lockedfile.MutexAt(filepath.Join(in.Layout.Locks(), name+".lock")).Lock()
	if err != nil {
		return nil, errors.Wrapf(err, "could not lock %s", name)
	}
	return unlock, nil
}

// isKeg reports whether dir is exactly <Cellar>/<name>/<version>.
func (in *Installer) isKeg(dir string) bool {
	rack := filepath.Dir(filepath.Clean(dir))
	return filepath.Dir(rack) == filepath.Clean(in.Layout.Cellar())
}

// remove unlinks and deletes an installed keg and its record.
func (in *Installer) remove(k *store.Keg) error {
	if !in.isKeg(k.Prefix) {
		return errs.E(errs.ErrInvalidFormula, nil, "formula", k.Name, "prefix", k.Prefix)
	}
	if _, err := link.Unlink(k.Prefix, in.Layout.Bin()); err != nil {
		return err
	}
	if err := os.RemoveAll(k.Prefix); err != nil {
		return errors.WithStack(err)
	}
	// Only succeeds once the last version is gone.
	os.Remove(filepath.Dir(k.Prefix))
	return in.Store.Delete(k.Name)
}

func (in *Installer) record(a *store.Activity) {
	if err := in.Store.Record(a); err != nil {
		log.WithError(err).WithField("formula", a.Formula).Warn("could not record activity")
	}
}

// stepError turns a failed step into an error of the given kind.
func stepError(kind error, name string, err error) error {
	var sf *stepFailure
	if !errors.As(err, &sf) {
		return err
	}
	return errs.E(kind, sf.err,
		"formula", name,
		"step", sf.index,
		"command", strings.Join(sf.argv, " "),
		"exit_code", sf.exitCode,
		"log", sf.log,
	).With("tail", sf.tail)
}

func failureMeta(err error) store.Metadata {
	m := store.Metadata{}
	var e *errs.Error
	if errors.As(err, &e) {
		for k, v := range e.Fields() {
			if k == "tail" {
				continue
			}
			m[k] = v
		}
		m["kind"] = e.Kind.Error()
	}
	return m
}

const errFound = errors.Sentinel("found")

// isEmpty reports whether dir holds nothing but directories.
func isEmpty(dir string) (bool, error) {
	err := godirwalk.Walk(dir, &godirwalk.Options{
		Unsorted: true,
		Callback: func(p string, de *godirwalk.Dirent) error {
			if !de.IsDir() {
				return errFound
			}
			return nil
		},
	})
	switch {
	case errors.Is(err, errFound):
		return false, nil
	case err != nil:
		return false, errors.WithStack(err)
	}
	return true, nil
}
