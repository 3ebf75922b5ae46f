package install

import (
	"context"
	"os"

	"emperror.dev/errors"
	"github.com/apex/log"

	"github.com/maxgog/keg/formula"
	"github.com/maxgog/keg/internal/errs"
	"github.com/maxgog/keg/internal/store"
)

// Test runs the test steps of an installed formula against its keg.
func (in *Installer) Test(ctx context.Context, name string, verbose bool) error {
	k, err := in.Store.Get(name)
	if err != nil {
		return err
	}
	f, err := in.formulaOf(k)
	if err != nil {
		return err
	}
	if len(f.Test) == 0 {
		log.WithField("formula", name).Warn("formula has no test")
		return nil
	}
	return in.test(ctx, f, k.Prefix, k.Version, verbose)
}

// test runs the test steps in a scratch directory and records the outcome.
func (in *Installer) test(ctx context.Context, f *formula.Formula, keg, version string, verbose bool) error {
	logger := log.WithFields(log.Fields{"formula": f.Name, "version": version})
	logger.Info("Testing " + f.Name)

	if err := os.MkdirAll(in.Layout.Tmp(), 0o755); err != nil {
		return errors.WithStack(err)
	}
	scratch, err := os.MkdirTemp(in.Layout.Tmp(), f.Name+"-test-")
	if err != nil {
		return errors.WithStack(err)
	}
	defer os.RemoveAll(scratch)

	r, err := in.newRunner(f, version, keg, scratch, Options{Verbose: verbose})
	if err != nil {
		return err
	}
	r.prefix = "test."

	var failure error
	for i, step := range f.Test {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.run(ctx, i+1, step); err != nil {
			failure = stepError(errs.ErrTestFailed, f.Name, err)
			break
		}
	}

	passed := failure == nil
	if err := in.Store.SetTestResult(f.Name, passed); err != nil {
		logger.WithError(err).Warn("could not record test result")
	}
	a := &store.Activity{Event: store.EventTest, Formula: f.Name, Version: version, Metadata: store.Metadata{"passed": passed}}
	if failure != nil {
		a.Message = failure.Error()
		for k, v := range failureMeta(failure) {
			a.Metadata[k] = v
		}
	}
	in.record(a)
	if failure != nil {
		return failure
	}
	logger.Info(f.Name + " test passed")
	return nil
}

// formulaOf returns the formula a keg was installed from, falling back to
// the taps when the file is gone.
func (in *Installer) formulaOf(k *store.Keg) (*formula.Formula, error) {
	if k.FormulaPath != "" {
		if _, err := os.Stat(k.FormulaPath); err == nil {
			return formula.ParseFile(k.FormulaPath)
		}
	}
	return in.Taps.Find(k.Name)
}
