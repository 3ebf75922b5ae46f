// Package deps orders the dependencies of a formula for installation.
package deps

import (
	"context"
	"os/exec"
	"strings"

	"github.com/maxgog/keg/formula"
	"github.com/maxgog/keg/internal/errs"
)

// Lookup finds the formula of a dependency in the taps.
type Lookup func(name string) (*formula.Formula, bool, error)

// Installed reports whether a keg of the named formula is installed.
type Installed func(name string) bool

// How a dependency is already satisfied.
const (
	ByKeg  = "keg"
	ByPath = "path"
)

// Satisfied is a dependency that needs no install.
type Satisfied struct {
	Name string
	Type formula.DepType
	By   string
	Path string // executable found on PATH
}

// Plan is the outcome of Resolve.
type Plan struct {
	// Install holds the formulae to install before the root, dependencies
	// before their dependents. Each appears once.
	Install   []*formula.Formula
	Satisfied []Satisfied
}

// Names returns the names of the formulae to install.
func (p *Plan) Names() []string {
	names := make([]string, len(p.Install))
	for i, f := range p.Install {
		names[i] = f.Name
	}
	return names
}

var lookPath = exec.LookPath

type state int

const (
	unvisited state = iota
	visiting
	done
)

type resolver struct {
	ctx       context.Context
	lookup    Lookup
	installed Installed
	state     map[string]state
	stack     []string
	satisfied map[string]bool
	plan      *Plan
}

// Resolve computes what must be installed before root. A dependency is
// satisfied by an installed keg first, then, for build dependencies, by an
// executable of the same name on PATH. Otherwise it must be provided by a
// tap, or Resolve fails with errs.ErrMissingDependency before anything is
// downloaded.
func Resolve(ctx context.Context, root *formula.Formula, lookup Lookup, installed Installed) (*Plan, error) {
	if installed == nil {
		installed = func(string) bool { return false }
	}
	r := &resolver{
		ctx:       ctx,
		lookup:    lookup,
		installed: installed,
		state:     make(map[string]state),
		satisfied: make(map[string]bool),
		plan:      new(Plan),
	}
	r.state[root.Name] = visiting
	r.stack = []string{root.Name}
	if err := r.visitDeps(root); err != nil {
		return nil, err
	}
	return r.plan, nil
}

func (r *resolver) visitDeps(f *formula.Formula) error {
	for _, d := range f.DependsOn {
		if err := r.ctx.Err(); err != nil {
			return err
		}
		if err := r.visit(f, d); err != nil {
			return err
		}
	}
	return nil
}

func (r *resolver) visit(parent *formula.Formula, d formula.Dependency) error {
	switch r.state[d.Name] {
	case visiting:
		cycle := append(r.cycleFrom(d.Name), d.Name)
		return errs.E(errs.ErrDependencyCycle, nil, "cycle", strings.Join(cycle, " -> "))
	case done:
		return nil
	}
	if r.satisfied[d.Name] {
		return nil
	}

	if r.installed(d.Name) {
		r.satisfy(Satisfied{Name: d.Name, Type: d.Kind(), By: ByKeg})
		return nil
	}
	if d.Kind() == formula.Build {
		if p, err := lookPath(d.Name); err == nil {
			r.satisfy(Satisfied{Name: d.Name, Type: d.Kind(), By: ByPath, Path: p})
			return nil
		}
	}

	dep, ok, err := r.lookup(d.Name)
	if err != nil {
		return err
	}
	if !ok {
		return errs.E(errs.ErrMissingDependency, nil, "formula", parent.Name, "dependency", d.Name, "type", d.Kind())
	}

	r.state[d.Name] = visiting
	r.stack = append(r.stack, d.Name)
	if err := r.visitDeps(dep); err != nil {
		return err
	}
	r.stack = r.stack[:len(r.stack)-1]
	r.state[d.Name] = done
	r.plan.Install = append(r.plan.Install, dep)
	return nil
}

func (r *resolver) satisfy(s Satisfied) {
	r.satisfied[s.Name] = true
	r.plan.Satisfied = append(r.plan.Satisfied, s)
}

func (r *resolver) cycleFrom(name string) []string {
	for i, n := range r.stack {
		if n == name {
			return append([]string(nil), r.stack[i:]...)
		}
	}
	return append([]string(nil), r.stack...)
}
