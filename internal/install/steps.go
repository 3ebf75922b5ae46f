package install

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"emperror.dev/errors"
	"github.com/apex/log"

	"github.com/maxgog/keg/formula"
	"github.com/maxgog/keg/x/autotools"
	"github.com/maxgog/keg/x/cmake"
)

// tailLines is how much of a failing step's log is attached to its error.
const tailLines = 20

// runner executes the steps of one formula.
type runner struct {
	vars    formula.Vars
	workDir string
	logDir  string
	prefix  string // log file prefix, "" for install steps
	cm      *cmake.CMake
	stdout  io.Writer // mirror of step output, nil when quiet
}

// stepFailure describes a step that did not exit zero.
type stepFailure struct {
	index    int
	argv     []string
	exitCode int
	log      string
	tail     string
	err      error
}

// run executes step number n (1-based). Its output goes to a log file named
// after the step. A step that fails yields a *stepFailure.
func (r *runner) run(ctx context.Context, n int, s formula.Step) error {
	if err := os.MkdirAll(r.logDir, 0o755); err != nil {
		return errors.WithStack(err)
	}
	logPath := filepath.Join(r.logDir, fmt.Sprintf("%s%02d.%s.log", r.prefix, n, s.Program()))
	lf, err := os.Create(logPath)
	if err != nil {
		return errors.WithStack(err)
	}
	defer lf.Close()

	var w io.Writer = lf
	if r.stdout != nil {
		w = io.MultiWriter(lf, r.stdout)
	}

	dir := r.workDir
	if s.Dir != "" {
		expanded, err := formula.Expand([]string{s.Dir}, r.vars)
		if err != nil {
			return err
		}
		dir = expanded[0]
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(r.workDir, dir)
		}
	}

	var argv []string
	switch {
	case s.CMake != nil:
		argv, err = r.runCMake(ctx, s.CMake, dir, lf, w)
	case s.Autotools != nil:
		argv, err = r.runAutotools(ctx, s.Autotools, dir, lf, w)
	default:
		argv, err = r.runSystem(ctx, s.System, dir, lf, w)
	}
	if argv == nil {
		argv = s.Argv()
	}
	if err == nil {
		return nil
	}

	// Anything that kept the step from exiting zero fails it, including a
	// program that could not be started.
	var ee *exec.ExitError
	if !errors.As(err, &ee) {
		fmt.Fprintf(lf, "%s\n", err)
	}
	lf.Sync()
	f := &stepFailure{index: n, argv: argv, exitCode: -1, log: logPath, err: err}
	if ee != nil {
		f.exitCode = ee.ExitCode()
	}
	f.tail = tail(logPath, tailLines)
	return f
}

func (f *stepFailure) Error() string {
	return fmt.Sprintf("step %d (%s) failed: %v", f.index, strings.Join(f.argv, " "), f.err)
}

func (f *stepFailure) Unwrap() error { return f.err }

func (r *runner) runSystem(ctx context.Context, args []string, dir string, lf, w io.Writer) ([]string, error) {
	argv, err := formula.Expand(args, r.vars)
	if err != nil {
		return nil, err
	}
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}
	fmt.Fprintf(lf, "%s\n\n", strings.Join(argv, " "))
	log.WithField("dir", dir).Debug(strings.Join(argv, " "))

	env := r.cm.Environ()
	program, err := lookPathIn(argv[0], r.cm.Getenv("PATH"))
	if err != nil {
		return argv, err
	}
	cmd := exec.CommandContext(ctx, program, argv[1:]...)
	cmd.Args[0] = argv[0]
	cmd.Dir = dir
	cmd.Env = env
	cmd.Stdout = w
	cmd.Stderr = w
	return argv, cmd.Run()
}

func (r *runner) runCMake(ctx context.Context, c *formula.CMakeStep, dir string, lf, w io.Writer) ([]string, error) {
	args, err := formula.Expand(c.Args, r.vars)
	if err != nil {
		return nil, err
	}
	if c.BuildType != "" {
		r.cm.BuildType(c.BuildType)
	}
	if c.Generator != "" {
		r.cm.Generator(c.Generator)
	}
	for k, v := range c.Defines {
		expanded, err := formula.Expand([]string{v}, r.vars)
		if err != nil {
			return nil, err
		}
		r.cm.Define(k, expanded[0])
	}
	for k, v := range c.Options {
		r.cm.DefineBool(k, v)
	}
	if c.Toolchain != "" {
		expanded, err := formula.Expand([]string{c.Toolchain}, r.vars)
		if err != nil {
			return nil, err
		}
		r.cm.Toolchain(expanded[0])
	}
	r.cm.Source(dir)
	r.cm.Stdout, r.cm.Stderr = w, w

	argv := append([]string{"cmake", c.Action}, args...)
	fmt.Fprintf(lf, "%s\n\n", strings.Join(argv, " "))
	log.WithField("dir", dir).Debug(strings.Join(argv, " "))

	switch c.Action {
	case formula.CMakeConfigure:
		err = r.cm.Configure(ctx, args...)
	case formula.CMakeBuild:
		err = r.cm.Build(ctx, args...)
	case formula.CMakeInstall:
		err = r.cm.Install(ctx, args...)
	default:
		err = errors.Errorf("unknown cmake action %q", c.Action)
	}
	return argv, err
}

func (r *runner) runAutotools(ctx context.Context, a *formula.AutotoolsStep, dir string, lf, w io.Writer) ([]string, error) {
	args, err := formula.Expand(a.Args, r.vars)
	if err != nil {
		return nil, err
	}
	at := autotools.New(dir, "", r.vars.Prefix)
	at.Env = r.cm.Environ()
	at.Stdout, at.Stderr = w, w

	var argv []string
	switch a.Action {
	case formula.AutotoolsConfigure:
		argv = append([]string{"./configure", "--prefix=" + r.vars.Prefix}, args...)
	case formula.AutotoolsInstall:
		argv = append([]string{"make", "install"}, args...)
	default:
		argv = append([]string{"make"}, args...)
	}
	if a.Action != formula.AutotoolsConfigure {
		program, err := lookPathIn("make", r.cm.Getenv("PATH"))
		if err != nil {
			return argv, err
		}
		at.Make = program
	}
	fmt.Fprintf(lf, "%s\n\n", strings.Join(argv, " "))
	log.WithField("dir", dir).Debug(strings.Join(argv, " "))

	switch a.Action {
	case formula.AutotoolsConfigure:
		err = at.Configure(ctx, args...)
	case formula.AutotoolsMake:
		err = at.Build(ctx, args...)
	case formula.AutotoolsInstall:
		err = at.Install(ctx, args...)
	default:
		err = errors.Errorf("unknown autotools action %q", a.Action)
	}
	return argv, err
}

// lookPathIn resolves a bare program name against a PATH-style list, the
// way the child's shell would, and falls back to the PATH of this process.
func lookPathIn(name, pathList string) (string, error) {
	if strings.ContainsRune(name, filepath.Separator) || strings.ContainsRune(name, '/') {
		return name, nil
	}
	for _, dir := range filepath.SplitList(pathList) {
		if dir == "" {
			continue
		}
		p := filepath.Join(dir, name)
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() && fi.Mode()&0o111 != 0 {
			return p, nil
		}
	}
	return exec.LookPath(name)
}

// tail returns the last n lines of the file at path.
func tail(path string, n int) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	lines := make([]string, 0, n)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if len(lines) == n {
			lines = lines[1:]
		}
		lines = append(lines, sc.Text())
	}
	return strings.Join(lines, "\n")
}
