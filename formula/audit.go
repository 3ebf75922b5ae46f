package formula

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/asaskevich/govalidator"

	"github.com/maxgog/keg/internal/errs"
)

// Severity grades an audit problem.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Problem is a single audit finding.
type Problem struct {
	Severity Severity
	Field    string
	Message  string
}

func (p Problem) String() string {
	return fmt.Sprintf("%s: %s: %s", p.Severity, p.Field, p.Message)
}

var (
	spdxTerm = `[A-Za-z0-9][A-Za-z0-9.+-]*`
	spdxExpr = regexp.MustCompile(`^\(?` + spdxTerm + `(?: (?:AND|OR|WITH) \(?` + spdxTerm + `\)?)*\)?$`)
)

// Validate checks the fields an install cannot proceed without. It returns
// an error of kind errs.ErrInvalidFormula describing the first problem.
func Validate(f *Formula) error {
	problems := validate(f)
	if len(problems) == 0 {
		return nil
	}
	p := problems[0]
	return errs.E(errs.ErrInvalidFormula, nil, "formula", f.Name, "field", p.Field, "problem", p.Message)
}

func validate(f *Formula) []Problem {
	var problems []Problem
	add := func(field, format string, a ...any) {
		problems = append(problems, Problem{Severity: SeverityError, Field: field, Message: fmt.Sprintf(format, a...)})
	}
	if f.Name == "" {
		add("name", "missing")
	} else if msg := badPathPart(f.Name); msg != "" {
		add("name", "%s", msg)
	}
	if f.Version != "" {
		if msg := badPathPart(f.Version); msg != "" {
			add("version", "%s", msg)
		}
	}
	if f.URL == "" {
		add("url", "missing")
	}
	if f.SHA256 == "" {
		add("sha256", "missing")
	}
	if len(f.Install) == 0 {
		add("install", "no install steps")
	}
	for i, d := range f.DependsOn {
		if d.Name == "" {
			add(fmt.Sprintf("depends_on[%d]", i), "missing name")
		} else if msg := badPathPart(d.Name); msg != "" {
			add(fmt.Sprintf("depends_on[%d]", i), "%s", msg)
		}
		if d.Type != "" && d.Type != Build && d.Type != Runtime {
			add(fmt.Sprintf("depends_on[%d]", i), "unknown type %q", d.Type)
		}
	}
	checkSteps := func(field string, steps []Step) {
		for i, s := range steps {
			name := fmt.Sprintf("%s[%d]", field, i)
			if msg := checkStep(s); msg != "" {
				add(name, "%s", msg)
			}
		}
	}
	checkSteps("install", f.Install)
	checkSteps("test", f.Test)
	return problems
}

// badPathPart describes why s cannot name a directory of the keg root, or
// returns "".
func badPathPart(s string) string {
	switch {
	case s == "." || s == "..":
		return fmt.Sprintf("%q is not a valid directory name", s)
	case strings.ContainsAny(s, "/\\\x00"):
		return fmt.Sprintf("%q contains a path separator or NUL", s)
	}
	return ""
}

func checkStep(s Step) string {
	kinds := 0
	if len(s.System) > 0 {
		kinds++
	}
	if s.CMake != nil {
		kinds++
	}
	if s.Autotools != nil {
		kinds++
	}
	switch kinds {
	case 0:
		return "empty step"
	case 1:
	default:
		return "step sets more than one of system, cmake and autotools"
	}
	args := append([]string{s.Dir}, s.System...)
	if c := s.CMake; c != nil {
		switch c.Action {
		case CMakeConfigure, CMakeBuild, CMakeInstall:
		default:
			return fmt.Sprintf("unknown cmake action %q", c.Action)
		}
		args = append(args, c.Args...)
		for _, v := range c.Defines {
			args = append(args, v)
		}
	}
	if a := s.Autotools; a != nil {
		switch a.Action {
		case AutotoolsConfigure, AutotoolsMake, AutotoolsInstall:
		default:
			return fmt.Sprintf("unknown autotools action %q", a.Action)
		}
		args = append(args, a.Args...)
	}
	for _, arg := range args {
		if _, err := expandOne(arg, func(string) (string, bool) { return "", true }); err != nil {
			return err.Error()
		}
		if unknown := unknownPlaceholders(arg); len(unknown) > 0 {
			return fmt.Sprintf("unknown placeholder ${%s}, known: %s", unknown[0], strings.Join(Placeholders(), ", "))
		}
	}
	return ""
}

// Audit reports everything Validate does plus style and sanity problems that
// do not block an install.
func Audit(f *Formula) []Problem {
	problems := validate(f)
	warn := func(field, format string, a ...any) {
		problems = append(problems, Problem{Severity: SeverityWarning, Field: field, Message: fmt.Sprintf(format, a...)})
	}
	fail := func(field, format string, a ...any) {
		problems = append(problems, Problem{Severity: SeverityError, Field: field, Message: fmt.Sprintf(format, a...)})
	}

	if f.URL != "" && !isFetchableURL(f.URL) {
		fail("url", "%q is not an http(s) or file URL", f.URL)
	}
	if f.SHA256 != "" && !govalidator.IsHash(f.SHA256, "sha256") {
		fail("sha256", "%q is not a hex encoded SHA-256 digest", f.SHA256)
	}
	if f.URL != "" {
		if _, err := f.PkgVersion(); err != nil {
			fail("version", "cannot infer a version from the URL, set version explicitly")
		}
	}

	if f.Desc == "" {
		warn("desc", "missing")
	} else if len(f.Desc) > 80 {
		warn("desc", "longer than 80 characters")
	}
	switch {
	case f.Homepage == "":
		warn("homepage", "missing")
	case !govalidator.IsURL(f.Homepage) || !strings.HasPrefix(f.Homepage, "http"):
		warn("homepage", "%q is not an http(s) URL", f.Homepage)
	}
	switch {
	case f.License == "":
		warn("license", "missing")
	case !spdxExpr.MatchString(f.License):
		if trimmed := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(f.License), "license")); spdxExpr.MatchString(trimmed) {
			warn("license", "%q is not an SPDX expression, use %q", f.License, trimmed)
		} else {
			warn("license", "%q is not an SPDX expression", f.License)
		}
	}
	if len(f.Test) == 0 {
		warn("test", "no test steps")
	}
	if usesCMake(f) && !declares(f, "cmake") {
		warn("depends_on", "steps run cmake but cmake is not a declared build dependency")
	}
	return problems
}

// HasErrors reports whether any problem is an error.
func HasErrors(problems []Problem) bool {
	for _, p := range problems {
		if p.Severity == SeverityError {
			return true
		}
	}
	return false
}

func isFetchableURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "http", "https":
		return govalidator.IsRequestURL(raw)
	case "file":
		return u.Path != ""
	}
	return false
}

func usesCMake(f *Formula) bool {
	for _, s := range f.Install {
		if s.Program() == "cmake" {
			return true
		}
	}
	return false
}

func declares(f *Formula, name string) bool {
	for _, d := range f.DependsOn {
		if d.Name == name {
			return true
		}
	}
	return false
}
