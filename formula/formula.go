// Package formula describes how a piece of software is fetched, built,
// installed and smoke tested.
//
// A formula is declarative data, read from YAML or TOML:
//
//	name: seekfs
//	desc: Advanced file search utility
//	homepage: https://github.com/maxgog/SeekFS
//	url: https://github.com/maxgog/SeekFS/archive/v1.0.0.tar.gz
//	sha256: 5f70bf18a086007016e948b04aed3b82103a36bea41755b6cddfaf10ace3c6ef
//	license: GPL-3.0
//	depends_on:
//	  - name: cmake
//	    type: build
//	install:
//	  - [cmake, -B, build, -DCMAKE_BUILD_TYPE=Release, $std_cmake_args]
//	  - [cmake, --build, build]
//	  - [cmake, --install, build]
//	test:
//	  - ["${bin}/SeekFS", --help]
package formula

import (
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"
)

// DepType tells when a dependency is needed.
type DepType string

const (
	// Build dependencies must be available while the install steps run.
	Build DepType = "build"
	// Runtime dependencies must stay installed while the dependent is.
	Runtime DepType = "runtime"
)

// -----------------------------------------------------------------------------

// Formula is the recipe of a single package.
type Formula struct {
	Name      string       `yaml:"name" toml:"name"`
	Desc      string       `yaml:"desc" toml:"desc"`
	Homepage  string       `yaml:"homepage" toml:"homepage"`
	URL       string       `yaml:"url" toml:"url"`
	SHA256    string       `yaml:"sha256" toml:"sha256"`
	License   string       `yaml:"license" toml:"license"`
	Version   string       `yaml:"version,omitempty" toml:"version"`
	DependsOn []Dependency `yaml:"depends_on" toml:"depends_on"`
	Install   []Step       `yaml:"install" toml:"install"`
	Test      []Step       `yaml:"test" toml:"test"`

	// Path is the file the formula was loaded from, if any.
	Path string `yaml:"-" toml:"-"`
}

// BuildDeps returns the dependencies needed only while building.
func (f *Formula) BuildDeps() []Dependency {
	return f.depsOf(Build)
}

// RuntimeDeps returns the dependencies that must stay installed.
func (f *Formula) RuntimeDeps() []Dependency {
	return f.depsOf(Runtime)
}

func (f *Formula) depsOf(typ DepType) []Dependency {
	var deps []Dependency
	for _, d := range f.DependsOn {
		if d.Kind() == typ {
			deps = append(deps, d)
		}
	}
	return deps
}

// String returns "name version", or just the name if no version is known.
func (f *Formula) String() string {
	if v, err := f.PkgVersion(); err == nil {
		return f.Name + " " + v
	}
	return f.Name
}

// -----------------------------------------------------------------------------

// Dependency is a formula or tool required by another formula.
type Dependency struct {
	Name string  `yaml:"name" toml:"name"`
	Type DepType `yaml:"type,omitempty" toml:"type"`
}

// Kind returns the dependency type, defaulting to Runtime.
func (d Dependency) Kind() DepType {
	if d.Type == "" {
		return Runtime
	}
	return d.Type
}

func (d Dependency) String() string {
	if d.Kind() == Build {
		return d.Name + " (build)"
	}
	return d.Name
}

// UnmarshalYAML accepts either a bare name or a {name, type} mapping.
func (d *Dependency) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		d.Name = value.Value
		return nil
	}
	type plain Dependency
	return value.Decode((*plain)(d))
}

// UnmarshalTOML accepts either a bare name or a {name, type} table.
func (d *Dependency) UnmarshalTOML(data any) error {
	switch v := data.(type) {
	case string:
		d.Name = v
	case map[string]any:
		d.Name, _ = v["name"].(string)
		typ, _ := v["type"].(string)
		d.Type = DepType(typ)
	default:
		return fmt.Errorf("dependency: unexpected %T", data)
	}
	return nil
}

// -----------------------------------------------------------------------------

// Step is a single command run while installing or testing. Exactly one of
// System, CMake and Autotools is set.
type Step struct {
	// System is an argv executed directly, without a shell.
	System []string `yaml:"system,omitempty" toml:"system"`
	// CMake runs one phase of a cmake build through the cmake helper.
	CMake *CMakeStep `yaml:"cmake,omitempty" toml:"cmake"`
	// Autotools runs configure, make or make install.
	Autotools *AutotoolsStep `yaml:"autotools,omitempty" toml:"autotools"`
	// Dir is the working directory, relative to the build path.
	Dir string `yaml:"dir,omitempty" toml:"dir"`
}

// Argv returns the command line the step represents, for display.
func (s Step) Argv() []string {
	if s.CMake != nil {
		return append([]string{"cmake", "(" + s.CMake.Action + ")"}, s.CMake.Args...)
	}
	if s.Autotools != nil {
		return append([]string{s.Autotools.Program()}, s.Autotools.Args...)
	}
	return slices.Clone(s.System)
}

// Program returns the base name of the program the step runs.
func (s Step) Program() string {
	if s.CMake != nil {
		return "cmake"
	}
	if s.Autotools != nil {
		return s.Autotools.Program()
	}
	if len(s.System) == 0 {
		return ""
	}
	return baseName(s.System[0])
}

// UnmarshalYAML accepts a bare sequence as shorthand for a system step.
func (s *Step) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.SequenceNode {
		return value.Decode(&s.System)
	}
	type plain Step
	return value.Decode((*plain)(s))
}

// UnmarshalTOML accepts a bare array as shorthand for a system step.
func (s *Step) UnmarshalTOML(data any) error {
	switch v := data.(type) {
	case []any:
		args, err := toStrings(v)
		if err != nil {
			return err
		}
		s.System = args
	case map[string]any:
		if raw, ok := v["system"]; ok {
			list, ok := raw.([]any)
			if !ok {
				return fmt.Errorf("step: system must be an array, got %T", raw)
			}
			args, err := toStrings(list)
			if err != nil {
				return err
			}
			s.System = args
		}
		s.Dir, _ = v["dir"].(string)
		if raw, ok := v["cmake"]; ok {
			c := new(CMakeStep)
			if err := c.UnmarshalTOML(raw); err != nil {
				return err
			}
			s.CMake = c
		}
		if raw, ok := v["autotools"]; ok {
			a := new(AutotoolsStep)
			if err := a.UnmarshalTOML(raw); err != nil {
				return err
			}
			s.Autotools = a
		}
	default:
		return fmt.Errorf("step: unexpected %T", data)
	}
	return nil
}

// CMake phases.
const (
	CMakeConfigure = "configure"
	CMakeBuild     = "build"
	CMakeInstall   = "install"
)

// CMakeStep runs configure, build or install of a cmake project.
type CMakeStep struct {
	Action    string            `yaml:"action" toml:"action"`
	Args      []string          `yaml:"args,omitempty" toml:"args"`
	BuildType string            `yaml:"build_type,omitempty" toml:"build_type"`
	Generator string            `yaml:"generator,omitempty" toml:"generator"`
	Toolchain string            `yaml:"toolchain,omitempty" toml:"toolchain"`
	Defines   map[string]string `yaml:"defines,omitempty" toml:"defines"`
	// Options become -D<key>:BOOL=ON/OFF.
	Options map[string]bool `yaml:"options,omitempty" toml:"options"`
}

// UnmarshalYAML accepts a bare action name.
func (c *CMakeStep) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		c.Action = value.Value
		return nil
	}
	type plain CMakeStep
	return value.Decode((*plain)(c))
}

// UnmarshalTOML accepts a bare action name or a table.
func (c *CMakeStep) UnmarshalTOML(data any) error {
	switch v := data.(type) {
	case string:
		c.Action = v
	case map[string]any:
		c.Action, _ = v["action"].(string)
		c.BuildType, _ = v["build_type"].(string)
		c.Generator, _ = v["generator"].(string)
		c.Toolchain, _ = v["toolchain"].(string)
		if raw, ok := v["args"].([]any); ok {
			args, err := toStrings(raw)
			if err != nil {
				return err
			}
			c.Args = args
		}
		if raw, ok := v["defines"].(map[string]any); ok {
			c.Defines = make(map[string]string, len(raw))
			for k, val := range raw {
				c.Defines[k] = fmt.Sprint(val)
			}
		}
		if raw, ok := v["options"].(map[string]any); ok {
			c.Options = make(map[string]bool, len(raw))
			for k, val := range raw {
				b, ok := val.(bool)
				if !ok {
					return fmt.Errorf("cmake step: option %s is not a boolean", k)
				}
				c.Options[k] = b
			}
		}
	default:
		return fmt.Errorf("cmake step: unexpected %T", data)
	}
	return nil
}

func toStrings(list []any) ([]string, error) {
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("expected string argument, got %T", item)
		}
		out = append(out, s)
	}
	return out, nil
}

func baseName(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' || p[i] == '\\' {
			return p[i+1:]
		}
	}
	return p
}

// Autotools phases.
const (
	AutotoolsConfigure = "configure"
	AutotoolsMake      = "make"
	AutotoolsInstall   = "install"
)

// AutotoolsStep runs one phase of a configure/make build. Configure gets
// --prefix=${prefix} on its own.
type AutotoolsStep struct {
	Action string   `yaml:"action" toml:"action"`
	Args   []string `yaml:"args,omitempty" toml:"args"`
}

// Program returns the executable the phase runs.
func (a *AutotoolsStep) Program() string {
	if a.Action == AutotoolsConfigure {
		return "configure"
	}
	return "make"
}

// UnmarshalYAML accepts a bare action name.
func (a *AutotoolsStep) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		a.Action = value.Value
		return nil
	}
	type plain AutotoolsStep
	return value.Decode((*plain)(a))
}

// UnmarshalTOML accepts a bare action name or a table.
func (a *AutotoolsStep) UnmarshalTOML(data any) error {
	switch v := data.(type) {
	case string:
		a.Action = v
	case map[string]any:
		a.Action, _ = v["action"].(string)
		if raw, ok := v["args"].([]any); ok {
			args, err := toStrings(raw)
			if err != nil {
				return err
			}
			a.Args = args
		}
	default:
		return fmt.Errorf("autotools step: unexpected %T", data)
	}
	return nil
}
