package formula

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// StdCMakeArgs is the argument that splats the standard cmake arguments.
const StdCMakeArgs = "$std_cmake_args"

// Vars are the values available to step arguments as ${name} placeholders.
type Vars struct {
	Name      string
	Version   string
	Prefix    string // keg directory
	BuildPath string // unpacked source tree
	Cache     string // download cache

	// StdCMakeArgs replaces an argument equal to "$std_cmake_args".
	StdCMakeArgs []string
}

func (v Vars) lookup(key string) (string, bool) {
	switch key {
	case "name":
		return v.Name, true
	case "version":
		return v.Version, true
	case "prefix":
		return v.Prefix, true
	case "bin":
		return filepath.Join(v.Prefix, "bin"), true
	case "lib":
		return filepath.Join(v.Prefix, "lib"), true
	case "include":
		return filepath.Join(v.Prefix, "include"), true
	case "share":
		return filepath.Join(v.Prefix, "share"), true
	case "buildpath":
		return v.BuildPath, true
	case "cache":
		return v.Cache, true
	}
	return "", false
}

// Placeholders lists the names known to Expand.
func Placeholders() []string {
	names := []string{"name", "version", "prefix", "bin", "lib", "include", "share", "buildpath", "cache"}
	sort.Strings(names)
	return names
}

// Expand substitutes ${name} placeholders in args and splats
// $std_cmake_args. A bare "$" is left untouched so shell snippets keep
// their own variables.
func Expand(args []string, vars Vars) ([]string, error) {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == StdCMakeArgs {
			out = append(out, vars.StdCMakeArgs...)
			continue
		}
		s, err := expandOne(arg, vars.lookup)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// unknownPlaceholders returns the ${...} names in arg that Expand rejects.
func unknownPlaceholders(arg string) []string {
	var unknown []string
	expandOne(arg, func(key string) (string, bool) {
		if _, ok := (Vars{}).lookup(key); !ok {
			unknown = append(unknown, key)
		}
		return "", true
	})
	return unknown
}

func expandOne(s string, lookup func(string) (string, bool)) (string, error) {
	var b strings.Builder
	for {
		i := strings.Index(s, "${")
		if i < 0 {
			b.WriteString(s)
			return b.String(), nil
		}
		j := strings.IndexByte(s[i+2:], '}')
		if j < 0 {
			return "", fmt.Errorf("unterminated placeholder in %q", s)
		}
		key := s[i+2 : i+2+j]
		val, ok := lookup(key)
		if !ok {
			return "", fmt.Errorf("unknown placeholder ${%s}", key)
		}
		b.WriteString(s[:i])
		b.WriteString(val)
		s = s[i+2+j+1:]
	}
}
