package internal

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/karrick/godirwalk"
	"github.com/spf13/cobra"

	"github.com/maxgog/keg/formula"
	"github.com/maxgog/keg/internal/version"
)

var infoCmd = &cobra.Command{
	Use:   "info <formula>",
	Short: "Show information about a formula",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	f, err := a.taps.Find(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	version, _ := f.PkgVersion()
	fmt.Fprintf(out, "%s: %s\n", color.New(color.Bold).Sprint(f.Name), version)
	if f.Desc != "" {
		fmt.Fprintln(out, f.Desc)
	}
	if f.Homepage != "" {
		fmt.Fprintln(out, f.Homepage)
	}
	if f.License != "" {
		fmt.Fprintf(out, "License: %s\n", f.License)
	}
	fmt.Fprintf(out, "From: %s\n", f.Path)

	for _, group := range []struct {
		title string
		deps  []formula.Dependency
	}{
		{"Build dependencies", f.BuildDeps()},
		{"Dependencies", f.RuntimeDeps()},
	} {
		if len(group.deps) == 0 {
			continue
		}
		fmt.Fprintf(out, "%s:\n", group.title)
		for _, d := range group.deps {
			fmt.Fprintf(out, "  %s %s\n", depMark(a, d), d.Name)
		}
	}

	k, err := a.db.Get(f.Name)
	if err != nil {
		fmt.Fprintln(out, "Not installed")
		return nil
	}
	files, size := kegUsage(k.Prefix)
	fmt.Fprintf(out, "Installed: %s (%d files, %s)\n", k.Prefix, files, humanize.Bytes(uint64(size)))
	fmt.Fprintf(out, "  Built %s", humanize.Time(k.InstalledAt))
	if k.TestPassed != nil {
		if *k.TestPassed {
			fmt.Fprintf(out, ", test %s", color.GreenString("passed"))
		} else {
			fmt.Fprintf(out, ", test %s", color.RedString("failed"))
		}
	}
	fmt.Fprintln(out)
	if others := rackVersions(a.layout.Rack(f.Name), k.Version); len(others) > 0 {
		fmt.Fprintf(out, "  Also in Cellar: %s\n", strings.Join(others, ", "))
	}
	printPkgConfigInfo(out, k.Prefix)
	return nil
}

// rackVersions lists the version directories of a rack other than current,
// oldest first.
func rackVersions(rack, current string) []string {
	entries, err := os.ReadDir(rack)
	if err != nil {
		return nil
	}
	var list []string
	for _, e := range entries {
		if e.IsDir() && e.Name() != current {
			list = append(list, e.Name())
		}
	}
	version.Sort(list)
	return list
}

func depMark(a *app, d formula.Dependency) string {
	if a.db.IsInstalled(d.Name) {
		return color.GreenString("✔")
	}
	if d.Kind() == formula.Build {
		if _, err := exec.LookPath(d.Name); err == nil {
			return color.GreenString("✔")
		}
	}
	return color.RedString("✘")
}

// kegUsage counts the files of a keg and their total size.
func kegUsage(prefix string) (files int, size int64) {
	godirwalk.Walk(prefix, &godirwalk.Options{
		Unsorted: true,
		Callback: func(p string, de *godirwalk.Dirent) error {
			if de.IsRegular() {
				files++
				if fi, err := os.Lstat(p); err == nil {
					size += fi.Size()
				}
			}
			return nil
		},
		ErrorCallback: func(string, error) godirwalk.ErrorAction {
			return godirwalk.SkipNode
		},
	})
	return files, size
}

// printPkgConfigInfo uses pkg-config to print the flags of every library a
// keg ships a .pc file for.
func printPkgConfigInfo(w io.Writer, prefix string) error {
	pkgconfigDir := filepath.Join(prefix, "lib", "pkgconfig")
	entries, err := os.ReadDir(pkgconfigDir)
	if err != nil {
		return err
	}

	var pkgNames []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".pc") {
			pkgNames = append(pkgNames, strings.TrimSuffix(entry.Name(), ".pc"))
		}
	}
	if len(pkgNames) == 0 {
		return nil
	}

	pkgConfigPath := pkgconfigDir
	if cur := os.Getenv("PKG_CONFIG_PATH"); cur != "" {
		pkgConfigPath += string(os.PathListSeparator) + cur
	}
	for _, pkgName := range pkgNames {
		cmd := exec.Command("pkg-config", "--libs", "--cflags", pkgName)
		cmd.Env = append(os.Environ(), "PKG_CONFIG_PATH="+pkgConfigPath)
		if out, err := cmd.Output(); err == nil {
			if result := strings.TrimSpace(string(out)); result != "" {
				fmt.Fprintf(w, "  %s: %s\n", pkgName, result)
			}
		}
	}
	return nil
}
