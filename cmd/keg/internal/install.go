package internal

import (
	"strings"

	"github.com/apex/log"
	"github.com/spf13/cobra"

	"github.com/maxgog/keg/internal/install"
)

var installOpts install.Options

var installCmd = &cobra.Command{
	Use:   "install <formula>...",
	Short: "Build and install formulae",
	Long: `Install fetches, verifies, builds and installs each formula, then runs its
test. A formula is named by its name, by "tap/name", or by the path of a
formula file.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInstall,
}

func init() {
	installCmd.Flags().BoolVarP(&installOpts.Force, "force", "f", false, "Reinstall even if the version is already installed")
	installCmd.Flags().BoolVar(&installOpts.SkipTest, "skip-test", false, "Do not run the formula test after installing")
	installCmd.Flags().BoolVar(&installOpts.KeepTmp, "keep-tmp", false, "Keep the build directory")
	installCmd.Flags().BoolVarP(&installOpts.Verbose, "verbose", "v", false, "Enable verbose build output")
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	opts := installOpts
	opts.Verbose = opts.Verbose || a.cfg.Verbose
	a.installer.Stdout = cmd.OutOrStdout()

	failed := 0
	for _, ref := range args {
		f, err := a.taps.Find(ref)
		if err != nil {
			report(err)
			failed++
			continue
		}
		res, err := a.installer.Install(cmd.Context(), f, opts)
		if err != nil {
			report(err)
			failed++
			continue
		}
		if len(res.Linked) > 0 {
			log.WithField("bin", a.layout.Bin()).Info("Linked " + strings.Join(res.Linked, ", "))
		}
	}
	if failed > 0 {
		return errReported
	}
	return nil
}
