package internal

import (
	"github.com/apex/log"
	"github.com/spf13/cobra"

	"github.com/maxgog/keg/internal/install"
)

var upgradeOpts install.Options

var upgradeCmd = &cobra.Command{
	Use:   "upgrade [name...]",
	Short: "Upgrade outdated formulae",
	Long:  `Upgrade installs the tap version of each named formula, or of every outdated formula, and removes the version it replaces.`,
	RunE:  runUpgrade,
}

func init() {
	upgradeCmd.Flags().BoolVar(&upgradeOpts.SkipTest, "skip-test", false, "Do not run formula tests")
	upgradeCmd.Flags().BoolVar(&upgradeOpts.KeepTmp, "keep-tmp", false, "Keep build directories")
	upgradeCmd.Flags().BoolVarP(&upgradeOpts.Verbose, "verbose", "v", false, "Enable verbose build output")
	rootCmd.AddCommand(upgradeCmd)
}

func runUpgrade(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	a.installer.Stdout = cmd.OutOrStdout()

	names := args
	if len(names) == 0 {
		outdated, err := a.installer.Outdated()
		if err != nil {
			return err
		}
		for _, o := range outdated {
			names = append(names, o.Name)
		}
		if len(names) == 0 {
			log.Info("Everything is up to date")
			return nil
		}
	}

	failed := 0
	for _, name := range names {
		if _, err := a.installer.Upgrade(cmd.Context(), name, upgradeOpts); err != nil {
			report(err)
			failed++
		}
	}
	if failed > 0 {
		return errReported
	}
	return nil
}
