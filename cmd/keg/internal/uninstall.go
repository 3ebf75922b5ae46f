package internal

import (
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"
)

var uninstallArgs struct {
	Force bool
	Yes   bool
}

var uninstallCmd = &cobra.Command{
	Use:     "uninstall <name>...",
	Aliases: []string{"rm", "remove"},
	Short:   "Remove installed formulae",
	Args:    cobra.MinimumNArgs(1),
	RunE:    runUninstall,
}

func init() {
	uninstallCmd.Flags().BoolVarP(&uninstallArgs.Force, "force", "f", false, "Remove even if other formulae depend on it")
	uninstallCmd.Flags().BoolVarP(&uninstallArgs.Yes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(uninstallCmd)
}

func runUninstall(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	failed := 0
	for _, name := range args {
		k, err := a.db.Get(name)
		if err != nil {
			report(err)
			failed++
			continue
		}
		if !uninstallArgs.Yes {
			ok := false
			msg := fmt.Sprintf("Remove %s %s from %s?", k.Name, k.Version, k.Prefix)
			if err := survey.AskOne(&survey.Confirm{Message: msg}, &ok); err != nil {
				return err
			}
			if !ok {
				continue
			}
		}
		if err := a.installer.Uninstall(cmd.Context(), name, uninstallArgs.Force); err != nil {
			report(err)
			failed++
		}
	}
	if failed > 0 {
		return errReported
	}
	return nil
}
