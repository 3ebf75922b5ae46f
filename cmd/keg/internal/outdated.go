package internal

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var outdatedCmd = &cobra.Command{
	Use:   "outdated",
	Short: "List installed formulae with a newer version available",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := a.installer.Outdated()
		if err != nil {
			return err
		}
		for _, o := range list {
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) < %s\n", o.Name, o.Installed, color.GreenString(o.Available))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(outdatedCmd)
}
