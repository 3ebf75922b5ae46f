package internal

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var listVersions bool

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List installed formulae",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		kegs, err := a.db.List()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, k := range kegs {
			line := k.Name
			if listVersions {
				line += " " + k.Version
			}
			if k.TestPassed != nil && !*k.TestPassed {
				line += " " + color.RedString("(test failed)")
			}
			fmt.Fprintln(out, line)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().BoolVar(&listVersions, "versions", false, "Show the installed version")
	rootCmd.AddCommand(listCmd)
}
