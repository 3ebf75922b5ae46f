package internal

import (
	"github.com/spf13/cobra"
)

var testVerbose bool

var testCmd = &cobra.Command{
	Use:   "test <name>...",
	Short: "Run the tests of installed formulae",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		a.installer.Stdout = cmd.OutOrStdout()

		failed := 0
		for _, name := range args {
			if err := a.installer.Test(cmd.Context(), name, testVerbose); err != nil {
				report(err)
				failed++
			}
		}
		if failed > 0 {
			return errReported
		}
		return nil
	},
}

func init() {
	testCmd.Flags().BoolVarP(&testVerbose, "verbose", "v", false, "Show test output")
	rootCmd.AddCommand(testCmd)
}
