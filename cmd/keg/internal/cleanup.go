package internal

import (
	"github.com/apex/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove cached downloads and stale build directories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		freed, err := a.installer.Cleanup()
		if err != nil {
			return err
		}
		log.Info("Freed " + humanize.Bytes(uint64(freed)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}
