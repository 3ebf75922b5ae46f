package internal

import (
	"github.com/apex/log"
	"github.com/spf13/cobra"

	"github.com/maxgog/keg/internal/tap"
	"github.com/maxgog/keg/internal/vcs"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Fetch the newest version of every git tap",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		taps, err := tap.FromConfig(cfg)
		if err != nil {
			return err
		}
		if err := taps.Sync(cmd.Context(), vcs.NewGitVCS()); err != nil {
			return err
		}
		log.Info("Updated taps")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)
}
