package internal

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maxgog/keg/internal/fetch"
)

var fetchJobs int

var fetchCmd = &cobra.Command{
	Use:   "fetch <formula>...",
	Short: "Download and verify source archives",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runFetch,
}

func init() {
	fetchCmd.Flags().IntVarP(&fetchJobs, "jobs", "j", 0, "Parallel downloads (default from config)")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	failed := 0
	var reqs []fetch.Request
	for _, ref := range args {
		f, err := a.taps.Find(ref)
		if err != nil {
			report(err)
			failed++
			continue
		}
		reqs = append(reqs, fetch.Request{Name: f.Name, URL: f.URL, SHA256: f.SHA256})
	}

	jobs := fetchJobs
	if jobs <= 0 {
		jobs = a.cfg.Jobs
	}
	for _, res := range a.installer.Fetcher.FetchAll(cmd.Context(), reqs, jobs) {
		if res.Err != nil {
			report(res.Err)
			failed++
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", res.Name, res.Path)
	}
	if failed > 0 {
		return errReported
	}
	return nil
}
