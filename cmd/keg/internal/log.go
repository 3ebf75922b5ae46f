package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/maxgog/keg/internal/store"
)

var logLimit int

var logCmd = &cobra.Command{
	Use:   "log [name]",
	Short: "Show the install history",
	Long:  `Log prints recent installs, upgrades, tests and failures, newest first. Given a formula name it also lists the step logs of its last build.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLog,
}

func init() {
	logCmd.Flags().IntVarP(&logLimit, "limit", "n", 20, "Number of entries to show, 0 for all")
	rootCmd.AddCommand(logCmd)
}

func runLog(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var name string
	if len(args) == 1 {
		name = args[0]
	}
	history, err := a.db.History(name, logLimit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, act := range history {
		fmt.Fprintln(out, formatActivity(act))
	}

	if name == "" {
		return nil
	}
	dir := a.layout.Logs(name)
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) == 0 {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	fmt.Fprintf(out, "\nStep logs in %s:\n", dir)
	for _, n := range names {
		fmt.Fprintf(out, "  %s\n", filepath.Join(dir, n))
	}
	return nil
}

func formatActivity(act store.Activity) string {
	event := string(act.Event)
	switch act.Event {
	case store.EventFailed:
		event = color.RedString(event)
	case store.EventTest:
		if passed, _ := act.Metadata["passed"].(bool); !passed {
			event = color.RedString(event)
		}
	default:
		event = color.GreenString(event)
	}
	line := fmt.Sprintf("%s  %-9s %s", act.Timestamp.Local().Format(time.DateTime), event, act.Formula)
	if act.Version != "" {
		line += " " + act.Version
	}
	if act.Message != "" {
		line += ": " + act.Message
	}
	return line
}
