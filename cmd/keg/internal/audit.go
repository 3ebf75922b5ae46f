package internal

import (
	"fmt"

	"github.com/apex/log"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/maxgog/keg/formula"
)

var auditStrict bool

var auditCmd = &cobra.Command{
	Use:   "audit [formula...]",
	Short: "Check formulae for problems",
	Long:  `Audit checks the named formulae, or every formula in every tap, for errors and style problems.`,
	RunE:  runAudit,
}

func init() {
	auditCmd.Flags().BoolVar(&auditStrict, "strict", false, "Treat warnings as errors")
	rootCmd.AddCommand(auditCmd)
}

type auditResult struct {
	formula  *formula.Formula
	problems []formula.Problem
}

func runAudit(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var list []*formula.Formula
	failed := 0
	if len(args) == 0 {
		var failures []error
		list, failures = a.taps.All()
		for _, err := range failures {
			report(err)
			failed++
		}
	} else {
		for _, ref := range args {
			f, err := a.taps.Find(ref)
			if err != nil {
				report(err)
				failed++
				continue
			}
			list = append(list, f)
		}
	}

	results := make([]auditResult, len(list))
	var g errgroup.Group
	g.SetLimit(a.cfg.Jobs)
	for i, f := range list {
		g.Go(func() error {
			results[i] = auditResult{formula: f, problems: formula.Audit(f)}
			return nil
		})
	}
	g.Wait()

	out := cmd.OutOrStdout()
	for _, r := range results {
		if len(r.problems) == 0 {
			continue
		}
		fmt.Fprintf(out, "%s (%s):\n", color.New(color.Bold).Sprint(r.formula.Name), r.formula.Path)
		for _, p := range r.problems {
			sev := color.YellowString(string(p.Severity))
			if p.Severity == formula.SeverityError {
				sev = color.RedString(string(p.Severity))
			}
			fmt.Fprintf(out, "  * %s: %s: %s\n", sev, p.Field, p.Message)
		}
		if formula.HasErrors(r.problems) || auditStrict {
			failed++
		}
	}
	log.WithField("formulae", len(list)).Debug("audit finished")
	if failed > 0 {
		return errReported
	}
	return nil
}
