package main

import (
	"os"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/gitmetrics/gitmetrics/internal/apply"
	"github.com/gitmetrics/gitmetrics/internal/output"
	"github.com/gitmetrics/gitmetrics/internal/report"
	"github.com/spf13/cobra"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Write suggested fixes from saved reports into a working tree",
}

var applyLintCmd = &cobra.Command{
	Use:   "lint [linters_report.json]",
	Short: "Replace files with their formatted code",
	Long: `Writes each file's formatted code from a lint report back under --root.
Files whose lint run failed or whose language has no formatter are left alone.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runApplyLint,
}

var applyFragmentsCmd = &cobra.Command{
	Use:   "fragments [complexity_report.json]",
	Short: "Replace complex functions with their simplified code",
	Long: `Replaces each fragment's line range with its simplified code from a complexity
report produced with --explain. Fragments are applied bottom-up per file;
fragments without simplified code are skipped.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runApplyFragments,
}

func init() {
	for _, c := range []*cobra.Command{applyLintCmd, applyFragmentsCmd} {
		c.Flags().String("root", ".", "Working tree the report paths are relative to")
		applyCmd.AddCommand(c)
	}
	rootCmd.AddCommand(applyCmd)
}

func runApplyLint(cmd *cobra.Command, args []string) error {
	results, err := report.LoadLint(reportArg(args, report.LintFile))
	if err != nil {
		return err
	}
	root, _ := cmd.Flags().GetString("root")
	return printOutcomes("Lint fixes", apply.LintFixes(root, results))
}

func runApplyFragments(cmd *cobra.Command, args []string) error {
	results, err := report.LoadComplexity(reportArg(args, report.ComplexityFile))
	if err != nil {
		return err
	}
	root, _ := cmd.Flags().GetString("root")
	return printOutcomes("Simplified fragments", apply.Fragments(root, results))
}

func reportArg(args []string, def string) string {
	if len(args) > 0 {
		return args[0]
	}
	return def
}

// printOutcomes renders one row per file and fails if any file could not be
// rewritten.
func printOutcomes(title string, outcomes []apply.Outcome) error {
	table := &output.Table{
		Title:   title,
		Headers: []string{"File", "Applied", "Skipped", "Note"},
	}
	var failed, applied int
	for _, o := range outcomes {
		note := o.Reason
		if o.Err != nil {
			note = o.Err.Error()
			failed++
		}
		applied += o.Applied
		table.Rows = append(table.Rows, []string{o.File, strconv.Itoa(o.Applied), strconv.Itoa(o.Skipped), note})
	}
	table.Footer = []string{"Total", strconv.Itoa(applied), "", ""}

	f := output.NewWriterFormatter(output.FormatText, os.Stdout, true)
	if err := f.Output(table); err != nil {
		return err
	}
	if failed > 0 {
		return errors.Newf("%d files could not be rewritten", failed)
	}
	return nil
}
