package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"askdocs/internal/pipeline"
)

var (
	askFiles   []string
	askPersona string
	askJSON    bool
)

var askCmd = &cobra.Command{
	Use:   "ask --file doc.pdf [--file notes.md] \"question\"",
	Short: "Run the full analysis pipeline for one question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, getConfig())
		if err != nil {
			return err
		}
		defer a.close()

		ingest, err := a.ingest(ctx, askFiles)
		if err != nil {
			return err
		}
		for _, f := range ingest.Failures {
			color.New(color.FgYellow).Fprintf(os.Stderr, "skipped %s: %s\n", f.Name, f.Error)
		}

		rep, err := a.orch.Ask(ctx, a.session, askPersona, strings.Join(args, " "))
		if err != nil {
			return err
		}
		if askJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		}
		printReport(cmd.OutOrStdout(), rep)
		return nil
	},
}

var (
	heading = color.New(color.FgCyan, color.Bold).SprintFunc()
	okMark  = color.New(color.FgGreen).SprintFunc()
	badMark = color.New(color.FgRed).SprintFunc()
	dim     = color.New(color.Faint).SprintFunc()
)

func printReport(w io.Writer, rep pipeline.Report) {
	sections := []struct{ title, body string }{
		{"Answer", rep.Result.Answer},
		{"Context", rep.Result.Context},
		{"Contradictions", rep.Result.Contradictions},
		{"Action Plan", rep.Result.Actions},
		{"Persona Summary (" + rep.Persona + ")", rep.Result.PersonaSummary},
	}
	for _, s := range sections {
		fmt.Fprintf(w, "%s\n%s\n\n", heading("## "+s.title), s.body)
	}
	fmt.Fprintln(w, heading("## Stages"))
	for _, st := range rep.Stages {
		mark := okMark("✓")
		if st.Status != pipeline.StatusOK {
			mark = badMark("✗")
		}
		line := fmt.Sprintf("%s %-24s %-10s %s", mark, st.Stage, st.Status, st.Duration.Round(1e6))
		if st.Error != "" {
			line += " " + dim(st.Error)
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w, dim(fmt.Sprintf("run %s in %s", rep.RunID, rep.Duration.Round(1e6))))
}

func init() {
	askCmd.Flags().StringSliceVarP(&askFiles, "file", "f", nil, "document to load (repeatable)")
	askCmd.Flags().StringVarP(&askPersona, "persona", "p", "", "persona for the summary (default from config)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the report as JSON")
	_ = askCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(askCmd)
}
