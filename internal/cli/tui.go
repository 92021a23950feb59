package cli

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"askdocs/internal/pipeline"
	"askdocs/internal/tui"
)

var (
	tuiFiles   []string
	tuiPersona string
)

var tuiCmd = &cobra.Command{
	Use:   "tui --file doc.pdf",
	Short: "Ask questions interactively",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, getConfig())
		if err != nil {
			return err
		}
		defer a.close()

		ingest, err := a.ingest(ctx, tuiFiles)
		if err != nil {
			return err
		}
		summary := fmt.Sprintf("%d document(s), %d characters", len(ingest.Documents), ingest.Chars)
		if n := len(ingest.Failures); n > 0 {
			summary += fmt.Sprintf(", %d skipped", n)
		}

		persona := tuiPersona
		if persona == "" {
			persona = a.cfg.Pipeline.DefaultPersona
		}
		ask := func(ctx context.Context, persona, question string) (pipeline.Report, error) {
			return a.orch.Ask(ctx, a.session, persona, question)
		}
		_, err = tea.NewProgram(tui.New(ask, persona, summary), tea.WithAltScreen()).Run()
		return err
	},
}

func init() {
	tuiCmd.Flags().StringSliceVarP(&tuiFiles, "file", "f", nil, "document to load (repeatable)")
	tuiCmd.Flags().StringVarP(&tuiPersona, "persona", "p", "", "initial persona")
	_ = tuiCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(tuiCmd)
}
