package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"askdocs/internal/domain"
	"askdocs/internal/pipeline"
)

var (
	indexFiles     []string
	indexSearch    string
	indexQuestions []string
)

var indexCmd = &cobra.Command{
	Use:   "index --file doc.pdf [--search query] [--question q]...",
	Short: "Build the index for documents and preview chunks, search hits or batch answers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, getConfig())
		if err != nil {
			return err
		}
		defer a.close()

		ingest, err := a.ingest(ctx, indexFiles)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, d := range ingest.Documents {
			fmt.Fprintf(out, "%s %s (%d chars)\n%s\n\n", heading("#"), d.Name, d.Chars, dim(d.Preview))
		}
		for _, f := range ingest.Failures {
			fmt.Fprintf(out, "%s %s: %s\n", badMark("skipped"), f.Name, f.Error)
		}

		n, err := a.session.EnsureIndex(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %d chunks\n\n", okMark("indexed"), n)

		if len(indexQuestions) > 0 {
			ans, err := a.session.Retriever().Query(ctx, domain.Batch(indexQuestions...))
			if err != nil {
				return err
			}
			printAnswers(out, indexQuestions, ans)
			return nil
		}
		if indexSearch == "" {
			for _, ch := range a.session.Retriever().Chunks() {
				fmt.Fprintf(out, "%s %s\n%s\n\n", heading(ch.ChunkID), dim(ch.Section), pipeline.Preview(ch.Text, 200))
			}
			return nil
		}
		hits, err := a.session.Retriever().Search(ctx, indexSearch, a.cfg.Retriever.TopK)
		if err != nil {
			return err
		}
		for i, h := range hits {
			fmt.Fprintf(out, "%s distance=%.4f %s\n%s\n\n", heading(fmt.Sprintf("%d.", i+1)), h.Distance, h.Chunk.ChunkID, pipeline.Preview(h.Chunk.Text, 200))
		}
		return nil
	},
}

func printAnswers(w io.Writer, questions []string, ans domain.Answer) {
	for i, a := range ans.Items() {
		fmt.Fprintf(w, "%s %s\n%s\n\n", heading(fmt.Sprintf("Q%d.", i+1)), questions[i], a)
	}
}

func init() {
	indexCmd.Flags().StringSliceVarP(&indexFiles, "file", "f", nil, "document to load (repeatable)")
	indexCmd.Flags().StringVarP(&indexSearch, "search", "s", "", "show the nearest chunks for this query")
	indexCmd.Flags().StringArrayVarP(&indexQuestions, "question", "q", nil, "answer this question without the analysis stages (repeatable)")
	_ = indexCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(indexCmd)
}
