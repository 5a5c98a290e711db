package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var retrieveTopK int

var retrieveCmd = &cobra.Command{
	Use:   "retrieve <query>",
	Short: "Rank the knowledge base against a query",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRetrieve,
}

func init() {
	retrieveCmd.Flags().IntVar(&retrieveTopK, "topk", 0, "number of documents to show (overrides retrieval.top_k)")
	rootCmd.AddCommand(retrieveCmd)
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	a, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	defer a.shutdown(ctx)

	topK := a.cfg.Retrieval.TopK
	if retrieveTopK > 0 {
		topK = retrieveTopK
	}

	retriever := a.newRetriever()
	defer retriever.Reset()

	if err := a.ingestKnowledge(ctx, retriever); err != nil {
		return err
	}

	results, err := retriever.Search(ctx, strings.Join(args, " "), topK)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for i, doc := range results {
		fmt.Fprintf(out, "%d. [%.4f] %s\n", i+1, doc.Score, excerpt(doc.Content, 120))
	}
	return nil
}

func excerpt(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
