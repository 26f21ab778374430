package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"groundrag/internal/domain"
)

var (
	queryText string
	queryTopK int
	queryJSON bool
)

// queryResult is one hit as shown to the user.
type queryResult struct {
	Position int     `json:"position"`
	Path     string  `json:"path,omitempty"`
	Score    float64 `json:"score"`
	Text     string  `json:"text"`
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Show the passages nearest to a question",
	Long: `Embed the question and return the top-k most similar documents from the
current store generation, without calling a chat model.

Examples:
  rag query -q "capital of france"
  rag query -q "release process" --top-k 10 --json`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "search query (required)")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results (default from config)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	queryCmd.MarkFlagRequired("query")
}

func runQuery(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	hits, err := a.engine.Search(cmd.Context(), queryText, queryTopK)
	if err != nil {
		return servingError("search", err)
	}

	// Generations published without source paths still show positions.
	sources, _ := a.engine.Sources()

	results := make([]queryResult, 0, len(hits))
	for _, h := range hits {
		r := queryResult{Position: h.Position, Score: h.Score, Text: h.Text}
		if h.Position < len(sources) {
			r.Path = sources[h.Position]
		}
		results = append(results, r)
	}

	out := cmd.OutOrStdout()
	if queryJSON {
		output, _ := json.MarshalIndent(results, "", "  ")
		fmt.Fprintln(out, string(output))
		return nil
	}

	if len(results) == 0 {
		fmt.Fprintln(out, "No results found.")
		return nil
	}
	fmt.Fprintf(out, "Found %d results for: %s\n\n", len(results), queryText)
	for i, r := range results {
		label := fmt.Sprintf("#%d", r.Position)
		if r.Path != "" {
			label = r.Path
		}
		fmt.Fprintf(out, "--- [%d] %s (score: %.3f) ---\n", i+1, label, r.Score)
		fmt.Fprintln(out, truncate(r.Text, 500))
		fmt.Fprintln(out)
	}
	return nil
}

// servingError turns engine errors into messages that say what to do next.
func servingError(op string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("no store published yet, run 'rag ingest' first: %w", err)
	}
	return fmt.Errorf("%s failed: %w", op, err)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
