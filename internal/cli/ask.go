package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	askText   string
	askTopK   int
	askJSON   bool
	askPrompt string
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Answer a question from the ingested documents",
	Long: `Retrieve the passages nearest to the question and ask the chat model to
answer from those passages only. When the documents do not hold the
answer the model is instructed to say so.

Examples:
  rag ask -q "What is the capital of France?"
  rag ask -q "How do I rotate keys?" --top-k 8 --json
  rag ask -q "..." --prompt rag_answer@v2-draft`,
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVarP(&askText, "query", "q", "", "question to answer (required)")
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "number of passages (default from config)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output as JSON")
	askCmd.Flags().StringVar(&askPrompt, "prompt", "", "registry prompt as name[@version]")
	askCmd.MarkFlagRequired("query")
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), appOptions{promptRef: askPrompt, chat: true})
	if err != nil {
		return err
	}
	defer a.Close()

	answer, err := a.engine.Ask(cmd.Context(), askText, askTopK)
	if err != nil {
		return servingError("ask", err)
	}

	out := cmd.OutOrStdout()
	if askJSON {
		output, _ := json.MarshalIndent(answer, "", "  ")
		fmt.Fprintln(out, string(output))
		return nil
	}

	fmt.Fprintln(out, answer.Text)
	if len(answer.Sources) > 0 {
		fmt.Fprintf(out, "\nSources:\n")
		for i, s := range answer.Sources {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, truncate(s, 200))
		}
	}
	logger.Debug("answer usage",
		"model", answer.Model,
		"prompt_tokens", answer.Usage.PromptTokens,
		"completion_tokens", answer.Usage.CompletionTokens)
	return nil
}
