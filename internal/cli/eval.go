package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"groundrag/internal/adapter/prompts"
	"groundrag/internal/usecase"
)

var (
	evalTask        string
	evalData        string
	evalOutput      string
	evalJudgePrompt string
	evalChatPrompt  string
	evalTopK        int
	evalJSON        bool
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Score answers with an LLM judge",
	Long: `Answer every case in a JSONL file and have the chat model score each answer
for relevance and faithfulness on a 1-5 scale.

Each line holds {"input": ...} or {"question": ..., "contexts": [...]}.
RAG cases without contexts are answered from the current store generation.

Examples:
  rag eval --task rag --data data/eval/rag.jsonl
  rag eval --task chat --data data/eval/chat.jsonl --output chat_report.md`,
	RunE: runEval,
}

func init() {
	rootCmd.AddCommand(evalCmd)
	evalCmd.Flags().StringVar(&evalTask, "task", "rag", "evaluation task: rag or chat")
	evalCmd.Flags().StringVar(&evalData, "data", "", "JSONL file with evaluation cases (required)")
	evalCmd.Flags().StringVarP(&evalOutput, "output", "o", "", "markdown report path (default <task>_report.md)")
	evalCmd.Flags().StringVar(&evalJudgePrompt, "judge-prompt", "judge", "registry prompt for the judge as name[@version]")
	evalCmd.Flags().StringVar(&evalChatPrompt, "chat-prompt", "assistant_default", "registry prompt for chat cases as name[@version]")
	evalCmd.Flags().IntVarP(&evalTopK, "top-k", "k", 0, "passages retrieved for RAG cases without contexts (default from config)")
	evalCmd.Flags().BoolVar(&evalJSON, "json", false, "print the report as JSON")
	evalCmd.MarkFlagRequired("data")
}

func runEval(cmd *cobra.Command, args []string) error {
	if evalTask != "rag" && evalTask != "chat" {
		return fmt.Errorf("unknown task %q: expected rag or chat", evalTask)
	}

	cases, err := usecase.ReadCases(evalData)
	if err != nil {
		return fmt.Errorf("failed to read cases: %w", err)
	}

	a, err := openApp(cmd.Context(), appOptions{chat: true})
	if err != nil {
		return err
	}
	defer a.Close()

	judgePrompt, err := a.registry.Get(prompts.ParseRef(evalJudgePrompt))
	if err != nil {
		return fmt.Errorf("failed to resolve judge prompt: %w", err)
	}
	judge := usecase.NewJudgeUseCase(a.generator, judgePrompt.System, logger)

	opts := []usecase.EvalOption{
		usecase.WithEvalTemplate(a.template),
		usecase.WithEvalLogger(logger),
	}

	var report *usecase.Report
	switch evalTask {
	case "rag":
		if _, err := a.engine.Current(); err == nil {
			topK := evalTopK
			if topK == 0 {
				topK = a.cfg.Retrieve.TopK
			}
			opts = append(opts, usecase.WithSearcher(a.engine, topK))
		} else {
			logger.Debug("no published store, cases must carry contexts", "error", err)
		}
		report, err = usecase.NewEvalUseCase(a.generator, judge, opts...).RunRAG(cmd.Context(), cases)
	case "chat":
		chatPrompt, perr := a.registry.Get(prompts.ParseRef(evalChatPrompt))
		if perr != nil {
			return fmt.Errorf("failed to resolve chat prompt: %w", perr)
		}
		opts = append(opts, usecase.WithChatSystem(chatPrompt.System))
		report, err = usecase.NewEvalUseCase(a.generator, judge, opts...).RunChat(cmd.Context(), cases)
	}
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	output := evalOutput
	if output == "" {
		output = evalTask + "_report.md"
	}
	if !filepath.IsAbs(output) {
		output = filepath.Join(GetRootDir(), output)
	}
	if err := os.WriteFile(output, []byte(report.Markdown()), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	out := cmd.OutOrStdout()
	if evalJSON {
		data, _ := json.MarshalIndent(report, "", "  ")
		fmt.Fprintln(out, string(data))
		return nil
	}

	fmt.Fprintf(out, "Evaluated %d case(s)\n", len(report.Results))
	fmt.Fprintf(out, "  Avg relevance:    %.2f\n", report.AvgRelevance)
	fmt.Fprintf(out, "  Avg faithfulness: %.2f\n", report.AvgFaithfulness)
	if report.ParseErrors > 0 {
		fmt.Fprintf(out, "  Unparsed verdicts: %d\n", report.ParseErrors)
	}
	fmt.Fprintf(out, "Wrote %s\n", output)
	return nil
}
