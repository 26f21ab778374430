package cli

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"groundrag/internal/tui"
)

var (
	chatTopK   int
	chatPrompt string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Ask questions interactively",
	Long: `Open a terminal UI that answers each question from the current store
generation. The engine picks up newly published generations between
questions, so 'rag ingest' or 'rag watch' may run alongside.`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().IntVarP(&chatTopK, "top-k", "k", 0, "number of passages (default from config)")
	chatCmd.Flags().StringVar(&chatPrompt, "prompt", "", "registry prompt as name[@version]")
}

func runChat(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), appOptions{promptRef: chatPrompt, chat: true})
	if err != nil {
		return err
	}
	defer a.Close()

	gen, err := a.engine.Current()
	if err != nil {
		return servingError("chat", err)
	}
	summary := fmt.Sprintf("generation %d | %d documents | %s / %s",
		gen.ID, gen.DocumentCount, gen.EmbeddingModel, a.generator.ModelName())

	model := tui.New(cmd.Context(), a.engine, chatTopK, summary)
	_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
	return err
}
