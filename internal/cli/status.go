package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"groundrag/internal/adapter/store"
	"groundrag/internal/domain"
)

var statusJSON bool

type statusReport struct {
	Current      *domain.Generation     `json:"current,omitempty"`
	Generations  []domain.Generation    `json:"generations"`
	Migration    *store.MigrationResult `json:"migration"`
	Embedding    domain.Capabilities    `json:"embedding"`
	Generation   domain.Capabilities    `json:"generation"`
	EmbedModel   string                 `json:"embedding_model"`
	ChatModel    string                 `json:"chat_model"`
	AnswerPrompt string                 `json:"answer_prompt"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show published generations and backend capabilities",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	report := statusReport{
		Embedding:    a.embedder.Capabilities(),
		Generation:   a.generator.Capabilities(),
		EmbedModel:   a.embedder.ModelName(),
		ChatModel:    a.generator.ModelName(),
		AnswerPrompt: a.template.Label(),
	}

	cur, err := a.manifest.Current()
	switch {
	case err == nil:
		report.Current = &cur
	case !errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("failed to read manifest: %w", err)
	}

	if report.Generations, err = a.manifest.Generations(); err != nil {
		return fmt.Errorf("failed to list generations: %w", err)
	}
	if report.Migration, err = a.manifest.CheckMigration(a.cfg); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if statusJSON {
		data, _ := json.MarshalIndent(report, "", "  ")
		fmt.Fprintln(out, string(data))
		return nil
	}

	if report.Current == nil {
		fmt.Fprintln(out, "No store published. Run 'rag ingest' first.")
	} else {
		fmt.Fprintf(out, "Current generation: %d\n", cur.ID)
		fmt.Fprintf(out, "  Documents:       %d\n", cur.DocumentCount)
		fmt.Fprintf(out, "  Dimension:       %d\n", cur.Dimension)
		fmt.Fprintf(out, "  Embedding model: %s\n", cur.EmbeddingModel)
		fmt.Fprintf(out, "  Published:       %s\n", cur.CreatedAt.Format("2006-01-02 15:04:05"))
	}

	if len(report.Generations) > 0 {
		fmt.Fprintf(out, "\nRetained generations:\n")
		for _, g := range report.Generations {
			fmt.Fprintf(out, "  %4d  %s  %d docs\n", g.ID, g.CreatedAt.Format("2006-01-02 15:04:05"), g.DocumentCount)
		}
	}

	m := report.Migration
	switch {
	case m.NeedsRebuild:
		fmt.Fprintf(out, "\nRebuild needed: %s. Run 'rag ingest'.\n", m.Reason)
	case m.NeedsMigration:
		fmt.Fprintf(out, "\nManifest schema v%d, next ingest upgrades to v%d.\n", m.OldVersion, m.NewVersion)
	}

	fmt.Fprintf(out, "\nEmbedding: %s (batch %d)\n", report.EmbedModel, report.Embedding.MaxBatch)
	fmt.Fprintf(out, "Chat:      %s (json mode: %t)\n", report.ChatModel, report.Generation.JSONMode)
	fmt.Fprintf(out, "Answer prompt: %s\n", report.AnswerPrompt)
	return nil
}
