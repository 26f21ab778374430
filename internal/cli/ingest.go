package cli

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"groundrag/internal/adapter/fs"
	"groundrag/internal/domain"
)

var (
	ingestDryRun bool
	ingestQuiet  bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [docs]",
	Short: "Embed a document directory and publish a new store generation",
	Long: `Walk the document directory, embed every matching file and publish the
resulting vector store as the new current generation. Queries served by
other processes switch to the new generation on their next request.

The directory defaults to ingest.docs_path from the config.

Examples:
  rag ingest
  rag ingest ./corpus
  rag ingest --dry-run`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false, "build the store without publishing it")
	ingestCmd.Flags().BoolVar(&ingestQuiet, "quiet", false, "disable the progress bar")
}

func runIngest(cmd *cobra.Command, args []string) error {
	root := docsRoot(args)

	var progress fs.ProgressFunc
	if !ingestQuiet {
		progress = newProgressBar()
	}

	a, err := openApp(cmd.Context(), appOptions{progress: progress})
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Ingesting %s...\n", root)

	if ingestDryRun {
		res, err := a.engine.Build(cmd.Context(), root)
		if err != nil {
			return ingestError(err)
		}
		fmt.Fprintf(out, "\nDry run complete:\n")
		fmt.Fprintf(out, "  Documents:      %d\n", len(res.Documents))
		fmt.Fprintf(out, "  Dimension:      %d\n", res.Store.Dimension())
		fmt.Fprintf(out, "  Embedding model: %s\n", a.embedder.ModelName())
		return nil
	}

	summary, err := a.engine.Ingest(cmd.Context(), root)
	if err != nil {
		return ingestError(err)
	}

	fmt.Fprintf(out, "\nIngest complete:\n")
	fmt.Fprintf(out, "  Documents:       %d\n", summary.DocumentCount)
	fmt.Fprintf(out, "  Generation:      %d\n", summary.Generation.ID)
	fmt.Fprintf(out, "  Dimension:       %d\n", summary.Generation.Dimension)
	fmt.Fprintf(out, "  Embedding model: %s\n", summary.Generation.EmbeddingModel)
	if summary.Pruned > 0 {
		fmt.Fprintf(out, "  Pruned:          %d old generation(s)\n", summary.Pruned)
	}
	return nil
}

func ingestError(err error) error {
	switch {
	case errors.Is(err, domain.ErrNoDocuments):
		return fmt.Errorf("no documents matched the include patterns: %w", err)
	case errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("document directory not found: %w", err)
	}
	return fmt.Errorf("ingest failed: %w", err)
}

// newProgressBar returns a progress callback that lazily creates a bar once
// the total is known.
func newProgressBar() fs.ProgressFunc {
	var bar *progressbar.ProgressBar
	var barMu sync.Mutex

	return func(done, total int, path string) {
		barMu.Lock()
		defer barMu.Unlock()

		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Reading[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Fprintln(os.Stderr)
				}),
			)
		}
		bar.Set(done)
	}
}
