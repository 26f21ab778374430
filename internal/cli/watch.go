package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"groundrag/internal/adapter/fs"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch [docs]",
	Short: "Re-ingest whenever the document directory changes",
	Long: `Watch the document directory and publish a new store generation after
each burst of changes. Readers in other processes switch to the new
generation on their next request.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 500*time.Millisecond, "debounce window for batching changes")
}

func runWatch(cmd *cobra.Command, args []string) error {
	root := docsRoot(args)
	if _, err := os.Stat(root); err != nil {
		return fmt.Errorf("document directory not found: %w", err)
	}

	a, err := openApp(cmd.Context(), appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	stateDir := a.cfg.RAGDir(GetRootDir())
	if err := addWatchDirs(watcher, root, stateDir); err != nil {
		return fmt.Errorf("add watch dirs: %w", err)
	}

	walker := fs.NewWalker(a.cfg.Ingest.Includes, a.cfg.Ingest.Excludes)
	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	reingest := func() {
		summary, err := a.engine.Ingest(ctx, root)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "ingest failed: %v\n", err)
			return
		}
		fmt.Fprintf(out, "[generation %d] %d documents\n", summary.Generation.ID, summary.DocumentCount)
	}

	fmt.Fprintf(out, "Watching %s for changes...\n", root)
	reingest()

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create != 0 {
				watchNewDir(watcher, event.Name, stateDir)
			}
			if shouldIgnoreEvent(event, root, stateDir, walker) {
				continue
			}
			logger.Debug("change detected", "path", event.Name, "op", event.Op.String())
			if !pending {
				timer.Reset(watchDebounce)
				pending = true
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "watch error: %v\n", err)
		case <-timer.C:
			pending = false
			reingest()
		}
	}
}

// watchNewDir starts watching a directory created while the watch runs.
// Failures are logged and the watch carries on without it.
func watchNewDir(watcher *fsnotify.Watcher, path, stateDir string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() || isUnder(path, stateDir) {
		return
	}
	if err := addWatchDirs(watcher, path, stateDir); err != nil {
		logger.Warn("failed to watch new directory", "path", path, "error", err)
	}
}

func addWatchDirs(watcher *fsnotify.Watcher, root, stateDir string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}

		if info.IsDir() {
			base := filepath.Base(path)
			if path != root && (strings.HasPrefix(base, ".") || isUnder(path, stateDir)) {
				return filepath.SkipDir
			}
			return watcher.Add(path)
		}
		return nil
	})
}

// shouldIgnoreEvent drops events for the state directory, for files the
// include/exclude patterns would not ingest and for ops that cannot change
// content. Removes and renames of directories are kept since their files
// vanish without events of their own.
func shouldIgnoreEvent(event fsnotify.Event, root, stateDir string, walker *fs.Walker) bool {
	if isUnder(event.Name, stateDir) {
		return true
	}

	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return true
	}

	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		return false
	}

	rel, err := filepath.Rel(root, event.Name)
	if err != nil {
		return true
	}
	if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
		return false
	}
	return !walker.Matches(rel)
}

func isUnder(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
