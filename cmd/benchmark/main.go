package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"groundrag/config"
	"groundrag/internal/adapter/embedding"
	"groundrag/internal/adapter/llm"
	"groundrag/internal/adapter/store"
	"groundrag/internal/usecase"
)

func main() {
	rootDir := flag.String("dir", ".", "Project directory holding rag.yaml and the store")
	query := flag.String("q", "", "Query to test")
	topK := flag.Int("k", 10, "Number of results")
	relevant := flag.String("relevant", "", "Comma-separated file names expected in the results")
	flag.Parse()

	if *query == "" {
		fmt.Println("Usage: go run cmd/benchmark/main.go -dir ./project -q \"query\" [-relevant a.txt,b.txt]")
		fmt.Println("\nTests:")
		fmt.Println("  1. Embedding infrastructure (model connection, published store)")
		fmt.Println("  2. Semantic similarity (query vs results)")
		fmt.Println("  3. Retrieval quality against expected files (precision, recall, MRR)")
		os.Exit(1)
	}

	if err := config.LoadEnv(*rootDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading .env: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.LoadFromDir(*rootDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	cfg.ApplyEnv()

	manifest, err := store.OpenManifest(cfg.ManifestPath(*rootDir))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening manifest: %v\n", err)
		os.Exit(1)
	}
	defer manifest.Close()

	ctx := context.Background()
	embedder, err := embedding.New(cfg.Embedding, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Semantic search not available: %v\n", err)
		os.Exit(1)
	}
	// Search never calls the generator.
	engine := usecase.NewEngine(cfg, manifest, cfg.GenerationsDir(*rootDir), embedder, llm.NewEchoGenerator())

	gen, err := engine.Current()
	if err != nil {
		fmt.Fprintf(os.Stderr, "No usable store: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("SEMANTIC SEARCH BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Generation: %d (%d documents)\n", gen.ID, gen.DocumentCount)
	fmt.Printf("Model: %s (%s)\n", cfg.Embedding.Model, cfg.Embedding.Provider)
	fmt.Printf("Dimension: %d\n", gen.Dimension)
	fmt.Println()

	fmt.Printf("Query: \"%s\"\n", *query)
	fmt.Println(strings.Repeat("-", 70))

	start := time.Now()
	results, err := engine.Search(ctx, *query, *topK)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search error: %v\n", err)
		os.Exit(1)
	}
	elapsed := time.Since(start)
	if len(results) == 0 {
		fmt.Println("No results.")
		return
	}

	sources, _ := engine.Sources()
	fmt.Printf("Top %d semantic matches in %s:\n\n", len(results), elapsed.Round(time.Millisecond))

	var paths []string
	totalScore := 0.0
	for i, r := range results {
		path := fmt.Sprintf("#%d", r.Position)
		if r.Position < len(sources) {
			path = sources[r.Position]
		}
		paths = append(paths, path)

		preview := r.Text
		if len(preview) > 150 {
			preview = preview[:150] + "..."
		}
		preview = strings.ReplaceAll(preview, "\n", " ")

		similarity := r.Score
		totalScore += similarity

		rating := "LOW"
		if similarity > 0.7 {
			rating = "HIGH"
		} else if similarity > 0.5 {
			rating = "GOOD"
		} else if similarity > 0.3 {
			rating = "OK"
		}

		fmt.Printf("%d. [%s %.3f] %s\n", i+1, rating, similarity, shortPath(path))
		fmt.Printf("   %s\n\n", preview)
	}

	avgScore := totalScore / float64(len(results))
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("QUALITY METRICS:\n")
	fmt.Printf("  Average similarity: %.3f\n", avgScore)
	fmt.Printf("  Top-1 similarity:   %.3f\n", results[0].Score)

	if *relevant != "" {
		score := usecase.ScoreRetrieval(paths, strings.Split(*relevant, ","))
		fmt.Printf("  Precision@%d:       %.3f\n", len(paths), score.Precision)
		fmt.Printf("  Recall@%d:          %.3f\n", len(paths), score.Recall)
		fmt.Printf("  Reciprocal rank:    %.3f\n", score.ReciprocalRank)
	}

	if avgScore > 0.5 {
		fmt.Println("  Status: GOOD - semantic search working well")
	} else if avgScore > 0.3 {
		fmt.Println("  Status: OK - results are somewhat related")
	} else {
		fmt.Println("  Status: POOR - may need better embeddings or re-ingesting")
	}
}

func shortPath(path string) string {
	parts := strings.Split(path, "/")
	if len(parts) > 2 {
		return parts[len(parts)-1]
	}
	return path
}
