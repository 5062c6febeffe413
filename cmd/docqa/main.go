// Package main provides the docqa CLI for ingesting and querying documents.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mike-a-ellis/docqa/internal/app"
	"github.com/mike-a-ellis/docqa/internal/config"
	ghclient "github.com/mike-a-ellis/docqa/internal/github"
	"github.com/mike-a-ellis/docqa/internal/ingest"
	"github.com/mike-a-ellis/docqa/internal/qa"
	"github.com/mike-a-ellis/docqa/internal/search"
)

var (
	configPath string
	collection string
	limit      int
)

var rootCmd = &cobra.Command{
	Use:   "docqa",
	Short: "Document question answering tool",
	Long: `CLI tool for ingesting documents into the vector store and asking
questions about them.

Configuration is read from --config, $DOCQA_CONFIG or ./config.yaml.
Environment variables override file values:
  QDRANT_HOST          Qdrant hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  EMBEDDING_BASE_URL   OpenAI-compatible embedding endpoint
  GENERATION_BASE_URL  OpenAI-compatible chat endpoint
  GITHUB_TOKEN         GitHub token for higher rate limits (optional)`,
	SilenceUsage: true,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Extract, chunk, embed and store local files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIngest,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Semantic search over stored chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from stored documents",
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "List stored documents",
	Args:  cobra.NoArgs,
	RunE:  runDocuments,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <document_id>",
	Short: "Delete every chunk of a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var syncCmd = &cobra.Command{
	Use:   "sync-github",
	Short: "Ingest supported files from a GitHub repository",
	Long: `Downloads every supported file under the configured repository path
and ingests it. Document ids are derived from the repository path, so a
re-sync replaces earlier versions instead of duplicating them.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVarP(&collection, "collection", "c", "", "collection name (default from config)")
	searchCmd.Flags().IntVarP(&limit, "limit", "n", search.DefaultLimit, "maximum number of results")
	askCmd.Flags().IntVarP(&limit, "limit", "n", qa.DefaultMaxResults, "number of chunks used as context")

	rootCmd.AddCommand(ingestCmd, searchCmd, askCmd, documentsCmd, deleteCmd, syncCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	cfg, _, err := config.LoadDefault()
	return cfg, err
}

func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("Failed to load config: %w", err)
	}
	logger := app.NewLogger(cfg, os.Stderr)
	slog.SetDefault(logger)
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("Failed to initialize: %w", err)
	}
	return a, nil
}

func targetCollection(a *app.App) string {
	if collection != "" {
		return collection
	}
	return a.Store.CollectionName()
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	start := time.Now()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var failed int
	for _, path := range args {
		if !a.Pipeline.Supports(path) {
			fmt.Printf("  - %s: unsupported file type\n", path)
			failed++
			continue
		}
		result, err := a.Pipeline.Run(ctx, ingest.Job{
			FilePath:   path,
			FileName:   filepath.Base(path),
			Collection: targetCollection(a),
		})
		if err != nil {
			fmt.Printf("  - %s: %v\n", path, err)
			failed++
			continue
		}
		fmt.Printf("  %s -> %s (%d chunks, %d replaced)\n", path, result.DocumentID, result.Stored, result.Replaced)
	}

	fmt.Println()
	fmt.Printf("Ingested %d/%d files in %s\n", len(args)-failed, len(args), time.Since(start).Round(time.Millisecond))
	if failed > 0 {
		return fmt.Errorf("%d files failed", failed)
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.Search.Search(ctx, search.Request{
		Query:      args[0],
		Limit:      limit,
		Collection: collection,
	})
	if err != nil {
		return fmt.Errorf("Search failed: %w", err)
	}
	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}
	for i, r := range results {
		fmt.Printf("%d. [%.3f] %s #%d\n", i+1, r.Score, r.DocumentID, r.ChunkIndex)
		fmt.Printf("   %s\n", preview(r.Text, 160))
	}
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	resp := a.QA.Ask(ctx, qa.Request{
		Question:   args[0],
		Collection: collection,
		MaxResults: limit,
	})
	if resp.Error != "" {
		return fmt.Errorf("Question failed: %s", resp.Error)
	}
	fmt.Println(resp.Answer)
	fmt.Println()
	fmt.Printf("(%d context chunks, %.2fs)\n", resp.ContextCount, resp.ProcessingTime)
	return nil
}

func runDocuments(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	store := a.Search.Store(collection)
	ids, err := store.ListDocumentIDs(ctx)
	if err != nil {
		return fmt.Errorf("Failed to list documents: %w", err)
	}
	fmt.Printf("%d documents in %s\n", len(ids), store.CollectionName())
	for _, id := range ids {
		chunks, err := store.CountDocumentChunks(ctx, id)
		if err != nil {
			return fmt.Errorf("Failed to count chunks of %s: %w", id, err)
		}
		fmt.Printf("  %s (%d chunks)\n", id, chunks)
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	deleted, err := a.Search.Store(collection).DeleteDocument(ctx, args[0])
	if err != nil {
		return fmt.Errorf("Failed to delete %s: %w", args[0], err)
	}
	fmt.Printf("Deleted %d chunks of %s\n", deleted, args[0])
	return nil
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	start := time.Now()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	gh := a.Config.GitHub
	if gh.Owner == "" || gh.Repo == "" {
		return fmt.Errorf("github.owner and github.repo must be configured")
	}
	target := gh.Collection
	if collection != "" {
		target = collection
	}

	fmt.Println("Starting sync...")
	fmt.Println()

	client, err := ghclient.NewClient(ghclient.ClientOptions{Token: gh.Token})
	if err != nil {
		return fmt.Errorf("Failed to create GitHub client: %w", err)
	}
	fetcher := ghclient.NewFetcher(client, gh.Owner, gh.Repo, gh.Path, a.Registry.Supports)
	syncer := ghclient.NewSyncer(fetcher, a.Pipeline, target, a.Logger)

	fmt.Printf("Indexing %s/%s from GitHub...\n", fetcher.Repository(), gh.Path)
	result, err := syncer.SyncAll(ctx)
	if err != nil {
		return fmt.Errorf("Sync failed: %w", err)
	}

	fmt.Println()
	fmt.Println("Sync complete!")
	fmt.Printf("  Files: %d/%d\n", result.SuccessfulFiles, result.TotalFiles)
	fmt.Printf("  Chunks: %d\n", result.TotalChunks)
	fmt.Printf("  Duration: %s\n", result.Duration.Round(time.Second))
	fmt.Printf("  Commit: %s\n", result.CommitSHA)

	if len(result.FailedFiles) > 0 {
		fmt.Println()
		fmt.Println("Failed files:")
		for _, failed := range result.FailedFiles {
			fmt.Printf("  - %s: %s\n", failed.Path, failed.Reason)
		}
	}

	fmt.Println()
	fmt.Printf("Total time: %s\n", time.Since(start).Round(time.Second))
	return nil
}

func preview(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return string(runes)
	}
	return string(runes[:max]) + "..."
}
