package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ekinsenler/insurag/internal/config"
	"github.com/ekinsenler/insurag/internal/errs"
	"github.com/ekinsenler/insurag/internal/ingest"
	"github.com/ekinsenler/insurag/internal/model"
	"github.com/ekinsenler/insurag/internal/observability"
	"github.com/ekinsenler/insurag/internal/retrieval"
	"github.com/ekinsenler/insurag/internal/store"
	"github.com/ekinsenler/insurag/internal/store/memory"
	"github.com/ekinsenler/insurag/internal/store/postgres"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "insurag",
		Short: "Ingestion and retrieval engine for an insurance document corpus",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path")

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the schema, uniqueness constraints and vector indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(configPath)
		},
	}

	var (
		corpusPath string
		batchSize  int
	)
	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load insurers, documents and chunks from a JSON corpus file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(configPath, corpusPath, batchSize)
		},
	}
	ingestCmd.Flags().StringVar(&corpusPath, "file", "", "Corpus JSON file")
	ingestCmd.Flags().IntVar(&batchSize, "batch-size", ingest.DefaultBatchSize, "Chunk batch size")
	_ = ingestCmd.MarkFlagRequired("file")

	var (
		embeddingPath string
		types         []string
		threshold     float64
		limit         int
	)
	searchCmd := &cobra.Command{
		Use:   "search",
		Short: "Run a similarity search with a query embedding from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(configPath, embeddingPath, types, threshold, limit)
		},
	}
	searchCmd.Flags().StringVar(&embeddingPath, "embedding-file", "", "JSON file holding the 768-dim query embedding")
	searchCmd.Flags().StringSliceVar(&types, "types", nil, "Insurance type filter (OR across values)")
	searchCmd.Flags().Float64Var(&threshold, "threshold", 0, "Minimum similarity (0 disables)")
	searchCmd.Flags().IntVar(&limit, "limit", 0, "Result cap (0 uses the configured default)")
	_ = searchCmd.MarkFlagRequired("embedding-file")

	rootCmd.AddCommand(migrateCmd, ingestCmd, searchCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func buildLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return postgres.New(cfg.Store.DSN)
	case "", "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// openAudit builds the audit logger when the config enables it. A nil
// logger is a valid no-op for the engines.
func openAudit(cfg *config.Config) (*observability.AuditLogger, error) {
	if !cfg.Audit.Enabled {
		return nil, nil
	}
	return observability.NewAuditLogger(&observability.AuditConfig{
		Enabled:    true,
		OutputPath: cfg.Audit.Path,
	})
}

func initTracing(ctx context.Context, cfg *config.Config) (*observability.TracerProvider, error) {
	return observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:    "insurag",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Otel.Environment,
		OTLPEndpoint:   cfg.Otel.Endpoint,
		SampleRate:     cfg.Otel.SampleRate,
	})
}

func runMigrate(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Store.Driver != "postgres" {
		return fmt.Errorf("migrate requires the postgres store driver, got %q", cfg.Store.Driver)
	}

	audit, err := openAudit(cfg)
	if err != nil {
		return err
	}
	defer audit.Close()

	st, err := postgres.New(cfg.Store.DSN)
	audit.LogStore(observability.AuditEventStoreConnect, cfg.Store.Driver, err)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	err = st.Migrate(ctx)
	audit.LogStore(observability.AuditEventStoreMigrate, cfg.Store.Driver, err)
	if err != nil {
		return err
	}
	fmt.Println("Schema and indexes are up to date.")
	return nil
}

// corpusFile is the JSON shape accepted by the ingest command: a list
// of insurers, each with its documents, each with its chunks.
type corpusFile []corpusEntry

type corpusEntry struct {
	Insurer   model.InsurerInput `json:"insurer"`
	Documents []corpusDocument   `json:"documents"`
}

type corpusDocument struct {
	model.DocumentInput
	Chunks []model.ChunkInput `json:"chunks"`
}

func runIngest(configPath, corpusPath string, batchSize int) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := buildLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx := context.Background()
	tp, err := initTracing(ctx, cfg)
	if err != nil {
		return err
	}
	defer tp.Shutdown(ctx)

	audit, err := openAudit(cfg)
	if err != nil {
		return err
	}
	defer audit.Close()

	st, err := openStore(cfg)
	audit.LogStore(observability.AuditEventStoreConnect, cfg.Store.Driver, err)
	if err != nil {
		return err
	}
	defer st.Close()

	data, err := os.ReadFile(corpusPath)
	if err != nil {
		return fmt.Errorf("reading corpus file: %w", err)
	}
	var corpus corpusFile
	if err := json.Unmarshal(data, &corpus); err != nil {
		return fmt.Errorf("parsing corpus file: %w", err)
	}

	engine := ingest.New(st, ingest.WithLogger(logger), ingest.WithAudit(audit))
	started := time.Now()
	inserted, failed, err := ingestCorpus(ctx, st, engine, corpus, batchSize, logger)
	if err != nil {
		return err
	}

	fmt.Printf("Ingest finished in %s: %d chunks inserted, %d failed.\n",
		time.Since(started).Round(time.Millisecond), inserted, failed)
	return nil
}

// ingestCorpus walks the parsed corpus, creating insurers and documents
// as needed and bulk-inserting each document's chunks. Existing
// insurers are reused; existing documents are skipped.
func ingestCorpus(ctx context.Context, st store.Store, engine *ingest.Engine, corpus corpusFile, batchSize int, logger *slog.Logger) (inserted, failed int, err error) {
	for _, entry := range corpus {
		insurer, err := engine.InsertInsurer(ctx, entry.Insurer)
		if err != nil {
			var dup *errs.DuplicateError
			if !errors.As(err, &dup) {
				return inserted, failed, err
			}
			// Already ingested; attach new documents to it.
			insurer, err = st.GetInsurerByName(ctx, entry.Insurer.Name)
			if err != nil {
				return inserted, failed, fmt.Errorf("fetching existing insurer %q: %w", entry.Insurer.Name, err)
			}
			if insurer == nil {
				return inserted, failed, fmt.Errorf("insurer %q was reported as duplicate but no longer exists", entry.Insurer.Name)
			}
		}

		for _, docEntry := range entry.Documents {
			docInput := docEntry.DocumentInput
			docInput.InsurerID = insurer.ID
			doc, err := engine.InsertDocument(ctx, docInput)
			if err != nil {
				var dup *errs.DuplicateError
				if errors.As(err, &dup) {
					logger.Warn("document already exists, skipping", "title", docInput.Title)
					continue
				}
				return inserted, failed, err
			}

			chunks := make([]model.ChunkInput, len(docEntry.Chunks))
			for i, c := range docEntry.Chunks {
				c.DocumentID = doc.ID
				c.InsurerID = insurer.ID
				chunks[i] = c
			}
			result, err := engine.BulkInsertChunks(ctx, chunks, batchSize)
			if err != nil {
				return inserted, failed, err
			}
			inserted += result.Inserted
			failed += result.Failed
			for _, bulkErr := range result.Errors {
				logger.Warn("chunk failure", "title", doc.Title,
					"first", bulkErr.First, "last", bulkErr.Last, "reason", bulkErr.Reason)
			}
		}
	}
	return inserted, failed, nil
}

func runSearch(configPath, embeddingPath string, types []string, threshold float64, limit int) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := buildLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx := context.Background()
	tp, err := initTracing(ctx, cfg)
	if err != nil {
		return err
	}
	defer tp.Shutdown(ctx)

	audit, err := openAudit(cfg)
	if err != nil {
		return err
	}
	defer audit.Close()

	st, err := openStore(cfg)
	audit.LogStore(observability.AuditEventStoreConnect, cfg.Store.Driver, err)
	if err != nil {
		return err
	}
	defer st.Close()

	data, err := os.ReadFile(embeddingPath)
	if err != nil {
		return fmt.Errorf("reading embedding file: %w", err)
	}
	var embedding []float32
	if err := json.Unmarshal(data, &embedding); err != nil {
		return fmt.Errorf("parsing embedding file: %w", err)
	}

	opts := retrieval.Options{
		Limit:          limit,
		InsuranceTypes: types,
	}
	if threshold > 0 {
		t := float32(threshold)
		opts.Threshold = &t
	}

	engineOpts := []retrieval.Option{retrieval.WithLogger(logger), retrieval.WithAudit(audit)}
	if cfg.Search.DefaultLimit > 0 {
		engineOpts = append(engineOpts, retrieval.WithDefaultLimit(cfg.Search.DefaultLimit))
	}
	engine := retrieval.New(st, engineOpts...)

	results, err := engine.Search(ctx, embedding, opts)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("No matching chunks.")
		return nil
	}
	for i, r := range results {
		fmt.Printf("%2d. similarity=%.4f document=%s index=%d\n", i+1, r.Similarity, r.DocumentID, r.ChunkIndex)
		fmt.Printf("    %s\n", truncate(r.ChunkText, 160))
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
