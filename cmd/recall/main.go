package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/krsache/recall/internal/config"
	"github.com/krsache/recall/internal/embedding"
	"github.com/krsache/recall/internal/observability"
	"github.com/krsache/recall/internal/retrieval"
	"github.com/krsache/recall/internal/retry"
	"github.com/krsache/recall/internal/vector"
)

func main() {
	var (
		configPath string
		limit      int
		inputPath  string
		jsonOutput bool
	)

	rootCmd := &cobra.Command{
		Use:   "recall",
		Short: "Hierarchical retrieval over a vector-indexed knowledge base",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/recall.yaml", "Config file path")

	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the knowledge base",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(configPath, strings.Join(args, " "), limit, jsonOutput)
		},
	}
	searchCmd.Flags().IntVar(&limit, "limit", retrieval.DefaultLimit, "Maximum results to return")
	searchCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")

	digestCmd := &cobra.Command{
		Use:   "digest <query>",
		Short: "Search and print a numbered digest with combined context",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDigest(configPath, strings.Join(args, " "), limit)
		},
	}
	digestCmd.Flags().IntVar(&limit, "limit", retrieval.DefaultLimit, "Maximum results to return")

	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Embed and upsert pre-chunked records from a JSONL file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(configPath, inputPath)
		},
	}
	ingestCmd.Flags().StringVar(&inputPath, "file", "", "Path to chunks JSONL file")
	_ = ingestCmd.MarkFlagRequired("file")

	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "Show the configured embedding model chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModels(configPath)
		},
	}

	rootCmd.AddCommand(searchCmd, digestCmd, ingestCmd, modelsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app bundles the wired-up service and its dependencies for one command run.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	gateway *embedding.Gateway
	repo    *vector.QdrantRepository
	service *retrieval.Service
	tracer  *observability.TracerProvider
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}

	tracer, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:    "recall",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Telemetry.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing tracing: %w", err)
	}

	policy := retry.DefaultPolicy()
	policy.MaxAttempts = cfg.Embedding.MaxRetries
	policy.Delay = cfg.Embedding.RetryDelay

	client := embedding.NewHFClient(cfg.Embedding.APIKey, cfg.Embedding.Endpoint, cfg.Embedding.Timeout)
	gateway := embedding.NewGateway(client, cfg.Embedding.PrimaryModel, cfg.Embedding.FallbackModels, policy, logger)

	repo, err := vector.NewQdrant(cfg.Vector.Host, cfg.Vector.Port, cfg.Vector.Collection,
		cfg.Vector.Timeout, retry.DefaultPolicy(), logger)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		gateway: gateway,
		repo:    repo,
		service: retrieval.NewService(gateway, repo, logger),
		tracer:  tracer,
	}, nil
}

func (a *app) close(ctx context.Context) {
	if err := a.repo.Close(); err != nil {
		a.logger.Warn("closing vector store", zap.Error(err))
	}
	if err := a.tracer.Shutdown(ctx); err != nil {
		a.logger.Warn("shutting down tracer", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zc zap.Config
	if cfg.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func runSearch(configPath, query string, limit int, jsonOutput bool) error {
	ctx := context.Background()
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	results, err := a.service.Search(ctx, query, limit)
	if err != nil {
		return err
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(results, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}
	for i, r := range results {
		fmt.Printf("%d. [%.3f] %s (%s)\n", i+1, r.RelevanceScore, r.Source, r.ChunkType)
		if r.SectionTitle != "" {
			fmt.Printf("   section: %s\n", r.SectionTitle)
		}
		fmt.Printf("   %s\n", firstLine(r.Text))
	}
	return nil
}

func runDigest(configPath, query string, limit int) error {
	ctx := context.Background()
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	summary, err := a.service.SearchWithSummary(ctx, query, limit)
	if err != nil {
		return err
	}

	fmt.Println(summary.Digest)
	if summary.CombinedContext != "" {
		fmt.Println()
		fmt.Println(summary.CombinedContext)
	}
	return nil
}

// chunkRecord is one line of the ingest JSONL file, as produced by the
// external chunking pipeline.
type chunkRecord struct {
	ChunkID      string              `json:"chunk_id"`
	ParentID     string              `json:"parent_id"`
	Content      string              `json:"content"`
	FullText     string              `json:"full_text"`
	Summary      string              `json:"summary"`
	SectionTitle string              `json:"section_title"`
	Level        int                 `json:"level"`
	Entities     map[string][]string `json:"entities"`
	Source       string              `json:"source"`
}

func runIngest(configPath, inputPath string) error {
	ctx := context.Background()
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	f, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open chunks file: %w", err)
	}
	defer f.Close()

	var chunks []vector.Chunk
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec chunkRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			a.logger.Warn("skipping malformed chunk record",
				zap.Int("line", line), zap.Error(err))
			continue
		}
		chunks = append(chunks, vector.Chunk{
			ChunkID:      rec.ChunkID,
			ParentID:     rec.ParentID,
			Content:      rec.Content,
			FullText:     rec.FullText,
			Summary:      rec.Summary,
			SectionTitle: rec.SectionTitle,
			Level:        rec.Level,
			Entities:     rec.Entities,
			Source:       rec.Source,
		})
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read chunks file: %w", err)
	}
	if len(chunks) == 0 {
		return fmt.Errorf("no chunks found in %s", inputPath)
	}
	fmt.Printf("Loaded %d chunks from %s\n", len(chunks), inputPath)

	if err := a.repo.EnsureCollection(ctx); err != nil {
		return err
	}

	const batchSize = 64
	start := time.Now()
	for lo := 0; lo < len(chunks); lo += batchSize {
		hi := lo + batchSize
		if hi > len(chunks) {
			hi = len(chunks)
		}
		batch := chunks[lo:hi]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}
		vectors, err := a.gateway.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embedding batch %d-%d: %w", lo, hi, err)
		}
		for i := range batch {
			batch[i].Embedding = vectors[i]
		}

		if err := a.repo.Upsert(ctx, batch); err != nil {
			return fmt.Errorf("upserting batch %d-%d: %w", lo, hi, err)
		}
		fmt.Printf("  upserted %d/%d\n", hi, len(chunks))
	}

	fmt.Printf("Ingested %d chunks in %v\n", len(chunks), time.Since(start).Round(time.Millisecond))
	return nil
}

func runModels(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	fmt.Printf("Primary model:  %s\n", cfg.Embedding.PrimaryModel)
	if len(cfg.Embedding.FallbackModels) == 0 {
		fmt.Println("Fallbacks:      (none)")
	} else {
		fmt.Println("Fallbacks:")
		for i, m := range cfg.Embedding.FallbackModels {
			fmt.Printf("  %d. %s\n", i+1, m)
		}
	}
	fmt.Printf("Retries/model:  %d\n", cfg.Embedding.MaxRetries)
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 120 {
		s = s[:120] + "..."
	}
	return s
}
