package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jsykora/bioindex/internal/config"
	"github.com/jsykora/bioindex/internal/ingest"
	"github.com/jsykora/bioindex/internal/match"
	"github.com/jsykora/bioindex/internal/signature"
	"github.com/jsykora/bioindex/internal/store"
	"github.com/jsykora/bioindex/internal/store/postgres"
	"github.com/jsykora/bioindex/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the lookup API server",
	Long: `Start the bioindex HTTP API.
The server exposes enrollment, search and identity management endpoints
backed by PostgreSQL, with an optional persisted HNSW index for face
embeddings.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// indexStats counts the indexable records and their highest id. Both
// feed the staleness check against a persisted index.
func indexStats(records []store.SignatureRecord) (int64, int64) {
	var count, maxID int64
	for i := range records {
		if len(records[i].Embedding) == 0 {
			continue
		}
		count++
		if records[i].ID > maxID {
			maxID = records[i].ID
		}
	}
	return count, maxID
}

// initFaceIndex loads or builds the HNSW index over face embeddings and
// attaches it to the orchestrator. Thumb lookups keep using pgvector.
// Failure is non-fatal: searches fall back to the database.
func initFaceIndex(ctx context.Context, repo *postgres.SignatureRepository, o *match.Orchestrator, path string) *match.EmbeddingIndex {
	records, err := repo.ListByKind(ctx, signature.KindFace)
	if err != nil {
		fmt.Printf("Warning: could not list face records for indexing: %v\n", err)
		return nil
	}

	idx := match.NewEmbeddingIndex()
	if path != "" {
		fmt.Printf("Loading face HNSW index from %s...\n", path)
		if err := idx.Load(path); err != nil {
			fmt.Printf("Warning: failed to load face HNSW index: %v\n", err)
			idx = match.NewEmbeddingIndex()
		}
	}

	count, maxID := indexStats(records)
	if !idx.IsEmpty() {
		meta, err := match.LoadMetadata(path)
		if err != nil || meta.RecordCount != count || meta.MaxRecordID != maxID {
			fmt.Println("Persisted face index is stale, rebuilding from the store...")
			idx = match.NewEmbeddingIndex()
		}
	}

	if idx.IsEmpty() {
		if err := idx.BuildFromRecords(records); err != nil {
			fmt.Printf("Warning: failed to build face HNSW index: %v\n", err)
			fmt.Println("Face searches will use PostgreSQL queries (slower)")
			return nil
		}
	} else {
		idx.RehydrateRecords(records)
	}

	o.EmbeddingMatcher().AttachIndex(signature.KindFace, idx)
	fmt.Printf("Face HNSW index ready with %d embeddings\n", idx.Count())
	return idx
}

// saveFaceIndex persists the HNSW index with fresh store stats so the
// next startup can detect staleness.
func saveFaceIndex(idx *match.EmbeddingIndex, repo *postgres.SignatureRepository, path string) {
	if idx == nil || path == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	records, err := repo.ListByKind(ctx, signature.KindFace)
	if err != nil {
		fmt.Printf("Warning: could not stat store for index save: %v\n", err)
		return
	}
	count, maxID := indexStats(records)

	meta := match.IndexMetadata{
		RecordCount: count,
		MaxRecordID: maxID,
		BuildTime:   time.Now(),
	}
	if err := idx.Save(path, meta); err != nil {
		fmt.Printf("Warning: failed to save face HNSW index: %v\n", err)
	} else {
		fmt.Println("Face HNSW index saved to disk")
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	fmt.Printf("Connecting to PostgreSQL database...\n")
	if err := postgres.Initialize(&cfg.Database); err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	pool := postgres.GetGlobalPool()
	repo := postgres.NewSignatureRepository(pool, cfg.Search.EmbeddingDim)

	startupCtx := context.Background()

	schemaDim, err := repo.EmbeddingColumnDim(startupCtx)
	if err != nil {
		return fmt.Errorf("checking embedding schema: %w", err)
	}
	if schemaDim != cfg.Search.EmbeddingDim {
		return fmt.Errorf("schema embedding column is vector(%d) but EMBEDDING_DIM is %d; migrate the column before changing the dimension",
			schemaDim, cfg.Search.EmbeddingDim)
	}

	// Stored buckets are derived state and not trusted across restarts.
	repaired, err := repo.RepairBuckets(startupCtx)
	if err != nil {
		return fmt.Errorf("repairing bucket assignments: %w", err)
	}
	if repaired > 0 {
		fmt.Printf("Repaired %d drifted bucket assignments\n", repaired)
	}

	orchestrator := match.NewOrchestrator(repo, cfg.Search.EmbeddingDim)

	idx := initFaceIndex(startupCtx, repo, orchestrator, cfg.Database.HNSWIndexPath)

	sessionRepo := postgres.NewSessionRepository(pool)
	fmt.Println("Session persistence enabled (PostgreSQL)")

	extractor := ingest.NewHTTPExtractor(cfg.Extractor.URL)
	server := web.NewServer(cfg, repo, orchestrator, extractor, sessionRepo)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		saveFaceIndex(idx, repo, cfg.Database.HNSWIndexPath)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting bioindex API on %s\n", cfg.Server.Addr)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
