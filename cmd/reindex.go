package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/jsykora/bioindex/internal/match"
	"github.com/jsykora/bioindex/internal/signature"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild derived search structures",
	Long: `Rebuild the structures derived from the signature store: bucket
assignments are recomputed from the stored hashes, and the face HNSW
index file is rebuilt from scratch when HNSW_INDEX_PATH is set.

Run this after a bulk import or when the bucketing scheme changes.`,
	RunE: runReindex,
}

func init() {
	rootCmd.AddCommand(reindexCmd)

	reindexCmd.Flags().Bool("skip-buckets", false, "Skip the bucket repair pass")
}

func runReindex(cmd *cobra.Command, args []string) error {
	repo, cfg, err := openSignatureStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if !mustGetBool(cmd, "skip-buckets") {
		fmt.Println("Repairing bucket assignments...")
		repaired, err := repo.RepairBuckets(ctx)
		if err != nil {
			return fmt.Errorf("repairing buckets: %w", err)
		}
		fmt.Printf("Repaired %d bucket assignments\n", repaired)
	}

	if cfg.Database.HNSWIndexPath == "" {
		fmt.Println("HNSW_INDEX_PATH not set, skipping face index rebuild")
		return nil
	}

	records, err := repo.ListByKind(ctx, signature.KindFace)
	if err != nil {
		return fmt.Errorf("listing face records: %w", err)
	}

	bar := progressbar.NewOptions(len(records),
		progressbar.OptionSetDescription("Indexing embeddings"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("records"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	idx := match.NewEmbeddingIndex()
	for i := range records {
		idx.Add(&records[i])
		_ = bar.Add(1)
	}
	fmt.Println()

	count, maxID := indexStats(records)
	meta := match.IndexMetadata{
		RecordCount: count,
		MaxRecordID: maxID,
		BuildTime:   time.Now(),
	}
	if err := idx.Save(cfg.Database.HNSWIndexPath, meta); err != nil {
		return fmt.Errorf("saving face HNSW index: %w", err)
	}

	fmt.Printf("Face HNSW index rebuilt with %d embeddings at %s\n", idx.Count(), cfg.Database.HNSWIndexPath)
	return nil
}
