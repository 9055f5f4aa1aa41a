package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jsykora/bioindex/internal/config"
	"github.com/jsykora/bioindex/internal/ingest"
	"github.com/jsykora/bioindex/internal/match"
	"github.com/jsykora/bioindex/internal/signature"
	"github.com/jsykora/bioindex/internal/store/postgres"
)

var searchCmd = &cobra.Command{
	Use:   "search <image-file>",
	Short: "Look up an identity from a captured image",
	Long: `Extract a signature from a capture and resolve it against the enrolled
population.

By default the built-in average hash drives a Hamming bucket search.
With --remote the extraction service produces the embedding and ORB
descriptors, enabling cosine search and descriptor reranking.

Examples:
  # Hash lookup with the built-in extractor
  bioindex search capture.jpg

  # Full pipeline via the extraction service, stricter threshold
  bioindex search capture.jpg --remote --similarity-threshold 0.7

  # Machine-readable output
  bioindex search capture.jpg --json`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().String("kind", "face", "Signature kind: face or thumb")
	searchCmd.Flags().Bool("remote", false, "Use the extraction service instead of the built-in average hash")
	searchCmd.Flags().Int("hash-threshold", 0, "Override the Hamming distance threshold")
	searchCmd.Flags().Float64("similarity-threshold", 0, "Override the cosine similarity threshold")
	searchCmd.Flags().Int("limit", 0, "Override the candidate shortlist size")
	searchCmd.Flags().Bool("json", false, "Output as JSON")
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}

// searchPolicy applies CLI overrides on top of the configured policy.
func searchPolicy(cmd *cobra.Command, cfg *config.Config) match.Policy {
	override := match.Policy{
		HashThreshold:       mustGetInt(cmd, "hash-threshold"),
		SimilarityThreshold: mustGetFloat64(cmd, "similarity-threshold"),
		Limit:               mustGetInt(cmd, "limit"),
	}
	return override.Normalize(cfg.Policy)
}

func printSearchResult(result *match.Result, sig *signature.Signature) {
	switch result.Outcome {
	case match.OutcomeNoCandidates:
		fmt.Printf("No match (%d candidates checked)\n", result.CandidatesChecked)
		return
	case match.OutcomeAmbiguous:
		fmt.Printf("Ambiguous: top candidates are too close to call (%d checked)\n", result.CandidatesChecked)
		return
	case match.OutcomeMatch:
	}

	fmt.Printf("Match: identity %s (record %d)\n", result.IdentityID, result.RecordID)
	fmt.Printf("  Confidence: %.4f\n", result.Confidence)
	if sig.HasHash() {
		fmt.Printf("  Hamming distance: %d\n", result.HashDistance)
	} else {
		fmt.Printf("  Cosine similarity: %.4f\n", result.Similarity)
	}
	if result.MatchCount > 0 {
		fmt.Printf("  Descriptor matches: %d\n", result.MatchCount)
	}
	if len(result.Metadata) > 0 {
		fmt.Printf("  Metadata: %s\n", string(result.Metadata))
	}
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}
	if err := postgres.Initialize(&cfg.Database); err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	kind, err := signature.ParseKind(mustGetString(cmd, "kind"))
	if err != nil {
		return err
	}

	imageData, err := os.ReadFile(args[0]) //nolint:gosec // user-supplied path is the point of the command
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}

	var extractor ingest.Extractor = ingest.AverageHashExtractor{}
	if mustGetBool(cmd, "remote") {
		extractor = ingest.NewHTTPExtractor(cfg.Extractor.URL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Search.Timeout)
	defer cancel()

	sig, err := extractor.Extract(ctx, imageData, kind)
	if err != nil {
		return fmt.Errorf("extracting signature: %w", err)
	}
	// A remote extraction can return both features; the orchestrator
	// accepts exactly one, and the embedding is the stronger signal.
	if sig.HasHash() && sig.HasEmbedding() {
		sig.Hash = nil
	}

	repo := postgres.NewSignatureRepository(postgres.GetGlobalPool(), cfg.Search.EmbeddingDim)
	orchestrator := match.NewOrchestrator(repo, cfg.Search.EmbeddingDim)

	result, err := orchestrator.Request(ctx, *sig, kind, searchPolicy(cmd, cfg))
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(map[string]any{
			"outcome":            string(result.Outcome),
			"identity_id":        result.IdentityID,
			"record_id":          result.RecordID,
			"confidence":         result.Confidence,
			"hash_distance":      result.HashDistance,
			"similarity":         result.Similarity,
			"match_count":        result.MatchCount,
			"candidates_checked": result.CandidatesChecked,
			"metadata":           result.Metadata,
		})
	}

	printSearchResult(result, sig)
	return nil
}
