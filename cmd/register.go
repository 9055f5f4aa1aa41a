package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jsykora/bioindex/internal/config"
	"github.com/jsykora/bioindex/internal/identity"
	"github.com/jsykora/bioindex/internal/ingest"
	"github.com/jsykora/bioindex/internal/signature"
	"github.com/jsykora/bioindex/internal/store"
	"github.com/jsykora/bioindex/internal/store/postgres"
)

var registerCmd = &cobra.Command{
	Use:   "register <image-file>",
	Short: "Enroll an identity from an image",
	Long: `Extract a signature from an image file and store it as an enrolled
identity record.

By default the built-in average hash is computed locally, which yields a
hash-only signature. With --remote the image is sent to the extraction
service, which also produces the embedding and ORB descriptors.

Examples:
  # Enroll a new identity with a locally computed hash
  bioindex register face.jpg --first-name Jana --last-name Novakova

  # Enroll against a known identity using the extraction service
  bioindex register face.jpg --identity 7b0c... --remote

  # Enroll a document thumbnail for an existing identity
  bioindex register passport.png --identity 7b0c... --kind thumb`,
	Args: cobra.ExactArgs(1),
	RunE: runRegister,
}

func init() {
	rootCmd.AddCommand(registerCmd)

	registerCmd.Flags().String("identity", "", "Identity to enroll against (defaults to a new UUID)")
	registerCmd.Flags().String("kind", "face", "Signature kind: face or thumb")
	registerCmd.Flags().Bool("remote", false, "Use the extraction service instead of the built-in average hash")
	registerCmd.Flags().String("first-name", "", "First name stored in the record metadata")
	registerCmd.Flags().String("last-name", "", "Last name stored in the record metadata")
	registerCmd.Flags().String("address", "", "Address stored in the record metadata")
	registerCmd.Flags().String("info", "", "Free-form note stored in the record metadata")
	registerCmd.Flags().Bool("json", false, "Output as JSON")
}

// cliMetadata mirrors the metadata shape the web API stores.
type cliMetadata struct {
	FirstName      string `json:"first_name,omitempty"`
	LastName       string `json:"last_name,omitempty"`
	DisplayName    string `json:"display_name,omitempty"`
	NormalizedName string `json:"normalized_name,omitempty"`
	Address        string `json:"address,omitempty"`
	AdditionalInfo string `json:"additional_info,omitempty"`
}

func buildCLIMetadata(cmd *cobra.Command) json.RawMessage {
	meta := cliMetadata{
		FirstName:      mustGetString(cmd, "first-name"),
		LastName:       mustGetString(cmd, "last-name"),
		Address:        mustGetString(cmd, "address"),
		AdditionalInfo: mustGetString(cmd, "info"),
	}
	if meta.FirstName == "" && meta.LastName == "" && meta.Address == "" && meta.AdditionalInfo == "" {
		return nil
	}
	meta.DisplayName = identity.DisplayName(meta.FirstName, meta.LastName)
	meta.NormalizedName = identity.NormalizeName(meta.DisplayName)

	data, err := json.Marshal(meta)
	if err != nil {
		return nil
	}
	return data
}

func runRegister(cmd *cobra.Command, args []string) error {
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

	ctx := context.Background()
	sig, err := extractor.Extract(ctx, imageData, kind)
	if err != nil {
		return fmt.Errorf("extracting signature: %w", err)
	}

	identityID := mustGetString(cmd, "identity")
	if identityID == "" {
		identityID = uuid.NewString()
	}

	record := &store.SignatureRecord{
		IdentityID:  identityID,
		Kind:        kind,
		Hash:        sig.Hash,
		Embedding:   sig.Embedding,
		Descriptors: sig.Descriptors,
		Metadata:    buildCLIMetadata(cmd),
	}

	repo := postgres.NewSignatureRepository(postgres.GetGlobalPool(), cfg.Search.EmbeddingDim)
	recordID, err := repo.Put(ctx, record)
	if err != nil {
		return fmt.Errorf("storing signature: %w", err)
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(map[string]any{
			"identity_id": identityID,
			"record_id":   recordID,
			"kind":        string(kind),
		})
	}

	fmt.Printf("Enrolled %s record %d for identity %s\n", kind, recordID, identityID)
	if sig.HasHash() {
		fmt.Printf("  Hash:   %s (bucket %d)\n", signature.FormatHash(*sig.Hash), record.Bucket)
	}
	if sig.HasEmbedding() {
		fmt.Printf("  Embedding: %d dimensions\n", len(sig.Embedding))
	}
	if len(sig.Descriptors) > 0 {
		fmt.Printf("  Descriptors: %d\n", len(sig.Descriptors))
	}
	return nil
}
