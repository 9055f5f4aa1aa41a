package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jsykora/bioindex/internal/config"
	"github.com/jsykora/bioindex/internal/store/postgres"
)

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Inspect and manage enrolled identities",
}

func init() {
	rootCmd.AddCommand(identityCmd)
}

// openSignatureStore connects to PostgreSQL and returns the signature
// repository. Shared by the identity subcommands.
func openSignatureStore() (*postgres.SignatureRepository, *config.Config, error) {
	cfg := config.Load()

	if cfg.Database.URL == "" {
		return nil, nil, errors.New("DATABASE_URL environment variable is required")
	}
	if err := postgres.Initialize(&cfg.Database); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	return postgres.NewSignatureRepository(postgres.GetGlobalPool(), cfg.Search.EmbeddingDim), cfg, nil
}
