package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "bioindex",
	Short: "A biometric identity lookup index",
	Long: `Bioindex stores biometric signatures (perceptual hashes, embeddings
and local descriptors) in PostgreSQL and resolves capture-time lookups
against the enrolled population via Hamming buckets, cosine similarity
and descriptor reranking.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
