package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var identityDeleteCmd = &cobra.Command{
	Use:   "delete <identity-id>",
	Short: "Remove all records of an identity",
	Long: `Remove every enrolled record of an identity, across all kinds.
The identity becomes unreachable by search as soon as the delete
commits.`,
	Args: cobra.ExactArgs(1),
	RunE: runIdentityDelete,
}

func init() {
	identityCmd.AddCommand(identityDeleteCmd)

	identityDeleteCmd.Flags().Bool("json", false, "Output as JSON")
}

func runIdentityDelete(cmd *cobra.Command, args []string) error {
	repo, _, err := openSignatureStore()
	if err != nil {
		return err
	}

	identityID := args[0]
	deleted, err := repo.DeleteIdentity(context.Background(), identityID)
	if err != nil {
		return fmt.Errorf("deleting identity: %w", err)
	}
	if deleted == 0 {
		return fmt.Errorf("identity %s not found", identityID)
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(map[string]any{
			"identity_id": identityID,
			"deleted":     deleted,
		})
	}

	fmt.Printf("Deleted %d records for identity %s\n", deleted, identityID)
	return nil
}
