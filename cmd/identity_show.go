package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jsykora/bioindex/internal/signature"
	"github.com/jsykora/bioindex/internal/store"
)

var identityShowCmd = &cobra.Command{
	Use:   "show <identity-id>",
	Short: "Show the enrolled records of an identity",
	Args:  cobra.ExactArgs(1),
	RunE:  runIdentityShow,
}

func init() {
	identityCmd.AddCommand(identityShowCmd)

	identityShowCmd.Flags().Bool("json", false, "Output as JSON")
}

// identityRecordView is the per-record output of identity show.
type identityRecordView struct {
	RecordID        int64  `json:"record_id"`
	Kind            string `json:"kind"`
	Hash            string `json:"hash,omitempty"`
	Bucket          int    `json:"bucket"`
	EmbeddingDim    int    `json:"embedding_dim"`
	DescriptorCount int    `json:"descriptor_count"`
	Metadata        string `json:"metadata,omitempty"`
	CreatedAt       string `json:"created_at"`
}

func runIdentityShow(cmd *cobra.Command, args []string) error {
	repo, _, err := openSignatureStore()
	if err != nil {
		return err
	}

	identityID := args[0]
	ctx := context.Background()

	var views []identityRecordView
	for _, kind := range []signature.Kind{signature.KindFace, signature.KindThumb} {
		record, err := repo.GetByIdentity(ctx, identityID, kind)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("loading %s record: %w", kind, err)
		}

		view := identityRecordView{
			RecordID:        record.ID,
			Kind:            string(record.Kind),
			Bucket:          record.Bucket,
			EmbeddingDim:    len(record.Embedding),
			DescriptorCount: len(record.Descriptors),
			Metadata:        string(record.Metadata),
			CreatedAt:       record.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		if record.HasHash() {
			view.Hash = signature.FormatHash(*record.Hash)
		}
		views = append(views, view)
	}

	if len(views) == 0 {
		return fmt.Errorf("identity %s not found", identityID)
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(map[string]any{
			"identity_id": identityID,
			"records":     views,
		})
	}

	fmt.Printf("Identity %s (%d records):\n\n", identityID, len(views))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RECORD\tKIND\tHASH\tBUCKET\tEMBEDDING\tDESCRIPTORS\tCREATED")
	for _, v := range views {
		hash := "-"
		bucket := "-"
		if v.Hash != "" {
			hash = v.Hash
			bucket = fmt.Sprintf("%d", v.Bucket)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%s\n",
			v.RecordID, v.Kind, hash, bucket, v.EmbeddingDim, v.DescriptorCount, v.CreatedAt)
	}
	w.Flush()

	for _, v := range views {
		if v.Metadata != "" {
			fmt.Printf("\nMetadata (%s): %s\n", v.Kind, v.Metadata)
			break
		}
	}
	return nil
}
