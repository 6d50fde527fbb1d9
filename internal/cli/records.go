package cli

import (
	"encoding/json"
	"fmt"

	"github.com/catalog-ingest/ingest-service/pkg/claim"
	"github.com/spf13/cobra"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Show the stored record for an id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.recordStore(cmd.Context())
			if err != nil {
				return err
			}
			r, found, err := claim.NewProtocol(s).Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("record %s not found", args[0])
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(r)
		},
	}
}

// NewReleaseCommand creates the release command.
func NewReleaseCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "release <id> <version>",
		Short: "Make a stuck in-progress record claimable again",
		Long: `Release an in-progress record whose work failed or was abandoned so that
the next delivery of its row claims it again.

The version must match the record's current version, as shown by the status
command. Completed records cannot be released.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.recordStore(cmd.Context())
			if err != nil {
				return err
			}
			released, err := claim.NewProtocol(s).Release(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if !released {
				return fmt.Errorf("record %s was not released: it is missing, not in progress or has a different version", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "released %s\n", args[0])
			return nil
		},
	}
}
