package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/catalog-ingest/ingest-service/pkg/digest"
	"github.com/catalog-ingest/ingest-service/pkg/record"
	"github.com/catalog-ingest/ingest-service/pkg/rows"
	"github.com/spf13/cobra"
)

// NewDigestCommand creates the digest command.
func NewDigestCommand(rootOpts *RootOptions) *cobra.Command {
	var schemaName string

	cmd := &cobra.Command{
		Use:   "digest <csv-file>",
		Short: "Print the record id of every row in a CSV file",
		Long: `Print the record id and canonical form of every row in a CSV file.

The id is the key of the row in the record table, so the output can be used
with the status and release commands.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := resolveSchema(rootOpts, schemaName, args[0])
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			return printDigests(cmd.OutOrStdout(), rows.NewCSV(f, schema))
		},
	}

	cmd.Flags().StringVar(&schemaName, "schema", "", "row schema (default: chosen from the file name)")
	return cmd
}

func printDigests(w io.Writer, src rows.Source) error {
	for {
		row, err := src.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s %s\n", digest.OfRow(row), row)
	}
}

// resolveSchema picks the schema from the flag, then ROW_SCHEMA, then the file name.
func resolveSchema(rootOpts *RootOptions, flag string, path string) (*record.Schema, error) {
	name := flag
	if name == "" {
		name = rootOpts.Settings.RowSchema
	}
	return record.Resolve(name, path)
}
