package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/catalog-ingest/ingest-service/pkg/batch"
	"github.com/catalog-ingest/ingest-service/pkg/dispatch"
	"github.com/catalog-ingest/ingest-service/pkg/rows"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// NewAssembleCommand creates the assemble command.
func NewAssembleCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		schemaName     string
		maxPayloadSize int
		routingKey     string
		publish        bool
	)

	cmd := &cobra.Command{
		Use:   "assemble <csv-file>",
		Short: "Pack a CSV file into batch messages",
		Long: `Pack the rows of a CSV file into size-bounded batch messages.

Without --publish the batches are only listed. With --publish they are sent
to TOPIC_ARN exactly as the csv-batcher function would send them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			schema, err := resolveSchema(rootOpts, schemaName, path)
			if err != nil {
				return err
			}
			if maxPayloadSize == 0 {
				maxPayloadSize = rootOpts.Settings.MaxPayloadSize
			}
			if routingKey == "" {
				routingKey = filepath.Base(path)
			}

			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			assembler, err := batch.NewAssembler(rows.NewCSV(f, schema), maxPayloadSize, routingKey)
			if err != nil {
				return err
			}
			if !publish {
				return listBatches(cmd.OutOrStdout(), assembler)
			}
			return publishBatches(cmd.Context(), cmd.OutOrStdout(), rootOpts, assembler)
		},
	}

	cmd.Flags().StringVar(&schemaName, "schema", "", "row schema (default: chosen from the file name)")
	cmd.Flags().IntVar(&maxPayloadSize, "max-payload-size", 0, "maximum batch size in bytes (default: MAX_PAYLOAD_SIZE)")
	cmd.Flags().StringVar(&routingKey, "routing-key", "", "routing key of the batches (default: the file name)")
	cmd.Flags().BoolVar(&publish, "publish", false, "publish the batches to TOPIC_ARN")
	return cmd
}

func listBatches(w io.Writer, assembler *batch.Assembler) error {
	total := 0
	for {
		b, err := assembler.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		total += len(b.Rows)
		fmt.Fprintf(w, "batch %d: %d rows, %s\n", b.Sequence, len(b.Rows), humanize.Bytes(uint64(b.Size)))
	}
	fmt.Fprintf(w, "%s rows\n", humanize.Comma(int64(total)))
	return nil
}

func publishBatches(ctx context.Context, w io.Writer, rootOpts *RootOptions, assembler *batch.Assembler) error {
	if rootOpts.Settings.TopicArn == "" {
		return errors.New("TOPIC_ARN was not provided")
	}
	cfg, err := rootOpts.awsConfig(ctx)
	if err != nil {
		return err
	}
	publisher := dispatch.NewPublisher(sns.NewFromConfig(cfg), rootOpts.Settings.TopicArn, rootOpts.Settings.DispatchRate)
	return runPool(ctx, w, dispatch.NewPool(publisher, rootOpts.Settings.DispatchWorkers), assembler)
}

func runPool(ctx context.Context, w io.Writer, pool *dispatch.Pool, assembler *batch.Assembler) error {
	report, err := pool.Run(ctx, assembler)
	fmt.Fprintf(w, "%s rows in %d batches, %d dispatched, %d failed\n",
		humanize.Comma(int64(report.Rows)), report.Batches, report.Dispatched, len(report.Failures))
	for _, f := range report.Failures {
		fmt.Fprintln(w, f.Error())
	}
	if err != nil {
		return err
	}
	if len(report.Failures) > 0 {
		return fmt.Errorf("%d batches were not dispatched", len(report.Failures))
	}
	return nil
}
