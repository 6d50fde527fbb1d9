package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	awsLambda "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/catalog-ingest/ingest-service/pkg/claim"
	"github.com/catalog-ingest/ingest-service/pkg/executor"
	"github.com/catalog-ingest/ingest-service/pkg/incident"
	"github.com/catalog-ingest/ingest-service/pkg/rows"
	"github.com/spf13/cobra"
)

// NewProcessCommand creates the process command.
func NewProcessCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		schemaName string
		delay      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "process <csv-file>",
		Short: "Run every row of a CSV file through the claim protocol",
		Long: `Claim, execute and complete every row of a CSV file, as the command
function does for rows delivered from the queue.

The work effect invokes WORK_FUNCTION_NAME when it is set and otherwise waits
for --delay. Incidents go to INCIDENT_QUEUE_URL when it is set and to the log
otherwise.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			schema, err := resolveSchema(rootOpts, schemaName, args[0])
			if err != nil {
				return err
			}
			s, err := rootOpts.recordStore(ctx)
			if err != nil {
				return err
			}

			settings := rootOpts.Settings
			var exec executor.Executor = executor.Delay{Duration: settings.WorkDelay}
			if cmd.Flags().Changed("delay") {
				exec = executor.Delay{Duration: delay}
			}
			var reporter incident.Reporter = incident.Log{}
			if settings.WorkFunctionName != "" || settings.IncidentQueueURL != "" {
				cfg, err := rootOpts.awsConfig(ctx)
				if err != nil {
					return err
				}
				if settings.WorkFunctionName != "" {
					exec = executor.NewLambda(awsLambda.NewFromConfig(cfg), settings.WorkFunctionName)
				}
				if settings.IncidentQueueURL != "" {
					reporter = incident.NewSQS(sqs.NewFromConfig(cfg), settings.IncidentQueueURL)
				}
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			worker := claim.NewWorker(claim.NewProtocol(s), exec, reporter)
			src := rows.NewCSV(f, schema)
			counts := map[claim.Result]int{}
			for {
				row, err := src.Next()
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return err
				}
				result, err := worker.Process(ctx, row)
				if err != nil {
					return err
				}
				counts[result]++
			}

			fmt.Fprintf(cmd.OutOrStdout(), "completed %d, skipped %d, lock lost %d, effect failed %d\n",
				counts[claim.ResultCompleted], counts[claim.ResultSkipped],
				counts[claim.ResultLockLost], counts[claim.ResultEffectFailed])
			return nil
		},
	}

	cmd.Flags().StringVar(&schemaName, "schema", "", "row schema (default: chosen from the file name)")
	cmd.Flags().DurationVar(&delay, "delay", 0, "duration of the placeholder work effect (default: WORK_DELAY)")
	return cmd
}
