package cli

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	appConfig "github.com/catalog-ingest/ingest-service/pkg/config"
	"github.com/catalog-ingest/ingest-service/pkg/logging"
	"github.com/catalog-ingest/ingest-service/pkg/store"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags and the state shared by all commands.
type RootOptions struct {
	Verbose     bool
	EnvFile     string
	MetricsAddr string
	Memory      bool

	Settings appConfig.Settings

	memoryStore *store.MemoryStore
}

// NewRootCommand creates the root command for the ingest CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Operate the catalog ingest pipeline",
		Long: `Tools for running the catalog ingest pipeline locally and for operating
the deployed record table: assemble and process CSV files, inspect record
state, release stuck records and upload files to the ingest bucket.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup()
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "environment file loaded before settings")
	cmd.PersistentFlags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while the command runs")
	cmd.PersistentFlags().BoolVar(&opts.Memory, "memory", false, "use an in-memory record table instead of DynamoDB")

	cmd.AddCommand(NewDigestCommand(opts))
	cmd.AddCommand(NewAssembleCommand(opts))
	cmd.AddCommand(NewProcessCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewReleaseCommand(opts))
	cmd.AddCommand(NewUploadCommand(opts))

	return cmd
}

func (o *RootOptions) setup() error {
	if o.EnvFile != "" {
		if err := godotenv.Load(o.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	logging.Init()
	if o.Verbose {
		log.SetLevel(log.DebugLevel)
	}
	o.Settings = appConfig.Load()

	if o.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(o.MetricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("metrics server stopped")
			}
		}()
	}
	return nil
}

func (o *RootOptions) awsConfig(ctx context.Context) (aws.Config, error) {
	return config.LoadDefaultConfig(ctx)
}

// recordStore returns the record table selected by the flags.
func (o *RootOptions) recordStore(ctx context.Context) (store.RecordStore, error) {
	if o.Memory {
		if o.memoryStore == nil {
			o.memoryStore = store.NewMemoryStore()
		}
		return o.memoryStore, nil
	}

	tableName, err := appConfig.Required("TABLE_NAME")
	if err != nil {
		return nil, err
	}
	cfg, err := o.awsConfig(ctx)
	if err != nil {
		return nil, err
	}
	return store.NewDynamoStore(dynamodb.NewFromConfig(cfg), tableName), nil
}
