package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewUploadCommand creates the upload command.
func NewUploadCommand(rootOpts *RootOptions) *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "upload <file> <bucket>",
		Short: "Upload a CSV file to the ingest bucket",
		Long: `Upload a file to the bucket watched by the router function, which starts
the deployed pipeline for it. Large files are sent as multipart uploads.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, bucket := args[0], args[1]
			if key == "" {
				key = filepath.Base(path)
			}

			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return err
			}

			cfg, err := rootOpts.awsConfig(cmd.Context())
			if err != nil {
				return err
			}
			uploader := manager.NewUploader(s3.NewFromConfig(cfg))

			log.WithFields(log.Fields{
				"bucket": bucket,
				"key":    key,
				"size":   humanize.Bytes(uint64(info.Size())),
			}).Info("uploading file")
			out, err := uploader.Upload(cmd.Context(), &s3.PutObjectInput{
				Bucket:      aws.String(bucket),
				Key:         aws.String(key),
				Body:        f,
				ContentType: aws.String("text/csv"),
			})
			if err != nil {
				return fmt.Errorf("upload %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s\n", out.Location)
			return nil
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "object key (default: the file name)")
	return cmd
}
