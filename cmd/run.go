package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kestrelworks/mailsync/internal/bigquery"
	"github.com/kestrelworks/mailsync/internal/config"
	"github.com/kestrelworks/mailsync/internal/drive"
	"github.com/kestrelworks/mailsync/internal/gcs"
	"github.com/kestrelworks/mailsync/internal/instrumentation"
	"github.com/kestrelworks/mailsync/internal/pipeline"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one extraction run",
		Long: `Execute a single extraction run and exit.

The run downloads every credential artifact from the Drive handoff
folder, extracts message metadata from each authorized mailbox with a
bounded worker pool, and appends the rows to the configured BigQuery
table. A mailbox whose token has been revoked is logged and skipped.

Configuration comes from the environment (PROJECT_ID, DATASET_ID,
TABLE_ID, DRIVE_FOLDER_ID, and optionally BUCKET_NAME, GMAIL_QUERY,
MAX_WORKERS, BATCH_SIZE). A .env file in the working directory is
honoured for development.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(),
				os.Interrupt, syscall.SIGTERM)
			defer cancel()

			cfg := config.Load()
			if err := cfg.ValidateService(); err != nil {
				return err
			}

			logger := slog.Default()
			p, err := buildPipeline(ctx, &cfg, nil, logger)
			if err != nil {
				return err
			}

			summary, err := p.Run(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("Run %s: %d mailboxes (%d failed), %d messages extracted, %d rows inserted in %s\n",
				summary.RunID, summary.Mailboxes, summary.Failed,
				summary.Extracted, summary.Inserted, summary.Duration.Truncate(time.Millisecond))
			return nil
		},
	}

	return cmd
}

// buildPipeline wires the Drive store, Gmail extractor and BigQuery
// loader from configuration. When a bucket is configured, the BigQuery
// service account key is fetched from GCS first so the client libraries
// pick it up via application default credentials. metrics may be nil
// for one-shot runs without an instrumentation provider.
func buildPipeline(ctx context.Context, cfg *config.Config, metrics *instrumentation.Metrics, logger *slog.Logger) (*pipeline.Pipeline, error) {
	serviceAccountFile := cfg.ServiceAccountFile
	if cfg.BucketName != "" {
		keyPath, err := gcs.FetchCredentials(ctx, cfg.BucketName, config.DefaultBigQueryKeyObject, cfg.TokenDir, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch service account key: %w", err)
		}
		if _, statErr := os.Stat(serviceAccountFile); statErr != nil {
			// No dedicated Drive key on disk; the downloaded key
			// serves both Drive and BigQuery.
			serviceAccountFile = keyPath
		}
	}

	store, err := drive.NewServiceAccountClient(ctx, serviceAccountFile)
	if err != nil {
		return nil, err
	}

	loader, err := bigquery.NewLoader(ctx, cfg.ProjectID, cfg.DatasetID, cfg.TableID, cfg.BatchSize, logger)
	if err != nil {
		return nil, err
	}

	extractor := pipeline.NewGmailExtractor(cfg.GmailQuery, metrics)

	return pipeline.New(store, extractor, loader, cfg.DriveFolderID, cfg.TokenDir, cfg.MaxWorkers, metrics, logger), nil
}
