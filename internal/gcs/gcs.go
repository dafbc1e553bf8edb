// Package gcs fetches the BigQuery service account key from a Cloud
// Storage bucket at startup and points the Google client libraries at
// it through GOOGLE_APPLICATION_CREDENTIALS.
package gcs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"cloud.google.com/go/storage"

	"github.com/kestrelworks/mailsync/internal/instrumentation"
)

// FetchCredentials downloads the named object from the bucket into dir
// and sets GOOGLE_APPLICATION_CREDENTIALS to the downloaded file. It
// returns the local path of the key file.
func FetchCredentials(ctx context.Context, bucket, object, dir string, logger *slog.Logger) (string, error) {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceStorage, instrumentation.OperationDownload)
	defer span.End()

	client, err := storage.NewClient(ctx)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return "", fmt.Errorf("failed to create storage client: %w", err)
	}
	defer client.Close()

	reader, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return "", fmt.Errorf("failed to open gs://%s/%s: %w", bucket, object, err)
	}
	defer reader.Close()

	path := filepath.Join(dir, object)
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return "", fmt.Errorf("failed to create key file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, reader); err != nil {
		instrumentation.SetSpanError(span, err)
		return "", fmt.Errorf("failed to download gs://%s/%s: %w", bucket, object, err)
	}
	instrumentation.SetSpanSuccess(span)

	if err := os.Setenv("GOOGLE_APPLICATION_CREDENTIALS", path); err != nil {
		return "", fmt.Errorf("failed to set credentials path: %w", err)
	}

	logger.Info("downloaded service account key",
		slog.String("bucket", bucket),
		slog.String("object", object))
	return path, nil
}
