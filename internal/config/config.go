package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Defaults for optional settings.
const (
	DefaultMaxWorkers = 3
	DefaultBatchSize  = 1000
	DefaultPort       = 8080
	DefaultGmailQuery = "in:inbox OR in:sent OR in:trash -in:spam -in:allmail"

	// DefaultBigQueryKeyObject is the GCS object holding the BigQuery
	// service account key.
	DefaultBigQueryKeyObject = "bigquery-key.json"
)

// Config holds all operator-supplied settings for the pipeline.
// Values come from the environment; a local .env file is honoured for
// development.
type Config struct {
	// ProjectID is the Google Cloud project ID.
	ProjectID string

	// DatasetID and TableID identify the pre-existing BigQuery table
	// that rows are appended to.
	DatasetID string
	TableID   string

	// BucketName is the GCS bucket holding the BigQuery service
	// account key, downloaded at service start.
	BucketName string

	// DriveFolderID is the fixed Drive folder that credential
	// artifacts are uploaded to and fetched from.
	DriveFolderID string

	// GmailQuery is the message list query applied per mailbox.
	GmailQuery string

	// MaxWorkers bounds the mailbox extraction worker pool.
	MaxWorkers int

	// BatchSize is the number of rows per BigQuery insert call.
	BatchSize int

	// Port is the HTTP port for the serve command.
	Port int

	// TokenDir is the working directory for downloaded credential
	// artifacts. Defaults to the OS temp directory.
	TokenDir string

	// ClientSecretFile is the OAuth client descriptor used by the
	// authorize command.
	ClientSecretFile string

	// ServiceAccountFile is the Drive service account key.
	ServiceAccountFile string
}

// Load reads configuration from the environment. A .env file in the
// working directory is loaded first if present; real environment
// variables take precedence over it.
func Load() Config {
	// godotenv does not override variables that are already set.
	_ = godotenv.Load()

	return Config{
		ProjectID:          os.Getenv("PROJECT_ID"),
		DatasetID:          os.Getenv("DATASET_ID"),
		TableID:            os.Getenv("TABLE_ID"),
		BucketName:         os.Getenv("BUCKET_NAME"),
		DriveFolderID:      os.Getenv("DRIVE_FOLDER_ID"),
		GmailQuery:         getEnvOrDefault("GMAIL_QUERY", DefaultGmailQuery),
		MaxWorkers:         getEnvIntOrDefault("MAX_WORKERS", DefaultMaxWorkers),
		BatchSize:          getEnvIntOrDefault("BATCH_SIZE", DefaultBatchSize),
		Port:               getEnvIntOrDefault("PORT", DefaultPort),
		TokenDir:           getEnvOrDefault("TOKEN_DIR", os.TempDir()),
		ClientSecretFile:   getEnvOrDefault("CLIENT_SECRET_FILE", "client_secret.json"),
		ServiceAccountFile: getEnvOrDefault("SERVICE_ACCOUNT_FILE", "drive-key.json"),
	}
}

// ValidateService checks that all settings required for a pipeline run
// are present. The table, dataset and Drive folder must pre-exist.
func (c *Config) ValidateService() error {
	var missing []string
	if c.ProjectID == "" {
		missing = append(missing, "PROJECT_ID")
	}
	if c.DatasetID == "" {
		missing = append(missing, "DATASET_ID")
	}
	if c.TableID == "" {
		missing = append(missing, "TABLE_ID")
	}
	if c.DriveFolderID == "" {
		missing = append(missing, "DRIVE_FOLDER_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %v", missing)
	}
	if c.MaxWorkers < 1 {
		return fmt.Errorf("MAX_WORKERS must be at least 1, got %d", c.MaxWorkers)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("BATCH_SIZE must be at least 1, got %d", c.BatchSize)
	}
	return nil
}

// TableRef returns the fully qualified BigQuery table reference.
func (c *Config) TableRef() string {
	return fmt.Sprintf("%s.%s.%s", c.ProjectID, c.DatasetID, c.TableID)
}

// getEnvOrDefault returns the value of an environment variable or a default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvIntOrDefault returns the integer value of an environment variable or a default value.
func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}
