package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/kestrelworks/mailsync/internal/config"
	"github.com/kestrelworks/mailsync/internal/drive"
	"github.com/kestrelworks/mailsync/internal/gmail"
	"github.com/kestrelworks/mailsync/internal/google"
	"github.com/kestrelworks/mailsync/internal/instrumentation"
)

func newAuthorizeCmd() *cobra.Command {
	var (
		clientSecretFile   string
		serviceAccountFile string
		folderID           string
		tokenDir           string
		localOnly          bool
	)

	cmd := &cobra.Command{
		Use:   "authorize",
		Short: "Grant mailbox access and publish the credential artifact",
		Long: `Run the browser-based OAuth consent flow for one Gmail user.

On approval, the refresh-capable credential is written to a local file
named after the user (user_token_<identifier>.json) and uploaded to the
Drive handoff folder, where the extraction service picks it up. An
existing artifact for the same user is overwritten.

The flow requests read-only Gmail access and must be run on a machine
with a browser. Use --local-only to skip the Drive upload.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if clientSecretFile == "" {
				clientSecretFile = cfg.ClientSecretFile
			}
			if serviceAccountFile == "" {
				serviceAccountFile = cfg.ServiceAccountFile
			}
			if folderID == "" {
				folderID = cfg.DriveFolderID
			}
			if tokenDir == "" {
				tokenDir = cfg.TokenDir
			}
			if !localOnly && folderID == "" {
				return fmt.Errorf("a Drive folder is required: set --folder-id or DRIVE_FOLDER_ID, or pass --local-only")
			}

			ctx, cancel := signal.NotifyContext(context.Background(),
				os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return runAuthorize(ctx, clientSecretFile, serviceAccountFile, folderID, tokenDir, localOnly)
		},
	}

	cmd.Flags().StringVar(&clientSecretFile, "client-secret", "", "Path to the OAuth client descriptor (client_secret.json). Can also use CLIENT_SECRET_FILE env var.")
	cmd.Flags().StringVar(&serviceAccountFile, "service-account-key", "", "Path to the service account key used for the Drive upload. Can also use SERVICE_ACCOUNT_FILE env var.")
	cmd.Flags().StringVar(&folderID, "folder-id", "", "Drive folder ID to publish the credential artifact to. Can also use DRIVE_FOLDER_ID env var.")
	cmd.Flags().StringVar(&tokenDir, "token-dir", "", "Directory for the local token file. Can also use TOKEN_DIR env var.")
	cmd.Flags().BoolVar(&localOnly, "local-only", false, "Write the token file locally without uploading it to Drive")

	return cmd
}

func runAuthorize(ctx context.Context, clientSecretFile, serviceAccountFile, folderID, tokenDir string, localOnly bool) error {
	audit := instrumentation.NewAuditLogger(nil, instrumentation.DefaultConfig().AuditLogging)
	metrics, err := instrumentation.NewMetrics(otel.GetMeterProvider().Meter(instrumentation.TracerName), false)
	if err != nil {
		metrics = &instrumentation.Metrics{}
	}

	conf, err := google.LoadConsentConfig(clientSecretFile)
	if err != nil {
		return err
	}

	tok, err := google.Authorize(ctx, conf, func(authURL string) {
		fmt.Println("Open the following URL in your browser to grant access:")
		fmt.Println()
		fmt.Printf("  %s\n", authURL)
		fmt.Println()
		fmt.Println("Waiting for authorization...")
	})
	if err != nil {
		metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		return fmt.Errorf("consent flow failed: %w", err)
	}
	metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultSuccess)

	// The mailbox address names the artifact, so the service can tell
	// whose token it is without opening the file.
	client, err := gmail.NewClientFromTokenSource(ctx, conf.TokenSource(ctx, tok))
	if err != nil {
		return fmt.Errorf("failed to create Gmail client: %w", err)
	}
	email, err := client.Profile(ctx)
	if err != nil {
		return fmt.Errorf("failed to look up mailbox address: %w", err)
	}

	name := google.TokenFileName(google.SanitizeUserID(email))
	path := filepath.Join(tokenDir, name)
	if err := google.WriteTokenFile(path, conf, tok); err != nil {
		return err
	}
	audit.ConsentGranted(ctx, email)
	fmt.Printf("Authorized %s, credential written to %s\n", email, path)

	if localOnly {
		return nil
	}

	driveClient, err := drive.NewServiceAccountClient(ctx, serviceAccountFile)
	if err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open token file for upload: %w", err)
	}
	defer file.Close()

	info, err := driveClient.Upload(ctx, folderID, name, file)
	if err != nil {
		return fmt.Errorf("failed to publish credential artifact: %w", err)
	}
	audit.ArtifactPublished(ctx, email, info.ID)
	fmt.Printf("Published %s to the handoff folder (file ID %s)\n", name, info.ID)

	return nil
}
