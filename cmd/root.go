package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the mailsync application
var rootCmd = &cobra.Command{
	Use:   "mailsync",
	Short: "Extracts Gmail message metadata into BigQuery",
	Long: `mailsync moves Gmail message metadata into a BigQuery table for
analysis. Users grant read-only mailbox access once via the authorize
command; the resulting credential artifact is handed off through a
Google Drive folder. The service side downloads the artifacts, extracts
message metadata from every authorized mailbox and loads it into
BigQuery.

It can run as:
  - A one-shot extraction (run)
  - A long-lived HTTP service triggered via POST /fetch (serve, default)`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "mailsync version %s\n" .Version}}`)

	// If no subcommand is provided, run the serve command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newAuthorizeCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
}
