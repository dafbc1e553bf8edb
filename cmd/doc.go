// Package cmd implements the command-line interface for mailsync.
//
// This package provides the following commands:
//   - authorize: Run the OAuth consent flow for a user and publish the
//     resulting credential artifact to the Drive handoff folder
//   - run: Execute one extraction run (tokens -> Gmail -> BigQuery)
//   - serve: Start the HTTP service exposing the /fetch trigger
//   - version: Display version information
//
// The serve command is the default command when no subcommand is
// specified.
package cmd
