// Package google provides OAuth2 authentication and credential handling for Google APIs.
//
// It covers the two credential shapes used by the application: per-user OAuth
// tokens obtained through an interactive consent flow and stored as
// "authorized user" JSON artifacts, and the Drive service account key used for
// the token handoff folder.
package google
