// Package drive provides a client for the Drive folder that mediates the
// credential handoff between the authorize command and the service.
//
// All access is authenticated as a service account. The folder is an
// operator-configured constant; this package only ever uploads
// (create-or-overwrite), lists, and downloads files inside it — nothing is
// deleted.
package drive
