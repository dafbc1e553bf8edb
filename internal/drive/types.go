package drive

import "time"

// FileInfo represents metadata about a file in the token handoff folder.
type FileInfo struct {
	// ID is the unique identifier for the file
	ID string `json:"id"`

	// Name is the name of the file
	Name string `json:"name"`

	// MimeType is the MIME type of the file
	MimeType string `json:"mimeType"`

	// Size is the size of the file in bytes
	Size int64 `json:"size,omitempty"`

	// CreatedTime is when the file was created
	CreatedTime time.Time `json:"createdTime"`

	// ModifiedTime is when the file was last modified
	ModifiedTime time.Time `json:"modifiedTime"`
}
