package drive

import (
	"context"
	"fmt"
	"io"
	"time"

	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/kestrelworks/mailsync/internal/google"
	"github.com/kestrelworks/mailsync/internal/instrumentation"
)

const (
	// tokenMimeType is the MIME type credential artifacts are uploaded with.
	tokenMimeType = "application/json"

	// listPageSize is the page size for folder listings.
	listPageSize = 100
)

// Client wraps the Google Drive API service, authenticated as the
// service account that owns the token handoff folder.
type Client struct {
	service *drive.Service
}

// NewServiceAccountClient creates a Drive client from a service account
// key file. The drive.file scope is sufficient because every object in
// the handoff folder is created by this same service account.
func NewServiceAccountClient(ctx context.Context, keyFile string) (*Client, error) {
	httpClient, err := google.ServiceAccountClient(ctx, keyFile, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate service account: %w", err)
	}

	service, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive service: %w", err)
	}

	return &Client{service: service}, nil
}

// NewClientWithService wraps an existing Drive service. Used by tests.
func NewClientWithService(service *drive.Service) *Client {
	return &Client{service: service}
}

// FindByName looks up a non-trashed file by exact name inside a folder.
// Returns nil if no such file exists. If several files collide on name,
// the first listed wins.
func (c *Client) FindByName(ctx context.Context, folderID, name string) (*FileInfo, error) {
	query := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false", name, folderID)

	fileList, err := c.service.Files.List().
		Context(ctx).
		Q(query).
		PageSize(1).
		Fields("files(id, name, mimeType, size, createdTime, modifiedTime)").
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s in folder: %w", name, err)
	}

	if len(fileList.Files) == 0 {
		return nil, nil
	}
	return convertToFileInfo(fileList.Files[0]), nil
}

// Upload creates or overwrites a file of the given name inside the
// folder. An existing object of the same name is updated in place so
// the folder never accumulates duplicates.
func (c *Client) Upload(ctx context.Context, folderID, name string, content io.Reader) (*FileInfo, error) {
	if name == "" {
		return nil, fmt.Errorf("file name is required")
	}
	if content == nil {
		return nil, fmt.Errorf("file content is required")
	}

	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceDrive, instrumentation.OperationUpload)
	defer span.End()

	existing, err := c.FindByName(ctx, folderID, name)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, err
	}

	if existing != nil {
		driveFile, err := c.service.Files.Update(existing.ID, &drive.File{}).
			Context(ctx).
			Media(content, googleapi.ContentType(tokenMimeType)).
			Fields("id, name, mimeType, size, createdTime, modifiedTime").
			Do()
		if err != nil {
			instrumentation.SetSpanError(span, err)
			return nil, fmt.Errorf("failed to overwrite %s: %w", name, err)
		}
		instrumentation.SetSpanSuccess(span)
		return convertToFileInfo(driveFile), nil
	}

	file := &drive.File{
		Name:     name,
		MimeType: tokenMimeType,
		Parents:  []string{folderID},
	}

	driveFile, err := c.service.Files.Create(file).
		Context(ctx).
		Media(content, googleapi.ContentType(tokenMimeType)).
		Fields("id, name, mimeType, size, createdTime, modifiedTime").
		Do()
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, fmt.Errorf("failed to upload %s: %w", name, err)
	}

	instrumentation.SetSpanSuccess(span)
	return convertToFileInfo(driveFile), nil
}

// ListFolder lists all non-trashed files in the folder, following
// pagination until exhausted.
func (c *Client) ListFolder(ctx context.Context, folderID string) ([]*FileInfo, error) {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceDrive, instrumentation.OperationList)
	defer span.End()

	query := fmt.Sprintf("'%s' in parents and trashed = false", folderID)

	var files []*FileInfo
	pageToken := ""
	for {
		call := c.service.Files.List().
			Context(ctx).
			Q(query).
			PageSize(listPageSize).
			Fields("nextPageToken, files(id, name, mimeType, size, createdTime, modifiedTime)")
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		fileList, err := call.Do()
		if err != nil {
			instrumentation.SetSpanError(span, err)
			return nil, fmt.Errorf("failed to list folder %s: %w", folderID, err)
		}

		for _, f := range fileList.Files {
			files = append(files, convertToFileInfo(f))
		}

		if fileList.NextPageToken == "" {
			instrumentation.SetSpanSuccess(span)
			return files, nil
		}
		pageToken = fileList.NextPageToken
	}
}

// Download downloads the content of a file.
func (c *Client) Download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	if fileID == "" {
		return nil, fmt.Errorf("fileID is required")
	}

	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceDrive, instrumentation.OperationDownload)
	defer span.End()

	resp, err := c.service.Files.Get(fileID).
		Context(ctx).
		Download()
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, fmt.Errorf("failed to download file %s: %w", fileID, err)
	}

	instrumentation.SetSpanSuccess(span)
	return resp.Body, nil
}

// convertToFileInfo converts a Drive API File to our FileInfo type
func convertToFileInfo(f *drive.File) *FileInfo {
	fileInfo := &FileInfo{
		ID:       f.Id,
		Name:     f.Name,
		MimeType: f.MimeType,
		Size:     f.Size,
	}

	// Parse timestamps
	if f.CreatedTime != "" {
		if t, err := time.Parse(time.RFC3339, f.CreatedTime); err == nil {
			fileInfo.CreatedTime = t
		}
	}
	if f.ModifiedTime != "" {
		if t, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
			fileInfo.ModifiedTime = t
		}
	}

	return fileInfo
}
