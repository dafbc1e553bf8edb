package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kestrelworks/mailsync/internal/bigquery"
	"github.com/kestrelworks/mailsync/internal/drive"
	"github.com/kestrelworks/mailsync/internal/google"
	"github.com/kestrelworks/mailsync/internal/instrumentation"
	"github.com/kestrelworks/mailsync/internal/logging"
)

// artifactStore is the slice of the Drive client the pipeline needs.
type artifactStore interface {
	ListFolder(ctx context.Context, folderID string) ([]*drive.FileInfo, error)
	Download(ctx context.Context, fileID string) (io.ReadCloser, error)
}

// Extractor pulls message rows out of one mailbox. known reports
// whether a message ID is already loaded; extractors skip those IDs
// without fetching the message.
type Extractor interface {
	Extract(ctx context.Context, user, tokenPath string, known func(id string) bool) ([]bigquery.Row, error)
}

// rowLoader is the slice of the BigQuery loader the pipeline needs.
type rowLoader interface {
	Known(ctx context.Context) (func(id string) bool, error)
	FilterNew(ctx context.Context, rows []bigquery.Row) ([]bigquery.Row, error)
	InsertRows(ctx context.Context, rows []bigquery.Row) (int, error)
}

// Mailbox is one downloaded credential artifact, ready for extraction.
type Mailbox struct {
	User      string
	TokenPath string
}

// Result is the outcome of extracting one mailbox.
type Result struct {
	User     string
	Messages int
	Err      error
}

// Summary describes a completed run.
type Summary struct {
	RunID     string
	Mailboxes int
	Failed    int
	Extracted int
	Inserted  int
	Duration  time.Duration
	Results   []Result
}

// Pipeline wires the Drive handoff folder, the mailbox extractor and
// the BigQuery loader into a single runnable unit.
type Pipeline struct {
	store      artifactStore
	extractor  Extractor
	loader     rowLoader
	folderID   string
	tokenDir   string
	maxWorkers int
	metrics    *instrumentation.Metrics
	logger     *slog.Logger
}

// New creates a pipeline. tokenDir is where credential artifacts are
// staged during a run; files placed there are removed when the run ends.
// metrics may be nil for callers without an instrumentation provider.
func New(store artifactStore, extractor Extractor, loader rowLoader, folderID, tokenDir string, maxWorkers int, metrics *instrumentation.Metrics, logger *slog.Logger) *Pipeline {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if metrics == nil {
		metrics = &instrumentation.Metrics{}
	}
	return &Pipeline{
		store:      store,
		extractor:  extractor,
		loader:     loader,
		folderID:   folderID,
		tokenDir:   tokenDir,
		maxWorkers: maxWorkers,
		metrics:    metrics,
		logger:     logger,
	}
}

// Run executes one full extraction run and returns its summary. A
// mailbox that fails to extract is recorded in the summary and skipped;
// Run only returns an error when the run as a whole cannot proceed.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	runID := uuid.NewString()
	logger := p.logger.With(logging.RunID(runID))
	start := time.Now()

	ctx, span := instrumentation.StartRunSpan(ctx, runID)
	defer span.End()
	if traceID := instrumentation.GetTraceID(ctx); traceID != "" {
		logger = logger.With(slog.String("trace_id", traceID))
	}

	logger.Info("starting extraction run", logging.Folder(p.folderID))

	mailboxes, cleanup, err := p.fetchArtifacts(ctx, logger)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, err
	}
	defer cleanup()

	if len(mailboxes) == 0 {
		logger.Info("no credential artifacts found", logging.Folder(p.folderID))
		instrumentation.SetSpanSuccess(span)
		return &Summary{RunID: runID, Duration: time.Since(start)}, nil
	}

	queryStart := time.Now()
	known, err := p.loader.Known(ctx)
	p.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceBigQuery,
		instrumentation.OperationQuery, operationStatus(err), time.Since(queryStart))
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, err
	}

	results, rows := p.extractAll(ctx, logger, mailboxes, known)

	// The predicate already screened IDs during extraction; FilterNew is
	// the final guard against rows that slipped in before the ID set was
	// cached.
	fresh, err := p.loader.FilterNew(ctx, rows)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, err
	}

	insertStart := time.Now()
	inserted, err := p.loader.InsertRows(ctx, fresh)
	p.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceBigQuery,
		instrumentation.OperationInsert, operationStatus(err), time.Since(insertStart))
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, err
	}

	summary := &Summary{
		RunID:     runID,
		Mailboxes: len(mailboxes),
		Extracted: len(rows),
		Inserted:  inserted,
		Duration:  time.Since(start),
		Results:   results,
	}
	for _, r := range results {
		if r.Err != nil {
			summary.Failed++
		}
	}

	span.SetAttributes(
		attribute.Int(instrumentation.SpanAttrMailboxes, summary.Mailboxes),
		attribute.Int(instrumentation.SpanAttrMessages, summary.Extracted),
	)
	instrumentation.SetSpanSuccess(span)

	logger.Info("extraction run complete",
		slog.Int("mailboxes", summary.Mailboxes),
		slog.Int("failed", summary.Failed),
		slog.Int("extracted", summary.Extracted),
		slog.Int("inserted", summary.Inserted),
		logging.Duration(summary.Duration),
		logging.Status(logging.StatusSuccess))
	return summary, nil
}

func operationStatus(err error) string {
	if err != nil {
		return instrumentation.StatusError
	}
	return instrumentation.StatusSuccess
}

// fetchArtifacts downloads every credential artifact from the handoff
// folder into the token directory. Files whose names do not match the
// artifact naming convention are skipped. The returned cleanup removes
// the downloaded files.
func (p *Pipeline) fetchArtifacts(ctx context.Context, logger *slog.Logger) ([]Mailbox, func(), error) {
	listStart := time.Now()
	files, err := p.store.ListFolder(ctx, p.folderID)
	p.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceDrive,
		instrumentation.OperationList, operationStatus(err), time.Since(listStart))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list handoff folder: %w", err)
	}

	if err := os.MkdirAll(p.tokenDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("failed to create token directory: %w", err)
	}

	var mailboxes []Mailbox
	var paths []string
	cleanup := func() {
		for _, path := range paths {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				logger.Warn("failed to remove staged token file",
					slog.String("path", path), logging.Err(err))
			}
		}
	}

	for _, f := range files {
		user, ok := google.UserFromTokenFile(f.Name)
		if !ok {
			logger.Debug("skipping non-artifact file", slog.String("name", f.Name))
			continue
		}

		path := filepath.Join(p.tokenDir, f.Name)
		downloadStart := time.Now()
		err := p.downloadTo(ctx, f.ID, path)
		p.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceDrive,
			instrumentation.OperationDownload, operationStatus(err), time.Since(downloadStart))
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to download artifact %s: %w", f.Name, err)
		}
		paths = append(paths, path)
		mailboxes = append(mailboxes, Mailbox{User: user, TokenPath: path})
	}

	logger.Info("fetched credential artifacts", slog.Int("count", len(mailboxes)))
	return mailboxes, cleanup, nil
}

func (p *Pipeline) downloadTo(ctx context.Context, fileID, path string) error {
	body, err := p.store.Download(ctx, fileID)
	if err != nil {
		return err
	}
	defer body.Close()

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = io.Copy(file, body)
	return err
}

// extractAll fans the mailboxes out over the worker pool and collects
// per-mailbox results plus the rows from the mailboxes that succeeded.
// known screens out message IDs that are already loaded before their
// metadata is fetched.
func (p *Pipeline) extractAll(ctx context.Context, logger *slog.Logger, mailboxes []Mailbox, known func(id string) bool) ([]Result, []bigquery.Row) {
	tasks := make(chan Mailbox)

	var mu sync.Mutex
	var results []Result
	var rows []bigquery.Row

	var wg sync.WaitGroup
	for i := 0; i < p.maxWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for mb := range tasks {
				mbCtx, span := instrumentation.StartMailboxSpan(ctx, mb.User)
				extracted, err := p.extractor.Extract(mbCtx, mb.User, mb.TokenPath, known)
				if err != nil {
					instrumentation.SetSpanError(span, err)
					logger.Error("mailbox extraction failed",
						logging.UserHash(mb.User),
						logging.Err(err))
				} else {
					span.SetAttributes(attribute.Int(instrumentation.SpanAttrMessages, len(extracted)))
					instrumentation.SetSpanSuccess(span)
					logger.Info("mailbox extracted",
						logging.UserHash(mb.User),
						slog.Int("messages", len(extracted)))
				}
				span.End()

				mu.Lock()
				results = append(results, Result{User: mb.User, Messages: len(extracted), Err: err})
				if err == nil {
					rows = append(rows, extracted...)
				}
				mu.Unlock()
			}
		}()
	}

	for _, mb := range mailboxes {
		tasks <- mb
	}
	close(tasks)
	wg.Wait()

	return results, rows
}
