package bigquery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	bq "cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/kestrelworks/mailsync/internal/logging"
)

const existingIDsTTL = time.Hour

// rowInserter abstracts the streaming insert call so the batching logic
// can be tested without a live BigQuery client.
type rowInserter interface {
	Put(ctx context.Context, rows []Row) error
}

// idLister returns the message IDs already present in the table.
type idLister interface {
	ListIDs(ctx context.Context) ([]string, error)
}

// Loader streams message rows into a BigQuery table in batches.
type Loader struct {
	inserter  rowInserter
	lister    idLister
	tableRef  string
	batchSize int
	logger    *slog.Logger

	mu       sync.Mutex
	cached   map[string]struct{}
	cachedAt time.Time
}

// NewLoader creates a loader for the given table. tableRef is the fully
// qualified "project.dataset.table" reference used in queries.
func NewLoader(ctx context.Context, projectID, datasetID, tableID string, batchSize int, logger *slog.Logger) (*Loader, error) {
	client, err := bq.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create BigQuery client: %w", err)
	}

	table := client.Dataset(datasetID).Table(tableID)
	tableRef := fmt.Sprintf("%s.%s.%s", projectID, datasetID, tableID)

	return &Loader{
		inserter:  &tableInserter{inserter: table.Inserter()},
		lister:    &tableLister{client: client, tableRef: tableRef},
		tableRef:  tableRef,
		batchSize: batchSize,
		logger:    logger,
	}, nil
}

// newLoaderForTest wires a loader with fake inserter and lister.
func newLoaderForTest(inserter rowInserter, lister idLister, batchSize int, logger *slog.Logger) *Loader {
	return &Loader{
		inserter:  inserter,
		lister:    lister,
		tableRef:  "test.test.test",
		batchSize: batchSize,
		logger:    logger,
	}
}

// InsertRows streams rows into the table in batches of the configured
// size. It returns the number of rows inserted. A failed batch aborts
// the load; rows from earlier batches remain inserted.
func (l *Loader) InsertRows(ctx context.Context, rows []Row) (int, error) {
	inserted := 0
	for start := 0; start < len(rows); start += l.batchSize {
		end := start + l.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]
		if err := l.inserter.Put(ctx, batch); err != nil {
			return inserted, fmt.Errorf("failed to insert batch of %d rows into %s: %w", len(batch), l.tableRef, err)
		}
		inserted += len(batch)
		l.logger.Debug("inserted batch",
			logging.Table(l.tableRef),
			slog.Int("rows", len(batch)))
	}
	return inserted, nil
}

// FilterNew returns the subset of rows whose IDs are not already in the
// table. The set of existing IDs is cached for an hour so a run across
// many mailboxes queries the table once.
func (l *Loader) FilterNew(ctx context.Context, rows []Row) ([]Row, error) {
	existing, err := l.existingIDs(ctx)
	if err != nil {
		return nil, err
	}

	fresh := make([]Row, 0, len(rows))
	for _, row := range rows {
		if _, ok := existing[row.ID]; !ok {
			fresh = append(fresh, row)
		}
	}
	return fresh, nil
}

// Known returns a predicate reporting whether a message ID is already
// in the table. It shares the cached ID set with FilterNew, so handing
// the predicate to extraction costs no extra queries.
func (l *Loader) Known(ctx context.Context) (func(id string) bool, error) {
	existing, err := l.existingIDs(ctx)
	if err != nil {
		return nil, err
	}
	return func(id string) bool {
		_, ok := existing[id]
		return ok
	}, nil
}

func (l *Loader) existingIDs(ctx context.Context) (map[string]struct{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cached != nil && time.Since(l.cachedAt) < existingIDsTTL {
		return l.cached, nil
	}

	ids, err := l.lister.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list existing IDs from %s: %w", l.tableRef, err)
	}

	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	l.cached = set
	l.cachedAt = time.Now()

	l.logger.Debug("refreshed existing ID cache",
		logging.Table(l.tableRef),
		slog.Int("ids", len(set)))
	return set, nil
}

// InvalidateCache drops the cached ID set so the next FilterNew call
// queries the table again.
func (l *Loader) InvalidateCache() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cached = nil
}

type tableInserter struct {
	inserter *bq.Inserter
}

func (t *tableInserter) Put(ctx context.Context, rows []Row) error {
	return t.inserter.Put(ctx, rows)
}

type tableLister struct {
	client   *bq.Client
	tableRef string
}

func (t *tableLister) ListIDs(ctx context.Context) ([]string, error) {
	q := t.client.Query(fmt.Sprintf("SELECT id FROM `%s`", t.tableRef))
	it, err := q.Read(ctx)
	if err != nil {
		return nil, err
	}

	var ids []string
	for {
		var row struct {
			ID string `bigquery:"id"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		ids = append(ids, row.ID)
	}
	return ids, nil
}
