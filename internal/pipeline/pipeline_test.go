package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/kestrelworks/mailsync/internal/bigquery"
	"github.com/kestrelworks/mailsync/internal/drive"
)

type fakeStore struct {
	files       []*drive.FileInfo
	listErr     error
	downloadErr error
	contents    map[string]string
}

func (f *fakeStore) ListFolder(_ context.Context, _ string) ([]*drive.FileInfo, error) {
	return f.files, f.listErr
}

func (f *fakeStore) Download(_ context.Context, fileID string) (io.ReadCloser, error) {
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	content, ok := f.contents[fileID]
	if !ok {
		content = "{}"
	}
	return io.NopCloser(strings.NewReader(content)), nil
}

type fakeExtractor struct {
	mu      sync.Mutex
	rows    map[string][]bigquery.Row
	errs    map[string]error
	callers []string
}

func (f *fakeExtractor) Extract(_ context.Context, user, _ string, _ func(id string) bool) ([]bigquery.Row, error) {
	f.mu.Lock()
	f.callers = append(f.callers, user)
	f.mu.Unlock()
	if err, ok := f.errs[user]; ok {
		return nil, err
	}
	return f.rows[user], nil
}

// prefilterExtractor honours the known predicate and records which IDs
// it actually fetched metadata for.
type prefilterExtractor struct {
	mu         sync.Mutex
	candidates map[string][]string
	fetched    []string
}

func (f *prefilterExtractor) Extract(_ context.Context, user, _ string, known func(id string) bool) ([]bigquery.Row, error) {
	var rows []bigquery.Row
	for _, id := range f.candidates[user] {
		if known != nil && known(id) {
			continue
		}
		f.mu.Lock()
		f.fetched = append(f.fetched, id)
		f.mu.Unlock()
		rows = append(rows, bigquery.Row{ID: id})
	}
	return rows, nil
}

type fakeLoader struct {
	existing  map[string]struct{}
	knownErr  error
	insertErr error
	inserted  []bigquery.Row
}

func (f *fakeLoader) Known(_ context.Context) (func(id string) bool, error) {
	if f.knownErr != nil {
		return nil, f.knownErr
	}
	return func(id string) bool {
		_, ok := f.existing[id]
		return ok
	}, nil
}

func (f *fakeLoader) FilterNew(_ context.Context, rows []bigquery.Row) ([]bigquery.Row, error) {
	fresh := make([]bigquery.Row, 0, len(rows))
	for _, r := range rows {
		if _, ok := f.existing[r.ID]; !ok {
			fresh = append(fresh, r)
		}
	}
	return fresh, nil
}

func (f *fakeLoader) InsertRows(_ context.Context, rows []bigquery.Row) (int, error) {
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	f.inserted = append(f.inserted, rows...)
	return len(rows), nil
}

func tokenFile(id, name string) *drive.FileInfo {
	return &drive.FileInfo{ID: id, Name: name, MimeType: "application/json"}
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestRunHappyPath(t *testing.T) {
	store := &fakeStore{
		files: []*drive.FileInfo{
			tokenFile("f1", "user_token_alice_example_com.json"),
			tokenFile("f2", "user_token_bob_example_com.json"),
		},
	}
	extractor := &fakeExtractor{
		rows: map[string][]bigquery.Row{
			"alice_example_com": {{ID: "m1"}, {ID: "m2"}},
			"bob_example_com":   {{ID: "m3"}},
		},
	}
	loader := &fakeLoader{}

	p := New(store, extractor, loader, "folder", t.TempDir(), 3, nil, testLogger())
	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Mailboxes)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 3, summary.Extracted)
	assert.Equal(t, 3, summary.Inserted)
	assert.NotEmpty(t, summary.RunID)
	assert.Len(t, loader.inserted, 3)
}

func TestRunSkipsFailingMailbox(t *testing.T) {
	store := &fakeStore{
		files: []*drive.FileInfo{
			tokenFile("f1", "user_token_alice_example_com.json"),
			tokenFile("f2", "user_token_bob_example_com.json"),
			tokenFile("f3", "user_token_carol_example_com.json"),
		},
	}
	extractor := &fakeExtractor{
		rows: map[string][]bigquery.Row{
			"alice_example_com": {{ID: "m1"}},
			"carol_example_com": {{ID: "m2"}},
		},
		errs: map[string]error{
			"bob_example_com": errors.New("token revoked"),
		},
	}
	loader := &fakeLoader{}

	p := New(store, extractor, loader, "folder", t.TempDir(), 2, nil, testLogger())
	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Mailboxes)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 2, summary.Extracted)
	assert.Equal(t, 2, summary.Inserted)

	var failed []string
	for _, r := range summary.Results {
		if r.Err != nil {
			failed = append(failed, r.User)
		}
	}
	assert.Equal(t, []string{"bob_example_com"}, failed)
}

func TestRunSkipsNonArtifactFiles(t *testing.T) {
	store := &fakeStore{
		files: []*drive.FileInfo{
			tokenFile("f1", "user_token_alice_example_com.json"),
			tokenFile("f2", "bigquery-key.json"),
			tokenFile("f3", "notes.txt"),
		},
	}
	extractor := &fakeExtractor{
		rows: map[string][]bigquery.Row{"alice_example_com": {{ID: "m1"}}},
	}

	p := New(store, extractor, &fakeLoader{}, "folder", t.TempDir(), 2, nil, testLogger())
	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Mailboxes)
	assert.Equal(t, []string{"alice_example_com"}, extractor.callers)
}

func TestRunFiltersExistingIDs(t *testing.T) {
	store := &fakeStore{
		files: []*drive.FileInfo{tokenFile("f1", "user_token_alice_example_com.json")},
	}
	extractor := &fakeExtractor{
		rows: map[string][]bigquery.Row{
			"alice_example_com": {{ID: "old"}, {ID: "new"}},
		},
	}
	loader := &fakeLoader{existing: map[string]struct{}{"old": {}}}

	p := New(store, extractor, loader, "folder", t.TempDir(), 1, nil, testLogger())
	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Extracted)
	assert.Equal(t, 1, summary.Inserted)
	require.Len(t, loader.inserted, 1)
	assert.Equal(t, "new", loader.inserted[0].ID)
}

func TestRunSkipsKnownIDsDuringExtraction(t *testing.T) {
	store := &fakeStore{
		files: []*drive.FileInfo{tokenFile("f1", "user_token_alice_example_com.json")},
	}
	extractor := &prefilterExtractor{
		candidates: map[string][]string{
			"alice_example_com": {"m1", "m2", "m3"},
		},
	}
	loader := &fakeLoader{existing: map[string]struct{}{"m1": {}, "m2": {}}}

	p := New(store, extractor, loader, "folder", t.TempDir(), 1, nil, testLogger())
	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	// Already-loaded IDs never reach a metadata fetch.
	assert.Equal(t, []string{"m3"}, extractor.fetched)
	assert.Equal(t, 1, summary.Extracted)
	assert.Equal(t, 1, summary.Inserted)
	require.Len(t, loader.inserted, 1)
	assert.Equal(t, "m3", loader.inserted[0].ID)
}

func TestRunKnownIDsError(t *testing.T) {
	store := &fakeStore{
		files: []*drive.FileInfo{tokenFile("f1", "user_token_alice_example_com.json")},
	}
	loader := &fakeLoader{knownErr: errors.New("query failed")}

	p := New(store, &fakeExtractor{}, loader, "folder", t.TempDir(), 1, nil, testLogger())
	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query failed")
}

func TestRunEmitsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = provider.Shutdown(context.Background())
	})

	store := &fakeStore{
		files: []*drive.FileInfo{tokenFile("f1", "user_token_alice_example_com.json")},
	}
	extractor := &fakeExtractor{
		rows: map[string][]bigquery.Row{"alice_example_com": {{ID: "m1"}}},
	}

	p := New(store, extractor, &fakeLoader{}, "folder", t.TempDir(), 1, nil, testLogger())
	_, err := p.Run(context.Background())
	require.NoError(t, err)

	var names []string
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}
	assert.Contains(t, names, "run")
	assert.Contains(t, names, "mailbox.extract")
}

func TestRunEmptyFolder(t *testing.T) {
	p := New(&fakeStore{}, &fakeExtractor{}, &fakeLoader{}, "folder", t.TempDir(), 2, nil, testLogger())
	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Mailboxes)
	assert.Equal(t, 0, summary.Inserted)
}

func TestRunListError(t *testing.T) {
	store := &fakeStore{listErr: errors.New("folder not found")}
	p := New(store, &fakeExtractor{}, &fakeLoader{}, "folder", t.TempDir(), 2, nil, testLogger())

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list handoff folder")
}

func TestRunInsertError(t *testing.T) {
	store := &fakeStore{
		files: []*drive.FileInfo{tokenFile("f1", "user_token_alice_example_com.json")},
	}
	extractor := &fakeExtractor{
		rows: map[string][]bigquery.Row{"alice_example_com": {{ID: "m1"}}},
	}
	loader := &fakeLoader{insertErr: errors.New("table missing")}

	p := New(store, extractor, loader, "folder", t.TempDir(), 1, nil, testLogger())
	_, err := p.Run(context.Background())
	require.Error(t, err)
}

func TestRunCleansUpStagedTokens(t *testing.T) {
	dir := t.TempDir()
	store := &fakeStore{
		files:    []*drive.FileInfo{tokenFile("f1", "user_token_alice_example_com.json")},
		contents: map[string]string{"f1": `{"type":"authorized_user"}`},
	}
	extractor := &fakeExtractor{
		rows: map[string][]bigquery.Row{"alice_example_com": {{ID: "m1"}}},
	}

	p := New(store, extractor, &fakeLoader{}, "folder", dir, 1, nil, testLogger())
	_, err := p.Run(context.Background())
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "user_token_alice_example_com.json"))
	assert.True(t, os.IsNotExist(err))
}
