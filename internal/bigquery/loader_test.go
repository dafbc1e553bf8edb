package bigquery

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInserter struct {
	batches [][]Row
	failOn  int // 1-based batch index that fails, 0 for never
}

func (f *fakeInserter) Put(_ context.Context, rows []Row) error {
	f.batches = append(f.batches, rows)
	if f.failOn > 0 && len(f.batches) == f.failOn {
		return errors.New("insert failed")
	}
	return nil
}

type fakeLister struct {
	ids   []string
	err   error
	calls int
}

func (f *fakeLister) ListIDs(_ context.Context) ([]string, error) {
	f.calls++
	return f.ids, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func makeRows(n int) []Row {
	rows := make([]Row, n)
	for i := range rows {
		rows[i] = Row{ID: string(rune('a' + i))}
	}
	return rows
}

func TestInsertRowsBatching(t *testing.T) {
	tests := []struct {
		name        string
		rowCount    int
		batchSize   int
		wantBatches []int
	}{
		{name: "single partial batch", rowCount: 3, batchSize: 10, wantBatches: []int{3}},
		{name: "exact multiple", rowCount: 6, batchSize: 3, wantBatches: []int{3, 3}},
		{name: "remainder batch", rowCount: 7, batchSize: 3, wantBatches: []int{3, 3, 1}},
		{name: "no rows", rowCount: 0, batchSize: 3, wantBatches: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ins := &fakeInserter{}
			loader := newLoaderForTest(ins, &fakeLister{}, tt.batchSize, discardLogger())

			inserted, err := loader.InsertRows(context.Background(), makeRows(tt.rowCount))
			require.NoError(t, err)
			assert.Equal(t, tt.rowCount, inserted)

			require.Len(t, ins.batches, len(tt.wantBatches))
			for i, want := range tt.wantBatches {
				assert.Len(t, ins.batches[i], want)
			}
		})
	}
}

func TestInsertRowsBatchFailure(t *testing.T) {
	ins := &fakeInserter{failOn: 2}
	loader := newLoaderForTest(ins, &fakeLister{}, 2, discardLogger())

	inserted, err := loader.InsertRows(context.Background(), makeRows(5))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert batch")
	assert.Equal(t, 2, inserted)
}

func TestFilterNew(t *testing.T) {
	lister := &fakeLister{ids: []string{"a", "c"}}
	loader := newLoaderForTest(&fakeInserter{}, lister, 10, discardLogger())

	rows := []Row{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}}
	fresh, err := loader.FilterNew(context.Background(), rows)
	require.NoError(t, err)

	require.Len(t, fresh, 2)
	assert.Equal(t, "b", fresh[0].ID)
	assert.Equal(t, "d", fresh[1].ID)
}

func TestKnown(t *testing.T) {
	lister := &fakeLister{ids: []string{"a", "c"}}
	loader := newLoaderForTest(&fakeInserter{}, lister, 10, discardLogger())

	known, err := loader.Known(context.Background())
	require.NoError(t, err)

	assert.True(t, known("a"))
	assert.False(t, known("b"))
	assert.True(t, known("c"))
}

func TestKnownSharesCacheWithFilterNew(t *testing.T) {
	lister := &fakeLister{ids: []string{"a"}}
	loader := newLoaderForTest(&fakeInserter{}, lister, 10, discardLogger())

	_, err := loader.Known(context.Background())
	require.NoError(t, err)
	_, err = loader.FilterNew(context.Background(), []Row{{ID: "a"}})
	require.NoError(t, err)

	assert.Equal(t, 1, lister.calls)
}

func TestKnownListError(t *testing.T) {
	lister := &fakeLister{err: errors.New("query failed")}
	loader := newLoaderForTest(&fakeInserter{}, lister, 10, discardLogger())

	_, err := loader.Known(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list existing IDs")
}

func TestFilterNewCachesExistingIDs(t *testing.T) {
	lister := &fakeLister{ids: []string{"a"}}
	loader := newLoaderForTest(&fakeInserter{}, lister, 10, discardLogger())

	_, err := loader.FilterNew(context.Background(), []Row{{ID: "a"}})
	require.NoError(t, err)
	_, err = loader.FilterNew(context.Background(), []Row{{ID: "b"}})
	require.NoError(t, err)

	assert.Equal(t, 1, lister.calls)
}

func TestFilterNewAfterInvalidate(t *testing.T) {
	lister := &fakeLister{ids: []string{"a"}}
	loader := newLoaderForTest(&fakeInserter{}, lister, 10, discardLogger())

	_, err := loader.FilterNew(context.Background(), nil)
	require.NoError(t, err)

	loader.InvalidateCache()

	_, err = loader.FilterNew(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, lister.calls)
}

func TestFilterNewListError(t *testing.T) {
	lister := &fakeLister{err: errors.New("query failed")}
	loader := newLoaderForTest(&fakeInserter{}, lister, 10, discardLogger())

	_, err := loader.FilterNew(context.Background(), []Row{{ID: "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list existing IDs")
}
