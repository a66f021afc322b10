package ingest

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/digitalsleuth/dfir-glossary/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDB(t *testing.T) *db.Store {
	t.Helper()
	s, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func insert(term string) WriteFunc {
	return func(ctx context.Context, tx *sql.Tx) error {
		_, err := db.InsertEntry(tx, term, "", "")
		return err
	}
}

func TestBatchWriterTransactions(t *testing.T) {
	s := setupDB(t)
	ctx := context.Background()

	bw := NewBatchWriter(s.DB(), 2)
	var committed []int
	bw.OnCommit = func(n int) { committed = append(committed, n) }

	require.NoError(t, bw.Submit(ctx, insert("A")))
	assert.Equal(t, 1, bw.Pending())
	require.NoError(t, bw.Submit(ctx, insert("B")))
	assert.Zero(t, bw.Pending())
	require.NoError(t, bw.Submit(ctx, insert("C")))
	require.NoError(t, bw.Close(ctx))

	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []int{2, 1}, committed)
}

func TestBatchWriterRollback(t *testing.T) {
	s := setupDB(t)
	ctx := context.Background()

	bw := NewBatchWriter(s.DB(), 2)
	var reported error
	bw.OnError = func(e error) { reported = e }

	// Batch of 2: first succeeds, second fails. Whole batch should roll back.
	require.NoError(t, bw.Submit(ctx, insert("C")))
	err := bw.Submit(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return errors.New("intentional error")
	})
	require.Error(t, err)
	assert.Equal(t, err, reported)

	n, err := s.Count()
	require.NoError(t, err)
	assert.Zero(t, n)

	// The writer stays usable after a failed batch.
	require.NoError(t, bw.Submit(ctx, insert("D")))
	require.NoError(t, bw.Close(ctx))
	n, err = s.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBatchWriterSubmitAfterClose(t *testing.T) {
	s := setupDB(t)
	ctx := context.Background()
	bw := NewBatchWriter(s.DB(), 0)
	require.NoError(t, bw.Close(ctx))
	assert.Equal(t, ErrBatchWriterClosed, bw.Submit(ctx, insert("A")))
	assert.Equal(t, ErrBatchWriterClosed, bw.Close(ctx))
}

func TestBatchWriterCanceledContext(t *testing.T) {
	s := setupDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	bw := NewBatchWriter(s.DB(), 1)
	err := bw.Submit(ctx, insert("A"))
	require.Error(t, err)

	n, err := s.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}
