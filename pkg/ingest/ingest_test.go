package ingest

import (
	"context"
	"fmt"
	"testing"

	"github.com/digitalsleuth/dfir-glossary/pkg/dictionary"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestAddsNewTerms(t *testing.T) {
	s := setupDB(t)
	ig := NewIngester(s.DB())
	ig.BatchSize = 2 // Verify batching doesn't interfere

	var progress [][2]int
	ig.OnProgress = func(cur, total int) { progress = append(progress, [2]int{cur, total}) }

	st, err := ig.Ingest(context.Background(), []dictionary.Record{
		{Term: "MFT", Definition: "Master File Table", Source: "Microsoft"},
		{Term: "USN", Definition: "Update Sequence Number"},
		{Term: "  ", Definition: "no term"},
		{Term: "LNK", Definition: "Shortcut"},
		{Term: "MFT", Definition: "again"},
	})
	require.NoError(t, err)
	assert.Equal(t, Stats{Added: 3, Skipped: 1, Invalid: 1}, st)
	assert.Equal(t, [][2]int{{2, 5}, {5, 5}}, progress)

	e, err := s.Get("MFT")
	require.NoError(t, err)
	assert.Equal(t, "Master File Table", e.Definition)
}

func TestIngestFillMissing(t *testing.T) {
	s := setupDB(t)
	_, err := s.Add("Prefetch", "", "")
	require.NoError(t, err)
	_, err = s.Add("Amcache", "Execution artifact", "")
	require.NoError(t, err)

	ig := NewIngester(s.DB())
	ig.Policy = PolicyFillMissing
	st, err := ig.Ingest(context.Background(), []dictionary.Record{
		{Term: "Prefetch", Definition: "Application launch cache", Source: "SANS"},
		{Term: "Amcache", Definition: "replacement", Source: "Microsoft"},
		{Term: "Amcache", Definition: "", Source: "ignored, already set"},
	})
	require.NoError(t, err)
	assert.Equal(t, Stats{Updated: 2, Skipped: 1}, st)

	e, err := s.Get("Prefetch")
	require.NoError(t, err)
	assert.Equal(t, "Application launch cache", e.Definition)
	assert.Equal(t, "SANS", e.Source)

	e, err = s.Get("Amcache")
	require.NoError(t, err)
	assert.Equal(t, "Execution artifact", e.Definition)
	assert.Equal(t, "Microsoft", e.Source)
}

func TestIngestOverwrite(t *testing.T) {
	s := setupDB(t)
	orig, err := s.Add("SRUM", "old", "old source")
	require.NoError(t, err)

	ig := NewIngester(s.DB())
	ig.Policy = PolicyOverwrite
	st, err := ig.Ingest(context.Background(), []dictionary.Record{
		{Term: "SRUM", Definition: "System Resource Usage Monitor"},
	})
	require.NoError(t, err)
	assert.Equal(t, Stats{Updated: 1}, st)

	e, err := s.Get("SRUM")
	require.NoError(t, err)
	assert.Equal(t, orig.ID, e.ID)
	assert.Equal(t, "System Resource Usage Monitor", e.Definition)
	assert.Equal(t, "old source", e.Source)
}

func TestIngestContextCancel(t *testing.T) {
	s := setupDB(t)
	records := make([]dictionary.Record, 100)
	for i := range records {
		records[i] = dictionary.Record{Term: fmt.Sprintf("term-%d", i)}
	}

	ig := NewIngester(s.DB())
	ig.BatchSize = 10

	// Create a context that is ALREADY canceled
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	st, err := ig.Ingest(ctx, records)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Stats{}, st)

	n, err := s.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIngestFailedBatchIsNotCounted(t *testing.T) {
	s := setupDB(t)
	_, err := s.DB().Exec(`CREATE TRIGGER no_bad BEFORE INSERT ON glossary
		WHEN new.term = 'bad' BEGIN SELECT RAISE(ABORT, 'rejected'); END`)
	require.NoError(t, err)

	ig := NewIngester(s.DB())
	ig.BatchSize = 2
	st, err := ig.Ingest(context.Background(), []dictionary.Record{
		{Term: "one"}, {Term: "two"},
		{Term: "three"}, {Term: "bad"},
		{Term: "five"},
	})
	require.Error(t, err)
	assert.Equal(t, Stats{Added: 2}, st)

	all, err := s.ListAll()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "one", all[0].Term)
}

func TestParsePolicy(t *testing.T) {
	for name, want := range map[string]Policy{
		"":             PolicySkip,
		"skip":         PolicySkip,
		"fill-missing": PolicyFillMissing,
		"fill":         PolicyFillMissing,
		"overwrite":    PolicyOverwrite,
	} {
		got, err := ParsePolicy(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err := ParsePolicy("merge")
	require.Error(t, err)
}
