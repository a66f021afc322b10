// Package ingest bulk-loads glossary records into the database in batched
// transactions.
package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/digitalsleuth/dfir-glossary/pkg/db"
	"github.com/digitalsleuth/dfir-glossary/pkg/dictionary"
	"github.com/rs/zerolog"
)

// Policy decides what happens to a record whose term is already stored.
type Policy int

const (
	// PolicySkip leaves the stored entry untouched.
	PolicySkip Policy = iota
	// PolicyFillMissing sets definition and source only where the stored value is empty.
	PolicyFillMissing
	// PolicyOverwrite replaces definition and source with the record's non-empty values.
	PolicyOverwrite
)

// ParsePolicy maps a policy name to a Policy.
func ParsePolicy(name string) (Policy, error) {
	switch name {
	case "", "skip":
		return PolicySkip, nil
	case "fill", "fill-missing":
		return PolicyFillMissing, nil
	case "overwrite":
		return PolicyOverwrite, nil
	default:
		return 0, fmt.Errorf("unknown import policy %q", name)
	}
}

// Stats counts committed work.
type Stats struct {
	Added   int
	Updated int
	Skipped int
	Invalid int
}

func (s *Stats) add(o Stats) {
	s.Added += o.Added
	s.Updated += o.Updated
	s.Skipped += o.Skipped
	s.Invalid += o.Invalid
}

// Ingester handles the ingestion of glossary records into the database.
type Ingester struct {
	DB        *sql.DB
	BatchSize int
	Policy    Policy
	Logger    zerolog.Logger
	// OnProgress is called after each committed batch with the number of
	// processed records and total records.
	OnProgress func(current, total int)
}

// NewIngester creates a new Ingester.
func NewIngester(conn *sql.DB) *Ingester {
	return &Ingester{
		DB:        conn,
		BatchSize: 100,
		Policy:    PolicySkip,
		Logger:    zerolog.Nop(),
	}
}

// Ingest writes records and returns counts for the batches that committed.
// It stops at the first failing batch or when ctx is canceled; earlier
// batches stay committed.
func (ig *Ingester) Ingest(ctx context.Context, records []dictionary.Record) (Stats, error) {
	var total, pending Stats
	processed, inBatch := 0, 0

	bw := NewBatchWriter(ig.DB, ig.BatchSize)
	bw.OnCommit = func(n int) {
		total.add(pending)
		pending = Stats{}
		processed += inBatch
		inBatch = 0
		if ig.OnProgress != nil {
			ig.OnProgress(processed, len(records))
		}
	}
	bw.OnError = func(err error) {
		pending = Stats{}
		inBatch = 0
		ig.Logger.Error().Err(err).Int("processed", processed).Msg("import batch rolled back")
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		if strings.TrimSpace(rec.Term) == "" {
			total.Invalid++
			processed++
			continue
		}

		r := rec
		inBatch++
		err := bw.Submit(ctx, func(ctx context.Context, tx *sql.Tx) error {
			return ig.writeRecord(tx, r, &pending)
		})
		if err != nil {
			return total, err
		}
	}
	if err := bw.Close(ctx); err != nil {
		return total, err
	}

	ig.Logger.Info().
		Int("added", total.Added).
		Int("updated", total.Updated).
		Int("skipped", total.Skipped).
		Int("invalid", total.Invalid).
		Msg("import complete")
	return total, nil
}

func (ig *Ingester) writeRecord(tx *sql.Tx, r dictionary.Record, st *Stats) error {
	existing, err := db.GetEntry(tx, r.Term)
	if errors.Is(err, db.ErrNotFound) {
		if _, err := db.InsertEntry(tx, r.Term, r.Definition, r.Source); err != nil {
			return fmt.Errorf("failed to add %q: %w", r.Term, err)
		}
		st.Added++
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up %q: %w", r.Term, err)
	}

	var changed bool
	set := func(field db.Field, current, incoming string) error {
		if incoming == "" || incoming == current {
			return nil
		}
		if ig.Policy == PolicyFillMissing && current != "" {
			return nil
		}
		if err := db.SetEntryField(tx, existing.ID, field, incoming); err != nil {
			return fmt.Errorf("failed to update %s of %q: %w", field, r.Term, err)
		}
		changed = true
		return nil
	}

	if ig.Policy == PolicySkip {
		st.Skipped++
		return nil
	}
	if err := set(db.FieldDefinition, existing.Definition, r.Definition); err != nil {
		return err
	}
	if err := set(db.FieldSource, existing.Source, r.Source); err != nil {
		return err
	}
	if changed {
		st.Updated++
	} else {
		st.Skipped++
	}
	return nil
}
