package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/digitalsleuth/dfir-glossary/pkg/db"
	"github.com/digitalsleuth/dfir-glossary/pkg/dictionary"
	"github.com/digitalsleuth/dfir-glossary/pkg/export"
	"github.com/digitalsleuth/dfir-glossary/pkg/ingest"
	"github.com/digitalsleuth/dfir-glossary/pkg/scan"
)

func (rt *env) initCommand(c *cli.Context) error {
	store, err := db.Create(rt.cfg.Database, db.WithLogger(rt.log))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer store.Close()

	n, err := store.Count()
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	fmt.Fprintf(c.App.Writer, "Database ready at %s (%d entries)\n", store.Path(), n)
	return nil
}

func (rt *env) listCommand(c *cli.Context) error {
	store, err := rt.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	var entries []db.Entry
	if c.Bool("by-id") {
		entries, err = store.ListAll()
	} else {
		entries, err = store.ListSorted()
	}
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return printEntries(c.App.Writer, entries)
}

func (rt *env) searchCommand(c *cli.Context) error {
	store, err := rt.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.Search(strings.Join(c.Args().Slice(), " "))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if len(entries) == 0 {
		fmt.Fprintln(c.App.Writer, "No matching entries.")
		return nil
	}
	return printEntries(c.App.Writer, entries)
}

func (rt *env) showCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: glossary show <term>", 2)
	}
	store, err := rt.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	e, err := store.Get(c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	fmt.Fprintf(c.App.Writer, "Term:       %s\nDefinition: %s\nSource:     %s\n", e.Term, e.Definition, e.Source)
	return nil
}

func (rt *env) addCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: glossary add [--definition text] [--source text] <term>", 2)
	}
	store, err := rt.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	e, err := store.Add(c.Args().First(), c.String("definition"), c.String("source"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	fmt.Fprintf(c.App.Writer, "Added %q (id %d)\n", e.Term, e.ID)
	return nil
}

func (rt *env) updateCommand(c *cli.Context) error {
	if c.NArg() != 3 {
		return cli.Exit("usage: glossary update <term> <definition|source> <value>", 2)
	}
	field, err := db.ParseField(c.Args().Get(1))
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	store, err := rt.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	e, err := store.UpdateField(c.Args().Get(0), field, c.Args().Get(2))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	fmt.Fprintf(c.App.Writer, "Updated %s of %q\n", field, e.Term)
	return nil
}

func (rt *env) removeCommand(c *cli.Context) error {
	terms := c.Args().Slice()
	ids := c.Int64Slice("id")
	if len(terms) == 0 && len(ids) == 0 {
		return cli.Exit("usage: glossary remove [--id n]... [term...]", 2)
	}
	store, err := rt.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	removed, err := store.RemoveEntries(terms, ids)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	fmt.Fprintf(c.App.Writer, "Removed %d entries\n", removed)
	return nil
}

func (rt *env) exportCommand(c *cli.Context) error {
	terms := c.Args().Slice()
	if len(terms) == 0 && !c.Bool("all") {
		return cli.Exit("usage: glossary export [--output file] (--all | term...)", 2)
	}
	store, err := rt.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if c.Bool("all") {
		entries, err := store.ListAll()
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		terms = terms[:0]
		for _, e := range entries {
			terms = append(terms, e.Term)
		}
	}
	rows, err := store.ExportSubset(terms)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	out := c.String("output")
	if out == "" {
		return export.WriteCSV(c.App.Writer, rows)
	}
	if err := export.WriteFile(out, rows); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	fmt.Fprintf(c.App.ErrWriter, "Exported %d entries to %s\n", len(rows), out)
	return nil
}

func (rt *env) importCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: glossary import [--policy skip|fill-missing|overwrite] <file>", 2)
	}
	policy, err := ingest.ParsePolicy(c.String("policy"))
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	records, err := dictionary.LoadFile(c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	store, err := rt.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ig := ingest.NewIngester(store.DB())
	ig.Policy = policy
	ig.BatchSize = c.Int("batch-size")
	ig.Logger = rt.log
	ig.OnProgress = func(current, total int) {
		rt.log.Info().Int("current", current).Int("total", total).Msg("import progress")
	}

	st, err := ig.Ingest(c.Context, records)
	fmt.Fprintf(c.App.Writer, "Added %d, updated %d, skipped %d, invalid %d\n", st.Added, st.Updated, st.Skipped, st.Invalid)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return nil
}

func (rt *env) fetchCommand(c *cli.Context) error {
	d := dictionary.NewDownloader(rt.log)
	d.Owner = rt.cfg.Download.Owner
	d.Repo = rt.cfg.Download.Repo
	d.APIBase = rt.cfg.Download.APIBase

	var err error
	if c.Bool("force") {
		err = d.Download(c.Context, rt.cfg.Database)
	} else {
		err = d.EnsureDatabase(c.Context, rt.cfg.Database)
	}
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	store, err := rt.openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	n, err := store.Count()
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	fmt.Fprintf(c.App.Writer, "Database ready at %s (%d entries)\n", rt.cfg.Database, n)
	return nil
}

func (rt *env) scanCommand(c *cli.Context) error {
	sources := c.Args().Slice()
	if len(sources) == 0 {
		return cli.Exit("usage: glossary scan <url|file>...", 2)
	}
	store, err := rt.openStore()
	if err != nil {
		return err
	}
	entries, err := store.ListAll()
	store.Close()
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	timeout, err := rt.cfg.ScanTimeout()
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	scanner, err := scan.NewScanner(rt.log)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	scanner.Client = &http.Client{Timeout: timeout}
	scanner.Workers = rt.cfg.Scan.Workers
	if n := c.Int("workers"); n > 0 {
		scanner.Workers = n
	}

	reports, err := scanner.Scan(c.Context, entries, sources)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	failed := 0
	for _, rep := range reports {
		printReport(c.App.Writer, rep, c.Int("candidates"))
		if rep.Err != nil {
			failed++
		}
	}
	if failed == len(reports) {
		return cli.Exit("no source could be scanned", 1)
	}
	return nil
}

func printEntries(w io.Writer, entries []db.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTERM\tDEFINITION\tSOURCE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.ID, oneLine(e.Term), oneLine(e.Definition), oneLine(e.Source))
	}
	return tw.Flush()
}

func printReport(w io.Writer, rep scan.Report, maxCandidates int) {
	fmt.Fprintf(w, "== %s\n", rep.Source)
	if rep.Err != nil {
		fmt.Fprintf(w, "   error: %v\n", rep.Err)
		return
	}
	if rep.Title != "" {
		fmt.Fprintf(w, "   title: %s\n", rep.Title)
	}
	fmt.Fprintf(w, "   glossary terms: %d\n", len(rep.Matches))
	for _, m := range rep.Matches {
		fmt.Fprintf(w, "     %-30s %d\n", m.Entry.Term, m.Count)
	}
	if maxCandidates <= 0 || len(rep.Candidates) == 0 {
		return
	}
	fmt.Fprintln(w, "   candidate terms:")
	for i, cand := range rep.Candidates {
		if i == maxCandidates {
			break
		}
		if cand.Reading != "" && cand.Reading != cand.Text {
			fmt.Fprintf(w, "     %-30s %d (%s)\n", cand.Text, cand.Count, cand.Reading)
		} else {
			fmt.Fprintf(w, "     %-30s %d\n", cand.Text, cand.Count)
		}
	}
}

func oneLine(s string) string {
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\t", " ").Replace(s)
}
