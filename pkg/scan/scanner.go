// Package scan finds glossary terms, and nouns that could become glossary
// terms, in web pages and local documents.
package scan

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/digitalsleuth/dfir-glossary/pkg/db"
	"github.com/rs/zerolog"
)

// Match is a glossary entry found in a document.
type Match struct {
	Entry db.Entry
	Count int
}

// Candidate is a noun from a document that is not yet a glossary term.
type Candidate struct {
	Text    string
	Reading string
	Count   int
}

// Report is the scan result for one source. Err is set when the source
// could not be loaded; the other fields are then empty.
type Report struct {
	Source     string
	Title      string
	Matches    []Match
	Candidates []Candidate
	Err        error
}

// Scanner runs documents through extraction, tokenization and term matching.
type Scanner struct {
	Analyzer *Analyzer
	Client   *http.Client
	Workers  int
	Logger   zerolog.Logger
}

// NewScanner creates a Scanner with its own analyzer.
func NewScanner(logger zerolog.Logger) (*Scanner, error) {
	a, err := NewAnalyzer()
	if err != nil {
		return nil, err
	}
	return &Scanner{
		Analyzer: a,
		Client:   &http.Client{Timeout: 30 * time.Second},
		Workers:  4,
		Logger:   logger,
	}, nil
}

// Scan processes sources concurrently and returns one report per source in
// input order. entries is the glossary snapshot to match against; the
// scanner never reads the store itself.
func (s *Scanner) Scan(ctx context.Context, entries []db.Entry, sources []string) ([]Report, error) {
	idx := NewTermIndex(entries)
	reports := make([]Report, len(sources))

	pool := NewWorkerPool(s.Workers, len(sources))
	pool.Start(ctx)
	defer pool.Close()

	for i, src := range sources {
		err := pool.SubmitCtx(ctx, func(ctx context.Context) error {
			// Each job owns reports[i].
			reports[i] = s.scanOne(ctx, idx, src)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	pool.Close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return reports, nil
}

func (s *Scanner) scanOne(ctx context.Context, idx *TermIndex, source string) Report {
	start := time.Now()
	doc, err := Extract(ctx, s.Client, source)
	if err != nil {
		s.Logger.Warn().Err(err).Str("source", source).Msg("scan failed")
		return Report{Source: source, Err: err}
	}
	rep := s.ScanText(idx, doc.Text)
	rep.Source = source
	rep.Title = doc.Title
	s.Logger.Debug().
		Str("source", source).
		Int("matches", len(rep.Matches)).
		Int("candidates", len(rep.Candidates)).
		Dur("took", time.Since(start)).
		Msg("scanned")
	return rep
}

// ScanText matches text against the glossary index.
func (s *Scanner) ScanText(idx *TermIndex, text string) Report {
	var rep Report
	folded := db.Fold(text)
	for _, t := range idx.terms {
		if n := countTerm(folded, t.folded); n > 0 {
			rep.Matches = append(rep.Matches, Match{Entry: t.entry, Count: n})
		}
	}
	sort.SliceStable(rep.Matches, func(i, j int) bool {
		if rep.Matches[i].Count != rep.Matches[j].Count {
			return rep.Matches[i].Count > rep.Matches[j].Count
		}
		return db.CompareTerms(rep.Matches[i].Entry.Term, rep.Matches[j].Entry.Term) < 0
	})

	counts := make(map[string]*Candidate)
	var order []string
	for _, sent := range s.Analyzer.AnalyzeDocument(text) {
		for _, tok := range sent.Tokens {
			if !isCandidate(tok) {
				continue
			}
			word := tok.Surface
			if tok.Base != "" && tok.Base != "*" {
				word = tok.Base
			}
			if idx.has(word) {
				continue
			}
			c, ok := counts[word]
			if !ok {
				c = &Candidate{Text: word, Reading: ToHiragana(tok.Reading)}
				counts[word] = c
				order = append(order, word)
			}
			c.Count++
		}
	}
	for _, w := range order {
		rep.Candidates = append(rep.Candidates, *counts[w])
	}
	sort.SliceStable(rep.Candidates, func(i, j int) bool {
		return rep.Candidates[i].Count > rep.Candidates[j].Count
	})
	return rep
}

// isCandidate keeps nouns, dropping numbers, pronouns and dependent nouns.
// ASCII words only count when they look like acronyms ("NTFS", "$MFT").
func isCandidate(t Token) bool {
	if t.pos(0) != "名詞" {
		return false
	}
	switch t.pos(1) {
	case "数", "代名詞", "非自立", "接尾":
		return false
	}
	if isASCII(t.Surface) {
		return upperCount(t.Surface) >= 2
	}
	return true
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func upperCount(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsUpper(r) {
			n++
		}
	}
	return n
}

type indexedTerm struct {
	entry  db.Entry
	folded string
}

// TermIndex holds case-folded glossary terms for matching.
type TermIndex struct {
	terms  []indexedTerm
	folded map[string]struct{}
}

// NewTermIndex prepares entries for repeated ScanText calls.
func NewTermIndex(entries []db.Entry) *TermIndex {
	idx := &TermIndex{folded: make(map[string]struct{}, len(entries))}
	for _, e := range entries {
		f := db.Fold(e.Term)
		if strings.TrimSpace(f) == "" {
			continue
		}
		idx.terms = append(idx.terms, indexedTerm{entry: e, folded: f})
		idx.folded[f] = struct{}{}
	}
	return idx
}

func (idx *TermIndex) has(word string) bool {
	_, ok := idx.folded[db.Fold(word)]
	return ok
}

// countTerm counts non-overlapping occurrences of term in text. Both are
// already folded. Edges made of letters or digits in alphabetic scripts
// must not touch another such character, so "ram" does not match "program".
func countTerm(text, term string) int {
	first, _ := utf8.DecodeRuneInString(term)
	last, _ := utf8.DecodeLastRuneInString(term)
	checkStart, checkEnd := isWordRune(first), isWordRune(last)

	n := 0
	for i := 0; i < len(text); {
		j := strings.Index(text[i:], term)
		if j < 0 {
			break
		}
		pos := i + j
		end := pos + len(term)
		ok := true
		if checkStart && pos > 0 {
			prev, _ := utf8.DecodeLastRuneInString(text[:pos])
			ok = !isWordRune(prev)
		}
		if ok && checkEnd && end < len(text) {
			next, _ := utf8.DecodeRuneInString(text[end:])
			ok = !isWordRune(next)
		}
		if ok {
			n++
			i = end
		} else {
			_, size := utf8.DecodeRuneInString(text[pos:])
			i = pos + size
		}
	}
	return n
}

// isWordRune reports whether r belongs to a space-delimited script word.
func isWordRune(r rune) bool {
	if unicode.IsDigit(r) {
		return true
	}
	return unicode.IsLetter(r) && !unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}
