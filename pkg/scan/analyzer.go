package scan

import (
	"strings"
	"sync"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"
)

// Token is one morpheme of scanned text.
type Token struct {
	Surface string
	// Base is the dictionary form, or Surface for unknown words.
	Base string
	// Reading is katakana; empty for unknown words.
	Reading string
	// POS holds the IPA part-of-speech levels, e.g. ["名詞", "固有名詞", "組織", "*"].
	POS []string
}

// Sentence is a run of text ending in 。！？ or a newline.
type Sentence struct {
	Text   string
	Tokens []Token
}

// Analyzer wraps a kagome tokenizer. It is safe for concurrent use.
type Analyzer struct {
	mu sync.Mutex
	t  *tokenizer.Tokenizer
}

// NewAnalyzer loads the IPA dictionary.
func NewAnalyzer() (*Analyzer, error) {
	t, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, err
	}
	return &Analyzer{t: t}, nil
}

// Analyze tokenizes text, dropping whitespace.
func (a *Analyzer) Analyze(text string) []Token {
	a.mu.Lock()
	raw := a.t.Tokenize(text)
	a.mu.Unlock()

	out := make([]Token, 0, len(raw))
	for _, tok := range raw {
		if tok.Class == tokenizer.DUMMY || strings.TrimSpace(tok.Surface) == "" {
			continue
		}
		t := Token{Surface: tok.Surface, Base: tok.Surface, POS: tok.POS()}
		if base, ok := tok.BaseForm(); ok && base != "*" {
			t.Base = base
		}
		if r, ok := tok.Reading(); ok && r != "*" {
			t.Reading = r
		}
		out = append(out, t)
	}
	return out
}

// pos returns the i-th part-of-speech level or "".
func (t Token) pos(i int) string {
	if i < len(t.POS) {
		return t.POS[i]
	}
	return ""
}

// AnalyzeDocument tokenizes text sentence by sentence, skipping blank ones.
func (a *Analyzer) AnalyzeDocument(text string) []Sentence {
	var out []Sentence
	for _, s := range splitSentences(text) {
		if strings.TrimSpace(s) != "" {
			out = append(out, Sentence{Text: s, Tokens: a.Analyze(s)})
		}
	}
	return out
}

// splitSentences cuts text after each terminator, keeping it on the sentence.
func splitSentences(text string) []string {
	var out []string
	for text != "" {
		i := strings.IndexAny(text, "。！？\n")
		if i < 0 {
			out = append(out, text)
			break
		}
		// Terminators are 1 (newline) or 3 bytes long.
		n := 3
		if text[i] == '\n' {
			n = 1
		}
		out = append(out, text[:i+n])
		text = text[i+n:]
	}
	return out
}

// ToHiragana maps katakana ァ..ヶ onto hiragana; other runes pass through.
func ToHiragana(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'ァ' && r <= 'ヶ' {
			return r - ('ァ' - 'ぁ')
		}
		return r
	}, s)
}
