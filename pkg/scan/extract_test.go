package scan

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const articleHTML = `<!DOCTYPE html>
<html><head><title>Windows Artifacts</title></head>
<body>
<nav><a href="/">Home</a> | <a href="/about">About</a></nav>
<article>
<h1>Windows Artifacts</h1>
<p>The Master File Table is the heart of NTFS. Every file on an NTFS volume has at least one
record in the Master File Table, and investigators parse it to build timelines of file creation,
modification and deletion. Deleted records often remain in the table until they are reused.</p>
<p>Prefetch files record application launches. Each Prefetch file stores the executable name,
a run count and the last run times, which makes Prefetch one of the first artifacts an examiner
reviews when answering the question of what ran on a system and when it ran.</p>
<p>The <ruby>漢字<rp>(</rp><rt>かんじ</rt><rp>)</rp></ruby> example shows ruby text that should not be duplicated
into the extracted article text when the page is processed by the scanner for glossary terms.</p>
</article>
<footer>Copyright example.com</footer>
</body></html>`

func TestSanitizeRuby(t *testing.T) {
	in := []byte(`<ruby>漢字<rp>(</rp><RT class="x">かんじ</RT><rp>)</rp></ruby>`)
	assert.Equal(t, "<ruby>漢字</ruby>", string(SanitizeRuby(in)))
}

func TestExtractHTMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(path, []byte(articleHTML), 0o644))

	doc, err := Extract(context.Background(), nil, path)
	require.NoError(t, err)
	assert.Contains(t, doc.Title, "Windows Artifacts")
	assert.Contains(t, doc.Text, "Master File Table")
	assert.Contains(t, doc.Text, "漢字")
	assert.NotContains(t, doc.Text, "かんじ")
	assert.NotContains(t, doc.Text, "<p>")
}

func TestExtractTextFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("<b>raw</b> text"), 0o644))

	doc, err := Extract(context.Background(), nil, path)
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", doc.Title)
	assert.Equal(t, "<b>raw</b> text", doc.Text)
}

func TestExtractMissingFile(t *testing.T) {
	_, err := Extract(context.Background(), nil, filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}

func TestExtractURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/article":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte(articleHTML))
		case "/plain":
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Write([]byte("SRUM and Amcache"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	doc, err := Extract(context.Background(), srv.Client(), srv.URL+"/article")
	require.NoError(t, err)
	assert.Contains(t, doc.Text, "Prefetch")

	doc, err = Extract(context.Background(), srv.Client(), srv.URL+"/plain")
	require.NoError(t, err)
	assert.Equal(t, "SRUM and Amcache", doc.Text)

	_, err = Extract(context.Background(), srv.Client(), srv.URL+"/gone")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestExtractURLTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(strings.Repeat("a", maxBodySize+10)))
	}))
	defer srv.Close()

	_, err := Extract(context.Background(), srv.Client(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit")
}

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("https://example.com"))
	assert.True(t, IsURL("http://example.com"))
	assert.False(t, IsURL("./page.html"))
	assert.False(t, IsURL("ftp://example.com"))
}
