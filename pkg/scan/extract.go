package scan

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-shiori/go-readability"
)

// maxBodySize caps HTML fetched from untrusted URLs.
const maxBodySize = 10 * 1024 * 1024

// Document is the readable text of a scanned source.
type Document struct {
	Source string
	Title  string
	Text   string
}

// IsURL reports whether source should be fetched over HTTP.
func IsURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// Extract loads source, a URL or a file path, and returns its readable text.
// HTML is reduced to the main article with readability; other files are
// read as plain text.
func Extract(ctx context.Context, client *http.Client, source string) (Document, error) {
	if IsURL(source) {
		return fetchURL(ctx, client, source)
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return Document{}, err
	}
	switch strings.ToLower(filepath.Ext(source)) {
	case ".html", ".htm", ".xhtml":
		abs, err := filepath.Abs(source)
		if err != nil {
			return Document{}, err
		}
		return fromHTML(source, data, &url.URL{Scheme: "file", Path: filepath.ToSlash(abs)})
	default:
		return Document{Source: source, Title: filepath.Base(source), Text: string(data)}, nil
	}
}

func fetchURL(ctx context.Context, client *http.Client, source string) (Document, error) {
	pageURL, err := url.Parse(source)
	if err != nil {
		return Document{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return Document{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9,ja;q=0.8")

	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Document{}, fmt.Errorf("fetch %s: status %d", source, resp.StatusCode)
	}
	if resp.ContentLength > maxBodySize {
		return Document{}, fmt.Errorf("content-length %d exceeds limit of %d bytes", resp.ContentLength, maxBodySize)
	}

	// Read one byte past the limit so an oversized body is detected.
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return Document{}, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(body) > maxBodySize {
		return Document{}, fmt.Errorf("response body exceeded maximum size limit of %d bytes", maxBodySize)
	}

	ct := resp.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "text/plain") {
		return Document{Source: source, Title: pageURL.Host + pageURL.Path, Text: string(body)}, nil
	}
	return fromHTML(source, body, pageURL)
}

func fromHTML(source string, body []byte, pageURL *url.URL) (Document, error) {
	body = SanitizeRuby(body)
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		return Document{}, fmt.Errorf("failed to extract article: %w", err)
	}
	return Document{Source: source, Title: article.Title, Text: article.TextContent}, nil
}

var (
	// (?s) allows dot to match newlines
	// (?i) makes it case-insensitive
	reRT = regexp.MustCompile(`(?si)<rt\b[^>]*>.*?</rt>`)
	reRP = regexp.MustCompile(`(?si)<rp\b[^>]*>.*?</rp>`)
)

// SanitizeRuby removes ruby text (<rt>...</rt>) and ruby parentheses (<rp>...</rp>)
// from HTML content so furigana is not duplicated into the extracted text
// (e.g. "漢字" becoming "漢字かんじ").
func SanitizeRuby(content []byte) []byte {
	cleaned := reRT.ReplaceAll(content, []byte{})
	cleaned = reRP.ReplaceAll(cleaned, []byte{})
	return cleaned
}
