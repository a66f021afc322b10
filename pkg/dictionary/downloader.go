package dictionary

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DatabaseFileName is the name of the glossary database the application expects.
	DatabaseFileName = "glossdb.sqlite"

	DefaultOwner   = "digitalsleuth"
	DefaultRepo    = "dfir-glossary"
	DefaultAPIBase = "https://api.github.com"

	maxDownloadSize = 256 << 20
)

// ErrDownloadTooLarge is returned when a download, or the database inside a
// compressed download, exceeds the size limit.
var ErrDownloadTooLarge = errors.New("download exceeds size limit")

// Downloader fetches the published glossary database from a GitHub release.
type Downloader struct {
	Owner   string
	Repo    string
	APIBase string
	Client  *http.Client
	Logger  zerolog.Logger
	// MaxSize bounds both the transferred and the decompressed bytes.
	MaxSize int64
}

// NewDownloader returns a Downloader for the upstream repository.
func NewDownloader(logger zerolog.Logger) *Downloader {
	return &Downloader{
		Owner:   DefaultOwner,
		Repo:    DefaultRepo,
		APIBase: DefaultAPIBase,
		Client:  &http.Client{Timeout: 60 * time.Second},
		Logger:  logger,
		MaxSize: maxDownloadSize,
	}
}

// EnsureDatabase checks if the database exists at path.
// If not, it discovers the latest release and downloads it.
func (d *Downloader) EnsureDatabase(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	d.Logger.Info().Str("path", path).Msg("glossary database not found, downloading")
	return d.Download(ctx, path)
}

// Download replaces path with the database from the latest release.
func (d *Downloader) Download(ctx context.Context, path string) error {
	downloadURL, err := d.latestReleaseAssetURL(ctx)
	if err != nil {
		return fmt.Errorf("failed to find latest glossary release: %w", err)
	}
	d.Logger.Info().Str("url", downloadURL).Msg("downloading glossary database")
	return d.downloadAndExtract(ctx, downloadURL, path)
}

func (d *Downloader) client() *http.Client {
	if d.Client != nil {
		return d.Client
	}
	return http.DefaultClient
}

func (d *Downloader) latestReleaseAssetURL(ctx context.Context) (string, error) {
	apiURL := fmt.Sprintf("%s/repos/%s/%s/releases/latest", strings.TrimRight(d.APIBase, "/"), d.Owner, d.Repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return "", err
	}
	// Add User-Agent as required by GitHub API
	req.Header.Set("User-Agent", "dfir-glossary-cli")
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := d.client().Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("github api returned status: %s", resp.Status)
	}

	var release struct {
		TagName string `json:"tag_name"`
		Assets  []struct {
			Name               string `json:"name"`
			BrowserDownloadURL string `json:"browser_download_url"`
		} `json:"assets"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return "", err
	}

	for _, asset := range release.Assets {
		if isDatabaseAsset(asset.Name) {
			d.Logger.Debug().Str("tag", release.TagName).Str("asset", asset.Name).Msg("selected release asset")
			return asset.BrowserDownloadURL, nil
		}
	}
	return "", fmt.Errorf("no %s asset found in release %s", DatabaseFileName, release.TagName)
}

func isDatabaseAsset(name string) bool {
	if !strings.HasPrefix(name, strings.TrimSuffix(DatabaseFileName, ".sqlite")) {
		return false
	}
	for _, suffix := range []string{".sqlite", ".sqlite.gz", ".tgz", ".tar.gz"} {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

func (d *Downloader) downloadAndExtract(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "dfir-glossary-cli")
	resp, err := d.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: %s", resp.Status)
	}

	// Write next to the destination so the final rename stays on one filesystem.
	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".glossdb-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	limit := d.MaxSize
	if limit <= 0 {
		limit = maxDownloadSize
	}
	if resp.ContentLength > limit {
		tmp.Close()
		return fmt.Errorf("%w: content-length %d, limit %d", ErrDownloadTooLarge, resp.ContentLength, limit)
	}
	body := &cappedReader{r: resp.Body, left: limit}
	switch {
	case strings.HasSuffix(url, ".tgz") || strings.HasSuffix(url, ".tar.gz"):
		err = extractFromTar(body, tmp, limit)
	case strings.HasSuffix(url, ".gz"):
		err = copyGzip(body, tmp, limit)
	default:
		_, err = io.Copy(tmp, body)
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if err := checkSQLiteHeader(tmpName); err != nil {
		return err
	}
	return os.Rename(tmpName, destPath)
}

// cappedReader fails with ErrDownloadTooLarge once more than left bytes
// have been read, so an oversized file is never silently cut short.
type cappedReader struct {
	r    io.Reader
	left int64
}

func (c *cappedReader) Read(p []byte) (int, error) {
	if int64(len(p)) > c.left+1 {
		p = p[:c.left+1]
	}
	n, err := c.r.Read(p)
	c.left -= int64(n)
	if c.left < 0 {
		return n, ErrDownloadTooLarge
	}
	return n, err
}

func copyGzip(r io.Reader, w io.Writer, limit int64) error {
	gzReader, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzReader.Close()
	if _, err := io.Copy(w, &cappedReader{r: gzReader, left: limit}); err != nil {
		return fmt.Errorf("failed to decompress: %w", err)
	}
	return nil
}

func extractFromTar(r io.Reader, w io.Writer, limit int64) error {
	gzReader, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzReader.Close()

	tarReader := tar.NewReader(gzReader)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("error reading tar archive: %w", err)
		}
		if header.Typeflag == tar.TypeReg && filepath.Base(header.Name) == DatabaseFileName {
			if _, err := io.Copy(w, &cappedReader{r: tarReader, left: limit}); err != nil {
				return fmt.Errorf("failed to write to file: %w", err)
			}
			return nil
		}
	}
	return fmt.Errorf("no %s found in downloaded archive", DatabaseFileName)
}

// checkSQLiteHeader rejects downloads that are not SQLite databases, such as
// an HTML error page served with status 200.
func checkSQLiteHeader(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	const magic = "SQLite format 3\x00"
	buf := make([]byte, len(magic))
	if _, err := io.ReadFull(f, buf); err != nil || string(buf) != magic {
		return fmt.Errorf("downloaded file is not a SQLite database")
	}
	return nil
}
