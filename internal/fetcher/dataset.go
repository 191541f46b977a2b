package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DatasetSpec names a remote dataset: a geometry source and, optionally, an
// attribute table that joins onto it. Specs normally come from the fetch
// section of the config file.
type DatasetSpec struct {
	Name         string `mapstructure:"name" yaml:"name"`
	GeometryURL  string `mapstructure:"geometry_url" yaml:"geometry_url"`
	AttributeURL string `mapstructure:"attribute_url" yaml:"attribute_url"`
	Extract      bool   `mapstructure:"extract" yaml:"extract"`
}

// Validate checks that the spec can be fetched.
func (ds DatasetSpec) Validate() error {
	if ds.Name == "" {
		return eris.New("fetcher: dataset name is required")
	}
	if ds.GeometryURL == "" {
		return eris.Errorf("fetcher: dataset %q has no geometry_url", ds.Name)
	}
	return nil
}

// FetchResult reports what a dataset fetch produced on disk.
type FetchResult struct {
	Dir           string   `json:"dir"`
	GeometryPath  string   `json:"geometry_path"`
	AttributePath string   `json:"attribute_path,omitempty"`
	Files         []string `json:"files"`
	Skipped       int      `json:"skipped"` // downloads revalidated as unchanged
}

// Client routes dataset downloads to scheme-specific fetchers.
type Client struct {
	HTTP Fetcher
	FTP  Fetcher
}

// NewClient builds a Client with an HTTP fetcher configured from opts and an
// FTP fetcher sharing its timeout.
func NewClient(opts HTTPOptions) *Client {
	return &Client{
		HTTP: NewHTTPFetcher(opts),
		FTP:  NewFTPFetcher(FTPOptions{Timeout: opts.Timeout}),
	}
}

func (c *Client) fetcherFor(rawURL string) (Fetcher, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: parse url %s", rawURL)
	}
	switch u.Scheme {
	case "http", "https":
		return c.HTTP, nil
	case "ftp":
		return c.FTP, nil
	default:
		return nil, eris.Errorf("fetcher: unsupported scheme %q in %s (use http, https, or ftp)", u.Scheme, rawURL)
	}
}

// FetchDataset downloads a dataset into baseDir/<name>, extracting ZIP
// archives when the spec asks for it. Unchanged HTTP downloads are skipped
// via ETag sidecar files, so re-fetching a current dataset is cheap.
func (c *Client) FetchDataset(ctx context.Context, ds DatasetSpec, baseDir string) (*FetchResult, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}

	dir := filepath.Join(baseDir, ds.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "fetcher: create dataset dir %s", dir)
	}

	res := &FetchResult{Dir: dir}
	urls := []string{ds.GeometryURL}
	if ds.AttributeURL != "" {
		urls = append(urls, ds.AttributeURL)
	}

	for _, rawURL := range urls {
		filePath, skipped, err := c.fetchOne(ctx, rawURL, dir)
		if err != nil {
			return nil, err
		}
		if skipped {
			res.Skipped++
		}
		res.Files = append(res.Files, filePath)

		if ds.Extract && strings.EqualFold(filepath.Ext(filePath), ".zip") {
			extracted, err := ExtractZIP(filePath, dir)
			if err != nil {
				return nil, err
			}
			res.Files = append(res.Files, extracted...)
		}
	}

	res.GeometryPath = firstWithExt(res.Files, ".shp", ".geojson", ".json")
	res.AttributePath = firstWithExt(res.Files, ".csv", ".tsv", ".xlsx")
	if res.GeometryPath == "" {
		return nil, eris.Errorf("fetcher: dataset %q yielded no geometry file (looked for .shp, .geojson, .json)", ds.Name)
	}

	zap.L().Info("fetcher: dataset ready",
		zap.String("dataset", ds.Name),
		zap.String("geometry", res.GeometryPath),
		zap.String("attributes", res.AttributePath),
		zap.Int("files", len(res.Files)),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}

// fetchOne downloads a single URL into dir, reusing the cached copy when the
// server's ETag still matches the sidecar.
func (c *Client) fetchOne(ctx context.Context, rawURL, dir string) (string, bool, error) {
	f, err := c.fetcherFor(rawURL)
	if err != nil {
		return "", false, err
	}

	name := remoteFileName(rawURL)
	if name == "" {
		return "", false, eris.Errorf("fetcher: cannot derive a file name from %s", rawURL)
	}
	filePath := filepath.Join(dir, name)

	if cf, ok := f.(ConditionalFetcher); ok {
		etag := ""
		if _, statErr := os.Stat(filePath); statErr == nil {
			etag = readETag(filePath)
		}

		body, newTag, changed, err := cf.DownloadIfChanged(ctx, rawURL, etag)
		if err != nil {
			return "", false, err
		}
		if !changed {
			zap.L().Info("fetcher: cached copy still current", zap.String("url", rawURL))
			return filePath, true, nil
		}
		defer body.Close() //nolint:errcheck

		if err := writeFileFrom(filePath, body); err != nil {
			return "", false, err
		}
		writeETag(filePath, newTag)
		return filePath, false, nil
	}

	n, err := f.DownloadToFile(ctx, rawURL, filePath)
	if err != nil {
		return "", false, err
	}
	zap.L().Info("fetcher: downloaded", zap.String("url", rawURL), zap.Int64("bytes", n))
	return filePath, false, nil
}

// remoteFileName derives a local file name from the URL path.
func remoteFileName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" || base == "" {
		return ""
	}
	return base
}

// firstWithExt returns the first file whose extension matches any of exts,
// compared case-insensitively.
func firstWithExt(files []string, exts ...string) string {
	for _, f := range files {
		ext := strings.ToLower(filepath.Ext(f))
		for _, want := range exts {
			if ext == want {
				return f
			}
		}
	}
	return ""
}

func etagPath(filePath string) string {
	return filePath + ".etag"
}

func readETag(filePath string) string {
	data, err := os.ReadFile(etagPath(filePath))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// writeETag records the sidecar; a missing tag clears any stale one. Sidecar
// failures only cost a re-download, so they are logged and swallowed.
func writeETag(filePath, etag string) {
	if etag == "" {
		_ = os.Remove(etagPath(filePath))
		return
	}
	if err := os.WriteFile(etagPath(filePath), []byte(etag), 0o644); err != nil {
		zap.L().Debug("fetcher: write etag sidecar", zap.String("path", etagPath(filePath)), zap.Error(err))
	}
}

func writeFileFrom(filePath string, r io.Reader) error {
	out, err := os.Create(filePath)
	if err != nil {
		return eris.Wrap(err, "create file")
	}
	defer out.Close() //nolint:errcheck

	if _, err := io.Copy(out, r); err != nil {
		return eris.Wrap(err, "write file")
	}
	return nil
}
