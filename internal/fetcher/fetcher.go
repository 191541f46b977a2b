// Package fetcher downloads remote datasets over HTTP(S) and FTP with
// retry, per-host rate limiting, and ZIP extraction for shapefile archives.
package fetcher

import (
	"context"
	"io"
)

// Fetcher is the download surface shared by the HTTP and FTP clients.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// ConditionalFetcher adds ETag revalidation on top of Fetcher. Only the
// HTTP client implements it; FTP has no change detection.
type ConditionalFetcher interface {
	Fetcher

	// HeadETag performs a HEAD request and returns the ETag header value.
	HeadETag(ctx context.Context, url string) (string, error)

	// DownloadIfChanged fetches the URL only if the ETag has changed.
	// Returns (body, newETag, changed, error). If not changed, body is nil.
	DownloadIfChanged(ctx context.Context, url string, etag string) (io.ReadCloser, string, bool, error)
}
