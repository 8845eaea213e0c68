package extract

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	ragerrors "github.com/Aman-CERP/ragindex/internal/errors"
	"github.com/Aman-CERP/ragindex/pkg/version"
)

// DefaultFetchTimeout bounds a single URL request.
const DefaultFetchTimeout = 30 * time.Second

// Page is a fetched URL.
type Page struct {
	URL       string
	Title     string
	Text      string
	Signature string
}

// URLFetcher fetches web pages as text.
type URLFetcher struct {
	client  *http.Client
	maxSize int64
}

// FetcherOption configures a URLFetcher.
type FetcherOption func(*URLFetcher)

// WithHTTPClient replaces the traced default client.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *URLFetcher) { f.client = c }
}

// WithMaxBodySize caps the bytes read from a response.
func WithMaxBodySize(n int64) FetcherOption {
	return func(f *URLFetcher) { f.maxSize = n }
}

// NewURLFetcher returns a fetcher whose transport is traced with otelhttp.
func NewURLFetcher(opts ...FetcherOption) *URLFetcher {
	f := &URLFetcher{
		client: &http.Client{
			Timeout:   DefaultFetchTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		maxSize: DefaultMaxFileSize,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Signature returns a cheap change signature for url from response headers
// (ETag, Last-Modified, Content-Length). It returns "" when the server sends
// no validators, in which case callers hash the fetched body.
func (f *URLFetcher) Signature(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return "", ragerrors.ValidationError("invalid url", err).WithDetail("url", url)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := f.client.Do(req)
	if err != nil {
		return "", ragerrors.NetworkError("head request failed", err).WithDetail("url", url)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return "", nil
	}
	etag := resp.Header.Get("ETag")
	modified := resp.Header.Get("Last-Modified")
	if etag == "" && modified == "" {
		return "", nil
	}
	sig := fmt.Sprintf("%s|%s|%s", etag, modified, resp.Header.Get("Content-Length"))
	sum := md5.Sum([]byte(sig))
	return hex.EncodeToString(sum[:]), nil
}

// Fetch downloads url and extracts its text. Signature is the MD5 of the
// body.
func (f *URLFetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, ragerrors.ValidationError("invalid url", err).WithDetail("url", url)
	}
	req.Header.Set("Accept", "text/html, text/plain;q=0.9, */*;q=0.5")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, ragerrors.NetworkError("fetch failed", err).WithDetail("url", url)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return nil, ragerrors.New(ragerrors.ErrCodeExtractFailed,
			fmt.Sprintf("unexpected status %d", resp.StatusCode), nil).WithDetail("url", url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize))
	if err != nil {
		return nil, ragerrors.NetworkError("read body failed", err).WithDetail("url", url)
	}
	sum := md5.Sum(body)

	page := &Page{URL: url, Signature: hex.EncodeToString(sum[:])}
	text := DecodeText(body)
	if isHTML(resp.Header.Get("Content-Type"), text) {
		page.Title = htmlTitle(text)
		text, err = HTMLToText(strings.NewReader(text))
		if err != nil {
			return nil, ragerrors.Wrap(ragerrors.ErrCodeExtractFailed, err).WithDetail("url", url)
		}
	}
	page.Text = text
	return page, nil
}

func isHTML(contentType, body string) bool {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		return mt == "text/html" || mt == "application/xhtml+xml"
	}
	head := strings.ToLower(strings.TrimSpace(body))
	if len(head) > 256 {
		head = head[:256]
	}
	return strings.HasPrefix(head, "<!doctype html") || strings.HasPrefix(head, "<html")
}

func htmlTitle(doc string) string {
	lower := strings.ToLower(doc)
	start := strings.Index(lower, "<title")
	if start < 0 {
		return ""
	}
	open := strings.Index(lower[start:], ">")
	if open < 0 {
		return ""
	}
	begin := start + open + 1
	end := strings.Index(lower[begin:], "</title>")
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(doc[begin : begin+end])
}
