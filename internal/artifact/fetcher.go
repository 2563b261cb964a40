// Package artifact retrieves source archives, unpacks them and manages the
// working directories they are unpacked into.
package artifact

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/stacklok/depsync/internal/httpclient"
)

const (
	defaultShape = "/zipball/"
	tagShape     = "/zipball/refs/tags/"
)

// Fetcher downloads source-control archives
type Fetcher struct {
	client httpclient.Client
}

// NewFetcher creates a fetcher using the given HTTP client
func NewFetcher(client httpclient.Client) *Fetcher {
	return &Fetcher{client: client}
}

// Fetch returns the archive bytes behind locator. An error document or a 404
// is retried exactly once with the reference-qualified locator shape.
func (f *Fetcher) Fetch(ctx context.Context, locator string) ([]byte, error) {
	data, err := f.get(ctx, locator)
	if err == nil {
		return data, nil
	}
	if !fallbackEligible(err) {
		return nil, &FetchError{Locator: locator, Err: err}
	}

	alternate, ok := AlternateLocator(locator)
	if !ok {
		return nil, &FetchError{Locator: locator, Err: err}
	}

	slog.Debug("Retrying fetch with alternate locator", "locator", locator, "alternate", alternate, "error", err)
	data, err = f.get(ctx, alternate)
	if err != nil {
		return nil, &FetchError{Locator: alternate, Err: err}
	}
	return data, nil
}

func (f *Fetcher) get(ctx context.Context, locator string) ([]byte, error) {
	data, err := f.client.Get(ctx, locator)
	if err != nil {
		return nil, err
	}
	if upstreamErr := detectErrorDocument(data); upstreamErr != nil {
		return nil, upstreamErr
	}
	return data, nil
}

// AlternateLocator rewrites a default-shape archive locator into the
// reference-qualified shape. It reports false when no alternate exists.
func AlternateLocator(locator string) (string, bool) {
	if strings.Contains(locator, tagShape) || !strings.Contains(locator, defaultShape) {
		return "", false
	}
	return strings.Replace(locator, defaultShape, tagShape, 1), true
}

// detectErrorDocument recognizes a JSON object carrying both message and
// status, which some hosts serve with a 200 instead of the archive.
func detectErrorDocument(data []byte) *UpstreamError {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' || !gjson.ValidBytes(trimmed) {
		return nil
	}
	doc := gjson.ParseBytes(trimmed)
	message, status := doc.Get("message"), doc.Get("status")
	if !message.Exists() || !status.Exists() {
		return nil
	}
	return &UpstreamError{Message: message.String(), Status: status.String()}
}

func fallbackEligible(err error) bool {
	var upstreamErr *UpstreamError
	if errors.As(err, &upstreamErr) {
		return true
	}
	var httpErr *httpclient.HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound
}
