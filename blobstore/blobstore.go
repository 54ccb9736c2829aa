// Package blobstore implements the Blob Fetcher collaborator of spec §4.D:
// content-addressed GET of intent/solution payloads, distinguishing
// BlobNotFound/BlobCorrupt (terminal) from BlobTransient (retryable).
package blobstore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"golang.org/x/sync/singleflight"

	"github.com/prerankio/preranking-engine/common/lru"
	"github.com/prerankio/preranking-engine/internal/domain"
	"github.com/prerankio/preranking-engine/internal/wireformat"
)

// Failure kinds distinguished by spec §4.D. Only BlobTransient is retried
// inside Fetcher; the others are terminal for the event that requested
// the blob.
var (
	ErrBlobNotFound = errors.New("blob: not found")
	ErrBlobCorrupt  = errors.New("blob: corrupt payload")
	ErrBlobTransient = errors.New("blob: transient failure")
)

// Fetcher fetches and decodes content-addressed blobs.
type Fetcher interface {
	FetchIntent(ctx context.Context, blobID string) (domain.Intent, error)
	FetchSolution(ctx context.Context, blobID string) (domain.Solution, error)
}

// HTTPFetcher fetches blobs over HTTP with bounded exponential retries on
// transient failure, and caches decoded payloads — a blob_id is a content
// address, so a cache entry is valid forever (spec §4.D; enrichment noted
// in SPEC_FULL.md §C.2).
type HTTPFetcher struct {
	baseURL string
	client  *retryablehttp.Client
	timeout time.Duration // per-fetch deadline (spec §5's "fetch" suspension point); 0 means none

	intentCache   *lru.Cache[string, domain.Intent]
	solutionCache *lru.Cache[string, domain.Solution]

	// group collapses concurrent fetchRaw calls for the same blob_id into a
	// single HTTP round trip — a cache-miss stampede is common right after
	// an intent opens, since every racing solver hits the same blob_id.
	group singleflight.Group
}

// NewHTTPFetcher builds a Fetcher against a content-addressed blob store
// reachable at baseURL ("GET {baseURL}/blob/{blob_id}", spec §6).
// maxRetries bounds the BlobTransient retry budget; cacheSize bounds the
// number of decoded payloads kept per stream; timeout bounds every fetch,
// retries included (spec §6's fetch_timeout_ms, default 5s) — pass 0 to
// leave fetches bounded only by the caller's context.
func NewHTTPFetcher(baseURL string, httpClient *http.Client, maxRetries int, cacheSize int, timeout time.Duration) *HTTPFetcher {
	rc := retryablehttp.NewClient()
	rc.RetryMax = maxRetries
	rc.Logger = nil
	if httpClient != nil {
		rc.HTTPClient = httpClient
	}
	rc.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil {
			return true, nil // network-level errors are transient
		}
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return false, nil // terminal, do not retry
		case resp.StatusCode >= 500:
			return true, nil
		}
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}

	return &HTTPFetcher{
		baseURL:       baseURL,
		client:        rc,
		timeout:       timeout,
		intentCache:   lru.NewCache[string, domain.Intent](cacheSize),
		solutionCache: lru.NewCache[string, domain.Solution](cacheSize),
	}
}

func (f *HTTPFetcher) fetchRaw(ctx context.Context, blobID string) ([]byte, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	body, err, _ := f.group.Do(blobID, func() (interface{}, error) {
		return f.fetchRawUncollapsed(ctx, blobID)
	})
	if err != nil {
		return nil, err
	}
	return body.([]byte), nil
}

func (f *HTTPFetcher) fetchRawUncollapsed(ctx context.Context, blobID string) ([]byte, error) {
	url := fmt.Sprintf("%s/blob/%s", f.baseURL, blobID)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrBlobTransient, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBlobTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: blob_id=%s", ErrBlobNotFound, blobID)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status=%d", ErrBlobTransient, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: unexpected status=%d", ErrBlobCorrupt, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrBlobTransient, err)
	}
	return body, nil
}

// FetchIntent fetches and decodes an intent body.
func (f *HTTPFetcher) FetchIntent(ctx context.Context, blobID string) (domain.Intent, error) {
	if cached, ok := f.intentCache.Get(blobID); ok {
		return cached, nil
	}
	raw, err := f.fetchRaw(ctx, blobID)
	if err != nil {
		return domain.Intent{}, err
	}
	var intent domain.Intent
	if err := wireformat.DecodeTolerant(raw, &intent); err != nil {
		return domain.Intent{}, fmt.Errorf("%w: %v", ErrBlobCorrupt, err)
	}
	f.intentCache.Add(blobID, intent)
	return intent, nil
}

// FetchSolution fetches and decodes a solution body.
func (f *HTTPFetcher) FetchSolution(ctx context.Context, blobID string) (domain.Solution, error) {
	if cached, ok := f.solutionCache.Get(blobID); ok {
		return cached, nil
	}
	raw, err := f.fetchRaw(ctx, blobID)
	if err != nil {
		return domain.Solution{}, err
	}
	var wire struct {
		domain.Solution
		TransactionBytesB64 string `json:"transaction_bytes"`
	}
	if err := wireformat.DecodeTolerant(raw, &wire); err != nil {
		return domain.Solution{}, fmt.Errorf("%w: %v", ErrBlobCorrupt, err)
	}
	decoded, err := base64.StdEncoding.DecodeString(wire.TransactionBytesB64)
	if err != nil {
		return domain.Solution{}, fmt.Errorf("%w: transaction_bytes not valid base64: %v", ErrBlobCorrupt, err)
	}
	solution := wire.Solution
	solution.TransactionBytes = decoded
	f.solutionCache.Add(blobID, solution)
	return solution, nil
}

var _ Fetcher = (*HTTPFetcher)(nil)
