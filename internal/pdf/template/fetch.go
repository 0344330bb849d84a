package template

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/a3tai/mcp-pdf-signer/internal/cache"
	"github.com/a3tai/mcp-pdf-signer/internal/httputil"
)

// Fetcher downloads template documents over HTTP through a byte cache
type Fetcher struct {
	client   *http.Client
	store    cache.Store
	maxSize  int64
	attempts int
	delay    time.Duration
	logger   *log.Logger
}

// NewFetcher creates a Fetcher. A nil store disables caching; a
// non-positive maxSize disables the size limit.
func NewFetcher(timeout time.Duration, store cache.Store, maxSize int64, logger *log.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		store:    store,
		maxSize:  maxSize,
		attempts: 3,
		delay:    250 * time.Millisecond,
		logger:   logger,
	}
}

func cacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return "pdf:" + hex.EncodeToString(sum[:])
}

// Fetch returns the document at url, from cache when present. Only bodies
// that look like PDF documents are returned or cached.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	key := cacheKey(url)
	if f.store != nil {
		data, ok, err := f.store.Get(ctx, key)
		switch {
		case err != nil:
			f.logger.Warn("template cache read failed", "url", url, "err", err)
		case ok:
			f.logger.Debug("template cache hit", "url", url, "bytes", len(data))
			return data, nil
		}
	}

	var data []byte
	err := httputil.Retry(ctx, f.attempts, f.delay, func() error {
		var err error
		data, err = f.get(ctx, url)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !hasPDFHeader(data) {
		return nil, fmt.Errorf("response from %s is not a PDF document", url)
	}

	if f.store != nil {
		if err := f.store.Set(ctx, key, data); err != nil {
			f.logger.Warn("template cache write failed", "url", url, "err", err)
		}
	}
	return data, nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid document url: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &httputil.RetryableError{Err: err}
	}
	defer resp.Body.Close()

	if err := httputil.CheckStatus(resp.StatusCode); err != nil {
		return nil, err
	}
	if f.maxSize > 0 && resp.ContentLength > f.maxSize {
		return nil, fmt.Errorf("document size %d exceeds maximum allowed size %d", resp.ContentLength, f.maxSize)
	}

	var body io.Reader = resp.Body
	if f.maxSize > 0 {
		body = io.LimitReader(resp.Body, f.maxSize+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &httputil.RetryableError{Err: fmt.Errorf("failed to read document: %w", err)}
	}
	if f.maxSize > 0 && int64(len(data)) > f.maxSize {
		return nil, fmt.Errorf("document exceeds maximum allowed size %d", f.maxSize)
	}
	return data, nil
}
