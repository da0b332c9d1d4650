package cache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// RemoteCache is the shared key-value blob tier, reached over HTTP.
// Blobs live at {endpoint}/{lang}/{key}. A 404 is an explicit miss;
// any other failure counts as an error and degrades to a miss, so a
// broken or slow remote never takes playback down with it.
type RemoteCache struct {
	endpoint string
	client   *http.Client

	mu    sync.Mutex
	stats Stats
}

// maxRemoteBlob caps how much of a response body is read back.
const maxRemoteBlob = 32 * 1024 * 1024

// NewRemoteCache creates a remote tier client for the given base
// endpoint. timeout bounds each request end to end.
func NewRemoteCache(endpoint string, timeout time.Duration) *RemoteCache {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &RemoteCache{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		client:   &http.Client{Timeout: timeout},
	}
}

// Get fetches a blob. ok is true only on a 200 with a readable body.
func (rc *RemoteCache) Get(ctx context.Context, lang, key string) ([]byte, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rc.blobURL(lang, key), nil)
	if err != nil {
		rc.count(func(s *Stats) { s.Errors++; s.Misses++ })
		return nil, false
	}

	resp, err := rc.client.Do(req)
	if err != nil {
		rc.count(func(s *Stats) { s.Errors++; s.Misses++ })
		return nil, false
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		rc.count(func(s *Stats) { s.Misses++ })
		return nil, false
	default:
		io.Copy(io.Discard, resp.Body)
		rc.count(func(s *Stats) { s.Errors++; s.Misses++ })
		return nil, false
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteBlob))
	if err != nil || len(data) == 0 {
		rc.count(func(s *Stats) { s.Errors++; s.Misses++ })
		return nil, false
	}

	rc.count(func(s *Stats) {
		s.Hits++
		s.Bytes += int64(len(data))
		s.LastAccess = time.Now()
	})
	return data, true
}

// Put uploads a blob. Failures are counted and returned but callers
// treat them as best-effort.
func (rc *RemoteCache) Put(ctx context.Context, lang, key string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, rc.blobURL(lang, key), bytes.NewReader(data))
	if err != nil {
		rc.count(func(s *Stats) { s.Errors++ })
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := rc.client.Do(req)
	if err != nil {
		rc.count(func(s *Stats) { s.Errors++ })
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		rc.count(func(s *Stats) { s.Errors++ })
		return fmt.Errorf("remote cache put: status %d", resp.StatusCode)
	}
	return nil
}

// Stats returns a snapshot of the tier's counters. Bytes is the total
// downloaded, not a held size; the remote tier stores nothing locally.
func (rc *RemoteCache) Stats() Stats {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	return rc.stats
}

func (rc *RemoteCache) blobURL(lang, key string) string {
	return fmt.Sprintf("%s/%s/%s", rc.endpoint, lang, key)
}

func (rc *RemoteCache) count(update func(*Stats)) {
	rc.mu.Lock()
	update(&rc.stats)
	rc.mu.Unlock()
}
