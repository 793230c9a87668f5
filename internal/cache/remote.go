package cache

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"resty.dev/v3"

	"github.com/vk/buildgridgo/internal/fingerprint"
)

// RemoteConfig configures the HTTP remote cache client.
type RemoteConfig struct {
	// BaseURL is the root of the cache service, e.g. "https://cache.local".
	// Artifacts live under <BaseURL>/artifacts/<hex fingerprint>.
	BaseURL string

	// Timeout bounds each request. Zero means DefaultRemoteTimeout.
	Timeout time.Duration

	// Retries is the number of retry attempts for failed requests.
	Retries int
}

// DefaultRemoteTimeout bounds a single remote cache request.
const DefaultRemoteTimeout = 30 * time.Second

// Remote is a Cache backed by a content-addressed HTTP service. A GET
// that returns 404 is a miss; anything other than 2xx or 404 is an
// error.
type Remote struct {
	client *resty.Client
}

// NewRemote creates a remote cache client for the given service.
func NewRemote(cfg RemoteConfig) (*Remote, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("cache: remote base URL is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultRemoteTimeout
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetRetryCount(cfg.Retries)
	return &Remote{client: client}, nil
}

func (r *Remote) Get(ctx context.Context, fp fingerprint.Fingerprint) ([]byte, bool, error) {
	res, err := r.client.R().
		SetContext(ctx).
		Get(artifactPath(fp))
	if err != nil {
		return nil, false, fmt.Errorf("cache: remote get %s: %w", fp.Short(), err)
	}
	switch {
	case res.StatusCode() == http.StatusNotFound:
		return nil, false, nil
	case res.IsSuccess():
		return res.Bytes(), true, nil
	default:
		return nil, false, fmt.Errorf("cache: remote get %s: unexpected status %d", fp.Short(), res.StatusCode())
	}
}

func (r *Remote) Put(ctx context.Context, fp fingerprint.Fingerprint, data []byte) error {
	res, err := r.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(data).
		Put(artifactPath(fp))
	if err != nil {
		return fmt.Errorf("cache: remote put %s: %w", fp.Short(), err)
	}
	if !res.IsSuccess() {
		return fmt.Errorf("cache: remote put %s: unexpected status %d", fp.Short(), res.StatusCode())
	}
	return nil
}

func (r *Remote) Close() error {
	return r.client.Close()
}

func artifactPath(fp fingerprint.Fingerprint) string {
	return "/artifacts/" + fp.Hex()
}
