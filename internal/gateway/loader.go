// Package gateway models the third-party payment gateway: availability of its
// browser SDK and the hosted checkout widget the customer pays in.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var ErrScriptUnavailable = errors.New("payment SDK unavailable")

type ScriptLoader interface {
	Load(ctx context.Context) error
}

// HTTPScriptLoader probes the SDK script URL. A successful probe is remembered;
// failures are not, so a later Load retries.
type HTTPScriptLoader struct {
	url    string
	client *http.Client

	mu     sync.Mutex
	loaded bool
}

func NewHTTPScriptLoader(url string, client *http.Client) *HTTPScriptLoader {
	if client == nil {
		client = &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &HTTPScriptLoader{url: url, client: client}
}

func (l *HTTPScriptLoader) Load(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loaded {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrScriptUnavailable, err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrScriptUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %d", ErrScriptUnavailable, l.url, resp.StatusCode)
	}
	l.loaded = true
	return nil
}

func (l *HTTPScriptLoader) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded
}
