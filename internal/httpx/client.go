// Package httpx builds the HTTP clients shared by provider adapters and
// the embedding subsystem, applying proxy-aware defaults.
package httpx

import (
	"net/http"
	"net/url"
	"time"

	"github.com/loomhq/loom/pkg/models"
)

// DefaultTimeout is the total request timeout applied when the caller
// does not override it.
const DefaultTimeout = 30 * time.Second

// NewClient returns an HTTP client honouring the proxy configuration.
// A nil or disabled proxy falls back to environment proxy settings.
func NewClient(proxy *models.ProxyConfig) *http.Client {
	return NewClientWithTimeout(proxy, DefaultTimeout)
}

// NewClientWithTimeout returns a proxy-aware client with an explicit
// total timeout.
func NewClientWithTimeout(proxy *models.ProxyConfig, timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        16,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	if proxy != nil && proxy.Enabled && proxy.URL != "" {
		if proxyURL, err := url.Parse(proxy.URL); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}
