package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const (
	// UserAgent identifies proxied requests to the public endpoint.
	UserAgent = "fiora-server"
	// ProxyCacheControl is set on every proxied response.
	ProxyCacheControl = "public, max-age=86400"
	// DefaultProxyContentType is used when the upstream sends none.
	DefaultProxyContentType = "image/jpeg"
)

// Doer sends HTTP requests. *http.Client and the aws BuildableClient satisfy it.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Object is a proxied object body. The caller must close Body.
type Object struct {
	ContentType   string
	ContentLength int64
	Body          io.ReadCloser
}

// StatusError is a non-2xx answer from the public endpoint.
type StatusError struct {
	Key        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: upstream returned %s", e.Key, e.Status)
}

// Is reports upstream 404s as ErrNotFound.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// StatusText is the reason phrase without the numeric code.
func (e *StatusError) StatusText() string {
	if _, text, ok := strings.Cut(e.Status, " "); ok {
		return text
	}
	return http.StatusText(e.StatusCode)
}

// Proxy fetches objects from the public base URL.
type Proxy struct {
	client    Doer
	publicURL string
	log       *slog.Logger
}

// NewProxy creates a Proxy for publicURL, which must end in "/".
func NewProxy(client Doer, publicURL string, log *slog.Logger) *Proxy {
	if log == nil {
		log = slog.Default()
	}
	return &Proxy{client: client, publicURL: publicURL, log: log}
}

// Fetch requests publicURL+key with any query stripped. A non-2xx answer
// is returned as *StatusError.
func (p *Proxy) Fetch(ctx context.Context, key string) (*Object, error) {
	key = strings.TrimPrefix(key, "/")
	key, _, _ = strings.Cut(key, "?")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.publicURL+key, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", UserAgent)

	p.log.DebugContext(ctx, "proxy fetch", slog.String("key", key))
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, &StatusError{Key: key, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = DefaultProxyContentType
	}
	return &Object{ContentType: ct, ContentLength: resp.ContentLength, Body: resp.Body}, nil
}
