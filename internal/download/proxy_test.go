package download

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProxyFetch(t *testing.T) {
	var gotPath, gotQuery, gotUA string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery, gotUA = r.URL.Path, r.URL.RawQuery, r.UserAgent()
		switch r.URL.Path {
		case "/img/cat.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("png-bytes"))
		case "/img/raw":
			w.Header()["Content-Type"] = nil
			_, _ = w.Write([]byte{0x00, 0x01})
		default:
			http.NotFound(w, r)
		}
	}))
	defer upstream.Close()

	p := NewProxy(upstream.Client(), upstream.URL+"/", nil)

	obj, err := p.Fetch(context.Background(), "/img/cat.png?v=2")
	require.NoError(t, err)
	defer obj.Body.Close()

	body, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(body))
	assert.Equal(t, "image/png", obj.ContentType)
	assert.Equal(t, "/img/cat.png", gotPath)
	assert.Empty(t, gotQuery)
	assert.Equal(t, UserAgent, gotUA)

	obj, err = p.Fetch(context.Background(), "img/raw")
	require.NoError(t, err)
	obj.Body.Close()
	assert.Equal(t, DefaultProxyContentType, obj.ContentType)
}

func TestProxyFetch_UpstreamStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/locked" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		http.NotFound(w, r)
	}))
	defer upstream.Close()

	p := NewProxy(upstream.Client(), upstream.URL+"/", nil)

	_, err := p.Fetch(context.Background(), "missing.png")
	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusNotFound, serr.StatusCode)
	assert.Equal(t, "Not Found", serr.StatusText())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = p.Fetch(context.Background(), "locked")
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusForbidden, serr.StatusCode)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestProxyFetch_TransportError(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	base := upstream.URL + "/"
	upstream.Close()

	_, err := NewProxy(http.DefaultClient, base, nil).Fetch(context.Background(), "x")
	require.Error(t, err)
	var serr *StatusError
	assert.False(t, errors.As(err, &serr))
}
