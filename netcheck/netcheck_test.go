package netcheck

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ipServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "serpent-test", r.Header.Get("User-Agent"))
		_, _ = io.WriteString(w, `{"ip":"203.0.113.7","country":"DE","org":"AS64500 Example"}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLookup_Direct(t *testing.T) {
	srv := ipServer(t)
	c := &Checker{Endpoint: srv.URL, UserAgent: "serpent-test"}

	info, err := c.Lookup(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.7", info.IP)
	assert.Equal(t, "DE", info.Country)
	assert.Equal(t, "AS64500 Example", info.Org)
}

func TestLookup_HTTPProxy(t *testing.T) {
	srv := ipServer(t)
	target, _ := url.Parse(srv.URL)

	var tunnelled string
	prox := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodConnect {
			http.Error(w, "connect only", http.StatusMethodNotAllowed)
			return
		}
		tunnelled = r.Host
		upstream, err := net.Dial("tcp", r.Host)
		if !assert.NoError(t, err) {
			return
		}
		hj, _ := w.(http.Hijacker)
		client, buf, err := hj.Hijack()
		if !assert.NoError(t, err) {
			return
		}
		_, _ = client.Write([]byte("HTTP/1.1 200 Connection established\r\n\r\n"))
		go func() {
			_, _ = io.Copy(upstream, buf)
			upstream.Close()
		}()
		_, _ = io.Copy(client, upstream)
		client.Close()
	}))
	defer prox.Close()

	c := &Checker{Endpoint: srv.URL, UserAgent: "serpent-test"}
	info, err := c.Lookup(context.Background(), prox.URL)
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.7", info.IP)
	assert.Equal(t, target.Host, tunnelled)
}

func TestLookup_Errors(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer bad.Close()

	_, err := (&Checker{Endpoint: bad.URL}).Lookup(context.Background(), "")
	assert.ErrorContains(t, err, "status 429")

	_, err = (&Checker{Endpoint: bad.URL}).Lookup(context.Background(), "ftp://proxy:21")
	assert.ErrorContains(t, err, "unsupported proxy scheme")
}

func TestDecode(t *testing.T) {
	_, err := decode(strings.NewReader(`{"country":"US"}`))
	assert.ErrorContains(t, err, "no ip")

	_, err = decode(strings.NewReader(`not json`))
	assert.Error(t, err)
}
