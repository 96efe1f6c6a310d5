package jwk

import (
	"context"
	"crypto"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynhne/identity-service/internal/core/domain"
)

type blockingFetcher struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (f *blockingFetcher) Fetch(ctx context.Context) (map[string]crypto.PublicKey, error) {
	f.calls.Add(1)
	f.once.Do(func() { close(f.started) })
	<-f.release
	return map[string]crypto.PublicKey{"k": "placeholder"}, nil
}

func TestKeySet_ConcurrentRefreshCoalesces(t *testing.T) {
	f := &blockingFetcher{started: make(chan struct{}), release: make(chan struct{})}
	keys := NewKeySet(f)

	const callers = 16
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	refresh := func() {
		defer wg.Done()
		errs <- keys.Refresh(context.Background())
	}

	wg.Add(1)
	go refresh()
	<-f.started
	for range callers - 1 {
		wg.Add(1)
		go refresh()
	}
	// Give the followers time to join the in-flight fetch.
	time.Sleep(50 * time.Millisecond)
	close(f.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, f.calls.Load())
	_, ok := keys.Get("k")
	assert.True(t, ok)
}

type failingFetcher struct{ err error }

func (f failingFetcher) Fetch(context.Context) (map[string]crypto.PublicKey, error) {
	return nil, f.err
}

func TestKeySet_FailedRefreshKeepsCache(t *testing.T) {
	ok := &blockingFetcher{started: make(chan struct{}), release: make(chan struct{})}
	close(ok.release)
	keys := NewKeySet(ok)
	require.NoError(t, keys.Refresh(context.Background()))

	keys.fetcher = failingFetcher{err: ErrFetch}
	err := keys.Refresh(context.Background())
	require.ErrorIs(t, err, ErrFetch)

	_, found := keys.Get("k")
	assert.True(t, found)
}

func TestKeySet_RefreshIgnoresCallerCancellation(t *testing.T) {
	var sawCanceled atomic.Bool
	keys := NewKeySet(fetcherFunc(func(ctx context.Context) (map[string]crypto.PublicKey, error) {
		sawCanceled.Store(ctx.Err() != nil)
		return map[string]crypto.PublicKey{}, nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, keys.Refresh(ctx))
	assert.False(t, sawCanceled.Load())
}

type fetcherFunc func(ctx context.Context) (map[string]crypto.PublicKey, error)

func (f fetcherFunc) Fetch(ctx context.Context) (map[string]crypto.PublicKey, error) { return f(ctx) }

func TestParseKeySet_SkipsUnusableKeys(t *testing.T) {
	rsaPub := testRSAKey(t).PublicKey
	ecPub := testECKey(t).PublicKey

	good := rsaJWK("rsa", &rsaPub)
	goodEC := ecJWK("ec", &ecPub)
	noKid := rsaJWK("", &rsaPub)
	enc := rsaJWK("enc", &rsaPub)
	enc["use"] = "enc"
	badCurve := ecJWK("curve", &ecPub)
	badCurve["crv"] = "P-192"
	offCurve := ecJWK("off", &ecPub)
	offCurve["y"] = b64([]byte{1})
	badB64 := rsaJWK("b64", &rsaPub)
	badB64["n"] = "!!!"
	oct := map[string]string{"kty": "oct", "kid": "oct", "k": "c2VjcmV0"}

	srv := newJWKSServer(t, good, goodEC, noKid, enc, badCurve, offCurve, badB64, oct)
	keys, err := NewHTTPFetcher(srv.URL, srv.Client()).Fetch(context.Background())
	require.NoError(t, err)

	assert.Len(t, keys, 2)
	assert.Contains(t, keys, "rsa")
	assert.Contains(t, keys, "ec")
}

func TestHTTPFetcher_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "non 200",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "down", http.StatusServiceUnavailable)
			},
		},
		{
			name: "not json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("<html>"))
			},
		},
		{
			name: "oversized body is truncated",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"keys":[` + strings.Repeat(" ", maxKeySetBytes) + `]}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewHTTPFetcher(srv.URL, srv.Client()).Fetch(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrFetch))
			assert.Equal(t, domain.KindUpstreamFailure, domain.KindOf(err))
		})
	}
}
