package retriever

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const okBody = `<?xml version="1.0"?><eveapi version="2"><currentTime>2011-04-01 12:00:00</currentTime><result><serverOpen>True</serverOpen></result><cachedUntil>2011-04-01 12:03:00</cachedUntil></eveapi>`

func newTestHTTP(url string, attempts int) *HTTP {
	return NewHTTP(Options{
		BaseURL:       url,
		Timeout:       2 * time.Second,
		RetryAttempts: attempts,
		RetryBackoff:  time.Millisecond,
		UserAgent:     "evesync-test",
	})
}

func TestFetch_Success(t *testing.T) {
	var gotPath, gotUA, gotKey, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotUA = r.UserAgent()
		_ = r.ParseForm()
		gotKey = r.PostForm.Get("keyID")
		_, _ = w.Write([]byte(okBody))
	}))
	defer srv.Close()

	h := newTestHTTP(srv.URL+"/", 0)
	body, err := h.Fetch(context.Background(), Request{
		Section: "account",
		API:     "APIKeyInfo",
		Args:    map[string]string{"keyID": "123", "vCode": "abc"},
	})
	require.NoError(t, err)

	assert.Equal(t, okBody, string(body))
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/account/APIKeyInfo.xml.aspx", gotPath)
	assert.Equal(t, "evesync-test", gotUA)
	assert.Equal(t, "123", gotKey)
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(okBody))
	}))
	defer srv.Close()

	body, err := newTestHTTP(srv.URL, 3).Fetch(context.Background(), Request{Section: "server", API: "ServerStatus"})
	require.NoError(t, err)
	assert.Equal(t, okBody, string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetch_RemoteErrors(t *testing.T) {
	t.Run("Should give up after retries are exhausted", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := newTestHTTP(srv.URL, 2).Fetch(context.Background(), Request{Section: "server", API: "ServerStatus"})
		var remote *RemoteError
		require.ErrorAs(t, err, &remote)
		assert.Equal(t, http.StatusBadGateway, remote.Status)
		assert.True(t, remote.Retryable)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("Should not retry terminal statuses and should read the error element", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`<?xml version="1.0"?><eveapi version="2"><currentTime>2011-04-01 12:00:00</currentTime><error code="203">Authentication failure.</error><cachedUntil>2011-04-02 12:00:00</cachedUntil></eveapi>`))
		}))
		defer srv.Close()

		_, err := newTestHTTP(srv.URL, 3).Fetch(context.Background(), Request{Section: "account", API: "APIKeyInfo"})
		var remote *RemoteError
		require.ErrorAs(t, err, &remote)
		assert.Equal(t, http.StatusForbidden, remote.Status)
		assert.Equal(t, 203, remote.Code)
		assert.Equal(t, "Authentication failure.", remote.Message)
		assert.False(t, remote.Retryable)
		assert.False(t, IsRetryable(err))
		assert.Equal(t, int32(1), calls.Load())
		assert.Contains(t, err.Error(), "api error 203")
	})
}

func TestFetch_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestHTTP(url, 1).Fetch(context.Background(), Request{Section: "eve", API: "RefTypes"})
	var unreachable *UnreachableError
	require.ErrorAs(t, err, &unreachable)
	assert.Contains(t, unreachable.URL, "/eve/RefTypes.xml.aspx")
	assert.True(t, IsRetryable(err))
}

func TestFetch_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestHTTP(srv.URL, 5).Fetch(ctx, Request{Section: "eve", API: "RefTypes"})
	require.Error(t, err)
}

func TestFunc(t *testing.T) {
	want := errors.New("boom")
	var r Retriever = Func(func(ctx context.Context, req Request) ([]byte, error) {
		return nil, want
	})
	_, err := r.Fetch(context.Background(), Request{})
	assert.ErrorIs(t, err, want)
}

func TestRemoteErrorMessage(t *testing.T) {
	assert.Equal(t, "remote error: HTTP 503 Service Unavailable", (&RemoteError{Status: 503}).Error())
	assert.Equal(t, "remote error: HTTP 500: oops", remoteError(500, []byte(" oops ")).Error())
	assert.True(t, retryableStatus(http.StatusTooManyRequests))
	assert.False(t, retryableStatus(http.StatusNotFound))
}
