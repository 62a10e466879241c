package blockstore

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestServer serves a MemStore over the block transport.
func newTestServer(t *testing.T) (*MemStore, *httptest.Server) {
	t.Helper()
	backing := NewMemStore()
	srv := httptest.NewServer(NewHandler(backing, nil))
	t.Cleanup(srv.Close)
	return backing, srv
}

func TestHTTPStore_Contract(t *testing.T) {
	_, srv := newTestServer(t)
	s := NewHTTPStore(srv.URL + "/")
	s.Client = srv.Client()
	testStoreContract(t, s)
}

func TestHTTPStore_WritesThroughToBacking(t *testing.T) {
	backing, srv := newTestServer(t)
	s := NewHTTPStore(srv.URL)

	key := NewKey(1, 5, 5, 5)
	require.NoError(t, s.Insert(key, []byte("remote")))

	got, ok, err := backing.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("remote"), got)
}

func TestHTTPStore_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewHTTPStore(srv.URL)
	_, ok, err := s.Get(NewKey(1, 1, 1, 1))
	assert.ErrorIs(t, err, ErrRemote)
	assert.False(t, ok)

	err = s.Insert(NewKey(1, 1, 1, 1), []byte("x"))
	assert.ErrorIs(t, err, ErrRemote)
}

func TestHTTPStore_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, _, err := NewHTTPStore(url).Get(NewKey(1, 1, 1, 1))
	assert.ErrorIs(t, err, ErrRemote)
}

func TestHTTPStore_InsertTooLarge(t *testing.T) {
	s := NewHTTPStore("http://127.0.0.1:1")
	err := s.Insert(NewKey(1, 1, 1, 1), make([]byte, MaxBlockSize+1))
	assert.ErrorIs(t, err, ErrBlockTooLarge)
}

func TestHandler_BadKey(t *testing.T) {
	_, srv := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
	}{
		{"get non-hex", http.MethodGet, BlockPathPrefix + "zz"},
		{"get short", http.MethodGet, BlockPathPrefix + "0102"},
		{"put short", http.MethodPut, BlockPathPrefix + "0102"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, srv.URL+tc.path, bytes.NewReader([]byte("x")))
			require.NoError(t, err)
			resp, err := srv.Client().Do(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	_, srv := newTestServer(t)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+BlockPathPrefix+NewKey(1, 1, 1, 1).String(), nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHandler_GetAbsentIs404(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := srv.Client().Get(srv.URL + BlockPathPrefix + NewKey(1, 1, 1, 1).String())
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
