package blockstore

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// BlockPathPrefix is the URL path under which blocks are served.
const BlockPathPrefix = "/_cryptree/block/"

// DefaultHTTPTimeout bounds a single remote block request.
const DefaultHTTPTimeout = 30 * time.Second

// HTTPStore is a Store backed by a remote block server.
//
//	GET {Endpoint}/_cryptree/block/{hex(key)}  -> 200 body | 404 absent
//	PUT {Endpoint}/_cryptree/block/{hex(key)}  -> 204
type HTTPStore struct {
	Endpoint string       // base URL, e.g. "http://localhost:8470"
	Client   *http.Client // nil uses a client with DefaultHTTPTimeout
}

// Compile-time interface check.
var _ Store = (*HTTPStore)(nil)

// NewHTTPStore creates a remote store for endpoint.
func NewHTTPStore(endpoint string) *HTTPStore {
	return &HTTPStore{
		Endpoint: strings.TrimSuffix(endpoint, "/"),
		Client:   &http.Client{Timeout: DefaultHTTPTimeout},
	}
}

func (s *HTTPStore) client() *http.Client {
	if s.Client == nil {
		return &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return s.Client
}

func (s *HTTPStore) blockURL(key Key) string {
	return strings.TrimSuffix(s.Endpoint, "/") + BlockPathPrefix + key.String()
}

// Get fetches the block for key. A 404 response means absent.
func (s *HTTPStore) Get(key Key) ([]byte, bool, error) {
	resp, err := s.client().Get(s.blockURL(key))
	if err != nil {
		return nil, false, fmt.Errorf("%w: endpoint %s: %w", ErrRemote, s.Endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("%w: endpoint %s: HTTP %d", ErrRemote, s.Endpoint, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxBlockSize+1))
	if err != nil {
		return nil, false, fmt.Errorf("%w: endpoint %s: read body: %w", ErrRemote, s.Endpoint, err)
	}
	if len(data) > MaxBlockSize {
		return nil, false, fmt.Errorf("%w: endpoint %s", ErrBlockTooLarge, s.Endpoint)
	}
	return data, true, nil
}

// Insert uploads block under key.
func (s *HTTPStore) Insert(key Key, block []byte) error {
	if len(block) > MaxBlockSize {
		return ErrBlockTooLarge
	}
	req, err := http.NewRequest(http.MethodPut, s.blockURL(key), bytes.NewReader(block))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRemote, err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := s.client().Do(req)
	if err != nil {
		return fmt.Errorf("%w: endpoint %s: %w", ErrRemote, s.Endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%w: endpoint %s: HTTP %d", ErrRemote, s.Endpoint, resp.StatusCode)
	}
	return nil
}

// NewHandler serves store over the block transport understood by HTTPStore.
func NewHandler(store Store, log logrus.FieldLogger) http.Handler {
	h := &handler{store: store, log: orDiscard(log).WithField("component", "blockserver")}
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+BlockPathPrefix+"{key}", h.get)
	mux.HandleFunc("PUT "+BlockPathPrefix+"{key}", h.put)
	return mux
}

type handler struct {
	store Store
	log   logrus.FieldLogger
}

func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	key, err := ParseKey(r.PathValue("key"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	block, ok, err := h.store.Get(key)
	if err != nil {
		h.log.WithError(err).WithField("key", key.String()).Error("get failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(block)
}

func (h *handler) put(w http.ResponseWriter, r *http.Request) {
	key, err := ParseKey(r.PathValue("key"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	block, err := io.ReadAll(io.LimitReader(r.Body, MaxBlockSize+1))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(block) > MaxBlockSize {
		http.Error(w, ErrBlockTooLarge.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	if err := h.store.Insert(key, block); err != nil {
		h.log.WithError(err).WithField("key", key.String()).Error("insert failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.log.WithField("key", key.String()).WithField("size", len(block)).Debug("block stored")
	w.WriteHeader(http.StatusNoContent)
}
