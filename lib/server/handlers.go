package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/ValentinKolb/sqkv/lib/codec"
	"github.com/ValentinKolb/sqkv/lib/common"
	"github.com/ValentinKolb/sqkv/lib/store"
	"github.com/ValentinKolb/sqkv/lib/util"
)

const (
	contentTypeJSON  = "application/json"
	contentTypeText  = "text/plain; charset=utf-8"
	contentTypeBytes = "application/octet-stream"
)

// --------------------------------------------------------------------------
// Request and response bodies
// --------------------------------------------------------------------------

type keysRequest struct {
	Keys []string `json:"keys"`
}

type setManyRequest struct {
	Values map[string]any `json:"values"`
	TTL    string         `json:"ttl,omitempty"`
}

type renameRequest struct {
	Renames      map[string]string `json:"renames"`
	Overwrite    bool              `json:"overwrite"`
	AllowMissing bool              `json:"allow_missing"`
}

type countResponse struct {
	Count int `json:"count"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --------------------------------------------------------------------------
// Routes
// --------------------------------------------------------------------------

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/namespaces", s.handleListNamespaces)
	mux.HandleFunc("GET /v1/namespaces/{ns}/keys", s.handleListKeys)

	mux.HandleFunc("GET /v1/namespaces/{ns}/keys/{key...}", s.handleGet)
	mux.HandleFunc("HEAD /v1/namespaces/{ns}/keys/{key...}", s.handleHas)
	mux.HandleFunc("PUT /v1/namespaces/{ns}/keys/{key...}", s.handleSet)
	mux.HandleFunc("DELETE /v1/namespaces/{ns}/keys/{key...}", s.handleDelete)

	mux.HandleFunc("POST /v1/namespaces/{ns}/get", s.handleGetMany)
	mux.HandleFunc("POST /v1/namespaces/{ns}/has", s.handleHasMany)
	mux.HandleFunc("POST /v1/namespaces/{ns}/set", s.handleSetMany)
	mux.HandleFunc("POST /v1/namespaces/{ns}/delete", s.handleDeleteMany)
	mux.HandleFunc("POST /v1/namespaces/{ns}/rename", s.handleRename)

	mux.HandleFunc("GET /v1/info", s.handleInfo)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	return mux
}

// --------------------------------------------------------------------------
// Enumeration
// --------------------------------------------------------------------------

func (s *Server) handleListNamespaces(w http.ResponseWriter, r *http.Request) {
	namespaces, err := s.store.ListNamespaces(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, namespaces)
}

// handleListKeys lists the keys of a namespace, optionally filtered by ?like=
func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	var keys []string
	var err error
	if like := r.URL.Query().Get("like"); like != "" {
		keys, err = s.store.ListKeysLike(r.Context(), r.PathValue("ns"), like)
	} else {
		keys, err = s.store.ListKeys(r.Context(), r.PathValue("ns"))
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(keys))
}

// --------------------------------------------------------------------------
// Single key operations
// --------------------------------------------------------------------------

// handleGet writes the value with a content type derived from its shape:
// strings as text, byte slices as octet-stream and everything else as JSON.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	value, loaded, err := s.store.Get(r.Context(), r.PathValue("ns"), r.PathValue("key"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !loaded {
		writeError(w, common.Errorf(common.RetCNotFound, "key %q not found", r.PathValue("key")))
		return
	}

	switch v := value.(type) {
	case string:
		w.Header().Set("Content-Type", contentTypeText)
		_, _ = io.WriteString(w, v)
	case []byte:
		w.Header().Set("Content-Type", contentTypeBytes)
		_, _ = w.Write(v)
	default:
		writeJSON(w, http.StatusOK, v)
	}
}

func (s *Server) handleHas(w http.ResponseWriter, r *http.Request) {
	found, err := s.store.Has(r.Context(), r.PathValue("ns"), r.PathValue("key"))
	switch {
	case err != nil:
		w.WriteHeader(statusOf(err))
	case !found:
		w.WriteHeader(http.StatusNotFound)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

// handleSet stores the request body. The content type selects the value
// shape (see decodeBody), ?ttl= records an expiry.
func (s *Server) handleSet(w http.ResponseWriter, r *http.Request) {
	ttl, err := parseTTL(r.URL.Query().Get("ttl"))
	if err != nil {
		writeError(w, err)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, bodyError(err))
		return
	}
	value, err := decodeBody(r.Header.Get("Content-Type"), body)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.store.SetE(r.Context(), r.PathValue("ns"), r.PathValue("key"), value, ttl); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.Delete(r.Context(), r.PathValue("ns"), r.PathValue("key"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: n})
}

// --------------------------------------------------------------------------
// Batch operations
// --------------------------------------------------------------------------

func (s *Server) handleGetMany(w http.ResponseWriter, r *http.Request) {
	var req keysRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	values, err := s.store.GetMany(r.Context(), r.PathValue("ns"), req.Keys)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"values": values})
}

func (s *Server) handleHasMany(w http.ResponseWriter, r *http.Request) {
	var req keysRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	found, err := s.store.HasMany(r.Context(), r.PathValue("ns"), req.Keys)
	if err != nil {
		writeError(w, err)
		return
	}
	keys := make([]string, 0, len(found))
	for k := range found {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	writeJSON(w, http.StatusOK, keysRequest{Keys: keys})
}

func (s *Server) handleSetMany(w http.ResponseWriter, r *http.Request) {
	var req setManyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if _, err := codec.NormalizeNumbers(req.Values); err != nil {
		writeError(w, err)
		return
	}
	ttl, err := parseTTL(req.TTL)
	if err != nil {
		writeError(w, err)
		return
	}
	n, err := s.store.SetManyE(r.Context(), r.PathValue("ns"), req.Values, ttl)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: n})
}

func (s *Server) handleDeleteMany(w http.ResponseWriter, r *http.Request) {
	var req keysRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	n, err := s.store.DeleteMany(r.Context(), r.PathValue("ns"), req.Keys)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: n})
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	n, err := s.store.Rename(r.Context(), r.PathValue("ns"), req.Renames, store.RenameOptions{
		Overwrite:    req.Overwrite,
		AllowMissing: req.AllowMissing,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: n})
}

// --------------------------------------------------------------------------
// Introspection
// --------------------------------------------------------------------------

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.store.Info(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleMetrics writes the store and the http metrics in Prometheus text format
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	s.store.WriteMetrics(w)
	s.metrics.WritePrometheus(w)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// decodeBody converts a request body into a store value: JSON bodies are
// decoded, text bodies become strings and everything else is kept as bytes.
func decodeBody(contentType string, body []byte) (any, error) {
	mediaType := contentTypeBytes
	if contentType != "" {
		mt, _, err := mime.ParseMediaType(contentType)
		if err != nil {
			return nil, common.WrapError(common.RetCDecode, err, "invalid content type")
		}
		mediaType = mt
	}

	switch {
	case mediaType == "application/json":
		return codec.UnmarshalJSON(body)
	case strings.HasPrefix(mediaType, "text/"):
		return util.StringFromBytes("text body", body)
	default:
		return body, nil
	}
}

// readJSON decodes a request body into v. Numbers inside untyped values are
// kept as json.Number, see codec.NormalizeNumbers.
func readJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return bodyError(err)
	}
	return nil
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return common.WrapError(common.RetCConfig, err, "request body too large")
	}
	return common.WrapError(common.RetCDecode, err, "invalid request body")
}

func parseTTL(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	ttl, err := time.ParseDuration(s)
	if err != nil {
		return 0, common.WrapError(common.RetCConfig, err, "invalid ttl")
	}
	return ttl, nil
}

// statusOf maps a return code to an HTTP status
func statusOf(err error) int {
	switch common.CodeOf(err) {
	case common.RetCConfig, common.RetCType, common.RetCDecode:
		return http.StatusBadRequest
	case common.RetCGobNotAllowed:
		return http.StatusForbidden
	case common.RetCNotFound:
		return http.StatusNotFound
	case common.RetCConflict:
		return http.StatusConflict
	case common.RetCClosed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		logger.WithError(err).Error("request failed")
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: common.CodeOf(err).String()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithError(err).Warn("failed to write response")
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
