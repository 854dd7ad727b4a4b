// Package server exposes the engines over HTTP. Handlers decode loosely
// typed JSON request bodies, normalize them into the canonical option
// structs at this boundary, and hand fully typed inputs to the engines.
package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"qc/internal/metrics"
	"qc/internal/store"
	"qc/internal/store/sqlite"
)

// Server carries the shared stores and the registered routes.
type Server struct {
	sessions *store.Sessions
	results  *store.Results
	catalog  *sqlite.Catalog
	log      *log.Logger
	mux      *http.ServeMux
}

// Options configures a Server. Catalog may be nil; the persistence routes
// then respond 503.
type Options struct {
	Sessions *store.Sessions
	Results  *store.Results
	Catalog  *sqlite.Catalog
	Logger   *log.Logger
}

func New(opts Options) *Server {
	if opts.Sessions == nil {
		opts.Sessions = store.NewSessions(0, 0)
	}
	if opts.Results == nil {
		opts.Results = store.NewResults(0, 0)
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	s := &Server{
		sessions: opts.Sessions,
		results:  opts.Results,
		catalog:  opts.Catalog,
		log:      opts.Logger,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/data/query", s.handleDataQuery)
	s.mux.HandleFunc("POST /api/data/upload", s.handleDataUpload)
	s.mux.HandleFunc("GET /api/data/preview/{id}", s.handleDataPreview)
	s.mux.HandleFunc("GET /api/data/sources", s.handleDataSources)
	s.mux.HandleFunc("DELETE /api/data/sources/{id}", s.handleDataDelete)
	s.mux.HandleFunc("POST /api/data/test-connection", s.handleTestConnection)

	s.mux.HandleFunc("GET /api/qc/rules", s.handleListRules)
	s.mux.HandleFunc("POST /api/qc/run", s.handleRunRules)
	s.mux.HandleFunc("POST /api/qc/compare", s.handleCompare)
	s.mux.HandleFunc("POST /api/qc/reconcile", s.handleReconcile)
	s.mux.HandleFunc("POST /api/qc/calculate", s.handleCalculate)
	s.mux.HandleFunc("GET /api/qc/results/{id}", s.handleGetResult)

	s.mux.HandleFunc("POST /api/export/csv", s.handleExportCSV)
	s.mux.HandleFunc("POST /api/export/json", s.handleExportJSON)
	s.mux.HandleFunc("POST /api/export/data/csv", s.handleExportData)

	s.mux.HandleFunc("GET /api/storage/credentials/{type}", s.handleListCredentials)
	s.mux.HandleFunc("GET /api/storage/credentials/{type}/{name}", s.handleGetCredential)
	s.mux.HandleFunc("POST /api/storage/credentials/{type}/{name}", s.handleSaveCredential)
	s.mux.HandleFunc("DELETE /api/storage/credentials/{type}/{name}", s.handleDeleteCredential)
	s.mux.HandleFunc("GET /api/storage/settings/{key}", s.handleGetSetting)
	s.mux.HandleFunc("POST /api/storage/settings/{key}", s.handleSetSetting)
	s.mux.HandleFunc("POST /api/storage/sources/{id}", s.handleSaveSource)
	s.mux.HandleFunc("GET /api/storage/sources", s.handleListSavedSources)
	s.mux.HandleFunc("GET /api/storage/sources/{id}", s.handleLoadSource)
	s.mux.HandleFunc("DELETE /api/storage/sources/{id}", s.handleDeleteSavedSource)
}

// ServeHTTP implements http.Handler with request logging and HTTP metrics
// around the mux.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(sw, r)

	elapsed := time.Since(start)
	status := strconv.Itoa(sw.status)
	metrics.IncCounter("qc_http_requests_total", 1, metrics.Labels{"status": status})
	metrics.ObserveHistogram("qc_http_request_duration_seconds", elapsed.Seconds(), metrics.Labels{"status": status})
	s.log.Printf("stage=http method=%s path=%s status=%s dur=%s", r.Method, r.URL.Path, status, elapsed)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// ---- response helpers ----

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

// writeEngineError maps store misses to 404 and everything else to 400; the
// engines validate inputs, so their errors are the caller's fault.
func writeEngineError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeError(w, http.StatusBadRequest, err)
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid JSON body: " + err.Error())
	}
	return nil
}

// requireCatalog guards the persistence routes when no catalog is open.
func (s *Server) requireCatalog(w http.ResponseWriter) bool {
	if s.catalog == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("persistent storage is not configured"))
		return false
	}
	return true
}
