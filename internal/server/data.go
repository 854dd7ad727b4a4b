package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"qc/internal/connector"
	"qc/internal/connector/file"
	"qc/internal/dataset"
	"qc/internal/store"
)

const previewDefaultLimit = 100

type queryRequest struct {
	Source string `json:"source"`
	DSN    string `json:"dsn"`
	Query  string `json:"query"`
	Name   string `json:"name"`
}

// handleDataQuery loads a dataset through a registered connector and creates
// a session for it.
func (s *Server) handleDataQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Source == "" {
		writeError(w, http.StatusBadRequest, errors.New("source is required"))
		return
	}

	conn, err := connector.New(r.Context(), connector.Config{Kind: req.Source, DSN: req.DSN})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	defer conn.Close()

	ds, err := conn.Query(r.Context(), req.Query)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sess := &store.Session{
		ID:         uuid.NewString(),
		Name:       req.Name,
		SourceType: req.Source,
		Query:      req.Query,
		Data:       ds,
		CreatedAt:  time.Now().UTC(),
	}
	s.sessions.Put(sess)
	s.log.Printf("stage=data_query source=%s session=%s rows=%d cols=%d", req.Source, sess.ID, ds.NumRows(), ds.NumCols())

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"session_id": sess.ID,
		"columns":    ds.ColumnNames(),
		"row_count":  ds.NumRows(),
		"dtypes":     columnTypes(ds),
		"preview":    previewRecords(ds, 0, previewDefaultLimit),
	})
}

// handleDataUpload accepts one delimited file as a multipart upload and
// creates a session for it.
func (s *Server) handleDataUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("parse upload: %w", err))
		return
	}
	f, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("file field is required"))
		return
	}
	defer f.Close()

	ds, err := file.Read(f, ',')
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	name := r.FormValue("name")
	if name == "" {
		name = header.Filename
	}
	sess := &store.Session{
		ID:         uuid.NewString(),
		Name:       name,
		SourceType: "upload",
		Data:       ds,
		CreatedAt:  time.Now().UTC(),
	}
	s.sessions.Put(sess)
	s.log.Printf("stage=data_upload file=%s session=%s rows=%d", header.Filename, sess.ID, ds.NumRows())

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"session_id": sess.ID,
		"name":       name,
		"columns":    ds.ColumnNames(),
		"row_count":  ds.NumRows(),
		"dtypes":     columnTypes(ds),
	})
}

func (s *Server) handleDataPreview(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", previewDefaultLimit)

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"session_id": sess.ID,
		"offset":     offset,
		"limit":      limit,
		"total_rows": sess.Data.NumRows(),
		"columns":    sess.Data.ColumnNames(),
		"rows":       previewRecords(sess.Data, offset, limit),
	})
}

func (s *Server) handleDataSources(w http.ResponseWriter, r *http.Request) {
	sessions := s.sessions.List()
	out := make([]map[string]any, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, map[string]any{
			"session_id":   sess.ID,
			"name":         sess.Name,
			"source":       sess.SourceType,
			"row_count":    sess.Data.NumRows(),
			"column_count": sess.Data.NumCols(),
			"created_at":   sess.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "sources": out})
}

func (s *Server) handleDataDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.sessions.Get(id); err != nil {
		writeEngineError(w, err)
		return
	}
	s.sessions.Delete(id)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res := connector.Test(r.Context(), connector.Config{Kind: req.Source, DSN: req.DSN})
	writeJSON(w, http.StatusOK, res)
}

// ---- helpers ----

func columnTypes(ds *dataset.Dataset) map[string]string {
	out := make(map[string]string, ds.NumCols())
	for _, c := range ds.Columns() {
		out[c.Name] = string(c.Type)
	}
	return out
}

// previewRecords slices [offset, offset+limit) as exported records.
func previewRecords(ds *dataset.Dataset, offset, limit int) []map[string]any {
	n := ds.NumRows()
	if offset < 0 {
		offset = 0
	}
	if offset > n {
		offset = n
	}
	end := offset + limit
	if limit <= 0 || end > n {
		end = n
	}

	out := make([]map[string]any, 0, end-offset)
	for i := offset; i < end; i++ {
		out = append(out, ds.Record(i))
	}
	return out
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
