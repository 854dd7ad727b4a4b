package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"qc/internal/dataset"
	"qc/internal/store"
	"qc/internal/store/sqlite"
)

// ---- credentials ----

func (s *Server) handleListCredentials(w http.ResponseWriter, r *http.Request) {
	if !s.requireCatalog(w) {
		return
	}
	names, err := s.catalog.ListCredentials(r.Context(), r.PathValue("type"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "credentials": names})
}

func (s *Server) handleGetCredential(w http.ResponseWriter, r *http.Request) {
	if !s.requireCatalog(w) {
		return
	}
	data, err := s.catalog.GetCredential(r.Context(), r.PathValue("type"), r.PathValue("name"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "credential": data})
}

func (s *Server) handleSaveCredential(w http.ResponseWriter, r *http.Request) {
	if !s.requireCatalog(w) {
		return
	}
	var data map[string]any
	if err := decodeBody(r, &data); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("credential payload is required"))
		return
	}
	if err := s.catalog.SaveCredential(r.Context(), r.PathValue("type"), r.PathValue("name"), data); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleDeleteCredential(w http.ResponseWriter, r *http.Request) {
	if !s.requireCatalog(w) {
		return
	}
	if err := s.catalog.DeleteCredential(r.Context(), r.PathValue("type"), r.PathValue("name")); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// ---- settings ----

func (s *Server) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	if !s.requireCatalog(w) {
		return
	}
	var value json.RawMessage
	err := s.catalog.GetSetting(r.Context(), r.PathValue("key"), &value)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "value": value})
}

func (s *Server) handleSetSetting(w http.ResponseWriter, r *http.Request) {
	if !s.requireCatalog(w) {
		return
	}
	var body struct {
		Value any `json:"value"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.catalog.SetSetting(r.Context(), r.PathValue("key"), body.Value); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// ---- saved data sources ----

// handleSaveSource persists a loaded session so it survives restarts.
func (s *Server) handleSaveSource(w http.ResponseWriter, r *http.Request) {
	if !s.requireCatalog(w) {
		return
	}
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	name, err := s.catalog.UniqueSourceName(r.Context(), sess.Name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	meta := sqlite.SourceMeta{
		SourceID:   sess.ID,
		SourceName: name,
		SourceType: sess.SourceType,
		Columns:    sess.Data.ColumnNames(),
		Query:      sess.Query,
	}
	if err := s.catalog.SaveDataSource(r.Context(), meta, sess.Data.Records()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.log.Printf("stage=storage op=save_source source=%s name=%q rows=%d", sess.ID, name, sess.Data.NumRows())
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "source_id": sess.ID, "source_name": name})
}

func (s *Server) handleListSavedSources(w http.ResponseWriter, r *http.Request) {
	if !s.requireCatalog(w) {
		return
	}
	sources, err := s.catalog.ListDataSources(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "sources": sources})
}

// handleLoadSource rebuilds a dataset from a saved source and creates a new
// session for it.
func (s *Server) handleLoadSource(w http.ResponseWriter, r *http.Request) {
	if !s.requireCatalog(w) {
		return
	}
	meta, records, err := s.catalog.GetDataSource(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	ds, err := dataset.FromRecords(meta.Columns, records)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	sess := &store.Session{
		ID:         uuid.NewString(),
		Name:       meta.SourceName,
		SourceType: meta.SourceType,
		Query:      meta.Query,
		Data:       ds,
		CreatedAt:  time.Now().UTC(),
	}
	s.sessions.Put(sess)

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"session_id": sess.ID,
		"source_id":  meta.SourceID,
		"name":       meta.SourceName,
		"columns":    meta.Columns,
		"row_count":  ds.NumRows(),
	})
}

func (s *Server) handleDeleteSavedSource(w http.ResponseWriter, r *http.Request) {
	if !s.requireCatalog(w) {
		return
	}
	if err := s.catalog.DeleteDataSource(r.Context(), r.PathValue("id")); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
