package server

import (
	"errors"
	"fmt"
	"net/http"

	"qc/internal/calc"
	"qc/internal/compare"
	"qc/internal/export"
	"qc/internal/reconcile"
	"qc/internal/rules"
	"qc/internal/store"
)

type exportRequest struct {
	ResultID          string `json:"result_id"`
	IncludeFailedRows *bool  `json:"include_failed_rows"`
}

// shapeResult dispatches a stored result to the shaper matching its kind.
func shapeResult(rec *store.ResultRecord, opts export.Options) (*export.Data, error) {
	switch payload := rec.Payload.(type) {
	case *rules.BatchResult:
		return export.ShapeBatch(payload, opts), nil
	case *compare.Result:
		return export.ShapeComparison(payload, opts), nil
	case *reconcile.Result:
		return export.ShapeReconciliation(payload, opts), nil
	case *calc.Result:
		return export.ShapeCalculation(payload, opts), nil
	default:
		return nil, fmt.Errorf("result %s has unexportable type %q", rec.ID, rec.Kind)
	}
}

func (s *Server) exportData(w http.ResponseWriter, r *http.Request) (*export.Data, string, bool) {
	var req exportRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return nil, "", false
	}
	if req.ResultID == "" {
		writeError(w, http.StatusBadRequest, errors.New("result_id is required"))
		return nil, "", false
	}

	rec, err := s.results.Get(req.ResultID)
	if err != nil {
		writeEngineError(w, err)
		return nil, "", false
	}

	data, err := shapeResult(rec, export.Options{
		IncludeFailedRows: boolOr(req.IncludeFailedRows, true),
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return nil, "", false
	}
	return data, shortID(rec.ID), true
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	data, id, ok := s.exportData(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=qc_results_%s.csv", id))
	if err := export.WriteCSV(w, data); err != nil {
		s.log.Printf("stage=export format=csv err=%v", err)
	}
}

func (s *Server) handleExportJSON(w http.ResponseWriter, r *http.Request) {
	data, id, ok := s.exportData(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=qc_results_%s.json", id))
	if err := export.WriteJSON(w, data); err != nil {
		s.log.Printf("stage=export format=json err=%v", err)
	}
}

type exportDataRequest struct {
	SessionID string `json:"session_id"`
}

// handleExportData streams a loaded session's rows as plain CSV.
func (s *Server) handleExportData(w http.ResponseWriter, r *http.Request) {
	var req exportDataRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, errors.New("session_id is required"))
		return
	}

	sess, err := s.sessions.Get(req.SessionID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=data_%s.csv", shortID(sess.ID)))
	if err := export.WriteDatasetCSV(w, sess.Data); err != nil {
		s.log.Printf("stage=export format=data_csv err=%v", err)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
