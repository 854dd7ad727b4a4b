package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"qc/internal/calc"
	"qc/internal/compare"
	"qc/internal/metrics"
	"qc/internal/reconcile"
	"qc/internal/rules"
	"qc/internal/store"
)

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"rules":   rules.List(),
	})
}

type runRequest struct {
	SessionID string       `json:"session_id"`
	Rules     []rules.Spec `json:"rules"`
}

func (s *Server) handleRunRules(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, errors.New("session_id is required"))
		return
	}
	if len(req.Rules) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("at least one rule is required"))
		return
	}

	sess, err := s.sessions.Get(req.SessionID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	batch := rules.RunBatch(sess.Data, req.Rules, s.log)
	metrics.IncCounter("qc_runs_total", 1, metrics.Labels{"kind": "rules"})
	metrics.IncCounter("qc_rows_total", float64(sess.Data.NumRows()), metrics.Labels{"kind": "checked"})

	rec := s.storeResult(store.KindRules, req.SessionID, batch)
	s.log.Printf("stage=qc_run session=%s rules=%d passed=%d failed=%d result=%s",
		req.SessionID, batch.TotalRules, batch.PassedCount, batch.FailedCount, rec.ID)

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"result_id":    rec.ID,
		"all_passed":   batch.AllPassed,
		"total_rules":  batch.TotalRules,
		"passed_count": batch.PassedCount,
		"failed_count": batch.FailedCount,
		"results":      batch.Results,
	})
}

type compareRequest struct {
	SourceSessionID  string   `json:"source_session_id"`
	TargetSessionID  string   `json:"target_session_id"`
	KeyColumns       []string `json:"key_columns"`
	CompareColumns   []string `json:"compare_columns"`
	Tolerance        float64  `json:"tolerance"`
	IgnoreCase       bool     `json:"ignore_case"`
	IgnoreWhitespace bool     `json:"ignore_whitespace"`
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.SourceSessionID == "" || req.TargetSessionID == "" {
		writeError(w, http.StatusBadRequest, errors.New("both source_session_id and target_session_id are required"))
		return
	}

	src, err := s.sessions.Get(req.SourceSessionID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	dst, err := s.sessions.Get(req.TargetSessionID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	result, err := compare.Compare(src.Data, dst.Data, compare.Options{
		KeyColumns:       req.KeyColumns,
		CompareColumns:   req.CompareColumns,
		Tolerance:        req.Tolerance,
		IgnoreCase:       req.IgnoreCase,
		IgnoreWhitespace: req.IgnoreWhitespace,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	metrics.IncCounter("qc_runs_total", 1, metrics.Labels{"kind": "compare"})

	rec := s.storeResult(store.KindComparison, req.SourceSessionID, result)
	s.log.Printf("stage=qc_compare source=%s target=%s match=%t diffs=%d result=%s",
		req.SourceSessionID, req.TargetSessionID, result.Match, result.Summary.TotalDifferences, rec.ID)

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"result_id": rec.ID,
		"result":    result,
	})
}

type reconcileRequest struct {
	Sources []struct {
		Name      string `json:"name"`
		SessionID string `json:"session_id"`
	} `json:"sources"`
	KeyColumns       []string `json:"key_columns"`
	ValueColumns     []string `json:"value_columns"`
	Tolerance        any      `json:"tolerance"`
	DateTolerance    *struct {
		Value float64 `json:"value"`
		Unit  string  `json:"unit"`
	} `json:"date_tolerance"`
	Transforms       []string `json:"transforms"`
	IgnoreCase       bool     `json:"ignore_case"`
	IgnoreWhitespace bool     `json:"ignore_whitespace"`
	NullEqualsNull   *bool    `json:"null_equals_null"`
	CheckDuplicates  *bool    `json:"check_duplicates"`
	CheckUnique      *bool    `json:"check_unique"`
	CheckDifferences *bool    `json:"check_differences"`
	Aggregation      *struct {
		Column            string   `json:"column"`
		Function          string   `json:"function"`
		GroupBy           []string `json:"group_by"`
		VarianceThreshold float64  `json:"variance_threshold"`
	} `json:"aggregation"`
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Sources) < 2 {
		writeError(w, http.StatusBadRequest, errors.New("at least 2 sources are required"))
		return
	}

	sources := make([]reconcile.Source, 0, len(req.Sources))
	for i, src := range req.Sources {
		sess, err := s.sessions.Get(src.SessionID)
		if err != nil {
			writeEngineError(w, fmt.Errorf("source %d (%s): %w", i, src.Name, err))
			return
		}
		name := src.Name
		if name == "" {
			name = fmt.Sprintf("source_%d", i+1)
		}
		sources = append(sources, reconcile.Source{Name: name, Data: sess.Data})
	}

	opts, err := buildReconcileOptions(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := reconcile.Reconcile(sources, opts)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	metrics.IncCounter("qc_runs_total", 1, metrics.Labels{"kind": "reconcile"})

	rec := s.storeResult(store.KindReconciliation, "", result)
	s.log.Printf("stage=qc_reconcile sources=%d keys=%d matched=%d result=%s",
		len(sources), result.TotalKeys, result.Matched, rec.ID)

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"result_id": rec.ID,
		"result":    result,
	})
}

// buildReconcileOptions normalizes the loosely typed request body into the
// canonical engine options.
func buildReconcileOptions(req reconcileRequest) (reconcile.Options, error) {
	tol, err := reconcile.ParseToleranceConfig(req.Tolerance)
	if err != nil {
		return reconcile.Options{}, err
	}

	opts := reconcile.Options{
		KeyColumns:       req.KeyColumns,
		ValueColumns:     req.ValueColumns,
		Numeric:          tol,
		IgnoreCase:       req.IgnoreCase,
		IgnoreWhitespace: req.IgnoreWhitespace,
		NullEqualsNull:   req.NullEqualsNull,
		CheckDuplicates:  boolOr(req.CheckDuplicates, true),
		CheckUnique:      boolOr(req.CheckUnique, true),
		CheckDifferences: boolOr(req.CheckDifferences, true),
	}

	for _, t := range req.Transforms {
		opts.Transforms = append(opts.Transforms, reconcile.Transform(t))
	}

	if dt := req.DateTolerance; dt != nil {
		unit := reconcile.DateUnit(dt.Unit)
		switch unit {
		case "", reconcile.UnitDays:
			unit = reconcile.UnitDays
		case reconcile.UnitHours, reconcile.UnitMinutes:
		default:
			return reconcile.Options{}, fmt.Errorf("unknown date tolerance unit %q", dt.Unit)
		}
		opts.Date = reconcile.DateTolerance{Value: dt.Value, Unit: unit}
	}

	if agg := req.Aggregation; agg != nil {
		opts.Aggregation = &reconcile.AggregationSpec{
			Column:            agg.Column,
			Function:          agg.Function,
			GroupBy:           agg.GroupBy,
			VarianceThreshold: agg.VarianceThreshold,
		}
	}
	return opts, nil
}

type calculateRequest struct {
	SessionID string         `json:"session_id"`
	Formulas  []calc.Formula `json:"formulas"`
	GroupBy   []string       `json:"group_by"`
}

func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	var req calculateRequest
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

	result, err := calc.Run(sess.Data, calc.Options{Formulas: req.Formulas, GroupBy: req.GroupBy})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	metrics.IncCounter("qc_runs_total", 1, metrics.Labels{"kind": "calculate"})

	rec := s.storeResult(store.KindCalculation, req.SessionID, result)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"result_id": rec.ID,
		"result":    result,
	})
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	rec, err := s.results.Get(r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"result_id":  rec.ID,
		"type":       rec.Kind,
		"session_id": rec.SessionID,
		"created_at": rec.CreatedAt,
		"result":     rec.Payload,
	})
}

func (s *Server) storeResult(kind store.ResultKind, sessionID string, payload any) *store.ResultRecord {
	rec := &store.ResultRecord{
		ID:        uuid.NewString(),
		Kind:      kind,
		SessionID: sessionID,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	s.results.Put(rec)
	return rec
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
