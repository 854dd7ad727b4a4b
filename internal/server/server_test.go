package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"qc/internal/dataset"
	"qc/internal/store"
	"qc/internal/store/sqlite"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return New(Options{Logger: log.New(io.Discard, "", 0)})
}

func seedSession(t *testing.T, s *Server, id string, rows [][]string) {
	t.Helper()
	ds, err := dataset.FromStringRows([]string{"id", "amount", "city"}, rows)
	if err != nil {
		t.Fatalf("FromStringRows() err=%v", err)
	}
	s.sessions.Put(&store.Session{
		ID:         id,
		Name:       id,
		SourceType: "test",
		Data:       ds,
		CreatedAt:  time.Now().UTC(),
	})
}

var seedRows = [][]string{
	{"1", "100", "berlin"},
	{"2", "200", "paris"},
	{"3", "300", "berlin"},
}

// doJSON posts body as JSON (or issues a bare request when body is nil) and
// decodes the response body into a generic map.
func doJSON(t *testing.T, s *Server, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("%s %s: decode response %q: %v", method, path, w.Body.String(), err)
	}
	return w.Code, out
}

func TestListRules(t *testing.T) {
	s := newTestServer(t)
	code, out := doJSON(t, s, http.MethodGet, "/api/qc/rules", nil)
	if code != http.StatusOK {
		t.Fatalf("status=%d, want 200", code)
	}
	list, _ := out["rules"].([]any)
	if len(list) != 9 {
		t.Fatalf("len(rules)=%d, want 9", len(list))
	}
}

func TestRunRules(t *testing.T) {
	s := newTestServer(t)
	seedSession(t, s, "sess-1", seedRows)

	code, out := doJSON(t, s, http.MethodPost, "/api/qc/run", map[string]any{
		"session_id": "sess-1",
		"rules": []map[string]any{
			{"rule_id": "null_check", "config": map[string]any{}},
			{"rule_id": "range_check", "config": map[string]any{"column": "amount", "min_value": 0, "max_value": 500}},
		},
	})
	if code != http.StatusOK {
		t.Fatalf("status=%d body=%v, want 200", code, out)
	}
	if out["all_passed"] != true || out["total_rules"] != 2.0 {
		t.Fatalf("response=%v, want all_passed with 2 rules", out)
	}
	id, _ := out["result_id"].(string)
	if id == "" {
		t.Fatal("result_id missing")
	}

	code, out = doJSON(t, s, http.MethodGet, "/api/qc/results/"+id, nil)
	if code != http.StatusOK {
		t.Fatalf("get result status=%d, want 200", code)
	}
	if out["type"] != "rules" || out["session_id"] != "sess-1" {
		t.Fatalf("stored result=%v, want type=rules session=sess-1", out)
	}

	code, _ = doJSON(t, s, http.MethodGet, "/api/qc/results/no-such-result", nil)
	if code != http.StatusNotFound {
		t.Fatalf("get missing result status=%d, want 404", code)
	}
}

func TestRunRules_Rejections(t *testing.T) {
	s := newTestServer(t)
	seedSession(t, s, "sess-1", seedRows)

	req := httptest.NewRequest(http.MethodPost, "/api/qc/run", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad JSON status=%d, want 400", w.Code)
	}

	code, _ := doJSON(t, s, http.MethodPost, "/api/qc/run", map[string]any{
		"rules": []map[string]any{{"rule_id": "null_check"}},
	})
	if code != http.StatusBadRequest {
		t.Fatalf("missing session_id status=%d, want 400", code)
	}

	code, _ = doJSON(t, s, http.MethodPost, "/api/qc/run", map[string]any{
		"session_id": "sess-1",
	})
	if code != http.StatusBadRequest {
		t.Fatalf("no rules status=%d, want 400", code)
	}

	code, _ = doJSON(t, s, http.MethodPost, "/api/qc/run", map[string]any{
		"session_id": "ghost",
		"rules":      []map[string]any{{"rule_id": "null_check"}},
	})
	if code != http.StatusNotFound {
		t.Fatalf("unknown session status=%d, want 404", code)
	}
}

func TestCompare(t *testing.T) {
	s := newTestServer(t)
	seedSession(t, s, "left", seedRows)
	seedSession(t, s, "right", seedRows)

	code, out := doJSON(t, s, http.MethodPost, "/api/qc/compare", map[string]any{
		"source_session_id": "left",
		"target_session_id": "right",
	})
	if code != http.StatusOK {
		t.Fatalf("status=%d body=%v, want 200", code, out)
	}
	result, _ := out["result"].(map[string]any)
	if result["match"] != true {
		t.Fatalf("result=%v, want match=true", result)
	}

	code, _ = doJSON(t, s, http.MethodPost, "/api/qc/compare", map[string]any{
		"source_session_id": "left",
	})
	if code != http.StatusBadRequest {
		t.Fatalf("missing target status=%d, want 400", code)
	}
}

func TestReconcile(t *testing.T) {
	s := newTestServer(t)
	seedSession(t, s, "left", seedRows)
	seedSession(t, s, "right", [][]string{
		{"1", "100", "berlin"},
		{"2", "250", "paris"},
	})

	body := map[string]any{
		"sources": []map[string]any{
			{"name": "left", "session_id": "left"},
			{"name": "right", "session_id": "right"},
		},
		"key_columns":   []string{"id"},
		"value_columns": []string{"amount"},
	}
	code, out := doJSON(t, s, http.MethodPost, "/api/qc/reconcile", body)
	if code != http.StatusOK {
		t.Fatalf("status=%d body=%v, want 200", code, out)
	}
	result, _ := out["result"].(map[string]any)
	if result["total_keys"] != 3.0 {
		t.Fatalf("result=%v, want total_keys=3", result)
	}

	code, _ = doJSON(t, s, http.MethodPost, "/api/qc/reconcile", map[string]any{
		"sources": []map[string]any{{"name": "only", "session_id": "left"}},
	})
	if code != http.StatusBadRequest {
		t.Fatalf("one source status=%d, want 400", code)
	}

	body["date_tolerance"] = map[string]any{"value": 1.0, "unit": "fortnights"}
	code, _ = doJSON(t, s, http.MethodPost, "/api/qc/reconcile", body)
	if code != http.StatusBadRequest {
		t.Fatalf("bad date unit status=%d, want 400", code)
	}
}

func TestCalculate(t *testing.T) {
	s := newTestServer(t)
	seedSession(t, s, "sess-1", seedRows)

	code, out := doJSON(t, s, http.MethodPost, "/api/qc/calculate", map[string]any{
		"session_id": "sess-1",
		"formulas":   []map[string]any{{"name": "total", "column": "amount", "function": "sum"}},
	})
	if code != http.StatusOK {
		t.Fatalf("status=%d body=%v, want 200", code, out)
	}
	result, _ := out["result"].(map[string]any)
	entries, _ := result["entries"].([]any)
	if len(entries) != 1 {
		t.Fatalf("entries=%v, want one", entries)
	}
	entry, _ := entries[0].(map[string]any)
	if entry["value"] != 600.0 {
		t.Fatalf("entry=%v, want value=600", entry)
	}
}

func TestDataPreviewAndDelete(t *testing.T) {
	s := newTestServer(t)
	seedSession(t, s, "sess-1", seedRows)

	code, out := doJSON(t, s, http.MethodGet, "/api/data/preview/sess-1?offset=1&limit=1", nil)
	if code != http.StatusOK {
		t.Fatalf("status=%d, want 200", code)
	}
	if out["total_rows"] != 3.0 {
		t.Fatalf("total_rows=%v, want 3", out["total_rows"])
	}
	previewRows, _ := out["rows"].([]any)
	if len(previewRows) != 1 {
		t.Fatalf("rows=%v, want one row", previewRows)
	}
	row, _ := previewRows[0].(map[string]any)
	if row["id"] != 2.0 {
		t.Fatalf("row=%v, want id=2", row)
	}

	code, out = doJSON(t, s, http.MethodGet, "/api/data/sources", nil)
	if code != http.StatusOK {
		t.Fatalf("list status=%d, want 200", code)
	}
	if list, _ := out["sources"].([]any); len(list) != 1 {
		t.Fatalf("sources=%v, want one", out["sources"])
	}

	code, _ = doJSON(t, s, http.MethodDelete, "/api/data/sources/sess-1", nil)
	if code != http.StatusOK {
		t.Fatalf("delete status=%d, want 200", code)
	}
	code, _ = doJSON(t, s, http.MethodGet, "/api/data/preview/sess-1", nil)
	if code != http.StatusNotFound {
		t.Fatalf("preview after delete status=%d, want 404", code)
	}
}

func TestDataQuery_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.csv")
	if err := os.WriteFile(path, []byte("id,amount\n1,10\n2,20\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := newTestServer(t)
	code, out := doJSON(t, s, http.MethodPost, "/api/data/query", map[string]any{
		"source": "file",
		"dsn":    path,
		"name":   "orders",
	})
	if code != http.StatusOK {
		t.Fatalf("status=%d body=%v, want 200", code, out)
	}
	if out["row_count"] != 2.0 {
		t.Fatalf("row_count=%v, want 2", out["row_count"])
	}
	if id, _ := out["session_id"].(string); id == "" {
		t.Fatal("session_id missing")
	}
	dtypes, _ := out["dtypes"].(map[string]any)
	if dtypes["id"] != "integer" {
		t.Fatalf("dtypes=%v, want id=integer", dtypes)
	}

	code, _ = doJSON(t, s, http.MethodPost, "/api/data/query", map[string]any{
		"source": "no-such-backend",
	})
	if code != http.StatusBadRequest {
		t.Fatalf("unknown source status=%d, want 400", code)
	}
}

func TestDataUpload(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "upload.csv")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte("id,city\n1,berlin\n")); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/data/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s, want 200", w.Code, w.Body.String())
	}
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	// The file name stands in for a missing name field.
	if out["name"] != "upload.csv" || out["row_count"] != 1.0 {
		t.Fatalf("response=%v, want name=upload.csv row_count=1", out)
	}
}

func TestTestConnection(t *testing.T) {
	s := newTestServer(t)
	code, out := doJSON(t, s, http.MethodPost, "/api/data/test-connection", map[string]any{
		"source": "no-such-backend",
	})
	if code != http.StatusOK {
		t.Fatalf("status=%d, want 200", code)
	}
	if out["success"] != false {
		t.Fatalf("response=%v, want success=false", out)
	}
}

func TestExport(t *testing.T) {
	s := newTestServer(t)
	seedSession(t, s, "sess-1", seedRows)

	_, out := doJSON(t, s, http.MethodPost, "/api/qc/run", map[string]any{
		"session_id": "sess-1",
		"rules":      []map[string]any{{"rule_id": "null_check", "config": map[string]any{}}},
	})
	resultID, _ := out["result_id"].(string)
	if resultID == "" {
		t.Fatal("result_id missing")
	}

	body, _ := json.Marshal(map[string]any{"result_id": resultID})
	req := httptest.NewRequest(http.MethodPost, "/api/export/csv", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("csv status=%d body=%s, want 200", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("Content-Type=%q, want text/csv", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "qc_results_") {
		t.Fatalf("Content-Disposition=%q, want attachment name", cd)
	}
	if !strings.Contains(w.Body.String(), "QC Results Summary") {
		t.Fatalf("csv body=%q, want summary section", w.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/api/export/json", bytes.NewReader(body))
	w = httptest.NewRecorder()
	s.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("json status=%d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type=%q, want application/json", ct)
	}

	code, _ := doJSON(t, s, http.MethodPost, "/api/export/json", map[string]any{})
	if code != http.StatusBadRequest {
		t.Fatalf("missing result_id status=%d, want 400", code)
	}
	code, _ = doJSON(t, s, http.MethodPost, "/api/export/json", map[string]any{"result_id": "ghost"})
	if code != http.StatusNotFound {
		t.Fatalf("unknown result status=%d, want 404", code)
	}
}

func TestExportData(t *testing.T) {
	s := newTestServer(t)
	seedSession(t, s, "sess-1", [][]string{{"1", "10", "berlin"}})

	body, _ := json.Marshal(map[string]any{"session_id": "sess-1"})
	req := httptest.NewRequest(http.MethodPost, "/api/export/data/csv", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", w.Code)
	}
	want := "id,amount,city\n1,10,berlin\n"
	if got := w.Body.String(); got != want {
		t.Fatalf("body=%q, want %q", got, want)
	}
}

func TestStorageRequiresCatalog(t *testing.T) {
	s := newTestServer(t)
	code, out := doJSON(t, s, http.MethodGet, "/api/storage/sources", nil)
	if code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, want 503", code)
	}
	if msg, _ := out["error"].(string); !strings.Contains(msg, "not configured") {
		t.Fatalf("error=%q, want not configured", msg)
	}
}

func TestStorageRoundTrip(t *testing.T) {
	catalog, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("Open() err=%v", err)
	}
	defer catalog.Close()

	s := New(Options{Catalog: catalog, Logger: log.New(io.Discard, "", 0)})
	seedSession(t, s, "sess-1", seedRows)

	code, out := doJSON(t, s, http.MethodPost, "/api/storage/sources/sess-1", nil)
	if code != http.StatusOK {
		t.Fatalf("save status=%d body=%v, want 200", code, out)
	}
	if out["source_name"] != "sess-1" {
		t.Fatalf("save response=%v, want source_name=sess-1", out)
	}

	code, out = doJSON(t, s, http.MethodGet, "/api/storage/sources/sess-1", nil)
	if code != http.StatusOK {
		t.Fatalf("load status=%d body=%v, want 200", code, out)
	}
	if out["row_count"] != 3.0 {
		t.Fatalf("load response=%v, want row_count=3", out)
	}
	newID, _ := out["session_id"].(string)
	if newID == "" || newID == "sess-1" {
		t.Fatalf("session_id=%q, want a fresh session", newID)
	}

	code, _ = doJSON(t, s, http.MethodPost, "/api/storage/credentials/postgres/prod", map[string]any{"host": "db1"})
	if code != http.StatusOK {
		t.Fatalf("save credential status=%d, want 200", code)
	}
	code, out = doJSON(t, s, http.MethodGet, "/api/storage/credentials/postgres/prod", nil)
	if code != http.StatusOK {
		t.Fatalf("get credential status=%d, want 200", code)
	}
	cred, _ := out["credential"].(map[string]any)
	if cred["host"] != "db1" {
		t.Fatalf("credential=%v, want host=db1", cred)
	}

	code, _ = doJSON(t, s, http.MethodPost, "/api/storage/settings/theme", map[string]any{"value": "dark"})
	if code != http.StatusOK {
		t.Fatalf("set setting status=%d, want 200", code)
	}
	code, out = doJSON(t, s, http.MethodGet, "/api/storage/settings/theme", nil)
	if code != http.StatusOK || out["value"] != "dark" {
		t.Fatalf("get setting=(%d,%v), want dark", code, out)
	}

	code, _ = doJSON(t, s, http.MethodDelete, "/api/storage/sources/sess-1", nil)
	if code != http.StatusOK {
		t.Fatalf("delete saved source status=%d, want 200", code)
	}
	code, _ = doJSON(t, s, http.MethodGet, "/api/storage/sources/sess-1", nil)
	if code != http.StatusNotFound {
		t.Fatalf("load deleted source status=%d, want 404", code)
	}
}
