package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/eKV/lib/batch"
	"github.com/ValentinKolb/eKV/lib/db"
	"github.com/ValentinKolb/eKV/lib/db/engines/cedar"
	"github.com/ValentinKolb/eKV/lib/query"
	"github.com/ValentinKolb/eKV/rpc/common"
)

func newTestServer(t *testing.T, config common.ServerConfig) (*httptest.Server, db.KVDB) {
	t.Helper()
	opts := cedar.DefaultOptions()
	opts.PersistDebounce = time.Hour
	database := cedar.NewCedarDB(opts)

	ts := httptest.NewServer(NewServer(config, database).Handler())
	t.Cleanup(func() {
		ts.Close()
		database.Close()
	})
	return ts, database
}

func request(t *testing.T, method, url, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(data)
}

func TestKeyValueRoutes(t *testing.T) {
	ts, database := newTestServer(t, common.ServerConfig{})

	if code, body := request(t, http.MethodPut, ts.URL+"/kv/greeting?ttl=60&encrypted=true", "hello"); code != http.StatusOK {
		t.Fatalf("PUT = %d %s", code, body)
	}

	code, body := request(t, http.MethodGet, ts.URL+"/kv/greeting", "")
	if code != http.StatusOK || body != "hello" {
		t.Fatalf("GET = %d %q, want 200 hello", code, body)
	}

	code, body = request(t, http.MethodGet, ts.URL+"/kv/greeting?decrypted=true", "")
	if code != http.StatusOK || body != "hello" {
		t.Errorf("GET decrypted = %d %q", code, body)
	}

	if code, _ := request(t, http.MethodHead, ts.URL+"/kv/greeting", ""); code != http.StatusOK {
		t.Errorf("HEAD existing = %d", code)
	}
	if code, _ := request(t, http.MethodHead, ts.URL+"/kv/missing", ""); code != http.StatusNotFound {
		t.Errorf("HEAD missing = %d", code)
	}

	entry, _ := database.Lookup("greeting")
	if !entry.Encrypted || entry.ExpiresAt.IsZero() {
		t.Errorf("stored entry = %+v, want encrypted with ttl", entry)
	}

	code, body = request(t, http.MethodDelete, ts.URL+"/kv/greeting", "")
	if code != http.StatusOK || !strings.Contains(body, `"existed":true`) {
		t.Errorf("DELETE = %d %s", code, body)
	}
	if code, _ := request(t, http.MethodGet, ts.URL+"/kv/greeting", ""); code != http.StatusNotFound {
		t.Errorf("GET after DELETE = %d, want 404", code)
	}
}

func TestPutErrors(t *testing.T) {
	ts, _ := newTestServer(t, common.ServerConfig{})

	if code, _ := request(t, http.MethodPut, ts.URL+"/kv/k?ttl=soon", "v"); code != http.StatusBadRequest {
		t.Errorf("invalid ttl = %d, want 400", code)
	}
	if code, _ := request(t, http.MethodPut, ts.URL+"/kv/k?ttl=9300000000", "v"); code != http.StatusBadRequest {
		t.Errorf("overflowing ttl = %d, want 400", code)
	}
	code, body := request(t, http.MethodPut, ts.URL+"/kv/k?ttl=-5", "v")
	if code != http.StatusBadRequest || !strings.Contains(body, "error") {
		t.Errorf("negative ttl = %d %s, want 400", code, body)
	}
}

func TestPutEmptyBody(t *testing.T) {
	ts, database := newTestServer(t, common.ServerConfig{})

	if code, body := request(t, http.MethodPut, ts.URL+"/kv/empty", ""); code != http.StatusOK {
		t.Fatalf("PUT with empty body = %d %s", code, body)
	}
	if v, ok := database.Get("empty"); !ok || len(v) != 0 {
		t.Errorf("empty = %q, %v; want stored empty value", v, ok)
	}
	if code, body := request(t, http.MethodGet, ts.URL+"/kv/empty", ""); code != http.StatusOK || body != "" {
		t.Errorf("GET = %d %q, want 200 with empty body", code, body)
	}

	code, body := request(t, http.MethodPost, ts.URL+"/batch", `[{"op":"PUT","key":"a"}]`)
	if code != http.StatusConflict || !strings.Contains(body, "absent") {
		t.Errorf("batch PUT without value = %d %s, want 409", code, body)
	}
	if database.Exists("a") {
		t.Error("batch PUT without value stored the key")
	}
}

func TestQueryRoute(t *testing.T) {
	ts, database := newTestServer(t, common.ServerConfig{HistoryLimit: 1})
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		database.Put(k, []byte(k), db.Options{})
	}

	code, body := request(t, http.MethodGet, ts.URL+"/query?kind=range&pattern=b,d", "")
	if code != http.StatusOK {
		t.Fatalf("GET /query = %d %s", code, body)
	}
	var results []query.SizeResult
	if err := json.Unmarshal([]byte(body), &results); err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 || results[0].Key != "b" || results[2].Key != "d" {
		t.Errorf("range results = %v", results)
	}

	if code, _ := request(t, http.MethodGet, ts.URL+"/query?kind=regex&pattern=(", ""); code != http.StatusBadRequest {
		t.Errorf("invalid regex = %d, want 400", code)
	}
	if code, _ := request(t, http.MethodGet, ts.URL+"/query", ""); code != http.StatusBadRequest {
		t.Errorf("missing kind = %d, want 400", code)
	}

	_, body = request(t, http.MethodGet, ts.URL+"/query/history", "")
	var history []query.HistoryEntry
	if err := json.Unmarshal([]byte(body), &history); err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || history[0].Kind != query.KindRegex {
		t.Errorf("history = %+v, want only the regex query", history)
	}
}

func TestBatchRoute(t *testing.T) {
	ts, database := newTestServer(t, common.ServerConfig{BatchRollback: true})

	code, body := request(t, http.MethodPost, ts.URL+"/batch",
		`[{"op":"PUT","key":"a","value":"1"},{"op":"PUT","key":"b","value":"2"},{"op":"GET","key":"a"}]`)
	if code != http.StatusOK {
		t.Fatalf("POST /batch = %d %s", code, body)
	}
	var resp batch.Response
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || len(resp.Results) != 3 || resp.Results[2].Value != "1" {
		t.Errorf("batch response = %+v", resp)
	}

	code, body = request(t, http.MethodPost, ts.URL+"/batch",
		`[{"op":"PUT","key":"c","value":"3"},{"op":"PUT","key":"","value":"x"}]`)
	if code != http.StatusConflict {
		t.Fatalf("failing batch = %d %s, want 409", code, body)
	}
	if database.Exists("c") {
		t.Error("configured rollback did not undo the batch")
	}

	if code, _ := request(t, http.MethodPost, ts.URL+"/batch", `{"op":"PUT"}`); code != http.StatusBadRequest {
		t.Errorf("malformed batch = %d, want 400", code)
	}
}

func TestExportImportRoutes(t *testing.T) {
	ts, database := newTestServer(t, common.ServerConfig{})
	database.Put("k1", []byte("v1"), db.Options{})
	database.Put("k2", []byte("v2"), db.Options{Encrypted: true})

	code, exported := request(t, http.MethodGet, ts.URL+"/export?format=delimited", "")
	if code != http.StatusOK || !strings.HasPrefix(exported, `"Key","Value"`) {
		t.Fatalf("GET /export = %d %q", code, exported)
	}

	request(t, http.MethodPost, ts.URL+"/clear", "")
	if database.Len() != 0 {
		t.Fatal("POST /clear left keys behind")
	}

	code, body := request(t, http.MethodPost, ts.URL+"/import?format=delimited", exported)
	if code != http.StatusOK || !strings.Contains(body, `"applied":2`) {
		t.Fatalf("POST /import = %d %s", code, body)
	}
	if v, ok := database.Get("k2"); !ok || string(v) != "v2" {
		t.Errorf("k2 after import = %q, %v", v, ok)
	}

	if code, _ := request(t, http.MethodPost, ts.URL+"/import?format=structured", "[{"); code != http.StatusBadRequest {
		t.Errorf("unparsable import = %d, want 400", code)
	}
	if code, _ := request(t, http.MethodGet, ts.URL+"/export?format=yaml", ""); code != http.StatusBadRequest {
		t.Errorf("unknown export format = %d, want 400", code)
	}
}

func TestExportContentType(t *testing.T) {
	ts, database := newTestServer(t, common.ServerConfig{})
	database.Put("k", []byte("v"), db.Options{})

	for format, want := range map[string]string{
		"CSV":       "text/csv",
		"delimited": "text/csv",
		"JSON":      "application/json",
		"":          "application/json",
		"Plain":     "text/plain; charset=utf-8",
	} {
		resp, err := http.Get(ts.URL + "/export?format=" + format)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if got := resp.Header.Get("Content-Type"); resp.StatusCode != http.StatusOK || got != want {
			t.Errorf("format %q: %d %q, want 200 %q", format, resp.StatusCode, got, want)
		}
	}
}

func TestPersistRoute(t *testing.T) {
	ts, _ := newTestServer(t, common.ServerConfig{})
	if code, body := request(t, http.MethodPost, ts.URL+"/persist", ""); code != http.StatusNoContent {
		t.Errorf("POST /persist = %d %s", code, body)
	}

	opts := cedar.DefaultOptions()
	opts.BlobStore = nil
	database := cedar.NewCedarDB(opts)
	defer database.Close()
	unsupported := httptest.NewServer(NewServer(common.ServerConfig{}, database).Handler())
	defer unsupported.Close()

	if code, _ := request(t, http.MethodPost, unsupported.URL+"/persist", ""); code != http.StatusNotImplemented {
		t.Errorf("POST /persist without blob store = %d, want 501", code)
	}
}

func TestMonitoringRoutes(t *testing.T) {
	ts, database := newTestServer(t, common.ServerConfig{})
	database.Put("k", []byte("v"), db.Options{})
	database.Get("k")

	_, body := request(t, http.MethodGet, ts.URL+"/stats", "")
	var stats db.Statistics
	if err := json.Unmarshal([]byte(body), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.PutOps != 1 || stats.GetOps != 1 || stats.Keys != 1 {
		t.Errorf("stats = %+v", stats)
	}

	_, body = request(t, http.MethodGet, ts.URL+"/log", "")
	if !strings.Contains(body, `"op":"PUT"`) {
		t.Errorf("GET /log = %s", body)
	}

	_, body = request(t, http.MethodGet, ts.URL+"/info", "")
	if !strings.Contains(body, `"db_type":"cedar"`) {
		t.Errorf("GET /info = %s", body)
	}

	code, body := request(t, http.MethodGet, ts.URL+"/metrics", "")
	if code != http.StatusOK {
		t.Fatalf("GET /metrics = %d", code)
	}
	for _, want := range []string{
		`ekv_ops_total{op="put"} 1`,
		`ekv_http_requests_total{route="GET /stats",code="200"} 1`,
		`process_`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output is missing %q", want)
		}
	}
}
