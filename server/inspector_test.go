package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/quark-os/quark/audit"
	"github.com/quark-os/quark/diag"
	"github.com/quark-os/quark/kernel"
)

func newTestRuntime(t *testing.T) (*Runtime, *kernel.Process) {
	t.Helper()
	rt := NewRuntime("test")
	p, err := rt.Spawn("init")
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	p.Handles().AddHandle(kernel.NewHandle(kernel.NewEvent(), kernel.RightsDefaultEvent))
	a, b := kernel.NewChannelPair()
	p.Handles().AddHandle(kernel.NewHandle(a, kernel.RightsDefaultChannel))
	p.Handles().AddHandle(kernel.NewHandle(b, kernel.RightsDefaultChannel))
	return rt, p
}

func get(t *testing.T, srv *httptest.Server, path, accept string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, srv.URL+path, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestProcessListJSON(t *testing.T) {
	rt, p := newTestRuntime(t)
	srv := httptest.NewServer(NewInspector(rt).Handler())
	defer srv.Close()

	resp := get(t, srv, "/v1/processes", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var summaries []diag.ProcessSummary
	if err := json.NewDecoder(resp.Body).Decode(&summaries); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("processes = %d, want 1", len(summaries))
	}
	if summaries[0].Koid != uint64(p.Koid()) || summaries[0].HandleCount != 3 {
		t.Errorf("summary = %+v", summaries[0])
	}
}

func TestProcessDumpCBOR(t *testing.T) {
	rt, p := newTestRuntime(t)
	srv := httptest.NewServer(NewInspector(rt).Handler())
	defer srv.Close()

	path := "/v1/processes/" + strconv.FormatUint(uint64(p.Koid()), 10) + "/handles"
	resp := get(t, srv, path, "application/cbor")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/cbor" {
		t.Errorf("content type = %q", ct)
	}

	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 1024)
	for {
		n, err := resp.Body.Read(tmp)
		buf = append(buf, tmp[:n]...)
		if err != nil {
			break
		}
	}
	dump, err := diag.UnmarshalProcessDump(buf)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if dump.Koid != uint64(p.Koid()) || dump.HandleCount != 3 {
		t.Errorf("dump = %+v", dump)
	}
}

func TestProcessDumpNotFound(t *testing.T) {
	rt, _ := newTestRuntime(t)
	srv := httptest.NewServer(NewInspector(rt).Handler())
	defer srv.Close()

	resp := get(t, srv, "/v1/processes/999999/handles", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestProcessDumpTooLarge(t *testing.T) {
	rt, _ := newTestRuntime(t)
	srv := httptest.NewServer(NewInspector(rt, WithMaxDumpHandles(2)).Handler())
	defer srv.Close()

	p := rt.Processes()[0]
	path := "/v1/processes/" + strconv.FormatUint(uint64(p.Koid()), 10) + "/handles"
	resp := get(t, srv, path, "")
	if resp.StatusCode != http.StatusInsufficientStorage {
		t.Errorf("status = %d, want 507", resp.StatusCode)
	}
}

func TestAuditEndpoint(t *testing.T) {
	rt := NewRuntime("test")
	trail, err := audit.Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("audit.Open: %v", err)
	}
	defer trail.Close()

	if err := trail.Append(audit.Record{ProcessKoid: 7, ProcessName: "x", Violation: "bad-handle", Action: "allow"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	srv := httptest.NewServer(NewInspector(rt, WithAuditTrail(trail)).Handler())
	defer srv.Close()

	resp := get(t, srv, "/v1/audit/recent?limit=10", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var rows []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(rows) != 1 || rows[0]["process_name"] != "x" {
		t.Errorf("rows = %+v", rows)
	}
}

func TestAuditDisabled(t *testing.T) {
	rt := NewRuntime("test")
	srv := httptest.NewServer(NewInspector(rt).Handler())
	defer srv.Close()

	resp := get(t, srv, "/v1/audit/recent", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestRuntimeKillAndReap(t *testing.T) {
	rt, p := newTestRuntime(t)

	if rt.Reap(p.Koid()) {
		t.Error("reaped a live process")
	}
	if !rt.Kill(p.Koid()) {
		t.Fatal("Kill reported no such process")
	}
	if p.Handles().HandleCount() != 0 {
		t.Errorf("count after kill = %d, want 0", p.Handles().HandleCount())
	}
	if !rt.Reap(p.Koid()) {
		t.Error("could not reap a killed process")
	}
	if rt.ProcessCount() != 0 {
		t.Errorf("process count = %d, want 0", rt.ProcessCount())
	}
}
