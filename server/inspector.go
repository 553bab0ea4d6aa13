// Package server exposes a running quark runtime to diagnostic front-ends
// over HTTP. Payloads are JSON by default and canonical CBOR when requested.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/tliron/commonlog"

	"github.com/quark-os/quark/audit"
	"github.com/quark-os/quark/diag"
	"github.com/quark-os/quark/kernel"
)

var log = commonlog.GetLogger("quark.inspector")

const cborContentType = "application/cbor"

// Inspector serves runtime introspection endpoints.
type Inspector struct {
	runtime *Runtime
	trail   *audit.Store // may be nil when auditing is disabled
	mux     *http.ServeMux
	httpSrv *http.Server

	// maxDumpHandles caps handle rows per dump; 0 means unlimited.
	maxDumpHandles int
}

// InspectorOption configures an Inspector.
type InspectorOption func(*Inspector)

// WithAuditTrail wires the audit store behind /v1/audit endpoints.
func WithAuditTrail(s *audit.Store) InspectorOption {
	return func(i *Inspector) { i.trail = s }
}

// WithMaxDumpHandles caps how many handle rows a single process dump may
// carry. Oversized dumps are refused so a handle-hoarding process cannot
// balloon diagnostic responses.
func WithMaxDumpHandles(n int) InspectorOption {
	return func(i *Inspector) { i.maxDumpHandles = n }
}

// NewInspector creates an inspector over the given runtime.
func NewInspector(rt *Runtime, opts ...InspectorOption) *Inspector {
	i := &Inspector{
		runtime: rt,
		mux:     http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(i)
	}

	i.mux.HandleFunc("GET /v1/processes", i.handleProcessList)
	i.mux.HandleFunc("GET /v1/processes/{koid}/handles", i.handleProcessDump)
	i.mux.HandleFunc("GET /v1/audit/recent", i.handleAuditRecent)

	return i
}

// Handler returns the inspector's HTTP handler (for tests and embedding).
func (i *Inspector) Handler() http.Handler { return i.mux }

// ListenAndServe starts the inspector on addr and blocks until Stop.
func (i *Inspector) ListenAndServe(addr string) error {
	i.httpSrv = &http.Server{Addr: addr, Handler: i.mux}
	log.Infof("inspector listening on %s", addr)
	err := i.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts the inspector down, letting in-flight requests finish.
func (i *Inspector) Stop() {
	if i.httpSrv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := i.httpSrv.Shutdown(ctx); err != nil {
		log.Errorf("inspector shutdown: %s", err.Error())
	}
}

func (i *Inspector) handleProcessList(w http.ResponseWriter, r *http.Request) {
	procs := i.runtime.Processes()
	summaries := make([]diag.ProcessSummary, 0, len(procs))
	for _, p := range procs {
		summaries = append(summaries, diag.Summarize(p))
	}

	if wantsCBOR(r) {
		data, err := diag.MarshalSummaries(summaries)
		if err != nil {
			httpError(w, http.StatusInternalServerError, err)
			return
		}
		writeCBOR(w, data)
		return
	}
	writeJSON(w, summaries)
}

func (i *Inspector) handleProcessDump(w http.ResponseWriter, r *http.Request) {
	koid, err := strconv.ParseUint(r.PathValue("koid"), 10, 64)
	if err != nil {
		httpError(w, http.StatusBadRequest, errors.New("koid must be an unsigned integer"))
		return
	}

	p, ok := i.runtime.Process(kernel.Koid(koid))
	if !ok {
		httpError(w, http.StatusNotFound, errors.New("no such process"))
		return
	}

	if i.maxDumpHandles > 0 && p.Handles().HandleCount() > uint32(i.maxDumpHandles) {
		// Same contract as the kernel's snapshot sizing: the caller
		// should narrow the request and retry.
		httpError(w, http.StatusInsufficientStorage, kernel.ErrNoMemory)
		return
	}

	dump := diag.CaptureProcess(p)
	if wantsCBOR(r) {
		data, err := diag.MarshalProcessDump(dump)
		if err != nil {
			httpError(w, http.StatusInternalServerError, err)
			return
		}
		writeCBOR(w, data)
		return
	}
	writeJSON(w, dump)
}

func (i *Inspector) handleAuditRecent(w http.ResponseWriter, r *http.Request) {
	if i.trail == nil {
		httpError(w, http.StatusNotFound, errors.New("auditing is disabled"))
		return
	}

	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			httpError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}

	records, err := i.trail.Recent(limit)
	if err != nil {
		httpError(w, http.StatusInternalServerError, err)
		return
	}

	type row struct {
		When        time.Time `json:"when"`
		ProcessKoid uint64    `json:"process_koid"`
		ProcessName string    `json:"process_name"`
		Violation   string    `json:"violation"`
		Action      string    `json:"action"`
	}
	rows := make([]row, 0, len(records))
	for _, rec := range records {
		rows = append(rows, row{
			When:        rec.When,
			ProcessKoid: uint64(rec.ProcessKoid),
			ProcessName: rec.ProcessName,
			Violation:   rec.Violation,
			Action:      rec.Action,
		})
	}
	writeJSON(w, rows)
}

func wantsCBOR(r *http.Request) bool {
	return r.Header.Get("Accept") == cborContentType
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("writing response: %s", err.Error())
	}
}

func writeCBOR(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", cborContentType)
	if _, err := w.Write(data); err != nil {
		log.Errorf("writing response: %s", err.Error())
	}
}

func httpError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
