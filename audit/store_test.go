package audit

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/quark-os/quark/kernel"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndRecent(t *testing.T) {
	s := openTestStore(t)

	for i := 0; i < 3; i++ {
		err := s.Append(Record{
			When:        time.Now(),
			ProcessKoid: kernel.Koid(100 + i),
			ProcessName: "proc",
			Violation:   "bad-handle",
			Action:      "allow",
		})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	records, err := s.Recent(2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len = %d, want 2", len(records))
	}
	// Newest first.
	if records[0].ProcessKoid != 102 || records[1].ProcessKoid != 101 {
		t.Errorf("order = %d, %d", records[0].ProcessKoid, records[1].ProcessKoid)
	}
	if records[0].When.IsZero() {
		t.Error("timestamp not round-tripped")
	}
}

func TestCountForProcess(t *testing.T) {
	s := openTestStore(t)

	for i := 0; i < 4; i++ {
		koid := kernel.Koid(1)
		if i == 3 {
			koid = 2
		}
		if err := s.Append(Record{When: time.Now(), ProcessKoid: koid, ProcessName: "p", Violation: "bad-handle", Action: "deny"}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	n, err := s.CountForProcess(1)
	if err != nil {
		t.Fatalf("CountForProcess: %v", err)
	}
	if n != 3 {
		t.Errorf("count = %d, want 3", n)
	}
}

func TestRecorderWiring(t *testing.T) {
	s := openTestStore(t)

	p, err := kernel.NewProcess("offender",
		kernel.WithViolationRecorder(s),
		kernel.WithBadHandlePolicy(kernel.PolicyActionDeny))
	if err != nil {
		t.Fatalf("NewProcess: %v", err)
	}

	if _, _, lookupErr := p.Handles().GetDispatcherAndRights(0xdeadbeef); !errors.Is(lookupErr, kernel.ErrBadHandle) {
		t.Fatalf("got %v, want ErrBadHandle", lookupErr)
	}

	// Records land via the background writer; poll for it.
	var records []Record
	deadline := time.Now().Add(2 * time.Second)
	for {
		var err error
		records, err = s.Recent(10)
		if err != nil {
			t.Fatalf("Recent: %v", err)
		}
		if len(records) > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	r := records[0]
	if r.ProcessKoid != p.Koid() || r.Violation != "bad-handle" || r.Action != "deny" {
		t.Errorf("record = %+v", r)
	}
}
