// Package diag defines diagnostic snapshots of handle tables and their
// canonical CBOR wire encoding, consumed by introspection front-ends.
package diag

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/quark-os/quark/kernel"
)

// cborEncMode uses canonical options so identical snapshots encode to
// identical bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("diag: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// HandleInfo is one handle row in a dump: the externally visible value plus
// the identity of the object behind it.
type HandleInfo struct {
	Value       uint32 `cbor:"value" json:"value"`
	Rights      uint32 `cbor:"rights" json:"rights"`
	RightsText  string `cbor:"rights_text" json:"rights_text"`
	Type        string `cbor:"type" json:"type"`
	Koid        uint64 `cbor:"koid" json:"koid"`
	RelatedKoid uint64 `cbor:"related_koid,omitempty" json:"related_koid,omitempty"`
}

// ProcessDump is a point-in-time snapshot of one process's handle table.
type ProcessDump struct {
	Koid        uint64       `cbor:"koid" json:"koid"`
	Name        string       `cbor:"name" json:"name"`
	HandleCount uint32       `cbor:"handle_count" json:"handle_count"`
	Handles     []HandleInfo `cbor:"handles" json:"handles"`
	CapturedAt  time.Time    `cbor:"captured_at" json:"captured_at"`
}

// CaptureProcess snapshots a process's handle table.
func CaptureProcess(p *kernel.Process) *ProcessDump {
	infos := p.Handles().HandleInfos()
	dump := &ProcessDump{
		Koid:       uint64(p.Koid()),
		Name:       p.Name(),
		Handles:    make([]HandleInfo, 0, len(infos)),
		CapturedAt: time.Now().UTC(),
	}
	for _, info := range infos {
		dump.Handles = append(dump.Handles, HandleInfo{
			Value:       uint32(info.Value),
			Rights:      uint32(info.Rights),
			RightsText:  info.Rights.String(),
			Type:        info.Type,
			Koid:        uint64(info.Koid),
			RelatedKoid: uint64(info.RelatedKoid),
		})
	}
	dump.HandleCount = uint32(len(dump.Handles))
	return dump
}

// MarshalProcessDump serializes a ProcessDump to CBOR bytes.
func MarshalProcessDump(d *ProcessDump) ([]byte, error) {
	return cborEncMode.Marshal(d)
}

// UnmarshalProcessDump deserializes a ProcessDump from CBOR bytes.
func UnmarshalProcessDump(data []byte) (*ProcessDump, error) {
	var d ProcessDump
	if err := cbor.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("diag: unmarshal process dump: %w", err)
	}
	return &d, nil
}

// ProcessSummary is one row of a runtime-wide process listing.
type ProcessSummary struct {
	Koid        uint64 `cbor:"koid" json:"koid"`
	Name        string `cbor:"name" json:"name"`
	HandleCount uint32 `cbor:"handle_count" json:"handle_count"`
	Violations  uint64 `cbor:"violations" json:"violations"`
	Killed      bool   `cbor:"killed,omitempty" json:"killed,omitempty"`
}

// Summarize builds a summary row for a process.
func Summarize(p *kernel.Process) ProcessSummary {
	return ProcessSummary{
		Koid:        uint64(p.Koid()),
		Name:        p.Name(),
		HandleCount: p.Handles().HandleCount(),
		Violations:  p.ViolationCount(),
		Killed:      p.Killed(),
	}
}

// MarshalSummaries serializes a process listing to CBOR bytes.
func MarshalSummaries(s []ProcessSummary) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// UnmarshalSummaries deserializes a process listing from CBOR bytes.
func UnmarshalSummaries(data []byte) ([]ProcessSummary, error) {
	var s []ProcessSummary
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("diag: unmarshal summaries: %w", err)
	}
	return s, nil
}
