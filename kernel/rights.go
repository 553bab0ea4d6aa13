package kernel

import "strings"

// ---------------------------------------------------------------------------
// Rights: per-handle permission bits
// ---------------------------------------------------------------------------

// Rights is the bitmask of operations a Handle permits on its object.
type Rights uint32

const (
	RightDuplicate Rights = 1 << iota
	RightTransfer
	RightRead
	RightWrite
	RightExecute
	RightMap
	RightGetProperty
	RightSetProperty
	RightEnumerate
	RightDestroy
	RightSignal
	RightWait
	RightInspect
	RightManage
)

// RightsNone grants nothing.
const RightsNone Rights = 0

// RightsBasic is the baseline granted to most newly minted handles.
const RightsBasic = RightDuplicate | RightTransfer | RightWait | RightInspect

// RightsIO is the read/write pair.
const RightsIO = RightRead | RightWrite

// RightsDefaultEvent is the default rights set for event handles.
const RightsDefaultEvent = RightsBasic | RightSignal

// RightsDefaultChannel is the default rights set for channel handles.
// Channels are not duplicatable: a channel endpoint has exactly one handle.
const RightsDefaultChannel = RightTransfer | RightWait | RightInspect | RightsIO | RightSignal

var rightNames = []struct {
	bit  Rights
	name string
}{
	{RightDuplicate, "duplicate"},
	{RightTransfer, "transfer"},
	{RightRead, "read"},
	{RightWrite, "write"},
	{RightExecute, "execute"},
	{RightMap, "map"},
	{RightGetProperty, "get_property"},
	{RightSetProperty, "set_property"},
	{RightEnumerate, "enumerate"},
	{RightDestroy, "destroy"},
	{RightSignal, "signal"},
	{RightWait, "wait"},
	{RightInspect, "inspect"},
	{RightManage, "manage"},
}

// Has reports whether every bit in want is present in r.
func (r Rights) Has(want Rights) bool {
	return r&want == want
}

// String renders the rights as a pipe-separated list, "none" if empty.
func (r Rights) String() string {
	if r == RightsNone {
		return "none"
	}
	var parts []string
	for _, rn := range rightNames {
		if r&rn.bit != 0 {
			parts = append(parts, rn.name)
		}
	}
	return strings.Join(parts, "|")
}
