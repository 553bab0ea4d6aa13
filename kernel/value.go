package kernel

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ---------------------------------------------------------------------------
// Handle-value encoding
// ---------------------------------------------------------------------------
//
// The 32-bit value a process sees is derived from the handle's table-local
// base value and a per-table random secret (the mixer):
//
//	external = mixer XOR ((base << reservedBits) | mustBeOneMask)
//
// The low reserved bits of an encoded value are always ones (the mixer has
// its own low bits forced to zero), so decoding can reject garbage — and the
// literal value 0 — with a single mask test before touching the table. Base
// values occupy 30 bits, leaving the shifted field clear of the mixer's
// reserved bits.

// HandleValue is the obfuscated 32-bit handle value exposed to a process.
type HandleValue uint32

// InvalidHandleValue never resolves in any table.
const InvalidHandleValue HandleValue = 0

const (
	handleReservedBits = 2
	handleMustBeOne    = HandleValue(1<<handleReservedBits - 1)

	// maxBaseValue is the largest base value encodable without colliding
	// with the mixer's cleared low bits.
	maxBaseValue = 1<<(32-handleReservedBits) - 1
)

// newMixer draws a fresh per-table secret from rng with its low reserved
// bits forced to zero.
func newMixer(rng io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(rng, buf[:]); err != nil {
		return 0, fmt.Errorf("kernel: reading handle mixer: %w", err)
	}
	return binary.LittleEndian.Uint32(buf[:]) &^ uint32(handleMustBeOne), nil
}

// encodeHandleValue maps a base value into table space.
func encodeHandleValue(mixer, base uint32) HandleValue {
	return HandleValue(mixer) ^ (HandleValue(base)<<handleReservedBits | handleMustBeOne)
}

// decodeHandleValue recovers a candidate base value. ok is false when the
// value cannot have been produced by this table's encoder.
func decodeHandleValue(mixer uint32, v HandleValue) (base uint32, ok bool) {
	if v&handleMustBeOne != handleMustBeOne {
		return 0, false
	}
	return uint32(v^HandleValue(mixer)) >> handleReservedBits, true
}
