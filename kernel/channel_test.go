package kernel

import (
	"bytes"
	"errors"
	"testing"
)

func TestChannelPairIdentity(t *testing.T) {
	a, b := NewChannelPair()
	if a.Koid() == b.Koid() {
		t.Error("endpoints share a koid")
	}
	if a.RelatedKoid() != b.Koid() || b.RelatedKoid() != a.Koid() {
		t.Error("endpoints are not cross-related")
	}
	if a.TypeName() != "channel" {
		t.Errorf("type name = %q", a.TypeName())
	}
}

func TestChannelWriteRead(t *testing.T) {
	a, b := NewChannelPair()

	if err := a.Write([]byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := a.Write([]byte("world")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if b.Pending() != 2 {
		t.Errorf("pending = %d, want 2", b.Pending())
	}

	msg, ok := b.Read()
	if !ok || !bytes.Equal(msg, []byte("hello")) {
		t.Errorf("first read = %q/%v", msg, ok)
	}
	msg, ok = b.Read()
	if !ok || !bytes.Equal(msg, []byte("world")) {
		t.Errorf("second read = %q/%v", msg, ok)
	}
	if _, ok := b.Read(); ok {
		t.Error("read from an empty queue succeeded")
	}
}

func TestChannelPeerClose(t *testing.T) {
	a, b := NewChannelPair()
	ha := NewHandle(a, RightsDefaultChannel)
	hb := NewHandle(b, RightsDefaultChannel)

	ha.Release()

	if !b.PeerClosed() {
		t.Error("peer close not observed")
	}
	if err := b.Write([]byte("x")); !errors.Is(err, ErrPeerClosed) {
		t.Errorf("write to closed peer = %v, want ErrPeerClosed", err)
	}
	hb.Release()
}

func TestHandleDuplicate(t *testing.T) {
	ev := NewEvent()
	h := NewHandle(ev, RightsBasic|RightRead)

	dup, err := h.Duplicate(RightRead)
	if err != nil {
		t.Fatalf("Duplicate: %v", err)
	}
	if dup.Dispatcher() != ev {
		t.Error("duplicate references a different object")
	}
	if dup.Rights() != RightRead {
		t.Errorf("duplicate rights = %v, want read only", dup.Rights())
	}

	// Widening is not allowed.
	if _, err := h.Duplicate(RightRead | RightWrite); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("widening duplicate = %v, want ErrAccessDenied", err)
	}

	// A handle without the duplicate right cannot be duplicated at all.
	if _, err := dup.Duplicate(RightRead); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("duplicate without right = %v, want ErrAccessDenied", err)
	}

	if ev.HandleCount() != 2 {
		t.Errorf("handle count = %d, want 2", ev.HandleCount())
	}
	dup.Release()
	h.Release()
	if ev.HandleCount() != 0 {
		t.Errorf("handle count after release = %d, want 0", ev.HandleCount())
	}
}

func TestEventSignals(t *testing.T) {
	ev := NewEvent()
	ev.Signal(0b0110)
	ev.Signal(0b0001)
	if ev.Signals() != 0b0111 {
		t.Errorf("signals = %#b, want 0b0111", ev.Signals())
	}
	ev.ClearSignals(0b0010)
	if ev.Signals() != 0b0101 {
		t.Errorf("signals = %#b, want 0b0101", ev.Signals())
	}
}
