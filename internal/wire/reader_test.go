package wire

import "testing"

func TestReaderPrimitives(t *testing.T) {
	w := &Writer{}
	w.Uint8(7)
	w.Uint16(1000)
	w.Uint32(70000)
	w.String8("hi")
	w.String("tail")

	r := NewReader(w.Body())
	if v := r.Uint8(); v != 7 {
		t.Fatalf("Uint8: got %d", v)
	}
	if v := r.Uint16(); v != 1000 {
		t.Fatalf("Uint16: got %d", v)
	}
	if v := r.Uint32(); v != 70000 {
		t.Fatalf("Uint32: got %d", v)
	}
	if v := r.String8(); v != "hi" {
		t.Fatalf("String8: got %q", v)
	}
	if v := r.RemainingString(true); v != "tail" {
		t.Fatalf("RemainingString: got %q", v)
	}
	if r.Failed {
		t.Fatal("unexpected failure")
	}
}

func TestReaderStickyFailure(t *testing.T) {
	r := NewReader([]byte{1, 2})

	_ = r.Uint32() // short read, sets Failed
	if !r.Failed {
		t.Fatal("expected short read to fail")
	}
	if v := r.Uint8(); v != 0 {
		t.Fatalf("expected zero value after failure, got %d", v)
	}
	if v := r.String8(); v != "" {
		t.Fatalf("expected empty string after failure, got %q", v)
	}
}

func TestRemainingStringRequiresNonEmpty(t *testing.T) {
	r := NewReader(nil)
	if v := r.RemainingString(true); v != "" || !r.Failed {
		t.Fatalf("expected empty tail to fail, got %q failed=%v", v, r.Failed)
	}

	r2 := NewReader(nil)
	if v := r2.RemainingString(false); v != "" || r2.Failed {
		t.Fatalf("expected empty tail to be accepted when not required, got %q failed=%v", v, r2.Failed)
	}
}

func TestRemainingBytesAllowsEmpty(t *testing.T) {
	r := NewReader(nil)
	if b := r.RemainingBytes(); len(b) != 0 || r.Failed {
		t.Fatalf("expected empty remaining bytes to succeed, got %v failed=%v", b, r.Failed)
	}
}
