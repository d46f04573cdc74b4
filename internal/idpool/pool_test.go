package idpool

import "testing"

func TestBorrowStartsAtOne(t *testing.T) {
	p := New()

	id, err := p.Borrow()
	if err != nil {
		t.Fatalf("Borrow: %v", err)
	}
	if id != 1 {
		t.Fatalf("first borrowed id: got %d, want 1", id)
	}
}

func TestBorrowIsMinimumFree(t *testing.T) {
	p := New()

	a, _ := p.Borrow()
	b, _ := p.Borrow()
	c, _ := p.Borrow()

	if a != 1 || b != 2 || c != 3 {
		t.Fatalf("expected sequential ids 1,2,3; got %d,%d,%d", a, b, c)
	}

	p.Return(b)

	d, err := p.Borrow()
	if err != nil {
		t.Fatalf("Borrow: %v", err)
	}
	if d != b {
		t.Fatalf("expected reclaimed id %d to be reissued first, got %d", b, d)
	}
}

func TestBorrowDoesNotReuseWhileHeld(t *testing.T) {
	p := New()

	a, _ := p.Borrow()
	b, _ := p.Borrow()

	if !p.InUse(a) || !p.InUse(b) {
		t.Fatal("expected both ids to be in use")
	}

	c, _ := p.Borrow()
	if c == a || c == b {
		t.Fatalf("borrowed id %d collides with a held id", c)
	}
}

func TestReturnSentinelIsNoop(t *testing.T) {
	p := New()
	p.Return(0)

	id, err := p.Borrow()
	if err != nil || id != 1 {
		t.Fatalf("expected first real id to still be 1, got %d err=%v", id, err)
	}
}
