package alloc

import (
	"errors"
	"testing"

	"github.com/streamcv/streamcv/internal/status"
)

func TestHostBudgetEnforced(t *testing.T) {
	a := NewHost(1024)

	b1, err := a.Allocate(512, 32)
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if len(b1.Bytes()) != 512 {
		t.Errorf("Bytes() length = %d, want 512", len(b1.Bytes()))
	}

	if _, err := a.Allocate(1024, 32); !errors.Is(err, status.ErrOutOfMemory) {
		t.Errorf("over-budget Allocate() error = %v, want ErrOutOfMemory", err)
	}

	a.Free(b1)
	if a.InUse() != 0 {
		t.Errorf("InUse() = %d after free, want 0", a.InUse())
	}
	if _, err := a.Allocate(1024, 32); err != nil {
		t.Errorf("Allocate() after free error = %v", err)
	}
}

func TestPoolReusesFreedBuffers(t *testing.T) {
	p := NewPool(NewHost(0))

	b, err := p.Allocate(256, 32)
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	p.Free(b)

	reused, err := p.Allocate(128, 32)
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if reused != b {
		t.Error("pool should reuse the freed buffer for a smaller request")
	}

	_, _, hits, misses, pooled := p.Stats()
	if hits != 1 {
		t.Errorf("hits = %d, want 1", hits)
	}
	if misses != 1 {
		t.Errorf("misses = %d, want 1", misses)
	}
	if pooled != 0 {
		t.Errorf("pooled = %d, want 0", pooled)
	}
}

func TestPoolDoesNotReuseSmallerBuffers(t *testing.T) {
	p := NewPool(NewHost(0))

	b, err := p.Allocate(64, 32)
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	p.Free(b)

	bigger, err := p.Allocate(2048, 32)
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if bigger == b {
		t.Error("pool returned a buffer smaller than requested")
	}
}

func TestPoolClear(t *testing.T) {
	inner := NewHost(0)
	p := NewPool(inner)

	for i := 0; i < 5; i++ {
		b, err := p.Allocate(512, 32)
		if err != nil {
			t.Fatalf("Allocate() error = %v", err)
		}
		p.Free(b)
		// Re-allocate a different size so freed buffers accumulate.
		b2, err := p.Allocate(5000, 32)
		if err != nil {
			t.Fatalf("Allocate() error = %v", err)
		}
		p.Free(b2)
	}

	p.Clear()
	_, _, _, _, pooled := p.Stats()
	if pooled != 0 {
		t.Errorf("pooled = %d after Clear, want 0", pooled)
	}
	if inner.InUse() != 0 {
		t.Errorf("inner InUse() = %d after Clear, want 0", inner.InUse())
	}
}
