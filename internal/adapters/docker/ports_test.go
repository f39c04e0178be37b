package docker

import (
	"errors"
	"testing"

	"github.com/devploy/playground-paas/internal/core/domain"
)

func TestPortPool_AllocateUntilExhausted(t *testing.T) {
	pool, err := NewPortPool(9000, 9002)
	if err != nil {
		t.Fatalf("NewPortPool failed: %v", err)
	}

	seen := make(map[int]bool)
	for i := 0; i < 3; i++ {
		p, err := pool.Allocate()
		if err != nil {
			t.Fatalf("Allocate %d failed: %v", i, err)
		}
		if p < 9000 || p > 9002 {
			t.Errorf("port %d outside range", p)
		}
		if seen[p] {
			t.Errorf("port %d handed out twice", p)
		}
		seen[p] = true
	}

	if _, err := pool.Allocate(); !errors.Is(err, domain.ErrPortExhausted) {
		t.Errorf("error = %v, want ErrPortExhausted", err)
	}
}

func TestPortPool_ReleaseMakesPortReusable(t *testing.T) {
	pool, _ := NewPortPool(9000, 9000)

	p, err := pool.Allocate()
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	pool.Release(p)

	p2, err := pool.Allocate()
	if err != nil {
		t.Fatalf("Allocate after release failed: %v", err)
	}
	if p2 != p {
		t.Errorf("got %d, want released port %d", p2, p)
	}
}

func TestPortPool_ReleaseUnheldIsNoop(t *testing.T) {
	pool, _ := NewPortPool(9000, 9001)
	pool.Release(9000)
	pool.Release(12345)

	if _, err := pool.Allocate(); err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
}

func TestPortPool_Reserve(t *testing.T) {
	pool, _ := NewPortPool(9000, 9001)

	if err := pool.Reserve(9001); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if err := pool.Reserve(9001); err == nil {
		t.Error("double reserve succeeded")
	}
	if err := pool.Reserve(9999); err == nil {
		t.Error("reserve outside range succeeded")
	}

	// The reserved port is skipped by Allocate.
	p, err := pool.Allocate()
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if p != 9000 {
		t.Errorf("Allocate = %d, want 9000", p)
	}
}

func TestNewPortPool_RejectsInvalidRange(t *testing.T) {
	if _, err := NewPortPool(9002, 9000); err == nil {
		t.Error("inverted range accepted")
	}
	if _, err := NewPortPool(0, 9000); err == nil {
		t.Error("zero min accepted")
	}
}
