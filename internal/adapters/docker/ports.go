package docker

import (
	"fmt"
	"sync"

	"github.com/devploy/playground-paas/internal/core/domain"
)

// PortPool hands out host ports from a bounded inclusive range. One port is
// held per active deployment; exhaustion is a terminal error for the deploy
// attempt, never retried.
type PortPool struct {
	mu    sync.Mutex
	min   int
	max   int
	inUse map[int]bool
}

func NewPortPool(min, max int) (*PortPool, error) {
	if min <= 0 || max < min {
		return nil, fmt.Errorf("invalid port range %d-%d", min, max)
	}
	return &PortPool{min: min, max: max, inUse: make(map[int]bool)}, nil
}

// Allocate returns the lowest free port in the range, or
// domain.ErrPortExhausted when every port is held.
func (p *PortPool) Allocate() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for port := p.min; port <= p.max; port++ {
		if !p.inUse[port] {
			p.inUse[port] = true
			return port, nil
		}
	}
	return 0, fmt.Errorf("%w: range %d-%d", domain.ErrPortExhausted, p.min, p.max)
}

// Release returns a port to the pool. Releasing a port that is not held is a
// no-op.
func (p *PortPool) Release(port int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inUse, port)
}

// Reserve claims a specific port, used when re-adopting a surviving
// deployment at startup.
func (p *PortPool) Reserve(port int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if port < p.min || port > p.max {
		return fmt.Errorf("port %d outside pool range %d-%d", port, p.min, p.max)
	}
	if p.inUse[port] {
		return fmt.Errorf("port %d already held", port)
	}
	p.inUse[port] = true
	return nil
}
