// Package guard serializes resource mutations. Each platform owns a
// read-write lock plus a table of per-resource mutexes: claims and
// redemptions enter the platform in shared mode and then lock one
// resource; bulk deletes take the platform exclusively, draining every
// in-flight allocation and blocking new ones until the delete finishes.
//
// Shared entry never blocks indefinitely: it retries TryRLock a bounded
// number of times and then fails, so an allocation racing a bulk delete
// surfaces a conflict instead of deadlocking on a nested read lock.
package guard

import (
	"sync"
	"time"
)

const (
	sharedAttempts = 100
	sharedBackoff  = 5 * time.Millisecond
)

type platformGuard struct {
	rw sync.RWMutex

	mu        sync.Mutex // guards resources
	resources map[string]*sync.Mutex
}

type Guard struct {
	mu        sync.Mutex
	platforms map[string]*platformGuard
}

func New() *Guard {
	return &Guard{platforms: make(map[string]*platformGuard)}
}

func (g *Guard) platform(name string) *platformGuard {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.platforms[name]
	if !ok {
		p = &platformGuard{resources: make(map[string]*sync.Mutex)}
		g.platforms[name] = p
	}
	return p
}

// EnterShared admits one per-resource operation on the platform.
// Returns a release func, or ok=false when the platform is held
// exclusively beyond the retry budget.
func (g *Guard) EnterShared(platform string) (release func(), ok bool) {
	p := g.platform(platform)
	for i := 0; i < sharedAttempts; i++ {
		if p.rw.TryRLock() {
			return p.rw.RUnlock, true
		}
		time.Sleep(sharedBackoff)
	}
	return nil, false
}

// EnterExclusive blocks until all admitted per-resource operations on
// the platform complete, then holds the platform for a bulk operation.
func (g *Guard) EnterExclusive(platform string) (release func()) {
	p := g.platform(platform)
	p.rw.Lock()
	return p.rw.Unlock
}

// LockResource serializes mutation of a single resource. Callers hold
// the lock only for the store round trip, so blocking here is bounded
// in practice by one competing operation.
func (g *Guard) LockResource(platform, resourceId string) (release func()) {
	p := g.platform(platform)

	p.mu.Lock()
	m, ok := p.resources[resourceId]
	if !ok {
		m = &sync.Mutex{}
		p.resources[resourceId] = m
	}
	p.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// Forget drops the per-resource mutexes of a platform after a bulk
// delete so the table does not grow without bound.
func (g *Guard) Forget(platform string) {
	p := g.platform(platform)
	p.mu.Lock()
	p.resources = make(map[string]*sync.Mutex)
	p.mu.Unlock()
}
