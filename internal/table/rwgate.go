package table

import "sync"

// rwGate is single-writer/many-reader mutual exclusion with scoped
// acquisition. Acquisition is NOT reentrant: a caller holding either side
// of the gate must not invoke any table operation that re-acquires it —
// this is what lets Commit signal completions after releasing the write
// side without deadlocking on a synchronous continuation that calls back
// into the table.
type rwGate struct {
	mu sync.RWMutex
}

// lockWrite acquires the write side and returns a func that releases it.
// Typical use: `defer gate.lockWrite()()`.
func (g *rwGate) lockWrite() func() {
	g.mu.Lock()
	return g.mu.Unlock
}

// lockRead acquires the read side and returns a func that releases it.
func (g *rwGate) lockRead() func() {
	g.mu.RLock()
	return g.mu.RUnlock
}
