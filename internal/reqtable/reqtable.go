// Package reqtable tracks in-flight requests by id so the handler can
// match a pool's stratum response back to the method that asked for it,
// and so a request that never gets a response gets swept out after a
// timeout. Grounded on the original client's Reqs (a BTreeMap<usize, Req>
// behind the shared state mutex).
package reqtable

import (
	"sync"
	"time"
)

// Entry is one in-flight request.
type Entry struct {
	ID     uint64
	Method string
	At     time.Time
}

// Table is a mutex-guarded id -> Entry map.
type Table struct {
	mu   sync.Mutex
	data map[uint64]Entry
}

// New returns an empty Table.
func New() *Table {
	return &Table{data: make(map[uint64]Entry)}
}

// Add records a new in-flight request, stamping it with the current
// time, and returns the entry it replaced, if any (an id collision).
func (t *Table) Add(id uint64, method string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	old, existed := t.data[id]
	t.data[id] = Entry{ID: id, Method: method, At: time.Now()}
	return old, existed
}

// Remove pops the entry for id, if present.
func (t *Table) Remove(id uint64) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.data[id]
	if ok {
		delete(t.data, id)
	}
	return e, ok
}

// ClearTimeouts evicts every entry older than timeout, invoking f once
// per evicted entry with how long it had been outstanding. It returns
// the number of entries evicted. Sweeping happens outside of f so a
// caller reacting to a timeout (e.g. by forcing a reconnect) can't
// deadlock against the table's own mutex.
func (t *Table) ClearTimeouts(timeout time.Duration, f func(Entry, time.Duration)) int {
	t.mu.Lock()
	now := time.Now()
	var stale []struct {
		e Entry
		d time.Duration
	}
	for id, e := range t.data {
		if d := now.Sub(e.At); d >= timeout {
			stale = append(stale, struct {
				e Entry
				d time.Duration
			}{e, d})
			delete(t.data, id)
		}
	}
	t.mu.Unlock()

	for _, s := range stale {
		f(s.e, s.d)
	}
	return len(stale)
}

// Len reports the number of in-flight requests, mostly useful in tests.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.data)
}
