package reqtable

import (
	"testing"
	"time"
)

func TestAddRemove(t *testing.T) {
	tbl := New()
	tbl.Add(1, "eth_submitWork")
	e, ok := tbl.Remove(1)
	if !ok {
		t.Fatal("expected entry 1 to be present")
	}
	if e.Method != "eth_submitWork" {
		t.Fatalf("Method = %q, want eth_submitWork", e.Method)
	}
	if _, ok := tbl.Remove(1); ok {
		t.Fatal("entry 1 should have been removed already")
	}
}

func TestClearTimeouts(t *testing.T) {
	tbl := New()
	tbl.Add(1, "mining.submit")
	time.Sleep(5 * time.Millisecond)
	tbl.Add(2, "mining.subscribe")

	var evicted []Entry
	n := tbl.ClearTimeouts(3*time.Millisecond, func(e Entry, d time.Duration) {
		evicted = append(evicted, e)
	})
	if n != 1 || len(evicted) != 1 {
		t.Fatalf("expected exactly 1 eviction, got %d", n)
	}
	if evicted[0].ID != 1 {
		t.Fatalf("evicted entry id = %d, want 1", evicted[0].ID)
	}
	if tbl.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (entry 2 should remain)", tbl.Len())
	}
}
