package ckb

import "testing"

func TestUint128AddCarries(t *testing.T) {
	v := uint128{hi: 0, lo: ^uint64(0)}
	got := v.Add(1)
	if got.hi != 1 || got.lo != 0 {
		t.Fatalf("Add overflow: got hi=%d lo=%d, want hi=1 lo=0", got.hi, got.lo)
	}
}

func TestUint128AddU128Carries(t *testing.T) {
	a := uint128{hi: 0, lo: ^uint64(0)}
	b := uint128FromUint64(1)
	got := a.AddU128(b)
	if got.hi != 1 || got.lo != 0 {
		t.Fatalf("AddU128 overflow: got hi=%d lo=%d, want hi=1 lo=0", got.hi, got.lo)
	}
}

func TestUint128BytesRoundTrip(t *testing.T) {
	v := uint128{hi: 0x0102030405060708, lo: 0x1112131415161718}
	b := v.bytes16()
	got := uint128FromBE(b)
	if got != v {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, v)
	}
}

func TestUint128FromUint64(t *testing.T) {
	v := uint128FromUint64(42)
	if v.hi != 0 || v.lo != 42 {
		t.Fatalf("uint128FromUint64(42) = %+v", v)
	}
}
