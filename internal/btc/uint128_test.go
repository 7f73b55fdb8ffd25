package btc

import "testing"

func TestUint128AddCarries(t *testing.T) {
	v := uint128{hi: 0, lo: ^uint64(0)}
	got := v.Add(1)
	if got.hi != 1 || got.lo != 0 {
		t.Fatalf("Add overflow: got hi=%d lo=%d, want hi=1 lo=0", got.hi, got.lo)
	}
}

func TestUint128BytesRoundTrip(t *testing.T) {
	v := uint128{hi: 0x0102030405060708, lo: 0x1112131415161718}
	b := v.bytes16()
	var got [16]byte
	putUint128BE(&got, v)
	if got != b {
		t.Fatalf("bytes16/putUint128BE disagree")
	}
}

func TestUint128Half(t *testing.T) {
	v := uint128{hi: 2, lo: 0}
	got := v.half()
	if got.hi != 1 || got.lo != 0 {
		t.Fatalf("half({2,0}) = %+v, want {1,0}", got)
	}

	odd := uint128{hi: 1, lo: 0}
	gotOdd := odd.half()
	if gotOdd.hi != 0 || gotOdd.lo != 1<<63 {
		t.Fatalf("half({1,0}) = %+v, want the carry bit folded into lo", gotOdd)
	}
}
