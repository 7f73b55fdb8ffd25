package ckb

import "encoding/binary"

// uint128 is CKB's nonce type: a 128-bit counter workers step through,
// too wide for a native Go integer.
type uint128 struct {
	hi, lo uint64
}

func uint128FromUint64(v uint64) uint128 {
	return uint128{lo: v}
}

func uint128FromBE(b [16]byte) uint128 {
	return uint128{
		hi: binary.BigEndian.Uint64(b[:8]),
		lo: binary.BigEndian.Uint64(b[8:]),
	}
}

func putUint128BE(b *[16]byte, v uint128) {
	binary.BigEndian.PutUint64(b[:8], v.hi)
	binary.BigEndian.PutUint64(b[8:], v.lo)
}

// Add returns v+delta, carrying into the high word on overflow.
func (v uint128) Add(delta uint64) uint128 {
	lo := v.lo + delta
	hi := v.hi
	if lo < v.lo {
		hi++
	}
	return uint128{hi: hi, lo: lo}
}

// AddU128 returns v+o, carrying into the high word on overflow.
func (v uint128) AddU128(o uint128) uint128 {
	lo := v.lo + o.lo
	hi := v.hi + o.hi
	if lo < v.lo {
		hi++
	}
	return uint128{hi: hi, lo: lo}
}

func (v uint128) bytes16() [16]byte {
	var b [16]byte
	putUint128BE(&b, v)
	return b
}
