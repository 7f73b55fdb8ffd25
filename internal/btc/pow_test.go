package btc

import (
	"encoding/hex"
	"strings"
	"testing"
)

func TestWordSwapReverseHex(t *testing.T) {
	// Four 8-char (4-byte) chunks, reversed in chunk order.
	in := "11111111" + "22222222" + "33333333" + "44444444"
	want := "44444444" + "33333333" + "22222222" + "11111111"
	if got := wordSwapReverseHex(in); got != want {
		t.Fatalf("wordSwapReverseHex = %s, want %s", got, want)
	}
}

func TestTargetFromHashRawLittleEndian(t *testing.T) {
	var b [32]byte
	b[0] = 0x01 // lowest-addressed byte -> low bits of limb 0
	got := targetFromHashRaw(b)
	if got[0] != 1 || got[1] != 0 || got[2] != 0 || got[3] != 0 {
		t.Fatalf("targetFromHashRaw = %v, want [1,0,0,0]", got)
	}
}

func TestLeTargetLessOrEqual(t *testing.T) {
	a := [4]uint64{1, 0, 0, 0}
	b := [4]uint64{2, 0, 0, 0}
	if !leTargetLessOrEqual(a, b) {
		t.Fatalf("a should be <= b")
	}
	if leTargetLessOrEqual(b, a) {
		t.Fatalf("b should not be <= a")
	}
	if !leTargetLessOrEqual(a, a) {
		t.Fatalf("a should be <= a")
	}
}

func TestHeader80SetNonceOnlyTouchesLastFourBytes(t *testing.T) {
	var h header80
	for i := range h.bytes {
		h.bytes[i] = 0xAB
	}
	h.setNonce(0x01020304)
	for i := 0; i < 76; i++ {
		if h.bytes[i] != 0xAB {
			t.Fatalf("setNonce touched byte %d outside the trailing 4 bytes", i)
		}
	}
	if h.bytes[76] != 0x04 || h.bytes[77] != 0x03 || h.bytes[78] != 0x02 || h.bytes[79] != 0x01 {
		t.Fatalf("nonce not written little-endian: %v", h.bytes[76:80])
	}
}

// newTestJob builds a Job whose coinbase1/coinbase2 concatenate (around
// extranonce1||extranonce2) into a minimal, structurally valid
// serialized transaction: version, one input with a 9-byte scriptSig
// (1 marker byte + 4-byte extranonce1 + 4-byte extranonce2), zero
// outputs, zero locktime.
func newTestJob() Job {
	coinbase1, _ := hex.DecodeString("01000000" + "01" + strings.Repeat("00", 32) + "ffffffff" + "09" + "6a")
	coinbase2, _ := hex.DecodeString("ffffffff" + "00" + "00000000")
	return Job{
		JobID:       "job1",
		PrevHashHex: strings.Repeat("0", 64),
		Coinbase1:   coinbase1,
		Coinbase2:   coinbase2,
		Version:     1,
		NBits:       0x1d00ffff,
		NTime:       0,
		Nonce1:      "deadbeef",
		Nonce2:      uint128FromUint64(1),
		Nonce2Bytes: 4,
		Target:      [4]uint64{0, 0, 0, 0xFFFF << 16},
	}
}

func TestComputerUpdateAndComputeDeterministic(t *testing.T) {
	job := newTestJob()
	c := NewComputer()
	if err := c.Update(job); err != nil {
		t.Fatalf("Update: %v", err)
	}

	h1 := c.ComputeRaw(1)
	h2 := c.ComputeRaw(1)
	if h1 != h2 {
		t.Fatalf("ComputeRaw not deterministic: %x != %x", h1, h2)
	}
	h3 := c.ComputeRaw(2)
	if h1 == h3 {
		t.Fatalf("ComputeRaw gave identical digest for different nonces")
	}
}

func TestComputerComputeRespectsTarget(t *testing.T) {
	job := newTestJob()
	job.Target = [4]uint64{0xFFFFFFFFFFFFFFFF, 0xFFFFFFFFFFFFFFFF, 0xFFFFFFFFFFFFFFFF, 0xFFFFFFFFFFFFFFFF}
	c := NewComputer()
	if err := c.Update(job); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, ok := c.Compute(job, 1); !ok {
		t.Fatalf("an all-0xff target should accept any digest")
	}

	job.Target = [4]uint64{0, 0, 0, 0}
	if _, ok := c.Compute(job, 1); ok {
		t.Fatalf("an all-zero target should reject any nonzero digest")
	}
}
