package kas

import (
	"encoding/binary"

	"golang.org/x/crypto/sha3"
)

// PowHash holds the midstate built from a job's pre-pow hash and
// timestamp, cloned and finalized with a fresh nonce on every attempt.
// cSHAKE256 (golang.org/x/crypto/sha3, already pulled in for ETH's
// Keccak) stands in for the reference implementation's custom sponge;
// the domain strings below are descriptive, not verified against a
// reference vector (see DESIGN.md).
type PowHash struct {
	mid sha3.ShakeHash
}

// NewPowHash builds the per-job midstate: absorb the pre-pow hash and
// timestamp once so every nonce attempt only pays for the clone +
// nonce absorb + squeeze.
func NewPowHash(powHash [32]byte, timestamp uint64) *PowHash {
	h := sha3.NewCShake256(nil, []byte("ProofOfWorkHash"))
	h.Write(powHash[:])
	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], timestamp)
	h.Write(ts[:])
	return &PowHash{mid: h}
}

// FinalizeWithNonce clones the midstate, absorbs nonce, and squeezes a
// 32-byte pre-image hash. The clone makes this safe to call repeatedly
// without disturbing the shared midstate.
func (p *PowHash) FinalizeWithNonce(nonce uint64) [32]byte {
	clone := p.mid.Clone()
	var nb [8]byte
	binary.LittleEndian.PutUint64(nb[:], nonce)
	clone.Write(nb[:])
	var out [32]byte
	clone.Read(out[:])
	return out
}

// Computer ties a job's PowHash midstate and heavy-hash Matrix
// together so a worker can run one nonce attempt at a time.
type Computer struct {
	hasher *PowHash
	matrix Matrix
}

// NewComputer builds a Computer for one job's (powHash, timestamp).
func NewComputer(powHash [32]byte, timestamp uint64) *Computer {
	return &Computer{
		hasher: NewPowHash(powHash, timestamp),
		matrix: GenerateMatrix(powHash),
	}
}

// ComputeRaw runs one nonce attempt unconditionally: finalize the
// pre-image hash, then fold it through the heavy-hash matrix.
func (c *Computer) ComputeRaw(nonce uint64) [32]byte {
	preimage := c.hasher.FinalizeWithNonce(nonce)
	return c.matrix.HeavyHash(preimage)
}

// Compute runs ComputeRaw and reports whether the result, read as a
// little-endian 256-bit integer, is at or below target (also
// little-endian), matching KaspaInverse's target convention.
func (c *Computer) Compute(nonce uint64, target [4]uint64) (Solution, bool) {
	hash := c.ComputeRaw(nonce)
	var limbs [4]uint64
	for i := 0; i < 4; i++ {
		limbs[i] = binary.LittleEndian.Uint64(hash[i*8 : i*8+8])
	}
	if leLessOrEqual(limbs, target) {
		return Solution{Target: limbs, Nonce: nonce}, true
	}
	return Solution{}, false
}

func leLessOrEqual(a, b [4]uint64) bool {
	for i := 3; i >= 0; i-- {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return true
}
