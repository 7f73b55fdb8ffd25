// Package btc implements the BTC currency: classic Stratum v1 wire
// format, double-SHA256 proof-of-work over an 80-byte block header
// assembled from a coinbase transaction and merkle branch, and the
// Handle/Worker glue that plugs a BTC job into the generic miner core.
//
// pow.go is grounded on btcsuite/btcd's wire.MsgTx (coinbase assembly)
// and chaincfg/chainhash (double-SHA256, hash parsing), the same
// libraries the teacher's dependency graph already carries for other
// chain-adjacent work.
package btc

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// assembleCoinbase concatenates the pool's two coinbase halves around
// the extranonce1 (pool-assigned) and extranonce2 (miner-chosen)
// fields, then decodes the result as a wire transaction so its txid can
// be computed the way the merkle branch expects.
func assembleCoinbase(coinbase1, coinbase2, extraNonce1, extraNonce2 []byte) (*wire.MsgTx, error) {
	raw := make([]byte, 0, len(coinbase1)+len(coinbase2)+len(extraNonce1)+len(extraNonce2))
	raw = append(raw, coinbase1...)
	raw = append(raw, extraNonce1...)
	raw = append(raw, extraNonce2...)
	raw = append(raw, coinbase2...)

	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("decode coinbase tx: %w", err)
	}
	return &tx, nil
}

// calcMerkleRoot folds the coinbase txid with the pool's merkle branch
// hashes in order, matching cal_merkle_root_by_branch's pairwise
// sha256d fold: root = hash(...hash(hash(txid, b0), b1)..., bn).
func calcMerkleRoot(txid chainhash.Hash, branches []chainhash.Hash) chainhash.Hash {
	root := txid
	for _, b := range branches {
		var buf [64]byte
		copy(buf[:32], root[:])
		copy(buf[32:], b[:])
		root = chainhash.DoubleHashH(buf[:])
	}
	return root
}

// wordSwapReverseHex reverses a hex string in 4-byte (8 hex character)
// chunks, the word-swap mangling some pools apply to prevhash in
// mining.notify before the usual byte-reversed hex display.
func wordSwapReverseHex(s string) string {
	const chunk = 8
	n := len(s) / chunk
	out := make([]byte, 0, len(s))
	for i := n - 1; i >= 0; i-- {
		out = append(out, s[i*chunk:(i+1)*chunk]...)
	}
	return string(out)
}

// header80 assembles the 80-byte block header for one (job, nonce2)
// pair: version, prev hash, merkle root, time and bits are fixed once
// per job; only the trailing 4-byte nonce changes per hashing attempt.
type header80 struct {
	bytes [80]byte
}

func newHeader80(version int32, prevHash, merkleRoot chainhash.Hash, ntime, nbits uint32) header80 {
	var h header80
	binary.LittleEndian.PutUint32(h.bytes[0:4], uint32(version))
	copy(h.bytes[4:36], prevHash[:])
	copy(h.bytes[36:68], merkleRoot[:])
	binary.LittleEndian.PutUint32(h.bytes[68:72], ntime)
	binary.LittleEndian.PutUint32(h.bytes[72:76], nbits)
	return h
}

func (h *header80) setNonce(nonce uint32) {
	binary.LittleEndian.PutUint32(h.bytes[76:80], nonce)
}

func (h *header80) hash() [32]byte {
	return chainhash.DoubleHashH(h.bytes[:])
}

// targetFromHashRaw parses a raw 32-byte double-SHA256 digest as a
// little-endian 256-bit integer. This is deliberately NOT the usual
// big-endian "block hash" parse: stratum targets and raw digests here
// are compared as a little-endian counter matching the original's
// target_uint256_from_hashraw (confirmed against a big-endian reference
// decode by that function's own unit test).
func targetFromHashRaw(b [32]byte) [4]uint64 {
	var out [4]uint64
	for i := 0; i < 4; i++ {
		out[i] = binary.LittleEndian.Uint64(b[i*8 : i*8+8])
	}
	return out
}

func leTargetLessOrEqual(a, b [4]uint64) bool {
	for i := 3; i >= 0; i-- {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return true
}

// unitTarget is Bitcoin's difficulty-1 reference target, 0xFFFF<<(52*4).
var unitTarget = func() [4]uint64 {
	// 0xFFFF << 208 laid out as four little-endian 64-bit limbs.
	return [4]uint64{0, 0, 0, 0xFFFF << 16}
}()

// Computer owns one job's assembled header; each nonce attempt only
// overwrites the last 4 bytes and re-hashes, matching the original's
// Computer.compute's byte[76..] nonce write.
type Computer struct {
	header header80
}

// NewComputer returns an empty Computer.
func NewComputer() *Computer {
	return &Computer{}
}

// Update rebuilds the header for job: reassembles the coinbase tx with
// the job's current extranonce2, recomputes the merkle root, and
// refreshes every header field except the nonce.
func (c *Computer) Update(job Job) error {
	nonce1, err := decodeHex(job.Nonce1)
	if err != nil {
		return fmt.Errorf("decode nonce1: %w", err)
	}
	nonce2 := job.nonce2Bytes()

	tx, err := assembleCoinbase(job.Coinbase1, job.Coinbase2, nonce1, nonce2)
	if err != nil {
		return err
	}
	txid := tx.TxHash()

	prevHashHex := wordSwapReverseHex(job.PrevHashHex)
	prevHash, err := chainhash.NewHashFromStr(prevHashHex)
	if err != nil {
		return fmt.Errorf("parse prevhash: %w", err)
	}

	merkleRoot := calcMerkleRoot(txid, job.MerkleBranches)
	c.header = newHeader80(job.Version, *prevHash, merkleRoot, job.NTime, job.NBits)
	return nil
}

// ComputeRaw writes nonce and runs double-SHA256, unconditionally.
func (c *Computer) ComputeRaw(nonce uint32) [32]byte {
	c.header.setNonce(nonce)
	return c.header.hash()
}

// Compute runs ComputeRaw and reports whether it meets target.
func (c *Computer) Compute(job Job, nonce uint32) (Solution, bool) {
	hash := c.ComputeRaw(nonce)
	target := targetFromHashRaw(hash)
	if leTargetLessOrEqual(target, job.Target) {
		return Solution{Target: target, Nonce: nonce}, true
	}
	return Solution{}, false
}
