// Package eth implements the ETH/Etchash currency: stratum wire format,
// Ethash/Etchash proof-of-work, and the Handle/Worker glue that plugs an
// ETH job into the generic miner core.
//
// pow.go is the proof-of-work engine itself, grounded on the public
// Ethash algorithm description (go-ethereum's consensus/ethash package
// is the domain example that motivated using golang.org/x/crypto/sha3
// for Keccak; its own algorithm source isn't in this pack, so the cache
// and dataset generation below are written directly from the Ethash
// spec rather than ported from a kept file).
package eth

import (
	"encoding/binary"

	"golang.org/x/crypto/sha3"
)

const (
	wordBytes      = 4
	datasetInit    = 1 << 30
	datasetGrowth  = 1 << 23
	cacheInit      = 1 << 24
	cacheGrowth    = 1 << 17
	mixBytes       = 128
	hashBytes      = 64
	datasetParents = 256
	cacheRounds    = 3
	accesses       = 64
	fnvPrime       = 0x01000193
)

func keccak256(data ...[]byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func keccak512(data ...[]byte) [64]byte {
	h := sha3.NewLegacyKeccak512()
	for _, d := range data {
		h.Write(d)
	}
	var out [64]byte
	copy(out[:], h.Sum(nil))
	return out
}

func fnv(v1, v2 uint32) uint32 {
	return (v1 * fnvPrime) ^ v2
}

func isPrime(n uint64) bool {
	if n < 2 {
		return false
	}
	if n%2 == 0 {
		return n == 2
	}
	for i := uint64(3); i*i <= n; i += 2 {
		if n%i == 0 {
			return false
		}
	}
	return true
}

// Epoch derives the epoch number from a seed hash by counting how many
// times Keccak-256 must be chained from 32 zero bytes to reach it,
// bounded at 10000 attempts. Most stratum pools send the seed hash
// rather than a block number, so the miner has to invert it this way.
func Epoch(seedHash [32]byte) (uint64, bool) {
	var seed [32]byte
	epoch := uint64(0)
	for seed != seedHash {
		seed = keccak256(seed[:])
		epoch++
		if epoch > 10000 {
			return 0, false
		}
	}
	return epoch, true
}

func seedHashForEpoch(epoch uint64) [32]byte {
	var seed [32]byte
	for i := uint64(0); i < epoch; i++ {
		seed = keccak256(seed[:])
	}
	return seed
}

func cacheSize(epoch uint64) uint64 {
	sz := uint64(cacheInit) + uint64(cacheGrowth)*epoch - hashBytes
	for !isPrime(sz / hashBytes) {
		sz -= 2 * hashBytes
	}
	return sz
}

func fullSize(epoch uint64) uint64 {
	sz := uint64(datasetInit) + uint64(datasetGrowth)*epoch - mixBytes
	for !isPrime(sz / mixBytes) {
		sz -= 2 * mixBytes
	}
	return sz
}

type hashWords [16]uint32

func bytesToWords(b []byte) hashWords {
	var w hashWords
	for i := range w {
		w[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return w
}

func (w hashWords) bytes() []byte {
	b := make([]byte, hashBytes)
	for i, word := range w {
		binary.LittleEndian.PutUint32(b[i*4:], word)
	}
	return b
}

// makeCache builds the Ethash/Etchash light cache for an epoch: a
// Keccak-512 hash chain followed by cacheRounds passes of pseudo-random
// self-mixing.
func makeCache(size uint64, seed [32]byte) []hashWords {
	n := int(size / hashBytes)
	o := make([]hashWords, n)

	first := keccak512(seed[:])
	o[0] = bytesToWords(first[:])
	for i := 1; i < n; i++ {
		h := keccak512(o[i-1].bytes())
		o[i] = bytesToWords(h[:])
	}

	for round := 0; round < cacheRounds; round++ {
		for i := 0; i < n; i++ {
			v := int(o[i][0]) % n
			left := (i - 1 + n) % n

			var mixed hashWords
			for k := range mixed {
				mixed[k] = o[left][k] ^ o[v][k]
			}
			h := keccak512(mixed.bytes())
			o[i] = bytesToWords(h[:])
		}
	}
	return o
}

// calcDatasetItem derives one 64-byte dataset row from the cache, per
// the Ethash spec's calc_dataset_item.
func calcDatasetItem(cache []hashWords, i uint64) hashWords {
	n := uint32(len(cache))
	const r = hashBytes / wordBytes // 16, equal to len(hashWords)

	mix := cache[uint32(i)%n]
	mix[0] ^= uint32(i)
	h := keccak512(mix.bytes())
	mix = bytesToWords(h[:])

	for j := 0; j < datasetParents; j++ {
		cacheIndex := fnv(uint32(i)^uint32(j), mix[j%r])
		parent := cache[cacheIndex%n]
		for k := 0; k < r; k++ {
			mix[k] = fnv(mix[k], parent[k])
		}
	}

	out := keccak512(mix.bytes())
	return bytesToWords(out[:])
}

// makeFull builds the full dataset, splitting the row range across
// workers goroutines the way the original parallelizes dataset
// generation across the CPU pool.
func makeFull(cache []hashWords, size uint64, workers int) []hashWords {
	n := int(size / hashBytes)
	dataset := make([]hashWords, n)
	if workers < 1 {
		workers = 1
	}

	chunk := (n + workers - 1) / workers
	done := make(chan struct{}, workers)
	started := 0
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		started++
		go func(start, end int) {
			for i := start; i < end; i++ {
				dataset[i] = calcDatasetItem(cache, uint64(i))
			}
			done <- struct{}{}
		}(start, end)
	}
	for i := 0; i < started; i++ {
		<-done
	}
	return dataset
}

// hashimotoFull is the Ethash mix-and-check function evaluated against
// the full in-memory dataset (as opposed to hashimoto_light, which
// recomputes dataset rows on the fly and is not used by this miner,
// since it always holds the full DAG in memory like any CPU miner).
func hashimotoFull(powHash [32]byte, nonce uint64, dataset []hashWords) (mixDigest, result [32]byte) {
	n := uint64(len(dataset))
	const w = mixBytes / wordBytes       // 32
	const mixHashes = mixBytes / hashBytes // 2

	var nonceBytes [8]byte
	binary.LittleEndian.PutUint64(nonceBytes[:], nonce)
	seed := keccak512(powHash[:], nonceBytes[:])
	seedWords := bytesToWords(seed[:])

	mix := make([]uint32, w)
	for i := range mix {
		mix[i] = seedWords[i%len(seedWords)]
	}

	rows := n / mixHashes
	for i := 0; i < accesses; i++ {
		p := fnv(uint32(i)^seedWords[0], mix[i%w]) % uint32(rows)
		newData := make([]uint32, 0, w)
		for j := 0; j < mixHashes; j++ {
			item := dataset[uint64(p)*mixHashes+uint64(j)]
			newData = append(newData, item[:]...)
		}
		for k := range mix {
			mix[k] = fnv(mix[k], newData[k])
		}
	}

	cmix := make([]uint32, w/4)
	for i := 0; i < w; i += 4 {
		cmix[i/4] = fnv(fnv(fnv(mix[i], mix[i+1]), mix[i+2]), mix[i+3])
	}

	var cmixBytes [32]byte
	for i, word := range cmix {
		binary.LittleEndian.PutUint32(cmixBytes[i*4:], word)
	}

	result = keccak256(seed[:], cmixBytes[:])
	return cmixBytes, result
}

// Computer owns one epoch's full DAG, rebuilt only when the epoch
// changes so that successive same-epoch jobs reuse it, matching the
// original handler's "rebuild the Computer only if epoch changed" rule.
type Computer struct {
	epoch   uint64
	dataset []hashWords
}

// etchashEpochs resolves the epoch used for cache/dataset sizing and the
// epoch used to derive the cache seed. Mainnet Ethash uses the job epoch
// for both; testnet Etchash (ECIP-1099) halves the sizing epoch while
// doubling the seed epoch back up.
func etchashEpochs(epoch uint64, testnet bool) (sizingEpoch, seedEpoch uint64) {
	if testnet {
		return epoch / 2, epoch * 2
	}
	return epoch, epoch
}

// NewComputer builds the cache and full dataset for epoch, spreading
// dataset generation across workers goroutines.
func NewComputer(epoch uint64, workers int, testnet bool) *Computer {
	sizingEpoch, seedEpoch := etchashEpochs(epoch, testnet)
	seed := seedHashForEpoch(seedEpoch)
	cache := makeCache(cacheSize(sizingEpoch), seed)
	dataset := makeFull(cache, fullSize(sizingEpoch), workers)
	return &Computer{epoch: epoch, dataset: dataset}
}

// Epoch reports which epoch this Computer's dataset was built for.
func (c *Computer) Epoch() uint64 { return c.epoch }

// Hashimoto runs hashimoto_full against this Computer's dataset.
func (c *Computer) Hashimoto(powHash [32]byte, nonce uint64) (mixDigest, result [32]byte) {
	return hashimotoFull(powHash, nonce, c.dataset)
}
