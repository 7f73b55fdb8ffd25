// difficulty.go collects the per-currency target<->difficulty
// conversions. Ethash/Etchash (ETH) and Eaglesong (CKB) share one
// formula; Kaspa's cnHeavyHash (KAS) uses a related but distinct one
// that avoids the rounding quirk the 256-bit-shift trick introduces;
// Bitcoin (BTC) uses its own "difficulty 1" reference target. Keeping
// all three beside each other makes the difference visible rather than
// accidentally unified into one "obviously correct" helper.
package miner

import "math/big"

var bigOne = big.NewInt(1)

// maxUint256 is 2^256 - 1, the saturation value every conversion below
// returns once its input drops to 0 or 1.
func maxUint256() *big.Int {
	max := new(big.Int).Lsh(bigOne, 256)
	return max.Sub(max, bigOne)
}

// EthashInverse implements the Ethash/Etchash family's
// target<->difficulty transform: f(x) = (2^255 / x) << 1, saturating at
// x <= 1. It is deliberately NOT 2^256/x computed directly: consensus
// code on both ends of the wire computes it via the 255-bit shift, and
// the two forms disagree by up to 1 on the low bit for some inputs.
// Self-dual: used for both target->difficulty and difficulty->target.
func EthashInverse(x *big.Int) *big.Int {
	if x.Cmp(bigOne) <= 0 {
		return maxUint256()
	}
	t := new(big.Int).Lsh(bigOne, 255)
	t.Div(t, x)
	return t.Lsh(t, 1)
}

// KaspaInverse implements Kaspa's target2difficulty: f(x) = 2^256 / x,
// saturating at x <= 1. Self-dual, same as EthashInverse above but
// computed exactly (the original widens to a 320-bit register to avoid
// overflow; big.Int has no such limit, so the direct division already
// matches it bit for bit).
func KaspaInverse(x *big.Int) *big.Int {
	if x.Cmp(bigOne) <= 0 {
		return maxUint256()
	}
	num := new(big.Int).Lsh(bigOne, 256)
	return num.Div(num, x)
}

// KaspaDifficultyDecompress turns the floating point difficulty a pool
// sends in mining.set_difficulty into the fixed-point u64 the rest of
// the KAS pipeline works with: floor(f * 2^32).
func KaspaDifficultyDecompress(f float64) uint64 {
	return uint64(f * 4294967296.0)
}

// btcUnitTarget is Bitcoin's difficulty-1 reference target: 0xFFFF
// followed by 52 hex zero digits (0xFFFF << (52*4)).
func btcUnitTarget() *big.Int {
	return new(big.Int).Lsh(big.NewInt(0xFFFF), 52*4)
}

// BTCTargetToDifficulty converts a raw 256-bit target into a pool
// difficulty number: unit_target / target.
func BTCTargetToDifficulty(target *big.Int) uint64 {
	if target.Sign() == 0 {
		return 0
	}
	d := new(big.Int).Div(btcUnitTarget(), target)
	return d.Uint64()
}

// BTCDifficultyToTarget converts a pool difficulty into a raw target:
// unit_target / difficulty.
func BTCDifficultyToTarget(difficulty uint64) *big.Int {
	if difficulty == 0 {
		return maxUint256()
	}
	return new(big.Int).Div(btcUnitTarget(), new(big.Int).SetUint64(difficulty))
}
