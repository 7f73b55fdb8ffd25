package eth

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"

	"github.com/biluohc/cminer/internal/miner"
)

const (
	methodLogin          = "eth_submitLogin"
	methodGetWork        = "eth_getWork"
	methodSubmitWork     = "eth_submitWork"
	methodSubmitHashrate = "eth_submitHashrate"
)

// Job is one unit of ETH/Etchash work: the proof-of-work header hash,
// the share target, the epoch it belongs to (derived from the seed
// hash), and the random starting nonce each worker offsets from.
type Job struct {
	ID      uint64
	PowHash [32]byte
	Target  [32]byte
	Epoch   uint64
	Nonce   uint64
}

// Solution is a candidate answer a worker found for a Job.
type Solution struct {
	ID        uint64
	MixDigest [32]byte
	Target    [32]byte
	Nonce     uint64
}

func hex32(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return out, fmt.Errorf("decode hex: %w", err)
	}
	if len(b) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

// formJob is the wire shape of an eth_getWork reply: [powhash, seedhash,
// target], all 0x-prefixed 32-byte hex strings.
type formJob struct {
	ID      uint64      `json:"id"`
	JSONRPC string      `json:"jsonrpc"`
	Result  [3]string   `json:"result"`
}

// toJob converts a decoded formJob into a Job, deriving the epoch from
// the seed hash and picking a random starting nonce the way the
// original's FormJob::to_job does.
func (f formJob) toJob() (Job, error) {
	powHash, err := hex32(f.Result[0])
	if err != nil {
		return Job{}, fmt.Errorf("powhash: %w", err)
	}
	seedHash, err := hex32(f.Result[1])
	if err != nil {
		return Job{}, fmt.Errorf("seedhash: %w", err)
	}
	target, err := hex32(f.Result[2])
	if err != nil {
		return Job{}, fmt.Errorf("target: %w", err)
	}
	epoch, ok := Epoch(seedHash)
	if !ok {
		return Job{}, fmt.Errorf("could not derive epoch from seedhash within 10000 iterations")
	}
	return Job{
		PowHash: powHash,
		Target:  target,
		Epoch:   epoch,
		Nonce:   rand.Uint64(),
	}, nil
}

// formResult is the wire shape of a login/submit reply: a plain boolean
// result keyed by the request id it answers.
type formResult struct {
	ID     uint64 `json:"id"`
	Result bool   `json:"result"`
	Error  any    `json:"error"`
}

func hexOf(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// MakeLogin renders the login Req the original sends right after
// connecting. Its Body packs two newline-joined JSON-RPC lines --
// eth_submitLogin followed immediately by eth_getWork, both using id 1
// -- so the ordinary one-Req-per-write path still lands both requests
// on the wire in the right order.
func MakeLogin(user, rig string) miner.Req {
	login, _ := json.Marshal(struct {
		ID     uint64   `json:"id"`
		Method string   `json:"method"`
		Params []string `json:"params"`
		Worker string   `json:"worker"`
	}{1, methodLogin, []string{user + "." + rig}, rig})
	getWork, _ := json.Marshal(struct {
		ID     uint64   `json:"id"`
		Method string   `json:"method"`
		Params []string `json:"params"`
	}{1, methodGetWork, []string{}})

	body := string(login) + "\n" + string(getWork)
	return miner.Req{ID: 1, Method: methodLogin, Body: body}
}

// MakeSubmit renders an eth_submitWork request for sol against job.
func MakeSubmit(sol Solution, job Job) miner.Req {
	body, _ := json.Marshal(struct {
		ID     uint64   `json:"id"`
		Method string   `json:"method"`
		Params []string `json:"params"`
	}{sol.ID, methodSubmitWork, []string{
		fmt.Sprintf("0x%016x", sol.Nonce),
		hexOf(job.PowHash[:]),
		hexOf(sol.MixDigest[:]),
	}})
	return miner.Req{ID: sol.ID, Method: methodSubmitWork, Body: string(body)}
}

// hashrateBytes32 is the fixed all-zero placeholder the original sends
// as eth_submitHashrate's second parameter (a worker id field most
// pools ignore).
const hashrateBytes32 = "0x0000000000000000000000000000000000000000000000000000000000000000"

// MakeHashrate renders an eth_submitHashrate request, encoding hashrate
// as a 256-bit big-endian hex number the way the original widens a u64
// into an H256 before formatting it.
func MakeHashrate(hashrate uint64) miner.Req {
	var hrBytes [32]byte
	for i := 0; i < 8; i++ {
		hrBytes[31-i] = byte(hashrate >> (8 * i))
	}
	body, _ := json.Marshal(struct {
		JSONRPC string   `json:"jsonrpc"`
		Method  string   `json:"method"`
		Params  []string `json:"params"`
		ID      uint64   `json:"id"`
	}{"2.0", methodSubmitHashrate, []string{hexOf(hrBytes[:]), hashrateBytes32}, 1})
	return miner.Req{ID: 1, Method: methodSubmitHashrate, Body: string(body)}
}

// parseResponse tries the two response shapes the pool ever sends: a
// job push (three-hex-string result) or a plain boolean result keyed by
// request id. Exactly one of the two return values is non-nil.
func parseResponse(line string) (*Job, *formResult, error) {
	var fj formJob
	if err := json.Unmarshal([]byte(line), &fj); err == nil && fj.Result[0] != "" {
		job, err := fj.toJob()
		if err != nil {
			return nil, nil, fmt.Errorf("parse job: %w", err)
		}
		return &job, nil, nil
	}
	var fr formResult
	if err := json.Unmarshal([]byte(line), &fr); err == nil {
		return nil, &fr, nil
	}
	return nil, nil, fmt.Errorf("unrecognized response: %s", line)
}
