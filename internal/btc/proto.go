package btc

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/biluohc/cminer/internal/miner"
)

const (
	methodSubscribe     = "mining.subscribe"
	methodAuthorize     = "mining.authorize"
	methodNotify        = "mining.notify"
	methodSetDifficulty = "mining.set_difficulty"
	methodSubmit        = "mining.submit"
)

func decodeHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidHex, err)
	}
	return b, nil
}

// Job is one unit of BTC work: a mining.notify job description plus
// whatever nonce1/extranonce2_size/target has been assigned so far.
// PrevHashHex is kept in the wire's own word order; the word-swap and
// Hash parse happen in pow.go's Computer.Update.
type Job struct {
	ID             uint64
	JobID          string
	PrevHashHex    string
	Coinbase1      []byte
	Coinbase2      []byte
	MerkleBranches []chainhash.Hash
	Version        int32
	NBits          uint32
	NTime          uint32
	Clean          bool

	Nonce1      string
	Nonce2      uint128
	Nonce2Bytes int
	Nonce2Max   uint128
	Target      [4]uint64
}

// nonce2Bytes returns the current extranonce2 value as a big-endian
// byte slice of exactly Nonce2Bytes length, the width mining.subscribe
// assigned.
func (j Job) nonce2Bytes() []byte {
	full := j.Nonce2.bytes16()
	return full[16-j.Nonce2Bytes:]
}

// Solution is a candidate answer a worker found for a Job.
type Solution struct {
	ID     uint64
	Target [4]uint64
	Nonce  uint32
	Nonce2 uint128
	NTime  uint32
}

// methodForm is the generic stratum envelope shared by notify,
// set_difficulty and the request/response forms.
type methodForm struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// notifyOrDifficulty is either a freshly parsed Job (from mining.notify)
// or a new pool difficulty (from mining.set_difficulty); either can
// arrive before the other relative to mining.subscribe's extranonce
// assignment.
type notifyOrDifficulty struct {
	job        *Job
	difficulty *float64
}

func parseNotify(params json.RawMessage) (*Job, error) {
	var arr [9]json.RawMessage
	if err := json.Unmarshal(params, &arr); err != nil {
		return nil, fmt.Errorf("mining.notify: expected a 9-element array: %w", err)
	}

	var jobID, prevHash, coinb1Hex, coinb2Hex, versionHex, nbitsHex, ntimeHex string
	var branchesHex []string
	var clean bool
	if err := json.Unmarshal(arr[0], &jobID); err != nil {
		return nil, fmt.Errorf("mining.notify job_id: %w", err)
	}
	if err := json.Unmarshal(arr[1], &prevHash); err != nil {
		return nil, fmt.Errorf("mining.notify prevhash: %w", err)
	}
	if err := json.Unmarshal(arr[2], &coinb1Hex); err != nil {
		return nil, fmt.Errorf("mining.notify coinb1: %w", err)
	}
	if err := json.Unmarshal(arr[3], &coinb2Hex); err != nil {
		return nil, fmt.Errorf("mining.notify coinb2: %w", err)
	}
	if err := json.Unmarshal(arr[4], &branchesHex); err != nil {
		return nil, fmt.Errorf("mining.notify merkle_branch: %w", err)
	}
	if err := json.Unmarshal(arr[5], &versionHex); err != nil {
		return nil, fmt.Errorf("mining.notify version: %w", err)
	}
	if err := json.Unmarshal(arr[6], &nbitsHex); err != nil {
		return nil, fmt.Errorf("mining.notify nbits: %w", err)
	}
	if err := json.Unmarshal(arr[7], &ntimeHex); err != nil {
		return nil, fmt.Errorf("mining.notify ntime: %w", err)
	}
	if err := json.Unmarshal(arr[8], &clean); err != nil {
		return nil, fmt.Errorf("mining.notify clean_jobs: %w", err)
	}

	coinb1, err := decodeHex(coinb1Hex)
	if err != nil {
		return nil, fmt.Errorf("coinb1: %w", err)
	}
	coinb2, err := decodeHex(coinb2Hex)
	if err != nil {
		return nil, fmt.Errorf("coinb2: %w", err)
	}
	branches := make([]chainhash.Hash, 0, len(branchesHex))
	for _, bh := range branchesHex {
		b, err := decodeHex(bh)
		if err != nil || len(b) != 32 {
			return nil, fmt.Errorf("merkle branch %q: invalid 32-byte hex", bh)
		}
		var h chainhash.Hash
		copy(h[:], b)
		branches = append(branches, h)
	}
	version, err := parseHexUint32(versionHex)
	if err != nil {
		return nil, fmt.Errorf("version: %w", err)
	}
	nbits, err := parseHexUint32(nbitsHex)
	if err != nil {
		return nil, fmt.Errorf("nbits: %w", err)
	}
	ntime, err := parseHexUint32(ntimeHex)
	if err != nil {
		return nil, fmt.Errorf("ntime: %w", err)
	}

	return &Job{
		JobID:          jobID,
		PrevHashHex:    prevHash,
		Coinbase1:      coinb1,
		Coinbase2:      coinb2,
		MerkleBranches: branches,
		Version:        int32(version),
		NBits:          nbits,
		NTime:          ntime,
		Clean:          clean,
	}, nil
}

func parseHexUint32(s string) (uint32, error) {
	b, err := decodeHex(s)
	if err != nil || len(b) != 4 {
		return 0, fmt.Errorf("expected 4-byte hex, got %q", s)
	}
	return binary.BigEndian.Uint32(b), nil
}

func parseSetDifficulty(params json.RawMessage) (float64, error) {
	var arr [1]float64
	if err := json.Unmarshal(params, &arr); err != nil {
		return 0, fmt.Errorf("mining.set_difficulty: %w", err)
	}
	return arr[0], nil
}

func parseMethodForm(line string) (*notifyOrDifficulty, error) {
	var mf methodForm
	if err := json.Unmarshal([]byte(line), &mf); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if mf.Method == "" {
		return nil, fmt.Errorf("not a method form")
	}
	switch mf.Method {
	case methodNotify:
		job, err := parseNotify(mf.Params)
		if err != nil {
			return nil, err
		}
		return &notifyOrDifficulty{job: job}, nil
	case methodSetDifficulty:
		diff, err := parseSetDifficulty(mf.Params)
		if err != nil {
			return nil, err
		}
		return &notifyOrDifficulty{difficulty: &diff}, nil
	default:
		return nil, fmt.Errorf("unknown method: %s", mf.Method)
	}
}

// resultForm is the generic id/result/error envelope for subscribe,
// authorize and submit replies.
type resultForm struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

type submitResult struct {
	ID     uint64
	Accept bool
	Err    string
}

type subscribeResult struct {
	Nonce1      string
	Nonce2Bytes int
}

func parseResultForm(line string) (*submitResult, *subscribeResult, error) {
	var rf resultForm
	if err := json.Unmarshal([]byte(line), &rf); err != nil {
		return nil, nil, fmt.Errorf("decode json: %w", err)
	}
	if len(rf.Result) == 0 || string(rf.Result) == "null" {
		errStr := ""
		if len(rf.Error) > 0 && string(rf.Error) != "null" {
			errStr = string(rf.Error)
		}
		return &submitResult{ID: rf.ID, Accept: false, Err: errStr}, nil, nil
	}

	var b bool
	if err := json.Unmarshal(rf.Result, &b); err == nil {
		errStr := ""
		if len(rf.Error) > 0 && string(rf.Error) != "null" {
			errStr = string(rf.Error)
		}
		return &submitResult{ID: rf.ID, Accept: b, Err: errStr}, nil, nil
	}

	var tuple [3]json.RawMessage
	if err := json.Unmarshal(rf.Result, &tuple); err != nil {
		return nil, nil, fmt.Errorf("unrecognized result shape: %s", rf.Result)
	}
	var nonce1 string
	if err := json.Unmarshal(tuple[1], &nonce1); err != nil {
		return nil, nil, fmt.Errorf("subscribe extranonce1: %w", err)
	}
	var nonce2Bytes int
	if err := json.Unmarshal(tuple[2], &nonce2Bytes); err != nil {
		return nil, nil, fmt.Errorf("subscribe extranonce2_size: %w", err)
	}
	return nil, &subscribeResult{Nonce1: nonce1, Nonce2Bytes: nonce2Bytes}, nil
}

// MakeLogin renders the login Req: mining.subscribe followed by
// mining.authorize, both id 0, newline-joined so one write lands both
// lines on the wire in order.
func MakeLogin(user, rig string) miner.Req {
	subscribe, _ := json.Marshal(struct {
		ID     uint64 `json:"id"`
		Method string `json:"method"`
		Params []any  `json:"params"`
	}{0, methodSubscribe, []any{"cminer/1.0.0"}})
	authorize, _ := json.Marshal(struct {
		ID     uint64   `json:"id"`
		Method string   `json:"method"`
		Params []string `json:"params"`
	}{0, methodAuthorize, []string{user + "." + rig, "x"}})

	body := string(subscribe) + "\n" + string(authorize)
	return miner.Req{ID: 0, Method: methodSubscribe, Body: body}
}

// MakeSubmit renders a mining.submit request: worker name, job id,
// extranonce2 (hex, Nonce2Bytes wide), ntime and nonce (both hex,
// big-endian, as received/used on the wire).
func MakeSubmit(sol Solution, job Job, user, rig string) miner.Req {
	var nonceHex [4]byte
	binary.BigEndian.PutUint32(nonceHex[:], sol.Nonce)
	var ntimeHex [4]byte
	binary.BigEndian.PutUint32(ntimeHex[:], sol.NTime)

	full := sol.Nonce2.bytes16()
	extranonce2 := full[16-job.Nonce2Bytes:]

	body, _ := json.Marshal(struct {
		ID     uint64   `json:"id"`
		Method string   `json:"method"`
		Params []string `json:"params"`
	}{sol.ID, methodSubmit, []string{
		user + "." + rig,
		job.JobID,
		hex.EncodeToString(extranonce2),
		hex.EncodeToString(ntimeHex[:]),
		hex.EncodeToString(nonceHex[:]),
	}})
	return miner.Req{ID: sol.ID, Method: methodSubmit, Body: string(body)}
}
