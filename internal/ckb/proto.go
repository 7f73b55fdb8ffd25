package ckb

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/biluohc/cminer/internal/miner"
)

const (
	methodSubscribe = "mining.subscribe"
	methodAuthorize = "mining.authorize"
	methodSetTarget = "mining.set_target"
	methodNotify    = "mining.notify"
	methodSubmit    = "mining.submit"
)

// Job is one unit of CKB work. Target and NonceBytes are filled in from
// whichever of mining.notify/mining.set_target/mining.subscribe arrived
// most recently; the state machine tracks that in JobMsg (job.go) since
// the three can arrive in any order.
type Job struct {
	ID          uint64
	JobID       string
	PowHash     [32]byte
	Height      uint64
	Target      [32]byte
	Nonce       uint128
	NonceBytes  int
}

// Solution is a candidate answer a worker found for a Job.
type Solution struct {
	ID     uint64
	Target [32]byte
	Nonce  uint128
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

// methodForm is the generic stratum envelope: id/method/params/error.
type methodForm struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Error  json.RawMessage `json:"error"`
}

// notifyParams is mining.notify's params tuple: [jobid, powhash, height, target?, clean].
type notifyParams struct {
	JobID   string
	PowHash string
	Height  uint64
}

func parseNotify(raw json.RawMessage) (notifyParams, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil || len(arr) < 3 {
		return notifyParams{}, fmt.Errorf("mining.notify: expected an array of at least 3 elements")
	}
	var jobID, powHash string
	var height uint64
	if err := json.Unmarshal(arr[0], &jobID); err != nil {
		return notifyParams{}, fmt.Errorf("mining.notify jobid: %w", err)
	}
	if err := json.Unmarshal(arr[1], &powHash); err != nil {
		return notifyParams{}, fmt.Errorf("mining.notify powhash: %w", err)
	}
	if err := json.Unmarshal(arr[2], &height); err != nil {
		return notifyParams{}, fmt.Errorf("mining.notify height: %w", err)
	}
	return notifyParams{JobID: jobID, PowHash: powHash, Height: height}, nil
}

func parseSetTarget(raw json.RawMessage) ([32]byte, error) {
	var arr [1]string
	if err := json.Unmarshal(raw, &arr); err != nil {
		return [32]byte{}, fmt.Errorf("mining.set_target: %w", err)
	}
	return hex32(arr[0])
}

// notifyOrTarget is either a freshly parsed Job (from mining.notify) or
// a new target (from mining.set_target); the two can arrive in either
// order relative to each other and to mining.subscribe's nonce1.
type notifyOrTarget struct {
	job    *Job
	target *[32]byte
}

func parseMethodForm(line string) (*notifyOrTarget, error) {
	var mf methodForm
	if err := json.Unmarshal([]byte(line), &mf); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if mf.Method == "" {
		return nil, fmt.Errorf("not a method form")
	}

	switch mf.Method {
	case methodNotify:
		np, err := parseNotify(mf.Params)
		if err != nil {
			return nil, err
		}
		powHash, err := hex32(np.PowHash)
		if err != nil {
			return nil, fmt.Errorf("powhash: %w", err)
		}
		return &notifyOrTarget{job: &Job{JobID: np.JobID, PowHash: powHash, Height: np.Height}}, nil
	case methodSetTarget:
		target, err := parseSetTarget(mf.Params)
		if err != nil {
			return nil, err
		}
		return &notifyOrTarget{target: &target}, nil
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

// submitResult is produced when result is a plain bool (authorize,
// submit); subscribeResult is produced when result is the 3-element
// subscribe tuple [session-info, nonce1, nonce1_bytes].
type submitResult struct {
	ID     uint64
	Accept bool
	Err    string
}

type subscribeResult struct {
	Nonce1      string
	Nonce1Bytes int
}

func parseResultForm(line string) (*submitResult, *subscribeResult, error) {
	var rf resultForm
	if err := json.Unmarshal([]byte(line), &rf); err != nil {
		return nil, nil, fmt.Errorf("decode json: %w", err)
	}
	if len(rf.Result) == 0 {
		return nil, nil, fmt.Errorf("not a result form")
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
		return nil, nil, fmt.Errorf("subscribe nonce1: %w", err)
	}
	var nonce1Bytes int
	if err := json.Unmarshal(tuple[2], &nonce1Bytes); err != nil {
		return nil, nil, fmt.Errorf("subscribe nonce1_bytes: %w", err)
	}
	return nil, &subscribeResult{Nonce1: nonce1, Nonce1Bytes: nonce1Bytes}, nil
}

// MakeLogin renders the login Req: mining.subscribe followed by
// mining.authorize, both id 0, newline-joined so one write lands both
// lines on the wire in order.
func MakeLogin(user, rig string) miner.Req {
	subscribe, _ := json.Marshal(struct {
		ID     uint64   `json:"id"`
		Method string   `json:"method"`
		Params []any    `json:"params"`
	}{0, methodSubscribe, []any{"cminer-v1.0.0", nil}})
	authorize, _ := json.Marshal(struct {
		ID     uint64   `json:"id"`
		Method string   `json:"method"`
		Params []string `json:"params"`
	}{0, methodAuthorize, []string{user + "." + rig, "x"}})

	body := string(subscribe) + "\n" + string(authorize)
	return miner.Req{ID: 0, Method: methodSubscribe, Body: body}
}

// MakeSubmit renders a mining.submit request. Only the nonce bytes past
// the pool-assigned nonce1 prefix are sent, matching the original's
// nonce_bytes[job.nonce1_bytes..] slice.
func MakeSubmit(sol Solution, job Job) miner.Req {
	full := sol.Nonce.bytes16()
	nonceHex := hex.EncodeToString(full[job.NonceBytes:])
	body, _ := json.Marshal(struct {
		ID     uint64   `json:"id"`
		Method string   `json:"method"`
		Params []string `json:"params"`
	}{sol.ID, methodSubmit, []string{"", job.JobID, nonceHex}})
	return miner.Req{ID: sol.ID, Method: methodSubmit, Body: string(body)}
}
