package kas

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/biluohc/cminer/internal/config"
	"github.com/biluohc/cminer/internal/miner"
)

const (
	methodSubscribe     = "mining.subscribe"
	methodAuthorize     = "mining.authorize"
	methodSetDifficulty = "mining.set_difficulty"
	methodSetExtranonce = "mining.set_extranonce"
	methodSubmitHashrate = "mining.submit_hashrate"
	methodNotify        = "mining.notify"
	methodSubmit        = "mining.submit"
)

// Job is one unit of KAS work.
type Job struct {
	ID          uint64
	JobID       string
	PowHash     [32]byte
	Timestamp   uint64
	Target      [4]uint64
	Nonce       uint64
	Nonce1Bytes int
}

// Solution is a candidate answer a worker found for a Job.
type Solution struct {
	ID     uint64
	Target [4]uint64
	Nonce  uint64
}

type methodForm struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// methodParams is the union notify/set_difficulty/set_extranonce
// resolve to; exactly one field is set.
type methodParams struct {
	job         *Job
	target      *[4]uint64
	nonce1      *uint64
	nonce1Bytes *int
}

// parseNotifyParams handles the two shapes mining.notify arrives in:
// a 2-element [jobid, hexcombo] form where hexcombo is a 64-hex-char
// powhash followed by a little-endian 8-byte timestamp, or a 3-element
// [jobid, [4]uint64, timestamp] form carrying the powhash as four
// little-endian 64-bit words directly.
func parseNotifyParams(params json.RawMessage) (*Job, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(params, &arr); err != nil {
		return nil, fmt.Errorf("mining.notify: %w", err)
	}

	var jobID string
	if len(arr) < 2 {
		return nil, fmt.Errorf("mining.notify: expected at least 2 elements")
	}
	if err := json.Unmarshal(arr[0], &jobID); err != nil {
		return nil, fmt.Errorf("mining.notify jobid: %w", err)
	}

	var powHash [32]byte
	var timestamp uint64

	switch len(arr) {
	case 2:
		var combo string
		if err := json.Unmarshal(arr[1], &combo); err != nil {
			return nil, fmt.Errorf("mining.notify hex combo: %w", err)
		}
		if len(combo) < 80 {
			return nil, fmt.Errorf("mining.notify hex combo too short: %d", len(combo))
		}
		b, err := hex.DecodeString(combo[:64])
		if err != nil || len(b) != 32 {
			return nil, fmt.Errorf("mining.notify powhash: invalid hex")
		}
		copy(powHash[:], b)
		tb, err := hex.DecodeString(combo[64:80])
		if err != nil || len(tb) != 8 {
			return nil, fmt.Errorf("mining.notify timestamp: invalid hex")
		}
		timestamp = binary.LittleEndian.Uint64(tb)
	case 3:
		var words [4]uint64
		if err := json.Unmarshal(arr[1], &words); err != nil {
			return nil, fmt.Errorf("mining.notify powhash words: %w", err)
		}
		for i, w := range words {
			binary.LittleEndian.PutUint64(powHash[i*8:i*8+8], w)
		}
		if err := json.Unmarshal(arr[2], &timestamp); err != nil {
			return nil, fmt.Errorf("mining.notify timestamp: %w", err)
		}
	default:
		return nil, fmt.Errorf("mining.notify: unexpected element count %d", len(arr))
	}

	return &Job{JobID: jobID, PowHash: powHash, Timestamp: timestamp}, nil
}

func leQuadFromBig(x *big.Int) [4]uint64 {
	var out [4]uint64
	b := x.Bytes()
	for i, v := range b {
		limb := (len(b) - 1 - i) / 8
		if limb > 3 {
			continue
		}
		shift := uint((len(b)-1-i)%8) * 8
		out[limb] |= uint64(v) << shift
	}
	return out
}

func parseSetDifficulty(params json.RawMessage) ([4]uint64, error) {
	var arr [1]float64
	if err := json.Unmarshal(params, &arr); err != nil {
		return [4]uint64{}, fmt.Errorf("mining.set_difficulty: %w", err)
	}
	diff := miner.KaspaDifficultyDecompress(arr[0])
	target := miner.KaspaInverse(new(big.Int).SetUint64(diff))
	return leQuadFromBig(target), nil
}

// parseNonce1 decodes an extranonce1 hex string the way the original's
// parse_nonce does: right-justified into an 8-byte big-endian buffer,
// so a short prefix still lands in the low-order bytes of the uint64.
func parseNonce1(nonce1 string) (uint64, int, error) {
	n1bytes := len(nonce1) / 2
	if n1bytes > 16 || len(nonce1)%2 != 0 {
		return 0, 0, fmt.Errorf("invalid nonce1 %q: len=%d bytes=%d", nonce1, len(nonce1), n1bytes)
	}
	b, err := hex.DecodeString(nonce1)
	if err != nil {
		return 0, 0, fmt.Errorf("decode nonce1: %w", err)
	}
	var buf [8]byte
	n := len(b)
	if n > 8 {
		n = 8
	}
	copy(buf[8-n:], b[:n])
	return binary.BigEndian.Uint64(buf[:]), n1bytes, nil
}

func parseSetExtranonce(params json.RawMessage) (uint64, int, error) {
	var arr []string
	if err := json.Unmarshal(params, &arr); err != nil || len(arr) < 1 {
		return 0, 0, fmt.Errorf("mining.set_extranonce: %w", err)
	}
	return parseNonce1(arr[0])
}

func parseMethodForm(line string) (*methodParams, error) {
	var mf methodForm
	if err := json.Unmarshal([]byte(line), &mf); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if mf.Method == "" {
		return nil, fmt.Errorf("not a method form")
	}
	switch mf.Method {
	case methodNotify:
		job, err := parseNotifyParams(mf.Params)
		if err != nil {
			return nil, err
		}
		return &methodParams{job: job}, nil
	case methodSetDifficulty:
		target, err := parseSetDifficulty(mf.Params)
		if err != nil {
			return nil, err
		}
		return &methodParams{target: &target}, nil
	case methodSetExtranonce, "set_extranonce":
		n1, n1b, err := parseSetExtranonce(mf.Params)
		if err != nil {
			return nil, err
		}
		return &methodParams{nonce1: &n1, nonce1Bytes: &n1b}, nil
	default:
		return nil, fmt.Errorf("unknown method: %s", mf.Method)
	}
}

type resultForm struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

func parseResultForm(line string) (id uint64, accept bool, errStr string, err error) {
	var rf resultForm
	if err = json.Unmarshal([]byte(line), &rf); err != nil {
		return 0, false, "", fmt.Errorf("decode json: %w", err)
	}
	if len(rf.Error) > 0 && string(rf.Error) != "null" {
		errStr = string(rf.Error)
	}

	var tuple [2]json.RawMessage
	if e := json.Unmarshal(rf.Result, &tuple); e == nil {
		var b bool
		if e := json.Unmarshal(tuple[0], &b); e == nil {
			return rf.ID, b, errStr, nil
		}
	}
	var b bool
	if e := json.Unmarshal(rf.Result, &b); e == nil {
		return rf.ID, b, errStr, nil
	}
	return 0, false, "", fmt.Errorf("unrecognized result shape: %s", rf.Result)
}

// MakeLogin renders mining.subscribe+mining.authorize, newline-joined.
// A testnet run appends BzMiner's client-name quirk some KAS pools
// gate their notify-shape choice on.
func MakeLogin(cfg *config.Config) miner.Req {
	suffix := ""
	if cfg.Testnet {
		suffix = ".BzMinerLike"
	}
	subscribe, _ := json.Marshal(struct {
		ID     uint64   `json:"id"`
		Method string   `json:"method"`
		Params []string `json:"params"`
	}{0, methodSubscribe, []string{"cminer" + suffix + "/1.0.0", "EthereumStratum/1.0.0"}})
	authorize, _ := json.Marshal(struct {
		ID     uint64   `json:"id"`
		Method string   `json:"method"`
		Params []string `json:"params"`
	}{1, methodAuthorize, []string{cfg.User + "." + cfg.Rig, "x"}})

	body := string(subscribe) + "\n" + string(authorize)
	return miner.Req{ID: 0, Method: methodSubscribe, Body: body}
}

const hashrateBytes32 = "0x0000000000000000000000000000000000000000000000000000000000000000"

// MakeHashrate renders mining.submit_hashrate.
func MakeHashrate(hashrate uint64) miner.Req {
	body, _ := json.Marshal(struct {
		JSONRPC string   `json:"jsonrpc"`
		Method  string   `json:"method"`
		Params  []string `json:"params"`
		ID      uint64   `json:"id"`
	}{"2.0", methodSubmitHashrate, []string{fmt.Sprintf("0x%x", hashrate), hashrateBytes32}, 1})
	return miner.Req{ID: 1, Method: methodSubmitHashrate, Body: string(body)}
}

// MakeSubmit renders mining.submit: worker name left blank (the pool
// already knows it from authorize), job id, and the nonce as big-endian
// hex.
func MakeSubmit(sol Solution, job Job) miner.Req {
	var nb [8]byte
	binary.BigEndian.PutUint64(nb[:], sol.Nonce)
	body, _ := json.Marshal(struct {
		ID     uint64   `json:"id"`
		Method string   `json:"method"`
		Params []string `json:"params"`
	}{sol.ID, methodSubmit, []string{"", job.JobID, hex.EncodeToString(nb[:])}})
	return miner.Req{ID: sol.ID, Method: methodSubmit, Body: string(body)}
}
