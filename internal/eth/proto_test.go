package eth

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseResponseJob(t *testing.T) {
	line := `{"id":1,"jsonrpc":"2.0","result":["0x` + strings.Repeat("ab", 32) + `","0x` + strings.Repeat("00", 32) + `","0x` + strings.Repeat("ff", 32) + `"]}`
	job, result, err := parseResponse(line)
	if err != nil {
		t.Fatalf("parseResponse: %v", err)
	}
	if result != nil {
		t.Fatalf("expected a job, got a result too")
	}
	if job == nil {
		t.Fatalf("expected a non-nil job")
	}
	if job.Epoch != 0 {
		t.Fatalf("seedhash of all zero bytes should derive epoch 0, got %d", job.Epoch)
	}
}

func TestParseResponseResult(t *testing.T) {
	line := `{"id":7,"result":true,"error":null}`
	job, result, err := parseResponse(line)
	if err != nil {
		t.Fatalf("parseResponse: %v", err)
	}
	if job != nil {
		t.Fatalf("expected no job")
	}
	if result == nil || result.ID != 7 || !result.Result {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestParseResponseGarbage(t *testing.T) {
	if _, _, err := parseResponse("not json at all"); err == nil {
		t.Fatalf("expected an error for garbage input")
	}
}

func TestMakeLoginContainsBothCalls(t *testing.T) {
	req := MakeLogin("0xdeadbeef", "rig1")
	if req.Method != methodLogin {
		t.Fatalf("Method = %s, want %s", req.Method, methodLogin)
	}
	if !strings.Contains(req.Body, methodLogin) || !strings.Contains(req.Body, methodGetWork) {
		t.Fatalf("login body missing one of the two calls: %s", req.Body)
	}
	lines := strings.Split(req.Body, "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 newline-joined lines, got %d", len(lines))
	}
	for _, l := range lines {
		var v map[string]any
		if err := json.Unmarshal([]byte(l), &v); err != nil {
			t.Fatalf("line is not valid JSON: %s: %v", l, err)
		}
	}
}

func TestMakeSubmitRoundTrips(t *testing.T) {
	var job Job
	job.PowHash[0] = 0x11
	sol := Solution{ID: 9, Nonce: 0x1122334455667788}
	req := MakeSubmit(sol, job)
	if req.ID != 9 || req.Method != methodSubmitWork {
		t.Fatalf("unexpected req: %+v", req)
	}
	var v struct {
		Params []string `json:"params"`
	}
	if err := json.Unmarshal([]byte(req.Body), &v); err != nil {
		t.Fatalf("body not valid JSON: %v", err)
	}
	if v.Params[0] != "0x1122334455667788" {
		t.Fatalf("nonce encoded as %s", v.Params[0])
	}
}

func TestMakeHashrateEncodesBigEndian(t *testing.T) {
	req := MakeHashrate(0x0102030405060708)
	var v struct {
		Params []string `json:"params"`
	}
	if err := json.Unmarshal([]byte(req.Body), &v); err != nil {
		t.Fatalf("body not valid JSON: %v", err)
	}
	want := "0x" + strings.Repeat("00", 24) + "0102030405060708"
	if v.Params[0] != want {
		t.Fatalf("hashrate field = %s, want %s", v.Params[0], want)
	}
}

func TestLessOrEqual(t *testing.T) {
	var a, b [32]byte
	if !lessOrEqual(a, b) {
		t.Fatalf("equal values should compare <=")
	}
	a[31] = 1
	if lessOrEqual(a, b) {
		t.Fatalf("a > b should not compare <=")
	}
	b[0] = 1
	if !lessOrEqual(a, b) {
		t.Fatalf("a should be <= b once a leading byte makes b bigger")
	}
}
