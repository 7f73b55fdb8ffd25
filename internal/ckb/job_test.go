package ckb

import (
	"testing"

	"github.com/biluohc/cminer/internal/config"
	"github.com/biluohc/cminer/internal/miner"
)

func newTestState() *State {
	cfg := config.Config{Workers: 1, Expire: 60, User: "user", Rig: "rig"}
	return NewState(cfg, make(chan miner.Frame, 16))
}

func notifyLine(jobID string, powByte byte, height uint64) string {
	return `{"method":"mining.notify","params":["` + jobID + `","` +
		hexFill(powByte) + `",` + itoa(height) + `]}`
}

func hexFill(b byte) string {
	out := make([]byte, 64)
	for i := range out {
		out[i] = "0123456789abcdef"[b%16]
	}
	return string(out)
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func TestJobBeforeNonce1IsAnError(t *testing.T) {
	s := newTestState()
	if err := s.HandleResponse(notifyLine("job1", 1, 100)); err != errJobBeforeNonce1 {
		t.Fatalf("HandleResponse before nonce1 = %v, want errJobBeforeNonce1", err)
	}
}

func TestSubscribeThenNotifyReachesCompute(t *testing.T) {
	s := newTestState()
	if err := s.HandleResponse(`{"id":0,"result":["session","aabb",2]}`); err != nil {
		t.Fatalf("subscribe result: %v", err)
	}
	if s.Inited() {
		t.Fatalf("should not be inited with only nonce1, no job yet")
	}
	if err := s.HandleResponse(notifyLine("job1", 1, 100)); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if !s.Inited() {
		t.Fatalf("should be inited once nonce1 and a job have both arrived")
	}
	if got := s.JobID(); got != "job1" {
		t.Fatalf("JobID = %s, want job1", got)
	}
}

func TestJobscStrictlyIncreasesAcrossNotifies(t *testing.T) {
	s := newTestState()
	s.HandleResponse(`{"id":0,"result":["session","aabb",2]}`)
	s.HandleResponse(notifyLine("job1", 1, 100))

	var first uint64
	s.With(func(v *miner.Statev[JobMsg]) { first = v.Jobsc.Get() })

	if err := s.HandleResponse(notifyLine("job2", 2, 101)); err != nil {
		t.Fatalf("second notify: %v", err)
	}
	var second uint64
	s.With(func(v *miner.Statev[JobMsg]) { second = v.Jobsc.Get() })

	if second <= first {
		t.Fatalf("jobsc should strictly increase: %d -> %d", first, second)
	}
}

func TestSetTargetBeforeJobIsCarriedForward(t *testing.T) {
	s := newTestState()
	s.HandleResponse(`{"id":0,"result":["session","aabb",2]}`)

	target := `{"method":"mining.set_target","params":["` + hexFill(0xff) + `"]}`
	if err := s.HandleResponse(target); err != nil {
		t.Fatalf("set_target: %v", err)
	}
	if err := s.HandleResponse(notifyLine("job1", 1, 100)); err != nil {
		t.Fatalf("notify: %v", err)
	}

	var job Job
	s.With(func(v *miner.Statev[JobMsg]) { job = v.Job.job })
	want := [32]byte{}
	for i := range want {
		want[i] = 0xff
	}
	if job.Target != want {
		t.Fatalf("job.Target = %x, want %x", job.Target, want)
	}
}

func TestSubmitResultUpdatesCounters(t *testing.T) {
	s := newTestState()
	req := miner.Req{ID: 5, Method: methodSubmit}
	s.With(func(v *miner.Statev[JobMsg]) {
		v.Reqs.Add(req.ID, req.Method)
	})
	if err := s.HandleResponse(`{"id":5,"result":true}`); err != nil {
		t.Fatalf("HandleResponse: %v", err)
	}
	var acceptc uint64
	s.With(func(v *miner.Statev[JobMsg]) { acceptc = v.Acceptc })
	if acceptc != 1 {
		t.Fatalf("Acceptc = %d, want 1", acceptc)
	}
}
