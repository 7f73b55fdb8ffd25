package kas

import (
	"testing"

	"github.com/biluohc/cminer/internal/config"
	"github.com/biluohc/cminer/internal/miner"
)

func newTestState() *State {
	cfg := config.Config{Workers: 1, Expire: 60, User: "user", Rig: "rig"}
	return NewState(cfg, make(chan miner.Frame, 16))
}

func notifyLine(jobID string) string {
	return `{"method":"mining.notify","params":["` + jobID +
		`","7d92a563859e13119221f1a288615330a05d786a9cabc1b997c72fe9f6aa37e4edcfaecb84010000"]}`
}

func TestJobBeforeDifficultyIsAnError(t *testing.T) {
	s := newTestState()
	if err := s.HandleResponse(notifyLine("job1")); err != errJobBeforeNonce1 {
		t.Fatalf("HandleResponse before difficulty = %v, want errJobBeforeNonce1", err)
	}
}

func TestDifficultyThenNotifyReachesCompute(t *testing.T) {
	s := newTestState()
	if err := s.HandleResponse(`{"method":"mining.set_difficulty","params":[100000.0]}`); err != nil {
		t.Fatalf("set_difficulty: %v", err)
	}
	if s.Inited() {
		t.Fatalf("should not be inited with only difficulty, no job yet")
	}
	if err := s.HandleResponse(notifyLine("job1")); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if !s.Inited() {
		t.Fatalf("should be inited once difficulty and a job have both arrived")
	}
	if got := s.JobID(); got != "job1" {
		t.Fatalf("JobID = %s, want job1", got)
	}
}

func TestZeroDifficultyJobIsRejected(t *testing.T) {
	s := newTestState()
	s.HandleResponse(`{"method":"mining.set_extranonce","params":["aabb"]}`)
	if err := s.HandleResponse(notifyLine("job1")); err != errDifficultyNotSet {
		t.Fatalf("HandleResponse with no difficulty set = %v, want errDifficultyNotSet", err)
	}
}

func TestExtranoncePrefixSuppressesNonceRandomization(t *testing.T) {
	s := newTestState()
	s.HandleResponse(`{"method":"mining.set_difficulty","params":[100000.0]}`)
	s.HandleResponse(`{"method":"mining.set_extranonce","params":["aabb"]}`)
	if err := s.HandleResponse(notifyLine("job1")); err != nil {
		t.Fatalf("notify: %v", err)
	}
	var job Job
	s.With(func(v *miner.Statev[JobMsg]) { job = v.Job.job })
	if job.Nonce != 0xaabb {
		t.Fatalf("Nonce = %x, want the extranonce prefix 0xaabb unmodified by randomization", job.Nonce)
	}
	if job.Nonce1Bytes != 2 {
		t.Fatalf("Nonce1Bytes = %d, want 2", job.Nonce1Bytes)
	}
}

func TestJobscStrictlyIncreasesAcrossNotifies(t *testing.T) {
	s := newTestState()
	s.HandleResponse(`{"method":"mining.set_difficulty","params":[100000.0]}`)
	s.HandleResponse(notifyLine("job1"))

	var first uint64
	s.With(func(v *miner.Statev[JobMsg]) { first = v.Jobsc.Get() })

	if err := s.HandleResponse(notifyLine("job2")); err != nil {
		t.Fatalf("second notify: %v", err)
	}
	var second uint64
	s.With(func(v *miner.Statev[JobMsg]) { second = v.Jobsc.Get() })
	if second <= first {
		t.Fatalf("jobsc should strictly increase: %d -> %d", first, second)
	}
}

func TestLeQuadToUint64Lo(t *testing.T) {
	if got := leQuadToUint64Lo([4]uint64{5, 0, 0, 0}); got != 5 {
		t.Fatalf("leQuadToUint64Lo = %d, want 5", got)
	}
	if got := leQuadToUint64Lo([4]uint64{5, 1, 0, 0}); got != ^uint64(0) {
		t.Fatalf("leQuadToUint64Lo with a nonzero high limb should saturate, got %d", got)
	}
}
