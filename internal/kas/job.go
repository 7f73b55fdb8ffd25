package kas

import (
	"math/big"
	"math/rand"
	"time"

	"github.com/biluohc/cminer/internal/config"
	"github.com/biluohc/cminer/internal/log"
	"github.com/biluohc/cminer/internal/miner"
)

var wlog = log.NewSubsystem(log.WORK)
var stlog = log.NewSubsystem(log.STAT)

type jobKind int

const (
	kindSleep jobKind = iota
	kindNonce1t // (nonce, nonce1_bytes, target) known, but no job yet
	kindCompute
	kindExit
)

// JobMsg is KAS's job sum type, mirroring the BtcJob/CkbJob pattern:
// mining.set_extranonce's nonce/nonce1_bytes and mining.set_difficulty's
// target can both arrive before the first mining.notify.
type JobMsg struct {
	kind        jobKind
	job         Job
	nonce       uint64
	nonce1Bytes int
	target      [4]uint64
}

func (j JobMsg) jobID() string {
	if j.kind == kindCompute {
		return j.job.JobID
	}
	return "0"
}

// State is KAS's Handler[JobMsg].
type State struct {
	*miner.State[JobMsg]
}

// NewState builds KAS handler state for cfg.
func NewState(cfg config.Config, sender chan miner.Frame) *State {
	return &State{State: miner.NewState[JobMsg](cfg, sender)}
}

// Inited reports whether a computable job has arrived yet.
func (s *State) Inited() bool {
	ok := false
	s.With(func(v *miner.Statev[JobMsg]) {
		ok = v.Job.kind == kindCompute
	})
	return ok
}

// LoginRequest renders mining.subscribe+mining.authorize.
func (s *State) LoginRequest() miner.Req {
	return MakeLogin(s.Config())
}

// HashrateRequest: KAS pools take a submit-hashrate call, like ETH.
func (s *State) HashrateRequest(hashrate uint64) (miner.Req, bool) {
	return MakeHashrate(hashrate), true
}

// HandleRequest registers req in the request table and bumps Submitc
// for submit requests, then returns the already-rendered wire body.
func (s *State) HandleRequest(req miner.Req) (string, error) {
	s.With(func(v *miner.Statev[JobMsg]) {
		v.Reqs.Add(req.ID, req.Method)
		if req.Method == methodSubmit {
			v.Submitc++
		}
	})
	return req.Body, nil
}

// HandleResponse applies one line from the pool: a notify/set_difficulty/
// set_extranonce method form, or a result form (a submit/authorize
// result).
func (s *State) HandleResponse(resp string) error {
	if mp, err := parseMethodForm(resp); err == nil {
		return s.applyMethodForm(mp)
	}

	id, accept, errStr, err := parseResultForm(resp)
	if err != nil {
		return err
	}
	s.With(func(v *miner.Statev[JobMsg]) {
		entry, ok := v.Reqs.Remove(id)
		if !ok {
			wlog.Warnf("unknown response id: %d, result: %v, error: %v", id, accept, errStr)
			return
		}
		elapsed := time.Since(entry.At)
		if entry.Method == methodSubmit {
			if accept {
				v.Acceptc++
				stlog.Infof("submit %d accepted in %s", id, elapsed)
			} else {
				v.Rejectc++
				stlog.Warnf("submit %d rejected in %s, error: %s", id, elapsed, errStr)
			}
		} else {
			stlog.Infof("request %d#%s in %s, error: %s", id, entry.Method, elapsed, errStr)
		}
	})
	return nil
}

func (s *State) applyMethodForm(mp *methodParams) error {
	var outErr error
	s.With(func(v *miner.Statev[JobMsg]) {
		switch {
		case mp.job != nil:
			job := *mp.job
			var nonce uint64
			var nonce1Bytes int
			var target [4]uint64
			switch v.Job.kind {
			case kindCompute:
				nonce, nonce1Bytes, target = v.Job.job.Nonce, v.Job.job.Nonce1Bytes, v.Job.job.Target
			case kindNonce1t:
				nonce, nonce1Bytes, target = v.Job.nonce, v.Job.nonce1Bytes, v.Job.target
			case kindExit:
				return
			default:
				outErr = errJobBeforeNonce1
				return
			}

			job.Target = target
			job.Nonce1Bytes = nonce1Bytes
			if nonce1Bytes == 0 {
				// Only randomize the starting nonce when the pool hasn't
				// assigned an extranonce prefix: an assigned prefix already
				// partitions the nonce space between miners.
				nonce += rand.Uint64() / 2
			}
			job.Nonce = nonce

			if target == ([4]uint64{}) {
				outErr = errDifficultyNotSet
				return
			}
			diff := miner.KaspaInverse(new(big.Int).SetUint64(leQuadToUint64Lo(target)))
			job.ID = v.Jobsc.Get() + 1
			stlog.Infof("job: %s timestamp=%d powhash=%x diff=%s nonce=%x", job.JobID, job.Timestamp, job.PowHash, diff.String(), job.Nonce)
			v.Job = JobMsg{kind: kindCompute, job: job}
			v.Jobsc.AddSlow(1)

		case mp.target != nil:
			target := *mp.target
			switch v.Job.kind {
			case kindSleep:
				v.Job = JobMsg{kind: kindNonce1t, target: target}
			case kindNonce1t:
				v.Job.target = target
			case kindCompute:
				v.Job.job.Target = target
			case kindExit:
			}

		case mp.nonce1 != nil:
			nonce1, nonce1Bytes := *mp.nonce1, *mp.nonce1Bytes
			switch v.Job.kind {
			case kindSleep:
				v.Job = JobMsg{kind: kindNonce1t, nonce: nonce1, nonce1Bytes: nonce1Bytes}
			case kindNonce1t:
				v.Job.nonce, v.Job.nonce1Bytes = nonce1, nonce1Bytes
			case kindCompute:
				v.Job.job.Nonce, v.Job.job.Nonce1Bytes = nonce1, nonce1Bytes
			case kindExit:
			}
		}
	})
	return outErr
}

// leQuadToUint64Lo is a placeholder difficulty proxy: it reads the low
// limb of a little-endian target quad so KaspaInverse can report a
// human difficulty figure for logging without re-deriving a big.Int
// from all four limbs on every job.
func leQuadToUint64Lo(target [4]uint64) uint64 {
	if target[1] != 0 || target[2] != 0 || target[3] != 0 {
		return ^uint64(0)
	}
	return target[0]
}

// JobID identifies the current job for the driver's stall watchdog.
func (s *State) JobID() string {
	id := "0"
	s.With(func(v *miner.Statev[JobMsg]) {
		id = v.Job.jobID()
	})
	return id
}

// Worker is KAS's WorkerRunner.
type Worker struct {
	*miner.Worker[JobMsg]
}

// NewWorker adapts a generic miner.Worker[JobMsg] into a KAS Worker.
func NewWorker(w *miner.Worker[JobMsg]) miner.WorkerRunner {
	return &Worker{Worker: w}
}

// Run is one CPU worker's loop: wait for a computable job, build a
// fresh Computer for it (the matrix and midstate are job-specific), and
// step the nonce by the worker count.
func (w *Worker) Run() {
	var jobGen uint64
	var computer *Computer
	var job Job
	haveJob := false
	var nonce uint64

	for {
		gen := w.Jobsc.Get()
		if gen != jobGen {
			jobGen = gen
			var jm JobMsg
			w.State.With(func(v *miner.Statev[JobMsg]) {
				jm = v.Job
			})
			switch jm.kind {
			case kindCompute:
				job = jm.job
				nonce = job.Nonce + w.Idx
				computer = NewComputer(job.PowHash, job.Timestamp)
				haveJob = true
			case kindExit:
				wlog.Warnf("worker %d exit", w.Idx)
				return
			default:
				haveJob = false
			}
		}

		if haveJob {
			if sol, ok := computer.Compute(nonce, job.Target); ok {
				sol.ID = miner.NextID()
				wlog.Warnf("found a solution: id=%d nonce=%x jobid=%s", sol.ID, nonce, job.JobID)
				req := MakeSubmit(sol, job)
				select {
				case w.Sender <- miner.ReqFrame(req):
				default:
					wlog.Errorf("try send solution error: outbound queue full")
				}
				if w.Sleep > 0 {
					time.Sleep(time.Duration(w.Sleep) * time.Second)
				}
			}
			w.Hashrate.Add(1)
			nonce += w.Step
		} else {
			time.Sleep(config.Timeout())
		}
	}
}
