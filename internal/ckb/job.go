package ckb

import (
	"math/big"
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
	kindNonce1t // nonce1/target known, but no job yet
	kindCompute
	kindExit
)

// JobMsg is CKB's job sum type. mining.subscribe's nonce1 (extranonce)
// and mining.set_target's target can both arrive before the first
// mining.notify; kindNonce1t carries whichever of those has been seen
// so far until a job shows up to combine them with.
type JobMsg struct {
	kind       jobKind
	job        Job
	nonce      uint128
	nonceBytes int
	target     [32]byte
}

func (j JobMsg) jobID() string {
	if j.kind == kindCompute {
		return j.job.JobID
	}
	return "0"
}

// State is CKB's Handler[JobMsg].
type State struct {
	*miner.State[JobMsg]
}

// NewState builds CKB handler state for cfg.
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
	cfg := s.Config()
	return MakeLogin(cfg.User, cfg.Rig)
}

// HashrateRequest: CKB pools don't take a submit-hashrate call.
func (s *State) HashrateRequest(uint64) (miner.Req, bool) {
	return miner.Req{}, false
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

// HandleResponse applies one line from the pool: a notify/set_target
// method form, or a result form (subscribe's nonce1 / a submit result).
func (s *State) HandleResponse(resp string) error {
	if mt, err := parseMethodForm(resp); err == nil {
		return s.applyMethodForm(mt)
	}

	submit, subscribe, err := parseResultForm(resp)
	if err != nil {
		return err
	}
	if submit != nil {
		s.applySubmitResult(*submit)
	}
	if subscribe != nil {
		s.applySubscribeResult(*subscribe)
	}
	return nil
}

func (s *State) applyMethodForm(mt *notifyOrTarget) error {
	var outErr error
	s.With(func(v *miner.Statev[JobMsg]) {
		if mt.job != nil {
			job := *mt.job
			switch v.Job.kind {
			case kindCompute:
				job.Nonce, job.NonceBytes, job.Target = v.Job.job.Nonce, v.Job.job.NonceBytes, v.Job.job.Target
			case kindNonce1t:
				job.Nonce, job.NonceBytes, job.Target = v.Job.nonce, v.Job.nonceBytes, v.Job.target
			case kindExit:
				return
			default:
				outErr = errJobBeforeNonce1
				return
			}
			job.ID = v.Jobsc.Get() + 1
			diff := miner.EthashInverse(new(big.Int).SetBytes(job.Target[:]))
			stlog.Infof("job: %s height=%d powhash=%x diff=%s nonce=%x", job.JobID, job.Height, job.PowHash, diff.String(), job.Nonce)
			v.Job = JobMsg{kind: kindCompute, job: job}
			v.Jobsc.AddSlow(1)
			return
		}

		target := *mt.target
		switch v.Job.kind {
		case kindSleep:
			v.Job = JobMsg{kind: kindNonce1t, target: target}
		case kindNonce1t:
			v.Job.target = target
		case kindCompute:
			v.Job.job.Target = target
		case kindExit:
		}
	})
	return outErr
}

func (s *State) applySubmitResult(r submitResult) {
	s.With(func(v *miner.Statev[JobMsg]) {
		entry, ok := v.Reqs.Remove(r.ID)
		if !ok {
			wlog.Warnf("unknown response id: %d, result: %v, error: %v", r.ID, r.Accept, r.Err)
			return
		}
		elapsed := time.Since(entry.At)
		if entry.Method == methodSubmit {
			if r.Accept {
				v.Acceptc++
				stlog.Infof("submit %d accepted in %s", r.ID, elapsed)
			} else {
				v.Rejectc++
				stlog.Warnf("submit %d rejected in %s, error: %s", r.ID, elapsed, r.Err)
			}
		} else {
			stlog.Infof("request %d#%s in %s, error: %s", r.ID, entry.Method, elapsed, r.Err)
		}
	})
}

func (s *State) applySubscribeResult(r subscribeResult) {
	nonce, nonceBytes, err := parseNonce(r.Nonce1)
	if err != nil {
		wlog.Errorf("parse nonce1 %q: %v", r.Nonce1, err)
		return
	}
	s.With(func(v *miner.Statev[JobMsg]) {
		switch v.Job.kind {
		case kindSleep:
			v.Job = JobMsg{kind: kindNonce1t, nonce: nonce, nonceBytes: nonceBytes}
		case kindNonce1t:
			v.Job.nonce, v.Job.nonceBytes = nonce, nonceBytes
		case kindCompute, kindExit:
			// nonce1 is only ever assigned once, before the first job; a
			// later resend is ignored rather than reshaping a live job.
		}
	})
}

// JobID identifies the current job for the driver's stall watchdog.
func (s *State) JobID() string {
	id := "0"
	s.With(func(v *miner.Statev[JobMsg]) {
		id = v.Job.jobID()
	})
	return id
}

// Worker is CKB's WorkerRunner.
type Worker struct {
	*miner.Worker[JobMsg]
}

// NewWorker adapts a generic miner.Worker[JobMsg] into a CKB Worker.
func NewWorker(w *miner.Worker[JobMsg]) miner.WorkerRunner {
	return &Worker{Worker: w}
}

// Run is one CPU worker's loop: wait for a computable job, then hash
// nonces starting at job.Nonce+idx and stepping by the worker count.
func (w *Worker) Run() {
	var jobGen uint64
	computer := NewComputer()
	var job Job
	haveJob := false
	nonce := uint128{}

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
				nonce = job.Nonce.Add(w.Idx)
				computer.Update(job.PowHash)
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
				wlog.Warnf("found a solution: id=%d nonce=%x jobid=%s", sol.ID, nonce.bytes16(), job.JobID)
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
			nonce = nonce.Add(w.Step)
		} else {
			time.Sleep(config.Timeout())
		}
	}
}
