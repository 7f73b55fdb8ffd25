package eth

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
	kindCompute
	kindExit
)

// JobMsg is ETH's job sum type: either nothing to do yet (kindSleep), a
// computable (Computer, Job) pair once a job has arrived (kindCompute),
// or a request to stop (kindExit). Its zero value is kindSleep, the
// same default every *State[JobMsg] starts at before the first job
// notification lands.
type JobMsg struct {
	kind     jobKind
	computer *Computer
	job      Job
}

func (j JobMsg) jobID() string {
	if j.kind == kindCompute {
		return hexOf(j.job.PowHash[:])
	}
	return "0"
}

// State is ETH's Handler[JobMsg]: the generic miner State embedded for
// its mutex/config/channel plumbing, specialized here with the Handle
// methods Go can't attach directly to a generic State[JobMsg] from
// outside the miner package.
type State struct {
	*miner.State[JobMsg]
}

// NewState builds ETH handler state for cfg.
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

// LoginRequest renders eth_submitLogin+eth_getWork.
func (s *State) LoginRequest() miner.Req {
	cfg := s.Config()
	return MakeLogin(cfg.User, cfg.Rig)
}

// HashrateRequest renders eth_submitHashrate; ETH always reports.
func (s *State) HashrateRequest(hashrate uint64) (miner.Req, bool) {
	return MakeHashrate(hashrate), true
}

// HandleRequest registers req in the request table (so the eventual
// response can be matched back to it) and bumps Submitc for submitWork
// requests, then returns the already-rendered wire body.
func (s *State) HandleRequest(req miner.Req) (string, error) {
	s.With(func(v *miner.Statev[JobMsg]) {
		v.Reqs.Add(req.ID, req.Method)
		if req.Method == methodSubmitWork {
			v.Submitc++
		}
	})
	return req.Body, nil
}

// HandleResponse applies one line from the pool: either a new job
// (rebuilding the DAG only if the epoch changed) or a login/submit
// result matched back against the request table.
func (s *State) HandleResponse(resp string) error {
	job, result, err := parseResponse(resp)
	if err != nil {
		return err
	}

	if job != nil {
		cfg := s.Config()
		diff := miner.EthashInverse(new(big.Int).SetBytes(job.Target[:]))
		stlog.Infof("job: %s epoch=%d diff=%s nonce=%x", hexOf(job.PowHash[:]), job.Epoch, diff.String(), job.Nonce)

		s.With(func(v *miner.Statev[JobMsg]) {
			job.ID = v.Jobsc.Get() + 1

			switch v.Job.kind {
			case kindCompute:
				if job.Epoch == v.Job.job.Epoch {
					v.Job = JobMsg{kind: kindCompute, computer: v.Job.computer, job: *job}
					v.Jobsc.AddSlow(1)
					return
				}
			case kindExit:
				return
			}
			computer := NewComputer(job.Epoch, cfg.Workers, cfg.Testnet)
			v.Job = JobMsg{kind: kindCompute, computer: computer, job: *job}
			v.Jobsc.AddSlow(1)
		})
		return nil
	}

	if result != nil {
		s.With(func(v *miner.Statev[JobMsg]) {
			entry, ok := v.Reqs.Remove(result.ID)
			if !ok {
				wlog.Warnf("unknown response id: %d, result: %v, error: %v", result.ID, result.Result, result.Error)
				return
			}
			elapsed := time.Since(entry.At)
			if entry.Method == methodSubmitWork {
				if result.Result {
					v.Acceptc++
					stlog.Infof("submit %d accepted in %s", result.ID, elapsed)
				} else {
					v.Rejectc++
					stlog.Warnf("submit %d rejected in %s, error: %v", result.ID, elapsed, result.Error)
				}
			} else {
				stlog.Infof("request %d#%s in %s, error: %v", result.ID, entry.Method, elapsed, result.Error)
			}
		})
	}
	return nil
}

// JobID identifies the current job for the driver's stall watchdog.
func (s *State) JobID() string {
	id := "0"
	s.With(func(v *miner.Statev[JobMsg]) {
		id = v.Job.jobID()
	})
	return id
}

// Worker is ETH's WorkerRunner: the generic miner Worker embedded for
// its counters/sender/idx/step, specialized with the Run loop Go can't
// attach directly to Worker[JobMsg] from outside the miner package.
type Worker struct {
	*miner.Worker[JobMsg]
}

// NewWorker adapts a generic miner.Worker[JobMsg] into an ETH Worker.
func NewWorker(w *miner.Worker[JobMsg]) miner.WorkerRunner {
	return &Worker{Worker: w}
}

// Run is one CPU worker's loop: wait for a computable job, then hash
// nonces starting at job.Nonce+idx and stepping by the worker count,
// rebuilding only when the job generation counter changes.
func (w *Worker) Run() {
	var jobGen uint64
	var computer *Computer
	var job Job
	haveJob := false
	nonce := uint64(0)

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
				computer = jm.computer
				job = jm.job
				nonce = job.Nonce + w.Idx
				haveJob = true
			case kindExit:
				wlog.Warnf("worker %d exit", w.Idx)
				return
			default:
				haveJob = false
			}
		}

		if haveJob {
			mixDigest, result := computer.Hashimoto(job.PowHash, nonce)
			if lessOrEqual(result, job.Target) {
				sol := Solution{ID: miner.NextID(), MixDigest: mixDigest, Target: result, Nonce: nonce}
				wlog.Warnf("found a solution: id=%d nonce=%x powhash=%s", sol.ID, nonce, hexOf(job.PowHash[:]))
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

// lessOrEqual compares two 32-byte big-endian values: result <= target.
func lessOrEqual(result, target [32]byte) bool {
	for i := 0; i < 32; i++ {
		if result[i] != target[i] {
			return result[i] < target[i]
		}
	}
	return true
}
