package btc

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
	kindNonce1t // extranonce1/extranonce2_size known, but no job yet
	kindCompute
	kindExit
)

// JobMsg is BTC's job sum type. mining.subscribe's extranonce1/size and
// mining.notify's job description can arrive in either order; kindNonce1t
// carries the extranonce info (and any difficulty set meanwhile) until a
// job shows up to combine it with.
type JobMsg struct {
	kind        jobKind
	job         Job
	nonce1      string
	nonce2Bytes int
}

func (j JobMsg) jobID() string {
	if j.kind == kindCompute {
		return j.job.JobID
	}
	return "0"
}

// maxForBytes returns the largest value representable in n bytes (n<=16).
func maxForBytes(n int) uint128 {
	if n <= 0 {
		return uint128{}
	}
	if n >= 16 {
		return uint128{hi: ^uint64(0), lo: ^uint64(0)}
	}
	if n <= 8 {
		if n == 8 {
			return uint128{lo: ^uint64(0)}
		}
		return uint128{lo: (uint64(1) << (8 * uint(n))) - 1}
	}
	extra := n - 8
	return uint128{hi: (uint64(1) << (8 * uint(extra))) - 1, lo: ^uint64(0)}
}

// randNonce2 picks a fresh starting extranonce2 in [0, max/2), matching
// the original's thread_rng().gen_range(0, nonce2_max/2) call on every
// new job (not an incrementing counter across jobs).
func randNonce2(max uint128) uint128 {
	half := max.half()
	if half.hi == 0 {
		if half.lo == 0 {
			return uint128{}
		}
		return uint128FromUint64(rand.Uint64() % half.lo)
	}
	return uint128{hi: rand.Uint64() % (half.hi + 1), lo: rand.Uint64()}
}

// bigToLEQuad packs a big.Int's absolute value into four little-endian
// uint64 limbs, the representation targetFromHashRaw/leTargetLessOrEqual
// use in pow.go.
func bigToLEQuad(x *big.Int) [4]uint64 {
	var out [4]uint64
	b := x.Bytes()
	for i, v := range b {
		limb := (len(b) - 1 - i) / 8
		if limb > 3 {
			continue
		}
		shift := uint(((len(b) - 1 - i) % 8)) * 8
		out[limb] |= uint64(v) << shift
	}
	return out
}

// State is BTC's Handler[JobMsg].
type State struct {
	*miner.State[JobMsg]
}

// NewState builds BTC handler state for cfg.
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

// HashrateRequest: BTC pools don't take a submit-hashrate call.
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

// HandleResponse applies one line from the pool: a notify/set_difficulty
// method form, or a result form (subscribe's extranonce info / a submit
// result).
func (s *State) HandleResponse(resp string) error {
	if nd, err := parseMethodForm(resp); err == nil {
		return s.applyMethodForm(nd)
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

func (s *State) applyMethodForm(nd *notifyOrDifficulty) error {
	var outErr error
	s.With(func(v *miner.Statev[JobMsg]) {
		if nd.job != nil {
			job := *nd.job
			switch v.Job.kind {
			case kindCompute:
				job.Nonce1, job.Nonce2Bytes, job.Target = v.Job.job.Nonce1, v.Job.job.Nonce2Bytes, v.Job.job.Target
			case kindNonce1t:
				job.Nonce1, job.Nonce2Bytes = v.Job.nonce1, v.Job.nonce2Bytes
				// a set_difficulty seen since subscribe is held in
				// v.Job.job.Target; difficulty 1 applies until one arrives.
				job.Target = v.Job.job.Target
				if job.Target == ([4]uint64{}) {
					job.Target = bigToLEQuad(miner.BTCDifficultyToTarget(1))
				}
			case kindExit:
				return
			default:
				outErr = errJobBeforeNonce1
				return
			}
			job.Nonce2Max = maxForBytes(job.Nonce2Bytes)
			job.Nonce2 = randNonce2(job.Nonce2Max)
			job.ID = v.Jobsc.Get() + 1
			stlog.Infof("job: %s prevhash=%s clean=%v", job.JobID, job.PrevHashHex, job.Clean)
			v.Job = JobMsg{kind: kindCompute, job: job}
			v.Jobsc.AddSlow(1)
			return
		}

		target := bigToLEQuad(miner.BTCDifficultyToTarget(uint64(*nd.difficulty)))
		switch v.Job.kind {
		case kindSleep:
			// no extranonce info yet: the difficulty is dropped and the
			// first job starts at the difficulty-1 default above.
		case kindNonce1t:
			// held until mining.notify builds the first job from it.
			v.Job.job.Target = target
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
	s.With(func(v *miner.Statev[JobMsg]) {
		switch v.Job.kind {
		case kindSleep:
			v.Job = JobMsg{kind: kindNonce1t, nonce1: r.Nonce1, nonce2Bytes: r.Nonce2Bytes}
		case kindNonce1t:
			v.Job.nonce1, v.Job.nonce2Bytes = r.Nonce1, r.Nonce2Bytes
		case kindCompute, kindExit:
			// extranonce1 is only ever assigned once, before the first job.
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

// Worker is BTC's WorkerRunner.
type Worker struct {
	*miner.Worker[JobMsg]
}

// NewWorker adapts a generic miner.Worker[JobMsg] into a BTC Worker.
func NewWorker(w *miner.Worker[JobMsg]) miner.WorkerRunner {
	return &Worker{Worker: w}
}

// Run is one CPU worker's loop: wait for a computable job, assemble its
// header with this worker's own extranonce2 offset, then step the
// header nonce. On u32 wraparound it bumps extranonce2 by the worker
// count and rebuilds the header, matching the original's Computer field
// nonce wrap check.
func (w *Worker) Run() {
	var jobGen uint64
	computer := NewComputer()
	var job Job
	haveJob := false
	var nonce uint32
	var nonce2 uint128

	rebuild := func() {
		job.Nonce2 = nonce2
		if err := computer.Update(job); err != nil {
			wlog.Errorf("rebuild header: %v", err)
			haveJob = false
		}
	}

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
				nonce = uint32(w.Idx)
				nonce2 = job.Nonce2.Add(w.Idx)
				rebuild()
				haveJob = true
			case kindExit:
				wlog.Warnf("worker %d exit", w.Idx)
				return
			default:
				haveJob = false
			}
		}

		if haveJob {
			if sol, ok := computer.Compute(job, nonce); ok {
				sol.ID = miner.NextID()
				sol.Nonce2 = nonce2
				sol.NTime = job.NTime
				wlog.Warnf("found a solution: id=%d nonce=%x jobid=%s", sol.ID, nonce, job.JobID)
				cfg := w.State.Config()
				req := MakeSubmit(sol, job, cfg.User, cfg.Rig)
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

			prev := nonce
			nonce += uint32(w.Step)
			if nonce < prev {
				nonce2 = nonce2.Add(w.Step)
				rebuild()
			}
		} else {
			time.Sleep(config.Timeout())
		}
	}
}
