package miner

import (
	"sync/atomic"
	"time"

	"github.com/biluohc/cminer/internal/config"
	"github.com/biluohc/cminer/internal/log"
	"github.com/biluohc/cminer/internal/reqtable"
)

var minrLog = log.NewSubsystem(log.MINR)

// exited is flipped by the process's SIGINT/SIGTERM handler; the driver
// loop polls it once a second, mirroring the original main loop's
// util::exited() check.
var exited atomic.Bool

// RequestExit asks the driver loop to wind down after its current tick.
func RequestExit() { exited.Store(true) }

// Exited reports whether RequestExit has been called.
func Exited() bool { return exited.Load() }

// Run is the miner driver (spec's "miner driver / main loop"): it starts
// the network supervisor and the worker pool, then loops emitting
// periodic hashrate/submit metrics and watching for a stalled job
// (unchanged jobid for Config.Expire seconds) until asked to exit.
func Run[J any](h Handler[J], receiver <-chan Frame, newWorker func(*Worker[J]) WorkerRunner) {
	s := h.StateOf()
	cfg := s.Config()

	go RunNetworkSupervisor(h, receiver)
	StartWorkers(h, newWorker)
	minrLog.Infof("started %d workers", cfg.Workers)

	const metricsEvery = 30 * time.Second
	lastMetrics := time.Now()
	lastJobCheck := time.Now()
	lastReqSweep := time.Now()
	lastJobID := ""
	expire := time.Duration(cfg.Expire) * time.Second
	reqTimeout := config.Timeout()

	for !Exited() {
		if d := time.Since(lastMetrics); d >= metricsEvery {
			showMetrics(h, d)
			lastMetrics = time.Now()
		}
		if time.Since(lastJobCheck) >= expire {
			id := h.JobID()
			if id == lastJobID && id != "" {
				minrLog.Warnf("job %s alive for over %ds, forcing a reconnect", lastJobID, cfg.Expire)
				trySendFrame(s, ErrFrame(errJobStalled))
			} else {
				lastJobID = id
			}
			lastJobCheck = time.Now()
		}
		if time.Since(lastReqSweep) >= reqTimeout {
			var reqs *reqtable.Table
			s.With(func(v *Statev[J]) { reqs = v.Reqs })
			n := reqs.ClearTimeouts(reqTimeout, func(e reqtable.Entry, d time.Duration) {
				minrLog.Warnf("request %d#%s timed out after %s", e.ID, e.Method, d)
			})
			if n > 0 {
				trySendFrame(s, ErrFrame(errRequestTimedOut))
			}
			lastReqSweep = time.Now()
		}
		time.Sleep(time.Second)
	}
	showMetrics(h, time.Since(lastMetrics))
}

func trySendFrame[J any](s *State[J], f Frame) {
	select {
	case s.sender <- f:
	default:
		minrLog.Errorf("%v (frame was error=%v)", errPacketQueueFull, f.IsErr())
	}
}

func showMetrics[J any](h Handler[J], elapsed time.Duration) {
	s := h.StateOf()
	secs := uint64(elapsed.Seconds())
	if secs == 0 {
		secs = 1
	}

	var hashrate, jobsc, submitc, acceptc, rejectc uint64
	s.With(func(v *Statev[J]) {
		for _, c := range v.Hashrate {
			hashrate += c.Clear()
		}
		jobsc = v.Jobsc.Get()
		submitc = v.Submitc
		acceptc = v.Acceptc
		rejectc = v.Rejectc
	})

	perSec := hashrate / secs
	minrLog.Infof("hashrate=%d/s jobsc=%d submitted=%d accepted=%d rejected=%d elapsed=%s",
		perSec, jobsc, submitc, acceptc, rejectc, elapsed.Truncate(time.Second))

	if req, ok := h.HashrateRequest(perSec); ok {
		trySendFrame(s, ReqFrame(req))
	}
}
