// Package miner implements the shared state, worker pool, and network
// supervisor that each currency's stratum handler plugs into. The core
// types here are generic over the currency's job sum type (the JobMsg of
// internal/eth, internal/ckb, internal/btc and internal/kas); each of
// those packages wraps *State[J] and *Worker[J] in its own State and
// Worker types in its job.go and attaches the Handle methods and the
// worker's Run loop there.
package miner

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/biluohc/cminer/internal/config"
	"github.com/biluohc/cminer/internal/counter"
	"github.com/biluohc/cminer/internal/reqtable"
)

// idSource hands out solution ids starting at 2 (0 and 1 are reserved by
// the login handshake's two fixed-id requests on some currencies).
var idSource = func() *atomic.Uint64 {
	var v atomic.Uint64
	v.Store(2)
	return &v
}()

// NextID returns the next solution id, mirroring the original's
// AtomicUsize::new(2).fetch_add(1) sequence (2, 3, 4, ...).
func NextID() uint64 {
	return idSource.Add(1) - 1
}

// Req is one stratum request: an id, the method it was issued for (used
// to match the eventual response and for metrics), and the fully-framed
// JSON line ready to write to the wire.
type Req struct {
	ID     uint64
	Method string
	Body   string
}

// Frame travels over the outbound channel. It is either a Req ready to
// send, or a timestamped error that should force a reconnect -- unless
// that error belongs to a connection the supervisor has already moved
// on from, in which case it's stale and gets skipped.
type Frame struct {
	req   Req
	err   error
	errAt time.Time
}

// ReqFrame wraps a request for the outbound channel.
func ReqFrame(r Req) Frame { return Frame{req: r} }

// ErrFrame wraps an error, stamped with the current time, for the
// outbound channel.
func ErrFrame(err error) Frame { return Frame{err: err, errAt: time.Now()} }

// IsErr reports whether this frame carries an error rather than a request.
func (f Frame) IsErr() bool { return f.err != nil }

// Req returns the wrapped request; only meaningful when !IsErr().
func (f Frame) Req() Req { return f.req }

// Err returns the wrapped error; only meaningful when IsErr().
func (f Frame) Err() error { return f.err }

// ErrAt returns when the error was raised.
func (f Frame) ErrAt() time.Time { return f.errAt }

// Statev is the mutex-guarded state a currency's handler mutates on
// every notify/response and every worker reads once per job generation.
// Hashrate is one counter per worker, matching the original's
// `hashrate: Vec<Counter>`: each worker only ever bumps its own slot, so
// the hot path never contends with its siblings, and showMetrics sums
// and clears every slot to report the aggregate rate.
type Statev[J any] struct {
	Hashrate []*counter.Counter
	Jobsc    *counter.Counter
	Job      J
	Reqs     *reqtable.Table
	Submitc  uint64
	Acceptc  uint64
	Rejectc  uint64
}

func newStatev[J any](workers int) Statev[J] {
	var zero J
	if workers < 1 {
		workers = 1
	}
	hashrate := make([]*counter.Counter, workers)
	for i := range hashrate {
		hashrate[i] = counter.New(0)
	}
	return Statev[J]{
		Hashrate: hashrate,
		Jobsc:    counter.New(1),
		Job:      zero,
		Reqs:     reqtable.New(),
	}
}

// State is the shared, clonable-by-reference handle every goroutine
// (network reader, network writer, each worker) holds onto. It owns the
// config (read-only after startup) and the sender half of the outbound
// channel alongside the mutex-guarded Statev.
type State[J any] struct {
	mu     sync.Mutex
	v      Statev[J]
	cfg    config.Config
	sender chan Frame
}

// NewState builds state for cfg, with one hashrate counter per configured
// worker (at least one), and wires it to an outbound channel shared by
// every connection attempt for the process's lifetime. Capping Workers at
// NumCPU happens earlier, in config.
func NewState[J any](cfg config.Config, sender chan Frame) *State[J] {
	return &State[J]{v: newStatev[J](cfg.Workers), cfg: cfg, sender: sender}
}

// Config returns the immutable configuration.
func (s *State[J]) Config() *config.Config { return &s.cfg }

// Sender exposes the outbound channel for handlers and workers.
func (s *State[J]) Sender() chan<- Frame { return s.sender }

// With runs f under the state mutex.
func (s *State[J]) With(f func(*Statev[J])) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f(&s.v)
}

// TryWith attempts to run f under the state mutex without blocking,
// reporting whether it acquired the lock. The currencies' Inited()
// implementations use With, not TryWith.
func (s *State[J]) TryWith(f func(*Statev[J])) bool {
	if !s.mu.TryLock() {
		return false
	}
	defer s.mu.Unlock()
	f(&s.v)
	return true
}

// StateOf satisfies the Handler[J] constraint: every *State[J] is its
// own generic-state accessor, regardless of which currency's Handle
// methods are attached to it.
func (s *State[J]) StateOf() *State[J] { return s }

// Handle is implemented per currency by the State type that wraps
// *State[JobMsg] in that currency's job.go file.
type Handle interface {
	// Inited reports whether the handler has a computable job yet; the
	// worker pool blocks on this before spawning, the same way the
	// original's start_workers spins on self.inited().
	Inited() bool
	// LoginRequest builds the currency-specific subscribe/authorize
	// frame sent immediately after connecting.
	LoginRequest() Req
	// HashrateRequest optionally builds a submit-hashrate frame; ETH and
	// KAS report hashrate this way, CKB and BTC return ok=false.
	HashrateRequest(hashrate uint64) (req Req, ok bool)
	// HandleRequest renders a Req to its wire body, bumping submit
	// counters as a side effect.
	HandleRequest(req Req) (string, error)
	// HandleResponse parses one line from the pool and applies it to
	// the job/request-table/counters.
	HandleResponse(resp string) error
	// JobID identifies the current job for the driver's stall watchdog.
	JobID() string
}

// Handler bundles a currency's Handle implementation with generic access
// back to its State[J], mirroring the original's `Handler<C>` blanket
// impl over any State<C> that also implements Handle<C>.
type Handler[J any] interface {
	Handle
	StateOf() *State[J]
}

// Worker is one CPU worker's view of the shared state: its own slice of
// the nonce space (Idx, Step), the hashrate counter it bumps on every
// attempt, and the job generation counter it polls for new jobs.
type Worker[J any] struct {
	State    *State[J]
	Jobsc    *counter.Counter
	Hashrate *counter.Counter
	Sender   chan<- Frame
	Idx      uint64
	Step     uint64
	Sleep    uint64
	Testnet  bool
}

// WorkerRunner is implemented per currency by the Worker type that wraps
// *Worker[JobMsg] in that currency's job.go file.
type WorkerRunner interface {
	Run()
}

// StartWorkers blocks until the handler reports a computable job, then
// spawns Config.Workers goroutines built by newWorker. It mirrors the
// original's start_workers, which busy-polls self.inited() before
// handing out rayon tasks.
func StartWorkers[J any](h Handler[J], newWorker func(*Worker[J]) WorkerRunner) {
	s := h.StateOf()
	for !h.Inited() {
		time.Sleep(config.Timeout())
	}

	n := s.cfg.Workers
	var jobsc *counter.Counter
	var hashrate []*counter.Counter
	s.With(func(v *Statev[J]) {
		jobsc = v.Jobsc
		hashrate = v.Hashrate
	})

	for idx := 0; idx < n; idx++ {
		w := &Worker[J]{
			State:    s,
			Jobsc:    jobsc,
			Hashrate: hashrate[idx],
			Sender:   s.sender,
			Idx:      uint64(idx),
			Step:     uint64(n),
			Sleep:    s.cfg.Sleep,
			Testnet:  s.cfg.Testnet,
		}
		runner := newWorker(w)
		go runner.Run()
	}
}
