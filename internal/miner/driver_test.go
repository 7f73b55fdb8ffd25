package miner

import (
	"testing"
	"time"

	"github.com/biluohc/cminer/internal/config"
)

// fakeHandler is a minimal Handle+Handler[int] implementation used to
// exercise showMetrics/trySendFrame without a real network connection.
type fakeHandler struct {
	state        *State[int]
	hashrateReq  Req
	hashrateOk   bool
	hashrateSeen []uint64
}

func (f *fakeHandler) Inited() bool { return true }
func (f *fakeHandler) LoginRequest() Req { return Req{} }
func (f *fakeHandler) HashrateRequest(hashrate uint64) (Req, bool) {
	f.hashrateSeen = append(f.hashrateSeen, hashrate)
	return f.hashrateReq, f.hashrateOk
}
func (f *fakeHandler) HandleRequest(req Req) (string, error) { return req.Body, nil }
func (f *fakeHandler) HandleResponse(string) error           { return nil }
func (f *fakeHandler) JobID() string                         { return "0" }
func (f *fakeHandler) StateOf() *State[int]                  { return f.state }

func TestShowMetricsForwardsHashrateRequest(t *testing.T) {
	sender := make(chan Frame, 4)
	h := &fakeHandler{
		state:       NewState[int](config.Config{Workers: 1}, sender),
		hashrateReq: Req{ID: 1, Method: "submitHashrate", Body: "{}"},
		hashrateOk:  true,
	}
	h.state.With(func(v *Statev[int]) {
		v.Hashrate[0].Add(1000)
	})

	showMetrics[int](h, time.Second)

	select {
	case f := <-sender:
		if f.IsErr() {
			t.Fatalf("expected a request frame, got an error frame: %v", f.Err())
		}
		if f.Req().ID != 1 {
			t.Fatalf("forwarded Req.ID = %d, want 1", f.Req().ID)
		}
	default:
		t.Fatalf("showMetrics did not forward the hashrate request onto the sender channel")
	}
	if len(h.hashrateSeen) != 1 || h.hashrateSeen[0] != 1000 {
		t.Fatalf("HashrateRequest called with %v, want [1000]", h.hashrateSeen)
	}
}

func TestShowMetricsSkipsWhenHandlerDeclines(t *testing.T) {
	sender := make(chan Frame, 4)
	h := &fakeHandler{
		state:      NewState[int](config.Config{Workers: 1}, sender),
		hashrateOk: false,
	}
	showMetrics[int](h, time.Second)

	select {
	case f := <-sender:
		t.Fatalf("expected no frame to be sent, got %+v", f)
	default:
	}
}

func TestTrySendFrameDropsOnFullChannel(t *testing.T) {
	s := NewState[int](config.Config{Workers: 1}, make(chan Frame))
	// sender has no buffer and nothing is reading it: trySendFrame must
	// not block the caller.
	done := make(chan struct{})
	go func() {
		trySendFrame(s, ErrFrame(errJobStalled))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("trySendFrame blocked on a full/unread channel instead of dropping")
	}
}
