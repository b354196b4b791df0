package engine

import (
	"context"
	"sort"
	"sync"

	"github.com/BoonLang/boon-go/internal/value"
)

// branchMsg is one upstream event tagged with its declaration index.
type branchMsg struct {
	idx int
	v   value.Value
}

// fanStatus reports how a fan-in collection ended.
type fanStatus int

const (
	fanOK        fanStatus = iota // a batch arrived
	fanExhausted                  // every branch's producer ended
	fanCancelled                  // the owner's context ended
)

// fanIn multiplexes several upstreams into one channel, preserving each
// branch's declaration index. One forwarder goroutine per branch moves
// values from the subscription into the mux; forwarders exit when their
// producer ends or the owner is cancelled.
type fanIn struct {
	mux       chan branchMsg
	exhausted chan struct{}
}

// newFanIn subscribes the owner node to every input. Subscriptions are
// owned by the given scope; forwarders stop at the owner's cancellation.
func newFanIn(scope *Scope, owner *Node, inputs []*Node) *fanIn {
	fi := &fanIn{
		mux:       make(chan branchMsg, scope.eng.chanCap),
		exhausted: make(chan struct{}),
	}
	var wg sync.WaitGroup
	for i, in := range inputs {
		sub := in.Subscribe()
		scope.ownSub(sub)
		wg.Add(1)
		go func(idx int, sub *Subscription) {
			defer wg.Done()
			for {
				v, st := sub.recv(owner.ctx)
				if st != recvOK {
					return
				}
				select {
				case fi.mux <- branchMsg{idx: idx, v: v}:
				case <-owner.ctx.Done():
					return
				}
			}
		}(i, sub)
	}
	go func() {
		wg.Wait()
		close(fi.exhausted)
	}()
	return fi
}

// collect blocks for the next event, then drains everything immediately
// available and returns the batch sorted stably by declaration index -
// one propagation turn. Ties inside a turn therefore resolve by
// declaration order, never by arrival race.
func (fi *fanIn) collect(ctx context.Context) ([]branchMsg, fanStatus) {
	var first branchMsg
	select {
	case first = <-fi.mux:
	case <-ctx.Done():
		return nil, fanCancelled
	case <-fi.exhausted:
		// Branches are done; pick up anything still buffered.
		select {
		case first = <-fi.mux:
		default:
			return nil, fanExhausted
		}
	}

	batch := []branchMsg{first}
	for {
		select {
		case m := <-fi.mux:
			batch = append(batch, m)
		default:
			sort.SliceStable(batch, func(i, j int) bool {
				return batch[i].idx < batch[j].idx
			})
			return batch, fanOK
		}
	}
}
