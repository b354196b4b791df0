package engine

import (
	"context"
	"sync"

	"github.com/BoonLang/boon-go/internal/value"
)

// Subscription is one registered (sender, receiver) pair. The producer
// owns the send side and the registry entry; the subscriber owns only the
// receive side.
type Subscription struct {
	producer *Node
	ch       chan value.Value
	gone     chan struct{}
	once     sync.Once
}

// recvStatus reports how a receive ended.
type recvStatus int

const (
	recvOK        recvStatus = iota // a value arrived
	recvClosed                      // the producer was torn down
	recvCancelled                   // the receiver's own context ended
)

// Values exposes the receive channel. The channel closes when the
// producer is torn down.
func (s *Subscription) Values() <-chan value.Value { return s.ch }

// recv waits for the next value, the producer's end, or ctx cancellation.
func (s *Subscription) recv(ctx context.Context) (value.Value, recvStatus) {
	select {
	case v, ok := <-s.ch:
		if !ok {
			return nil, recvClosed
		}
		return v, recvOK
	case <-ctx.Done():
		return nil, recvCancelled
	}
}

// Cancel withdraws the receiver. Idempotent. After Cancel, in-flight sends
// toward this subscription are dropped silently by the producer; the
// producer itself is unaffected - cancelling a subscription never tears
// down or keeps alive the node behind it.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		close(s.gone)
		s.producer.removeSub(s)
	})
}
