package broker

import (
	"context"
	"sync"

	"github.com/voxbridge/callcore/pkg/protocol"
)

// InProcess is a Broker backed by plain Go channels. It fans a publish
// out to every subscriber currently registered for a session within
// the same process; there is no cross-process delivery. Used for
// single-instance deployments and tests.
type InProcess struct {
	mu     sync.RWMutex
	topics map[string][]chan Message
}

// NewInProcess creates an empty in-process broker.
func NewInProcess() *InProcess {
	return &InProcess{
		topics: make(map[string][]chan Message),
	}
}

func (b *InProcess) Publish(ctx context.Context, sessionID string, msgType protocol.MessageType, v interface{}) error {
	data, err := protocol.Encode(msgType, v)
	if err != nil {
		return err
	}
	env, err := protocol.DecodeBytes(data)
	if err != nil {
		return err
	}

	b.mu.RLock()
	subs := append([]chan Message(nil), b.topics[sessionID]...)
	b.mu.RUnlock()

	msg := Message{SessionID: sessionID, Envelope: env}
	for _, ch := range subs {
		select {
		case ch <- msg:
		case <-ctx.Done():
			return ctx.Err()
		default:
			// Slow subscriber drops the message rather than blocking the
			// publisher; session delivery already has its own backpressure
			// ladder at the orchestrator layer.
		}
	}
	return nil
}

func (b *InProcess) Subscribe(ctx context.Context, sessionID string) (<-chan Message, func(), error) {
	ch := make(chan Message, 64)

	b.mu.Lock()
	b.topics[sessionID] = append(b.topics[sessionID], ch)
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			subs := b.topics[sessionID]
			for i, c := range subs {
				if c == ch {
					b.topics[sessionID] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
			if len(b.topics[sessionID]) == 0 {
				delete(b.topics, sessionID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}

	go func() {
		<-ctx.Done()
		unsubscribe()
	}()

	return ch, unsubscribe, nil
}
