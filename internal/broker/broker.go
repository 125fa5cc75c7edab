// Package broker fans router deliveries and session lifecycle events out
// to every orchestrator process that might have a locally-connected
// listener for a given call session, so a deployment isn't limited to a
// single process per session.
package broker

import (
	"context"

	"github.com/voxbridge/callcore/pkg/protocol"
)

// Message is one decoded broker envelope plus the session it was
// published against.
type Message struct {
	SessionID string
	Envelope  *protocol.Envelope
}

// Broker publishes typed session events to every subscriber of a
// session's topic and delivers them back out as decoded envelopes.
// Implementations must be safe for concurrent use.
type Broker interface {
	// Publish encodes v as msgType and sends it to every current
	// subscriber of sessionID's topic, including this process's own
	// subscription if one is open.
	Publish(ctx context.Context, sessionID string, msgType protocol.MessageType, v interface{}) error

	// Subscribe opens a topic for sessionID and returns a channel of
	// decoded messages plus an unsubscribe function. The channel is
	// closed once unsubscribe is called or ctx is done.
	Subscribe(ctx context.Context, sessionID string) (<-chan Message, func(), error)
}
