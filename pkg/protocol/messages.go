// Package protocol defines the wire protocol used by internal/broker to
// fan call events out across processes.
// Wire format: [1 byte type][4 bytes length (big-endian)][payload (msgpack)]
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// MessageType identifies the kind of protocol message.
type MessageType uint8

const (
	TypeInterimDelivery MessageType = 0x01
	TypeFinalDelivery   MessageType = 0x02
	TypeParticipantJoin MessageType = 0x10
	TypeParticipantLeft MessageType = 0x11
	TypeCallEnded       MessageType = 0x12
	TypeErrorEvent      MessageType = 0x13
	TypePing            MessageType = 0xFE
	TypePong            MessageType = 0xFF
)

// MaxPayloadSize is the maximum allowed payload size (1 MB).
const MaxPayloadSize = 1 << 20

// HeaderSize is type (1) + length (4).
const HeaderSize = 5

var (
	ErrPayloadTooLarge = errors.New("protocol: payload exceeds max size")
	ErrInvalidHeader   = errors.New("protocol: invalid header")
)

// Envelope wraps a typed message for wire transport.
type Envelope struct {
	Type    MessageType `msgpack:"-"`
	Payload []byte      `msgpack:"-"`
}

// DeliveryMessage carries one router delivery across process boundaries
// so an orchestrator instance that doesn't own the speaking participant's
// segmenter can still deliver the translated caption/audio to its own
// locally-connected listeners.
type DeliveryMessage struct {
	SessionID      string `msgpack:"session_id"`
	Speaker        string `msgpack:"speaker"`
	Listener       string `msgpack:"listener"`
	Seq            uint64 `msgpack:"seq"`
	SourceLang     string `msgpack:"source_lang"`
	SourceText     string `msgpack:"source_text"`
	TargetLang     string `msgpack:"target_lang"`
	TranslatedText string `msgpack:"translated_text"`
	Audio          []byte `msgpack:"audio,omitempty"`
	Degraded       bool   `msgpack:"degraded"`
	StartMS        int64  `msgpack:"start_ms"`
	EndMS          int64  `msgpack:"end_ms"`
}

// ParticipantEvent announces a join/leave against a session.
type ParticipantEvent struct {
	SessionID string `msgpack:"session_id"`
	UserID    string `msgpack:"user_id"`
}

// CallEndedEvent announces a session's termination and why.
type CallEndedEvent struct {
	SessionID string `msgpack:"session_id"`
	Reason    string `msgpack:"reason"`
}

// ErrorEvent carries a callerr.Kind string produced for one participant.
type ErrorEvent struct {
	SessionID string `msgpack:"session_id"`
	UserID    string `msgpack:"user_id"`
	Kind      string `msgpack:"kind"`
}

// PingPong is used for keepalive.
type PingPong struct {
	Nonce uint64 `msgpack:"nonce"`
}

// Encode serializes a message type and payload into wire format.
func Encode(msgType MessageType, v interface{}) ([]byte, error) {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal failed: %w", err)
	}
	if len(payload) > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}

	buf := make([]byte, HeaderSize+len(payload))
	buf[0] = byte(msgType)
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(payload)))
	copy(buf[5:], payload)
	return buf, nil
}

// Decode reads one message from a reader and returns the envelope.
func Decode(r io.Reader) (*Envelope, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("protocol: read header: %w", err)
	}

	msgType := MessageType(header[0])
	length := binary.BigEndian.Uint32(header[1:5])

	if length > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("protocol: read payload: %w", err)
	}

	return &Envelope{Type: msgType, Payload: payload}, nil
}

// DecodeBytes parses a complete in-memory wire message. Used by the Redis
// Pub/Sub transport, which delivers whole messages rather than a stream.
func DecodeBytes(data []byte) (*Envelope, error) {
	if len(data) < HeaderSize {
		return nil, ErrInvalidHeader
	}
	msgType := MessageType(data[0])
	length := binary.BigEndian.Uint32(data[1:5])
	if int(length) != len(data)-HeaderSize {
		return nil, ErrInvalidHeader
	}
	return &Envelope{Type: msgType, Payload: data[HeaderSize:]}, nil
}

// DecodePayload unmarshals the envelope payload into the target struct.
func (e *Envelope) DecodePayload(v interface{}) error {
	return msgpack.Unmarshal(e.Payload, v)
}

// EncodeRaw creates wire bytes from a pre-built envelope.
func (e *Envelope) EncodeRaw() ([]byte, error) {
	if len(e.Payload) > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}
	buf := make([]byte, HeaderSize+len(e.Payload))
	buf[0] = byte(e.Type)
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(e.Payload)))
	copy(buf[5:], e.Payload)
	return buf, nil
}
