package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeDeliveryMessage(t *testing.T) {
	msg := DeliveryMessage{
		SessionID:      "call-1",
		Speaker:        "alice",
		Listener:       "bob",
		Seq:            7,
		SourceLang:     "en",
		SourceText:     "hello",
		TargetLang:     "ru",
		TranslatedText: "привет",
		StartMS:        1000,
		EndMS:          1800,
	}

	data, err := Encode(TypeFinalDelivery, msg)
	require.NoError(t, err)

	// Verify header
	assert.Equal(t, byte(TypeFinalDelivery), data[0])

	// Decode
	env, err := Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, TypeFinalDelivery, env.Type)

	var decoded DeliveryMessage
	require.NoError(t, env.DecodePayload(&decoded))
	assert.Equal(t, msg.SessionID, decoded.SessionID)
	assert.Equal(t, msg.TranslatedText, decoded.TranslatedText)
	assert.Equal(t, msg.Seq, decoded.Seq)
}

func TestEncodePingPong(t *testing.T) {
	ping := PingPong{Nonce: 42}
	data, err := Encode(TypePing, ping)
	require.NoError(t, err)

	env, err := Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, TypePing, env.Type)

	var decoded PingPong
	require.NoError(t, env.DecodePayload(&decoded))
	assert.Equal(t, uint64(42), decoded.Nonce)
}

func TestPayloadTooLarge(t *testing.T) {
	bigAudio := make([]byte, MaxPayloadSize+1)
	msg := DeliveryMessage{Audio: bigAudio}
	_, err := Encode(TypeFinalDelivery, msg)
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestDecodeInvalidReader(t *testing.T) {
	// Empty reader
	_, err := Decode(bytes.NewReader(nil))
	assert.Error(t, err)
}

func TestDecodePartialPayload(t *testing.T) {
	// Valid header but truncated payload
	data := make([]byte, HeaderSize)
	data[0] = byte(TypePing)
	data[1] = 0
	data[2] = 0
	data[3] = 0
	data[4] = 10 // claims 10 bytes payload

	_, err := Decode(bytes.NewReader(data))
	assert.Error(t, err)
}

func TestEnvelopeEncodeRaw(t *testing.T) {
	env := &Envelope{
		Type:    TypeCallEnded,
		Payload: []byte{0x01, 0x02, 0x03},
	}
	data, err := env.EncodeRaw()
	require.NoError(t, err)
	assert.Equal(t, byte(TypeCallEnded), data[0])
	assert.Equal(t, 3+HeaderSize, len(data))

	// Round-trip
	decoded, err := Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, env.Type, decoded.Type)
	assert.Equal(t, env.Payload, decoded.Payload)
}

func TestDecodeBytesRoundTrip(t *testing.T) {
	data, err := Encode(TypeParticipantJoin, ParticipantEvent{SessionID: "call-1", UserID: "alice"})
	require.NoError(t, err)

	env, err := DecodeBytes(data)
	require.NoError(t, err)
	assert.Equal(t, TypeParticipantJoin, env.Type)

	var decoded ParticipantEvent
	require.NoError(t, env.DecodePayload(&decoded))
	assert.Equal(t, "alice", decoded.UserID)
}

func TestDecodeBytesRejectsShortHeader(t *testing.T) {
	_, err := DecodeBytes([]byte{0x01, 0x02})
	assert.ErrorIs(t, err, ErrInvalidHeader)
}

func TestAllMessageTypes(t *testing.T) {
	types := []MessageType{
		TypeInterimDelivery, TypeFinalDelivery,
		TypeParticipantJoin, TypeParticipantLeft, TypeCallEnded, TypeErrorEvent,
		TypePing, TypePong,
	}

	for _, mt := range types {
		data, err := Encode(mt, PingPong{Nonce: uint64(mt)})
		require.NoError(t, err)
		env, err := Decode(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, mt, env.Type, "message type mismatch for 0x%02x", mt)
	}
}
