package audio

import (
	"bytes"
	"encoding/binary"
)

// WrapWAV packs raw 16kHz mono 16-bit LE PCM into a minimal WAV
// container so HTTP speech-recognition providers that expect a file
// upload (rather than a raw PCM stream) can be given a well-formed
// audio file. Mirrors the way the teacher packs Opus frames into an
// OGG container before handing them to its STT provider.
func WrapWAV(pcm []byte) []byte {
	var buf bytes.Buffer
	dataLen := uint32(len(pcm))
	byteRate := uint32(SampleRate * Channels * BytesPerSample)
	blockAlign := uint16(Channels * BytesPerSample)

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16)) // PCM fmt chunk size
	binary.Write(&buf, binary.LittleEndian, uint16(1))  // audio format: PCM
	binary.Write(&buf, binary.LittleEndian, uint16(Channels))
	binary.Write(&buf, binary.LittleEndian, uint32(SampleRate))
	binary.Write(&buf, binary.LittleEndian, byteRate)
	binary.Write(&buf, binary.LittleEndian, blockAlign)
	binary.Write(&buf, binary.LittleEndian, uint16(BytesPerSample*8))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataLen)
	buf.Write(pcm)

	return buf.Bytes()
}
