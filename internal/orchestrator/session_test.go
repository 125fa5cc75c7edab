package orchestrator

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxbridge/callcore/internal/audio"
	"github.com/voxbridge/callcore/internal/broker"
	"github.com/voxbridge/callcore/internal/config"
	"github.com/voxbridge/callcore/internal/repo/memory"
	"github.com/voxbridge/callcore/internal/router"
	"github.com/voxbridge/callcore/internal/speech"
	"github.com/voxbridge/callcore/internal/ttscache"
	"github.com/voxbridge/callcore/pkg/protocol"
)

// toneFrame builds one canonical 100ms frame of an audible, speech-band
// sine tone so the VAD classifier reliably detects voice in tests.
func toneFrame(amplitude, freqHz float64) []byte {
	samples := make([]int16, audio.FrameSamples)
	for i := range samples {
		t := float64(i) / float64(audio.SampleRate)
		samples[i] = int16(amplitude * math.Sin(2*math.Pi*freqHz*t))
	}
	return audio.EncodeInt16LE(samples)
}

func testOrchestratorConfig() config.OrchestratorConfig {
	return config.OrchestratorConfig{
		MaxParticipants:   4,
		OutboundQueueSize: 16,
		PingInterval:      15 * time.Second,
		PongWait:          30 * time.Second,
		WriteWait:         10 * time.Second,
		TeardownGrace:     time.Second,
	}
}

func testSegmenterConfig() config.SegmenterConfig {
	return config.SegmenterConfig{
		RMSThreshold:       300,
		SilenceThresholdMS: 400,
		MaxUtteranceMS:     5000,
		MinSpeechMS:        100,
		SpectralWindowMS:   400,
		SpeechBandLowHz:    80,
		SpeechBandHighHz:   4000,
		NoiseBandHz:        5000,
		SpectralRatio:      2.0,
		InboundQueueSize:   32,
	}
}

func newTestManager(t *testing.T) (*Manager, *memory.Repository) {
	t.Helper()
	repo := memory.New()
	adapter := speech.NewMock()
	rt := router.New(config.RouterConfig{DedupTTL: 30 * time.Second, ContextWindow: 10, InterimTranslationEnabled: true}, adapter, ttscache.New(64, 0, zerolog.Nop()), zerolog.Nop())
	mgr := NewManager(testOrchestratorConfig(), testSegmenterConfig(), adapter, rt, repo, broker.NewInProcess(), zerolog.Nop())
	return mgr, repo
}

func TestAdmitUnknownUserRejected(t *testing.T) {
	mgr, repo := newTestManager(t)
	repo.Seed("call-1", []ParticipantInfo{{UserID: "alice", Language: "en"}})

	_, _, err := mgr.Admit(context.Background(), "call-1", "mallory")
	assert.ErrorIs(t, err, ErrUnknownUser)
}

func TestAdmitKnownUserSucceedsAndSessionBecomesOngoing(t *testing.T) {
	mgr, repo := newTestManager(t)
	repo.Seed("call-1", []ParticipantInfo{
		{UserID: "alice", Language: "en"},
		{UserID: "bob", Language: "ru"},
	})

	cs, p, err := mgr.Admit(context.Background(), "call-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", p.userID)
	assert.Equal(t, SessionOngoing, cs.State())
}

func TestSecondConnectionSupersedesFirst(t *testing.T) {
	mgr, repo := newTestManager(t)
	repo.Seed("call-1", []ParticipantInfo{
		{UserID: "alice", Language: "en"},
		{UserID: "bob", Language: "ru"},
	})

	cs, first, err := mgr.Admit(context.Background(), "call-1", "alice")
	require.NoError(t, err)

	_, second, err := mgr.Admit(context.Background(), "call-1", "alice")
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	select {
	case <-first.closed:
	default:
		t.Fatal("expected first connection to be closed after supersession")
	}
	assert.Len(t, cs.participants, 1)
}

func TestSessionFullRejectsBeyondMax(t *testing.T) {
	mgr, repo := newTestManager(t)
	cfg := testOrchestratorConfig()
	cfg.MaxParticipants = 2
	mgr.cfg = cfg

	repo.Seed("call-1", []ParticipantInfo{
		{UserID: "a", Language: "en"},
		{UserID: "b", Language: "en"},
		{UserID: "c", Language: "en"},
	})

	_, _, err := mgr.Admit(context.Background(), "call-1", "a")
	require.NoError(t, err)
	_, _, err = mgr.Admit(context.Background(), "call-1", "b")
	require.NoError(t, err)

	_, _, err = mgr.Admit(context.Background(), "call-1", "c")
	assert.ErrorIs(t, err, ErrSessionFull)
}

func TestLeaveBelowTwoParticipantsEndsSession(t *testing.T) {
	mgr, repo := newTestManager(t)
	repo.Seed("call-1", []ParticipantInfo{
		{UserID: "alice", Language: "en"},
		{UserID: "bob", Language: "ru"},
	})

	cs, _, err := mgr.Admit(context.Background(), "call-1", "alice")
	require.NoError(t, err)
	_, _, err = mgr.Admit(context.Background(), "call-1", "bob")
	require.NoError(t, err)

	cs.Leave(context.Background(), "bob")

	assert.Eventually(t, func() bool {
		return cs.State() == SessionEnded
	}, time.Second, 5*time.Millisecond)
}

func TestFinalUtteranceIsDeliveredToOtherListener(t *testing.T) {
	mgr, repo := newTestManager(t)
	repo.Seed("call-1", []ParticipantInfo{
		{UserID: "alice", Language: "en"},
		{UserID: "bob", Language: "ru", VoiceID: "voice-1"},
	})

	cs, _, err := mgr.Admit(context.Background(), "call-1", "alice")
	require.NoError(t, err)
	_, bob, err := mgr.Admit(context.Background(), "call-1", "bob")
	require.NoError(t, err)

	// Two frames of synthetic speech followed by trailing silence so the
	// segmenter finalizes quickly in the test.
	loud := toneFrame(8000, 400)
	silence := make([]byte, audio.FrameBytes)

	cs.HandleFrame("alice", loud)
	cs.HandleFrame("alice", loud)
	for i := 0; i < 6; i++ {
		cs.HandleFrame("alice", silence)
	}

	select {
	case env := <-bob.finalCh:
		assert.Equal(t, outboundFinalTrans, env.msg.Type)
		assert.Equal(t, "alice", env.msg.Speaker)
		assert.NotEmpty(t, env.msg.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a delivery to bob")
	}
}

// TestAllSameLanguageSessionDeliversNoAudioToAnyListener covers §4.D.3
// end-to-end: every participant shares the speaker's source language,
// so no finalized utterance should ever reach a listener with
// synthesized audio attached, even though the mock synthesizer would
// happily produce non-empty PCM for any text it is given.
func TestAllSameLanguageSessionDeliversNoAudioToAnyListener(t *testing.T) {
	mgr, repo := newTestManager(t)
	repo.Seed("call-1", []ParticipantInfo{
		{UserID: "alice", Language: "en"},
		{UserID: "bob", Language: "en"},
	})

	cs, _, err := mgr.Admit(context.Background(), "call-1", "alice")
	require.NoError(t, err)
	_, bob, err := mgr.Admit(context.Background(), "call-1", "bob")
	require.NoError(t, err)

	loud := toneFrame(8000, 400)
	silence := make([]byte, audio.FrameBytes)

	cs.HandleFrame("alice", loud)
	cs.HandleFrame("alice", loud)
	for i := 0; i < 6; i++ {
		cs.HandleFrame("alice", silence)
	}

	select {
	case env := <-bob.finalCh:
		assert.Equal(t, outboundFinalTrans, env.msg.Type)
		assert.NotEmpty(t, env.msg.Text)
		assert.Empty(t, env.audio, "same-language listener must receive no synthesized audio per §4.D.3")
	case <-time.After(2 * time.Second):
		t.Fatal("expected a delivery to bob")
	}
}

// TestDeliveryFallsBackToBrokerForRemoteListener simulates a listener
// that is part of the roster but connected to a different orchestrator
// process: deliverTo must publish to the broker instead of dropping the
// delivery, and a second process subscribed to the same topic must be
// able to pick it up.
func TestDeliveryFallsBackToBrokerForRemoteListener(t *testing.T) {
	br := broker.NewInProcess()
	repo := memory.New()
	adapter := speech.NewMock()
	rt := router.New(config.RouterConfig{DedupTTL: 30 * time.Second, ContextWindow: 10, InterimTranslationEnabled: true}, adapter, ttscache.New(64, 0, zerolog.Nop()), zerolog.Nop())
	mgr := NewManager(testOrchestratorConfig(), testSegmenterConfig(), adapter, rt, repo, br, zerolog.Nop())

	repo.Seed("call-1", []ParticipantInfo{
		{UserID: "alice", Language: "en"},
		{UserID: "bob", Language: "ru", VoiceID: "voice-1"},
	})

	cs, _, err := mgr.Admit(context.Background(), "call-1", "alice")
	require.NoError(t, err)

	// bob never connects to this process, so listenerTargets would not
	// normally include him; drive deliverTo directly as the router would
	// for a roster member whose connection lives elsewhere.
	remoteCh, unsubscribe, err := br.Subscribe(context.Background(), "call-1")
	require.NoError(t, err)
	defer unsubscribe()

	cs.deliverTo(router.Delivery{
		Kind:           router.DeliveryFinal,
		Listener:       "bob",
		Speaker:        "alice",
		SourceLang:     "en",
		SourceText:     "hello",
		TargetLang:     "ru",
		TranslatedText: "привет",
	})

	select {
	case msg := <-remoteCh:
		assert.Equal(t, "call-1", msg.SessionID)
		var d protocol.DeliveryMessage
		require.NoError(t, msg.Envelope.DecodePayload(&d))
		assert.Equal(t, "bob", d.Listener)
		assert.Equal(t, "привет", d.TranslatedText)
	case <-time.After(time.Second):
		t.Fatal("expected the delivery to be published on the broker for bob")
	}
}
