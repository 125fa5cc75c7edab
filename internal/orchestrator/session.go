package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/voxbridge/callcore/internal/broker"
	"github.com/voxbridge/callcore/internal/callerr"
	"github.com/voxbridge/callcore/internal/config"
	"github.com/voxbridge/callcore/internal/router"
	"github.com/voxbridge/callcore/internal/segmenter"
	"github.com/voxbridge/callcore/internal/speech"
	"github.com/voxbridge/callcore/pkg/protocol"
)

// outboundEnvelope is one message destined for a single participant's
// write pump: a JSON control/delivery message plus an optional
// companion PCM payload.
type outboundEnvelope struct {
	msg   outboundMessage
	audio []byte
}

// participant is one connected (or still-connecting) call member.
type participant struct {
	userID   string
	language string
	voiceID  string

	state ParticipantState
	muted bool

	finalCh       chan outboundEnvelope
	interimSignal chan struct{}

	interimMu     sync.Mutex
	latestInterim map[string]outboundMessage

	segmenter *segmenter.Segmenter
	segCancel context.CancelFunc

	closeOnce sync.Once
	closed    chan struct{}
}

func newParticipant(userID, language, voiceID string, queueSize int) *participant {
	return &participant{
		userID:        userID,
		language:      language,
		voiceID:       voiceID,
		state:         ParticipantConnecting,
		finalCh:       make(chan outboundEnvelope, queueSize),
		interimSignal: make(chan struct{}, 1),
		latestInterim: make(map[string]outboundMessage),
		closed:        make(chan struct{}),
	}
}

// enqueueFinal applies the §5 backpressure ladder for ordered,
// reliable messages: if the queue is full, retry once with the audio
// payload stripped (text-only) before reporting failure so the caller
// can disconnect the listener (kSlowConsumer).
func (p *participant) enqueueFinal(env outboundEnvelope) bool {
	select {
	case p.finalCh <- env:
		return true
	default:
	}

	if len(env.audio) > 0 {
		env.audio = nil
		env.msg.HasAudio = false
		select {
		case p.finalCh <- env:
			return true
		default:
		}
	}
	return false
}

// enqueueInterim coalesces interims per speaker: a newer interim for a
// speaker replaces the prior one rather than queuing, so a slow
// consumer never falls permanently behind on captions.
func (p *participant) enqueueInterim(msg outboundMessage) {
	p.interimMu.Lock()
	p.latestInterim[msg.Speaker] = msg
	p.interimMu.Unlock()

	select {
	case p.interimSignal <- struct{}{}:
	default:
	}
}

// drainInterims returns and clears all coalesced interims.
func (p *participant) drainInterims() []outboundMessage {
	p.interimMu.Lock()
	defer p.interimMu.Unlock()

	if len(p.latestInterim) == 0 {
		return nil
	}
	out := make([]outboundMessage, 0, len(p.latestInterim))
	for _, msg := range p.latestInterim {
		out = append(out, msg)
	}
	p.latestInterim = make(map[string]outboundMessage)
	return out
}

func (p *participant) close() {
	p.closeOnce.Do(func() {
		close(p.closed)
		close(p.finalCh)
		if p.segCancel != nil {
			p.segCancel()
		}
	})
}

// CallSession is the per-call hub: it owns every participant's
// segmenter, routes finalized utterances through the Router, and fans
// deliveries out to every other connected participant.
type CallSession struct {
	mu           sync.RWMutex
	sessionID    string
	state        SessionState
	participants map[string]*participant

	cfg     config.OrchestratorConfig
	segCfg  config.SegmenterConfig
	adapter speech.Adapter
	router  *router.Router
	repo    Repository
	logger  zerolog.Logger

	// br fans deliveries out to listeners connected to a different
	// orchestrator process than the one that produced them. Nil for
	// deployments that never need cross-process delivery.
	br            broker.Broker
	brokerCtx     context.Context
	brokerCancel  context.CancelFunc
	subscribeOnce sync.Once

	roster    map[string]ParticipantInfo
	callStart time.Time
	onEnded   func(sessionID string)
}

func newCallSession(sessionID string, roster map[string]ParticipantInfo, cfg config.OrchestratorConfig, segCfg config.SegmenterConfig, adapter speech.Adapter, rt *router.Router, repo Repository, br broker.Broker, logger zerolog.Logger, onEnded func(string)) *CallSession {
	brokerCtx, brokerCancel := context.WithCancel(context.Background())
	return &CallSession{
		sessionID:    sessionID,
		state:        SessionInitiating,
		participants: make(map[string]*participant),
		roster:       roster,
		cfg:          cfg,
		segCfg:       segCfg,
		adapter:      adapter,
		router:       rt,
		repo:         repo,
		br:           br,
		brokerCtx:    brokerCtx,
		brokerCancel: brokerCancel,
		logger:       logger.With().Str("component", "call_session").Str("session_id", sessionID).Logger(),
		callStart:    time.Now(),
		onEnded:      onEnded,
	}
}

// Join admits a participant. userID must be a known member of the
// session's roster (§6); a second connection for a user id that is
// already connected supersedes the first (the prior connection is torn
// down).
func (cs *CallSession) Join(ctx context.Context, userID string) (*participant, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.state == SessionEnded {
		return nil, ErrSessionEnded
	}
	info, known := cs.roster[userID]
	if !known {
		return nil, ErrUnknownUser
	}
	if existing, ok := cs.participants[userID]; ok {
		existing.close()
		delete(cs.participants, userID)
	}
	if len(cs.participants) >= cs.cfg.MaxParticipants {
		return nil, ErrSessionFull
	}

	language, voiceID := info.Language, info.VoiceID
	p := newParticipant(userID, language, voiceID, cs.cfg.OutboundQueueSize)
	p.state = ParticipantConnected

	segCtx, cancel := context.WithCancel(ctx)
	p.segCancel = cancel
	p.segmenter = segmenter.New(cs.sessionID, userID, language, cs.segCfg, cs.adapter, cs.callStart, cs.logger)
	go p.segmenter.Run(segCtx)
	go cs.pumpSegmenterEvents(p)

	cs.participants[userID] = p

	if cs.state == SessionInitiating {
		cs.state = SessionOngoing
	}

	if cs.br != nil {
		cs.subscribeOnce.Do(func() { go cs.pumpBrokerMessages() })
	}

	if cs.repo != nil {
		if err := cs.repo.MarkParticipantJoined(ctx, cs.sessionID, userID); err != nil {
			cs.logger.Warn().Err(err).Msg("failed to persist participant join")
		}
	}

	cs.logger.Info().Str("user_id", userID).Int("participant_count", len(cs.participants)).Msg("participant joined")
	return p, nil
}

// Leave removes a participant and, if fewer than two remain, ends the
// call for everyone.
func (cs *CallSession) Leave(ctx context.Context, userID string) {
	cs.mu.Lock()
	p, ok := cs.participants[userID]
	if ok {
		delete(cs.participants, userID)
	}
	remaining := len(cs.participants)
	cs.mu.Unlock()

	if !ok {
		return
	}
	p.close()

	if cs.repo != nil {
		if err := cs.repo.MarkParticipantLeft(ctx, cs.sessionID, userID); err != nil {
			cs.logger.Warn().Err(err).Msg("failed to persist participant leave")
		}
	}

	cs.logger.Info().Str("user_id", userID).Int("remaining", remaining).Msg("participant left")

	if remaining < 2 {
		cs.End(ctx, "insufficient participants")
	}
}

// Mute and Unmute toggle a participant's segmenter without ending its
// connection.
func (cs *CallSession) Mute(userID string) {
	cs.mu.RLock()
	p, ok := cs.participants[userID]
	cs.mu.RUnlock()
	if !ok {
		return
	}
	p.muted = true
	p.segmenter.Mute()
}

func (cs *CallSession) Unmute(userID string) {
	cs.mu.RLock()
	p, ok := cs.participants[userID]
	cs.mu.RUnlock()
	if !ok {
		return
	}
	p.muted = false
	p.segmenter.Unmute()
}

// HandleFrame forwards one PCM frame into a speaker's segmenter.
func (cs *CallSession) HandleFrame(userID string, frame []byte) {
	cs.mu.RLock()
	p, ok := cs.participants[userID]
	cs.mu.RUnlock()
	if !ok {
		return
	}
	p.segmenter.Push(frame)
}

// pumpSegmenterEvents consumes one speaker's segmenter events for the
// lifetime of the connection and routes each into deliveries for every
// other connected participant.
func (cs *CallSession) pumpSegmenterEvents(speaker *participant) {
	for ev := range speaker.segmenter.Events() {
		switch ev.Kind {
		case segmenter.EventError:
			cs.notifySpeakerError(speaker, ev.Err)
		case segmenter.EventInterim:
			cs.route(speaker, ev.Text, ev.SourceLang, true, ev.StartMS, ev.EndMS)
		case segmenter.EventFinal:
			cs.route(speaker, ev.Text, ev.SourceLang, false, ev.StartMS, ev.EndMS)
		}
	}
}

func (cs *CallSession) route(speaker *participant, text, sourceLang string, interim bool, startMS, endMS int64) {
	listeners := cs.listenerTargets(speaker.userID)
	if len(listeners) == 0 {
		return
	}

	deliveries := cs.router.Route(context.Background(), router.Utterance{
		SessionID:  cs.sessionID,
		Speaker:    speaker.userID,
		SourceLang: sourceLang,
		Text:       text,
		Interim:    interim,
		StartMS:    startMS,
		EndMS:      endMS,
	}, listeners)

	for _, d := range deliveries {
		cs.deliverTo(d)
	}
}

// deliverTo hands a delivery to its listener. When the listener isn't
// connected to this process, it publishes the delivery on the session's
// broker topic instead of dropping it, so that whichever orchestrator
// process actually holds that listener's connection can pick it up.
func (cs *CallSession) deliverTo(d router.Delivery) {
	kind := outboundInterimTrans
	msgType := protocol.TypeInterimDelivery
	if d.Kind == router.DeliveryFinal {
		kind = outboundFinalTrans
		msgType = protocol.TypeFinalDelivery
	}

	msg := outboundMessage{
		Type:       kind,
		Speaker:    d.Speaker,
		Seq:        d.Seq,
		SourceLang: d.SourceLang,
		SourceText: d.SourceText,
		TargetLang: d.TargetLang,
		Text:       d.TranslatedText,
		Degraded:   d.Degraded,
		HasAudio:   len(d.Audio) > 0,
		StartMS:    d.StartMS,
		EndMS:      d.EndMS,
	}

	if cs.deliverLocal(d.Listener, msg, d.Audio) {
		return
	}
	if cs.br == nil {
		return
	}

	err := cs.br.Publish(context.Background(), cs.sessionID, msgType, protocol.DeliveryMessage{
		SessionID:      cs.sessionID,
		Speaker:        d.Speaker,
		Listener:       d.Listener,
		Seq:            d.Seq,
		SourceLang:     d.SourceLang,
		SourceText:     d.SourceText,
		TargetLang:     d.TargetLang,
		TranslatedText: d.TranslatedText,
		Audio:          d.Audio,
		Degraded:       d.Degraded,
		StartMS:        d.StartMS,
		EndMS:          d.EndMS,
	})
	if err != nil {
		cs.logger.Warn().Err(err).Str("listener", d.Listener).Msg("failed to publish delivery to broker")
	}
}

// deliverLocal hands msg to listenerID if it is connected to this
// process, reporting whether it found a local participant to deliver
// to.
func (cs *CallSession) deliverLocal(listenerID string, msg outboundMessage, audio []byte) bool {
	cs.mu.RLock()
	p, ok := cs.participants[listenerID]
	cs.mu.RUnlock()
	if !ok {
		return false
	}

	if msg.Type == outboundInterimTrans {
		p.enqueueInterim(msg)
		return true
	}

	if !p.enqueueFinal(outboundEnvelope{msg: msg, audio: audio}) {
		cs.logger.Warn().Str("user_id", p.userID).Msg("slow consumer, disconnecting listener")
		cs.Leave(context.Background(), p.userID)
	}
	return true
}

// pumpBrokerMessages relays deliveries published by other orchestrator
// processes to this process's locally-connected participants, for the
// lifetime of the session.
func (cs *CallSession) pumpBrokerMessages() {
	ch, unsubscribe, err := cs.br.Subscribe(cs.brokerCtx, cs.sessionID)
	if err != nil {
		cs.logger.Warn().Err(err).Msg("failed to subscribe to broker topic")
		return
	}
	defer unsubscribe()

	for msg := range ch {
		cs.handleBrokerMessage(msg)
	}
}

func (cs *CallSession) handleBrokerMessage(msg broker.Message) {
	switch msg.Envelope.Type {
	case protocol.TypeInterimDelivery, protocol.TypeFinalDelivery:
		var d protocol.DeliveryMessage
		if err := msg.Envelope.DecodePayload(&d); err != nil {
			cs.logger.Warn().Err(err).Msg("dropping malformed broker delivery")
			return
		}

		kind := outboundInterimTrans
		if msg.Envelope.Type == protocol.TypeFinalDelivery {
			kind = outboundFinalTrans
		}

		cs.deliverLocal(d.Listener, outboundMessage{
			Type:       kind,
			Speaker:    d.Speaker,
			Seq:        d.Seq,
			SourceLang: d.SourceLang,
			SourceText: d.SourceText,
			TargetLang: d.TargetLang,
			Text:       d.TranslatedText,
			Degraded:   d.Degraded,
			HasAudio:   len(d.Audio) > 0,
			StartMS:    d.StartMS,
			EndMS:      d.EndMS,
		}, d.Audio)
	}
}

func (cs *CallSession) notifySpeakerError(speaker *participant, err error) {
	kind := callerr.KindRecognitionUnavailable
	if k, ok := callerr.KindOf(err); ok {
		kind = k
	}
	msg := outboundMessage{Type: outboundError, Reason: string(kind)}
	if !speaker.enqueueFinal(outboundEnvelope{msg: msg}) {
		cs.logger.Warn().Str("user_id", speaker.userID).Msg("slow consumer, disconnecting speaker")
		cs.Leave(context.Background(), speaker.userID)
	}
}

// listenerTargets returns every connected participant other than
// speakerID as a router.ListenerTarget.
func (cs *CallSession) listenerTargets(speakerID string) []router.ListenerTarget {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	targets := make([]router.ListenerTarget, 0, len(cs.participants))
	for userID, p := range cs.participants {
		if userID == speakerID || p.state != ParticipantConnected {
			continue
		}
		targets = append(targets, router.ListenerTarget{
			ListenerID: userID,
			Language:   p.language,
			VoiceID:    p.voiceID,
		})
	}
	return targets
}

// End tears the call down: every participant's segmenter is cancelled,
// a call_ended notice is broadcast, and the router's session context is
// released.
func (cs *CallSession) End(ctx context.Context, reason string) {
	cs.mu.Lock()
	if cs.state == SessionEnded {
		cs.mu.Unlock()
		return
	}
	cs.state = SessionEnded
	parts := make([]*participant, 0, len(cs.participants))
	for _, p := range cs.participants {
		parts = append(parts, p)
	}
	cs.participants = make(map[string]*participant)
	cs.mu.Unlock()

	msg := outboundMessage{Type: outboundCallEnded, Reason: reason}
	for _, p := range parts {
		p.enqueueFinal(outboundEnvelope{msg: msg})
		p.close()
	}

	cs.router.EndSession(cs.sessionID)
	cs.brokerCancel()

	if cs.repo != nil {
		if err := cs.repo.MarkSessionEnded(ctx, cs.sessionID); err != nil {
			cs.logger.Warn().Err(err).Msg("failed to persist session end")
		}
	}

	cs.logger.Info().Str("reason", reason).Msg("call session ended")

	if cs.onEnded != nil {
		cs.onEnded(cs.sessionID)
	}
}

// State returns the session's current lifecycle state.
func (cs *CallSession) State() SessionState {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.state
}
