package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sotto-ai/sotto/internal/audio"
	"github.com/sotto-ai/sotto/internal/claims"
	"github.com/sotto-ai/sotto/internal/costs"
	"github.com/sotto-ai/sotto/internal/eventlog"
	"github.com/sotto-ai/sotto/internal/store"
	"github.com/sotto-ai/sotto/internal/stt"
	"github.com/sotto-ai/sotto/internal/tts"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// maxRecentSegments bounds the rolling transcript buffer handed to claim
// detection as context. Oldest segments are evicted first.
const maxRecentSegments = 10

// defaultWhisperGain is the amplitude factor applied to correction audio so
// it plays as a whisper under the conversation.
const defaultWhisperGain = 0.35

// Twilio Media Stream message types
type twilioMessage struct {
	Event     string       `json:"event"`
	Media     *twilioMedia `json:"media,omitempty"`
	Start     *twilioStart `json:"start,omitempty"`
	StreamSid string       `json:"streamSid,omitempty"`
}

type twilioMedia struct {
	Track     string `json:"track"`
	Chunk     string `json:"chunk"`
	Timestamp string `json:"timestamp"`
	Payload   string `json:"payload"` // Base64 μ-law audio
}

type twilioStart struct {
	StreamSid    string            `json:"streamSid"`
	AccountSid   string            `json:"accountSid"`
	CallSid      string            `json:"callSid"`
	Tracks       []string          `json:"tracks"`
	CustomParams map[string]string `json:"customParameters"`
	MediaFormat  struct {
		Encoding   string `json:"encoding"`
		SampleRate int    `json:"sampleRate"`
		Channels   int    `json:"channels"`
	} `json:"mediaFormat"`
}

// twilioOutboundMedia is the format for sending audio back to Twilio
type twilioOutboundMedia struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid"`
	Media     struct {
		Payload string `json:"payload"` // Base64 μ-law audio
	} `json:"media"`
}

// Session states. The session moves strictly forward through these.
const (
	stateConnecting = iota
	stateActive
	stateClosing
	stateClosed
)

// callSession manages a single call's fact-check session: inbound audio to
// the transcription bridge, final segments through the claim pipeline, and
// whispered corrections back onto the wire.
type callSession struct {
	// Call identifiers are latched by the read loop but read from
	// fact-check goroutines, so access goes through idMu.
	idMu      sync.Mutex
	callSid   string
	streamSid string
	callID    string // DB call ID

	conn   *websocket.Conn
	connMu sync.Mutex

	state   int
	stateMu sync.Mutex

	sttClient stt.Client
	// sttDial opens the transcription stream. Nil means Deepgram;
	// tests substitute their own.
	sttDial  func(ctx context.Context, cfg stt.DeepgramConfig) (stt.Client, error)
	pipeline *claims.Pipeline
	synth    tts.Synthesizer

	st       *store.Store
	eventLog *eventlog.Logger
	notify   correctionNotifier
	logger   *log.Logger
	cfg      RouterConfig

	// Rolling transcript buffer: the last maxRecentSegments final segments,
	// context for claim detection. Not persisted.
	recentMu sync.Mutex
	recent   []string

	// Usage accounting for the cost record written at session end.
	startedAt      time.Time
	usageMu        sync.Mutex
	llmInputChars  int
	llmOutputChars int
	ttsChars       int

	ctx    context.Context
	cancel context.CancelFunc
}

// correctionNotifier is the slice of the Discord notifier the session uses.
type correctionNotifier interface {
	NotifyCorrection(ctx context.Context, callSid, claim, correction string)
	NotifySTTFailure(ctx context.Context, callSid string, cause error)
}

func (r *Router) handleMediaWS(w http.ResponseWriter, req *http.Request) {
	if r.cfg.DeepgramAPIKey == "" || r.cfg.OpenAIAPIKey == "" || r.cfg.ElevenLabsAPIKey == "" {
		r.logger.Printf("media_ws: missing API keys")
		captureError(req, fmt.Errorf("fact checking not configured: missing API keys"), "media_ws: configuration error")
		http.Error(w, "fact checking not configured", http.StatusServiceUnavailable)
		return
	}

	if !r.calls.Add() {
		r.logger.Printf("media_ws: draining, rejecting new call")
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	defer r.calls.Done()

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Printf("media_ws: upgrade failed: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(req.Context())

	session := &callSession{
		conn:      conn,
		state:     stateConnecting,
		pipeline:  r.pipeline,
		synth:     r.synth,
		st:        r.store,
		eventLog:  r.eventLog,
		notify:    r.discord,
		logger:    r.logger,
		cfg:       r.cfg,
		startedAt: time.Now().UTC(),
		ctx:       ctx,
		cancel:    cancel,
	}

	r.logger.Printf("media_ws: connection established, waiting for start message")

	session.run()
}

func (s *callSession) run() {
	defer s.cleanup()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			callSid, _, _ := s.ids()
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Printf("media_ws: connection closed for call %s", callSid)
			} else {
				s.logger.Printf("media_ws: read error for call %s: %v", callSid, err)
			}
			return
		}

		var twilioMsg twilioMessage
		if err := json.Unmarshal(msg, &twilioMsg); err != nil {
			s.logger.Printf("media_ws: failed to parse message: %v", err)
			continue
		}

		switch twilioMsg.Event {
		case "connected":
			s.logger.Printf("media_ws: Twilio connected")

		case "start":
			if err := s.handleStart(twilioMsg.Start); err != nil {
				s.logger.Printf("media_ws: start error: %v", err)
				return
			}

		case "media":
			s.handleMedia(&twilioMsg)

		case "stop":
			callSid, _, _ := s.ids()
			s.logger.Printf("media_ws: stream stopped for call %s", callSid)
			return

		default:
			// Unknown event types pass through without error.
		}
	}
}

func (s *callSession) handleStart(start *twilioStart) error {
	if start == nil {
		return fmt.Errorf("nil start message")
	}

	callSid := start.CallSid
	if callSid == "" {
		callSid = start.CustomParams["callSid"]
	}

	s.logger.Printf("media_ws: stream started - StreamSid: %s, CallSid: %s", start.StreamSid, callSid)

	// Get call ID from database now that we have callSid
	var callID string
	if callSid != "" && s.st != nil {
		id, err := s.st.GetCallID(s.ctx, callSid)
		if err != nil {
			s.logger.Printf("media_ws: failed to get call ID for %s: %v", callSid, err)
		} else {
			callID = id
		}
	}
	s.latchIDs(callSid, start.StreamSid, callID)

	endpointing := s.cfg.STTEndpointingMs
	if endpointing <= 0 {
		endpointing = 800
	}

	dial := s.sttDial
	if dial == nil {
		dial = func(ctx context.Context, cfg stt.DeepgramConfig) (stt.Client, error) {
			return stt.NewDeepgramClient(ctx, cfg)
		}
	}

	// Connect to Deepgram in the telephony-native format so inbound audio
	// needs no conversion.
	sttClient, err := dial(s.ctx, stt.DeepgramConfig{
		APIKey:      s.cfg.DeepgramAPIKey,
		Language:    "en-US",
		Model:       "nova-3",
		SampleRate:  audio.TelephonySampleRate,
		Encoding:    "mulaw",
		Channels:    1,
		Punctuate:   true,
		Endpointing: endpointing,
	})
	if err != nil {
		// Transcription is degraded, not fatal: the call leg stays up
		// and simply produces no transcript.
		s.logger.Printf("media_ws: failed to connect to Deepgram: %v", err)
		s.logEvent(eventlog.EventSTTError, map[string]any{"error": err.Error()})
		if s.notify != nil {
			s.notify.NotifySTTFailure(context.Background(), callSid, err)
		}
		s.setState(stateActive)
		return nil
	}
	s.sttClient = sttClient

	s.setState(stateActive)
	s.logEvent(eventlog.EventStreamStarted, map[string]any{"stream_sid": start.StreamSid})

	go s.processTranscripts()

	return nil
}

// latchIDs records newly learned call identifiers. Empty arguments leave
// the current value in place.
func (s *callSession) latchIDs(callSid, streamSid, callID string) {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	if callSid != "" {
		s.callSid = callSid
	}
	if streamSid != "" {
		s.streamSid = streamSid
	}
	if callID != "" {
		s.callID = callID
	}
}

func (s *callSession) ids() (callSid, streamSid, callID string) {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	return s.callSid, s.streamSid, s.callID
}

func (s *callSession) handleMedia(msg *twilioMessage) {
	if msg.Media == nil {
		return
	}

	// Defensive fallback: if the start event was missed, the stream SID on
	// the media message still lets us frame outbound audio.
	if _, streamSid, _ := s.ids(); streamSid == "" && msg.StreamSid != "" {
		s.latchIDs("", msg.StreamSid, "")
	}

	if s.sttClient == nil {
		return
	}

	payload, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
	if err != nil {
		s.logger.Printf("media_ws: failed to decode audio: %v", err)
		return
	}

	if err := s.sttClient.Send(s.ctx, payload); err != nil {
		s.logger.Printf("media_ws: stt send error: %v", err)
	}
}

// processTranscripts consumes the transcription bridge. Only final segments
// feed the claim pipeline; interim results exist for future use and are
// ignored here. Each final segment spawns an independent fact-check task so
// a slow verification never blocks the next segment.
func (s *callSession) processTranscripts() {
	for {
		select {
		case <-s.ctx.Done():
			return

		case err := <-s.sttClient.Errors():
			if err != nil {
				s.logger.Printf("media_ws: STT error: %v", err)
				s.logEvent(eventlog.EventSTTError, map[string]any{"error": err.Error()})
				if s.notify != nil {
					callSid, _, _ := s.ids()
					s.notify.NotifySTTFailure(context.Background(), callSid, err)
				}
			}
			// The call continues with transcription absent.
			return

		case result, ok := <-s.sttClient.Results():
			if !ok {
				return
			}

			if !result.IsFinal || result.Text == "" {
				continue
			}

			s.logger.Printf("media_ws: heard: %s", result.Text)

			recentContext := s.appendSegment(result.Text)

			// Fire and forget: the task is never joined. If the call ends
			// first, the result is discarded at delivery time.
			go s.factCheck(recentContext, result.Text)
		}
	}
}

// appendSegment pushes text onto the rolling buffer and returns a snapshot
// of the context lines preceding it.
func (s *callSession) appendSegment(text string) []string {
	s.recentMu.Lock()
	defer s.recentMu.Unlock()

	recentContext := make([]string, len(s.recent))
	copy(recentContext, s.recent)

	s.recent = append(s.recent, text)
	if len(s.recent) > maxRecentSegments {
		s.recent = s.recent[len(s.recent)-maxRecentSegments:]
	}

	return recentContext
}

// factCheck runs the detect/verify pipeline for one final segment and, on a
// resolved correction, whispers it into the call. The LLM calls run on a
// background context: an in-flight task is allowed to finish after the call
// closes, and delivery checks the socket state instead.
func (s *callSession) factCheck(recentContext []string, segment string) {
	s.countLLMInput(segment, recentContext)

	claim := s.pipeline.Detect(context.Background(), recentContext, segment)
	if claim == "" {
		return
	}

	s.logger.Printf("media_ws: claim detected: %s", claim)
	s.logEvent(eventlog.EventClaimDetected, map[string]any{"claim": claim})
	s.countLLMOutput(claim)

	correction := s.pipeline.Verify(context.Background(), claim)
	s.logEvent(eventlog.EventClaimVerified, map[string]any{
		"claim":     claim,
		"corrected": correction != "",
	})
	if correction == "" {
		return
	}

	s.logger.Printf("media_ws: correction: %s", correction)
	s.countLLMOutput(correction)
	s.whisper(claim, correction)
}

// whisper synthesizes the correction, converts it to attenuated telephony
// audio and delivers it frame by frame. A call that ended mid-verification
// loses the whisper silently.
func (s *callSession) whisper(claim, correction string) {
	pcm, err := s.synth.Synthesize(context.Background(), correction)
	if err != nil {
		s.logger.Printf("media_ws: synthesis failed: %v", err)
		s.logEvent(eventlog.EventSynthesisFailed, map[string]any{"error": err.Error()})
		return
	}

	s.usageMu.Lock()
	s.ttsChars += len(correction)
	s.usageMu.Unlock()

	gain := s.cfg.WhisperGain
	if gain <= 0 {
		gain = defaultWhisperGain
	}
	mulaw := whisperMuLaw(pcm, s.synth.SampleRate(), gain)

	callSid, _, callID := s.ids()

	delivered := s.deliver(mulaw)
	if delivered {
		s.logEvent(eventlog.EventCorrectionSent, map[string]any{
			"claim":      claim,
			"correction": correction,
			"bytes":      len(mulaw),
		})
		if s.notify != nil {
			s.notify.NotifyCorrection(context.Background(), callSid, claim, correction)
		}
	} else {
		s.logger.Printf("media_ws: correction dropped, call no longer open")
		s.logEvent(eventlog.EventCorrectionDropped, map[string]any{"claim": claim})
	}

	if s.st != nil && callID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.st.InsertCorrection(ctx, callID, store.Correction{
			Claim:      claim,
			Correction: correction,
			Delivered:  delivered,
			CreatedAt:  time.Now().UTC(),
		})
	}
}

// whisperMuLaw converts linear PCM at srcRate into attenuated telephony
// μ-law: resample to 8kHz, compand, then scale down to whisper level.
func whisperMuLaw(pcm []byte, srcRate int, gain float64) []byte {
	samples := pcmToSamples(pcm)
	samples = audio.Resample(samples, srcRate, audio.TelephonySampleRate)
	encoded := audio.EncodeMuLaw(samples)
	return audio.Attenuate(encoded, gain)
}

// pcmToSamples reinterprets little-endian 16-bit PCM bytes as samples.
// A trailing odd byte is dropped.
func pcmToSamples(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples
}

// deliver sends μ-law audio to Twilio in fixed-size frames. Delivery
// requires an open socket and a known stream SID; when either is missing
// the remaining frames are dropped rather than buffered.
func (s *callSession) deliver(mulaw []byte) bool {
	_, streamSid, _ := s.ids()
	if streamSid == "" {
		return false
	}

	sent := false
	for frame := range audio.Frames(mulaw, audio.FrameSize) {
		if !s.isOpen() {
			return sent
		}

		outMsg := twilioOutboundMedia{
			Event:     "media",
			StreamSid: streamSid,
		}
		outMsg.Media.Payload = base64.StdEncoding.EncodeToString(frame)

		s.connMu.Lock()
		err := s.conn.WriteJSON(outMsg)
		s.connMu.Unlock()

		if err != nil {
			s.logger.Printf("media_ws: failed to send audio: %v", err)
			return sent
		}
		sent = true
	}
	return sent
}

func (s *callSession) setState(state int) {
	s.stateMu.Lock()
	s.state = state
	s.stateMu.Unlock()
}

// isOpen reports whether the session still accepts outbound audio.
func (s *callSession) isOpen() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state == stateActive
}

func (s *callSession) countLLMInput(segment string, recentContext []string) {
	chars := len(segment)
	for _, line := range recentContext {
		chars += len(line)
	}
	s.usageMu.Lock()
	s.llmInputChars += chars
	s.usageMu.Unlock()
}

func (s *callSession) countLLMOutput(text string) {
	s.usageMu.Lock()
	s.llmOutputChars += len(text)
	s.usageMu.Unlock()
}

func (s *callSession) logEvent(eventType eventlog.EventType, data map[string]any) {
	if s.eventLog != nil {
		_, _, callID := s.ids()
		s.eventLog.LogAsync(callID, eventType, data)
	}
}

func (s *callSession) cleanup() {
	s.setState(stateClosing)
	s.cancel()

	if s.sttClient != nil {
		_ = s.sttClient.Close()
	}

	s.connMu.Lock()
	_ = s.conn.Close()
	s.connMu.Unlock()

	s.setState(stateClosed)

	s.recordUsage()

	callSid, _, callID := s.ids()
	if s.st != nil && callID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.st.UpdateCallStatus(ctx, callSid, "completed", time.Now().UTC())
	}

	s.logEvent(eventlog.EventCallEnded, nil)
	s.logger.Printf("media_ws: session cleaned up for call %s", callSid)
}

// recordUsage writes the usage/cost row for this call. Token counts are
// estimated from character counts (~4 chars per token).
func (s *callSession) recordUsage() {
	_, _, callID := s.ids()
	if s.st == nil || callID == "" {
		return
	}

	s.usageMu.Lock()
	metrics := costs.CallMetrics{
		CallDurationSeconds: int(time.Since(s.startedAt).Seconds()),
		STTDurationSeconds:  int(time.Since(s.startedAt).Seconds()),
		LLMInputTokens:      s.llmInputChars / 4,
		LLMOutputTokens:     s.llmOutputChars / 4,
		TTSCharacters:       s.ttsChars,
	}
	s.usageMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.st.InsertUsage(ctx, callID, metrics, costs.CalculateCallCosts(metrics)); err != nil {
		s.logger.Printf("media_ws: failed to record usage: %v", err)
	}
}
