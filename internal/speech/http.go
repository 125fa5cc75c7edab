package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/voxbridge/callcore/internal/audio"
	"github.com/voxbridge/callcore/internal/callerr"
)

// HTTPSTTConfig configures an HTTP-backed recognizer.
type HTTPSTTConfig struct {
	APIURL  string // e.g. "https://api.openai.com/v1/audio/transcriptions"
	APIKey  string
	Model   string // e.g. "whisper-1"
	Timeout time.Duration
}

// HTTPSTT recognizes speech via a Whisper-compatible HTTP API. It has
// no native streaming support, so it buffers all frames for an
// utterance and issues one request on close — the finals-only fallback
// §4.A permits for providers that don't support interim partials.
type HTTPSTT struct {
	httpClient *http.Client
	apiURL     string
	apiKey     string
	model      string
	logger     zerolog.Logger
}

type sttResponse struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

// NewHTTPSTT creates a new Whisper-compatible recognizer.
func NewHTTPSTT(cfg HTTPSTTConfig, logger zerolog.Logger) *HTTPSTT {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSTT{
		httpClient: &http.Client{Timeout: timeout},
		apiURL:     cfg.APIURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		logger:     logger.With().Str("component", "stt-http").Logger(),
	}
}

// Recognize buffers all frames until audio closes, then transcribes
// the accumulated PCM in one request, emitting a single final result.
func (c *HTTPSTT) Recognize(ctx context.Context, audioIn <-chan []byte, language string) (<-chan RecognitionResult, error) {
	out := make(chan RecognitionResult, 1)
	go func() {
		defer close(out)

		var pcm bytes.Buffer
		for {
			select {
			case <-ctx.Done():
				return
			case frame, ok := <-audioIn:
				if !ok {
					goto transcribe
				}
				pcm.Write(frame)
			}
		}
	transcribe:
		if pcm.Len() == 0 {
			return
		}

		text, err := c.transcribe(ctx, pcm.Bytes(), language)
		if err != nil {
			c.logger.Warn().Err(err).Str("language", language).Msg("stt request failed")
			return
		}

		select {
		case out <- RecognitionResult{Text: text, IsFinal: true, Confidence: 1}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

func (c *HTTPSTT) transcribe(ctx context.Context, pcm []byte, language string) (string, error) {
	start := time.Now()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", callerr.Wrap(callerr.KindRecognitionUnavailable, "create form file", err)
	}
	if _, err := part.Write(audio.WrapWAV(pcm)); err != nil {
		return "", callerr.Wrap(callerr.KindRecognitionUnavailable, "write audio data", err)
	}
	if err := writer.WriteField("model", c.model); err != nil {
		return "", callerr.Wrap(callerr.KindRecognitionUnavailable, "write model field", err)
	}
	if language != "" {
		if err := writer.WriteField("language", language); err != nil {
			return "", callerr.Wrap(callerr.KindRecognitionUnavailable, "write language field", err)
		}
	}
	if err := writer.WriteField("response_format", "json"); err != nil {
		return "", callerr.Wrap(callerr.KindRecognitionUnavailable, "write format field", err)
	}
	if err := writer.Close(); err != nil {
		return "", callerr.Wrap(callerr.KindRecognitionUnavailable, "close multipart writer", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, &body)
	if err != nil {
		return "", callerr.Wrap(callerr.KindRecognitionUnavailable, "create request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", callerr.Wrap(callerr.KindRecognitionUnavailable, "http request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", callerr.New(callerr.KindRecognitionUnavailable, fmt.Sprintf("stt API returned %d: %s", resp.StatusCode, respBody))
	}

	var result sttResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", callerr.Wrap(callerr.KindRecognitionUnavailable, "decode response", err)
	}

	c.logger.Debug().
		Dur("latency", time.Since(start)).
		Str("language", language).
		Int("audio_bytes", len(pcm)).
		Int("text_len", len(result.Text)).
		Msg("transcription completed")

	return result.Text, nil
}

// HTTPTTSConfig configures an HTTP-backed synthesizer.
type HTTPTTSConfig struct {
	APIURL       string // e.g. "https://api.openai.com/v1/audio/speech"
	APIKey       string
	DefaultVoice string
	Timeout      time.Duration
}

// HTTPTTS synthesizes speech via an OpenAI-compatible HTTP API,
// returning 16kHz mono 16-bit LE PCM.
type HTTPTTS struct {
	httpClient   *http.Client
	apiURL       string
	apiKey       string
	defaultVoice string
	logger       zerolog.Logger
}

type ttsRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

// NewHTTPTTS creates a new OpenAI-compatible synthesizer.
func NewHTTPTTS(cfg HTTPTTSConfig, logger zerolog.Logger) *HTTPTTS {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	voice := cfg.DefaultVoice
	if voice == "" {
		voice = "alloy"
	}
	return &HTTPTTS{
		httpClient:   &http.Client{Timeout: timeout},
		apiURL:       cfg.APIURL,
		apiKey:       cfg.APIKey,
		defaultVoice: voice,
		logger:       logger.With().Str("component", "tts-http").Logger(),
	}
}

// Synthesize converts text to 16kHz mono 16-bit LE PCM via the
// configured HTTP API, requesting raw PCM output directly.
func (c *HTTPTTS) Synthesize(ctx context.Context, text, targetLang, voiceID string) ([]byte, error) {
	start := time.Now()

	voice := voiceID
	if voice == "" {
		voice = c.defaultVoice
	}

	reqBody := ttsRequest{
		Model:          "tts-1",
		Input:          text,
		Voice:          voice,
		ResponseFormat: "pcm",
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, callerr.Wrap(callerr.KindSynthesisUnavailable, "marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, callerr.Wrap(callerr.KindSynthesisUnavailable, "create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, callerr.Wrap(callerr.KindSynthesisUnavailable, "http request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, callerr.New(callerr.KindSynthesisUnavailable, fmt.Sprintf("tts API returned %d: %s", resp.StatusCode, respBody))
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, callerr.Wrap(callerr.KindSynthesisUnavailable, "read response body", err)
	}

	c.logger.Debug().
		Dur("latency", time.Since(start)).
		Str("target_lang", targetLang).
		Int("text_len", len(text)).
		Int("audio_bytes", len(pcm)).
		Msg("speech synthesis completed")

	return pcm, nil
}

var (
	_ Recognizer  = (*HTTPSTT)(nil)
	_ Synthesizer = (*HTTPTTS)(nil)
)
