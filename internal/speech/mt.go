package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/voxbridge/callcore/internal/callerr"
)

// circuitState represents the state of the circuit breaker.
type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
)

type mtRequest struct {
	Text       string `json:"text"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
}

type mtResponse struct {
	TranslatedText string `json:"translated_text"`
}

// CircuitMTConfig configures the circuit-breaking machine-translation client.
type CircuitMTConfig struct {
	URL              string
	APIKey           string
	Timeout          time.Duration
	CircuitBreaker   bool
	FailureThreshold int
	MaxLatency       time.Duration
}

// CircuitMT is an HTTP machine-translation client with a circuit
// breaker that trips after consecutive high-latency or failed calls,
// so a struggling translation provider can't stall every utterance in
// every session.
type CircuitMT struct {
	mu               sync.RWMutex
	cfg              CircuitMTConfig
	httpClient       *http.Client
	logger           zerolog.Logger
	consecutiveFails int
	state            circuitState
	lastFailure      time.Time
}

// NewCircuitMT creates a new translation client.
func NewCircuitMT(cfg CircuitMTConfig, logger zerolog.Logger) *CircuitMT {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 3 * time.Second
	}
	return &CircuitMT{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "mt-client").Logger(),
		state:      circuitClosed,
	}
}

// Translate performs a synchronous HTTP translation, deterministic for
// identical inputs from the provider's point of view (the router layers
// its own cache on top; this client does not cache).
func (c *CircuitMT) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if sourceLang == targetLang {
		return text, nil
	}

	if err := c.checkCircuit(); err != nil {
		return "", err
	}

	start := time.Now()

	reqBody := mtRequest{Text: text, SourceLang: sourceLang, TargetLang: targetLang}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", callerr.Wrap(callerr.KindTranslationUnavailable, "marshal request", err)
	}

	url := fmt.Sprintf("%s/translate", c.cfg.URL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", callerr.Wrap(callerr.KindTranslationUnavailable, "create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordFailure()
		return "", callerr.Wrap(callerr.KindTranslationUnavailable, "http request", err)
	}
	defer resp.Body.Close()

	latency := time.Since(start)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.recordFailure()
		return "", callerr.New(callerr.KindTranslationUnavailable, fmt.Sprintf("mt API returned %d: %s", resp.StatusCode, body))
	}

	var result mtResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		c.recordFailure()
		return "", callerr.Wrap(callerr.KindTranslationUnavailable, "decode response", err)
	}

	c.recordLatency(latency)

	c.logger.Debug().
		Str("source_lang", sourceLang).
		Str("target_lang", targetLang).
		Dur("latency", latency).
		Int("text_len", len(text)).
		Msg("translation completed")

	return result.TranslatedText, nil
}

func (c *CircuitMT) checkCircuit() error {
	if !c.cfg.CircuitBreaker {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state == circuitOpen {
		return callerr.New(callerr.KindTranslationUnavailable,
			fmt.Sprintf("circuit breaker open after %d consecutive failures", c.cfg.FailureThreshold))
	}
	return nil
}

func (c *CircuitMT) recordFailure() {
	if !c.cfg.CircuitBreaker {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutiveFails++
	c.lastFailure = time.Now()
	if c.consecutiveFails >= c.cfg.FailureThreshold {
		c.state = circuitOpen
		c.logger.Warn().
			Int("consecutive_failures", c.consecutiveFails).
			Msg("mt circuit breaker opened")
	}
}

func (c *CircuitMT) recordLatency(latency time.Duration) {
	if !c.cfg.CircuitBreaker {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if latency > c.cfg.MaxLatency {
		c.consecutiveFails++
		if c.consecutiveFails >= c.cfg.FailureThreshold {
			c.state = circuitOpen
			c.logger.Warn().
				Int("consecutive_failures", c.consecutiveFails).
				Msg("mt circuit breaker opened on latency")
		}
		return
	}
	c.consecutiveFails = 0
}

// ResetCircuit manually resets the circuit breaker to closed state.
func (c *CircuitMT) ResetCircuit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = circuitClosed
	c.consecutiveFails = 0
}

// IsCircuitOpen returns true if the circuit breaker is currently open.
func (c *CircuitMT) IsCircuitOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == circuitOpen
}

var _ Translator = (*CircuitMT)(nil)
