package synth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/shravan/tts"
)

// maxResponseBytes caps how much audio a single response may carry.
const maxResponseBytes = 64 * 1024 * 1024

// errorBodyBytes is how much of a failure body is kept for diagnostics.
const errorBodyBytes = 512

// HTTPConfig configures the POST-style synthesis client.
type HTTPConfig struct {
	Endpoint          string
	Token             string
	Format            string // Expected encoding of raw responses
	Timeout           time.Duration
	RequestsPerMinute int
}

// HTTPSynthesizer speaks the one-shot provider protocol: POST the text
// and language, get back either raw audio bytes or a JSON envelope of
// base64 audio plus word timepoints. One call is one attempt; retry
// policy lives with the caller.
type HTTPSynthesizer struct {
	endpoint string
	token    string
	format   tts.AudioFormat
	timeout  time.Duration
	client   *http.Client
	limiter  *rate.Limiter
	logger   *log.Logger
}

// synthesisEnvelope is the structured provider response shape.
type synthesisEnvelope struct {
	AudioContent string          `json:"audioContent"`
	Timepoints   []envelopePoint `json:"timepoints"`
}

// envelopePoint tolerates both numeric word indices and mark-name
// strings, since providers disagree on the field.
type envelopePoint struct {
	WordIndex   *int    `json:"wordIndex"`
	MarkName    string  `json:"markName"`
	TimeSeconds float64 `json:"timeSeconds"`
}

// NewHTTPSynthesizer creates the POST-style client.
func NewHTTPSynthesizer(cfg HTTPConfig, logger *log.Logger) *HTTPSynthesizer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 60
	}

	format, _ := tts.ParseAudioFormat(cfg.Format)

	return &HTTPSynthesizer{
		endpoint: cfg.Endpoint,
		token:    cfg.Token,
		format:   format,
		timeout:  timeout,
		client:   &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
		logger:   logger,
	}
}

// Name identifies the provider in errors and logs.
func (s *HTTPSynthesizer) Name() string {
	return "http"
}

// Validate checks that the client can possibly reach a provider.
func (s *HTTPSynthesizer) Validate() error {
	if s.endpoint == "" {
		return tts.NewError(tts.KindConfiguration, "synth.http", tts.ErrNoProviderConfigured)
	}
	parsed, err := url.Parse(s.endpoint)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return tts.NewError(tts.KindConfiguration, "synth.http",
			fmt.Errorf("%w: endpoint %q", tts.ErrInvalidConfig, s.endpoint))
	}
	return nil
}

// Synthesize performs one provider call. The configured timeout bounds
// the whole request; cancellation of ctx aborts it immediately.
func (s *HTTPSynthesizer) Synthesize(ctx context.Context, req tts.SynthesisRequest) (*tts.SynthesisResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, s.classify(err)
	}

	payload, err := json.Marshal(map[string]string{
		"text": req.Text,
		"lang": req.Language,
	})
	if err != nil {
		return nil, fmt.Errorf("encode synthesis request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build synthesis request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.token)
	}
	if req.RequestID != "" {
		httpReq.Header.Set("X-Request-ID", req.RequestID)
	}

	start := time.Now()
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, s.classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyBytes))
		return nil, &tts.SynthesisError{
			Provider: s.Name(),
			Status:   resp.StatusCode,
			Body:     strings.TrimSpace(string(body)),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, s.classify(err)
	}

	result, err := s.decode(resp.Header.Get("Content-Type"), data)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Synthesis complete",
		"provider", s.Name(),
		"requestID", req.RequestID,
		"lang", req.Language,
		"bytes", len(result.Audio.Data),
		"timepoints", len(result.Timepoints),
		"elapsed", time.Since(start))

	return result, nil
}

// decode normalizes the two wire shapes into one result.
func (s *HTTPSynthesizer) decode(contentType string, data []byte) (*tts.SynthesisResult, error) {
	if strings.Contains(contentType, "application/json") {
		return s.decodeEnvelope(data)
	}

	if len(data) == 0 {
		return nil, &tts.SynthesisError{Provider: s.Name(), Body: "empty audio response"}
	}
	return &tts.SynthesisResult{
		Audio:    tts.Audio{Data: data, Format: s.format},
		Provider: s.Name(),
	}, nil
}

func (s *HTTPSynthesizer) decodeEnvelope(data []byte) (*tts.SynthesisResult, error) {
	var envelope synthesisEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, &tts.SynthesisError{Provider: s.Name(), Body: "malformed envelope: " + err.Error()}
	}

	audio, err := base64.StdEncoding.DecodeString(envelope.AudioContent)
	if err != nil || len(audio) == 0 {
		return nil, &tts.SynthesisError{Provider: s.Name(), Body: "envelope carried no decodable audio"}
	}

	return &tts.SynthesisResult{
		Audio:      tts.Audio{Data: audio, Format: s.format},
		Timepoints: decodePoints(envelope.Timepoints),
		Provider:   s.Name(),
	}, nil
}

// decodePoints converts envelope timepoints, tolerating mark-name
// indices and skipping entries that name no word.
func decodePoints(points []envelopePoint) []tts.Timepoint {
	if len(points) == 0 {
		return nil
	}

	out := make([]tts.Timepoint, 0, len(points))
	for _, p := range points {
		index := -1
		switch {
		case p.WordIndex != nil:
			index = *p.WordIndex
		case p.MarkName != "":
			parsed, err := strconv.Atoi(p.MarkName)
			if err != nil {
				continue
			}
			index = parsed
		}
		if index < 0 || p.TimeSeconds < 0 {
			continue
		}
		out = append(out, tts.Timepoint{WordIndex: index, TimeSeconds: p.TimeSeconds})
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// classify maps transport errors onto the engine taxonomy. A canceled
// context passes through untouched so supersession is not mistaken for
// a provider fault.
func (s *HTTPSynthesizer) classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return tts.NewError(tts.KindTimeout, "synth.http", err)
	}
	return tts.NewError(tts.KindSynthesis, "synth.http", err)
}
