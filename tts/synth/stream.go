package synth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/dgnsrekt/shravan/tts"
)

// StreamConfig configures the websocket synthesis client.
type StreamConfig struct {
	Endpoint string
	Token    string
	Format   string // Encoding of the streamed audio chunks
	Timeout  time.Duration
}

// StreamSynthesizer speaks the chunked provider protocol: one request
// over a websocket, audio arriving in base64 frames until a final
// marker. Chunks are assembled into a single result so callers see the
// same shape as the one-shot client.
type StreamSynthesizer struct {
	endpoint string
	token    string
	format   tts.AudioFormat
	timeout  time.Duration
	dialer   *websocket.Dialer
	logger   *log.Logger
}

// streamFrame is one message from the provider.
type streamFrame struct {
	Audio      string          `json:"audio"`
	Timepoints []envelopePoint `json:"timepoints"`
	Final      bool            `json:"final"`
	Error      string          `json:"error"`
}

// NewStreamSynthesizer creates the websocket client.
func NewStreamSynthesizer(cfg StreamConfig, logger *log.Logger) *StreamSynthesizer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	format, _ := tts.ParseAudioFormat(cfg.Format)

	return &StreamSynthesizer{
		endpoint: cfg.Endpoint,
		token:    cfg.Token,
		format:   format,
		timeout:  timeout,
		dialer:   &websocket.Dialer{HandshakeTimeout: timeout},
		logger:   logger,
	}
}

// Name identifies the provider in errors and logs.
func (s *StreamSynthesizer) Name() string {
	return "stream"
}

// Validate checks the endpoint is a plausible websocket URL.
func (s *StreamSynthesizer) Validate() error {
	if s.endpoint == "" {
		return tts.NewError(tts.KindConfiguration, "synth.stream", tts.ErrNoProviderConfigured)
	}
	parsed, err := url.Parse(s.endpoint)
	if err != nil || (parsed.Scheme != "ws" && parsed.Scheme != "wss") {
		return tts.NewError(tts.KindConfiguration, "synth.stream",
			fmt.Errorf("%w: endpoint %q is not a websocket URL", tts.ErrInvalidConfig, s.endpoint))
	}
	return nil
}

// Synthesize performs one streaming call, assembling chunks until the
// provider marks the stream final. Cancelling ctx closes the
// connection, which aborts any blocked read.
func (s *StreamSynthesizer) Synthesize(ctx context.Context, req tts.SynthesisRequest) (*tts.SynthesisResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	header := http.Header{}
	if s.token != "" {
		header.Set("Authorization", "Bearer "+s.token)
	}
	if req.RequestID != "" {
		header.Set("X-Request-ID", req.RequestID)
	}

	conn, resp, err := s.dialer.DialContext(ctx, s.endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, &tts.SynthesisError{
				Provider: s.Name(),
				Status:   resp.StatusCode,
				Body:     "websocket handshake rejected",
			}
		}
		return nil, s.classify(err)
	}
	defer conn.Close()

	// Closing the connection is the only way to interrupt a blocked
	// read, so a watcher ties the connection to the context.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-watchDone:
		}
	}()

	deadline, _ := ctx.Deadline()
	conn.SetReadDeadline(deadline)
	conn.SetWriteDeadline(deadline)

	if err := conn.WriteJSON(map[string]string{
		"text": req.Text,
		"lang": req.Language,
	}); err != nil {
		return nil, s.classify(err)
	}

	start := time.Now()
	var audio []byte
	var points []envelopePoint
	for {
		var frame streamFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return nil, s.classify(ctx.Err())
			}
			return nil, s.classify(err)
		}

		if frame.Error != "" {
			return nil, &tts.SynthesisError{Provider: s.Name(), Body: frame.Error}
		}

		if frame.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(frame.Audio)
			if err != nil {
				return nil, &tts.SynthesisError{Provider: s.Name(), Body: "undecodable audio chunk"}
			}
			if len(audio)+len(chunk) > maxResponseBytes {
				return nil, &tts.SynthesisError{Provider: s.Name(), Body: "stream exceeded size limit"}
			}
			audio = append(audio, chunk...)
		}
		points = append(points, frame.Timepoints...)

		if frame.Final {
			break
		}
	}

	if len(audio) == 0 {
		return nil, &tts.SynthesisError{Provider: s.Name(), Body: "stream carried no audio"}
	}

	s.logger.Debug("Stream synthesis complete",
		"provider", s.Name(),
		"requestID", req.RequestID,
		"lang", req.Language,
		"bytes", len(audio),
		"timepoints", len(points),
		"elapsed", time.Since(start))

	return &tts.SynthesisResult{
		Audio:      tts.Audio{Data: audio, Format: s.format},
		Timepoints: decodePoints(points),
		Provider:   s.Name(),
	}, nil
}

// classify mirrors the one-shot client's error mapping.
func (s *StreamSynthesizer) classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || isTimeoutClose(err) {
		return tts.NewError(tts.KindTimeout, "synth.stream", err)
	}
	return tts.NewError(tts.KindSynthesis, "synth.stream", err)
}

// isTimeoutClose reports whether a read failed on the wire deadline.
func isTimeoutClose(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
