// Package mock provides an offline synthesis provider. It generates
// silent PCM sized to the spoken length of the text, which makes it
// useful both as the "mock" provider kind for network-free runs and as
// a controllable stand-in for tests.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/dgnsrekt/shravan/tts"
)

// Synthesizer implements the provider interface without a network.
type Synthesizer struct {
	mu sync.Mutex

	delay      time.Duration // Simulated processing delay
	sampleRate int

	// Control for testing
	shouldFail   bool
	failureError error

	callCount int
}

// New creates the offline provider.
func New() *Synthesizer {
	return &Synthesizer{
		delay:      10 * time.Millisecond,
		sampleRate: 22050,
	}
}

// Name identifies the provider in errors and logs.
func (s *Synthesizer) Name() string {
	return "mock"
}

// Validate always succeeds; there is nothing to reach.
func (s *Synthesizer) Validate() error {
	return nil
}

// Synthesize produces silence sized to the estimated speaking time of
// the text. The simulated delay respects ctx cancellation.
func (s *Synthesizer) Synthesize(ctx context.Context, req tts.SynthesisRequest) (*tts.SynthesisResult, error) {
	s.mu.Lock()
	s.callCount++
	delay := s.delay
	fail := s.shouldFail
	failErr := s.failureError
	sampleRate := s.sampleRate
	s.mu.Unlock()

	if fail {
		if failErr != nil {
			return nil, failErr
		}
		return nil, &tts.SynthesisError{Provider: s.Name(), Body: "mock failure"}
	}

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	duration := estimateDuration(req.Text)
	samples := int(duration.Seconds() * float64(sampleRate))
	data := make([]byte, samples*2) // 16-bit mono silence

	return &tts.SynthesisResult{
		Audio: tts.Audio{
			Data:       data,
			Format:     tts.FormatPCM16,
			SampleRate: sampleRate,
			Channels:   1,
			Duration:   duration,
		},
		Provider: s.Name(),
	}, nil
}

// Test control methods

// SetDelay sets the simulated processing delay.
func (s *Synthesizer) SetDelay(delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = delay
}

// SetFailure configures the provider to fail with the given error.
func (s *Synthesizer) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shouldFail = true
	s.failureError = err
}

// ClearFailure resets the provider to normal operation.
func (s *Synthesizer) ClearFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shouldFail = false
	s.failureError = nil
}

// GetCallCount returns the number of Synthesize calls.
func (s *Synthesizer) GetCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

// estimateDuration estimates speaking duration for text.
func estimateDuration(text string) time.Duration {
	// Estimate ~150 words per minute
	words := len(text) / 5 // Rough estimate: 5 chars per word
	if words < 1 {
		words = 1
	}
	seconds := float64(words) * 60.0 / 150.0
	return time.Duration(seconds * float64(time.Second))
}
