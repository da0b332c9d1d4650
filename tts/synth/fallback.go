package synth

import (
	"context"
	"errors"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/shravan/tts"
)

// DefaultChainFailures is how many primary failures flip the chain
// onto the fallback provider for good.
const DefaultChainFailures = 3

// Chain runs a primary provider with a fallback behind it. Primary
// failures below the threshold propagate to the caller, who owns retry
// policy; once the primary has failed maxFailures times the chain
// switches to the fallback and stays there until Reset. Canceled
// requests are never counted; a caller giving up is not a provider
// fault.
type Chain struct {
	primary     tts.Synthesizer
	fallback    tts.Synthesizer
	maxFailures int
	logger      *log.Logger

	mu            sync.Mutex
	failures      int
	usingFallback bool
}

// ChainStatus is a snapshot of the chain's switch state.
type ChainStatus struct {
	Active        string
	Failures      int
	UsingFallback bool
}

// NewChain wires a primary provider to a fallback.
func NewChain(primary, fallback tts.Synthesizer, maxFailures int, logger *log.Logger) *Chain {
	if maxFailures <= 0 {
		maxFailures = DefaultChainFailures
	}
	return &Chain{
		primary:     primary,
		fallback:    fallback,
		maxFailures: maxFailures,
		logger:      logger,
	}
}

// Name reports the provider currently answering requests.
func (c *Chain) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.usingFallback {
		return c.fallback.Name()
	}
	return c.primary.Name()
}

// Validate checks both providers.
func (c *Chain) Validate() error {
	return errors.Join(c.primary.Validate(), c.fallback.Validate())
}

// Synthesize tries the active provider, switching to the fallback once
// the primary has failed enough times.
func (c *Chain) Synthesize(ctx context.Context, req tts.SynthesisRequest) (*tts.SynthesisResult, error) {
	if c.sticky() {
		return c.fallback.Synthesize(ctx, req)
	}

	result, err := c.primary.Synthesize(ctx, req)
	if err == nil {
		c.recordSuccess()
		return result, nil
	}
	if errors.Is(err, context.Canceled) {
		return nil, err
	}

	if !c.recordFailure(err) {
		return nil, err
	}

	return c.fallback.Synthesize(ctx, req)
}

// Reset clears the failure count and returns to the primary provider.
func (c *Chain) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.usingFallback {
		c.logger.Info("Returning to primary provider", "provider", c.primary.Name())
	}
	c.failures = 0
	c.usingFallback = false
}

// Status returns the current switch state.
func (c *Chain) Status() ChainStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	active := c.primary.Name()
	if c.usingFallback {
		active = c.fallback.Name()
	}
	return ChainStatus{
		Active:        active,
		Failures:      c.failures,
		UsingFallback: c.usingFallback,
	}
}

func (c *Chain) sticky() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usingFallback
}

func (c *Chain) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failures > 0 {
		c.logger.Info("Primary provider recovered", "provider", c.primary.Name(), "failures", c.failures)
	}
	c.failures = 0
}

// recordFailure counts a primary failure and reports whether the chain
// just switched to the fallback.
func (c *Chain) recordFailure(err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
	c.logger.Warn("Primary synthesis failed",
		"provider", c.primary.Name(),
		"failures", c.failures,
		"max", c.maxFailures,
		"err", err)
	if c.failures < c.maxFailures {
		return false
	}
	c.usingFallback = true
	c.logger.Warn("Switching to fallback provider",
		"primary", c.primary.Name(),
		"fallback", c.fallback.Name())
	return true
}
