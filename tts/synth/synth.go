// Package synth provides the synthesis provider clients. Providers
// turn a normalized line of text into audio bytes, optionally with
// per-word timepoints; every client normalizes its wire shape into a
// tts.SynthesisResult at the boundary.
package synth

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/shravan/tts"
	"github.com/dgnsrekt/shravan/tts/synth/mock"
)

// New builds the synthesizer described by the provider configuration.
// When a fallback provider is configured the result is a Chain that
// switches over after repeated primary failures.
func New(cfg tts.ProviderConfig, logger *log.Logger) (tts.Synthesizer, error) {
	primary, err := build(cfg.Kind, cfg.Endpoint, cfg, logger)
	if err != nil {
		return nil, err
	}

	if cfg.FallbackKind == "" {
		return primary, nil
	}

	fallback, err := build(cfg.FallbackKind, cfg.FallbackEndpoint, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("fallback provider: %w", err)
	}
	return NewChain(primary, fallback, DefaultChainFailures, logger), nil
}

func build(kind, endpoint string, cfg tts.ProviderConfig, logger *log.Logger) (tts.Synthesizer, error) {
	switch kind {
	case "http":
		return NewHTTPSynthesizer(HTTPConfig{
			Endpoint:          endpoint,
			Token:             cfg.Token,
			Format:            cfg.Format,
			Timeout:           cfg.FetchTimeout,
			RequestsPerMinute: cfg.RequestsPerMinute,
		}, logger), nil
	case "stream":
		return NewStreamSynthesizer(StreamConfig{
			Endpoint: endpoint,
			Token:    cfg.Token,
			Format:   cfg.Format,
			Timeout:  cfg.FetchTimeout,
		}, logger), nil
	case "mock":
		return mock.New(), nil
	default:
		return nil, tts.NewError(tts.KindConfiguration, "synth.new",
			fmt.Errorf("%w: %q", tts.ErrInvalidProvider, kind))
	}
}
