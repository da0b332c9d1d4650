package tts_test

import (
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/shravan/tts"
)

func newTestPrefetcher(t *testing.T, cfg tts.Config, synth tts.Synthesizer, store tts.Store) *tts.Prefetcher {
	t.Helper()
	p := tts.NewPrefetcher(cfg, synth, store, log.New(io.Discard))
	t.Cleanup(p.Close)
	return p
}

// TestPrefetcherWarmsMisses tests that queued lines end up cached and
// cached lines are never fetched again.
func TestPrefetcherWarmsMisses(t *testing.T) {
	synth := &fakeSynth{duration: 30 * time.Millisecond}
	store := newFakeStore()
	p := newTestPrefetcher(t, testEngineConfig(), synth, store)

	p.Warm("रामो राजमणिः ॥१॥", "sa", 1, 1)
	p.Warm("रामं रमेशं भजे", "sa", 2, 0)

	waitContains(t, store, "sa", "रामो राजमणिः", 2*time.Second)
	waitContains(t, store, "sa", "रामं रमेशं भजे", 2*time.Second)

	if got := synth.callCount(); got != 2 {
		t.Errorf("Expected 2 synthesis calls, got %d", got)
	}

	// A line already in the cache never reaches the provider.
	p.Warm("रामो राजमणिः", "sa", 1, 1)
	time.Sleep(100 * time.Millisecond)
	if got := synth.callCount(); got != 2 {
		t.Errorf("Expected warm of a cached line to skip synthesis, got %d calls", got)
	}
}

// TestPrefetcherDropsEmptyLines tests that decoration-only lines never
// enter the queue.
func TestPrefetcherDropsEmptyLines(t *testing.T) {
	synth := &fakeSynth{}
	store := newFakeStore()
	p := newTestPrefetcher(t, testEngineConfig(), synth, store)

	p.Warm("॥१२॥", "sa", 0, 1)
	time.Sleep(100 * time.Millisecond)

	if got := synth.callCount(); got != 0 {
		t.Errorf("Expected no synthesis for a decoration-only line, got %d calls", got)
	}
}

// TestPrefetcherDisabled tests the inert instance.
func TestPrefetcherDisabled(t *testing.T) {
	cfg := testEngineConfig()
	cfg.Prefetch.Enabled = false

	synth := &fakeSynth{}
	store := newFakeStore()
	p := newTestPrefetcher(t, cfg, synth, store)

	p.Warm("रामो राजमणिः", "sa", 0, 1)
	time.Sleep(100 * time.Millisecond)

	if got := synth.callCount(); got != 0 {
		t.Errorf("Expected a disabled prefetcher to do nothing, got %d calls", got)
	}
}

// TestPrefetcherCloseStopsWork tests that Warm after Close is a no-op.
func TestPrefetcherCloseStopsWork(t *testing.T) {
	synth := &fakeSynth{}
	store := newFakeStore()
	p := tts.NewPrefetcher(testEngineConfig(), synth, store, log.New(io.Discard))

	p.Close()
	p.Warm("रामो राजमणिः", "sa", 0, 1)
	time.Sleep(100 * time.Millisecond)

	if got := synth.callCount(); got != 0 {
		t.Errorf("Expected no synthesis after Close, got %d calls", got)
	}
}
