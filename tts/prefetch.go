package tts

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/shravan/internal/queue"
	"github.com/dgnsrekt/shravan/tts/text"
)

// Prefetcher warms the cache for lines the reader is about to reach.
// Seeks and line changes feed it upcoming lines; worker goroutines
// synthesize the misses in the background so the next PlayLine usually
// hits the cache. Warming is throttled to the provider's configured
// request budget and never competes with an interactive request for
// correctness: a failed warm is just a future cache miss.
type Prefetcher struct {
	synth   Synthesizer
	store   Store
	queue   *queue.WarmQueue
	limiter *rate.Limiter
	logger  *log.Logger
	timeout time.Duration
	enabled bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPrefetcher builds a warmer and starts its workers. A disabled
// prefetch config yields an inert instance whose Warm is a no-op.
func NewPrefetcher(cfg Config, synth Synthesizer, store Store, logger *log.Logger) *Prefetcher {
	if logger == nil {
		logger = log.New(io.Discard)
	}

	p := &Prefetcher{
		synth:   synth,
		store:   store,
		logger:  logger,
		timeout: cfg.Provider.FetchTimeout,
		enabled: cfg.Prefetch.Enabled && cfg.Prefetch.Lookahead > 0,
	}
	if !p.enabled {
		return p
	}

	rpm := cfg.Provider.RequestsPerMinute
	if rpm <= 0 {
		rpm = 60
	}
	p.limiter = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1)
	p.queue = queue.NewWarmQueue(cfg.Prefetch.Lookahead * 8)

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	workers := cfg.Prefetch.Workers
	if workers < 1 {
		workers = 1
	}
	for range workers {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	return p
}

// Warm queues one line for background synthesis. Lines already cached
// or empty after normalization are dropped on the spot. priority
// orders the queue: lines nearer the reader should carry higher
// values.
func (p *Prefetcher) Warm(line, lang string, index, priority int) {
	if !p.enabled {
		return
	}
	norm := text.Normalize(line)
	if norm == "" || p.store.Contains(lang, norm) {
		return
	}
	err := p.queue.Enqueue(queue.Item{
		Text:     norm,
		Language: lang,
		Line:     index,
		Priority: priority,
	})
	if err != nil && !errors.Is(err, queue.ErrQueueClosed) {
		p.logger.Debug("Prefetch queue rejected line", "line", index, "err", err)
	}
}

// Close stops the workers and drops queued work. In-flight synthesis
// is canceled.
func (p *Prefetcher) Close() {
	if !p.enabled {
		return
	}
	p.cancel()
	p.queue.Close()
	p.wg.Wait()
}

func (p *Prefetcher) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		item, err := p.queue.Dequeue()
		if err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		p.fill(ctx, item)
	}
}

// fill synthesizes one queued line and writes it through the store.
func (p *Prefetcher) fill(ctx context.Context, item queue.Item) {
	// Re-check: the line may have been played (and cached) while queued.
	if p.store.Contains(item.Language, item.Text) {
		return
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	result, err := p.synth.Synthesize(reqCtx, SynthesisRequest{
		Text:     item.Text,
		Language: item.Language,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		p.logger.Debug("Prefetch synthesis failed", "line", item.Line, "err", err)
		return
	}

	if err := p.store.Put(reqCtx, item.Language, item.Text, result.Audio.Data); err != nil {
		p.logger.Debug("Prefetch cache write failed", "line", item.Line, "err", err)
		return
	}
	p.logger.Debug("Prefetched line", "line", item.Line, "bytes", len(result.Audio.Data))
}
