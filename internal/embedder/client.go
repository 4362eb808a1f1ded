package embedder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/54b3r/sortir-go/internal/logging"
	"github.com/54b3r/sortir-go/internal/rag"
)

// Batching defaults. A batch of 50 with a 1.5s pause is the conservative
// alternative for accounts with low rate limits.
const (
	DefaultBatchSize  = 200
	DefaultBatchDelay = 500 * time.Millisecond
	DefaultMaxRetries = 5
	DefaultTimeout    = 30 * time.Second
)

// ErrEmptyResult is returned by [Client.EmbedOne] when the backend produced
// no vector after all retries.
var ErrEmptyResult = errors.New("embedder: empty result")

// Result is the outcome of [Client.EmbedBatch]. A batch that exhausted its
// retries contributes no vectors; the inputs it covered are counted in
// Missing.
type Result struct {
	// Vectors holds the embeddings that were produced, in input order.
	Vectors [][]float32
	// Indices maps each entry of Vectors to its position in the input.
	Indices []int
	// Missing is the number of inputs without a vector.
	Missing int
	// FailedBatches is the number of batches that exhausted their retries.
	FailedBatches int
	// Err is the last batch error, if any.
	Err error
}

// Partial reports whether some inputs have no vector.
func (r *Result) Partial() bool { return r.Missing > 0 }

// ClientConfig configures a [Client]. Zero values select the defaults.
type ClientConfig struct {
	// BatchSize is the number of texts sent per backend call.
	BatchSize int
	// BatchDelay is the pause between the end of one batch and the start of
	// the next. Negative disables it.
	BatchDelay time.Duration
	// MaxRetries is the number of attempts per batch, including the first.
	MaxRetries int
	// Timeout bounds a single backend call. A timeout counts as a failure.
	Timeout time.Duration
	// Metrics records batch outcomes. May be nil.
	Metrics *Metrics
}

// Client wraps a backend with batching, inter-batch pauses and retry with
// exponential backoff (1s, 2s, 4s, ... uncapped). It holds no state between
// calls beyond its configuration and is safe for concurrent use.
type Client struct {
	backend rag.Embedder
	cfg     ClientConfig
	// timer overrides the backoff and pause timers in tests.
	timer backoff.Timer
}

// NewClient constructs a Client around backend.
func NewClient(backend rag.Embedder, cfg ClientConfig) (*Client, error) {
	if backend == nil {
		return nil, fmt.Errorf("embedder: backend must not be nil")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	switch {
	case cfg.BatchDelay == 0:
		cfg.BatchDelay = DefaultBatchDelay
	case cfg.BatchDelay < 0:
		cfg.BatchDelay = 0
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{backend: backend, cfg: cfg}, nil
}

// Config returns the resolved client configuration.
func (c *Client) Config() ClientConfig { return c.cfg }

// EmbedBatch embeds texts in batches, pausing BatchDelay after every batch
// but the last. Vector order follows input order even across batches. A
// failed batch is logged and counted but does not stop the remaining
// batches; cancellation of ctx does.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) *Result {
	log := logging.FromContext(ctx)
	res := &Result{
		Vectors: make([][]float32, 0, len(texts)),
		Indices: make([]int, 0, len(texts)),
	}

	total := (len(texts) + c.cfg.BatchSize - 1) / c.cfg.BatchSize
	for b, start := 0, 0; start < len(texts); b, start = b+1, start+c.cfg.BatchSize {
		end := min(start+c.cfg.BatchSize, len(texts))
		batch := texts[start:end]

		err := ctx.Err()
		if err == nil && b > 0 {
			err = c.pause(ctx)
		}
		if err != nil {
			res.Missing += len(texts) - start
			res.FailedBatches += total - b
			res.Err = err
			return res
		}

		began := time.Now()
		vecs, err := c.embedWithRetry(ctx, batch)
		c.cfg.Metrics.observeBatch(err, time.Since(began))
		if err != nil {
			res.Missing += len(batch)
			res.FailedBatches++
			res.Err = err
			log.Error("embedder: batch failed after retries",
				slog.Int("batch", b+1),
				slog.Int("batches", total),
				slog.Int("size", len(batch)),
				slog.Any("error", err),
			)
			if ctx.Err() != nil {
				res.Missing += len(texts) - end
				res.FailedBatches += total - b - 1
				return res
			}
			continue
		}

		for i, v := range vecs {
			res.Vectors = append(res.Vectors, v)
			res.Indices = append(res.Indices, start+i)
		}
		log.Debug("embedder: batch done",
			slog.Int("batch", b+1),
			slog.Int("batches", total),
			slog.Int("size", len(batch)),
		)
	}

	if res.Partial() {
		log.Warn("embedder: partial result",
			slog.Int("requested", len(texts)),
			slog.Int("missing", res.Missing),
			slog.Int("failed_batches", res.FailedBatches),
		)
	}
	return res
}

// pause blocks for BatchDelay or until ctx ends.
func (c *Client) pause(ctx context.Context) error {
	if c.cfg.BatchDelay <= 0 {
		return nil
	}
	var fired <-chan time.Time
	if c.timer != nil {
		c.timer.Start(c.cfg.BatchDelay)
		defer c.timer.Stop()
		fired = c.timer.C()
	} else {
		t := time.NewTimer(c.cfg.BatchDelay)
		defer t.Stop()
		fired = t.C
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-fired:
		return nil
	}
}

// EmbedOne embeds a single text.
func (c *Client) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	res := c.EmbedBatch(ctx, []string{text})
	if len(res.Vectors) == 0 {
		if res.Err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEmptyResult, res.Err)
		}
		return nil, ErrEmptyResult
	}
	return res.Vectors[0], nil
}

// embedWithRetry calls the backend for one batch, retrying with exponential
// backoff. It makes at most MaxRetries attempts.
func (c *Client) embedWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	log := logging.FromContext(ctx)

	var vecs [][]float32
	attempt := 0
	op := func() error {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		out, err := c.backend.Embed(callCtx, batch)
		if err != nil {
			return err
		}
		if len(out) != len(batch) {
			return fmt.Errorf("embedder: expected %d vectors, got %d", len(batch), len(out))
		}
		vecs = out
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.cfg.Metrics.observeRetry()
		log.Warn("embedder: batch attempt failed, backing off",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", c.cfg.MaxRetries),
			slog.Duration("wait", wait),
			slog.Any("error", err),
		)
	}

	err := backoff.RetryNotifyWithTimer(op, c.newBackOff(ctx), notify, c.timer)
	if err != nil {
		return nil, fmt.Errorf("embedder: %d attempts: %w", attempt, err)
	}
	return vecs, nil
}

// newBackOff returns the 2^attempt seconds schedule bounded by MaxRetries
// attempts and ctx.
func (c *Client) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = time.Second
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxInterval = time.Duration(math.MaxInt64)
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(c.cfg.MaxRetries-1)), ctx)
}
