// Package throttle implements the Throttled LLM Client (C6): it wraps
// internal/llmclient with bounded concurrency, a token-bucket rate
// limiter, an adaptive inter-request delay, and a three-state circuit
// breaker, grounded on original_source's throttled vLLM client and the
// circuit-breaker idiom in internal/vectorstore.
package throttle

import (
	"context"
	"sync"
	"time"

	"github.com/brianjwalters/lexorch/internal/config"
	"github.com/brianjwalters/lexorch/internal/extractionerr"
	"github.com/brianjwalters/lexorch/internal/llmclient"
	"github.com/brianjwalters/lexorch/internal/logging"
	"golang.org/x/time/rate"
)

// generator is the subset of *llmclient.Client the throttle wraps; defined
// as an interface so tests can substitute a fake.
type generator interface {
	GenerateChatCompletion(ctx context.Context, req llmclient.Request) (llmclient.Response, error)
}

const responseTimeWindowSize = 10

// Client wraps an LLM client with the concurrency, rate, and availability
// controls described in spec §4.6. It is the only client the extraction
// orchestrator calls.
type Client struct {
	inner  generator
	logger *logging.Logger

	sem     chan struct{}
	limiter *rate.Limiter

	mu                sync.Mutex
	maxConcurrent     int
	requestsPerMinute int
	requestDelay      time.Duration
	targetResponse    time.Duration
	adaptationRate    float64
	delayMin          time.Duration
	delayMax          time.Duration

	currentDelay time.Duration
	responseLog  []time.Duration

	breaker *circuitBreaker
	stats   Statistics
}

// New constructs a Client wrapping inner per the Throttle section of
// Config.
func New(inner *llmclient.Client, cfg config.ThrottleConfig, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewTestLogger().Logger
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 1
	}
	c := &Client{
		inner: inner,
		logger: logger,
		sem:    make(chan struct{}, maxConcurrent),
		// Burst equal to rpm lets a full minute's budget be spent in a
		// burst, then refills continuously at rpm/60 per second. This is
		// a token bucket, not a sliding window: a rolling 60s window can
		// admit up to about 2*rpm requests (the burst plus a minute of
		// refill).
		limiter:           rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm),
		maxConcurrent:     maxConcurrent,
		requestsPerMinute: cfg.RequestsPerMinute,
		requestDelay:      cfg.RequestDelay.Duration(),
		targetResponse:    cfg.TargetResponseTime.Duration(),
		adaptationRate:    cfg.AdaptiveDelayFactor,
		delayMin:          cfg.AdaptiveDelayMin.Duration(),
		delayMax:          cfg.AdaptiveDelayMax.Duration(),
		currentDelay:      cfg.RequestDelay.Duration(),
		breaker:           newCircuitBreaker(int32(cfg.CircuitFailThreshold), cfg.CircuitResetTimeout.Duration(), int32(cfg.HalfOpenRequests)),
	}
	return c
}

// Generate issues one throttled chat-completion request. It returns
// extractionerr.KindCircuitOpen immediately if the breaker has tripped;
// otherwise it blocks for as long as the semaphore, rate limiter, or
// adaptive delay require before calling the inner client.
func (c *Client) Generate(ctx context.Context, req llmclient.Request) (llmclient.Response, error) {
	if !c.breaker.allow() {
		c.stats.recordRejected()
		return llmclient.Response{}, extractionerr.New(extractionerr.KindCircuitOpen, errCircuitOpen)
	}

	if err := c.waitForSlot(ctx); err != nil {
		return llmclient.Response{}, extractionerr.New(extractionerr.KindCancelled, err)
	}
	defer func() { <-c.sem }()

	if err := c.waitForRateWindow(ctx); err != nil {
		return llmclient.Response{}, extractionerr.New(extractionerr.KindCancelled, err)
	}

	if err := c.waitForDelay(ctx); err != nil {
		return llmclient.Response{}, extractionerr.New(extractionerr.KindCancelled, err)
	}

	start := time.Now()
	resp, err := c.inner.GenerateChatCompletion(ctx, req)
	elapsed := time.Since(start)

	c.recordOutcome(elapsed, err)
	if err != nil {
		c.breaker.recordFailure()
		c.stats.recordFailure(elapsed)
		return llmclient.Response{}, err
	}
	c.breaker.recordSuccess()
	c.stats.recordSuccess(elapsed)
	return resp, nil
}

func (c *Client) waitForSlot(ctx context.Context) error {
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// waitForRateWindow blocks until the per-minute token-bucket limiter has a
// token free. It paces requests to requests_per_minute on average; it keeps
// no record of request times, so it does not cap a rolling 60-second
// window at requests_per_minute.
func (c *Client) waitForRateWindow(ctx context.Context) error {
	c.mu.Lock()
	limiter := c.limiter
	c.mu.Unlock()
	return limiter.Wait(ctx)
}

func (c *Client) waitForDelay(ctx context.Context) error {
	c.mu.Lock()
	delay := c.currentDelay
	c.mu.Unlock()
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// recordOutcome folds elapsed into the response-time window and adjusts
// the adaptive delay per spec §4.6: above target, increase proportionally
// to the gap; below target, decrease at half the rate.
func (c *Client) recordOutcome(elapsed time.Duration, _ error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.responseLog = append(c.responseLog, elapsed)
	if len(c.responseLog) > responseTimeWindowSize {
		c.responseLog = c.responseLog[len(c.responseLog)-responseTimeWindowSize:]
	}

	var sum time.Duration
	for _, d := range c.responseLog {
		sum += d
	}
	avg := sum / time.Duration(len(c.responseLog))

	if c.targetResponse <= 0 {
		return
	}

	gap := (avg - c.targetResponse).Seconds()
	var adjustment time.Duration
	if gap > 0 {
		adjustment = time.Duration(gap * c.adaptationRate * float64(time.Second))
		c.currentDelay += adjustment
	} else {
		adjustment = time.Duration(-gap * c.adaptationRate * 0.5 * float64(time.Second))
		c.currentDelay -= adjustment
	}

	if c.currentDelay < c.delayMin {
		c.currentDelay = c.delayMin
	}
	if c.currentDelay > c.delayMax {
		c.currentDelay = c.delayMax
	}
}

// UpdateLimits dynamically reconfigures concurrency, rate, and base delay.
// A nil pointer leaves that setting unchanged. The semaphore is rebuilt
// atomically under the client's lock.
func (c *Client) UpdateLimits(maxConcurrent, requestsPerMinute *int, delay *time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if maxConcurrent != nil && *maxConcurrent > 0 {
		c.maxConcurrent = *maxConcurrent
		c.sem = make(chan struct{}, c.maxConcurrent)
	}
	if requestsPerMinute != nil && *requestsPerMinute > 0 {
		c.requestsPerMinute = *requestsPerMinute
		c.limiter.SetLimit(rate.Limit(float64(*requestsPerMinute) / 60.0))
		c.limiter.SetBurst(*requestsPerMinute)
	}
	if delay != nil {
		c.requestDelay = *delay
		c.currentDelay = *delay
	}
}

// ResetStatistics zeroes the running counters without touching the
// circuit breaker or adaptive delay state.
func (c *Client) ResetStatistics() {
	c.stats.reset()
}

// StatisticsSnapshot returns a point-in-time copy of the running
// statistics: totals by outcome (successes, failures, rejected), the
// exponentially-smoothed average response time, the current adaptive
// delay, semaphore free count, slots in use (QueueSize), and the circuit
// state. It reports no request rate and no history of circuit transitions.
func (c *Client) StatisticsSnapshot() Snapshot {
	c.mu.Lock()
	free := cap(c.sem) - len(c.sem)
	delay := c.currentDelay
	c.mu.Unlock()

	snap := c.stats.snapshot()
	snap.SemaphoreFree = free
	snap.QueueSize = cap(c.sem) - free
	snap.CurrentDelay = delay
	snap.CircuitState = c.breaker.stateString()
	return snap
}
