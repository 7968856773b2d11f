package llm

import (
	"container/heap"
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config tunes the batching worker.
type Config struct {
	BatchSize      int           // max requests drained per batch
	BatchTimeout   time.Duration // how long to wait for the first request
	PollInterval   time.Duration // how long to wait for batch followers
	MaxRetries     int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
}

// DefaultConfig matches the teacher's conservative defaults for a locally
// hosted completion endpoint.
func DefaultConfig() Config {
	return Config{
		BatchSize:    5,
		BatchTimeout: 2 * time.Second,
		PollInterval: 10 * time.Millisecond,
		MaxRetries:   3,
		BaseBackoff:  500 * time.Millisecond,
		MaxBackoff:   8 * time.Second,
	}
}

// Completer is the underlying single-request transport the optimizer
// batches and retries against. *Client satisfies it.
type Completer interface {
	Generate(ctx context.Context, prompt, systemPrompt string, temperature float64, maxTokens int) (*Response, error)
}

// Optimizer is the single-worker priority queue described in spec.md §4.3:
// callers submit at a priority, a dedicated worker dequeues strictly by
// priority (ties broken by enqueue order) and processes requests against
// the completion endpoint with retry/backoff on transient failures.
type Optimizer struct {
	completer Completer
	cfg       Config
	log       zerolog.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	pq       requestHeap
	seq      int64
	closed   bool
	doneChan chan struct{}

	totalRequests atomic.Int64
	totalBatches  atomic.Int64
	totalErrors   atomic.Int64
}

// New creates an optimizer and starts its worker goroutine.
func New(completer Completer, cfg Config, log zerolog.Logger) *Optimizer {
	o := &Optimizer{
		completer: completer,
		cfg:       cfg,
		log:       log.With().Str("component", "llm_optimizer").Logger(),
		doneChan:  make(chan struct{}),
	}
	o.cond = sync.NewCond(&o.mu)
	heap.Init(&o.pq)
	go o.workerLoop()
	return o
}

// Close stops the worker loop and fails any requests still queued.
func (o *Optimizer) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.cond.Broadcast()
	o.mu.Unlock()
	<-o.doneChan
}

// Generate submits a prompt at the given priority and blocks for the result.
func (o *Optimizer) Generate(ctx context.Context, prompt, systemPrompt string, temperature float64, maxTokens int, priority Priority) (*Response, error) {
	req := o.enqueue(prompt, systemPrompt, temperature, maxTokens, priority)

	select {
	case res := <-req.result:
		return res.response, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GenerateJSON submits a prompt and extracts the first balanced JSON object
// from the completion, tolerating Markdown code-fence wrappers.
func (o *Optimizer) GenerateJSON(ctx context.Context, prompt, systemPrompt string, temperature float64, maxTokens int, priority Priority, dest interface{}) error {
	resp, err := o.Generate(ctx, prompt, systemPrompt, temperature, maxTokens, priority)
	if err != nil {
		return err
	}
	return ExtractJSON(resp.Content, dest)
}

func (o *Optimizer) enqueue(prompt, systemPrompt string, temperature float64, maxTokens int, priority Priority) *request {
	req := &request{
		id:           uuid.NewString(),
		prompt:       prompt,
		systemPrompt: systemPrompt,
		temperature:  temperature,
		maxTokens:    maxTokens,
		priority:     priority,
		result:       make(chan outcome, 1),
	}

	o.mu.Lock()
	o.seq++
	req.seq = o.seq
	heap.Push(&o.pq, req)
	o.totalRequests.Add(1)
	o.cond.Signal()
	o.mu.Unlock()

	return req
}

// workerLoop is the single dedicated batching worker: it blocks up to
// BatchTimeout for the first request, then drains up to BatchSize-1
// followers with a short poll, and processes the batch sequentially.
func (o *Optimizer) workerLoop() {
	defer close(o.doneChan)

	for {
		batch, closed := o.drainBatch()
		if len(batch) == 0 {
			if closed {
				return
			}
			continue
		}
		o.processBatch(batch)
	}
}

func (o *Optimizer) drainBatch() ([]*request, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	deadline := time.Now().Add(o.cfg.BatchTimeout)
	for o.pq.Len() == 0 && !o.closed {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, false
		}
		o.waitWithTimeout(remaining)
	}
	if o.pq.Len() == 0 {
		return nil, o.closed
	}

	batch := make([]*request, 0, o.cfg.BatchSize)
	batch = append(batch, heap.Pop(&o.pq).(*request))

	if o.pq.Len() == 0 && !o.closed && o.cfg.PollInterval > 0 {
		o.waitWithTimeout(o.cfg.PollInterval)
	}
	for len(batch) < o.cfg.BatchSize && o.pq.Len() > 0 {
		batch = append(batch, heap.Pop(&o.pq).(*request))
	}
	return batch, o.closed
}

// waitWithTimeout wakes the condvar wait after `d` even with no signal, by
// arranging a timed broadcast. Caller holds o.mu.
func (o *Optimizer) waitWithTimeout(d time.Duration) {
	timer := time.AfterFunc(d, func() {
		o.mu.Lock()
		o.cond.Broadcast()
		o.mu.Unlock()
	})
	o.cond.Wait()
	timer.Stop()
}

func (o *Optimizer) processBatch(batch []*request) {
	o.totalBatches.Add(1)
	o.log.Debug().Int("size", len(batch)).Msg("processing llm batch")

	for _, req := range batch {
		resp, err := o.generateWithRetry(req)
		if err != nil {
			o.totalErrors.Add(1)
			req.result <- outcome{err: err}
			continue
		}
		req.result <- outcome{response: resp}
	}
}

func (o *Optimizer) generateWithRetry(req *request) (*Response, error) {
	var lastErr error
	backoff := o.cfg.BaseBackoff

	for attempt := 0; attempt <= o.cfg.MaxRetries; attempt++ {
		resp, err := o.completer.Generate(context.Background(), req.prompt, req.systemPrompt, req.temperature, req.maxTokens)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var clientErr *ClientError
		if !asClientError(err, &clientErr) || !clientErr.Retryable() {
			return nil, err
		}
		if attempt == o.cfg.MaxRetries {
			break
		}

		o.log.Warn().Err(err).Int("attempt", attempt+1).Dur("backoff", backoff).Msg("retrying llm request")
		time.Sleep(backoff)
		backoff = time.Duration(math.Min(float64(backoff*2), float64(o.cfg.MaxBackoff)))
	}

	return nil, fmt.Errorf("llm request exhausted retries: %w", lastErr)
}

func asClientError(err error, target **ClientError) bool {
	ce, ok := err.(*ClientError)
	if !ok {
		return false
	}
	*target = ce
	return true
}

// Stats reports cumulative optimizer counters.
type Stats struct {
	TotalRequests int64
	TotalBatches  int64
	TotalErrors   int64
	QueueSize     int
}

// GetStats returns a snapshot of the optimizer's counters.
func (o *Optimizer) GetStats() Stats {
	o.mu.Lock()
	qsize := o.pq.Len()
	o.mu.Unlock()

	return Stats{
		TotalRequests: o.totalRequests.Load(),
		TotalBatches:  o.totalBatches.Load(),
		TotalErrors:   o.totalErrors.Load(),
		QueueSize:     qsize,
	}
}
