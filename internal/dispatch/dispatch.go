package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quarryhq/quarry/internal/backend"
	"github.com/quarryhq/quarry/internal/model"
)

// DefaultBackendTimeout bounds a single backend's research call
const DefaultBackendTimeout = 120 * time.Second

// Dispatcher fans a query out to every configured backend concurrently.
// It is stateless; callers serialize rounds if their session requires it.
type Dispatcher struct {
	// Decomposer splits the query per backend. The default Broadcast
	// hands every backend the identical query.
	Decomposer Decomposer

	adapters []backend.Adapter
	timeout  time.Duration
	logger   *zap.Logger
}

func New(adapters []backend.Adapter, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultBackendTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		Decomposer: Broadcast{},
		adapters:   adapters,
		timeout:    timeout,
		logger:     logger,
	}
}

// Names lists the configured backends in registration order
func (d *Dispatcher) Names() []string {
	names := make([]string, len(d.adapters))
	for i, a := range d.adapters {
		names[i] = a.Name()
	}
	return names
}

// Dispatch starts one research round. Every adapter runs in its own
// goroutine under its own timeout; results are delivered in arrival order
// and the channel closes once the slowest backend has reported. A failing
// backend never cancels its siblings.
func (d *Dispatcher) Dispatch(ctx context.Context, query string, sources []model.Source) <-chan model.BackendResult {
	results := make(chan model.BackendResult, len(d.adapters))
	queries := d.Decomposer.Decompose(query, d.Names())

	var wg sync.WaitGroup
	for _, a := range d.adapters {
		wg.Add(1)
		go func(a backend.Adapter) {
			defer wg.Done()
			q, ok := queries[a.Name()]
			if !ok {
				q = query
			}
			results <- d.callOne(ctx, a, q, sources)
		}(a)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

func (d *Dispatcher) callOne(ctx context.Context, a backend.Adapter, query string, sources []model.Source) model.BackendResult {
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	res, err := a.Research(callCtx, query, sources)
	elapsed := time.Since(start)

	if err != nil {
		status := model.ResultFailed
		if errors.Is(err, context.DeadlineExceeded) {
			status = model.ResultTimedOut
		}
		d.logger.Warn("backend research failed",
			zap.String("backend", a.Name()),
			zap.String("status", string(status)),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return model.BackendResult{
			BackendName: a.Name(),
			Status:      status,
			ErrorDetail: err.Error(),
			Elapsed:     elapsed,
		}
	}

	d.logger.Debug("backend research complete",
		zap.String("backend", a.Name()),
		zap.Int("claims", len(res.Claims)),
		zap.Duration("elapsed", elapsed))
	return model.BackendResult{
		BackendName: a.Name(),
		Status:      model.ResultOK,
		Summary:     res.Summary,
		RawClaims:   res.Claims,
		Elapsed:     elapsed,
	}
}
