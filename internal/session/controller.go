package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/quarryhq/quarry/internal/dispatch"
	"github.com/quarryhq/quarry/internal/model"
	"github.com/quarryhq/quarry/internal/project"
	"github.com/quarryhq/quarry/internal/store"
	"github.com/quarryhq/quarry/internal/synth"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session closed")
	ErrRoundQueueFull  = errors.New("round queue full")
	ErrEmptyQuery      = errors.New("query is empty")
)

// roundQueueDepth bounds how many follow-ups may wait while a round is in
// flight. Rounds run strictly one at a time.
const roundQueueDepth = 16

// Saver persists a session snapshot after each completed round. Failures
// are logged, never fatal to the session.
type Saver interface {
	SaveSnapshot(ctx context.Context, snap model.Snapshot) error
}

// Controller owns one research session: the store, the round queue, the
// stage machine, and the status stream. A single worker goroutine drains
// queued rounds so at most one dispatch is ever in flight.
type Controller struct {
	ID string

	store       *store.Store
	dispatcher  *dispatch.Dispatcher
	synthesizer *synth.Synthesizer
	broadcaster *Broadcaster
	saver       Saver
	logger      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	rounds chan string
	done   chan struct{}

	closeOnce sync.Once

	mu       sync.Mutex
	query    string // first query of the session
	stage    model.Stage
	statuses map[string]model.BackendStatus
	closed   bool
}

// New builds a session controller and starts its round worker. The session
// begins idle; callers typically Subscribe before the first Submit so no
// status events are missed. saver may be nil.
func New(id string, dispatcher *dispatch.Dispatcher, st *store.Store, synthesizer *synth.Synthesizer, saver Saver, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		ID:          id,
		store:       st,
		dispatcher:  dispatcher,
		synthesizer: synthesizer,
		broadcaster: NewBroadcaster(),
		saver:       saver,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		rounds:      make(chan string, roundQueueDepth),
		done:        make(chan struct{}),
		stage:       model.StageIdle,
		statuses:    make(map[string]model.BackendStatus),
	}
	for _, name := range dispatcher.Names() {
		c.statuses[name] = model.BackendPending
	}

	go c.run()
	return c
}

// Submit queues one research round. Sources are appended to the session
// immediately; the round itself starts once any in-flight round finishes.
func (c *Controller) Submit(query string, sources []model.Source) error {
	if strings.TrimSpace(query) == "" {
		return ErrEmptyQuery
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	if c.query == "" {
		c.query = query
	}
	c.mu.Unlock()

	for _, src := range sources {
		c.store.AddSource(src)
	}

	select {
	case c.rounds <- query:
		return nil
	default:
		return ErrRoundQueueFull
	}
}

// Subscribe attaches a status stream reader
func (c *Controller) Subscribe() chan model.Event {
	return c.broadcaster.Subscribe()
}

func (c *Controller) Unsubscribe(ch chan model.Event) {
	c.broadcaster.Unsubscribe(ch)
}

// Stage returns the current lifecycle stage
func (c *Controller) Stage() model.Stage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stage
}

// StatusEvent describes the current stage and per-backend states. New
// subscribers receive it as their opening event.
func (c *Controller) StatusEvent() model.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	statuses := make(map[string]model.BackendStatus, len(c.statuses))
	for name, st := range c.statuses {
		statuses[name] = st
	}
	return model.Event{Type: model.EventStatus, Stage: c.stage, BackendStatuses: statuses}
}

// Document projects the current snapshot
func (c *Controller) Document() model.Document {
	return project.Project(c.snapshot())
}

// ResolveConflict records a resolution note and republishes the document
func (c *Controller) ResolveConflict(conflictID, resolution string) error {
	if err := c.store.ResolveConflict(conflictID, resolution); err != nil {
		return err
	}
	doc := c.Document()
	c.broadcaster.Publish(model.Event{Type: model.EventDocument, Document: &doc})
	return nil
}

// SupersedeClaim retires a claim in favor of another and republishes the
// document. Claims are never superseded automatically.
func (c *Controller) SupersedeClaim(claimID, replacementID string) error {
	if err := c.store.SupersedeClaim(claimID, replacementID); err != nil {
		return err
	}
	doc := c.Document()
	c.broadcaster.Publish(model.Event{Type: model.EventDocument, Document: &doc})
	return nil
}

// Close cancels any in-flight round, stops the worker, and closes all
// subscriber channels. The store keeps its last consistent state.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		c.cancel()
		<-c.done
		c.broadcaster.Close()
	})
}

// run drains the round queue until the session is closed or a round is
// fatal. Only this goroutine mutates the stage.
func (c *Controller) run() {
	defer close(c.done)

	for {
		select {
		case <-c.ctx.Done():
			return
		case query := <-c.rounds:
			if fatal := c.runRound(query); fatal {
				return
			}
		}
	}
}

// runRound executes one dispatch-to-document cycle. It reports fatal=true
// when every backend failed, which ends the session.
func (c *Controller) runRound(query string) (fatal bool) {
	names := c.dispatcher.Names()

	c.mu.Lock()
	c.stage = model.StageDispatching
	for _, name := range names {
		c.statuses[name] = model.BackendSearching
	}
	c.mu.Unlock()
	c.publishStatus()

	c.logger.Info("round dispatched",
		zap.String("session_id", c.ID),
		zap.String("query", query),
		zap.Strings("backends", names))

	results := make([]model.BackendResult, 0, len(names))
	for res := range c.dispatcher.Dispatch(c.ctx, query, c.store.SourcesSnapshot()) {
		c.mu.Lock()
		if c.stage == model.StageDispatching {
			c.stage = model.StageSynthesizing
			c.mu.Unlock()
			c.publishStatus()
		} else {
			c.mu.Unlock()
		}

		results = append(results, res)
		c.handleResult(res)
	}

	// Session closing; skip terminal bookkeeping.
	if c.ctx.Err() != nil {
		return true
	}

	if err := dispatch.AllFailed(results); err != nil {
		c.mu.Lock()
		c.stage = model.StageFailed
		c.closed = true
		c.mu.Unlock()
		c.publishStatus()
		c.broadcaster.Publish(model.Event{Type: model.EventError, Error: err.Error()})
		c.logger.Error("round failed", zap.String("session_id", c.ID), zap.Error(err))
		return true
	}

	c.mu.Lock()
	c.stage = model.StageGenerating
	c.mu.Unlock()
	c.publishStatus()

	doc := c.Document()
	c.broadcaster.Publish(model.Event{Type: model.EventDocument, Document: &doc})

	c.mu.Lock()
	c.stage = model.StageDone
	c.mu.Unlock()
	c.publishStatus()

	c.persist()

	c.logger.Info("round complete",
		zap.String("session_id", c.ID),
		zap.Int("sections", len(doc.Sections)))
	return false
}

// handleResult folds one backend's result into the store and reports it on
// the status stream. The worker calls this serially, in arrival order.
func (c *Controller) handleResult(res model.BackendResult) {
	if res.Status != model.ResultOK {
		c.setBackendStatus(res.BackendName, model.BackendFailed)
		c.broadcaster.Publish(model.Event{
			Type:          model.EventBackendUpdate,
			Backend:       res.BackendName,
			BackendStatus: model.BackendFailed,
			Error:         res.ErrorDetail,
		})
		return
	}

	ch := c.synthesizer.Ingest(res)
	c.setBackendStatus(res.BackendName, model.BackendDone)
	c.broadcaster.Publish(model.Event{
		Type:          model.EventBackendUpdate,
		Backend:       res.BackendName,
		BackendStatus: model.BackendDone,
		ClaimCount:    ch.ClaimCount(),
	})

	if ch.ClaimCount() > 0 {
		doc := c.Document()
		c.broadcaster.Publish(model.Event{Type: model.EventDocument, Document: &doc})
	}
}

func (c *Controller) setBackendStatus(name string, st model.BackendStatus) {
	c.mu.Lock()
	c.statuses[name] = st
	c.mu.Unlock()
}

func (c *Controller) publishStatus() {
	c.broadcaster.Publish(c.StatusEvent())
}

func (c *Controller) snapshot() model.Snapshot {
	snap := c.store.Snapshot()
	c.mu.Lock()
	snap.SessionID = c.ID
	snap.Query = c.query
	snap.Stage = c.stage
	c.mu.Unlock()
	return snap
}

func (c *Controller) persist() {
	if c.saver == nil {
		return
	}
	if err := c.saver.SaveSnapshot(c.ctx, c.snapshot()); err != nil {
		c.logger.Warn("snapshot save failed", zap.String("session_id", c.ID), zap.Error(err))
	}
}
