// Package gameserver serializes every mutation of the game registry through a
// single Coordinator goroutine and fans results out to connected clients.
package gameserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/scrabble/internal/game/registry"
	"github.com/cory-johannsen/scrabble/internal/observability"
)

// DefaultQueueSize bounds the request queue when no size is configured.
const DefaultQueueSize = 32

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("coordinator closed")

// Notifier receives the out-of-band effects of committed requests. The
// Coordinator calls it from its own goroutine, so implementations must not
// block on client I/O.
type Notifier interface {
	// Broadcast pushes ev to every connection attached to sessionID.
	Broadcast(sessionID uuid.UUID, ev Event)
	// Deliver pushes ev to the connections acting as playerID in sessionID.
	Deliver(sessionID, playerID uuid.UUID, ev Event)
	// Bind attaches connID to sessionID as playerID.
	Bind(connID string, sessionID, playerID uuid.UUID)
	// Unbind detaches connID if it is currently acting as playerID.
	Unbind(connID string, playerID uuid.UUID)
	// Reply queues the response to a request that connID issued, tagged with
	// the client's ack. It is called before any push the request causes.
	Reply(connID string, ack json.RawMessage, resp Response)
}

// Stats are cumulative counters of processed requests.
type Stats struct {
	Processed      uint64
	Failed         uint64
	DroppedReplies uint64
}

// Coordinator owns the Registry and applies requests to it one at a time in
// arrival order.
type Coordinator struct {
	registry *registry.Registry
	notifier Notifier
	logger   *zap.Logger

	queue  chan Request
	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	processed      atomic.Uint64
	failed         atomic.Uint64
	droppedReplies atomic.Uint64
}

// New creates a Coordinator that owns reg.
//
// Precondition: reg, notifier and logger must be non-nil.
// Postcondition: Returns a Coordinator whose queue holds at most queueSize
// pending requests; queueSize < 1 selects DefaultQueueSize.
func New(reg *registry.Registry, notifier Notifier, logger *zap.Logger, queueSize int) *Coordinator {
	if queueSize < 1 {
		queueSize = DefaultQueueSize
	}
	return &Coordinator{
		registry: reg,
		notifier: notifier,
		logger:   logger,
		queue:    make(chan Request, queueSize),
		done:     make(chan struct{}),
	}
}

// Submit enqueues req, blocking while the queue is full.
//
// Postcondition: Returns nil once req is queued, ErrClosed after Close, or
// ctx.Err() if ctx ends first.
func (c *Coordinator) Submit(ctx context.Context, req Request) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.queue <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do submits req and waits for its Response. The Response arrives once the
// request and every push it causes have been handled.
//
// Precondition: req must carry a Reply created by NewReply or NewOrigin.
func (c *Coordinator) Do(ctx context.Context, req Request) (Response, error) {
	reply := req.origin().Reply
	if reply == nil {
		return Response{}, fmt.Errorf("%s request has no reply channel", requestKind(req))
	}
	if err := c.Submit(ctx, req); err != nil {
		return Response{}, err
	}
	select {
	case resp := <-reply:
		return resp, nil
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// Run processes requests until the queue is closed and drained.
//
// Precondition: Run must be called exactly once.
func (c *Coordinator) Run() {
	defer close(c.done)
	c.logger.Info("coordinator running", zap.Int("queue_size", cap(c.queue)))
	for req := range c.queue {
		c.process(req)
	}
	c.logger.Info("coordinator stopped",
		zap.Uint64("processed", c.processed.Load()),
		zap.Uint64("failed", c.failed.Load()),
	)
}

// Close stops accepting requests. Requests already queued are still
// processed by Run. Close is idempotent.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.queue)
}

// Done is closed when Run returns.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Stats returns a snapshot of the request counters.
func (c *Coordinator) Stats() Stats {
	return Stats{
		Processed:      c.processed.Load(),
		Failed:         c.failed.Load(),
		DroppedReplies: c.droppedReplies.Load(),
	}
}

func (c *Coordinator) process(req Request) {
	start := time.Now()
	kind := requestKind(req)
	o := req.origin()

	var (
		resp  Response
		acked bool
	)
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("request panicked",
				zap.String("request", kind),
				zap.String("conn_id", o.ConnID),
				zap.Bool("acked", acked),
				zap.Any("panic", r),
			)
			if !acked {
				resp = Fail(fmt.Errorf("internal error handling %s", kind))
				c.ack(o, resp)
			}
		}
		c.complete(o, kind, resp)
		c.processed.Add(1)
		c.logger.Debug("request processed",
			zap.String("request", kind),
			zap.String("conn_id", o.ConnID),
			zap.Duration("elapsed", time.Since(start)),
		)
	}()

	resp, after := c.handle(req)
	c.ack(o, resp)
	acked = true
	if after != nil && resp.OK() {
		after()
	}
}

// handle applies req to the registry. The returned func, if any, runs once
// the origin connection has its reply queued.
func (c *Coordinator) handle(req Request) (Response, func()) {
	switch r := req.(type) {
	case CreateSession:
		return c.createSession()
	case JoinSession:
		return c.joinSession(r)
	case LeaveSession:
		return c.leaveSession(r)
	case WhoAmI:
		return c.whoAmI(r)
	case ListSessions:
		return Ok(c.registry.Sessions()), nil
	case ListPlayers:
		return Ok(c.registry.Players(r.SessionID)), nil
	case StartSession:
		return c.startSession(r)
	case NextTurn:
		return c.nextTurn(r)
	case DescribeSession:
		summary, err := c.registry.Summary(r.SessionID)
		if err != nil {
			return Fail(err), nil
		}
		return Ok(summary), nil
	case RemoveSession:
		return c.removeSession(r)
	default:
		return Fail(fmt.Errorf("unsupported request %T", req)), nil
	}
}

// ack queues resp on the origin connection ahead of any push the request
// causes.
func (c *Coordinator) ack(o Origin, resp Response) {
	if o.ConnID != "" {
		c.notifier.Reply(o.ConnID, o.Ack, resp)
	}
}

// complete hands resp to o.Reply without blocking. A reply that cannot be
// delivered is dropped and logged; the state change stands.
func (c *Coordinator) complete(o Origin, kind string, resp Response) {
	if !resp.OK() {
		c.failed.Add(1)
	}
	if o.Reply == nil {
		return
	}
	select {
	case o.Reply <- resp:
	default:
		c.droppedReplies.Add(1)
		c.logger.Warn("reply dropped",
			zap.String("request", kind),
			zap.String("conn_id", o.ConnID),
		)
	}
}

func (c *Coordinator) broadcastPlayers(sessionID uuid.UUID) {
	c.notifier.Broadcast(sessionID, Event{
		Name: EventPlayersList,
		Data: Ok(c.registry.Players(sessionID)),
	})
}

func (c *Coordinator) createSession() (Response, func()) {
	id := c.registry.CreateSession()
	c.logger.Info("session created",
		observability.SessionField(id),
		zap.Int("sessions", c.registry.SessionCount()),
	)
	return Ok(id), nil
}

func (c *Coordinator) joinSession(r JoinSession) (Response, func()) {
	p, err := c.registry.RegisterPlayer(r.SessionID, c.registry.NewPlayer(r.Name))
	if err != nil {
		c.logger.Debug("join rejected", observability.SessionField(r.SessionID), zap.Error(err))
		return Fail(err), nil
	}
	c.logger.Info("player joined",
		observability.SessionField(r.SessionID),
		observability.PlayerField(p.ID),
		zap.String("name", p.Name),
	)
	if r.ConnID != "" {
		c.notifier.Bind(r.ConnID, r.SessionID, p.ID)
	}
	return Ok(Identity{Player: p, SessionID: r.SessionID}), func() {
		c.broadcastPlayers(r.SessionID)
	}
}

func (c *Coordinator) leaveSession(r LeaveSession) (Response, func()) {
	if err := c.registry.RemovePlayer(r.SessionID, r.PlayerID); err != nil {
		return Fail(err), nil
	}
	c.logger.Info("player left",
		observability.SessionField(r.SessionID),
		observability.PlayerField(r.PlayerID),
	)
	if r.ConnID != "" {
		c.notifier.Unbind(r.ConnID, r.PlayerID)
	}
	return Ok("Player successfully removed"), func() {
		c.broadcastPlayers(r.SessionID)
	}
}

func (c *Coordinator) whoAmI(r WhoAmI) (Response, func()) {
	p, sessionID, err := c.registry.ResolvePlayer(r.PlayerID)
	if err != nil {
		return Fail(err), nil
	}
	if r.ConnID != "" {
		c.notifier.Bind(r.ConnID, sessionID, p.ID)
	}
	return Ok(Identity{Player: p, SessionID: sessionID}), nil
}

func (c *Coordinator) startSession(r StartSession) (Response, func()) {
	racks, err := c.registry.StartSession(r.SessionID)
	if err != nil {
		return Fail(err), nil
	}
	summary, err := c.registry.Summary(r.SessionID)
	if err != nil {
		return Fail(err), nil
	}
	current, err := c.registry.CurrentPlayer(r.SessionID)
	if err != nil {
		return Fail(err), nil
	}
	c.logger.Info("session started",
		observability.SessionField(r.SessionID),
		zap.Int("players", len(summary.Players)),
		zap.Int("bag_len", summary.BagLen),
	)
	result := StartResult{Players: summary.Players, CurrentPlayer: current, BagLen: summary.BagLen}
	return Ok(result), func() {
		for _, p := range summary.Players {
			c.notifier.Deliver(r.SessionID, p.ID, Event{Name: EventTilesDealt, Data: racks[p.ID]})
		}
	}
}

func (c *Coordinator) nextTurn(r NextTurn) (Response, func()) {
	turn, err := c.registry.NextTurn(r.SessionID)
	if err != nil {
		return Fail(err), nil
	}
	current, err := c.registry.CurrentPlayer(r.SessionID)
	if err != nil {
		return Fail(err), nil
	}
	result := TurnResult{Turn: turn, CurrentPlayer: current}
	return Ok(result), func() {
		c.notifier.Broadcast(r.SessionID, Event{Name: EventTurnChanged, Data: result})
	}
}

func (c *Coordinator) removeSession(r RemoveSession) (Response, func()) {
	if err := c.registry.RemoveSession(r.SessionID); err != nil {
		return Fail(err), nil
	}
	c.logger.Info("session removed", observability.SessionField(r.SessionID))
	return Ok("Game successfully removed"), func() {
		c.notifier.Broadcast(r.SessionID, Event{Name: EventGameClosed, Data: r.SessionID})
	}
}
