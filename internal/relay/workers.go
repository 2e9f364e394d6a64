package relay

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Dispatcher defaults.
const (
	DefaultChatQueue  = 32
	DefaultWorkerIdle = 5 * time.Minute
)

// Handler processes one message.
type Handler interface {
	Handle(ctx context.Context, msg Inbound) Outcome
}

// Gate is implemented by handlers that can reject a message before it is
// queued. Rejected messages are handled inline on the dispatching goroutine,
// so Handle must return without blocking for them.
type Gate interface {
	Accepts(msg Inbound) bool
}

// Dispatcher runs one worker goroutine per chat. Messages within a chat are
// handled in arrival order; different chats proceed in parallel. A worker
// exits after idling for the idle timeout and is recreated on demand.
type Dispatcher struct {
	handler   Handler
	gate      Gate
	queueSize int
	idle      time.Duration
	publisher Publisher
	logger    *slog.Logger

	mu      sync.Mutex
	workers map[int64]*chatWorker
	closed  bool
	wg      sync.WaitGroup
	workCtx context.Context
}

type chatWorker struct {
	q chan Inbound
	// pending counts messages reserved by Dispatch and not yet received by
	// the worker. Guarded by Dispatcher.mu.
	pending int
}

// NewDispatcher creates a dispatcher. Workers run under ctx; cancelling it
// stops them after their current message. If handler implements Gate, only
// accepted messages get a worker.
func NewDispatcher(ctx context.Context, handler Handler, queueSize int, idle time.Duration, publisher Publisher, logger *slog.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultChatQueue
	}
	if idle <= 0 {
		idle = DefaultWorkerIdle
	}
	if logger == nil {
		logger = slog.Default()
	}
	gate, _ := handler.(Gate)
	return &Dispatcher{
		handler:   handler,
		gate:      gate,
		queueSize: queueSize,
		idle:      idle,
		publisher: publisher,
		logger:    logger.With("component", "dispatcher"),
		workers:   make(map[int64]*chatWorker),
		workCtx:   ctx,
	}
}

// Dispatch queues msg for its chat's worker. It blocks while that chat's
// queue is full and returns ctx.Err() if ctx ends first.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Inbound) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return fmt.Errorf("dispatch update %d: dispatcher closed", msg.UpdateID)
	}
	d.mu.Unlock()

	if d.gate != nil && !d.gate.Accepts(msg) {
		d.safeHandle(msg)
		return nil
	}

	d.mu.Lock()
	w, ok := d.workers[msg.ChatID]
	if !ok {
		w = &chatWorker{q: make(chan Inbound, d.queueSize)}
		d.workers[msg.ChatID] = w
		d.wg.Add(1)
		go d.work(msg.ChatID, w)
	}
	w.pending++
	d.mu.Unlock()

	select {
	case w.q <- msg:
		return nil
	case <-ctx.Done():
		d.mu.Lock()
		w.pending--
		d.mu.Unlock()
		return ctx.Err()
	}
}

// Close stops accepting messages and waits for workers to drain their queues.
// It must not run concurrently with Dispatch.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, w := range d.workers {
		close(w.q)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// Chats returns the number of chats with a running worker.
func (d *Dispatcher) Chats() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.workers)
}

func (d *Dispatcher) work(chatID int64, w *chatWorker) {
	defer d.wg.Done()
	d.logger.Debug("chat worker started", "chat_id", chatID)
	defer d.logger.Debug("chat worker stopped", "chat_id", chatID)

	timer := time.NewTimer(d.idle)
	defer timer.Stop()
	for {
		select {
		case msg, ok := <-w.q:
			if !ok {
				return
			}
			d.mu.Lock()
			w.pending--
			d.mu.Unlock()
			if d.workCtx.Err() != nil {
				d.logger.Debug("skipping update after shutdown", "chat_id", chatID, "update_id", msg.UpdateID)
			} else {
				d.safeHandle(msg)
			}
			timer.Reset(d.idle)
		case <-timer.C:
			if d.retire(chatID, w) {
				return
			}
			timer.Reset(d.idle)
		}
	}
}

// retire removes an idle worker unless a message is on its way to it.
func (d *Dispatcher) retire(chatID int64, w *chatWorker) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || w.pending > 0 {
		return false
	}
	if d.workers[chatID] == w {
		delete(d.workers, chatID)
	}
	return true
}

func (d *Dispatcher) safeHandle(msg Inbound) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		out := Outcome{
			ID:     uuid.NewString(),
			Stage:  StagePanic,
			Err:    fmt.Errorf("handler panic: %v", rec),
			ChatID: msg.ChatID,
			UserID: msg.UserID,
		}
		d.logger.Error("message handler panicked",
			"outcome_id", out.ID,
			"chat_id", msg.ChatID,
			"update_id", msg.UpdateID,
			"panic", rec,
			"stack", string(debug.Stack()),
		)
		if d.publisher != nil {
			d.publisher.Publish(out.Event(time.Now()))
		}
	}()
	d.handler.Handle(d.workCtx, msg)
}
