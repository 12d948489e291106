package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/armstrong-haulage/community-hub/internal/domain/shared"
	"github.com/armstrong-haulage/community-hub/pkg/retry"
	"github.com/armstrong-haulage/community-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCHER
// ══════════════════════════════════════════════════════════════════════════════

// Middleware wraps handler execution.
type Middleware func(shared.EventHandler) shared.EventHandler

// Chain applies middlewares so that the first one is outermost.
func Chain(handler shared.EventHandler, middlewares ...Middleware) shared.EventHandler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler
}

// Dispatcher registers named handlers on a bus, each wrapped in the same
// middleware stack, and keeps failures that survived every retry.
type Dispatcher struct {
	bus         shared.EventSubscriber
	middlewares []Middleware
	deadLetters *DeadLetterQueue
	retrier     *retry.Retrier
	clock       timeutil.Clock
	logger      *slog.Logger
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Bus shared.EventSubscriber

	// Retrier re-runs handlers whose error passes RetryIf. Nil disables retries.
	Retrier *retry.Retrier
	RetryIf func(error) bool

	DeadLetterQueueSize int
	Clock               timeutil.Clock
	Logger              *slog.Logger
}

// NewDispatcher creates a dispatcher. Handlers registered through it run
// as Recovery → DeadLetter → Logging → Retry → handler, so only the final
// failure lands in the dead letter queue.
func NewDispatcher(config DispatcherConfig) *Dispatcher {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Clock == nil {
		config.Clock = timeutil.System()
	}
	if config.RetryIf == nil {
		config.RetryIf = TransientHandlerError
	}
	d := &Dispatcher{
		bus:         config.Bus,
		deadLetters: NewDeadLetterQueue(config.DeadLetterQueueSize),
		retrier:     config.Retrier,
		clock:       config.Clock,
		logger:      config.Logger.With("component", "dispatcher"),
	}
	d.middlewares = []Middleware{LoggingMiddleware(d.logger)}
	if d.retrier != nil {
		d.middlewares = append(d.middlewares, RetryMiddleware(d.retrier, config.RetryIf))
	}
	return d
}

// Register subscribes handler to eventType under name.
func (d *Dispatcher) Register(eventType shared.EventType, name string, handler shared.EventHandler) error {
	if handler == nil {
		return fmt.Errorf("register %s: handler cannot be nil", name)
	}
	mws := append([]Middleware{
		RecoveryMiddleware(d.logger),
		DeadLetterMiddleware(d.deadLetters, name, d.clock),
	}, d.middlewares...)
	return d.bus.Subscribe(eventType, Chain(handler, mws...))
}

// DeadLetterQueue returns failures that exhausted their retries.
func (d *Dispatcher) DeadLetterQueue() *DeadLetterQueue {
	return d.deadLetters
}

// TransientHandlerError reports whether a handler error is worth retrying:
// store failures and unavailable dependencies.
func TransientHandlerError(err error) bool {
	return shared.IsStore(err) || shared.IsRetryable(err)
}

// ─── Middlewares ───

// RecoveryMiddleware turns a handler panic into an error.
func RecoveryMiddleware(logger *slog.Logger) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("handler panic recovered",
						"event_type", event.EventType(),
						"panic", r,
						"stack", string(debug.Stack()),
					)
					err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
				}
			}()
			return next(event)
		}
	}
}

// LoggingMiddleware logs handler failures at error and successes at debug.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) error {
			start := time.Now()
			err := next(event)
			duration := time.Since(start)

			if err != nil {
				logger.Error("handler failed",
					"event_type", event.EventType(),
					"aggregate_id", event.AggregateID(),
					"duration", duration,
					"error", err,
				)
				return err
			}
			logger.Debug("handler completed",
				"event_type", event.EventType(),
				"aggregate_id", event.AggregateID(),
				"duration", duration,
			)
			return nil
		}
	}
}

// RetryMiddleware re-runs the handler while retryIf accepts its error.
func RetryMiddleware(r *retry.Retrier, retryIf func(error) bool) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) error {
			return r.Do(context.Background(), func(context.Context) error {
				err := next(event)
				if err != nil && retryIf(err) {
					return retry.Retryable(err)
				}
				return err
			})
		}
	}
}

// DeadLetterMiddleware records the final failure of a handler.
func DeadLetterMiddleware(q *DeadLetterQueue, handlerName string, clock timeutil.Clock) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) error {
			err := next(event)
			if err != nil {
				q.Add(DeadLetterEntry{
					Event:       event,
					HandlerName: handlerName,
					Error:       err.Error(),
					FailedAt:    clock.Now(),
				})
			}
			return err
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DEAD LETTER QUEUE
// ══════════════════════════════════════════════════════════════════════════════

// DeadLetterEntry is one failed handler invocation.
type DeadLetterEntry struct {
	Event       shared.Event
	HandlerName string
	Error       string
	FailedAt    time.Time
}

// DeadLetterQueue keeps the most recent failures, dropping the oldest.
type DeadLetterQueue struct {
	mu      sync.Mutex
	entries []DeadLetterEntry
	maxSize int
}

// NewDeadLetterQueue creates a queue holding at most maxSize entries.
func NewDeadLetterQueue(maxSize int) *DeadLetterQueue {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &DeadLetterQueue{maxSize: maxSize}
}

// Add appends an entry.
func (q *DeadLetterQueue) Add(entry DeadLetterEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) >= q.maxSize {
		q.entries = q.entries[1:]
	}
	q.entries = append(q.entries, entry)
}

// Entries returns a copy of the queue, oldest first.
func (q *DeadLetterQueue) Entries() []DeadLetterEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]DeadLetterEntry(nil), q.entries...)
}

// Size returns the number of entries.
func (q *DeadLetterQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
