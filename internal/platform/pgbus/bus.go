// Package pgbus wraps a single lib/pq Listener connection that a durable
// store uses to fan Postgres NOTIFY traffic out to in-process
// subscribers (spec §4.5's live-tail transition from replay to LISTEN).
// Grounded on pkg/pgnotify/bus.go's Bus: this keeps that lineage's
// connection lifecycle (reconnect-tolerant Listen/Unlisten, keepalive ping,
// handler dispatch on its own goroutine) and drops the generic table-change
// trigger management, since every store here already owns the DDL for its
// own NOTIFY trigger and only needs a place to register a channel handler.
package pgbus

import (
	"context"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/r3e-labs/engines-controlplane/internal/platform/logging"
)

// Handler is invoked, on its own goroutine, for every notification received
// on the channel it was registered for.
type Handler func(ctx context.Context, payload string)

// Bus owns one pq.Listener and dispatches its notifications to registered
// per-channel handlers.
type Bus struct {
	listener *pq.Listener
	logger   *logging.Logger

	mu       sync.RWMutex
	handlers map[string]Handler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Bus over dsn and starts its listen loop. Call Close when
// the owning process shuts down.
func New(dsn string, logger *logging.Logger) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		logger:   logger,
		handlers: make(map[string]Handler),
		ctx:      ctx,
		cancel:   cancel,
	}
	reportProblem := func(ev pq.ListenerEventType, err error) {
		if err != nil && logger != nil {
			logger.WithContext(ctx).WithError(err).Warn("pgbus: listener event")
		}
	}
	b.listener = pq.NewListener(dsn, 10*time.Second, time.Minute, reportProblem)

	b.wg.Add(1)
	go b.listen()
	return b
}

// Subscribe sets handler as the one handler for channel, replacing any
// earlier one, and issues LISTEN if the channel had no handler yet.
func (b *Bus) Subscribe(channel string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.handlers[channel]; !exists {
		if err := b.listener.Listen(channel); err != nil {
			return err
		}
	}
	b.handlers[channel] = handler
	return nil
}

// Unsubscribe removes the handler for channel and stops listening on it.
func (b *Bus) Unsubscribe(channel string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.handlers[channel]; !exists {
		return nil
	}
	delete(b.handlers, channel)
	return b.listener.Unlisten(channel)
}

// Close stops the listen loop and closes the underlying connection.
func (b *Bus) Close() error {
	b.cancel()
	b.wg.Wait()
	return b.listener.Close()
}

func (b *Bus) listen() {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case notification := <-b.listener.Notify:
			if notification == nil {
				// Connection lost; pq.Listener reconnects and re-LISTENs
				// registered channels on its own.
				continue
			}
			b.dispatch(notification.Channel, notification.Extra)
		case <-time.After(90 * time.Second):
			go func() {
				if err := b.listener.Ping(); err != nil && b.logger != nil {
					b.logger.WithContext(b.ctx).WithError(err).Warn("pgbus: ping failed")
				}
			}()
		}
	}
}

func (b *Bus) dispatch(channel, payload string) {
	b.mu.RLock()
	handler := b.handlers[channel]
	b.mu.RUnlock()
	if handler == nil {
		return
	}
	go handler(b.ctx, payload)
}
