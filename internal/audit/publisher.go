package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Streamer mirrors audit events to an external stream (Kafka). Best-effort:
// streaming failures are logged, never propagated, because the store is the
// system of record.
type Streamer interface {
	Produce(ctx context.Context, event Event) error
}

// Publisher captures structured audit events. It is append-only and uses the
// store for persistence so tests can swap sinks easily. With an async buffer
// configured, Emit never blocks the request path; Close drains the buffer.
type Publisher struct {
	store    Store
	streamer Streamer
	logger   *slog.Logger

	inbox     chan Event
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithAsyncBuffer makes Emit enqueue onto a buffered channel serviced by a
// background worker instead of writing synchronously.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.inbox = make(chan Event, size)
	}
}

// WithStreamer mirrors every event to the given stream.
func WithStreamer(streamer Streamer) Option {
	return func(p *Publisher) {
		p.streamer = streamer
	}
}

// WithLogger sets the logger used for best-effort failure reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.inbox != nil {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

// Emit records an audit event. In async mode a full buffer falls back to a
// synchronous write rather than dropping the event.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if p.inbox != nil {
		select {
		case p.inbox <- event:
			return nil
		default:
			return p.write(ctx, event)
		}
	}
	return p.write(ctx, event)
}

// List returns the trail for one verification request.
func (p *Publisher) List(ctx context.Context, requestID string) ([]Event, error) {
	return p.store.ListByRequest(ctx, requestID)
}

// Close drains the async buffer and stops the worker. Safe to call more
// than once.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		if p.inbox != nil {
			close(p.inbox)
			p.wg.Wait()
		}
	})
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for event := range p.inbox {
		if err := p.write(context.Background(), event); err != nil && p.logger != nil {
			p.logger.Warn("audit event write failed",
				"action", event.Action,
				"request_id", event.RequestID,
				"error", err,
			)
		}
	}
}

func (p *Publisher) write(ctx context.Context, event Event) error {
	if p.streamer != nil {
		if err := p.streamer.Produce(ctx, event); err != nil && p.logger != nil {
			p.logger.Warn("audit event stream failed",
				"action", event.Action,
				"request_id", event.RequestID,
				"error", err,
			)
		}
	}
	return p.store.Append(ctx, event)
}
