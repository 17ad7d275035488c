package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hearthfin/hearth/internal/core/domain"
	"github.com/hearthfin/hearth/internal/infrastructure/resilience"
	"github.com/nats-io/nats.go"
)

// Queue moves stage handoffs over two subjects: one feeding the processing
// stage, one feeding the categorization stage. Workers share a queue group so
// each handoff lands on exactly one consumer.
type Queue struct {
	conn              *nats.Conn
	processSubject    string
	categorizeSubject string
	executor          *resilience.Executor
}

func New(url, processSubject, categorizeSubject string) (*Queue, error) {
	return NewWithOptions(url, processSubject, categorizeSubject, Options{})
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func NewWithOptions(url, processSubject, categorizeSubject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("hearth"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("nats reconnected: %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:              conn,
		processSubject:    processSubject,
		categorizeSubject: categorizeSubject,
		executor:          options.ResilienceExecutor,
	}, nil
}

// Conn exposes the underlying connection for JetStream consumers sharing it.
func (q *Queue) Conn() *nats.Conn {
	return q.conn
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) DispatchProcess(ctx context.Context, handoff domain.StageHandoff) error {
	return q.publish(ctx, q.processSubject, handoff)
}

func (q *Queue) DispatchCategorize(ctx context.Context, handoff domain.StageHandoff) error {
	return q.publish(ctx, q.categorizeSubject, handoff)
}

func (q *Queue) publish(ctx context.Context, subject string, handoff domain.StageHandoff) error {
	if handoff.DispatchedAt.IsZero() {
		handoff.DispatchedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(handoff)
	if err != nil {
		return fmt.Errorf("marshal stage handoff: %w", err)
	}

	call := func(_ context.Context) error {
		if err := q.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

func (q *Queue) ConsumeProcess(ctx context.Context, handler func(context.Context, domain.StageHandoff) error) error {
	return q.consume(ctx, q.processSubject, handler)
}

func (q *Queue) ConsumeCategorize(ctx context.Context, handler func(context.Context, domain.StageHandoff) error) error {
	return q.consume(ctx, q.categorizeSubject, handler)
}

func (q *Queue) consume(ctx context.Context, subject string, handler func(context.Context, domain.StageHandoff) error) error {
	sub, err := q.conn.QueueSubscribe(subject, "workers", func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		var handoff domain.StageHandoff
		if err := json.Unmarshal(msg.Data, &handoff); err != nil {
			// A malformed handoff never becomes valid; drop it.
			log.Printf("dropping malformed handoff on %s: %v", subject, err)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, handoff); err != nil {
			log.Printf("worker handler error for job=%s: %v", handoff.JobID, err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
