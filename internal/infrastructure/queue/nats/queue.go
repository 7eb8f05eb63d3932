package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/knowledge-enrichment-connector/internal/infrastructure/resilience"
)

const defaultQueueGroup = "enrichment-workers"

// jobMessage is the payload published for every queued enrichment job.
type jobMessage struct {
	JobID       string    `json:"job_id"`
	RequestedAt time.Time `json:"requested_at"`
}

type Queue struct {
	conn       *nats.Conn
	subject    string
	queueGroup string
	executor   *resilience.Executor
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	QueueGroup           string
	ResilienceExecutor   *resilience.Executor
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
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
	queueGroup := strings.TrimSpace(options.QueueGroup)
	if queueGroup == "" {
		queueGroup = defaultQueueGroup
	}

	conn, err := nats.Connect(
		url,
		nats.Name("knowledge-enrichment-connector"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", errString(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:       conn,
		subject:    subject,
		queueGroup: queueGroup,
		executor:   options.ResilienceExecutor,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishEnrichmentRequested(ctx context.Context, jobID string) error {
	payload, err := encodeJobMessage(jobID, time.Now().UTC())
	if err != nil {
		return err
	}

	call := func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, payload); err != nil {
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

// SubscribeEnrichmentRequested blocks until ctx is done, handing every job id
// to handler. The subscription is drained before returning.
func (q *Queue) SubscribeEnrichmentRequested(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, q.queueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		message, err := decodeJobMessage(msg.Data)
		if err != nil {
			slog.Error("nats_message_invalid", "subject", msg.Subject, "error", err.Error())
			return
		}
		slog.Info("enrichment_job_received",
			"job_id", message.JobID,
			"queue_latency_ms", time.Since(message.RequestedAt).Milliseconds(),
		)

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, message.JobID); err != nil {
			slog.Error("enrichment_job_failed", "job_id", message.JobID, "error", err.Error())
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

func encodeJobMessage(jobID string, requestedAt time.Time) ([]byte, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, errors.New("nats publish: job id is empty")
	}
	return json.Marshal(jobMessage{JobID: jobID, RequestedAt: requestedAt})
}

// decodeJobMessage also accepts a bare job id.
func decodeJobMessage(data []byte) (jobMessage, error) {
	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return jobMessage{}, errors.New("empty message")
	}
	if !strings.HasPrefix(raw, "{") {
		return jobMessage{JobID: raw, RequestedAt: time.Now().UTC()}, nil
	}
	var message jobMessage
	if err := json.Unmarshal([]byte(raw), &message); err != nil {
		return jobMessage{}, fmt.Errorf("decode job message: %w", err)
	}
	if strings.TrimSpace(message.JobID) == "" {
		return jobMessage{}, errors.New("job message has no job_id")
	}
	return message, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
