package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"

	"github.com/Aman-CERP/ragindex/internal/index"
)

// ProgressMessage is the JSON payload published for each snapshot.
type ProgressMessage struct {
	ProjectID string              `json:"project_id"`
	Root      string              `json:"root"`
	Progress  index.IndexProgress `json:"progress"`
	SentAt    time.Time           `json:"sent_at"`
}

// Subject returns the subject a project's progress is published on:
// <prefix>.<projectID>.
func Subject(prefix, projectID string) string {
	return prefix + "." + projectID
}

// NATSPublisher publishes progress snapshots to NATS.
type NATSPublisher struct {
	conn      *nats.Conn
	subject   string
	projectID string
	root      string
	logger    *slog.Logger
}

// NewNATSPublisher connects to url. Reconnects are handled by the client;
// publishes made while disconnected are buffered by nats.go.
func NewNATSPublisher(url, subjectPrefix, projectID, root string, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name("ragindex"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats_disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats_reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return &NATSPublisher{
		conn:      nc,
		subject:   Subject(subjectPrefix, projectID),
		projectID: projectID,
		root:      root,
		logger:    logger,
	}, nil
}

// Publish sends one snapshot. Trace context from ctx travels in the
// message headers.
func (p *NATSPublisher) Publish(ctx context.Context, progress index.IndexProgress) error {
	msg, err := p.message(ctx, progress)
	if err != nil {
		return err
	}
	return p.conn.PublishMsg(msg)
}

func (p *NATSPublisher) message(ctx context.Context, progress index.IndexProgress) (*nats.Msg, error) {
	data, err := json.Marshal(ProgressMessage{
		ProjectID: p.projectID,
		Root:      p.root,
		Progress:  progress,
		SentAt:    time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode progress: %w", err)
	}
	msg := &nats.Msg{Subject: p.subject, Data: data}
	otel.GetTextMapPropagator().Inject(ctx, (*headerCarrier)(msg))
	return msg, nil
}

// Forward publishes every snapshot from ch until ch is closed or ctx ends.
// Publish failures are logged and do not stop forwarding.
func (p *NATSPublisher) Forward(ctx context.Context, ch <-chan index.IndexProgress) {
	for {
		select {
		case <-ctx.Done():
			return
		case progress, ok := <-ch:
			if !ok {
				return
			}
			if err := p.Publish(ctx, progress); err != nil {
				p.logger.Warn("progress_publish_failed",
					slog.String("subject", p.subject),
					slog.String("error", err.Error()))
			}
		}
	}
}

// Close flushes buffered messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return fmt.Errorf("nats drain: %w", err)
	}
	return nil
}

// headerCarrier adapts nats.Msg headers for OTel propagation.
type headerCarrier nats.Msg

func (c *headerCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *headerCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *headerCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}
