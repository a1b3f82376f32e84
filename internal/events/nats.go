package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/imagecheck/internal/logging"
	"github.com/example/imagecheck/internal/repository"
)

// DefaultSubject is where created check results are announced.
const DefaultSubject = "checkresults.created"

// CheckResultCreated is the payload published for every new record.
type CheckResultCreated struct {
	RequestID string                  `json:"requestId,omitempty"`
	Record    *repository.CheckResult `json:"record"`
}

// NATSPublisher announces created check results on a NATS subject.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
	logger  *zap.Logger
}

// Connect dials url and returns a publisher bound to subject.
func Connect(url, subject string, logger *zap.Logger) (*NATSPublisher, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	named := logger.Named("nats_publisher")

	conn, err := nats.Connect(url,
		nats.Name("imagecheck"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				named.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			named.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, logging.NewOperationError("events.connect", "", err)
	}
	return &NATSPublisher{conn: conn, subject: subject, logger: named}, nil
}

// PublishCreated publishes record as JSON.
func (p *NATSPublisher) PublishCreated(ctx context.Context, record *repository.CheckResult) error {
	requestID := logging.RequestIDFromContext(ctx)
	payload, err := json.Marshal(CheckResultCreated{RequestID: requestID, Record: record})
	if err != nil {
		return logging.NewOperationError("events.publish_created", requestID, err)
	}
	if err := p.conn.Publish(p.subject, payload); err != nil {
		return logging.NewOperationError("events.publish_created", requestID, err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
