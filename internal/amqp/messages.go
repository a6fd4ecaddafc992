package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"nelfy/internal/core"
)

// Routing keys
const (
	KeyStatusChanged   = "transaction.status_changed"
	KeyExportRequested = "report.export_requested"
)

// ExportQueue is the durable queue shared by all export workers.
const ExportQueue = "nelfy_report_exports"

// ErrMalformed marks a message body that can never be processed. Such
// messages are dropped instead of requeued.
var ErrMalformed = errors.New("malformed message")

// Message is anything that can be published.
type Message interface {
	ToJSON() ([]byte, error)
}

// StatusChangedMessage announces that a transaction was marked paid or
// unpaid. Replicas use it to drop cached installments of ParentID.
type StatusChangedMessage struct {
	TransactionID int64     `json:"transactionId"`
	ParentID      *int64    `json:"parentId,omitempty"`
	Paid          bool      `json:"paid"`
	UserID        int64     `json:"userId"`
	Origin        string    `json:"origin"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewStatusChangedMessage creates a status change event sent by origin.
func NewStatusChangedMessage(userID, txID int64, parentID *int64, paid bool, origin string) *StatusChangedMessage {
	return &StatusChangedMessage{
		TransactionID: txID,
		ParentID:      parentID,
		Paid:          paid,
		UserID:        userID,
		Origin:        origin,
		Timestamp:     time.Now(),
	}
}

func (m *StatusChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// GroupID returns the installment group the change belongs to: the parent
// for a child, or the transaction itself.
func (m *StatusChangedMessage) GroupID() int64 {
	if m.ParentID != nil {
		return *m.ParentID
	}
	return m.TransactionID
}

func StatusChangedMessageFromJSON(data []byte) (*StatusChangedMessage, error) {
	var msg StatusChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if msg.TransactionID <= 0 {
		return nil, fmt.Errorf("%w: missing transaction id", ErrMalformed)
	}
	return &msg, nil
}

// ExportRequestedMessage carries a monthly report to the export worker. The
// data is fetched by the web server with the user's token, so the worker
// never talks to the backend.
type ExportRequestedMessage struct {
	JobID        string              `json:"jobId"`
	UserID       int64               `json:"userId"`
	UserName     string              `json:"userName"`
	Month        core.Date           `json:"month"`
	Stats        []core.CategoryStat `json:"stats"`
	Transactions []core.Transaction  `json:"transactions"`
	Timestamp    time.Time           `json:"timestamp"`
}

// NewExportRequestedMessage creates an export request for job.
func NewExportRequestedMessage(job core.ExportJob, userName string, stats []core.CategoryStat, txs []core.Transaction) *ExportRequestedMessage {
	return &ExportRequestedMessage{
		JobID:        job.ID,
		UserID:       job.UserID,
		UserName:     userName,
		Month:        job.Month,
		Stats:        stats,
		Transactions: txs,
		Timestamp:    time.Now(),
	}
}

func (m *ExportRequestedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ExportRequestedMessageFromJSON(data []byte) (*ExportRequestedMessage, error) {
	var msg ExportRequestedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if msg.JobID == "" {
		return nil, fmt.Errorf("%w: missing job id", ErrMalformed)
	}
	if msg.Month.IsZero() {
		return nil, fmt.Errorf("%w: missing month", ErrMalformed)
	}
	return &msg, nil
}

// PublishStatusChanged publishes msg on KeyStatusChanged.
func (c *Client) PublishStatusChanged(ctx context.Context, msg *StatusChangedMessage) error {
	return c.Publish(ctx, KeyStatusChanged, msg)
}

// PublishExportRequested publishes msg on KeyExportRequested.
func (c *Client) PublishExportRequested(ctx context.Context, msg *ExportRequestedMessage) error {
	return c.Publish(ctx, KeyExportRequested, msg)
}

// ConsumeStatusChanged delivers status changes to fn on a queue private to
// this process, so every replica sees every event.
func (c *Client) ConsumeStatusChanged(ctx context.Context, fn func(context.Context, *StatusChangedMessage) error) error {
	spec := QueueSpec{RoutingKeys: []string{KeyStatusChanged}}
	return c.Consume(ctx, spec, func(ctx context.Context, _ string, body []byte) error {
		msg, err := StatusChangedMessageFromJSON(body)
		if err != nil {
			return err
		}
		return fn(ctx, msg)
	})
}

// ConsumeExportRequests delivers export requests to fn from the shared
// durable queue; each request reaches one worker.
func (c *Client) ConsumeExportRequests(ctx context.Context, fn func(context.Context, *ExportRequestedMessage) error) error {
	spec := QueueSpec{Name: ExportQueue, RoutingKeys: []string{KeyExportRequested}}
	return c.Consume(ctx, spec, func(ctx context.Context, _ string, body []byte) error {
		msg, err := ExportRequestedMessageFromJSON(body)
		if err != nil {
			return err
		}
		return fn(ctx, msg)
	})
}
