// Package notify publishes ingest outcomes to NATS.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectPrefix is followed by the outcome, e.g. postarchive.ingest.completed.
const SubjectPrefix = "postarchive.ingest."

type Outcome string

const (
	Completed Outcome = "completed"
	Skipped   Outcome = "skipped"
	Failed    Outcome = "failed"
)

// Subject returns the NATS subject an outcome is published on.
func Subject(o Outcome) string {
	return SubjectPrefix + string(o)
}

// Event is emitted once per processed recording.
type Event struct {
	MeetingID      string    `json:"meeting_id"`
	MediaPackageID string    `json:"media_package_id,omitempty"`
	Workflow       string    `json:"workflow,omitempty"`
	Outcome        Outcome   `json:"outcome"`
	State          string    `json:"state,omitempty"`
	TrackCount     int       `json:"track_count"`
	Error          string    `json:"error,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

type Client struct {
	conn   *nats.Conn
	logger *slog.Logger
}

func NewClient(url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name("postarchive"),
		nats.Timeout(5 * time.Second),
		nats.MaxReconnects(3),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, logger: logger}, nil
}

// Publish sends the event and waits for the server to acknowledge the
// flush, since the process usually exits right after.
func (c *Client) Publish(ctx context.Context, ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	subject := Subject(ev.Outcome)
	if err := c.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	if _, ok := ctx.Deadline(); ok {
		err = c.conn.FlushWithContext(ctx)
	} else {
		err = c.conn.FlushTimeout(5 * time.Second)
	}
	if err != nil {
		return fmt.Errorf("flush %s: %w", subject, err)
	}
	c.logger.Debug("outcome published", "subject", subject, "meeting_id", ev.MeetingID)
	return nil
}

func (c *Client) Close() {
	c.conn.Close()
}
