package feed

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigFastest

// rowChange is the payload produced by the book_requests notify trigger.
type rowChange struct {
	Op     string `json:"op"`
	ID     string `json:"id"`
	Status string `json:"status"`
	UserID string `json:"user_id"`
}

// Listener relays Postgres NOTIFY payloads from the change feed channel into a Broker,
// so writes made by other processes reach local viewers.
type Listener struct {
	dsn        string
	channel    string
	broker     *Broker
	retryDelay time.Duration
}

func NewListener(dsn, channel string, broker *Broker) *Listener {
	return &Listener{
		dsn:        dsn,
		channel:    channel,
		broker:     broker,
		retryDelay: 5 * time.Second,
	}
}

// Run listens until ctx is cancelled, reconnecting after connection failures.
func (l *Listener) Run(ctx context.Context) {
	log.Printf("Starting change feed listener on channel %q...", l.channel)
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			log.Println("Change feed listener shutting down.")
			return
		}
		log.Printf("Change feed listener error: %v. Reconnecting in %s.", err, l.retryDelay)

		select {
		case <-ctx.Done():
			log.Println("Change feed listener shutting down.")
			return
		case <-time.After(l.retryDelay):
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.dsn)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", l.channel, err)
	}

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("failed waiting for notification: %w", err)
		}
		msg, err := DecodeChange(n.Payload)
		if err != nil {
			log.Printf("Warning: ignoring malformed change notification %q: %v", n.Payload, err)
			continue
		}
		l.broker.Publish(msg)
	}
}

// DecodeChange converts a trigger payload into a change Message.
func DecodeChange(payload string) (Message, error) {
	var rc rowChange
	if err := json.UnmarshalFromString(payload, &rc); err != nil {
		return Message{}, fmt.Errorf("failed to decode change payload: %w", err)
	}
	if rc.ID == "" {
		return Message{}, fmt.Errorf("change payload has no request id")
	}
	return Message{
		Type:      TypeChange,
		RequestID: rc.ID,
		Op:        rc.Op,
		Status:    rc.Status,
		UserID:    rc.UserID,
	}, nil
}
