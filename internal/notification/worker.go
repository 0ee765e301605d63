package notification

import (
	"context"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	jsoniter "github.com/json-iterator/go"
	"gorm.io/gorm"

	"luna-backend/internal/lifecycle"
	"luna-backend/internal/model"
)

var json = jsoniter.ConfigFastest

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// pushPayload is what the service worker on the student's device receives.
type pushPayload struct {
	Kind             lifecycle.EventKind `json:"kind"`
	Title            string              `json:"title"`
	Body             string              `json:"body"`
	RelatedRequestID string              `json:"relatedRequestId"`
}

// WorkerPool delivers lifecycle events to the requesting user's push subscriptions.
type WorkerPool struct {
	size    int
	jobs    chan lifecycle.Event
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size, queueSize int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	if queueSize < size {
		queueSize = size
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan lifecycle.Event, queueSize),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{}, // Use the real sender by default
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Worker %d started", id)
	for {
		select {
		case ev := <-wp.jobs:
			wp.sendNotificationsForEvent(ctx, ev)
		case <-ctx.Done():
			log.Printf("Worker %d shutting down", id)
			return
		}
	}
}

// Notify queues ev without blocking, dropping it when the queue is full. It makes the pool a lifecycle sink.
func (wp *WorkerPool) Notify(ev lifecycle.Event) {
	select {
	case wp.jobs <- ev:
	default:
		log.Printf("Notification queue full; dropped %s for request %s", ev.Kind, ev.RelatedRequestID)
	}
}

func (wp *WorkerPool) sendNotificationsForEvent(ctx context.Context, ev lifecycle.Event) {
	if ev.UserID == "" {
		return
	}

	var subscriptions []model.PushSubscription
	if err := wp.db.WithContext(ctx).Where("user_id = ?", ev.UserID).Find(&subscriptions).Error; err != nil {
		log.Printf("Error fetching subscriptions for user %s: %v", ev.UserID, err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(pushPayload{
		Kind:             ev.Kind,
		Title:            ev.Title,
		Body:             ev.Message,
		RelatedRequestID: ev.RelatedRequestID,
	})
	if err != nil {
		log.Printf("Error encoding %s notification for request %s: %v", ev.Kind, ev.RelatedRequestID, err)
		return
	}

	log.Printf("Sending %d %s notifications for request %s", len(subscriptions), ev.Kind, ev.RelatedRequestID)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
