package lifecycle

import (
	"fmt"
	"log"

	"luna-backend/internal/feed"
	"luna-backend/internal/model"
)

// EventKind names a lifecycle notification.
type EventKind string

const (
	EventRequestCreated    EventKind = "request-created"
	EventRequestNavigating EventKind = "request-navigating"
	EventRequestReady      EventKind = "request-ready"
	EventRequestCompleted  EventKind = "request-completed"
)

// Event is emitted once for every applied transition, including creation.
type Event struct {
	Kind             EventKind           `json:"kind"`
	Title            string              `json:"title"`
	Message          string              `json:"message"`
	RelatedRequestID string              `json:"relatedRequestId"`
	Status           model.RequestStatus `json:"status"`
	UserID           string              `json:"-"`
}

// Sink receives lifecycle events. Implementations must not block; the engine ignores their failures.
type Sink interface {
	Notify(ev Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ev Event)

func (f SinkFunc) Notify(ev Event) { f(ev) }

// Publisher accepts feed messages without blocking.
type Publisher interface {
	Publish(msg feed.Message)
}

// FeedSink relays events to live viewers as notification messages.
func FeedSink(p Publisher) Sink {
	return SinkFunc(func(ev Event) {
		p.Publish(feed.Message{
			Type:      feed.TypeNotification,
			RequestID: ev.RelatedRequestID,
			Status:    string(ev.Status),
			UserID:    ev.UserID,
			Payload:   ev,
		})
	})
}

func eventKindFor(s model.RequestStatus) EventKind {
	switch s {
	case model.RequestStatusNavigating:
		return EventRequestNavigating
	case model.RequestStatusReady:
		return EventRequestReady
	case model.RequestStatusCompleted:
		return EventRequestCompleted
	default:
		return EventRequestCreated
	}
}

// newEvent describes req having just entered its current status.
func newEvent(req *model.BookRequest) Event {
	title, shelf := "your book", req.EffectivePickupLocation()
	if req.Book != nil {
		title = fmt.Sprintf("%q", req.Book.Title)
		shelf = req.Book.ShelfLocation
	}

	ev := Event{
		Kind:             eventKindFor(req.Status),
		RelatedRequestID: req.ID,
		Status:           req.Status,
		UserID:           req.UserID,
	}
	switch ev.Kind {
	case EventRequestCreated:
		ev.Title = "Navigation Request Sent!"
		ev.Message = confirmationMessage(shelf)
	case EventRequestNavigating:
		ev.Title = "LUNA Is On The Way"
		ev.Message = fmt.Sprintf("LUNA is heading to %s for %s.", shelf, title)
	case EventRequestReady:
		ev.Title = "Book Ready"
		ev.Message = fmt.Sprintf("%s is ready for pickup at %s.", title, req.EffectivePickupLocation())
	case EventRequestCompleted:
		ev.Title = "Request Completed"
		ev.Message = fmt.Sprintf("%s has been collected.", title)
	}
	return ev
}

func confirmationMessage(shelf string) string {
	return "LUNA will guide you to " + shelf
}

// deliver hands ev to every sink. A panicking sink is logged and skipped.
func deliver(sinks []Sink, ev Event) {
	for _, s := range sinks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("Notification sink panicked on %s for request %s: %v", ev.Kind, ev.RelatedRequestID, r)
				}
			}()
			s.Notify(ev)
		}()
	}
}
