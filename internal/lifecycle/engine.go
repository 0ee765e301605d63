// Package lifecycle drives book requests through pending, navigating, ready and completed.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"luna-backend/config"
	"luna-backend/internal/feed"
	"luna-backend/internal/model"
	"luna-backend/internal/store"
)

// transitionTimeout bounds the database work done by a single automatic transition.
const transitionTimeout = 10 * time.Second

// Settings tunes an Engine.
type Settings struct {
	Delays                  Delays
	Seed                    int64 // Zero seeds from the current time
	AllowConcurrentRequests bool
	ActivePageSize          int
	HistoryPageSize         int
}

// SettingsFromConfig builds Settings from the lifecycle section of the configuration.
func SettingsFromConfig(cfg config.LifecycleConfig) Settings {
	return Settings{
		Delays:                  DelaysFromConfig(cfg),
		Seed:                    cfg.Seed,
		AllowConcurrentRequests: cfg.AllowConcurrentRequests,
		ActivePageSize:          cfg.ActivePageSize,
		HistoryPageSize:         cfg.HistoryPageSize,
	}
}

// CreateInput is what a student supplies when asking for a book.
type CreateInput struct {
	BookID         string
	StudentName    string
	UserID         string
	PickupLocation string // Optional; defaults to the book's shelf
}

// CreateResult is the outcome of a successful CreateRequest.
type CreateResult struct {
	RobotTask   *model.RobotTask
	BookRequest *model.BookRequest
	Message     string
}

// Engine is the single writer of book request status.
type Engine struct {
	store     store.Store
	clock     Clock
	settings  Settings
	sched     *scheduler
	publisher Publisher
	writes    requestLocks

	mu    sync.RWMutex
	sinks []Sink
}

// NewEngine creates an engine. publisher may be nil when no change feed is wanted.
func NewEngine(st store.Store, clock Clock, settings Settings, publisher Publisher, sinks ...Sink) *Engine {
	if clock == nil {
		clock = RealClock()
	}
	if settings.Delays == nil {
		settings.Delays = DefaultDelays()
	}
	if settings.ActivePageSize <= 0 {
		settings.ActivePageSize = 10
	}
	if settings.HistoryPageSize <= 0 {
		settings.HistoryPageSize = 20
	}

	e := &Engine{
		store:     st,
		clock:     clock,
		settings:  settings,
		publisher: publisher,
		sinks:     sinks,
	}
	e.sched = newScheduler(clock, settings.Delays, settings.Seed, e.advance)
	return e
}

// AddSink registers another event receiver.
func (e *Engine) AddSink(s Sink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks = append(e.sinks, s)
}

// CreateRequest records a new request together with its robot task and schedules its first advancement.
func (e *Engine) CreateRequest(ctx context.Context, in CreateInput) (*CreateResult, error) {
	const op = "create request"

	in.BookID = strings.TrimSpace(in.BookID)
	in.StudentName = strings.TrimSpace(in.StudentName)
	fields := map[string]string{}
	if in.BookID == "" {
		fields["bookId"] = "is required"
	}
	if in.StudentName == "" {
		fields["studentName"] = "is required"
	}
	if len(fields) > 0 {
		return nil, validationError(op, "Missing required fields: bookId and studentName", fields)
	}

	book, err := e.store.GetBook(ctx, in.BookID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFoundError(op, "Book not found")
	}
	if err != nil {
		return nil, dependencyError(op, "failed to look up book", err)
	}
	if !book.Available {
		return nil, validationError(op, fmt.Sprintf("%q is currently unavailable", book.Title), nil)
	}

	now := e.clock.Now().UTC()
	task := &model.RobotTask{
		TaskType:    model.TaskTypeNavigationAssist,
		BookID:      &book.ID,
		StudentName: in.StudentName,
		UserID:      in.UserID,
		Status:      model.TaskStatusPending,
		Priority:    1,
		Notes:       fmt.Sprintf("Navigate student to %s for %q", book.ShelfLocation, book.Title),
		RequestedAt: now,
	}
	req := &model.BookRequest{
		BookID:      book.ID,
		StudentName: in.StudentName,
		UserID:      in.UserID,
		RequestType: model.RequestTypeNavigationAssist,
		Status:      model.RequestStatusPending,
		RequestedAt: now,
	}
	if pickup := strings.TrimSpace(in.PickupLocation); pickup != "" {
		req.PickupLocation = &pickup
	}

	opts := store.CreateRequestOptions{Exclusive: !e.settings.AllowConcurrentRequests}
	if err := e.store.CreateRequestWithTask(ctx, task, req, opts); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, notFoundError(op, "Book not found")
		case errors.Is(err, store.ErrBookUnavailable):
			return nil, validationError(op, fmt.Sprintf("%q is currently unavailable", book.Title), nil)
		case errors.Is(err, store.ErrBookBusy):
			return nil, validationError(op, fmt.Sprintf("%q already has an active request", book.Title), nil)
		}
		log.Printf("Error creating request for book %s: %v", book.ID, err)
		return nil, dependencyError(op, "Failed to create book request", err)
	}

	req.Book = book
	req.RobotTask = task
	log.Printf("Created request %s (task %s) for book %s", req.ID, task.ID, book.ID)

	e.sched.observe(req.ID, req.Status)
	e.applied(req, "INSERT")

	return &CreateResult{
		RobotTask:   task,
		BookRequest: req,
		Message:     confirmationMessage(book.ShelfLocation),
	}, nil
}

// MarkCollected completes a ready request. Completing an already completed request returns it unchanged.
func (e *Engine) MarkCollected(ctx context.Context, id string) (*model.BookRequest, error) {
	const op = "mark collected"

	unlock := e.writes.lock(id)
	defer unlock()

	req, err := e.get(ctx, op, id)
	if err != nil {
		return nil, err
	}
	switch req.Status {
	case model.RequestStatusCompleted:
		return req, nil
	case model.RequestStatusReady:
	default:
		return nil, validationError(op, fmt.Sprintf("Request is not ready for pickup yet (status %s)", DisplayStatus(req.Status)), nil)
	}

	now := e.clock.Now().UTC()
	ok, err := e.store.TransitionRequest(ctx, id, model.RequestStatusReady, model.RequestStatusCompleted, &now)
	if err != nil {
		return nil, dependencyError(op, "Failed to update request", err)
	}
	if !ok {
		// The automatic transition won the race; report what it stored.
		return e.get(ctx, op, id)
	}

	e.sched.forget(id)
	req.Status = model.RequestStatusCompleted
	req.CompletedAt = &now
	e.applied(req, "UPDATE")
	return req, nil
}

// Get returns one request with its book and robot task.
func (e *Engine) Get(ctx context.Context, id string) (*model.BookRequest, error) {
	return e.get(ctx, "get request", id)
}

func (e *Engine) get(ctx context.Context, op, id string) (*model.BookRequest, error) {
	if strings.TrimSpace(id) == "" {
		return nil, validationError(op, "Request ID is required", map[string]string{"id": "is required"})
	}
	req, err := e.store.GetRequest(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFoundError(op, "Request not found")
	}
	if err != nil {
		return nil, dependencyError(op, "Failed to load request", err)
	}
	if status, perr := ParseStatus(string(req.Status)); perr == nil {
		req.Status = status
	}
	return req, nil
}

// ListActive returns the newest non-completed requests. An empty userID lists all users.
func (e *Engine) ListActive(ctx context.Context, userID string) ([]model.BookRequest, error) {
	reqs, err := e.store.ListActiveRequests(ctx, userID, e.settings.ActivePageSize)
	if err != nil {
		return nil, dependencyError("list active", "Failed to load active requests", err)
	}
	return normalize(reqs), nil
}

// ListHistory returns the most recently completed requests. An empty userID lists all users.
func (e *Engine) ListHistory(ctx context.Context, userID string) ([]model.BookRequest, error) {
	reqs, err := e.store.ListCompletedRequests(ctx, userID, e.settings.HistoryPageSize)
	if err != nil {
		return nil, dependencyError("list history", "Failed to load request history", err)
	}
	return reqs, nil
}

func normalize(reqs []model.BookRequest) []model.BookRequest {
	for i := range reqs {
		if status, err := ParseStatus(string(reqs[i].Status)); err == nil {
			reqs[i].Status = status
		}
	}
	return reqs
}

// Reconcile re-observes every active request, arming timers for requests that have none and
// cancelling timers for requests that are no longer active. Legacy status values are rewritten.
func (e *Engine) Reconcile(ctx context.Context) error {
	since := e.sched.mark()
	reqs, err := e.store.ListActiveRequests(ctx, "", 0)
	if err != nil {
		return dependencyError("reconcile", "Failed to load active requests", err)
	}

	keep := make(map[string]struct{}, len(reqs))
	for _, req := range reqs {
		status, err := ParseStatus(string(req.Status))
		if err != nil {
			log.Printf("Warning: request %s has %v; leaving it alone", req.ID, err)
			continue
		}
		if status != req.Status {
			if _, err := e.store.TransitionRequest(ctx, req.ID, req.Status, status, nil); err != nil {
				log.Printf("Warning: failed to rewrite legacy status of request %s: %v", req.ID, err)
				continue
			}
		}
		keep[req.ID] = struct{}{}
		e.sched.observe(req.ID, status)
	}
	e.sched.retain(keep, since)
	return nil
}

// Observe feeds a single change notification into the scheduler.
func (e *Engine) Observe(id string, rawStatus string) {
	status, err := ParseStatus(rawStatus)
	if err != nil {
		log.Printf("Warning: ignoring change for request %s: %v", id, err)
		return
	}
	e.sched.observe(id, status)
}

// Pending reports how many requests currently have an armed timer.
func (e *Engine) Pending() int {
	return e.sched.pending()
}

// Stop cancels every timer. The engine keeps serving reads and explicit operations afterwards.
func (e *Engine) Stop() {
	e.sched.stop()
}

// advance applies the automatic transition out of from. It is a no-op when the request has moved on.
func (e *Engine) advance(id string, from model.RequestStatus) {
	to, ok := Next(from)
	if !ok {
		return
	}

	// Held until the event is out so a concurrent MarkCollected cannot announce completion first.
	unlock := e.writes.lock(id)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), transitionTimeout)
	defer cancel()

	var completedAt *time.Time
	if to == model.RequestStatusCompleted {
		now := e.clock.Now().UTC()
		completedAt = &now
	}

	applied, err := e.store.TransitionRequest(ctx, id, from, to, completedAt)
	if err != nil {
		log.Printf("Error advancing request %s from %s to %s: %v", id, from, to, err)
		return
	}

	req, err := e.store.GetRequest(ctx, id)
	if err != nil {
		log.Printf("Error reloading request %s: %v", id, err)
		if !applied {
			return
		}
		req = &model.BookRequest{ID: id, Status: to}
	}
	stored := req.Status
	if status, perr := ParseStatus(string(stored)); perr == nil {
		stored = status
	}
	// Either way re-arm from what is actually stored so a stale timer never strands the request.
	e.sched.observe(id, stored)
	if !applied {
		return
	}

	// Announce the transition this call made, not whatever the row holds by now.
	req.Status = to
	if to != model.RequestStatusCompleted {
		req.CompletedAt = nil
	}
	log.Printf("Request %s advanced from %s to %s", id, from, to)
	e.applied(req, "UPDATE")
}

// requestLocks serializes status writes per request.
type requestLocks struct {
	mu    sync.Mutex
	locks map[string]*requestLock
}

type requestLock struct {
	sync.Mutex
	refs int
}

func (l *requestLocks) lock(id string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*requestLock)
	}
	rl, ok := l.locks[id]
	if !ok {
		rl = &requestLock{}
		l.locks[id] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.Lock()
	return func() {
		rl.Unlock()
		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

// applied publishes a change and emits the event for req's current status.
func (e *Engine) applied(req *model.BookRequest, op string) {
	if e.publisher != nil {
		e.publisher.Publish(feed.Message{
			Type:      feed.TypeChange,
			RequestID: req.ID,
			Op:        op,
			Status:    string(req.Status),
			UserID:    req.UserID,
		})
	}

	e.mu.RLock()
	sinks := append([]Sink(nil), e.sinks...)
	e.mu.RUnlock()
	deliver(sinks, newEvent(req))
}
