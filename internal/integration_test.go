package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luna-backend/config"
	"luna-backend/internal/api"
	"luna-backend/internal/feed"
	"luna-backend/internal/lifecycle"
	"luna-backend/internal/model"
	"luna-backend/internal/store"
	"luna-backend/internal/testutil"
)

type eventLog struct {
	mu     sync.Mutex
	events []lifecycle.Event
}

func (l *eventLog) Notify(ev lifecycle.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) kinds(requestID string) []lifecycle.EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []lifecycle.EventKind
	for _, ev := range l.events {
		if ev.RelatedRequestID == requestID {
			out = append(out, ev.Kind)
		}
	}
	return out
}

func fastSettings() lifecycle.Settings {
	return lifecycle.Settings{
		Delays: lifecycle.Delays{
			model.RequestStatusPending:    {Min: 10 * time.Millisecond, Max: 30 * time.Millisecond},
			model.RequestStatusNavigating: {Min: 10 * time.Millisecond, Max: 30 * time.Millisecond},
			model.RequestStatusReady:      {Min: 20 * time.Millisecond, Max: 40 * time.Millisecond},
		},
		Seed: 1,
	}
}

// TestRequestLifecycle drives a request from the HTTP endpoint through every automatic transition
// and checks what a live viewer and the notification sink observe.
func TestRequestLifecycle(t *testing.T) {
	gin.SetMode(gin.TestMode)
	testDB := testutil.NewSQLiteDB(t)
	appStore := store.NewGormStore(testDB)
	book := testutil.SeedBook(t, testDB, "Dune", "Section A, Aisle 2", true)

	broker := feed.NewBroker()
	events := &eventLog{}
	engine := lifecycle.NewEngine(appStore, lifecycle.RealClock(), fastSettings(), broker, events)
	engine.AddSink(lifecycle.FeedSink(broker))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go lifecycle.NewReconciler(engine, broker, 50*time.Millisecond).Run(ctx)

	changes, unsubscribe := broker.Subscribe(64)
	defer unsubscribe()

	cfg := &config.Config{
		Server: config.ServerConfig{RateLimitPerSec: 100, RateLimitBurst: 100},
		Auth:   config.AuthConfig{JWTSecret: "integration"},
	}
	router := api.NewRouter(cfg, api.NewHandler(appStore, engine, broker, nil, nil))

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "student-1"}).
		SignedString([]byte("integration"))
	require.NoError(t, err)

	body, _ := json.Marshal(map[string]string{"bookId": book.ID, "studentName": "Alex"})
	req := httptest.NewRequest(http.MethodPost, "/api/navigation-requests", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+signed)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var created struct {
		BookRequest struct {
			ID string `json:"id"`
		} `json:"bookRequest"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	id := created.BookRequest.ID

	assert.Eventually(t, func() bool {
		stored, err := appStore.GetRequest(context.Background(), id)
		return err == nil && stored.Status == model.RequestStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	want := []lifecycle.EventKind{
		lifecycle.EventRequestCreated,
		lifecycle.EventRequestNavigating,
		lifecycle.EventRequestReady,
		lifecycle.EventRequestCompleted,
	}
	assert.Eventually(t, func() bool { return len(events.kinds(id)) == len(want) }, time.Second, 10*time.Millisecond)
	assert.Equal(t, want, events.kinds(id))

	// The feed saw every status in order, once each.
	var statuses []string
	timeout := time.After(time.Second)
	for len(statuses) < 4 {
		select {
		case msg := <-changes:
			if msg.Type == feed.TypeChange && msg.RequestID == id {
				statuses = append(statuses, msg.Status)
			}
		case <-timeout:
			t.Fatalf("saw only %v on the change feed", statuses)
		}
	}
	assert.Equal(t, []string{"pending", "navigating", "ready", "completed"}, statuses)

	stored, err := appStore.GetRequest(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, stored.CompletedAt)
	require.NotNil(t, stored.RobotTask)
	assert.Equal(t, model.TaskStatusPending, stored.RobotTask.Status, "the robot task is never mutated")
}

// TestRestartResumesRequests checks that requests left mid-flight by a stopped engine are picked up
// by a new one on its first reconcile.
func TestRestartResumesRequests(t *testing.T) {
	testDB := testutil.NewSQLiteDB(t)
	appStore := store.NewGormStore(testDB)
	book := testutil.SeedBook(t, testDB, "Dune", "Section A, Aisle 2", true)

	slow := lifecycle.NewEngine(appStore, lifecycle.RealClock(), lifecycle.Settings{}, nil)
	res, err := slow.CreateRequest(context.Background(), lifecycle.CreateInput{BookID: book.ID, StudentName: "Alex", UserID: "student-1"})
	require.NoError(t, err)
	slow.Stop()

	events := &eventLog{}
	engine := lifecycle.NewEngine(appStore, lifecycle.RealClock(), fastSettings(), nil, events)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go lifecycle.NewReconciler(engine, nil, time.Hour).Run(ctx)

	assert.Eventually(t, func() bool {
		stored, err := appStore.GetRequest(context.Background(), res.BookRequest.ID)
		return err == nil && stored.Status == model.RequestStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, []lifecycle.EventKind{
		lifecycle.EventRequestNavigating,
		lifecycle.EventRequestReady,
		lifecycle.EventRequestCompleted,
	}, events.kinds(res.BookRequest.ID))
}
