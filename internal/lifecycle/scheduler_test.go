package lifecycle

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luna-backend/internal/model"
)

type firing struct {
	id   string
	from model.RequestStatus
}

func newTestScheduler(clock *fakeClock) (*scheduler, *[]firing) {
	var mu sync.Mutex
	fired := &[]firing{}
	delays := Delays{
		model.RequestStatusPending:    {Min: 10 * time.Second, Max: 10 * time.Second},
		model.RequestStatusNavigating: {Min: 20 * time.Second, Max: 20 * time.Second},
		model.RequestStatusReady:      {Min: 30 * time.Second, Max: 30 * time.Second},
	}
	s := newScheduler(clock, delays, 1, func(id string, from model.RequestStatus) {
		mu.Lock()
		defer mu.Unlock()
		*fired = append(*fired, firing{id, from})
	})
	return s, fired
}

func TestDelayRange_Draw(t *testing.T) {
	s := newScheduler(newFakeClock(), DefaultDelays(), 7, nil)
	r := DelayRange{Min: 5 * time.Second, Max: 35 * time.Second}
	for i := 0; i < 1000; i++ {
		d := r.draw(s.rng)
		assert.GreaterOrEqual(t, d, 5*time.Second)
		assert.Less(t, d, 35*time.Second)
	}
	assert.Equal(t, 3*time.Second, DelayRange{Min: 3 * time.Second, Max: time.Second}.draw(s.rng))
}

func TestScheduler_ObserveKeepsSameStatusTimer(t *testing.T) {
	clock := newFakeClock()
	s, fired := newTestScheduler(clock)

	s.observe("req-1", model.RequestStatusPending)
	_, due, ok := s.armed("req-1")
	require.True(t, ok)

	// Re-observing every few seconds must not push the deadline back.
	for i := 0; i < 5; i++ {
		clock.Advance(time.Second)
		s.observe("req-1", model.RequestStatusPending)
	}
	_, dueAfter, _ := s.armed("req-1")
	assert.Equal(t, due, dueAfter)
	assert.Equal(t, 1, clock.active(), "only one timer may be in flight")

	clock.Advance(5 * time.Second)
	require.Len(t, *fired, 1)
	assert.Equal(t, firing{"req-1", model.RequestStatusPending}, (*fired)[0])
	assert.Equal(t, 0, s.pending())
}

func TestScheduler_StatusChangeReplacesTimer(t *testing.T) {
	clock := newFakeClock()
	s, fired := newTestScheduler(clock)

	s.observe("req-1", model.RequestStatusPending)
	s.observe("req-1", model.RequestStatusNavigating)
	status, _, ok := s.armed("req-1")
	require.True(t, ok)
	assert.Equal(t, model.RequestStatusNavigating, status)

	// An older snapshot arriving late is ignored.
	s.observe("req-1", model.RequestStatusPending)
	status, _, _ = s.armed("req-1")
	assert.Equal(t, model.RequestStatusNavigating, status)

	clock.Advance(time.Minute)
	require.Len(t, *fired, 1)
	assert.Equal(t, model.RequestStatusNavigating, (*fired)[0].from)
}

func TestScheduler_TerminalAndRetain(t *testing.T) {
	clock := newFakeClock()
	s, fired := newTestScheduler(clock)

	s.observe("req-1", model.RequestStatusReady)
	s.observe("req-2", model.RequestStatusPending)
	s.observe("req-3", model.RequestStatusPending)
	assert.Equal(t, 3, s.pending())

	s.observe("req-1", model.RequestStatusCompleted)
	assert.Equal(t, 2, s.pending())

	s.retain(map[string]struct{}{"req-2": {}}, s.mark())
	assert.Equal(t, 1, s.pending())

	s.forget("req-2")
	assert.Equal(t, 0, s.pending())

	clock.Advance(time.Hour)
	assert.Empty(t, *fired)
}

func TestScheduler_RetainKeepsTimersArmedAfterMark(t *testing.T) {
	clock := newFakeClock()
	s, fired := newTestScheduler(clock)

	s.observe("req-old", model.RequestStatusPending)
	since := s.mark()
	// Created while the active list was being read, so it is missing from keep.
	s.observe("req-new", model.RequestStatusPending)
	_, due, _ := s.armed("req-new")

	s.retain(map[string]struct{}{}, since)

	_, _, ok := s.armed("req-old")
	assert.False(t, ok)
	_, dueAfter, ok := s.armed("req-new")
	require.True(t, ok)
	assert.Equal(t, due, dueAfter, "the original deadline is kept")

	clock.Advance(10 * time.Second)
	require.Len(t, *fired, 1)
	assert.Equal(t, "req-new", (*fired)[0].id)
}

func TestScheduler_Stop(t *testing.T) {
	clock := newFakeClock()
	s, fired := newTestScheduler(clock)

	s.observe("req-1", model.RequestStatusPending)
	s.stop()
	s.observe("req-2", model.RequestStatusPending)

	clock.Advance(time.Hour)
	assert.Empty(t, *fired)
	assert.Equal(t, 0, s.pending())
}
