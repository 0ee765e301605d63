package lifecycle

import (
	"math/rand"
	"sync"
	"time"

	"luna-backend/config"
	"luna-backend/internal/model"
)

// DelayRange is a half-open interval [Min, Max) from which automatic transition delays are drawn.
type DelayRange struct {
	Min time.Duration
	Max time.Duration
}

func (r DelayRange) draw(rng *rand.Rand) time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + time.Duration(rng.Int63n(int64(r.Max-r.Min)))
}

// Delays holds the delay range for leaving each non-terminal status.
type Delays map[model.RequestStatus]DelayRange

// DefaultDelays are the pickup pipeline timings used when nothing is configured.
func DefaultDelays() Delays {
	return Delays{
		model.RequestStatusPending:    {Min: 5 * time.Second, Max: 35 * time.Second},
		model.RequestStatusNavigating: {Min: 5 * time.Second, Max: 35 * time.Second},
		model.RequestStatusReady:      {Min: 10 * time.Second, Max: 30 * time.Second},
	}
}

// DelaysFromConfig converts the configured ranges.
func DelaysFromConfig(cfg config.LifecycleConfig) Delays {
	return Delays{
		model.RequestStatusPending:    {Min: cfg.PendingDelay.Min(), Max: cfg.PendingDelay.Max()},
		model.RequestStatusNavigating: {Min: cfg.NavigatingDelay.Min(), Max: cfg.NavigatingDelay.Max()},
		model.RequestStatusReady:      {Min: cfg.ReadyDelay.Min(), Max: cfg.ReadyDelay.Max()},
	}
}

type scheduled struct {
	status model.RequestStatus
	timer  Timer
	seq    uint64
	due    time.Time
}

// scheduler keeps at most one armed timer per request.
type scheduler struct {
	clock  Clock
	delays Delays
	fire   func(id string, from model.RequestStatus)

	mu      sync.Mutex
	rng     *rand.Rand
	timers  map[string]*scheduled
	seq     uint64
	stopped bool
}

func newScheduler(clock Clock, delays Delays, seed int64, fire func(id string, from model.RequestStatus)) *scheduler {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &scheduler{
		clock:  clock,
		delays: delays,
		fire:   fire,
		rng:    rand.New(rand.NewSource(seed)),
		timers: make(map[string]*scheduled),
	}
}

// observe records that request id was seen in status. A timer already armed for the same status is kept,
// a timer for an older status is replaced, and a snapshot older than the armed timer is ignored.
// Terminal requests lose their timer.
func (s *scheduler) observe(id string, status model.RequestStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	cur, ok := s.timers[id]
	if IsTerminal(status) {
		if ok {
			cur.timer.Stop()
			delete(s.timers, id)
		}
		return
	}
	if ok {
		if rank(cur.status) >= rank(status) {
			return
		}
		cur.timer.Stop()
		delete(s.timers, id)
	}

	delay := s.delays[status].draw(s.rng)
	s.seq++
	entry := &scheduled{status: status, seq: s.seq, due: s.clock.Now().Add(delay)}
	entry.timer = s.clock.AfterFunc(delay, func() { s.expire(id, entry.seq) })
	s.timers[id] = entry
}

func (s *scheduler) expire(id string, seq uint64) {
	s.mu.Lock()
	entry, ok := s.timers[id]
	if !ok || entry.seq != seq || s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.timers, id)
	s.mu.Unlock()

	s.fire(id, entry.status)
}

// forget cancels the timer for id, if any.
func (s *scheduler) forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.timers[id]; ok {
		entry.timer.Stop()
		delete(s.timers, id)
	}
}

// mark returns the current arming sequence, for use as retain's since argument.
func (s *scheduler) mark() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// retain cancels every timer whose request is not in keep. Timers armed after since are left alone,
// since keep was read before they existed.
func (s *scheduler) retain(keep map[string]struct{}, since uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, entry := range s.timers {
		if entry.seq > since {
			continue
		}
		if _, ok := keep[id]; !ok {
			entry.timer.Stop()
			delete(s.timers, id)
		}
	}
}

// armed returns the status the timer for id was armed for.
func (s *scheduler) armed(id string) (model.RequestStatus, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.timers[id]
	if !ok {
		return "", time.Time{}, false
	}
	return entry.status, entry.due, true
}

func (s *scheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *scheduler) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, entry := range s.timers {
		entry.timer.Stop()
		delete(s.timers, id)
	}
	s.stopped = true
}
