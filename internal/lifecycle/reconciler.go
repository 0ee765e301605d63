package lifecycle

import (
	"context"
	"log"
	"time"

	"luna-backend/internal/feed"
)

// Subscriber is the subscribe side of the change feed.
type Subscriber interface {
	Subscribe(buffer int) (<-chan feed.Message, func())
}

// Reconciler keeps the engine's timers in step with the database. It reacts to change messages and
// falls back to a full reconcile on a fixed interval.
type Reconciler struct {
	engine   *Engine
	changes  Subscriber
	interval time.Duration
}

// NewReconciler creates a reconciler. changes may be nil, leaving only the polling fallback.
func NewReconciler(engine *Engine, changes Subscriber, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Reconciler{engine: engine, changes: changes, interval: interval}
}

// Run reconciles once, then loops until ctx is cancelled. The engine's timers are stopped on return.
func (r *Reconciler) Run(ctx context.Context) {
	log.Println("Starting request reconciler...")
	defer r.engine.Stop()

	var msgs <-chan feed.Message
	if r.changes != nil {
		ch, cancel := r.changes.Subscribe(64)
		defer cancel()
		msgs = ch
	}

	r.ReconcileOnce(ctx)

	timer := time.NewTimer(r.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Request reconciler shutting down.")
			return
		case <-timer.C:
			r.ReconcileOnce(ctx)
			timer.Reset(r.interval)
		case msg, ok := <-msgs:
			if !ok {
				log.Println("Change feed closed; reconciler continues on its polling interval.")
				msgs = nil
				continue
			}
			if msg.Type == feed.TypeChange && msg.RequestID != "" {
				r.engine.Observe(msg.RequestID, msg.Status)
			}
		}
	}
}

// ReconcileOnce performs a single full pass.
func (r *Reconciler) ReconcileOnce(ctx context.Context) {
	if err := r.engine.Reconcile(ctx); err != nil {
		log.Printf("Error reconciling requests: %v", err)
		return
	}
	log.Printf("Reconcile finished: %d requests scheduled.", r.engine.Pending())
}
