package api

import (
	"github.com/SherClockHolmes/webpush-go"
	"github.com/patrickmn/go-cache"

	"luna-backend/internal/feed"
	"luna-backend/internal/lifecycle"
	"luna-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store        store.Store
	engine       *lifecycle.Engine
	broker       *feed.Broker
	catalogCache *cache.Cache
	webpush      *webpush.Options
}

// NewHandler creates a new API handler. broker, catalogCache and webpushOptions may be nil.
func NewHandler(s store.Store, engine *lifecycle.Engine, broker *feed.Broker, catalogCache *cache.Cache, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		store:        s,
		engine:       engine,
		broker:       broker,
		catalogCache: catalogCache,
		webpush:      webpushOptions,
	}
}

// invalidateCatalog drops cached catalog responses after a write.
func (h *Handler) invalidateCatalog() {
	if h.catalogCache != nil {
		h.catalogCache.Flush()
	}
}
