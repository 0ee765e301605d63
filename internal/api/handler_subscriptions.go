package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"luna-backend/internal/model"
	"luna-backend/internal/mw"
	"luna-backend/internal/store"
)

type putSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required,url"`
	P256DH   string `json:"p256dh" binding:"required"`
	Auth     string `json:"auth" binding:"required"`
}

// PutSubscription registers or refreshes a push subscription for the caller.
func (h *Handler) PutSubscription(c *gin.Context) {
	var req putSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	subscription := model.PushSubscription{
		Endpoint: req.Endpoint,
		P256DH:   req.P256DH,
		Auth:     req.Auth,
		UserID:   mw.UserID(c),
	}
	if err := h.store.SaveSubscription(c.Request.Context(), &subscription); err != nil {
		writeInternal(c, err)
		return
	}

	c.Status(http.StatusCreated)
}

type deleteSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// DeleteSubscription removes one of the caller's subscriptions.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	var req deleteSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	err := h.store.DeleteSubscription(c.Request.Context(), req.Endpoint, mw.UserID(c))
	if errors.Is(err, store.ErrNotFound) {
		writeNotFound(c, "Subscription")
		return
	}
	if err != nil {
		writeInternal(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// rawQueryParam reads a query value without URL decoding; push endpoints carry their own escaping.
func rawQueryParam(rawQuery, key string) (string, bool) {
	for _, kv := range strings.Split(rawQuery, "&") {
		if strings.HasPrefix(kv, key+"=") {
			return kv[len(key)+1:], true
		}
	}
	return "", false
}

type subscriptionResponse struct {
	Endpoint  string    `json:"endpoint"`
	CreatedAt time.Time `json:"created_at"`
}

// GetSubscription lists the caller's subscriptions, or checks a single one when ?endpoint= is given.
func (h *Handler) GetSubscription(c *gin.Context) {
	subs, err := h.store.ListSubscriptions(c.Request.Context(), mw.UserID(c))
	if err != nil {
		writeInternal(c, err)
		return
	}

	endpoint, filtered := rawQueryParam(c.Request.URL.RawQuery, "endpoint")
	out := make([]subscriptionResponse, 0, len(subs))
	for _, sub := range subs {
		if filtered && sub.Endpoint != endpoint {
			continue
		}
		out = append(out, subscriptionResponse{Endpoint: sub.Endpoint, CreatedAt: sub.CreatedAt})
	}
	if filtered && len(out) == 0 {
		writeNotFound(c, "Subscription")
		return
	}

	c.JSON(http.StatusOK, gin.H{"subscriptions": out})
}
