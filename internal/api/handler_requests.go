package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"luna-backend/internal/lifecycle"
	"luna-backend/internal/model"
	"luna-backend/internal/mw"
)

type createNavigationRequest struct {
	BookID         string `json:"bookId"`
	StudentName    string `json:"studentName"`
	PickupLocation string `json:"pickupLocation"`
}

// requestResponse adds the student-facing status label and the effective pickup location.
type requestResponse struct {
	*model.BookRequest
	DisplayStatus  string `json:"display_status"`
	PickupLocation string `json:"pickup_location"`
}

func newRequestResponse(req *model.BookRequest) requestResponse {
	return requestResponse{
		BookRequest:    req,
		DisplayStatus:  lifecycle.DisplayStatus(req.Status),
		PickupLocation: req.EffectivePickupLocation(),
	}
}

func newRequestResponses(reqs []model.BookRequest) []requestResponse {
	out := make([]requestResponse, len(reqs))
	for i := range reqs {
		out[i] = newRequestResponse(&reqs[i])
	}
	return out
}

// CreateNavigationRequest handles POST /api/navigation-requests.
func (h *Handler) CreateNavigationRequest(c *gin.Context) {
	var body createNavigationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeBindError(c, err)
		return
	}

	res, err := h.engine.CreateRequest(c.Request.Context(), lifecycle.CreateInput{
		BookID:         body.BookID,
		StudentName:    body.StudentName,
		UserID:         mw.UserID(c),
		PickupLocation: body.PickupLocation,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"robotTask":   res.RobotTask,
		"bookRequest": newRequestResponse(res.BookRequest),
		"message":     res.Message,
	})
}

// scopeUserID resolves ?scope=mine|all to the user filter passed to the engine.
func scopeUserID(c *gin.Context) (string, bool) {
	switch c.DefaultQuery("scope", "mine") {
	case "mine":
		return mw.UserID(c), true
	case "all":
		return "", true
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":  "scope must be mine or all",
		"kind":   lifecycle.KindValidation,
		"fields": gin.H{"scope": "must be mine or all"},
	})
	return "", false
}

// ListActiveRequests handles GET /api/requests/active.
func (h *Handler) ListActiveRequests(c *gin.Context) {
	userID, ok := scopeUserID(c)
	if !ok {
		return
	}
	reqs, err := h.engine.ListActive(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRequestResponses(reqs))
}

// ListRequestHistory handles GET /api/requests/history.
func (h *Handler) ListRequestHistory(c *gin.Context) {
	userID, ok := scopeUserID(c)
	if !ok {
		return
	}
	reqs, err := h.engine.ListHistory(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRequestResponses(reqs))
}

// GetRequest handles GET /api/requests/:id.
func (h *Handler) GetRequest(c *gin.Context) {
	req, err := h.engine.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRequestResponse(req))
}

// CollectRequest handles POST /api/requests/:id/collect.
func (h *Handler) CollectRequest(c *gin.Context) {
	req, err := h.engine.MarkCollected(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRequestResponse(req))
}
