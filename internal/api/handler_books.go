package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"luna-backend/internal/lifecycle"
	"luna-backend/internal/model"
	"luna-backend/internal/store"
)

const (
	searchLimit = 20
	browseLimit = 50
)

// ListBooks handles GET /api/books. With q it searches title, author and ISBN; without it browses by title.
func (h *Handler) ListBooks(c *gin.Context) {
	filter := store.BookFilter{
		Query:   strings.TrimSpace(c.Query("q")),
		Section: strings.TrimSpace(c.Query("section")),
		Limit:   browseLimit,
	}
	if filter.Query != "" {
		filter.Limit = searchLimit
	}

	books, err := h.store.ListBooks(c.Request.Context(), filter)
	if err != nil {
		writeInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, books)
}

// GetBook handles GET /api/books/:id.
func (h *Handler) GetBook(c *gin.Context) {
	book, err := h.store.GetBook(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeNotFound(c, "Book")
		return
	}
	if err != nil {
		writeInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

type createBookRequest struct {
	Title         string  `json:"title" binding:"required"`
	Author        string  `json:"author" binding:"required"`
	ISBN          *string `json:"isbn"`
	CallNumber    *string `json:"call_number"`
	ShelfLocation string  `json:"shelf_location" binding:"required"`
	Category      *string `json:"category"`
	Available     *bool   `json:"available"`
}

// CreateBook handles POST /api/books.
func (h *Handler) CreateBook(c *gin.Context) {
	var req createBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	book := model.Book{
		Title:         strings.TrimSpace(req.Title),
		Author:        strings.TrimSpace(req.Author),
		ISBN:          req.ISBN,
		CallNumber:    req.CallNumber,
		ShelfLocation: strings.TrimSpace(req.ShelfLocation),
		Category:      req.Category,
		Available:     req.Available == nil || *req.Available,
	}
	if err := h.store.CreateBook(c.Request.Context(), &book); err != nil {
		writeInternal(c, err)
		return
	}

	h.invalidateCatalog()
	c.JSON(http.StatusCreated, book)
}

type availabilityRequest struct {
	Available *bool `json:"available" binding:"required"`
}

// SetBookAvailability handles PATCH /api/books/:id/availability.
func (h *Handler) SetBookAvailability(c *gin.Context) {
	var req availabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	book, err := h.store.SetBookAvailability(c.Request.Context(), c.Param("id"), *req.Available)
	if errors.Is(err, store.ErrNotFound) {
		writeNotFound(c, "Book")
		return
	}
	if err != nil {
		writeInternal(c, err)
		return
	}

	h.invalidateCatalog()
	c.JSON(http.StatusOK, book)
}

// DeleteBook handles DELETE /api/books/:id. Books that requests point at cannot be deleted.
func (h *Handler) DeleteBook(c *gin.Context) {
	err := h.store.DeleteBook(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeNotFound(c, "Book")
		return
	case errors.Is(err, store.ErrBookReferenced):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "Book has requests and cannot be deleted", "kind": lifecycle.KindValidation})
		return
	case err != nil:
		writeInternal(c, err)
		return
	}

	h.invalidateCatalog()
	c.Status(http.StatusNoContent)
}
