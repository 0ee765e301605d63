package store

import "errors"

var (
	// ErrNotFound is returned when a referenced book, request or subscription does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrBookUnavailable is returned when a request targets a book flagged unavailable.
	ErrBookUnavailable = errors.New("book is currently unavailable")
	// ErrBookBusy is returned when exclusivity is enforced and the book already has an active request.
	ErrBookBusy = errors.New("book already has an active request")
)

// CreateRequestOptions tunes the checks performed inside the creation transaction.
type CreateRequestOptions struct {
	// Exclusive rejects the request when another non-completed request exists for the same book.
	Exclusive bool
}

// BookFilter narrows catalog listings.
type BookFilter struct {
	Query   string // Matched case-insensitively against title, author and ISBN
	Section string
	Limit   int
}
