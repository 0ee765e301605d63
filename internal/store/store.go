package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"luna-backend/internal/model"
	"luna-backend/internal/parse"
)

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB

	GetBook(ctx context.Context, id string) (*model.Book, error)
	ListBooks(ctx context.Context, filter BookFilter) ([]model.Book, error)
	CreateBook(ctx context.Context, book *model.Book) error
	UpsertBooks(ctx context.Context, books []model.Book) error
	SetBookAvailability(ctx context.Context, id string, available bool) (*model.Book, error)
	DeleteBook(ctx context.Context, id string) error

	CreateRequestWithTask(ctx context.Context, task *model.RobotTask, req *model.BookRequest, opts CreateRequestOptions) error
	GetRequest(ctx context.Context, id string) (*model.BookRequest, error)
	TransitionRequest(ctx context.Context, id string, from, to model.RequestStatus, completedAt *time.Time) (bool, error)
	ListActiveRequests(ctx context.Context, userID string, limit int) ([]model.BookRequest, error)
	ListCompletedRequests(ctx context.Context, userID string, limit int) ([]model.BookRequest, error)

	SaveSubscription(ctx context.Context, sub *model.PushSubscription) error
	ListSubscriptions(ctx context.Context, userID string) ([]model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint, userID string) error
}

// ErrBookReferenced is returned when deleting a book that still has requests pointing at it.
var ErrBookReferenced = errors.New("book is referenced by existing requests")

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// DB exposes the underlying connection for components that run their own queries.
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// --- Catalog ---

func (s *gormStore) GetBook(ctx context.Context, id string) (*model.Book, error) {
	var book model.Book
	if err := s.db.WithContext(ctx).First(&book, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &book, nil
}

// ListBooks searches the catalog, or browses it in title order when no query is given.
func (s *gormStore) ListBooks(ctx context.Context, filter BookFilter) ([]model.Book, error) {
	q := s.db.WithContext(ctx).Model(&model.Book{})
	if query := strings.TrimSpace(filter.Query); query != "" {
		like := "%" + strings.ToLower(query) + "%"
		q = q.Where("LOWER(title) LIKE ? OR LOWER(author) LIKE ? OR LOWER(COALESCE(isbn, '')) LIKE ?", like, like, like)
	}
	if filter.Section != "" {
		q = q.Where("section = ?", strings.ToUpper(filter.Section))
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var books []model.Book
	if err := q.Order("title").Find(&books).Error; err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	return books, nil
}

func (s *gormStore) CreateBook(ctx context.Context, book *model.Book) error {
	deriveShelf(book)
	if err := s.db.WithContext(ctx).Create(book).Error; err != nil {
		return fmt.Errorf("failed to create book %q: %w", book.Title, err)
	}
	return nil
}

// UpsertBooks inserts or refreshes catalog entries keyed by id.
func (s *gormStore) UpsertBooks(ctx context.Context, books []model.Book) error {
	if len(books) == 0 {
		return nil
	}
	for i := range books {
		deriveShelf(&books[i])
	}

	log.Printf("Batch upserting %d books...", len(books))
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"title", "author", "isbn", "call_number", "shelf_location", "section", "aisle", "category", "available"}),
		}).Create(&books).Error
	})
}

func (s *gormStore) SetBookAvailability(ctx context.Context, id string, available bool) (*model.Book, error) {
	res := s.db.WithContext(ctx).Model(&model.Book{}).Where("id = ?", id).Update("available", available)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update availability of book %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.GetBook(ctx, id)
}

func (s *gormStore) DeleteBook(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var refs int64
		if err := tx.Model(&model.BookRequest{}).Where("book_id = ?", id).Count(&refs).Error; err != nil {
			return fmt.Errorf("failed to count requests for book %s: %w", id, err)
		}
		if refs > 0 {
			return ErrBookReferenced
		}
		res := tx.Delete(&model.Book{}, "id = ?", id)
		if res.Error != nil {
			return fmt.Errorf("failed to delete book %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// --- Requests ---

// CreateRequestWithTask inserts the robot task and the book request in one transaction.
// Either both rows are committed or neither is.
func (s *gormStore) CreateRequestWithTask(ctx context.Context, task *model.RobotTask, req *model.BookRequest, opts CreateRequestOptions) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var book model.Book
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&book, "id = ?", req.BookID).Error; err != nil {
			return notFound(err)
		}
		if !book.Available {
			return ErrBookUnavailable
		}

		if opts.Exclusive {
			var active int64
			if err := tx.Model(&model.BookRequest{}).
				Where("book_id = ? AND status <> ?", book.ID, model.RequestStatusCompleted).
				Count(&active).Error; err != nil {
				return fmt.Errorf("failed to count active requests for book %s: %w", book.ID, err)
			}
			if active > 0 {
				return ErrBookBusy
			}
		}

		if err := tx.Create(task).Error; err != nil {
			return fmt.Errorf("failed to create robot task: %w", err)
		}

		req.RobotTaskID = &task.ID
		if err := tx.Create(req).Error; err != nil {
			return fmt.Errorf("failed to create book request: %w", err)
		}
		return nil
	})
	if err != nil {
		req.RobotTaskID = nil
	}
	return err
}

func (s *gormStore) GetRequest(ctx context.Context, id string) (*model.BookRequest, error) {
	var req model.BookRequest
	if err := s.db.WithContext(ctx).Preload("Book").Preload("RobotTask").First(&req, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &req, nil
}

// TransitionRequest moves a request from one status to the next only if it is still in the
// expected status. It reports false when another writer got there first.
func (s *gormStore) TransitionRequest(ctx context.Context, id string, from, to model.RequestStatus, completedAt *time.Time) (bool, error) {
	updates := map[string]any{"status": to}
	if completedAt != nil {
		updates["completed_at"] = *completedAt
	}

	res := s.db.WithContext(ctx).Model(&model.BookRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to move request %s from %s to %s: %w", id, from, to, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ListActiveRequests returns non-completed requests, newest first. An empty userID lists every user's
// requests and a non-positive limit disables paging.
func (s *gormStore) ListActiveRequests(ctx context.Context, userID string, limit int) ([]model.BookRequest, error) {
	q := s.db.WithContext(ctx).Preload("Book").
		Where("status <> ?", model.RequestStatusCompleted).
		Order("requested_at DESC")
	return s.listRequests(q, userID, limit)
}

// ListCompletedRequests returns completed requests, most recently completed first.
func (s *gormStore) ListCompletedRequests(ctx context.Context, userID string, limit int) ([]model.BookRequest, error) {
	q := s.db.WithContext(ctx).Preload("Book").
		Where("status = ?", model.RequestStatusCompleted).
		Order("completed_at DESC")
	return s.listRequests(q, userID, limit)
}

func (s *gormStore) listRequests(q *gorm.DB, userID string, limit int) ([]model.BookRequest, error) {
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var reqs []model.BookRequest
	if err := q.Find(&reqs).Error; err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	return reqs, nil
}

// --- Push subscriptions ---

func (s *gormStore) SaveSubscription(ctx context.Context, sub *model.PushSubscription) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth", "user_id"}),
	}).Create(sub).Error
}

func (s *gormStore) ListSubscriptions(ctx context.Context, userID string) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at").Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscriptions for user %s: %w", userID, err)
	}
	return subs, nil
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint, userID string) error {
	res := s.db.WithContext(ctx).Where("endpoint = ? AND user_id = ?", endpoint, userID).Delete(&model.PushSubscription{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete subscription: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Helpers ---

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// deriveShelf fills the section and aisle columns from the free-text shelf location.
func deriveShelf(book *model.Book) {
	loc, err := parse.ParseShelfLocation(book.ShelfLocation)
	if err != nil {
		log.Printf("Warning: %v; book %q will not be filterable by section", err, book.Title)
		return
	}
	book.Section = loc.Section
	book.Aisle = loc.Aisle
}
