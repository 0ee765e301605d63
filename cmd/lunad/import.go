package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"luna-backend/internal/db"
	"luna-backend/internal/model"
	"luna-backend/internal/store"
)

// catalogEntry is one book in an import file.
type catalogEntry struct {
	ID            string `yaml:"id"`
	Title         string `yaml:"title"`
	Author        string `yaml:"author"`
	ISBN          string `yaml:"isbn"`
	CallNumber    string `yaml:"call_number"`
	ShelfLocation string `yaml:"shelf_location"`
	Category      string `yaml:"category"`
	Available     *bool  `yaml:"available"`
}

type catalogFile struct {
	Books []catalogEntry `yaml:"books"`
}

// catalogNamespace scopes the name-based ids given to entries that carry no id of their own.
var catalogNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:luna:catalog"))

// catalogID returns the entry's own id, or one derived from its ISBN, or from title and author.
// Re-importing the same file therefore refreshes rows instead of adding new ones.
func catalogID(e catalogEntry) string {
	if id := strings.TrimSpace(e.ID); id != "" {
		return id
	}
	key := "title:" + strings.ToLower(strings.TrimSpace(e.Title)) + "\x00" + strings.ToLower(strings.TrimSpace(e.Author))
	if isbn := strings.ReplaceAll(strings.TrimSpace(e.ISBN), "-", ""); isbn != "" {
		key = "isbn:" + isbn
	}
	return uuid.NewSHA1(catalogNamespace, []byte(key)).String()
}

// parseCatalog decodes an import file. Entries without title, author or shelf location are rejected,
// as are two entries that resolve to the same id.
func parseCatalog(r io.Reader) ([]model.Book, error) {
	var file catalogFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}

	books := make([]model.Book, 0, len(file.Books))
	seen := make(map[string]int, len(file.Books))
	for i, e := range file.Books {
		if strings.TrimSpace(e.Title) == "" || strings.TrimSpace(e.Author) == "" || strings.TrimSpace(e.ShelfLocation) == "" {
			return nil, fmt.Errorf("entry %d: title, author and shelf_location are required", i+1)
		}
		id := catalogID(e)
		if prev, ok := seen[id]; ok {
			return nil, fmt.Errorf("entry %d: duplicates entry %d; give one of them an id", i+1, prev)
		}
		seen[id] = i + 1
		books = append(books, model.Book{
			ID:            id,
			Title:         strings.TrimSpace(e.Title),
			Author:        strings.TrimSpace(e.Author),
			ISBN:          optional(e.ISBN),
			CallNumber:    optional(e.CallNumber),
			ShelfLocation: strings.TrimSpace(e.ShelfLocation),
			Category:      optional(e.Category),
			Available:     e.Available == nil || *e.Available,
		})
	}
	return books, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func runImport(ctx context.Context, configPath, catalogPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration from %s: %w", configPath, err)
	}

	f, err := os.Open(catalogPath)
	if err != nil {
		return err
	}
	defer f.Close()

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	n, err := importCatalog(ctx, store.NewGormStore(gormDB), f)
	if err != nil {
		return fmt.Errorf("%s: %w", catalogPath, err)
	}
	logger.Printf("Imported %d books from %s", n, catalogPath)
	return nil
}

// importCatalog parses r and upserts its books, returning how many entries were written.
func importCatalog(ctx context.Context, st store.Store, r io.Reader) (int, error) {
	books, err := parseCatalog(r)
	if err != nil {
		return 0, err
	}
	if err := st.UpsertBooks(ctx, books); err != nil {
		return 0, fmt.Errorf("failed to import books: %w", err)
	}
	return len(books), nil
}
