package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/lehigh-university-libraries/shelfscan/internal/models"
)

// ErrNotFound is returned when a book does not exist
var ErrNotFound = errors.New("book not found")

// Library is the persistence contract shared by the stores
type Library interface {
	Save(ctx context.Context, record models.BookRecord) error
	Get(ctx context.Context, id string) (models.BookRecord, error)
	List(ctx context.Context) ([]models.BookRecord, error)
	Count(ctx context.Context) (int, error)
	Delete(ctx context.Context, id string) error
}

// MemoryStore is a Library held in memory
type MemoryStore struct {
	books map[string]models.BookRecord
	mu    sync.RWMutex
}

// NewMemoryStore returns an empty in-memory library
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{books: make(map[string]models.BookRecord)}
}

func (m *MemoryStore) Save(ctx context.Context, record models.BookRecord) error {
	if record.ID == "" {
		return errors.New("book id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books[record.ID] = record
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (models.BookRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.books[id]
	if !ok {
		return models.BookRecord{}, ErrNotFound
	}
	return record, nil
}

// List returns books in the order they were added
func (m *MemoryStore) List(ctx context.Context) ([]models.BookRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]models.BookRecord, 0, len(m.books))
	for _, b := range m.books {
		result = append(result, b)
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].DateAdded.Equal(result[j].DateAdded) {
			return result[i].ID < result[j].ID
		}
		return result[i].DateAdded.Before(result[j].DateAdded)
	})
	return result, nil
}

func (m *MemoryStore) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.books), nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.books[id]; !ok {
		return ErrNotFound
	}
	delete(m.books, id)
	return nil
}
