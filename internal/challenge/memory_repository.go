package challenge

import (
	"context"
	"slices"
	"sync"
	"time"
)

type memoryRepository struct {
	mu    sync.RWMutex
	store map[string]map[string]Challenge // userID -> challengeID -> Challenge
	hub   *watchHub
}

// NewMemoryRepository returns an in-memory repository intended for local development and tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		store: make(map[string]map[string]Challenge),
		hub:   newWatchHub(),
	}
}

func (r *memoryRepository) Create(_ context.Context, c Challenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	userStore, ok := r.store[c.UserID]
	if !ok {
		userStore = make(map[string]Challenge)
		r.store[c.UserID] = userStore
	}
	if _, exists := userStore[c.ID]; exists {
		return ErrConflict
	}

	userStore[c.ID] = c.Clone()
	r.publishLocked(c.UserID)
	return nil
}

func (r *memoryRepository) Get(_ context.Context, userID, id string) (Challenge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.store[userID][id]
	if !ok {
		return Challenge{}, ErrNotFound
	}
	return c.Clone(), nil
}

func (r *memoryRepository) List(_ context.Context, userID string) ([]Challenge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked(userID), nil
}

func (r *memoryRepository) SaveProgress(_ context.Context, userID, id string, update ProgressUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.store[userID][id]
	if !ok {
		return ErrNotFound
	}
	staged := Challenge{Progress: update.Progress, History: update.History}.Clone()
	c.Progress = staged.Progress
	c.History = staged.History
	c.TotalCompletions = update.TotalCompletions
	c.UpdatedAt = update.UpdatedAt
	r.store[userID][id] = c
	r.publishLocked(userID)
	return nil
}

func (r *memoryRepository) SetPhoto(_ context.Context, userID, id string, day int, ref string, updatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.store[userID][id]
	if !ok {
		return ErrNotFound
	}
	c = c.Clone()
	c.Progress.Photos[day] = ref
	c.UpdatedAt = updatedAt
	r.store[userID][id] = c
	r.publishLocked(userID)
	return nil
}

func (r *memoryRepository) Delete(_ context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.store[userID][id]; !ok {
		return ErrNotFound
	}
	delete(r.store[userID], id)
	r.publishLocked(userID)
	return nil
}

func (r *memoryRepository) Watch(ctx context.Context, userID string) (<-chan []Challenge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hub.subscribe(ctx, userID, r.snapshotLocked(userID)), nil
}

func (r *memoryRepository) snapshotLocked(userID string) []Challenge {
	out := make([]Challenge, 0, len(r.store[userID]))
	for _, c := range r.store[userID] {
		out = append(out, c.Clone())
	}
	sortByCreation(out)
	return out
}

func (r *memoryRepository) publishLocked(userID string) {
	r.hub.publish(userID, r.snapshotLocked(userID))
}

func sortByCreation(items []Challenge) {
	slices.SortStableFunc(items, func(a, b Challenge) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
}
