package challenge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/focusnest/challenge-service/internal/shared/docstore"
)

const challengesCollection = "challenges"

type sqliteRepository struct {
	docs *docstore.Store
	hub  *watchHub
	// serializes write+publish so subscribers observe snapshots in commit order
	mu sync.Mutex
}

// NewSQLiteRepository stores challenges as JSON documents in SQLite. Watch only sees
// writes made through this process.
func NewSQLiteRepository(docs *docstore.Store) Repository {
	return &sqliteRepository{docs: docs, hub: newWatchHub()}
}

func (r *sqliteRepository) Create(ctx context.Context, c Challenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.docs.Insert(ctx, challengesCollection, c.UserID, c.ID, c, c.CreatedAt)
	if errors.Is(err, docstore.ErrExists) {
		return ErrConflict
	}
	if err != nil {
		return err
	}
	r.publish(ctx, c.UserID)
	return nil
}

func (r *sqliteRepository) Get(ctx context.Context, userID, id string) (Challenge, error) {
	var c Challenge
	err := r.docs.Get(ctx, challengesCollection, userID, id, &c)
	if errors.Is(err, docstore.ErrNotFound) {
		return Challenge{}, ErrNotFound
	}
	return c, err
}

func (r *sqliteRepository) List(ctx context.Context, userID string) ([]Challenge, error) {
	bodies, err := r.docs.List(ctx, challengesCollection, userID)
	if err != nil {
		return nil, err
	}
	out := make([]Challenge, 0, len(bodies))
	for _, b := range bodies {
		var c Challenge
		if err := json.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("decode challenge: %w", err)
		}
		out = append(out, c)
	}
	sortByCreation(out)
	return out, nil
}

func (r *sqliteRepository) SaveProgress(ctx context.Context, userID, id string, update ProgressUpdate) error {
	return r.mutate(ctx, userID, id, update.UpdatedAt, func(c *Challenge) {
		c.Progress = update.Progress
		c.History = update.History
		c.TotalCompletions = update.TotalCompletions
		c.UpdatedAt = update.UpdatedAt
	})
}

func (r *sqliteRepository) SetPhoto(ctx context.Context, userID, id string, day int, ref string, updatedAt time.Time) error {
	return r.mutate(ctx, userID, id, updatedAt, func(c *Challenge) {
		if c.Progress.Photos == nil {
			c.Progress.Photos = map[int]string{}
		}
		c.Progress.Photos[day] = ref
		c.UpdatedAt = updatedAt
	})
}

func (r *sqliteRepository) mutate(ctx context.Context, userID, id string, at time.Time, apply func(*Challenge)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var c Challenge
	err := r.docs.Update(ctx, challengesCollection, userID, id, &c, func() error {
		apply(&c)
		return nil
	}, at)
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	r.publish(ctx, userID)
	return nil
}

func (r *sqliteRepository) Delete(ctx context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.docs.Delete(ctx, challengesCollection, userID, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	r.publish(ctx, userID)
	return nil
}

func (r *sqliteRepository) Watch(ctx context.Context, userID string) (<-chan []Challenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	initial, err := r.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	return r.hub.subscribe(ctx, userID, initial), nil
}

// publish is best effort: a failed read leaves subscribers on their previous snapshot.
func (r *sqliteRepository) publish(ctx context.Context, userID string) {
	snapshot, err := r.List(context.WithoutCancel(ctx), userID)
	if err != nil {
		return
	}
	r.hub.publish(userID, snapshot)
}
