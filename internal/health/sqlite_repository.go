package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/focusnest/challenge-service/internal/shared/docstore"
)

const (
	profileCollection  = "health_profile"
	profileID          = "profile"
	metricsCollection  = "weekly_metrics"
	templateCollection = "meal_templates"
)

func mealCollection(date string) string { return "meals/" + date }

type sqliteRepository struct {
	docs *docstore.Store
}

// NewSQLiteRepository stores health data as JSON documents in SQLite.
func NewSQLiteRepository(docs *docstore.Store) Repository {
	return &sqliteRepository{docs: docs}
}

func (r *sqliteRepository) GetProfile(ctx context.Context, userID string) (Profile, error) {
	var p Profile
	err := r.docs.Get(ctx, profileCollection, userID, profileID, &p)
	if errors.Is(err, docstore.ErrNotFound) {
		return Profile{}, ErrNotFound
	}
	return p, err
}

func (r *sqliteRepository) SaveProfile(ctx context.Context, userID string, p Profile) error {
	return r.docs.Put(ctx, profileCollection, userID, profileID, p, p.UpdatedAt)
}

func (r *sqliteRepository) AddWeeklyMetric(ctx context.Context, userID string, m WeeklyMetric) error {
	return r.docs.Insert(ctx, metricsCollection, userID, m.ID, m, m.CreatedAt)
}

func (r *sqliteRepository) ListWeeklyMetrics(ctx context.Context, userID string) ([]WeeklyMetric, error) {
	return listDocs[WeeklyMetric](ctx, r.docs, metricsCollection, userID)
}

func (r *sqliteRepository) AddMeal(ctx context.Context, userID string, m Meal) error {
	return r.docs.Insert(ctx, mealCollection(m.Date), userID, m.ID, m, m.CreatedAt)
}

func (r *sqliteRepository) ListMeals(ctx context.Context, userID, date string) ([]Meal, error) {
	return listDocs[Meal](ctx, r.docs, mealCollection(date), userID)
}

func (r *sqliteRepository) AddTemplate(ctx context.Context, userID string, t MealTemplate) error {
	return r.docs.Insert(ctx, templateCollection, userID, t.ID, t, t.CreatedAt)
}

func (r *sqliteRepository) ListTemplates(ctx context.Context, userID string) ([]MealTemplate, error) {
	return listDocs[MealTemplate](ctx, r.docs, templateCollection, userID)
}

func listDocs[T any](ctx context.Context, docs *docstore.Store, collection, userID string) ([]T, error) {
	bodies, err := docs.List(ctx, collection, userID)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(bodies))
	for _, b := range bodies {
		var v T
		if err := json.Unmarshal(b, &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", collection, err)
		}
		out = append(out, v)
	}
	return out, nil
}
