package health

import (
	"context"
	"slices"
	"sync"
)

type userData struct {
	profile   *Profile
	metrics   []WeeklyMetric
	meals     map[string][]Meal
	templates []MealTemplate
}

type memoryRepository struct {
	mu    sync.RWMutex
	users map[string]*userData
}

// NewMemoryRepository returns an in-memory repository intended for local development and tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{users: make(map[string]*userData)}
}

func (r *memoryRepository) user(userID string) *userData {
	u, ok := r.users[userID]
	if !ok {
		u = &userData{meals: make(map[string][]Meal)}
		r.users[userID] = u
	}
	return u
}

func (r *memoryRepository) GetProfile(_ context.Context, userID string) (Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[userID]
	if !ok || u.profile == nil {
		return Profile{}, ErrNotFound
	}
	return *u.profile, nil
}

func (r *memoryRepository) SaveProfile(_ context.Context, userID string, p Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.user(userID).profile = &p
	return nil
}

func (r *memoryRepository) AddWeeklyMetric(_ context.Context, userID string, m WeeklyMetric) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.user(userID)
	u.metrics = append(u.metrics, m)
	return nil
}

func (r *memoryRepository) ListWeeklyMetrics(_ context.Context, userID string) ([]WeeklyMetric, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[userID]
	if !ok {
		return []WeeklyMetric{}, nil
	}
	out := slices.Clone(u.metrics)
	slices.SortStableFunc(out, func(a, b WeeklyMetric) int { return a.CreatedAt.Compare(b.CreatedAt) })
	if out == nil {
		out = []WeeklyMetric{}
	}
	return out, nil
}

func (r *memoryRepository) AddMeal(_ context.Context, userID string, m Meal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.user(userID)
	u.meals[m.Date] = append(u.meals[m.Date], m)
	return nil
}

func (r *memoryRepository) ListMeals(_ context.Context, userID, date string) ([]Meal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[userID]
	if !ok {
		return []Meal{}, nil
	}
	out := slices.Clone(u.meals[date])
	if out == nil {
		out = []Meal{}
	}
	return out, nil
}

func (r *memoryRepository) AddTemplate(_ context.Context, userID string, t MealTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.user(userID)
	u.templates = append(u.templates, t)
	return nil
}

func (r *memoryRepository) ListTemplates(_ context.Context, userID string) ([]MealTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[userID]
	if !ok {
		return []MealTemplate{}, nil
	}
	out := slices.Clone(u.templates)
	if out == nil {
		out = []MealTemplate{}
	}
	return out, nil
}
