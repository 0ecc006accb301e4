package health

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Service orchestrates health tracking.
type Service struct {
	repo  Repository
	clock Clock
	ids   IDGenerator
}

// NewService constructs a Service instance with the provided collaborators.
func NewService(repo Repository, clock Clock, ids IDGenerator) (*Service, error) {
	if repo == nil {
		return nil, errors.New("repo is required")
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	if ids == nil {
		return nil, errors.New("id generator is required")
	}
	return &Service{repo: repo, clock: clock, ids: ids}, nil
}

// SaveProfile replaces the user's health profile.
func (s *Service) SaveProfile(ctx context.Context, userID string, p Profile) (Profile, error) {
	p.Gender = strings.ToLower(strings.TrimSpace(p.Gender))
	p.ActivityLevel = strings.ToLower(strings.TrimSpace(p.ActivityLevel))
	p.Goal = strings.ToLower(strings.TrimSpace(p.Goal))
	if err := validate.Struct(p); err != nil {
		return Profile{}, fmt.Errorf("%w: %s", ErrInvalidInput, validationMessage(err))
	}
	p.UpdatedAt = s.clock.Now().UTC()
	if err := s.repo.SaveProfile(ctx, userID, p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Profile returns the user's health profile.
func (s *Service) Profile(ctx context.Context, userID string) (Profile, error) {
	return s.repo.GetProfile(ctx, userID)
}

// AddWeeklyMetric records a weekly measurement.
func (s *Service) AddWeeklyMetric(ctx context.Context, userID string, m WeeklyMetric) (WeeklyMetric, error) {
	if err := validate.Struct(m); err != nil {
		return WeeklyMetric{}, fmt.Errorf("%w: %s", ErrInvalidInput, validationMessage(err))
	}
	m.ID = s.ids.NewID()
	m.CreatedAt = s.clock.Now().UTC()
	if err := s.repo.AddWeeklyMetric(ctx, userID, m); err != nil {
		return WeeklyMetric{}, err
	}
	return m, nil
}

// WeeklyMetrics lists measurements oldest first.
func (s *Service) WeeklyMetrics(ctx context.Context, userID string) ([]WeeklyMetric, error) {
	return s.repo.ListWeeklyMetrics(ctx, userID)
}

// LatestWeight returns the most recent weigh-in, or 0 when there is none.
func (s *Service) LatestWeight(ctx context.Context, userID string) (float64, error) {
	history, err := s.repo.ListWeeklyMetrics(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(history) == 0 {
		return 0, nil
	}
	return history[len(history)-1].Weight, nil
}

// WeightPoint is one entry of the weight chart.
type WeightPoint struct {
	Date   string  `json:"date"`
	Weight float64 `json:"weight"`
}

// Dashboard combines the profile, derived metrics and weight history.
type Dashboard struct {
	Profile       Profile       `json:"profile"`
	Metrics       Metrics       `json:"metrics"`
	WeightHistory []WeightPoint `json:"weight_history"`
}

// Dashboard derives metrics from the profile and the latest weigh-in.
func (s *Service) Dashboard(ctx context.Context, userID string) (Dashboard, error) {
	profile, err := s.repo.GetProfile(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return Dashboard{}, ErrIncomplete
	}
	if err != nil {
		return Dashboard{}, err
	}
	history, err := s.repo.ListWeeklyMetrics(ctx, userID)
	if err != nil {
		return Dashboard{}, err
	}
	if len(history) == 0 {
		return Dashboard{}, ErrIncomplete
	}

	points := make([]WeightPoint, len(history))
	for i, m := range history {
		points[i] = WeightPoint{Date: m.CreatedAt.Format(dateLayout), Weight: m.Weight}
	}
	return Dashboard{
		Profile:       profile,
		Metrics:       Derive(profile, history[len(history)-1].Weight),
		WeightHistory: points,
	}, nil
}

// AddMeal logs a meal. An empty date means today.
func (s *Service) AddMeal(ctx context.Context, userID string, m Meal) (Meal, error) {
	m.Name = strings.TrimSpace(m.Name)
	m.MealType = strings.ToLower(strings.TrimSpace(m.MealType))
	date, err := s.resolveDate(m.Date)
	if err != nil {
		return Meal{}, err
	}
	m.Date = date
	if err := validate.Struct(m); err != nil {
		return Meal{}, fmt.Errorf("%w: %s", ErrInvalidInput, validationMessage(err))
	}
	m.ID = s.ids.NewID()
	m.CreatedAt = s.clock.Now().UTC()
	if err := s.repo.AddMeal(ctx, userID, m); err != nil {
		return Meal{}, err
	}
	return m, nil
}

// DailyLog is a day's meals with totals and, when a profile exists, targets.
type DailyLog struct {
	Date        string         `json:"date"`
	Meals       []Meal         `json:"meals"`
	Totals      Macros         `json:"totals"`
	Targets     *Targets       `json:"targets,omitempty"`
	Percentages map[string]int `json:"percentages,omitempty"`
}

// DailyLog returns the meals for date (today when empty).
func (s *Service) DailyLog(ctx context.Context, userID, date string) (DailyLog, error) {
	day, err := s.resolveDate(date)
	if err != nil {
		return DailyLog{}, err
	}
	meals, err := s.repo.ListMeals(ctx, userID, day)
	if err != nil {
		return DailyLog{}, err
	}
	log := DailyLog{Date: day, Meals: meals, Totals: Totals(meals)}

	dash, err := s.Dashboard(ctx, userID)
	switch {
	case err == nil:
		t := DailyTargets(dash.Profile, dash.Metrics.CalorieTarget, dash.Metrics.Weight)
		log.Targets = &t
		log.Percentages = Percentages(log.Totals, t)
	case errors.Is(err, ErrIncomplete):
	default:
		return DailyLog{}, err
	}
	return log, nil
}

// AddTemplate stores a reusable meal.
func (s *Service) AddTemplate(ctx context.Context, userID string, t MealTemplate) (MealTemplate, error) {
	t.Name = strings.TrimSpace(t.Name)
	t.MealType = strings.ToLower(strings.TrimSpace(t.MealType))
	if err := validate.Struct(t); err != nil {
		return MealTemplate{}, fmt.Errorf("%w: %s", ErrInvalidInput, validationMessage(err))
	}
	t.ID = s.ids.NewID()
	t.CreatedAt = s.clock.Now().UTC()
	if err := s.repo.AddTemplate(ctx, userID, t); err != nil {
		return MealTemplate{}, err
	}
	return t, nil
}

// Templates lists the user's meal templates.
func (s *Service) Templates(ctx context.Context, userID string) ([]MealTemplate, error) {
	return s.repo.ListTemplates(ctx, userID)
}

func (s *Service) resolveDate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return s.clock.Now().UTC().Format(dateLayout), nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return "", fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidInput)
	}
	return t.Format(dateLayout), nil
}
