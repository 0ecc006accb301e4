// Package health tracks body metrics, derived energy targets and food logs.
package health

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Profile holds the inputs for energy calculations. Height is in inches.
type Profile struct {
	HeightInches  float64   `json:"height_inches" validate:"gt=0,lte=120"`
	Age           int       `json:"age" validate:"gt=0,lte=130"`
	Gender        string    `json:"gender" validate:"required,oneof=male female other"`
	ActivityLevel string    `json:"activity_level" validate:"required,oneof=sedentary light moderate active very_active"`
	Goal          string    `json:"goal" validate:"required,oneof=fat_loss muscle_gain maintenance"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// WeeklyMetric is a weekly body measurement. Weight is in pounds, girths in inches.
type WeeklyMetric struct {
	ID        string    `json:"id"`
	Weight    float64   `json:"weight" validate:"gt=0"`
	Chest     float64   `json:"chest" validate:"gt=0"`
	Arms      float64   `json:"arms" validate:"gt=0"`
	Waist     float64   `json:"waist" validate:"gt=0"`
	Thighs    float64   `json:"thighs" validate:"gt=0"`
	CreatedAt time.Time `json:"created_at"`
}

// Macros are per-meal nutrition values in kcal and grams.
type Macros struct {
	Calories float64 `json:"calories" validate:"gte=0"`
	Protein  float64 `json:"protein" validate:"gte=0"`
	Carbs    float64 `json:"carbs" validate:"gte=0"`
	Fat      float64 `json:"fat" validate:"gte=0"`
	Fiber    float64 `json:"fiber" validate:"gte=0"`
}

// Meal is a food log entry for a calendar date (YYYY-MM-DD).
type Meal struct {
	ID       string `json:"id"`
	Date     string `json:"date"`
	MealType string `json:"meal_type" validate:"required,oneof=breakfast lunch dinner snack"`
	Name     string `json:"name" validate:"required,max=120"`
	Macros
	CreatedAt time.Time `json:"created_at"`
}

// MealTemplate is a reusable meal definition.
type MealTemplate struct {
	ID       string `json:"id"`
	MealType string `json:"meal_type" validate:"required,oneof=breakfast lunch dinner snack"`
	Name     string `json:"name" validate:"required,max=120"`
	Macros
	CreatedAt time.Time `json:"created_at"`
}

// Repository persists health data per user.
type Repository interface {
	GetProfile(ctx context.Context, userID string) (Profile, error)
	SaveProfile(ctx context.Context, userID string, p Profile) error
	AddWeeklyMetric(ctx context.Context, userID string, m WeeklyMetric) error
	// ListWeeklyMetrics returns entries oldest first.
	ListWeeklyMetrics(ctx context.Context, userID string) ([]WeeklyMetric, error)
	AddMeal(ctx context.Context, userID string, m Meal) error
	ListMeals(ctx context.Context, userID, date string) ([]Meal, error)
	AddTemplate(ctx context.Context, userID string, t MealTemplate) error
	ListTemplates(ctx context.Context, userID string) ([]MealTemplate, error)
}

var (
	// ErrNotFound indicates missing data, typically an unset profile.
	ErrNotFound = errors.New("health data not found")
	// ErrInvalidInput indicates the provided data failed validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrIncomplete is returned when derived metrics need a profile and at least one weigh-in.
	ErrIncomplete = errors.New("health profile and a weekly weight are required")
)

// Clock delivers the current time.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces identifiers for new records.
type IDGenerator interface {
	NewID() string
}

var validate = validator.New()

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, strings.ToLower(fe.Field())+" failed "+fe.Tag())
	}
	return strings.Join(parts, "; ")
}
