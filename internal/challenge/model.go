package challenge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// TaskKind distinguishes checkbox tasks from quantity tasks.
type TaskKind string

const (
	TaskKindBoolean  TaskKind = "boolean"
	TaskKindQuantity TaskKind = "quantity"
)

// Task is a daily requirement. A target of exactly 1 makes it a checkbox.
type Task struct {
	Name   string  `json:"name"`
	Unit   string  `json:"unit,omitempty"`
	Target float64 `json:"target"`
}

// Kind reports whether the task is a checkbox or a quantity.
func (t Task) Kind() TaskKind {
	if t.Target == 1 {
		return TaskKindBoolean
	}
	return TaskKindQuantity
}

// Met reports whether value satisfies the task for the day.
func (t Task) Met(value float64) bool {
	return value >= t.Target
}

// Progress is the in-cycle state of a challenge. It is replaced wholesale on every
// transition; callers must not share slices or maps between values.
type Progress struct {
	Day           int            `json:"day"`
	CompletedDays []int          `json:"completed_days"`
	PerfectDays   []int          `json:"perfect_days"`
	LongestStreak int            `json:"longest_streak"`
	Photos        map[int]string `json:"photos"`
}

// HistoryEntry records a finished cycle. Entries are never modified once appended.
type HistoryEntry struct {
	CompletedAt      time.Time      `json:"completed_at"`
	LongestStreak    int            `json:"longest_streak"`
	PerfectDaysCount int            `json:"perfect_days_count"`
	Photos           map[int]string `json:"photos,omitempty"`
}

// Challenge is a user-defined, repeatable program of daily tasks.
type Challenge struct {
	ID               string         `json:"id"`
	UserID           string         `json:"user_id"`
	Name             string         `json:"name"`
	Duration         int            `json:"duration"`
	Tasks            []Task         `json:"tasks"`
	Progress         Progress       `json:"progress"`
	History          []HistoryEntry `json:"history"`
	TotalCompletions int            `json:"total_completions"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// ProgressUpdate is the set of fields written by a day completion.
type ProgressUpdate struct {
	Progress         Progress
	History          []HistoryEntry
	TotalCompletions int
	UpdatedAt        time.Time
}

// Repository encapsulates persistence for challenges. Implementations scope every
// call to the owning user.
type Repository interface {
	Create(ctx context.Context, c Challenge) error
	Get(ctx context.Context, userID, id string) (Challenge, error)
	List(ctx context.Context, userID string) ([]Challenge, error)
	SaveProgress(ctx context.Context, userID, id string, update ProgressUpdate) error
	SetPhoto(ctx context.Context, userID, id string, day int, ref string, updatedAt time.Time) error
	Delete(ctx context.Context, userID, id string) error
	// Watch emits the user's full catalog on subscribe and after every change until
	// ctx is done, then closes the channel.
	Watch(ctx context.Context, userID string) (<-chan []Challenge, error)
}

// PhotoUploader stores the binary image for a challenge day and returns a reference.
type PhotoUploader interface {
	Upload(ctx context.Context, userID, challengeID string, day int, r io.Reader, filename, contentType string) (string, error)
}

// Recorder receives domain counters. metrics.Metrics satisfies it.
type Recorder interface {
	DayCompleted(perfect bool)
	CycleCompleted()
	PhotoUploaded()
}

var (
	// ErrNotFound indicates the challenge does not exist for the user.
	ErrNotFound = errors.New("challenge not found")
	// ErrConflict indicates a duplicate identifier collision.
	ErrConflict = errors.New("challenge already exists")
	// ErrInvalidInput indicates the provided data failed validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrCycleFinished is returned when completing a day past the challenge duration.
	ErrCycleFinished = errors.New("challenge cycle already finished")
	// ErrMutationInFlight is returned while another write to the same challenge is pending.
	ErrMutationInFlight = errors.New("another update to this challenge is in progress")
	// ErrPersistence wraps storage failures during writes; no state was advanced.
	ErrPersistence = errors.New("failed to persist challenge")
)

// Clock delivers the current time; extracted for deterministic testing.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces unique identifiers for new challenges.
type IDGenerator interface {
	NewID() string
}

var validate = validator.New()

// TaskInput describes a task in a create request.
type TaskInput struct {
	Name   string  `json:"name" validate:"required,max=80"`
	Unit   string  `json:"unit" validate:"max=32"`
	Target float64 `json:"target" validate:"gte=0"`
}

// CreateInput captures the data required to create a new challenge.
type CreateInput struct {
	UserID   string      `validate:"required"`
	Name     string      `json:"name" validate:"required,max=120"`
	Duration int         `json:"duration" validate:"gte=1,lte=1000"`
	Tasks    []TaskInput `json:"tasks" validate:"required,min=1,max=50,dive"`
}

// Normalize trims text fields and applies the default target of 1.
func (i CreateInput) Normalize() CreateInput {
	out := CreateInput{
		UserID:   strings.TrimSpace(i.UserID),
		Name:     strings.TrimSpace(i.Name),
		Duration: i.Duration,
		Tasks:    make([]TaskInput, len(i.Tasks)),
	}
	for idx, t := range i.Tasks {
		t.Name = strings.TrimSpace(t.Name)
		t.Unit = strings.TrimSpace(t.Unit)
		if t.Target == 0 {
			t.Target = 1
		}
		out.Tasks[idx] = t
	}
	return out
}

// Validate ensures the input fields meet the domain constraints.
func (i CreateInput) Validate() error {
	err := validate.Struct(i)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, describe(fe))
	}
	return errors.New(strings.Join(problems, "; "))
}

func describe(fe validator.FieldError) string {
	field := strings.ToLower(fe.Namespace())
	field = strings.TrimPrefix(field, "createinput.")
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must have at least %s item(s)", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}
