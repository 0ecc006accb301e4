package challenge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Service orchestrates the domain operations for challenges.
type Service struct {
	repo     Repository
	clock    Clock
	ids      IDGenerator
	photos   PhotoUploader
	recorder Recorder
	template *CreateInput
	guard    *inflight
}

// Option customizes a Service.
type Option func(*Service)

// WithRecorder wires domain counters.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithPhotoUploader enables progress photo uploads.
func WithPhotoUploader(p PhotoUploader) Option {
	return func(s *Service) { s.photos = p }
}

// WithDefaultTemplate makes EnsureDefault create the given challenge for users with an
// empty catalog.
func WithDefaultTemplate(t CreateInput) Option {
	return func(s *Service) { s.template = &t }
}

// NewService constructs a Service instance with the provided collaborators.
func NewService(repo Repository, clock Clock, ids IDGenerator, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, errors.New("repo is required")
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	if ids == nil {
		return nil, errors.New("id generator is required")
	}
	s := &Service{repo: repo, clock: clock, ids: ids, guard: newInflight()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Create validates the input and stores a new challenge starting at day 1. Invalid
// input never reaches the repository.
func (s *Service) Create(ctx context.Context, input CreateInput) (Challenge, error) {
	input = input.Normalize()
	if err := input.Validate(); err != nil {
		return Challenge{}, fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
	}

	now := s.clock.Now().UTC()
	tasks := make([]Task, len(input.Tasks))
	for i, t := range input.Tasks {
		tasks[i] = Task{Name: t.Name, Unit: t.Unit, Target: t.Target}
	}

	c := Challenge{
		ID:        s.ids.NewID(),
		UserID:    input.UserID,
		Name:      input.Name,
		Duration:  input.Duration,
		Tasks:     tasks,
		Progress:  NewProgress(),
		History:   []HistoryEntry{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, c); err != nil {
		return Challenge{}, err
	}
	return c, nil
}

// EnsureDefault creates the configured template when the user has no challenges yet.
// It reports whether a challenge was created.
func (s *Service) EnsureDefault(ctx context.Context, userID string) (bool, error) {
	if s.template == nil || userID == "" {
		return false, nil
	}
	existing, err := s.repo.List(ctx, userID)
	if err != nil {
		return false, err
	}
	if len(existing) > 0 {
		return false, nil
	}
	input := *s.template
	input.UserID = userID
	input.Tasks = append([]TaskInput(nil), s.template.Tasks...)
	if _, err := s.Create(ctx, input); err != nil {
		return false, err
	}
	return true, nil
}

// Get retrieves a single challenge for the user.
func (s *Service) Get(ctx context.Context, userID, id string) (Challenge, error) {
	if userID == "" || strings.TrimSpace(id) == "" {
		return Challenge{}, ErrNotFound
	}
	c, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return Challenge{}, err
	}
	return c.normalized(), nil
}

// List returns the user's catalog ordered by creation time.
func (s *Service) List(ctx context.Context, userID string) ([]Challenge, error) {
	if userID == "" {
		return nil, ErrNotFound
	}
	items, err := s.repo.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]Challenge, len(items))
	for i, c := range items {
		out[i] = c.normalized()
	}
	return out, nil
}

// Watch streams catalog snapshots until ctx is done.
func (s *Service) Watch(ctx context.Context, userID string) (<-chan []Challenge, error) {
	if userID == "" {
		return nil, ErrNotFound
	}
	src, err := s.repo.Watch(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make(chan []Challenge)
	go func() {
		defer close(out)
		for snapshot := range src {
			items := make([]Challenge, len(snapshot))
			for i, c := range snapshot {
				items[i] = c.normalized()
			}
			select {
			case out <- items:
			case <-ctx.Done():
				// drain so the source can close
				for range src {
				}
				return
			}
		}
	}()
	return out, nil
}

// Delete removes a challenge.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if userID == "" || strings.TrimSpace(id) == "" {
		return ErrNotFound
	}
	release, ok := s.guard.acquire(mutationKey(userID, id))
	if !ok {
		return ErrMutationInFlight
	}
	defer release()
	return s.repo.Delete(ctx, userID, id)
}

// CompleteDay finalizes the current day using live task values. The advanced state is
// returned only after the repository confirmed the write; on failure nothing advances.
func (s *Service) CompleteDay(ctx context.Context, userID, id string, live []float64) (Outcome, error) {
	if userID == "" || strings.TrimSpace(id) == "" {
		return Outcome{}, ErrNotFound
	}
	release, ok := s.guard.acquire(mutationKey(userID, id))
	if !ok {
		return Outcome{}, ErrMutationInFlight
	}
	defer release()

	current, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return Outcome{}, err
	}

	outcome, err := CompleteDay(current, live, s.clock.Now().UTC())
	if err != nil {
		return Outcome{}, err
	}

	next := outcome.Challenge
	err = s.repo.SaveProgress(ctx, userID, id, ProgressUpdate{
		Progress:         next.Progress,
		History:          next.History,
		TotalCompletions: next.TotalCompletions,
		UpdatedAt:        next.UpdatedAt,
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Outcome{}, err
		}
		return Outcome{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if s.recorder != nil {
		s.recorder.DayCompleted(outcome.Perfect)
		if outcome.Kind == OutcomeCycleCompleted {
			s.recorder.CycleCompleted()
		}
	}
	return outcome, nil
}

// PhotoInput is a progress photo to attach to a day.
type PhotoInput struct {
	Day         int
	Body        io.Reader
	Filename    string
	ContentType string
}

// UploadPhoto stores the image and records its reference under the given day.
func (s *Service) UploadPhoto(ctx context.Context, userID, id string, in PhotoInput) (Challenge, error) {
	if userID == "" || strings.TrimSpace(id) == "" {
		return Challenge{}, ErrNotFound
	}
	if s.photos == nil {
		return Challenge{}, errors.New("photo uploads are not configured")
	}
	if in.Body == nil {
		return Challenge{}, fmt.Errorf("%w: image is required", ErrInvalidInput)
	}

	release, ok := s.guard.acquire(mutationKey(userID, id))
	if !ok {
		return Challenge{}, ErrMutationInFlight
	}
	defer release()

	c, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return Challenge{}, err
	}
	if in.Day < 1 || in.Day > c.Duration {
		return Challenge{}, fmt.Errorf("%w: day must be between 1 and %d", ErrInvalidInput, c.Duration)
	}

	ref, err := s.photos.Upload(ctx, userID, id, in.Day, in.Body, in.Filename, in.ContentType)
	if err != nil {
		return Challenge{}, fmt.Errorf("%w: upload photo: %v", ErrPersistence, err)
	}

	now := s.clock.Now().UTC()
	if err := s.repo.SetPhoto(ctx, userID, id, in.Day, ref, now); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Challenge{}, err
		}
		return Challenge{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if s.recorder != nil {
		s.recorder.PhotoUploaded()
	}

	next := c.normalized()
	next.Progress.Photos[in.Day] = ref
	next.UpdatedAt = now
	return next, nil
}
