package challenge

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeRepo struct {
	createFn       func(context.Context, Challenge) error
	getFn          func(context.Context, string, string) (Challenge, error)
	listFn         func(context.Context, string) ([]Challenge, error)
	saveProgressFn func(context.Context, string, string, ProgressUpdate) error
	setPhotoFn     func(context.Context, string, string, int, string, time.Time) error
	deleteFn       func(context.Context, string, string) error
	watchFn        func(context.Context, string) (<-chan []Challenge, error)
}

func (f *fakeRepo) Create(ctx context.Context, c Challenge) error {
	if f.createFn != nil {
		return f.createFn(ctx, c)
	}
	return errors.New("createFn not provided")
}

func (f *fakeRepo) Get(ctx context.Context, userID, id string) (Challenge, error) {
	if f.getFn != nil {
		return f.getFn(ctx, userID, id)
	}
	return Challenge{}, errors.New("getFn not provided")
}

func (f *fakeRepo) List(ctx context.Context, userID string) ([]Challenge, error) {
	if f.listFn != nil {
		return f.listFn(ctx, userID)
	}
	return nil, nil
}

func (f *fakeRepo) SaveProgress(ctx context.Context, userID, id string, update ProgressUpdate) error {
	if f.saveProgressFn != nil {
		return f.saveProgressFn(ctx, userID, id, update)
	}
	return errors.New("saveProgressFn not provided")
}

func (f *fakeRepo) SetPhoto(ctx context.Context, userID, id string, day int, ref string, at time.Time) error {
	if f.setPhotoFn != nil {
		return f.setPhotoFn(ctx, userID, id, day, ref, at)
	}
	return errors.New("setPhotoFn not provided")
}

func (f *fakeRepo) Delete(ctx context.Context, userID, id string) error {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, userID, id)
	}
	return errors.New("deleteFn not provided")
}

func (f *fakeRepo) Watch(ctx context.Context, userID string) (<-chan []Challenge, error) {
	if f.watchFn != nil {
		return f.watchFn(ctx, userID)
	}
	return nil, errors.New("watchFn not provided")
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return "id-" + string(rune('0'+s.n))
}

type countingRecorder struct {
	days, perfect, cycles, photos int
}

func (r *countingRecorder) DayCompleted(perfect bool) {
	r.days++
	if perfect {
		r.perfect++
	}
}
func (r *countingRecorder) CycleCompleted() { r.cycles++ }
func (r *countingRecorder) PhotoUploaded()  { r.photos++ }

type fakeUploader struct {
	uploadFn func(context.Context, string, string, int, io.Reader, string, string) (string, error)
}

func (f fakeUploader) Upload(ctx context.Context, userID, challengeID string, day int, r io.Reader, filename, contentType string) (string, error) {
	return f.uploadFn(ctx, userID, challengeID, day, r, filename, contentType)
}

func newTestService(t *testing.T, repo Repository, opts ...Option) *Service {
	t.Helper()
	svc, err := NewService(repo, fixedClock{now: fixedNow}, &seqIDs{}, opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestServiceCreate_InvalidInputNeverPersists(t *testing.T) {
	repo := &fakeRepo{createFn: func(context.Context, Challenge) error {
		t.Fatal("repository must not be called for invalid input")
		return nil
	}}
	svc := newTestService(t, repo)

	_, err := svc.Create(context.Background(), CreateInput{UserID: "u1", Name: "", Duration: 0})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v", err)
	}
}

func TestServiceCreate_StartsAtDayOne(t *testing.T) {
	var stored Challenge
	repo := &fakeRepo{createFn: func(_ context.Context, c Challenge) error {
		stored = c
		return nil
	}}
	svc := newTestService(t, repo)

	c, err := svc.Create(context.Background(), CreateInput{
		UserID:   "u1",
		Name:     "  Morning  ",
		Duration: 21,
		Tasks:    []TaskInput{{Name: "Meditate"}, {Name: "Walk", Unit: "steps", Target: 8000}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.ID != c.ID || c.ID == "" {
		t.Fatalf("id mismatch: %q vs %q", stored.ID, c.ID)
	}
	if c.Name != "Morning" || c.Progress.Day != 1 || c.TotalCompletions != 0 || len(c.History) != 0 {
		t.Fatalf("challenge = %+v", c)
	}
	if c.Tasks[0].Kind() != TaskKindBoolean || c.Tasks[1].Target != 8000 {
		t.Fatalf("tasks = %+v", c.Tasks)
	}
	if !c.CreatedAt.Equal(fixedNow) {
		t.Fatalf("created_at = %v", c.CreatedAt)
	}
}

func TestServiceCompleteDay_PersistsBeforeAdvancing(t *testing.T) {
	base := sampleChallenge(3)
	var saved ProgressUpdate
	rec := &countingRecorder{}
	repo := &fakeRepo{
		getFn: func(context.Context, string, string) (Challenge, error) { return base, nil },
		saveProgressFn: func(_ context.Context, userID, id string, u ProgressUpdate) error {
			if userID != "u1" || id != "c1" {
				t.Fatalf("save scoped to %s/%s", userID, id)
			}
			saved = u
			return nil
		},
	}
	svc := newTestService(t, repo, WithRecorder(rec))

	out, err := svc.CompleteDay(context.Background(), "u1", "c1", []float64{64, 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved.Progress.Day != 2 || out.Challenge.Progress.Day != 2 {
		t.Fatalf("saved=%d returned=%d", saved.Progress.Day, out.Challenge.Progress.Day)
	}
	if saved.Progress.LongestStreak != 1 {
		t.Fatalf("longest = %d", saved.Progress.LongestStreak)
	}
	if rec.days != 1 || rec.perfect != 1 || rec.cycles != 0 {
		t.Fatalf("recorder = %+v", rec)
	}
}

func TestServiceCompleteDay_WriteFailureDoesNotAdvance(t *testing.T) {
	rec := &countingRecorder{}
	repo := &fakeRepo{
		getFn:          func(context.Context, string, string) (Challenge, error) { return sampleChallenge(3), nil },
		saveProgressFn: func(context.Context, string, string, ProgressUpdate) error { return errors.New("unavailable") },
	}
	svc := newTestService(t, repo, WithRecorder(rec))

	out, err := svc.CompleteDay(context.Background(), "u1", "c1", []float64{64, 1})
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("err = %v", err)
	}
	if out.Challenge.ID != "" || rec.days != 0 {
		t.Fatalf("state advanced on failure: %+v %+v", out, rec)
	}
}

func TestServiceCompleteDay_FinishedCycleIsNoop(t *testing.T) {
	c := sampleChallenge(2)
	c.Progress.Day = 3
	repo := &fakeRepo{
		getFn: func(context.Context, string, string) (Challenge, error) { return c, nil },
		saveProgressFn: func(context.Context, string, string, ProgressUpdate) error {
			t.Fatal("nothing should be persisted")
			return nil
		},
	}
	svc := newTestService(t, repo)

	if _, err := svc.CompleteDay(context.Background(), "u1", "c1", []float64{0, 0}); !errors.Is(err, ErrCycleFinished) {
		t.Fatalf("err = %v", err)
	}
}

func TestServiceCompleteDay_RejectsConcurrentMutation(t *testing.T) {
	entered := make(chan struct{})
	unblock := make(chan struct{})
	repo := &fakeRepo{
		getFn: func(context.Context, string, string) (Challenge, error) { return sampleChallenge(3), nil },
		saveProgressFn: func(context.Context, string, string, ProgressUpdate) error {
			close(entered)
			<-unblock
			return nil
		},
	}
	svc := newTestService(t, repo)

	done := make(chan error, 1)
	go func() {
		_, err := svc.CompleteDay(context.Background(), "u1", "c1", []float64{64, 1})
		done <- err
	}()
	<-entered

	if _, err := svc.CompleteDay(context.Background(), "u1", "c1", []float64{64, 1}); !errors.Is(err, ErrMutationInFlight) {
		t.Fatalf("second call err = %v", err)
	}
	close(unblock)
	if err := <-done; err != nil {
		t.Fatalf("first call err = %v", err)
	}
}

func TestServiceCompleteDay_CycleCompletionRecorded(t *testing.T) {
	c := sampleChallenge(1)
	rec := &countingRecorder{}
	repo := &fakeRepo{
		getFn:          func(context.Context, string, string) (Challenge, error) { return c, nil },
		saveProgressFn: func(context.Context, string, string, ProgressUpdate) error { return nil },
	}
	svc := newTestService(t, repo, WithRecorder(rec))

	out, err := svc.CompleteDay(context.Background(), "u1", "c1", []float64{64, 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Kind != OutcomeCycleCompleted || rec.cycles != 1 {
		t.Fatalf("kind=%s cycles=%d", out.Kind, rec.cycles)
	}
}

func TestServiceUploadPhoto(t *testing.T) {
	var setDay int
	var setRef string
	repo := &fakeRepo{
		getFn: func(context.Context, string, string) (Challenge, error) { return sampleChallenge(5), nil },
		setPhotoFn: func(_ context.Context, _, _ string, day int, ref string, _ time.Time) error {
			setDay, setRef = day, ref
			return nil
		},
	}
	uploader := fakeUploader{uploadFn: func(_ context.Context, userID, challengeID string, day int, r io.Reader, filename, _ string) (string, error) {
		body, _ := io.ReadAll(r)
		if string(body) != "jpeg-bytes" || filename != "me.jpg" {
			t.Fatalf("upload got %q %q", body, filename)
		}
		return "photos/" + userID + "/" + challengeID + "/day-3.jpg", nil
	}}
	rec := &countingRecorder{}
	svc := newTestService(t, repo, WithPhotoUploader(uploader), WithRecorder(rec))

	c, err := svc.UploadPhoto(context.Background(), "u1", "c1", PhotoInput{Day: 3, Body: strings.NewReader("jpeg-bytes"), Filename: "me.jpg"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if setDay != 3 || setRef != "photos/u1/c1/day-3.jpg" || c.Progress.Photos[3] != setRef {
		t.Fatalf("day=%d ref=%q photos=%v", setDay, setRef, c.Progress.Photos)
	}
	if rec.photos != 1 {
		t.Fatalf("photos recorded = %d", rec.photos)
	}

	_, err = svc.UploadPhoto(context.Background(), "u1", "c1", PhotoInput{Day: 6, Body: strings.NewReader("x")})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("out-of-range day err = %v", err)
	}
}

func TestServiceEnsureDefault(t *testing.T) {
	var created []Challenge
	repo := &fakeRepo{
		listFn: func(context.Context, string) ([]Challenge, error) { return nil, nil },
		createFn: func(_ context.Context, c Challenge) error {
			created = append(created, c)
			return nil
		},
	}
	svc := newTestService(t, repo, WithDefaultTemplate(DefaultTemplate()))

	ok, err := svc.EnsureDefault(context.Background(), "u1")
	if err != nil || !ok {
		t.Fatalf("EnsureDefault = %v, %v", ok, err)
	}
	if len(created) != 1 || created[0].Duration != 75 || created[0].UserID != "u1" {
		t.Fatalf("created = %+v", created)
	}

	repo.listFn = func(context.Context, string) ([]Challenge, error) { return created, nil }
	ok, err = svc.EnsureDefault(context.Background(), "u1")
	if err != nil || ok {
		t.Fatalf("second EnsureDefault = %v, %v", ok, err)
	}

	plain := newTestService(t, repo)
	if ok, _ := plain.EnsureDefault(context.Background(), "u2"); ok {
		t.Fatalf("no template configured, nothing should be created")
	}
}

func TestServiceGet_NormalizesStoredProgress(t *testing.T) {
	legacy := sampleChallenge(10)
	legacy.Progress = Progress{Day: 5, CompletedDays: []int{1, 2, 3, 4}, PerfectDays: []int{1, 3, 4}, LongestStreak: 3}
	repo := &fakeRepo{getFn: func(context.Context, string, string) (Challenge, error) { return legacy, nil }}
	svc := newTestService(t, repo)

	c, err := svc.Get(context.Background(), "u1", "c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Progress.LongestStreak != 2 {
		t.Fatalf("longest = %d, want 2", c.Progress.LongestStreak)
	}
}
