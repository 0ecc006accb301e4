package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/focusnest/challenge-service/internal/challenge"
	"github.com/focusnest/challenge-service/internal/health"
	"github.com/focusnest/challenge-service/internal/notify"
	"github.com/focusnest/challenge-service/internal/photo"
	"github.com/focusnest/challenge-service/internal/profile"
	"github.com/focusnest/challenge-service/internal/session"
	sharedauth "github.com/focusnest/challenge-service/internal/shared/auth"
	sharederrors "github.com/focusnest/challenge-service/internal/shared/errors"
	"github.com/focusnest/challenge-service/internal/shared/logging"
	"github.com/focusnest/challenge-service/internal/shared/ratelimit"
	sharedserver "github.com/focusnest/challenge-service/internal/shared/server"
)

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
	return fmt.Sprintf("id-%d", s.n)
}

var testNow = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

// savesRepo fails or holds SaveProgress calls on demand.
type savesRepo struct {
	challenge.Repository

	mu      sync.Mutex
	failErr error
	hold    chan struct{}
	entered chan struct{}
}

func (r *savesRepo) SaveProgress(ctx context.Context, userID, id string, update challenge.ProgressUpdate) error {
	r.mu.Lock()
	failErr, hold, entered := r.failErr, r.hold, r.entered
	r.mu.Unlock()
	if hold != nil {
		entered <- struct{}{}
		<-hold
	}
	if failErr != nil {
		return failErr
	}
	return r.Repository.SaveProgress(ctx, userID, id, update)
}

func (r *savesRepo) failWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failErr = err
}

// holdSaves blocks the next SaveProgress until release is called. entered
// receives once the call is waiting.
func (r *savesRepo) holdSaves() (entered <-chan struct{}, release func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	hold := make(chan struct{})
	r.hold = hold
	r.entered = make(chan struct{}, 1)
	return r.entered, func() {
		r.mu.Lock()
		r.hold, r.entered = nil, nil
		r.mu.Unlock()
		close(hold)
	}
}

func withChallengeRepo(t *testing.T, repo challenge.Repository) func(*Deps) {
	t.Helper()
	return func(d *Deps) {
		svc, err := challenge.NewService(repo, fixedClock{now: testNow}, &seqIDs{},
			challenge.WithPhotoUploader(d.Media),
			challenge.WithDefaultTemplate(challenge.DefaultTemplate()),
		)
		require.NoError(t, err)
		d.Challenges = svc
	}
}

type testEnv struct {
	router http.Handler
}

func newTestEnv(t *testing.T, mutate ...func(*Deps)) *testEnv {
	t.Helper()
	clock := fixedClock{now: testNow}
	ids := &seqIDs{}
	media := photo.NewMemoryStore("/v1/media")

	challenges, err := challenge.NewService(challenge.NewMemoryRepository(), clock, ids,
		challenge.WithPhotoUploader(media),
		challenge.WithDefaultTemplate(challenge.DefaultTemplate()),
	)
	require.NoError(t, err)
	healthSvc, err := health.NewService(health.NewMemoryRepository(), clock, ids)
	require.NoError(t, err)
	profiles, err := profile.NewService(challenges, healthSvc)
	require.NoError(t, err)
	verifier, err := sharedauth.NewVerifier(sharedauth.Config{Mode: sharedauth.ModeNoop})
	require.NoError(t, err)

	deps := Deps{
		Challenges: challenges,
		Sessions:   session.NewStore(0),
		Health:     healthSvc,
		Profiles:   profiles,
		Photos:     media,
		Notices:    notify.NewBuilder(3 * time.Second),
		Verifier:   verifier,
		Media:      media,
		Logger:     logging.Discard(),
	}
	for _, m := range mutate {
		m(&deps)
	}
	router := sharedserver.NewRouter("challenge-service", func(r chi.Router) {
		RegisterRoutes(r, deps)
	}, sharedserver.WithRequestTimeout(0))
	return &testEnv{router: router}
}

func (e *testEnv) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+userID)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (e *testEnv) createChallenge(t *testing.T, userID string, duration int, tasks ...challenge.TaskInput) challenge.View {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/v1/challenges", userID, map[string]any{
		"name":     "Test run",
		"duration": duration,
		"tasks":    tasks,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[challenge.View](t, rec)
}

func TestSessionFlow_CompletesPerfectDay(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/session", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	started := decode[sessionResponse](t, rec)
	assert.True(t, started.Seeded)
	require.NotNil(t, started.Active)
	assert.Equal(t, "75 Hard", started.Active.Name)
	assert.Equal(t, 1, started.Active.Day)
	require.Len(t, started.Active.Tasks, 5)
	assert.Equal(t, started.Active.ID, started.Session.ActiveChallengeID)

	values := []map[string]any{
		{"value": 2},
		{"value": 128},
		{"value": 10},
		{"done": true},
		{"done": true},
	}
	var last sessionResponse
	for i, body := range values {
		rec = env.do(t, http.MethodPut, fmt.Sprintf("/v1/session/tasks/%d", i), "alice", body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		last = decode[sessionResponse](t, rec)
	}
	require.NotNil(t, last.Active)
	assert.True(t, last.Active.WouldBePerfect)

	rec = env.do(t, http.MethodPost, "/v1/session/complete-day", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode[outcomeResponse](t, rec)
	assert.Equal(t, challenge.OutcomeDayCompleted, out.Kind)
	assert.True(t, out.Perfect)
	assert.Equal(t, 1, out.Day)
	assert.Equal(t, 1, out.Streak.Current)
	assert.Equal(t, 2, out.Challenge.Day)
	assert.Equal(t, notify.KindDayCompleted, out.Notification.Kind)
	assert.Equal(t, int64(3000), out.Notification.DismissAfterMs)

	rec = env.do(t, http.MethodGet, "/v1/session", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	after := decode[sessionResponse](t, rec)
	assert.Equal(t, []float64{0, 0, 0, 0, 0}, after.Session.TaskProgress)
	require.NotNil(t, after.Active)
	assert.Equal(t, 2, after.Active.Day)
	assert.Equal(t, 1, after.Active.CurrentStreak)

	rec = env.do(t, http.MethodDelete, "/v1/session", "alice", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/session", "alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, sharederrors.CodeNotFound, decode[errorBody](t, rec).Code)
}

func TestSessionFlow_RejectsBadTaskInput(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/v1/session/tasks/0", "bob", map[string]any{"value": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code, "no session yet")

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/v1/session", "bob", nil).Code)

	rec = env.do(t, http.MethodPut, "/v1/session/tasks/9", "bob", map[string]any{"value": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/v1/session/tasks/0", "bob", map[string]any{"value": -3})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/v1/session/tasks/x", "bob", map[string]any{"value": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/v1/session/tasks/0", "bob", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionFlow_FailedWriteKeepsLiveProgress(t *testing.T) {
	repo := &savesRepo{Repository: challenge.NewMemoryRepository()}
	env := newTestEnv(t, withChallengeRepo(t, repo))

	rec := env.do(t, http.MethodPost, "/v1/session", "ivy", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, decode[sessionResponse](t, rec).Active)

	rec = env.do(t, http.MethodPut, "/v1/session/tasks/0", "ivy", map[string]any{"value": 3})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	repo.failWith(errors.New("firestore unavailable"))
	rec = env.do(t, http.MethodPost, "/v1/session/complete-day", "ivy", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code, rec.Body.String())
	failed := decode[errorBody](t, rec)
	assert.Equal(t, sharederrors.CodeInternal, failed.Code)
	require.NotNil(t, failed.Notification)
	assert.Equal(t, notify.KindError, failed.Notification.Kind)

	rec = env.do(t, http.MethodGet, "/v1/session", "ivy", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	kept := decode[sessionResponse](t, rec)
	assert.Equal(t, []float64{3, 0, 0, 0, 0}, kept.Session.TaskProgress)
	require.NotNil(t, kept.Active)
	assert.Equal(t, 1, kept.Active.Day)
	assert.Zero(t, kept.Active.CompletedDaysCount)

	repo.failWith(nil)
	rec = env.do(t, http.MethodPost, "/v1/session/complete-day", "ivy", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode[outcomeResponse](t, rec)
	assert.Equal(t, 1, out.Day)
	assert.Equal(t, 2, out.Challenge.Day)

	rec = env.do(t, http.MethodGet, "/v1/session", "ivy", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	after := decode[sessionResponse](t, rec)
	assert.Equal(t, []float64{0, 0, 0, 0, 0}, after.Session.TaskProgress)
	require.NotNil(t, after.Active)
	assert.Equal(t, 2, after.Active.Day)
	assert.Equal(t, 1, after.Active.CompletedDaysCount)
}

func TestSessionFlow_TaskEditsWaitForPendingCompletion(t *testing.T) {
	repo := &savesRepo{Repository: challenge.NewMemoryRepository()}
	env := newTestEnv(t, withChallengeRepo(t, repo))

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/v1/session", "lena", nil).Code)
	rec := env.do(t, http.MethodPut, "/v1/session/tasks/0", "lena", map[string]any{"value": 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	entered, release := repo.holdSaves()
	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		req := httptest.NewRequest(http.MethodPost, "/v1/session/complete-day", nil)
		req.Header.Set("Authorization", "Bearer lena")
		rr := httptest.NewRecorder()
		env.router.ServeHTTP(rr, req)
		done <- rr
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("completion never reached the repository")
	}

	rec = env.do(t, http.MethodPut, "/v1/session/tasks/1", "lena", map[string]any{"value": 128})
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.Equal(t, sharederrors.CodeConflict, decode[errorBody](t, rec).Code)

	rec = env.do(t, http.MethodPost, "/v1/session/complete-day", "lena", nil)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	release()
	var completed *httptest.ResponseRecorder
	select {
	case completed = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("completion did not finish")
	}
	require.Equal(t, http.StatusOK, completed.Code, completed.Body.String())

	rec = env.do(t, http.MethodGet, "/v1/session", "lena", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	after := decode[sessionResponse](t, rec)
	assert.Equal(t, []float64{0, 0, 0, 0, 0}, after.Session.TaskProgress)
	require.NotNil(t, after.Active)
	assert.Equal(t, 2, after.Active.Day)

	rec = env.do(t, http.MethodPut, "/v1/session/tasks/1", "lena", map[string]any{"value": 128})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestSelectChallenge_ResetsLiveToNewTaskCount(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/session", "jude", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	seeded := decode[sessionResponse](t, rec).Active
	require.NotNil(t, seeded)

	rec = env.do(t, http.MethodPut, "/v1/session/tasks/1", "jude", map[string]any{"value": 64})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	second := env.createChallenge(t, "jude", 10, challenge.TaskInput{Name: "Stretch"}, challenge.TaskInput{Name: "Journal"})

	rec = env.do(t, http.MethodPut, "/v1/session/active-challenge", "jude", map[string]any{"challenge_id": second.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	switched := decode[sessionResponse](t, rec)
	assert.Equal(t, second.ID, switched.Session.ActiveChallengeID)
	assert.Equal(t, []float64{0, 0}, switched.Session.TaskProgress)
	require.NotNil(t, switched.Active)
	assert.Len(t, switched.Active.Tasks, 2)

	rec = env.do(t, http.MethodPut, "/v1/session/active-challenge", "jude", map[string]any{"challenge_id": seeded.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []float64{0, 0, 0, 0, 0}, decode[sessionResponse](t, rec).Session.TaskProgress)

	rec = env.do(t, http.MethodPut, "/v1/session/active-challenge", "jude", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// another user cannot select jude's challenge
	rec = env.do(t, http.MethodPost, "/v1/session", "kim", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	own := decode[sessionResponse](t, rec).Session.ActiveChallengeID

	rec = env.do(t, http.MethodPut, "/v1/session/active-challenge", "kim", map[string]any{"challenge_id": second.ID})
	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/v1/session", "kim", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, own, decode[sessionResponse](t, rec).Session.ActiveChallengeID)
}

func TestCreateChallenge_Validation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/challenges", "carol", map[string]any{
		"name":     "  ",
		"duration": 0,
		"tasks":    []any{},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[errorBody](t, rec)
	assert.Equal(t, sharederrors.CodeBadRequest, body.Code)
	assert.NotEmpty(t, body.Message)

	rec = env.do(t, http.MethodGet, "/v1/challenges", "carol", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[map[string][]challenge.View](t, rec)
	assert.Empty(t, list["items"])
}

func TestCompleteDay_StatelessCycle(t *testing.T) {
	env := newTestEnv(t)
	c := env.createChallenge(t, "dave", 2, challenge.TaskInput{Name: "Walk"})
	path := "/v1/challenges/" + c.ID + "/complete-day"

	rec := env.do(t, http.MethodPost, path, "dave", map[string]any{"task_values": []float64{}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	failed := decode[errorBody](t, rec)
	require.NotNil(t, failed.Notification)
	assert.Equal(t, notify.KindError, failed.Notification.Kind)

	rec = env.do(t, http.MethodPost, path, "dave", map[string]any{"task_values": []float64{1}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, path, "dave", map[string]any{"task_values": []float64{0}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode[outcomeResponse](t, rec)
	assert.Equal(t, challenge.OutcomeCycleCompleted, out.Kind)
	assert.False(t, out.Perfect)
	require.NotNil(t, out.Archived)
	assert.Equal(t, 1, out.Archived.PerfectDaysCount)
	assert.Equal(t, 1, out.Challenge.Day)
	assert.Equal(t, 1, out.Challenge.TotalCompletions)
	assert.Len(t, out.Challenge.History, 1)
	assert.Equal(t, notify.KindCycleCompleted, out.Notification.Kind)
}

func TestChallenge_NotFoundAndOwnership(t *testing.T) {
	env := newTestEnv(t)
	c := env.createChallenge(t, "erin", 5, challenge.TaskInput{Name: "Read", Target: 10})

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/v1/challenges/missing", "erin", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/v1/challenges/"+c.ID, "frank", nil).Code)

	rec := env.do(t, http.MethodGet, "/v1/challenges/"+c.ID, "erin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[challenge.View](t, rec)
	assert.Equal(t, challenge.TaskKindQuantity, view.Tasks[0].Kind)
	assert.Len(t, view.Days, 5)
	assert.True(t, view.Days[0].Current)
}

func TestDeleteChallenge_ClearsSelection(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/v1/session", "gina", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	active := decode[sessionResponse](t, rec).Active
	require.NotNil(t, active)

	rec = env.do(t, http.MethodDelete, "/v1/challenges/"+active.ID, "gina", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/session", "gina", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sess := decode[sessionResponse](t, rec)
	assert.Nil(t, sess.Active)
	assert.Empty(t, sess.Session.ActiveChallengeID)

	rec = env.do(t, http.MethodPost, "/v1/session/complete-day", "gina", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, "/v1/challenges/"+active.ID, "gina", nil).Code)
}

func TestRequiresAuthentication(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/v1/challenges", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/challenges", nil)
	req.Header.Set("X-User-ID", "gateway-user")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func uploadRequest(t *testing.T, path, userID, filename string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("photo", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+userID)
	return req
}

func TestUploadPhoto_StoresAndServes(t *testing.T) {
	env := newTestEnv(t)
	c := env.createChallenge(t, "hana", 3, challenge.TaskInput{Name: "Photo"})
	data := []byte("fake-jpeg-bytes")

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, uploadRequest(t, "/v1/challenges/"+c.ID+"/photos/2", "hana", "me.jpg", data))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[photoResponse](t, rec)
	assert.Equal(t, notify.KindPhotoUploaded, resp.Notification.Kind)
	url := resp.Challenge.Days[1].PhotoURL
	require.True(t, strings.HasPrefix(url, "/v1/media/photos/hana/"+c.ID+"/day-2-"), url)

	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, data, rec.Body.Bytes())

	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, uploadRequest(t, "/v1/challenges/"+c.ID+"/photos/1", "hana", "me.gif", data))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, uploadRequest(t, "/v1/challenges/"+c.ID+"/photos/9", "hana", "me.png", data))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "day beyond duration")
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/health/dashboard", "ivan", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPut, "/v1/health/profile", "ivan", map[string]any{
		"height_inches": 70, "age": 30, "gender": "male", "activity_level": "moderate", "goal": "fat_loss",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/v1/health/weekly-metrics", "ivan", map[string]any{
		"weight": 180, "chest": 40, "arms": 14, "waist": 34, "thighs": 22,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/v1/health/dashboard", "ivan", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	dash := decode[health.Dashboard](t, rec)
	assert.Equal(t, 25.8, dash.Metrics.BMI)
	assert.Equal(t, 2463.0, dash.Metrics.CalorieTarget)

	rec = env.do(t, http.MethodPost, "/v1/health/meals", "ivan", map[string]any{
		"meal_type": "dinner", "name": "Steak", "calories": 800, "protein": 60,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/v1/health/meals?date=2026-05-04", "ivan", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	log := decode[health.DailyLog](t, rec)
	assert.Len(t, log.Meals, 1)
	require.NotNil(t, log.Targets)
	assert.Equal(t, 33, log.Percentages["protein"])

	rec = env.do(t, http.MethodGet, "/v1/health/meals?date=yesterday", "ivan", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/health/meal-templates", "ivan", map[string]any{
		"meal_type": "breakfast", "name": "Oats", "calories": 300,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = env.do(t, http.MethodGet, "/v1/health/meal-templates", "ivan", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[map[string][]health.MealTemplate](t, rec)["items"], 1)
}

func TestProfileSummary(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/v1/session", "june", nil).Code)
	env.createChallenge(t, "june", 10, challenge.TaskInput{Name: "Run"})

	rec := env.do(t, http.MethodGet, "/v1/profile", "june", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	summary := decode[profile.Summary](t, rec)
	assert.Equal(t, "june", summary.UserID)
	assert.Equal(t, "june", summary.DisplayName)
	assert.Equal(t, 2, summary.ChallengeCount)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.Limiter = ratelimit.New(0.001, 1, nil)
	})
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/challenges", "kim", nil).Code)
	rec := env.do(t, http.MethodGet, "/v1/challenges", "kim", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/challenges", "lee", nil).Code)
}

func TestStreamChallenges(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/challenges/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer mia")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	first := nextEvent(t, reader)
	assert.Empty(t, first["items"])

	env.createChallenge(t, "mia", 3, challenge.TaskInput{Name: "Stretch"})

	second := nextEvent(t, reader)
	require.Len(t, second["items"], 1)
	assert.Equal(t, "Test run", second["items"][0].Name)
}

func nextEvent(t *testing.T, reader *bufio.Reader) map[string][]challenge.View {
	t.Helper()
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if data, ok := strings.CutPrefix(strings.TrimRight(line, "\n"), "data: "); ok {
			var out map[string][]challenge.View
			require.NoError(t, json.Unmarshal([]byte(data), &out))
			return out
		}
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: name is required", challenge.ErrInvalidInput), http.StatusBadRequest},
		{challenge.ErrNotFound, http.StatusNotFound},
		{session.ErrNoSession, http.StatusNotFound},
		{challenge.ErrMutationInFlight, http.StatusConflict},
		{challenge.ErrCycleFinished, http.StatusConflict},
		{session.ErrDayFinalizing, http.StatusConflict},
		{fmt.Errorf("%w: disk full", challenge.ErrPersistence), http.StatusInternalServerError},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		got, _ := classifyError(tt.err)
		assert.Equal(t, tt.want, got, tt.err.Error())
	}
	_, msg := classifyError(fmt.Errorf("%w: name is required", challenge.ErrInvalidInput))
	assert.Equal(t, "name is required", msg)
}
