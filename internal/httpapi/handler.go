package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/focusnest/challenge-service/internal/challenge"
	"github.com/focusnest/challenge-service/internal/health"
	"github.com/focusnest/challenge-service/internal/notify"
	"github.com/focusnest/challenge-service/internal/photo"
	"github.com/focusnest/challenge-service/internal/profile"
	"github.com/focusnest/challenge-service/internal/session"
	sharedauth "github.com/focusnest/challenge-service/internal/shared/auth"
	sharederrors "github.com/focusnest/challenge-service/internal/shared/errors"
	"github.com/focusnest/challenge-service/internal/shared/ratelimit"
)

const (
	serviceTimeout      = 10 * time.Second
	requestTimeout      = 30 * time.Second
	maxJSONPayloadBytes = 1 << 20 // 1MB
	maxPhotoBytes       = 10 << 20
	defaultPhotoURLTTL  = 24 * time.Hour
	streamKeepAlive     = 25 * time.Second
)

// Deps are the collaborators served by the API. Health, Profiles, Photos, Push,
// Limiter and Media are optional.
type Deps struct {
	Challenges  *challenge.Service
	Sessions    *session.Store
	Health      *health.Service
	Profiles    *profile.Service
	Photos      photo.Store
	PhotoURLTTL time.Duration
	Notices     notify.Builder
	Push        *notify.Dispatcher
	Verifier    sharedauth.Verifier
	Limiter     *ratelimit.Limiter
	// Media serves photos of an in-memory store under /v1/media/.
	Media  *photo.MemoryStore
	Logger *slog.Logger
}

type handler struct {
	challenges *challenge.Service
	sessions   *session.Store
	health     *health.Service
	profiles   *profile.Service
	photos     photo.Store
	photoTTL   time.Duration
	notices    notify.Builder
	push       *notify.Dispatcher
	media      *photo.MemoryStore
	logger     *slog.Logger
}

// RegisterRoutes mounts every endpoint. The challenge stream is exempt from the
// request timeout; everything else runs under it.
func RegisterRoutes(r chi.Router, d Deps) {
	h := &handler{
		challenges: d.Challenges,
		sessions:   d.Sessions,
		health:     d.Health,
		profiles:   d.Profiles,
		photos:     d.Photos,
		photoTTL:   d.PhotoURLTTL,
		notices:    d.Notices,
		push:       d.Push,
		media:      d.Media,
		logger:     d.Logger,
	}
	if h.photoTTL <= 0 {
		h.photoTTL = defaultPhotoURLTTL
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.notices.DismissAfter <= 0 {
		h.notices = notify.NewBuilder(0)
	}

	if h.media != nil {
		r.With(middleware.Timeout(requestTimeout)).Get("/v1/media/*", h.serveMedia)
	}

	r.Group(func(r chi.Router) {
		r.Use(sharedauth.Middleware(d.Verifier))
		if d.Limiter != nil {
			r.Use(d.Limiter.Middleware)
		}

		r.Get("/v1/challenges/stream", h.streamChallenges)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))

			r.Post("/v1/session", h.startSession)
			r.Get("/v1/session", h.getSession)
			r.Delete("/v1/session", h.endSession)
			r.Put("/v1/session/active-challenge", h.selectChallenge)
			r.Put("/v1/session/tasks/{index}", h.setTaskValue)
			r.Put("/v1/session/device", h.registerDevice)
			r.Post("/v1/session/complete-day", h.completeActiveDay)

			r.Get("/v1/challenges", h.listChallenges)
			r.Post("/v1/challenges", h.createChallenge)
			r.Get("/v1/challenges/{id}", h.getChallenge)
			r.Delete("/v1/challenges/{id}", h.deleteChallenge)
			r.Post("/v1/challenges/{id}/complete-day", h.completeDay)
			r.Post("/v1/challenges/{id}/photos/{day}", h.uploadPhoto)

			if h.health != nil {
				r.Get("/v1/health/profile", h.getHealthProfile)
				r.Put("/v1/health/profile", h.putHealthProfile)
				r.Get("/v1/health/weekly-metrics", h.listWeeklyMetrics)
				r.Post("/v1/health/weekly-metrics", h.addWeeklyMetric)
				r.Get("/v1/health/dashboard", h.getDashboard)
				r.Get("/v1/health/meals", h.getDailyLog)
				r.Post("/v1/health/meals", h.addMeal)
				r.Get("/v1/health/meal-templates", h.listMealTemplates)
				r.Post("/v1/health/meal-templates", h.addMealTemplate)
			}

			if h.profiles != nil {
				r.Get("/v1/profile", h.getProfile)
			}
		})
	})
}

// currentUser prefers the verified identity and falls back to the gateway header.
func currentUser(r *http.Request) (sharedauth.AuthenticatedUser, bool) {
	if user, ok := sharedauth.UserFromContext(r.Context()); ok && user.UserID != "" {
		return user, true
	}
	if id := headerUserID(r); id != "" {
		return sharedauth.AuthenticatedUser{UserID: id}, true
	}
	return sharedauth.AuthenticatedUser{}, false
}

func headerUserID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-User-ID"))
}

// requireUser writes a 401 and reports false when the caller is anonymous.
func requireUser(w http.ResponseWriter, r *http.Request) (sharedauth.AuthenticatedUser, bool) {
	user, ok := currentUser(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing user ID")
	}
	return user, ok
}

// errorBody is the error envelope, optionally carrying a notification to display.
type errorBody struct {
	sharederrors.ErrorResponse
	Notification *notify.Notification `json:"notification,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeErrorNotice(w, r, status, message, nil)
}

func writeErrorNotice(w http.ResponseWriter, r *http.Request, status int, message string, n *notify.Notification) {
	writeJSON(w, status, errorBody{
		ErrorResponse: sharederrors.ErrorResponse{
			Code:      codeForStatus(status),
			Message:   message,
			RequestID: middleware.GetReqID(r.Context()),
		},
		Notification: n,
	})
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return sharederrors.CodeBadRequest
	case http.StatusUnauthorized:
		return sharederrors.CodeUnauthorized
	case http.StatusForbidden:
		return sharederrors.CodeForbidden
	case http.StatusNotFound:
		return sharederrors.CodeNotFound
	case http.StatusConflict:
		return sharederrors.CodeConflict
	case http.StatusTooManyRequests:
		return sharederrors.CodeTooManyRequest
	default:
		return sharederrors.CodeInternal
	}
}

// classifyError maps domain errors to a status and a client-facing message.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, challenge.ErrInvalidInput),
		errors.Is(err, health.ErrInvalidInput),
		errors.Is(err, session.ErrInvalidInput):
		return http.StatusBadRequest, detail(err)
	case errors.Is(err, challenge.ErrNotFound):
		return http.StatusNotFound, "challenge not found"
	case errors.Is(err, health.ErrNotFound):
		return http.StatusNotFound, "health profile not found"
	case errors.Is(err, session.ErrNoSession):
		return http.StatusNotFound, "no active session; sign in first"
	case errors.Is(err, session.ErrNoActiveChallenge):
		return http.StatusConflict, "no active challenge selected"
	case errors.Is(err, session.ErrDayFinalizing):
		return http.StatusConflict, "today's progress is being saved"
	case errors.Is(err, challenge.ErrConflict):
		return http.StatusConflict, "challenge already exists"
	case errors.Is(err, challenge.ErrMutationInFlight):
		return http.StatusConflict, "another update to this challenge is in progress"
	case errors.Is(err, challenge.ErrCycleFinished):
		return http.StatusConflict, "challenge cycle already finished"
	case errors.Is(err, health.ErrIncomplete):
		return http.StatusConflict, health.ErrIncomplete.Error()
	case errors.Is(err, challenge.ErrPersistence):
		return http.StatusInternalServerError, "could not save your progress, please try again"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// detail strips the sentinel prefix from a wrapped validation error.
func detail(err error) string {
	msg := strings.TrimSpace(err.Error())
	if i := strings.Index(msg, ":"); i >= 0 {
		msg = strings.TrimSpace(msg[i+1:])
	}
	return msg
}

func (h *handler) respondServiceError(w http.ResponseWriter, r *http.Request, message string, err error, userID string) {
	status, msg := classifyError(err)
	if status >= http.StatusInternalServerError {
		logRequestError(r.Context(), h.logger, message, err, userID)
	}
	writeError(w, r, status, msg)
}

func logRequestError(ctx context.Context, logger *slog.Logger, message string, err error, userID string) {
	if logger == nil || err == nil {
		return
	}
	attrs := []any{
		slog.String("userId", userID),
		slog.Any("error", err),
	}
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		attrs = append(attrs, slog.String("requestId", reqID))
	}
	logger.Error(message, attrs...)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONPayloadBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON payload")
	}
	return nil
}

func (h *handler) resolver(ctx context.Context) challenge.URLResolver {
	return func(ref string) string {
		return photo.Resolve(ctx, h.photos, ref, h.photoTTL)
	}
}

// liveFor returns the session's unsaved values when id is the active challenge.
func (h *handler) liveFor(userID, id string) []float64 {
	if h.sessions == nil {
		return nil
	}
	sess, err := h.sessions.Get(userID)
	if err != nil || sess.ActiveChallengeID != id {
		return nil
	}
	return sess.TaskProgress
}

// notifyDevice pushes n to the device registered on the user's session, if any.
func (h *handler) notifyDevice(ctx context.Context, userID string, n notify.Notification) {
	if h.push == nil || h.sessions == nil {
		return
	}
	sess, err := h.sessions.Get(userID)
	if err != nil || sess.DeviceToken == "" {
		return
	}
	h.push.Send(ctx, userID, sess.DeviceToken, n)
}
