package httpapi

import (
	"context"
	"net/http"

	"github.com/focusnest/challenge-service/internal/health"
)

func (h *handler) getHealthProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	p, err := h.health.Profile(ctx, user.UserID)
	if err != nil {
		h.respondServiceError(w, r, "failed to load health profile", err, user.UserID)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) putHealthProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req health.Profile
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	p, err := h.health.SaveProfile(ctx, user.UserID, req)
	if err != nil {
		h.respondServiceError(w, r, "failed to save health profile", err, user.UserID)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) listWeeklyMetrics(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	items, err := h.health.WeeklyMetrics(ctx, user.UserID)
	if err != nil {
		h.respondServiceError(w, r, "failed to list weekly metrics", err, user.UserID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *handler) addWeeklyMetric(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req health.WeeklyMetric
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	m, err := h.health.AddWeeklyMetric(ctx, user.UserID, req)
	if err != nil {
		h.respondServiceError(w, r, "failed to add weekly metric", err, user.UserID)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *handler) getDashboard(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	dash, err := h.health.Dashboard(ctx, user.UserID)
	if err != nil {
		h.respondServiceError(w, r, "failed to load dashboard", err, user.UserID)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

func (h *handler) getDailyLog(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	log, err := h.health.DailyLog(ctx, user.UserID, r.URL.Query().Get("date"))
	if err != nil {
		h.respondServiceError(w, r, "failed to load daily log", err, user.UserID)
		return
	}
	writeJSON(w, http.StatusOK, log)
}

func (h *handler) addMeal(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req health.Meal
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	m, err := h.health.AddMeal(ctx, user.UserID, req)
	if err != nil {
		h.respondServiceError(w, r, "failed to add meal", err, user.UserID)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *handler) listMealTemplates(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	items, err := h.health.Templates(ctx, user.UserID)
	if err != nil {
		h.respondServiceError(w, r, "failed to list meal templates", err, user.UserID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *handler) addMealTemplate(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req health.MealTemplate
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	t, err := h.health.AddTemplate(ctx, user.UserID, req)
	if err != nil {
		h.respondServiceError(w, r, "failed to add meal template", err, user.UserID)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *handler) getProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	// the session identity carries display fields the gateway header lacks
	if h.sessions != nil {
		if sess, err := h.sessions.Get(user.UserID); err == nil {
			user = sess.Identity
		}
	}
	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	summary, err := h.profiles.Summary(ctx, user)
	if err != nil {
		h.respondServiceError(w, r, "failed to load profile", err, user.UserID)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
