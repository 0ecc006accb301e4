package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/focusnest/challenge-service/internal/challenge"
	"github.com/focusnest/challenge-service/internal/notify"
	"github.com/focusnest/challenge-service/internal/session"
	"github.com/focusnest/challenge-service/internal/streak"
)

type sessionResponse struct {
	Session session.Session `json:"session"`
	Active  *challenge.View `json:"active,omitempty"`
	Seeded  bool            `json:"seeded,omitempty"`
}

type outcomeResponse struct {
	Kind         challenge.OutcomeKind   `json:"kind"`
	Day          int                     `json:"day"`
	Perfect      bool                    `json:"perfect"`
	Streak       streak.Result           `json:"streak"`
	Archived     *challenge.HistoryEntry `json:"archived,omitempty"`
	Challenge    challenge.View          `json:"challenge"`
	Notification notify.Notification     `json:"notification"`
}

type selectChallengeRequest struct {
	ChallengeID string `json:"challenge_id"`
}

type taskValueRequest struct {
	Value *float64 `json:"value"`
	Done  *bool    `json:"done"`
}

type deviceRequest struct {
	Token string `json:"token"`
}

// startSession signs the caller in, seeding the first-run challenge and selecting
// the first challenge when nothing is active yet.
func (h *handler) startSession(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	sess, err := h.sessions.Start(user)
	if err != nil {
		h.respondServiceError(w, r, "failed to start session", err, user.UserID)
		return
	}

	seeded, err := h.challenges.EnsureDefault(ctx, user.UserID)
	if err != nil {
		h.respondServiceError(w, r, "failed to seed default challenge", err, user.UserID)
		return
	}

	if sess.ActiveChallengeID == "" {
		items, err := h.challenges.List(ctx, user.UserID)
		if err != nil {
			h.respondServiceError(w, r, "failed to list challenges", err, user.UserID)
			return
		}
		if len(items) > 0 {
			if sess, err = h.sessions.Select(user.UserID, items[0].ID, len(items[0].Tasks)); err != nil {
				h.respondServiceError(w, r, "failed to select challenge", err, user.UserID)
				return
			}
		}
	}

	resp, err := h.sessionView(ctx, sess)
	if err != nil {
		h.respondServiceError(w, r, "failed to load active challenge", err, user.UserID)
		return
	}
	resp.Seeded = seeded
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) getSession(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	sess, err := h.sessions.Get(user.UserID)
	if err != nil {
		h.respondServiceError(w, r, "failed to load session", err, user.UserID)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	resp, err := h.sessionView(ctx, sess)
	if err != nil {
		h.respondServiceError(w, r, "failed to load active challenge", err, user.UserID)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) endSession(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	h.sessions.End(user.UserID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) selectChallenge(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req selectChallengeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	id := strings.TrimSpace(req.ChallengeID)
	if id == "" {
		writeError(w, r, http.StatusBadRequest, "challenge_id is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	c, err := h.challenges.Get(ctx, user.UserID, id)
	if err != nil {
		h.respondServiceError(w, r, "failed to load challenge", err, user.UserID)
		return
	}
	sess, err := h.sessions.Select(user.UserID, c.ID, len(c.Tasks))
	if err != nil {
		h.respondServiceError(w, r, "failed to select challenge", err, user.UserID)
		return
	}
	view := challenge.BuildView(c, sess.TaskProgress, h.resolver(ctx))
	writeJSON(w, http.StatusOK, sessionResponse{Session: sess, Active: &view})
}

// setTaskValue accepts either a number or, for checkbox tasks, done=true|false.
func (h *handler) setTaskValue(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "task index must be an integer")
		return
	}
	var req taskValueRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var value float64
	switch {
	case req.Value != nil && req.Done != nil:
		writeError(w, r, http.StatusBadRequest, "provide either value or done, not both")
		return
	case req.Value != nil:
		value = *req.Value
	case req.Done != nil:
		if *req.Done {
			value = 1
		}
	default:
		writeError(w, r, http.StatusBadRequest, "value or done is required")
		return
	}

	sess, err := h.sessions.SetTaskValue(user.UserID, index, value)
	if err != nil {
		h.respondServiceError(w, r, "failed to update task", err, user.UserID)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	resp, err := h.sessionView(ctx, sess)
	if err != nil {
		h.respondServiceError(w, r, "failed to load active challenge", err, user.UserID)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) registerDevice(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req deviceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := h.sessions.SetDeviceToken(user.UserID, strings.TrimSpace(req.Token)); err != nil {
		h.respondServiceError(w, r, "failed to register device", err, user.UserID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// completeActiveDay finalizes today for the active challenge with the session's
// live values. Live values are cleared only after the write is confirmed.
func (h *handler) completeActiveDay(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	sess, err := h.sessions.BeginFinalize(user.UserID)
	if err != nil {
		h.respondServiceError(w, r, "failed to start day completion", err, user.UserID)
		return
	}
	h.finalizeDay(w, r, user.UserID, sess.ActiveChallengeID, sess.TaskProgress, true)
}

// finalizeDay runs the transition. frozen marks live values held by BeginFinalize.
func (h *handler) finalizeDay(w http.ResponseWriter, r *http.Request, userID, id string, live []float64, frozen bool) {
	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	outcome, err := h.challenges.CompleteDay(ctx, userID, id, live)
	resetLive := h.settleLive(userID, id, frozen, err == nil)
	if err != nil {
		status, msg := classifyError(err)
		if status >= http.StatusInternalServerError {
			logRequestError(r.Context(), h.logger, "failed to complete day", err, userID)
		}
		n := h.notices.ForError(msg)
		h.notifyDevice(r.Context(), userID, n)
		writeErrorNotice(w, r, status, msg, &n)
		return
	}

	n := h.notices.ForOutcome(outcome.Challenge.Name, outcome)
	h.notifyDevice(r.Context(), userID, n)

	writeJSON(w, http.StatusOK, outcomeResponse{
		Kind:         outcome.Kind,
		Day:          outcome.Day,
		Perfect:      outcome.Perfect,
		Streak:       outcome.Streak,
		Archived:     outcome.Archived,
		Challenge:    challenge.BuildView(outcome.Challenge, resetLive, h.resolver(ctx)),
		Notification: n,
	})
}

// settleLive releases a freeze and zeroes live values once a completion is
// confirmed. It returns the live values to render for id, if it is still active.
func (h *handler) settleLive(userID, id string, frozen, confirmed bool) []float64 {
	if h.sessions == nil {
		return nil
	}
	var (
		sess session.Session
		err  error
	)
	switch {
	case frozen:
		sess, err = h.sessions.EndFinalize(userID, id, confirmed)
	case confirmed:
		sess, err = h.sessions.ResetLive(userID, id)
	default:
		return nil
	}
	if err != nil || sess.ActiveChallengeID != id {
		return nil
	}
	return sess.TaskProgress
}

func (h *handler) sessionView(ctx context.Context, sess session.Session) (sessionResponse, error) {
	resp := sessionResponse{Session: sess}
	if sess.ActiveChallengeID == "" {
		return resp, nil
	}
	c, err := h.challenges.Get(ctx, sess.Identity.UserID, sess.ActiveChallengeID)
	if errors.Is(err, challenge.ErrNotFound) {
		// deleted from another device
		h.sessions.ClearSelection(sess.Identity.UserID, sess.ActiveChallengeID)
		resp.Session.ActiveChallengeID = ""
		resp.Session.TaskProgress = []float64{}
		return resp, nil
	}
	if err != nil {
		return sessionResponse{}, err
	}
	view := challenge.BuildView(c, sess.TaskProgress, h.resolver(ctx))
	resp.Active = &view
	return resp, nil
}
