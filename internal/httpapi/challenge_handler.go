package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/focusnest/challenge-service/internal/challenge"
	"github.com/focusnest/challenge-service/internal/notify"
	"github.com/focusnest/challenge-service/internal/photo"
)

var (
	allowedImageExtensions = map[string]struct{}{
		".jpg":  {},
		".jpeg": {},
		".png":  {},
		".webp": {},
		".heic": {},
		".heif": {},
	}
	allowedImageMIMEs = map[string]struct{}{
		"image/jpeg": {},
		"image/png":  {},
		"image/webp": {},
		"image/heic": {},
		"image/heif": {},
	}
)

type createChallengeRequest struct {
	Name     string                `json:"name"`
	Duration int                   `json:"duration"`
	Tasks    []challenge.TaskInput `json:"tasks"`
}

type completeDayRequest struct {
	TaskValues []float64 `json:"task_values"`
}

type photoResponse struct {
	Challenge    challenge.View      `json:"challenge"`
	Notification notify.Notification `json:"notification"`
}

func (h *handler) listChallenges(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	items, err := h.challenges.List(ctx, user.UserID)
	if err != nil {
		h.respondServiceError(w, r, "failed to list challenges", err, user.UserID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": h.views(ctx, user.UserID, items),
	})
}

func (h *handler) createChallenge(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req createChallengeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	c, err := h.challenges.Create(ctx, challenge.CreateInput{
		UserID:   user.UserID,
		Name:     req.Name,
		Duration: req.Duration,
		Tasks:    req.Tasks,
	})
	if err != nil {
		h.respondServiceError(w, r, "failed to create challenge", err, user.UserID)
		return
	}
	writeJSON(w, http.StatusCreated, challenge.BuildView(c, nil, h.resolver(ctx)))
}

func (h *handler) getChallenge(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeError(w, r, http.StatusBadRequest, "challenge ID required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	c, err := h.challenges.Get(ctx, user.UserID, id)
	if err != nil {
		h.respondServiceError(w, r, "failed to load challenge", err, user.UserID)
		return
	}
	writeJSON(w, http.StatusOK, challenge.BuildView(c, h.liveFor(user.UserID, id), h.resolver(ctx)))
}

func (h *handler) deleteChallenge(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeError(w, r, http.StatusBadRequest, "challenge ID required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	if err := h.challenges.Delete(ctx, user.UserID, id); err != nil {
		h.respondServiceError(w, r, "failed to delete challenge", err, user.UserID)
		return
	}
	if h.sessions != nil {
		h.sessions.ClearSelection(user.UserID, id)
	}
	w.WriteHeader(http.StatusNoContent)
}

// completeDay finalizes today with explicit task values, independent of the session.
func (h *handler) completeDay(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeError(w, r, http.StatusBadRequest, "challenge ID required")
		return
	}
	var req completeDayRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	h.finalizeDay(w, r, user.UserID, id, req.TaskValues, false)
}

func (h *handler) uploadPhoto(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeError(w, r, http.StatusBadRequest, "challenge ID required")
		return
	}
	day, err := strconv.Atoi(chi.URLParam(r, "day"))
	if err != nil || day < 1 {
		writeError(w, r, http.StatusBadRequest, "day must be a positive integer")
		return
	}
	if h.photos == nil {
		writeError(w, r, http.StatusInternalServerError, "photo uploads are not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxPhotoBytes+(1<<20))
	if err := r.ParseMultipartForm(maxPhotoBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid multipart payload")
		return
	}
	file, header, err := r.FormFile("photo")
	if errors.Is(err, http.ErrMissingFile) {
		writeError(w, r, http.StatusBadRequest, "photo file is required")
		return
	}
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid photo upload")
		return
	}
	defer file.Close()
	if err := validateImageFile(header); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	c, err := h.challenges.UploadPhoto(ctx, user.UserID, id, challenge.PhotoInput{
		Day:         day,
		Body:        file,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
	})
	if err != nil {
		status, msg := classifyError(err)
		if status >= http.StatusInternalServerError {
			logRequestError(r.Context(), h.logger, "failed to upload photo", err, user.UserID)
		}
		n := h.notices.ForError(msg)
		writeErrorNotice(w, r, status, msg, &n)
		return
	}

	n := h.notices.ForPhoto(day)
	writeJSON(w, http.StatusCreated, photoResponse{
		Challenge:    challenge.BuildView(c, h.liveFor(user.UserID, id), h.resolver(ctx)),
		Notification: n,
	})
}

// streamChallenges pushes the catalog as Server-Sent Events on every change.
func (h *handler) streamChallenges(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := r.Context()
	updates, err := h.challenges.Watch(ctx, user.UserID)
	if err != nil {
		h.respondServiceError(w, r, "failed to watch challenges", err, user.UserID)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case items, ok := <-updates:
			if !ok {
				return
			}
			payload, err := json.Marshal(map[string]any{"items": h.views(ctx, user.UserID, items)})
			if err != nil {
				logRequestError(ctx, h.logger, "failed to encode snapshot", err, user.UserID)
				return
			}
			if _, err := fmt.Fprintf(w, "event: challenges\ndata: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *handler) views(ctx context.Context, userID string, items []challenge.Challenge) []challenge.View {
	resolve := h.resolver(ctx)
	out := make([]challenge.View, len(items))
	for i, c := range items {
		out[i] = challenge.BuildView(c, h.liveFor(userID, c.ID), resolve)
	}
	return out
}

// serveMedia streams photos kept by the in-memory store.
func (h *handler) serveMedia(w http.ResponseWriter, r *http.Request) {
	objectPath := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	obj, err := h.media.Get(objectPath)
	if errors.Is(err, photo.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "photo not found")
		return
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal server error")
		return
	}
	if obj.ContentType != "" {
		w.Header().Set("Content-Type", obj.ContentType)
	}
	w.Header().Set("Cache-Control", "private, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(obj.Data)
}

func validateImageFile(header *multipart.FileHeader) error {
	if header == nil {
		return fmt.Errorf("invalid photo upload")
	}
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if _, ok := allowedImageExtensions[ext]; !ok {
		return fmt.Errorf("unsupported image type; allowed formats: jpg, jpeg, png, webp, heic, heif")
	}
	if ct := strings.ToLower(header.Header.Get("Content-Type")); ct != "" && ct != "application/octet-stream" {
		if _, ok := allowedImageMIMEs[ct]; !ok {
			return fmt.Errorf("unsupported image content type; allowed: image/jpeg, image/png, image/webp, image/heic, image/heif")
		}
	}
	return nil
}
