// Package notify builds user-facing notifications and delivers them to devices.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/focusnest/challenge-service/internal/challenge"
)

// Kind classifies a notification.
type Kind string

const (
	KindDayCompleted   Kind = "day_completed"
	KindCycleCompleted Kind = "cycle_completed"
	KindPhotoUploaded  Kind = "photo_uploaded"
	KindError          Kind = "error"
)

// Notification is a transient message shown to the user and dismissed automatically.
type Notification struct {
	Kind           Kind      `json:"kind"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	DismissAfterMs int64     `json:"dismiss_after_ms"`
	CreatedAt      time.Time `json:"created_at"`
}

// Builder renders notifications with a fixed auto-dismiss delay.
type Builder struct {
	DismissAfter time.Duration
	Now          func() time.Time
}

// NewBuilder returns a Builder; a non-positive delay falls back to 3s.
func NewBuilder(dismissAfter time.Duration) Builder {
	if dismissAfter <= 0 {
		dismissAfter = 3 * time.Second
	}
	return Builder{DismissAfter: dismissAfter, Now: time.Now}
}

func (b Builder) make(kind Kind, title, message string) Notification {
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	return Notification{
		Kind:           kind,
		Title:          title,
		Message:        message,
		DismissAfterMs: b.DismissAfter.Milliseconds(),
		CreatedAt:      now().UTC(),
	}
}

// ForOutcome describes a finalized day.
func (b Builder) ForOutcome(name string, o challenge.Outcome) Notification {
	if o.Kind == challenge.OutcomeCycleCompleted {
		streak := 0
		if o.Archived != nil {
			streak = o.Archived.LongestStreak
		}
		return b.make(KindCycleCompleted, "Challenge complete!",
			fmt.Sprintf("You finished %s. Longest streak: %d.", name, streak))
	}
	if o.Perfect {
		return b.make(KindDayCompleted, "Perfect day!",
			fmt.Sprintf("Day %d of %s done. Current streak: %d.", o.Day, name, o.Streak.Current))
	}
	return b.make(KindDayCompleted, "Day complete",
		fmt.Sprintf("Day %d of %s logged.", o.Day, name))
}

// ForPhoto confirms a stored photo.
func (b Builder) ForPhoto(day int) Notification {
	return b.make(KindPhotoUploaded, "Photo saved", fmt.Sprintf("Progress photo for day %d saved.", day))
}

// ForError reports a failed action.
func (b Builder) ForError(message string) Notification {
	return b.make(KindError, "Something went wrong", message)
}

// Pusher delivers a notification to a device.
type Pusher interface {
	Push(ctx context.Context, deviceToken string, n Notification) error
}

// LogPusher writes notifications to the log instead of a device.
type LogPusher struct {
	Logger *slog.Logger
}

func (p LogPusher) Push(_ context.Context, deviceToken string, n Notification) error {
	p.Logger.Info("notification", "kind", n.Kind, "title", n.Title, "hasDevice", deviceToken != "")
	return nil
}

// Dispatcher pushes in the background so request latency never depends on delivery.
type Dispatcher struct {
	pusher  Pusher
	logger  *slog.Logger
	timeout time.Duration
}

// NewDispatcher wraps pusher.
func NewDispatcher(pusher Pusher, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{pusher: pusher, logger: logger, timeout: 10 * time.Second}
}

// Send delivers n to deviceToken asynchronously. Failures are logged.
func (d *Dispatcher) Send(ctx context.Context, userID, deviceToken string, n Notification) {
	if d == nil || d.pusher == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()
		if err := d.pusher.Push(ctx, deviceToken, n); err != nil {
			d.logger.Warn("push notification failed", "userId", userID, "kind", n.Kind, "error", err)
		}
	}()
}
