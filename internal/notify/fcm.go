package notify

import (
	"context"
	"fmt"
	"strconv"

	"firebase.google.com/go/v4/messaging"
)

// MessageSender is the subset of the FCM client used here.
type MessageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMPusher sends notifications through Firebase Cloud Messaging.
type FCMPusher struct {
	client MessageSender
}

// NewFCMPusher wraps an FCM client (app.Messaging(ctx)).
func NewFCMPusher(client MessageSender) *FCMPusher {
	return &FCMPusher{client: client}
}

// Push is a no-op when the user has not registered a device.
func (p *FCMPusher) Push(ctx context.Context, deviceToken string, n Notification) error {
	if deviceToken == "" {
		return nil
	}
	msg := &messaging.Message{
		Token: deviceToken,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Message,
		},
		Data: map[string]string{
			"kind":             string(n.Kind),
			"dismiss_after_ms": strconv.FormatInt(n.DismissAfterMs, 10),
		},
		Android: &messaging.AndroidConfig{Priority: "high"},
	}
	if _, err := p.client.Send(ctx, msg); err != nil {
		return fmt.Errorf("fcm send: %w", err)
	}
	return nil
}
