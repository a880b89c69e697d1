// Package notify hands out-of-band messages (password reset links, email
// verification links) to the delivery system. Delivery itself is somebody
// else's job.
package notify

import (
	"context"
	"time"

	"github.com/dmitrijs2005/fieldauth/internal/logging"
)

// Kind names the purpose of a notification.
type Kind string

const (
	KindPasswordReset     Kind = "password_reset"
	KindEmailVerification Kind = "email_verification"
)

// Notification carries a freshly issued raw token to its owner. It is the
// only place a raw token leaves the process besides the issuing response.
type Notification struct {
	Kind      Kind      `json:"kind"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
	Close() error
}

// LogNotifier records notifications in the log for development setups. The
// token itself is never logged.
type LogNotifier struct {
	logger logging.Logger
}

func NewLogNotifier(logger logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, msg Notification) error {
	n.logger.Info(ctx, "notification not delivered: no broker configured",
		"kind", msg.Kind, "user_id", msg.UserID, "expires_at", msg.ExpiresAt)
	return nil
}

func (n *LogNotifier) Close() error { return nil }
