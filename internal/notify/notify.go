// Package notify delivers best-effort workflow notifications.
//
// Notification is never load-bearing: senders report success or failure and
// callers log failures without propagating them.
package notify

import (
	"context"
	"fmt"
	"log/slog"
)

// Notifier sends a workflow completion notice to a recipient.
type Notifier interface {
	// SendCompletionNotice reports delivery success. Failures are expected
	// to be logged by the implementation; callers never treat false as an
	// error condition.
	SendCompletionNotice(ctx context.Context, stageID int, recipientEmail, recipientName string) bool
}

// noticeBody formats the completion notice message.
func noticeBody(stageID int, recipientEmail, recipientName string) string {
	who := recipientEmail
	if recipientName != "" {
		who = fmt.Sprintf("%s <%s>", recipientName, recipientEmail)
	}
	return fmt.Sprintf("Onboarding stage %d completed by %s", stageID, who)
}

// LogNotifier logs notices instead of delivering them. Used when no
// delivery channel is configured.
type LogNotifier struct{}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// SendCompletionNotice logs the notice and always succeeds.
func (n *LogNotifier) SendCompletionNotice(ctx context.Context, stageID int, recipientEmail, recipientName string) bool {
	slog.Info("Completion notice (log only)", "stageID", stageID, "recipient", recipientEmail, "name", recipientName)
	return true
}

// Compile-time check that LogNotifier implements Notifier.
var _ Notifier = (*LogNotifier)(nil)
