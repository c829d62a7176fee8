// Package notify delivers best-effort workflow notifications.
//
// This file implements delivery through the Twilio messaging API. Notices
// are sent as SMS to the configured operations number; the recipient's email
// identifies the completing user in the message body.
package notify

import (
	"context"
	"log/slog"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioOpts holds Twilio notifier configuration.
type TwilioOpts struct {
	AccountSID string
	AuthToken  string
	From       string
	OpsNumber  string
}

// TwilioNotifier sends completion notices via the Twilio REST API.
type TwilioNotifier struct {
	client    *twilio.RestClient
	from      string
	opsNumber string
}

// NewTwilioNotifier creates a notifier using Twilio account credentials.
func NewTwilioNotifier(opts TwilioOpts) *TwilioNotifier {
	slog.Debug("Creating TwilioNotifier", "from", opts.From, "ops_number_set", opts.OpsNumber != "")
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: opts.AccountSID,
		Password: opts.AuthToken,
	})
	return &TwilioNotifier{client: client, from: opts.From, opsNumber: opts.OpsNumber}
}

// SendCompletionNotice delivers the notice as an SMS. Failures are logged
// and reported as false; they never propagate.
func (n *TwilioNotifier) SendCompletionNotice(ctx context.Context, stageID int, recipientEmail, recipientName string) bool {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(n.opsNumber)
	params.SetFrom(n.from)
	params.SetBody(noticeBody(stageID, recipientEmail, recipientName))

	_, err := n.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("TwilioNotifier send failed", "error", err, "stageID", stageID, "recipient", recipientEmail)
		return false
	}
	slog.Info("TwilioNotifier notice sent", "stageID", stageID, "recipient", recipientEmail)
	return true
}

// Compile-time check that TwilioNotifier implements Notifier.
var _ Notifier = (*TwilioNotifier)(nil)
