package notify

import (
	"context"
	"strings"
	"testing"
)

func TestNoticeBody(t *testing.T) {
	body := noticeBody(4, "dev@example.com", "Ada")
	if !strings.Contains(body, "stage 4") {
		t.Errorf("body should name the stage; got %q", body)
	}
	if !strings.Contains(body, "Ada <dev@example.com>") {
		t.Errorf("body should carry name and email; got %q", body)
	}

	body = noticeBody(1, "dev@example.com", "")
	if !strings.Contains(body, "dev@example.com") || strings.Contains(body, "<") {
		t.Errorf("body without a name should carry the bare email; got %q", body)
	}
}

func TestLogNotifierAlwaysSucceeds(t *testing.T) {
	n := NewLogNotifier()
	if !n.SendCompletionNotice(context.Background(), 1, "dev@example.com", "") {
		t.Fatal("log notifier should always report success")
	}
}
