package events

import (
	"context"
	"testing"
	"time"
)

func TestDisabledPublisherIsSafe(t *testing.T) {
	for _, p := range []*Publisher{
		New(nil),
		New(&Config{Enabled: false, Topic: "voicepilot.session.ended"}),
		New(&Config{Enabled: true, Topic: "voicepilot.session.ended"}), // no brokers
	} {
		p.PublishEnded("sess_1", "acct_1", "hello", 3*time.Second)
		if err := p.Close(); err != nil {
			t.Errorf("Close() = %v", err)
		}
	}
}

func TestPublishLogOnlyReturnsNil(t *testing.T) {
	p := New(&Config{Enabled: false, Topic: "t"})
	if err := p.publish(context.Background(), "k", SessionEndedEvent{SessionID: "s"}); err != nil {
		t.Errorf("publish in log-only mode = %v", err)
	}
}
