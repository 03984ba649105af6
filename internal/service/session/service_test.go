package session_test

import (
	"testing"
	"time"

	"github.com/grabtube/grabtube/internal/model/convo"
	session "github.com/grabtube/grabtube/internal/service/session"
)

func TestServicePutGet(t *testing.T) {
	svc := session.NewService()

	svc.Put(42, convo.Session{ChatID: 7, URL: "https://x/y", Stage: convo.StageChooseFormat})

	got, ok := svc.Get(42)
	if !ok {
		t.Fatal("expected session for user 42")
	}
	if got.URL != "https://x/y" {
		t.Fatalf("unexpected URL: got %s", got.URL)
	}
	if got.ChatID != 7 {
		t.Fatalf("unexpected chat ID: got %d", got.ChatID)
	}
	if got.UpdatedAt.IsZero() {
		t.Fatal("expected UpdatedAt to be set by Put")
	}
}

func TestServiceGetNotFound(t *testing.T) {
	svc := session.NewService()

	if _, ok := svc.Get(99); ok {
		t.Fatal("expected no session for unknown user")
	}
}

func TestServiceGetIsolatedPerUser(t *testing.T) {
	svc := session.NewService()

	svc.Put(1, convo.Session{URL: "https://a"})

	if _, ok := svc.Get(2); ok {
		t.Fatal("user 2 must not see user 1's session")
	}
}

func TestServicePutReplaces(t *testing.T) {
	svc := session.NewService()

	svc.Put(1, convo.Session{URL: "https://old", FormatKey: "mp4", Stage: convo.StageChooseCookie})
	svc.Put(1, convo.Session{URL: "https://new", Stage: convo.StageChooseFormat})

	got, ok := svc.Get(1)
	if !ok {
		t.Fatal("expected session after replace")
	}
	if got.URL != "https://new" {
		t.Fatalf("last URL must win: got %s", got.URL)
	}
	if got.FormatKey != "" {
		t.Fatalf("replaced session must not keep prior format: got %s", got.FormatKey)
	}
	if svc.Len() != 1 {
		t.Fatalf("expected exactly one live session, got %d", svc.Len())
	}
}

func TestServiceUpdate(t *testing.T) {
	svc := session.NewService()

	svc.Put(1, convo.Session{URL: "https://a", Stage: convo.StageChooseFormat})

	err := svc.Update(1, func(sess *convo.Session) {
		sess.FormatKey = "best"
		sess.Stage = convo.StageChooseCookie
	})
	if err != nil {
		t.Fatalf("Update err: %v", err)
	}

	got, _ := svc.Get(1)
	if got.FormatKey != "best" || got.Stage != convo.StageChooseCookie {
		t.Fatalf("update not applied: %+v", got)
	}
}

func TestServiceUpdateNotFound(t *testing.T) {
	svc := session.NewService()

	err := svc.Update(1, func(*convo.Session) {})
	if err != session.ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestServiceTakeConsumes(t *testing.T) {
	svc := session.NewService()

	svc.Put(1, convo.Session{URL: "https://a"})

	sess, ok := svc.Take(1)
	if !ok {
		t.Fatal("expected Take to return the session")
	}
	if sess.URL != "https://a" {
		t.Fatalf("unexpected URL: got %s", sess.URL)
	}

	if _, ok := svc.Take(1); ok {
		t.Fatal("second Take must miss: a session dispatches at most once")
	}
	if _, ok := svc.Get(1); ok {
		t.Fatal("session must be gone after Take")
	}
}

func TestServiceSweepStale(t *testing.T) {
	svc := session.NewService()

	svc.Put(1, convo.Session{URL: "https://stale"})

	// Let user 1's session age past the TTL, then refresh user 2's.
	time.Sleep(15 * time.Millisecond)
	svc.Put(2, convo.Session{URL: "https://fresh"})

	removed := svc.SweepStale(10 * time.Millisecond)
	if removed != 1 {
		t.Fatalf("expected 1 eviction, got %d", removed)
	}
	if _, ok := svc.Get(1); ok {
		t.Fatal("stale session must be evicted")
	}
	if _, ok := svc.Get(2); !ok {
		t.Fatal("fresh session must survive the sweep")
	}
}
