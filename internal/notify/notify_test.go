package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeBackend struct {
	err   error
	calls int
}

func (f *fakeBackend) Send(ctx context.Context, channelID, text string) error {
	f.calls++
	return f.err
}

func TestMultiNotifierStopsAtFirstSuccess(t *testing.T) {
	first := &fakeBackend{err: errors.New("down")}
	second := &fakeBackend{}
	third := &fakeBackend{}
	m := NewMultiNotifier(first, second, third)

	if err := m.Send(context.Background(), "c1", "hello"); err != nil {
		t.Fatalf("expected success from the second backend, got %v", err)
	}
	if first.calls != 1 || second.calls != 1 || third.calls != 0 {
		t.Fatalf("expected fallthrough to stop at the first success: first=%d second=%d third=%d", first.calls, second.calls, third.calls)
	}
}

func TestMultiNotifierReturnsLastErrorWhenAllFail(t *testing.T) {
	first := &fakeBackend{err: errors.New("down1")}
	second := &fakeBackend{err: errors.New("down2")}
	m := NewMultiNotifier(first, second)

	err := m.Send(context.Background(), "c1", "hello")
	if err == nil || err.Error() != "down2" {
		t.Fatalf("expected the last backend's error, got %v", err)
	}
}

func TestLogNotifierAlwaysSucceeds(t *testing.T) {
	n := NewLogNotifier()
	if err := n.Send(context.Background(), "c1", "hello"); err != nil {
		t.Fatalf("expected LogNotifier.Send to never fail, got %v", err)
	}
}

func TestWebhookNotifierPostsChannelAndText(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	if err := n.Send(context.Background(), "chan-1", "alert text"); err != nil {
		t.Fatalf("expected webhook send to succeed, got %v", err)
	}
	if received["channel_id"] != "chan-1" || received["text"] != "alert text" {
		t.Fatalf("unexpected payload: %+v", received)
	}
}

func TestWebhookNotifierReturnsErrorOnNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	if err := n.Send(context.Background(), "chan-1", "alert text"); err == nil {
		t.Fatal("expected an error on a 500 response")
	}
}
