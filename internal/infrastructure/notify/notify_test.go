package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recordingSender struct {
	mu       sync.Mutex
	messages []string
	err      error
	delay    time.Duration
}

func (r *recordingSender) Send(ctx context.Context, title, message string) error {
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, title+": "+message)
	return r.err
}

func (r *recordingSender) Name() string { return "recording" }

func TestNotifier_LogsAndDelivers(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	sender := &recordingSender{}
	n := NewNotifier("coinbot", []Sender{sender}, zap.New(core))

	n.Notify(context.Background(), "Sold 1.00000000 at price 100.00. Profit: 3.00")
	n.Wait()

	assert.Equal(t, []string{"coinbot: Sold 1.00000000 at price 100.00. Profit: 3.00"}, sender.messages)
	assert.Equal(t, 1, logs.FilterMessage("Sold 1.00000000 at price 100.00. Profit: 3.00").Len())
}

func TestNotifier_SenderFailureIsLoggedOnly(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	n := NewNotifier("coinbot", []Sender{&recordingSender{err: errors.New("boom")}}, zap.New(core))

	n.Notify(context.Background(), "hello")
	n.Wait()

	assert.Equal(t, 1, logs.FilterMessage("Notification delivery failed").Len())
}

func TestNotifier_DoesNotBlockOnSlowSender(t *testing.T) {
	slow := &recordingSender{delay: time.Second}
	n := NewNotifier("coinbot", []Sender{slow}, zap.NewNop())
	n.SetTimeout(50 * time.Millisecond)

	start := time.Now()
	n.Notify(context.Background(), "hello")
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	n.Wait()
	assert.Empty(t, slow.messages, "delivery is cut off by the timeout")
}

func TestTelegramSender_Send(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	s := NewTelegramSenderWithURL(srv.URL, "TOKEN", "42")
	require.NoError(t, s.Send(context.Background(), "coinbot", "hi"))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "coinbot\nhi", got["text"])
}

func TestTelegramSender_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := NewTelegramSenderWithURL(srv.URL, "bad", "42").Send(context.Background(), "t", "m")
	assert.ErrorContains(t, err, "401")
}
