package panel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifyPostsEvent(t *testing.T) {
	var got AuthEvent
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	n := NewNotifier(server.URL, "secret", time.Second)
	require.True(t, n.Enabled())

	err := n.Notify(context.Background(), AuthEvent{SteamID: "76561198000000000", Username: "gaben", UserIP: "10.0.0.1", DomainID: 1})
	require.NoError(t, err)
	assert.Equal(t, "76561198000000000", got.SteamID)
	assert.Equal(t, "gaben", got.Username)
	assert.Equal(t, "10.0.0.1", got.UserIP)
	assert.Equal(t, 1, got.DomainID)
}

func TestNotifyPropagatesStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"detail":"duplicate"}`))
	}))
	defer server.Close()

	err := NewNotifier(server.URL, "", time.Second).Notify(context.Background(), AuthEvent{SteamID: "1"})
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusConflict, statusErr.Code)
	assert.Contains(t, statusErr.Body, "duplicate")
}

func TestNotifyTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	err := NewNotifier(url, "", time.Second).Notify(context.Background(), AuthEvent{SteamID: "1"})
	assert.ErrorIs(t, err, ErrTransport)
}

func TestNotifyDisabled(t *testing.T) {
	n := NewNotifier("", "", 0)
	assert.False(t, n.Enabled())
	assert.NoError(t, n.Notify(context.Background(), AuthEvent{}))

	var nilNotifier *Notifier
	assert.False(t, nilNotifier.Enabled())
}
