package messaging

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMessage() Message {
	return Message{
		LeadID:     "lead-1",
		Phone:      "+543704000000",
		Channel:    "whatsapp",
		Automation: "bienvenida",
		Text:       "Hola Juan",
	}
}

func TestWebhookGateway_Send(t *testing.T) {
	var received Message

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	gateway := NewWebhookGateway(slog.Default(), WebhookConfig{URL: server.URL, Token: "secret"})

	require.NoError(t, gateway.Send(t.Context(), testMessage()))
	assert.Equal(t, testMessage(), received)
}

func TestWebhookGateway_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)

			return
		}

		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	gateway := NewWebhookGateway(slog.Default(), WebhookConfig{URL: server.URL, Attempts: 3, Delay: time.Millisecond})

	require.NoError(t, gateway.Send(t.Context(), testMessage()))
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhookGateway_DoesNotRetryRejections(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"invalid phone"}`))
	}))
	defer server.Close()

	gateway := NewWebhookGateway(slog.Default(), WebhookConfig{URL: server.URL, Attempts: 3})

	err := gateway.Send(t.Context(), testMessage())
	require.ErrorIs(t, err, ErrGatewayRejected)
	assert.Contains(t, err.Error(), "invalid phone")
	assert.Equal(t, int32(1), calls.Load())
}

func TestWebhookGateway_GivesUpAfterAttempts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	gateway := NewWebhookGateway(slog.Default(), WebhookConfig{URL: server.URL, Attempts: 2, Delay: time.Millisecond})

	require.ErrorIs(t, gateway.Send(t.Context(), testMessage()), ErrGatewayServer)
}

func TestGateways_RequireRecipient(t *testing.T) {
	msg := testMessage()
	msg.Phone = ""

	require.ErrorIs(t, NewLogGateway(slog.Default()).Send(t.Context(), msg), ErrNoRecipient)
	require.ErrorIs(t, NewWebhookGateway(slog.Default(), WebhookConfig{URL: "http://127.0.0.1:1"}).Send(t.Context(), msg), ErrNoRecipient)
}

func TestLogGateway_Send(t *testing.T) {
	require.NoError(t, NewLogGateway(slog.Default()).Send(t.Context(), testMessage()))
}
