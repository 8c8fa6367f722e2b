package notify

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePayload() *Payload {
	return &Payload{
		MessageKey:  "1:INBOX:5",
		AccountID:   1,
		Folder:      "INBOX",
		SenderEmail: "lead@prospect.com",
		SenderName:  "Alice Lead",
		Subject:     "Pricing question",
		Snippet:     "Can we talk next week?",
		Label:       "interested",
		Confidence:  0.93,
		SentAt:      time.Now().UTC(),
	}
}

func TestWebhookChannel_SignsBody(t *testing.T) {
	var gotSig string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Webhook-Signature")
		gotBody, _ = io.ReadAll(r.Body)
		assert.Equal(t, "lead.classified", r.Header.Get("X-Webhook-Event"))
		assert.NotEmpty(t, r.Header.Get("X-Webhook-ID"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ch := NewWebhookChannel("crm", server.URL, "topsecret", time.Second)
	require.NoError(t, ch.Deliver(context.Background(), samplePayload()))

	// Receiver-side verification: recompute over the raw body.
	assert.True(t, hmac.Equal([]byte(gotSig), []byte(Sign(gotBody, "topsecret"))))

	var decoded Payload
	require.NoError(t, json.Unmarshal(gotBody, &decoded))
	assert.Equal(t, "1:INBOX:5", decoded.MessageKey)
	assert.Equal(t, "interested", decoded.Label)
}

func TestWebhookChannel_Non2xxIsAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	ch := NewWebhookChannel("crm", server.URL, "", time.Second)
	assert.Error(t, ch.Deliver(context.Background(), samplePayload()))
}

func TestSlackChannel_PostsText(t *testing.T) {
	var got map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ch := NewSlackChannel(server.URL, time.Second)
	require.NoError(t, ch.Deliver(context.Background(), samplePayload()))

	assert.Contains(t, got["text"], "interested")
	assert.Contains(t, got["text"], "Alice Lead")
	assert.Contains(t, got["text"], "Pricing question")
}
