package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/welldanyogia/webrana-infinimail-backend/internal/models"
)

func originAllowed(t *testing.T, origins []string, origin string) bool {
	t.Helper()
	upgrader := NewSecureUpgrader(origins, nil)
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	return upgrader.CheckOrigin(req)
}

func TestNewSecureUpgrader_ValidOrigin(t *testing.T) {
	allowed := []string{"http://localhost:3000", "http://example.com"}

	assert.True(t, originAllowed(t, allowed, "http://localhost:3000"))
	assert.True(t, originAllowed(t, allowed, "http://example.com"))
}

func TestNewSecureUpgrader_InvalidOrigin(t *testing.T) {
	assert.False(t, originAllowed(t, []string{"http://localhost:3000"}, "http://malicious.com"))
}

func TestNewSecureUpgrader_SameOriginPasses(t *testing.T) {
	// Same-origin requests carry no Origin header.
	assert.True(t, originAllowed(t, []string{"http://localhost:3000"}, ""))
}

func TestNewSecureUpgrader_NoOriginsFallsBackToLocalhost(t *testing.T) {
	assert.True(t, originAllowed(t, nil, "http://localhost:3000"))
	assert.True(t, originAllowed(t, []string{"", "  "}, "http://localhost:3000"))
	assert.False(t, originAllowed(t, nil, "http://example.com"))
}

func TestNewSecureUpgrader_TrimsWhitespace(t *testing.T) {
	assert.True(t, originAllowed(t, []string{"  http://example.com  "}, "http://example.com"))
}

func TestNewSecureUpgrader_ExactMatchOnly(t *testing.T) {
	allowed := []string{"http://localhost:3000"}

	// Case and path both matter: the Origin header is compared verbatim.
	assert.False(t, originAllowed(t, allowed, "HTTP://LOCALHOST:3000"))
	assert.False(t, originAllowed(t, allowed, "http://localhost:3000/some/path"))
}

func TestNewSecureUpgrader_BufferSizes(t *testing.T) {
	upgrader := NewSecureUpgrader(nil, nil)

	assert.Equal(t, 1024, upgrader.ReadBufferSize)
	assert.Equal(t, 1024, upgrader.WriteBufferSize)
}

func TestHub_NewHub(t *testing.T) {
	hub := NewHub(nil)

	assert.NotNil(t, hub)
	assert.NotNil(t, hub.clients)
	assert.NotNil(t, hub.subscriptions)
	assert.NotNil(t, hub.register)
	assert.NotNil(t, hub.unregister)
}

func TestHub_BroadcastEnrichedNoSubscribers(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()

	payload := &EnrichedPayload{
		Key:         "1:INBOX:5",
		ID:          1,
		SenderEmail: "lead@prospect.com",
		Subject:     "Pricing question",
		Label:       "interested",
	}

	// Must not panic or block with nobody listening.
	hub.BroadcastEnriched(1, payload)
}

func TestHub_EnrichedEventReachesAccountSubscribersOnly(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()

	subscribed := &Client{hub: hub, send: make(chan []byte, 4)}
	other := &Client{hub: hub, send: make(chan []byte, 4)}

	hub.Register(subscribed)
	hub.Register(other)
	hub.Subscribe(subscribed, 1)
	hub.Subscribe(other, 2)

	msg := &models.EmailMessage{
		ID:          7,
		AccountID:   1,
		Folder:      "INBOX",
		UID:         5,
		SenderEmail: "lead@prospect.com",
		Subject:     "Pricing question",
		Label:       "interested",
		Confidence:  0.93,
	}
	hub.MessageEnriched(msg)

	select {
	case data := <-subscribed.send:
		var got WSMessage
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, MessageTypeMessageEnriched, got.Type)
		assert.Equal(t, uint(1), got.AccountID)

		payload, ok := got.Message.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "1:INBOX:5", payload["key"])
		assert.Equal(t, "interested", payload["label"])
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not receive enriched event")
	}

	select {
	case <-other.send:
		t.Fatal("client subscribed to another account received the event")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()

	client := &Client{hub: hub, send: make(chan []byte, 4)}
	hub.Register(client)
	hub.Subscribe(client, 1)
	hub.Unsubscribe(client, 1)

	hub.BroadcastEnriched(1, &EnrichedPayload{Key: "1:INBOX:9"})

	select {
	case <-client.send:
		t.Fatal("unsubscribed client received the event")
	case <-time.After(100 * time.Millisecond):
	}
}
