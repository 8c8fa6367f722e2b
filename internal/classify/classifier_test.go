package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/welldanyogia/webrana-infinimail-backend/internal/config"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/mailerrors"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/models"
)

func completionBody(content string) string {
	payload := map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{
			{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			},
		},
	}
	raw, _ := json.Marshal(payload)
	return string(raw)
}

func newTestClassifier(t *testing.T, handler http.HandlerFunc) (*Classifier, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	c := New(config.ClassifierConfig{
		APIKey:     "test-key",
		BaseURL:    server.URL + "/v1",
		Model:      "gpt-4o-mini",
		Timeout:    2 * time.Second,
		MaxRetries: 2,
	})
	return c, server
}

func testMessage() *models.EmailMessage {
	return &models.EmailMessage{
		AccountID:   1,
		Folder:      "INBOX",
		UID:         7,
		SenderEmail: "lead@prospect.com",
		SenderName:  "Lead",
		Subject:     "Pricing",
		BodyText:    "Can we talk about your enterprise plan next week?",
	}
}

func TestClassifier_ParsesLabelAndConfidence(t *testing.T) {
	c, _ := newTestClassifier(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completionBody(`{"label": "interested", "confidence": 0.93}`))
	})

	result, err := c.Classify(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, models.LabelInterested, result.Label)
	assert.InDelta(t, 0.93, result.Confidence, 0.001)
	assert.Equal(t, "gpt-4o-mini", result.ModelVersion)
}

func TestClassifier_RetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClassifier(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, `{"error": {"message": "overloaded"}}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completionBody(`{"label": "meeting_booked", "confidence": 0.8}`))
	})

	result, err := c.Classify(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, models.LabelMeetingBooked, result.Label)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClassifier_SucceedsOnFinalRetry(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClassifier(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			http.Error(w, `{"error": {"message": "overloaded"}}`, http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completionBody(`{"label": "interested", "confidence": 0.91}`))
	})

	result, err := c.Classify(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, models.LabelInterested, result.Label)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClassifier_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClassifier(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error": {"message": "prompt too long", "type": "invalid_request_error"}}`, http.StatusBadRequest)
	})

	_, err := c.Classify(context.Background(), testMessage())
	require.Error(t, err)
	assert.ErrorIs(t, err, mailerrors.ErrClassifierRejected)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClassifier_UnknownLabelIsRejected(t *testing.T) {
	c, _ := newTestClassifier(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completionBody(`{"label": "maybe_interested", "confidence": 0.5}`))
	})

	_, err := c.Classify(context.Background(), testMessage())
	require.Error(t, err)
	assert.ErrorIs(t, err, mailerrors.ErrClassifierRejected)
}

func TestClassifier_ExhaustedRetriesSurfaceUnavailable(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClassifier(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error": {"message": "down"}}`, http.StatusServiceUnavailable)
	})

	_, err := c.Classify(context.Background(), testMessage())
	require.Error(t, err)
	assert.ErrorIs(t, err, mailerrors.ErrClassifierUnavailable)
	// initial attempt plus two retries
	assert.Equal(t, int32(3), calls.Load())
}

func TestClassifier_TruncatesOversizedBody(t *testing.T) {
	c := New(config.ClassifierConfig{APIKey: "k", Model: "m", MaxBodySize: 10})
	msg := testMessage()
	msg.BodyText = "0123456789ABCDEF"

	prompt := c.buildPrompt(msg)
	assert.Contains(t, prompt, "0123456789")
	assert.NotContains(t, prompt, "ABCDEF")
}
