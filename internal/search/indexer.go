package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/welldanyogia/webrana-infinimail-backend/internal/config"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/mailerrors"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/models"
)

// document is the indexed shape of a message. The document id is the
// message key, so a replay of the same message overwrites its own document
// instead of creating a second one.
type document struct {
	MessageKey  string    `json:"message_key"`
	AccountID   uint      `json:"account_id"`
	Folder      string    `json:"folder"`
	UID         uint32    `json:"uid"`
	MessageID   string    `json:"message_id,omitempty"`
	ThreadID    string    `json:"thread_id,omitempty"`
	SenderEmail string    `json:"sender_email"`
	SenderName  string    `json:"sender_name,omitempty"`
	Subject     string    `json:"subject,omitempty"`
	BodyText    string    `json:"body_text,omitempty"`
	Label       string    `json:"label"`
	Confidence  float64   `json:"confidence"`
	SentAt      time.Time `json:"sent_at"`
	ReceivedAt  time.Time `json:"received_at"`
}

// Indexer writes messages into Elasticsearch and serves search queries.
type Indexer struct {
	client     *elasticsearch.Client
	index      string
	timeout    time.Duration
	maxRetries int
}

func New(cfg config.SearchConfig) (*Indexer, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}
	return &Indexer{
		client:     client,
		index:      cfg.Index,
		timeout:    timeout,
		maxRetries: maxRetries,
	}, nil
}

// Index upserts one message document. Transient failures are retried with
// backoff; a budget-exhausting failure surfaces as ErrIndexUnavailable so
// the caller can defer the write.
func (ix *Indexer) Index(ctx context.Context, msg *models.EmailMessage) error {
	doc := document{
		MessageKey:  msg.Key(),
		AccountID:   msg.AccountID,
		Folder:      msg.Folder,
		UID:         msg.UID,
		MessageID:   msg.MessageID,
		ThreadID:    msg.ThreadID,
		SenderEmail: msg.SenderEmail,
		SenderName:  msg.SenderName,
		Subject:     msg.Subject,
		BodyText:    msg.BodyText,
		Label:       msg.Label,
		Confidence:  msg.Confidence,
		SentAt:      msg.SentAt,
		ReceivedAt:  msg.ReceivedAt,
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(ix.maxRetries)),
		ctx,
	)
	return backoff.Retry(func() error {
		return ix.indexOnce(ctx, doc.MessageKey, body)
	}, policy)
}

func (ix *Indexer) indexOnce(ctx context.Context, docID string, body []byte) error {
	callCtx, cancel := context.WithTimeout(ctx, ix.timeout)
	defer cancel()

	req := esapi.IndexRequest{
		Index:      ix.index,
		DocumentID: docID,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(callCtx, ix.client)
	if err != nil {
		return mailerrors.Wrap(mailerrors.ErrIndexUnavailable, err.Error())
	}
	defer res.Body.Close()

	if res.IsError() {
		if res.StatusCode >= 400 && res.StatusCode < 500 {
			// Mapping conflicts and the like will not heal on retry.
			return backoff.Permanent(mailerrors.Wrap(mailerrors.ErrIndexUnavailable, res.String()))
		}
		return mailerrors.Wrap(mailerrors.ErrIndexUnavailable, res.String())
	}
	return nil
}

// Query is a full-text search request with optional filters.
type Query struct {
	Text      string
	AccountID uint
	Folder    string
	Label     string
	Limit     int
	Offset    int
}

// Hit is one search result.
type Hit struct {
	MessageKey  string    `json:"message_key"`
	AccountID   uint      `json:"account_id"`
	Folder      string    `json:"folder"`
	UID         uint32    `json:"uid"`
	SenderEmail string    `json:"sender_email"`
	Subject     string    `json:"subject,omitempty"`
	Label       string    `json:"label"`
	Confidence  float64   `json:"confidence"`
	SentAt      time.Time `json:"sent_at"`
	Score       float64   `json:"score"`
}

// Search runs a bool query: full-text match over subject and body,
// narrowed by the given term filters.
func (ix *Indexer) Search(ctx context.Context, q Query) ([]Hit, int64, error) {
	if q.Limit <= 0 {
		q.Limit = 20
	}

	must := []map[string]any{}
	if q.Text != "" {
		must = append(must, map[string]any{
			"multi_match": map[string]any{
				"query":  q.Text,
				"fields": []string{"subject^2", "body_text", "sender_email"},
			},
		})
	}
	filter := []map[string]any{}
	if q.AccountID != 0 {
		filter = append(filter, map[string]any{"term": map[string]any{"account_id": q.AccountID}})
	}
	if q.Folder != "" {
		filter = append(filter, map[string]any{"term": map[string]any{"folder.keyword": q.Folder}})
	}
	if q.Label != "" {
		filter = append(filter, map[string]any{"term": map[string]any{"label.keyword": q.Label}})
	}

	queryBody := map[string]any{
		"from": q.Offset,
		"size": q.Limit,
		"query": map[string]any{
			"bool": map[string]any{
				"must":   must,
				"filter": filter,
			},
		},
		"sort": []map[string]any{
			{"_score": map[string]any{"order": "desc"}},
			{"received_at": map[string]any{"order": "desc"}},
		},
	}
	body, err := json.Marshal(queryBody)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal query: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, ix.timeout)
	defer cancel()

	res, err := ix.client.Search(
		ix.client.Search.WithContext(callCtx),
		ix.client.Search.WithIndex(ix.index),
		ix.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, 0, mailerrors.Wrap(mailerrors.ErrIndexUnavailable, err.Error())
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, 0, mailerrors.Wrap(mailerrors.ErrIndexUnavailable, res.String())
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Score  float64         `json:"_score"`
				Source json.RawMessage `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, 0, fmt.Errorf("decode search response: %w", err)
	}

	hits := make([]Hit, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		var hit Hit
		if err := json.Unmarshal(h.Source, &hit); err != nil {
			continue
		}
		hit.Score = h.Score
		hits = append(hits, hit)
	}
	return hits, parsed.Hits.Total.Value, nil
}
