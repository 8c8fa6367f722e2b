package vector

import (
	"context"
	"fmt"
	"runtime"

	"github.com/philippgille/chromem-go"

	"github.com/welldanyogia/webrana-infinimail-backend/internal/config"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/mailerrors"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/models"
)

const (
	messagesCollection  = "messages"
	knowledgeCollection = "knowledge"
)

// Store is the embedded vector database behind reply suggestion. Two
// collections: past messages for conversational context, and curated
// knowledge snippets (product facts, booking links) for grounding.
type Store struct {
	db        *chromem.DB
	messages  *chromem.Collection
	knowledge *chromem.Collection
}

// New opens (or creates) the persistent store at cfg.Path. The embedding
// function is shared by both collections so query and document vectors
// live in the same space.
func New(cfg config.VectorConfig, apiKey string) (*Store, error) {
	db, err := chromem.NewPersistentDB(cfg.Path, false)
	if err != nil {
		return nil, fmt.Errorf("open vector db: %w", err)
	}

	model := chromem.EmbeddingModelOpenAI(cfg.EmbeddingModel)
	if cfg.EmbeddingModel == "" {
		model = chromem.EmbeddingModelOpenAI3Small
	}
	embed := chromem.NewEmbeddingFuncOpenAI(apiKey, model)

	messages, err := db.GetOrCreateCollection(messagesCollection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("open messages collection: %w", err)
	}
	knowledge, err := db.GetOrCreateCollection(knowledgeCollection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("open knowledge collection: %w", err)
	}

	return &Store{db: db, messages: messages, knowledge: knowledge}, nil
}

// AddMessage embeds one normalized message. The document id is the message
// key, so replays overwrite instead of accumulating duplicates.
func (s *Store) AddMessage(ctx context.Context, msg *models.EmailMessage) error {
	content := msg.BodyText
	if content == "" {
		content = msg.Snippet
	}
	if content == "" {
		return nil
	}

	doc := chromem.Document{
		ID:      msg.Key(),
		Content: fmt.Sprintf("Subject: %s\nFrom: %s\n\n%s", msg.Subject, msg.SenderEmail, content),
		Metadata: map[string]string{
			"account_id": fmt.Sprintf("%d", msg.AccountID),
			"folder":     msg.Folder,
			"sender":     msg.SenderEmail,
			"label":      msg.Label,
		},
	}
	if err := s.messages.AddDocuments(ctx, []chromem.Document{doc}, runtime.NumCPU()); err != nil {
		return mailerrors.Wrap(mailerrors.ErrRetrievalUnavailable, err.Error())
	}
	return nil
}

// AddKnowledge stores one curated snippet used to ground reply generation.
func (s *Store) AddKnowledge(ctx context.Context, id, content string, metadata map[string]string) error {
	if err := s.knowledge.AddDocuments(ctx, []chromem.Document{{
		ID:       id,
		Content:  content,
		Metadata: metadata,
	}}, runtime.NumCPU()); err != nil {
		return mailerrors.Wrap(mailerrors.ErrRetrievalUnavailable, err.Error())
	}
	return nil
}

// Snippet is one retrieved document with its similarity score.
type Snippet struct {
	ID         string  `json:"id"`
	Content    string  `json:"content"`
	Similarity float32 `json:"similarity"`
}

// QueryKnowledge returns the top knowledge snippets for the query text.
func (s *Store) QueryKnowledge(ctx context.Context, query string, top int) ([]Snippet, error) {
	return s.query(ctx, s.knowledge, query, top)
}

// QueryMessages returns past messages most similar to the query text.
func (s *Store) QueryMessages(ctx context.Context, query string, top int) ([]Snippet, error) {
	return s.query(ctx, s.messages, query, top)
}

func (s *Store) query(ctx context.Context, c *chromem.Collection, query string, top int) ([]Snippet, error) {
	if top <= 0 {
		top = 3
	}
	// chromem refuses to return more results than there are documents.
	if count := c.Count(); count < top {
		top = count
	}
	if top == 0 {
		return nil, nil
	}

	results, err := c.Query(ctx, query, top, nil, nil)
	if err != nil {
		return nil, mailerrors.Wrap(mailerrors.ErrRetrievalUnavailable, err.Error())
	}

	snippets := make([]Snippet, 0, len(results))
	for _, r := range results {
		snippets = append(snippets, Snippet{
			ID:         r.ID,
			Content:    r.Content,
			Similarity: r.Similarity,
		})
	}
	return snippets, nil
}
