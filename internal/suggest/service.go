package suggest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/welldanyogia/webrana-infinimail-backend/internal/config"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/mailerrors"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/mailparse"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/models"
	"github.com/welldanyogia/webrana-infinimail-backend/internal/vector"
)

const generationPrompt = `You draft replies for a sales team. Using only the
provided context snippets, write a short, friendly reply to the email.
If the context contains a booking or meeting link, include it verbatim.
Do not invent facts that are not in the context. Reply with the email body
only, no subject line.`

// Retriever serves similarity lookups for grounding context.
type Retriever interface {
	QueryKnowledge(ctx context.Context, query string, top int) ([]vector.Snippet, error)
	QueryMessages(ctx context.Context, query string, top int) ([]vector.Snippet, error)
}

// Suggestion is a drafted reply. When the retrieval or generation backend
// is down the suggestion degrades to unavailable instead of erroring; the
// message itself is fine, only the draft is missing.
type Suggestion struct {
	Available bool             `json:"available"`
	Reply     string           `json:"reply,omitempty"`
	Context   []vector.Snippet `json:"context,omitempty"`
	Model     string           `json:"model,omitempty"`
	Reason    string           `json:"reason,omitempty"`
}

// Service drafts context-grounded replies to classified messages.
type Service struct {
	retriever Retriever
	client    *openai.Client
	model     string
	timeout   time.Duration
	top       int
}

func New(retriever Retriever, apiKey, baseURL string, cfg config.GenerationConfig) *Service {
	clientCfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientCfg.BaseURL = baseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	top := cfg.RetrievalTop
	if top <= 0 {
		top = 3
	}
	return &Service{
		retriever: retriever,
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		timeout:   timeout,
		top:       top,
	}
}

// Suggest retrieves grounding snippets for the message and drafts a reply.
func (s *Service) Suggest(ctx context.Context, msg *models.EmailMessage) (*Suggestion, error) {
	query := msg.Subject
	if msg.BodyText != "" {
		query = msg.Subject + "\n" + msg.BodyText
	}
	if len(query) > 2000 {
		query = mailparse.TruncateRunes(query, 2000)
	}

	knowledge, err := s.retriever.QueryKnowledge(ctx, query, s.top)
	if err != nil {
		if errors.Is(err, mailerrors.ErrRetrievalUnavailable) {
			return &Suggestion{Available: false, Reason: "retrieval unavailable"}, nil
		}
		return nil, err
	}
	prior, err := s.retriever.QueryMessages(ctx, query, s.top)
	if err != nil {
		if errors.Is(err, mailerrors.ErrRetrievalUnavailable) {
			return &Suggestion{Available: false, Reason: "retrieval unavailable"}, nil
		}
		return nil, err
	}
	// The message being replied to is embedded on ingest, so it comes back
	// as its own nearest neighbor. It adds nothing the prompt does not
	// already carry.
	prior = dropSelf(prior, msg.Key())

	snippets := make([]vector.Snippet, 0, len(knowledge)+len(prior))
	snippets = append(snippets, knowledge...)
	snippets = append(snippets, prior...)

	reply, err := s.generate(ctx, msg, knowledge, prior)
	if err != nil {
		if errors.Is(err, mailerrors.ErrGenerationUnavailable) {
			return &Suggestion{Available: false, Context: snippets, Reason: "generation unavailable"}, nil
		}
		return nil, err
	}

	return &Suggestion{
		Available: true,
		Reply:     reply,
		Context:   snippets,
		Model:     s.model,
	}, nil
}

func dropSelf(snippets []vector.Snippet, key string) []vector.Snippet {
	kept := snippets[:0]
	for _, sn := range snippets {
		if sn.ID != key {
			kept = append(kept, sn)
		}
	}
	return kept
}

func (s *Service) generate(ctx context.Context, msg *models.EmailMessage, knowledge, prior []vector.Snippet) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var b strings.Builder
	if len(knowledge) == 0 && len(prior) == 0 {
		b.WriteString("Context: (none available)\n\n")
	}
	if len(knowledge) > 0 {
		b.WriteString("Context:\n")
		for i, sn := range knowledge {
			fmt.Fprintf(&b, "%d. %s\n", i+1, sn.Content)
		}
		b.WriteString("\n")
	}
	if len(prior) > 0 {
		b.WriteString("Similar past emails:\n")
		for i, sn := range prior {
			fmt.Fprintf(&b, "%d. %s\n", i+1, sn.Content)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Email from %s <%s>:\nSubject: %s\n\n%s",
		msg.SenderName, msg.SenderEmail, msg.Subject, msg.BodyText)

	resp, err := s.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: generationPrompt},
			{Role: openai.ChatMessageRoleUser, Content: b.String()},
		},
	})
	if err != nil {
		return "", mailerrors.Wrap(mailerrors.ErrGenerationUnavailable, err.Error())
	}
	if len(resp.Choices) == 0 {
		return "", mailerrors.Wrap(mailerrors.ErrGenerationUnavailable, "empty completion")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
