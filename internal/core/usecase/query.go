package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docstack/internal/core/domain"
	"github.com/kirillkom/docstack/internal/core/ports"
)

// RetrievalConfig is the retrieval operating point. Zero values fall back
// to the documented defaults; config validation enforces the ranges.
type RetrievalConfig struct {
	// MinSimilarity is the recall gate of the first search pass, default 0.25.
	MinSimilarity float64
	// MaxCandidates caps the first pass, default 15.
	MaxCandidates int
	// RerankThreshold is the stricter second-pass gate, default 0.28.
	RerankThreshold float64
	// TopK caps the final context size, default 8.
	TopK int
}

func (c RetrievalConfig) normalized() RetrievalConfig {
	if c.MinSimilarity <= 0 || c.MinSimilarity >= 1 {
		c.MinSimilarity = 0.25
	}
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = 15
	}
	if c.RerankThreshold <= 0 || c.RerankThreshold >= 1 {
		c.RerankThreshold = 0.28
	}
	if c.TopK <= 0 {
		c.TopK = 8
	}
	return c
}

// noInformationAnswer is returned and persisted when retrieval finds
// nothing above the similarity gate.
const noInformationAnswer = "I couldn't find any relevant information in your documents to answer this question. Try uploading related documents or rephrasing the question."

// QueryUseCase answers questions from the caller's own documents:
// embed -> similarity search -> rerank -> context -> generate -> persist.
type QueryUseCase struct {
	cfg           RetrievalConfig
	chunkStore    ports.ChunkStore
	conversations ports.ConversationStore
	embedder      ports.Embedder
	generator     ports.AnswerGenerator
}

func NewQueryUseCase(
	cfg RetrievalConfig,
	chunkStore ports.ChunkStore,
	conversations ports.ConversationStore,
	embedder ports.Embedder,
	generator ports.AnswerGenerator,
) *QueryUseCase {
	return &QueryUseCase{
		cfg:           cfg.normalized(),
		chunkStore:    chunkStore,
		conversations: conversations,
		embedder:      embedder,
		generator:     generator,
	}
}

// Ask runs the full query pipeline. On success exactly two messages are
// appended to the conversation: the question and the answer. Generation
// failures persist nothing.
func (uc *QueryUseCase) Ask(ctx context.Context, userID, conversationID, question string) (*domain.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ask", errors.New("question is required"))
	}
	if strings.TrimSpace(userID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ask", errors.New("user id is required"))
	}

	conv, err := uc.ensureConversation(ctx, userID, conversationID, question)
	if err != nil {
		return nil, err
	}

	vector, err := uc.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	candidates, err := uc.chunkStore.SearchSimilar(ctx, userID, vector, uc.cfg.MinSimilarity, uc.cfg.MaxCandidates)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	if len(candidates) == 0 {
		sources := make([]domain.Source, 0)
		if err := uc.persistExchange(ctx, conv, question, noInformationAnswer, sources); err != nil {
			return nil, err
		}
		return &domain.Answer{
			Text:           noInformationAnswer,
			Sources:        sources,
			ConversationID: conv.ID,
		}, nil
	}

	selected := rerank(candidates, uc.cfg.RerankThreshold, uc.cfg.TopK)
	contextBlock, sources := buildContext(selected)

	answerText, err := uc.generator.GenerateAnswer(ctx, question, contextBlock)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	if err := uc.persistExchange(ctx, conv, question, answerText, sources); err != nil {
		return nil, err
	}

	return &domain.Answer{
		Text:           answerText,
		Sources:        sources,
		ConversationID: conv.ID,
	}, nil
}

// Search exposes the raw first-pass retrieval without generation.
func (uc *QueryUseCase) Search(ctx context.Context, userID, query string) ([]domain.ScoredChunk, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", errors.New("query is required"))
	}
	if strings.TrimSpace(userID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", errors.New("user id is required"))
	}

	vector, err := uc.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := uc.chunkStore.SearchSimilar(ctx, userID, vector, uc.cfg.MinSimilarity, uc.cfg.MaxCandidates)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	return hits, nil
}

// History returns the conversation transcript in chronological order.
func (uc *QueryUseCase) History(ctx context.Context, userID, conversationID string) ([]domain.Message, error) {
	if _, err := uc.conversations.GetConversation(ctx, userID, conversationID); err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	messages, err := uc.conversations.ListMessages(ctx, userID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

func (uc *QueryUseCase) ensureConversation(ctx context.Context, userID, conversationID, question string) (*domain.Conversation, error) {
	if strings.TrimSpace(conversationID) == "" {
		conversationID = uuid.NewString()
	}
	conv, err := uc.conversations.EnsureConversation(ctx, userID, conversationID, truncateChars(question, 80))
	if err != nil {
		return nil, fmt.Errorf("ensure conversation: %w", err)
	}
	return conv, nil
}

// persistExchange appends the question and the answer as two ordered
// transcript rows. Sources ride on the assistant message only.
func (uc *QueryUseCase) persistExchange(ctx context.Context, conv *domain.Conversation, question, answer string, sources []domain.Source) error {
	now := time.Now().UTC()
	if err := uc.conversations.AppendMessage(ctx, domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		UserID:         conv.UserID,
		Role:           domain.RoleUser,
		Content:        question,
		CreatedAt:      now,
	}); err != nil {
		return fmt.Errorf("append user message: %w", err)
	}
	if err := uc.conversations.AppendMessage(ctx, domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		UserID:         conv.UserID,
		Role:           domain.RoleAssistant,
		Content:        answer,
		Sources:        sources,
		CreatedAt:      now,
	}); err != nil {
		return fmt.Errorf("append assistant message: %w", err)
	}
	return nil
}
