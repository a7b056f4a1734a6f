// Retrieval service backed by a chromem-go vector store. Documents are
// partitioned into one collection per user; content type and timestamps ride
// along as metadata so queries can filter and rank without touching the
// relational store.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/KyahWill/journal-app-sub001/pkg/db"
	"github.com/KyahWill/journal-app-sub001/pkg/utils"
	openaiembed "github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino/components/embedding"
	chromem "github.com/philippgille/chromem-go"
)

// ContentType identifies the kind of document in the retrieval store
type ContentType string

const (
	ContentTypeJournal ContentType = "journal"
	ContentTypeGoal    ContentType = "goal"
)

// similarity ties closer than this break toward the more recent document
const similarityTieEpsilon = 1e-6

// RetrievalConfig holds configuration for the retrieval service
type RetrievalConfig struct {
	// Vector store settings
	VectorStorePath string `yaml:"vector_store_path"` // empty means in-memory

	// Embedding settings. Provider is one of: openai, ollama.
	EmbeddingProvider string `yaml:"embedding_provider"`
	EmbeddingModel    string `yaml:"embedding_model"`
	OpenAIBaseURL     string `yaml:"openai_base_url"`
	OllamaURL         string `yaml:"ollama_url"`

	// Ranking settings
	DefaultLimit       int     `yaml:"default_limit"`
	RecencyBoost       float64 `yaml:"recency_boost"` // score bonus for documents inside the recency window
	CandidateOverfetch int     `yaml:"candidate_overfetch"`
}

// DefaultRetrievalConfig returns default configuration
func DefaultRetrievalConfig() *RetrievalConfig {
	return &RetrievalConfig{
		EmbeddingProvider:  "openai",
		EmbeddingModel:     "text-embedding-3-small",
		OllamaURL:          "http://localhost:11434",
		DefaultLimit:       5,
		RecencyBoost:       0.05,
		CandidateOverfetch: 3,
	}
}

// RetrievalQuery describes one semantic search request
type RetrievalQuery struct {
	UserID       string
	Query        string
	ContentTypes []ContentType
	Limit        int

	// Soft recency preference: documents newer than RecencyDays get a score
	// boost but older highly-similar ones are not excluded.
	PreferRecent bool
	RecencyDays  int

	// SkipUsageTracking marks system-internal sub-queries that must not be
	// billed against the user.
	SkipUsageTracking bool
}

// RetrievedDocument is one ranked search result
type RetrievedDocument struct {
	ID         string      `json:"id"`
	Content    string      `json:"content"`
	Type       ContentType `json:"type"`
	Mood       string      `json:"mood,omitempty"`
	Tags       []string    `json:"tags,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	Similarity float64     `json:"similarity"`
}

// RetrievalService performs semantic search over a user's documents
type RetrievalService struct {
	config *RetrievalConfig
	logger *slog.Logger
	usage  *UsageService // optional; nil disables usage accounting

	vectorDB      *chromem.DB
	collections   sync.Map // userID -> *chromem.Collection
	embeddingFunc chromem.EmbeddingFunc
}

// RetrievalOption customizes service construction
type RetrievalOption func(*RetrievalService)

// WithEmbeddingFunc overrides the embedding function. Used by tests to
// inject a deterministic embedder.
func WithEmbeddingFunc(fn chromem.EmbeddingFunc) RetrievalOption {
	return func(s *RetrievalService) { s.embeddingFunc = fn }
}

// WithUsageLimiter enables usage accounting for user-billed queries.
func WithUsageLimiter(usage *UsageService) RetrievalOption {
	return func(s *RetrievalService) { s.usage = usage }
}

// NewRetrievalService creates a retrieval service. With an empty
// VectorStorePath the store lives in memory only.
func NewRetrievalService(config *RetrievalConfig, opts ...RetrievalOption) (*RetrievalService, error) {
	if config == nil {
		config = DefaultRetrievalConfig()
	}

	s := &RetrievalService{
		config: config,
		logger: utils.GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.embeddingFunc == nil {
		s.embeddingFunc = createEmbeddingFunc(config)
	}
	if s.embeddingFunc == nil {
		return nil, ErrEmbedderNotAvailable
	}

	var err error
	if config.VectorStorePath != "" {
		if err := os.MkdirAll(config.VectorStorePath, 0o755); err != nil {
			return nil, fmt.Errorf("create vector store directory: %w", err)
		}
		s.vectorDB, err = chromem.NewPersistentDB(config.VectorStorePath, false)
	} else {
		s.vectorDB = chromem.NewDB()
	}
	if err != nil {
		return nil, fmt.Errorf("create vector DB: %w", err)
	}

	return s, nil
}

// createEmbeddingFunc builds an embedding function for the configured
// provider. OpenAI goes through the eino embedder so base URL overrides
// work; ollama uses the chromem built-in.
func createEmbeddingFunc(config *RetrievalConfig) chromem.EmbeddingFunc {
	switch config.EmbeddingProvider {
	case "openai", "custom":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil
		}
		model := config.EmbeddingModel
		if model == "" {
			model = "text-embedding-3-small"
		}
		embedder, err := openaiembed.NewEmbedder(context.Background(), &openaiembed.EmbeddingConfig{
			APIKey:  apiKey,
			Model:   model,
			BaseURL: config.OpenAIBaseURL,
		})
		if err != nil {
			// Fall back to the chromem built-in client.
			return chromem.NewEmbeddingFuncOpenAI(apiKey, chromem.EmbeddingModelOpenAI(model))
		}
		return wrapEinoEmbedder(embedder)

	case "ollama":
		url := config.OllamaURL
		if url == "" {
			url = "http://localhost:11434"
		}
		model := config.EmbeddingModel
		if model == "" {
			model = "nomic-embed-text"
		}
		return chromem.NewEmbeddingFuncOllama(model, url)

	default:
		return nil
	}
}

// wrapEinoEmbedder adapts an eino Embedder to chromem.EmbeddingFunc
func wrapEinoEmbedder(embedder embedding.Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		embeddings, err := embedder.EmbedStrings(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(embeddings) == 0 {
			return nil, fmt.Errorf("no embeddings returned")
		}
		result := make([]float32, len(embeddings[0]))
		for i, v := range embeddings[0] {
			result[i] = float32(v)
		}
		return result, nil
	}
}

// Query returns ranked similar documents for a user. A zero-result response
// is valid, not an error.
func (s *RetrievalService) Query(ctx context.Context, q RetrievalQuery) ([]RetrievedDocument, error) {
	if q.Limit <= 0 {
		q.Limit = s.config.DefaultLimit
	}

	if !q.SkipUsageTracking && s.usage != nil {
		if err := s.usage.CheckAndIncrement(ctx, q.UserID, "retrieval_query"); err != nil {
			return nil, err
		}
	}

	col, err := s.getOrCreateCollection(q.UserID)
	if err != nil {
		return nil, fmt.Errorf("get collection: %w", err)
	}

	// chromem rejects nResults larger than the collection size.
	candidates := q.Limit * s.config.CandidateOverfetch
	if count := col.Count(); candidates > count {
		candidates = count
	}
	if candidates == 0 {
		return []RetrievedDocument{}, nil
	}

	results, err := col.Query(ctx, q.Query, candidates, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	docs := make([]RetrievedDocument, 0, len(results))
	for _, r := range results {
		doc := documentFromResult(r)
		if len(q.ContentTypes) > 0 && !containsType(q.ContentTypes, doc.Type) {
			continue
		}
		docs = append(docs, doc)
	}

	rankDocuments(docs, q, s.config.RecencyBoost, time.Now())

	if len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return docs, nil
}

// rankDocuments orders docs by similarity with a soft recency preference:
// documents inside the recency window gain a fixed boost, and similarity
// ties break toward the more recent document.
func rankDocuments(docs []RetrievedDocument, q RetrievalQuery, boost float64, now time.Time) {
	cutoff := now.AddDate(0, 0, -q.RecencyDays)
	effective := func(d RetrievedDocument) float64 {
		score := d.Similarity
		if q.PreferRecent && q.RecencyDays > 0 && d.CreatedAt.After(cutoff) {
			score += boost
		}
		return score
	}

	sort.SliceStable(docs, func(i, j int) bool {
		si, sj := effective(docs[i]), effective(docs[j])
		if diff := si - sj; diff > similarityTieEpsilon || diff < -similarityTieEpsilon {
			return si > sj
		}
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
}

func containsType(types []ContentType, t ContentType) bool {
	for _, ct := range types {
		if ct == t {
			return true
		}
	}
	return false
}

func documentFromResult(r chromem.Result) RetrievedDocument {
	doc := RetrievedDocument{
		ID:         r.ID,
		Content:    r.Content,
		Type:       ContentType(r.Metadata["type"]),
		Mood:       r.Metadata["mood"],
		Similarity: float64(r.Similarity),
	}
	if v := r.Metadata["tags"]; v != "" {
		doc.Tags = strings.Split(v, ",")
	}
	if v := r.Metadata["created_at"]; v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			doc.CreatedAt = t
		}
	}
	return doc
}

// IndexJournalEntry adds (or re-adds) a journal entry to the user's
// collection. chromem handles updates by re-adding with the same ID.
func (s *RetrievalService) IndexJournalEntry(ctx context.Context, entry *db.JournalEntry) error {
	col, err := s.getOrCreateCollection(entry.UserID)
	if err != nil {
		return fmt.Errorf("get collection: %w", err)
	}

	metadata := map[string]string{
		"type":       string(ContentTypeJournal),
		"created_at": entry.CreatedAt.Format(time.RFC3339),
	}
	if entry.Mood != "" {
		metadata["mood"] = entry.Mood
	}
	if len(entry.Tags) > 0 {
		metadata["tags"] = strings.Join(entry.Tags, ",")
	}

	err = col.AddDocument(ctx, chromem.Document{
		ID:       entry.ID,
		Content:  entry.Content,
		Metadata: metadata,
	})
	if err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

// RemoveDocument deletes a document from the user's collection. Missing
// documents are ignored.
func (s *RetrievalService) RemoveDocument(ctx context.Context, userID, docID string) {
	col, err := s.getOrCreateCollection(userID)
	if err != nil {
		return
	}
	if err := col.Delete(ctx, nil, nil, docID); err != nil {
		s.logger.Warn("Failed to remove document from vector store", "docID", docID, "error", err)
	}
}

// getOrCreateCollection returns the per-user collection
func (s *RetrievalService) getOrCreateCollection(userID string) (*chromem.Collection, error) {
	name := "user_" + userID

	if col, ok := s.collections.Load(name); ok {
		return col.(*chromem.Collection), nil
	}

	col := s.vectorDB.GetCollection(name, s.embeddingFunc)
	if col == nil {
		var err error
		col, err = s.vectorDB.CreateCollection(name, nil, s.embeddingFunc)
		if err != nil {
			return nil, err
		}
	}

	s.collections.Store(name, col)
	return col, nil
}
