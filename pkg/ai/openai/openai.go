package openai

import (
	"sync"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/sync/semaphore"

	"github.com/lorekeep/lorekeep/pkg/ai"
)

// ModelOpenAIClient talks to any OpenAI-compatible endpoint (including
// llama.cpp and vLLM deployments) and implements ai.ModelClient. It keeps
// separate clients for embeddings and chat so the two can live on
// different hosts.
type ModelOpenAIClient struct {
	embeddingModel string
	chatModel      string

	embeddingURL string
	embeddingKey string
	chatURL      string
	chatKey      string

	timeoutMin int

	reqLock       *semaphore.Weighted
	embeddingLock *semaphore.Weighted

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	ChatClient      *openai.Client
	EmbeddingClient *openai.Client
}

// NewModelOpenAIClientParams defines the configuration for creating a
// ModelOpenAIClient.
//
// EmbeddingURL and EmbeddingKey configure the embedding API endpoint.
// ChatURL and ChatKey configure the chat/completion API endpoint.
// TimeoutMinutes bounds every request; zero falls back to one minute.
type NewModelOpenAIClientParams struct {
	EmbeddingModel string
	ChatModel      string

	EmbeddingURL string
	EmbeddingKey string
	ChatURL      string
	ChatKey      string

	TimeoutMinutes        int
	MaxConcurrentRequests int64
}

// NewModelOpenAIClient creates and returns a new ModelOpenAIClient
// configured with the provided parameters.
func NewModelOpenAIClient(
	params NewModelOpenAIClientParams,
) *ModelOpenAIClient {
	chatClient := newOpenaiClient(params.ChatURL, params.ChatKey)
	embedClient := newOpenaiClient(params.EmbeddingURL, params.EmbeddingKey)

	if params.MaxConcurrentRequests <= 0 {
		params.MaxConcurrentRequests = 10
	}
	if params.TimeoutMinutes <= 0 {
		params.TimeoutMinutes = 1
	}

	return &ModelOpenAIClient{
		embeddingModel: params.EmbeddingModel,
		chatModel:      params.ChatModel,

		chatURL:      params.ChatURL,
		chatKey:      params.ChatKey,
		embeddingURL: params.EmbeddingURL,
		embeddingKey: params.EmbeddingKey,

		timeoutMin: params.TimeoutMinutes,

		reqLock:       semaphore.NewWeighted(params.MaxConcurrentRequests),
		embeddingLock: semaphore.NewWeighted(params.MaxConcurrentRequests),

		metricsLock: sync.Mutex{},
		metrics:     ai.ModelMetrics{},

		ChatClient:      chatClient,
		EmbeddingClient: embedClient,
	}
}

func newOpenaiClient(
	baseURL string,
	apiKey string,
) *openai.Client {
	if apiKey == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}
