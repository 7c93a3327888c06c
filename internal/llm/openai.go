package llm

import (
	"context"
	"fmt"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/rs/zerolog"

	"github.com/voximind/voice-bridge/internal/config"
)

// OpenAIClient implements Generator using the OpenAI chat completions API
type OpenAIClient struct {
	client    oai.Client
	model     string
	maxTokens int
	system    string
	logger    zerolog.Logger
}

// NewOpenAIClient constructs an OpenAI-backed text generator
func NewOpenAIClient(cfg *config.Config, logger zerolog.Logger) *OpenAIClient {
	client := oai.NewClient(option.WithAPIKey(cfg.OpenAIAPIKey))
	return &OpenAIClient{
		client:    client,
		model:     cfg.OpenAIModel,
		maxTokens: cfg.OpenAIMaxTokens,
		system:    cfg.SystemPrompt,
		logger:    logger,
	}
}

// Reply generates a reply to userText with the conversation history as
// context.
func (c *OpenAIClient) Reply(ctx context.Context, history []Message, userText string) (string, error) {
	messages := make([]oai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	messages = append(messages, oai.SystemMessage(c.system))
	for _, m := range history {
		switch m.Role {
		case "assistant":
			messages = append(messages, oai.AssistantMessage(m.Content))
		default:
			messages = append(messages, oai.UserMessage(m.Content))
		}
	}
	messages = append(messages, oai.UserMessage(userText))

	c.logger.Info().Str("text", userText).Msg("LLM request")

	resp, err := c.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model:     shared.ChatModel(c.model),
		Messages:  messages,
		MaxTokens: oai.Int(int64(c.maxTokens)),
	})
	if err != nil {
		return "", fmt.Errorf("openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}

	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	c.logger.Info().Str("text", reply).Msg("LLM reply")
	return reply, nil
}
