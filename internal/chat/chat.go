// Package chat talks to an OpenAI-compatible chat completion API through the
// eino model abstraction.
package chat

import (
	"context"
	"errors"
	"io"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/schema"

	"chat-renderer/internal/logger"
	"chat-renderer/internal/types"
)

// DefaultSystemPrompt is used when the configuration does not provide one.
// It nudges the model toward output the render pipeline handles well.
const DefaultSystemPrompt = `You are a helpful assistant. Format responses in Markdown. ` +
	`Use \( ... \) for inline math and \[ ... \] for display math. ` +
	`Use fenced code blocks with a language tag for code.`

// Config holds the connection settings for one client.
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
}

// Client sends chat histories to the model. Safe for concurrent use; each
// call carries its own context.
type Client struct {
	cm           *openai.ChatModel
	systemPrompt string
}

// NewClient creates a chat client. The API key is required; everything else
// has a usable default upstream.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, types.NewAppError(types.ErrConfig, "OpenAI API key is not configured", nil)
	}

	chatModelConfig := &openai.ChatModelConfig{
		Model:  cfg.Model,
		APIKey: cfg.APIKey,
	}
	if cfg.BaseURL != "" {
		chatModelConfig.BaseURL = cfg.BaseURL
	}

	cm, err := openai.NewChatModel(ctx, chatModelConfig)
	if err != nil {
		logger.Error("failed to create chat model", err, logger.String("model", cfg.Model))
		return nil, types.NewAppError(types.ErrChat, "failed to create chat model", err)
	}

	prompt := cfg.SystemPrompt
	if prompt == "" {
		prompt = DefaultSystemPrompt
	}

	logger.Info("chat client initialized",
		logger.String("model", cfg.Model),
		logger.Bool("customPrompt", cfg.SystemPrompt != ""))
	return &Client{cm: cm, systemPrompt: prompt}, nil
}

// Send submits the conversation history and returns the assistant's reply.
func (c *Client) Send(ctx context.Context, history []types.Message) (string, error) {
	response, err := c.cm.Generate(ctx, buildMessages(c.systemPrompt, history))
	if err != nil {
		logger.Error("chat completion failed", err)
		return "", types.NewAppError(types.ErrChat, "chat completion failed", err)
	}
	return response.Content, nil
}

// Stream submits the conversation history and delivers the reply
// incrementally through onChunk; the full reply is returned at the end.
// A context cancellation mid-stream returns the error with whatever content
// already arrived discarded by the caller's choice.
func (c *Client) Stream(ctx context.Context, history []types.Message, onChunk func(delta string)) (string, error) {
	reader, err := c.cm.Stream(ctx, buildMessages(c.systemPrompt, history))
	if err != nil {
		logger.Error("chat stream failed to start", err)
		return "", types.NewAppError(types.ErrChat, "chat stream failed to start", err)
	}
	defer reader.Close()

	var full []byte
	for {
		chunk, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logger.Error("chat stream interrupted", err)
			return string(full), types.NewAppError(types.ErrChat, "chat stream interrupted", err)
		}
		if chunk.Content == "" {
			continue
		}
		full = append(full, chunk.Content...)
		if onChunk != nil {
			onChunk(chunk.Content)
		}
	}
	return string(full), nil
}

// buildMessages maps the stored conversation onto eino schema messages with
// the system prompt first. Stored system messages are kept in place so a
// caller can inject mid-conversation instructions.
func buildMessages(systemPrompt string, history []types.Message) []*schema.Message {
	msgs := make([]*schema.Message, 0, len(history)+1)
	msgs = append(msgs, schema.SystemMessage(systemPrompt))
	for _, m := range history {
		switch m.Role {
		case types.RoleAssistant:
			msgs = append(msgs, schema.AssistantMessage(m.Content, nil))
		case types.RoleSystem:
			msgs = append(msgs, schema.SystemMessage(m.Content))
		default:
			msgs = append(msgs, schema.UserMessage(m.Content))
		}
	}
	return msgs
}
