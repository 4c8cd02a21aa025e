package ai

import (
	"context"
	"strings"

	"crypto-price-bot/internal/gateway"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"
	DefaultModel   = "gemini-2.0-flash"

	maxAnswerTokens = 600
	systemPrompt    = "You are a concise assistant in a Telegram crypto group. " +
		"Answer in at most a few short paragraphs of plain text. Do not give financial advice."
)

var ErrEmptyAnswer = errors.New("model returned no answer")

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

type Client struct {
	api   *openai.Client
	gw    *gateway.Gateway
	model string
}

func New(gw *gateway.Gateway, c Config) *Client {
	cfg := openai.DefaultConfig(c.APIKey)
	cfg.BaseURL = strings.TrimRight(DefaultBaseURL, "/")
	if c.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(c.BaseURL, "/")
	}
	model := c.Model
	if model == "" {
		model = DefaultModel
	}
	return &Client{api: openai.NewClientWithConfig(cfg), gw: gw, model: model}
}

// Ask answers a free-form question. Questions are not deduplicated.
func (c *Client) Ask(ctx context.Context, question string, opts ...gateway.Option) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", errors.New("empty question")
	}

	answer, err := gateway.Do(ctx, c.gw, "", func(ctx context.Context) (string, error) {
		resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:     c.model,
			MaxTokens: maxAnswerTokens,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: question},
			},
		})
		if err != nil {
			return "", mapError(err)
		}
		if len(resp.Choices) == 0 {
			return "", ErrEmptyAnswer
		}
		return strings.TrimSpace(resp.Choices[0].Message.Content), nil
	}, opts...)
	if err != nil {
		return "", errors.Wrap(err, "ai ask")
	}
	if answer == "" {
		return "", ErrEmptyAnswer
	}
	return answer, nil
}

// mapError converts HTTP failures reported by go-openai to gateway status errors.
func mapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return gateway.NewStatusError(apiErr.HTTPStatusCode, "chat/completions", []byte(apiErr.Message))
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return gateway.NewStatusError(reqErr.HTTPStatusCode, "chat/completions", []byte(reqErr.Error()))
	}
	return err
}
