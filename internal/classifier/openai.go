package classifier

import (
	"context"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/buildersguild/sentinel/internal/config"
)

// OpenAIClassifier calls an OpenAI-compatible endpoint (Cerebras in the
// default config). A token-bucket limiter keeps us inside the provider's
// request-per-minute budget before the single-flight gate even lets a check
// through.
type OpenAIClassifier struct {
	client        *openai.Client
	limiter       *rate.Limiter
	model         string
	feedbackModel string
	temperature   float32
}

const feedbackTemperature = 0.6

func NewOpenAIClassifier(cfg config.ClassifierConfig) *OpenAIClassifier {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	rpm := cfg.RPM
	if rpm <= 0 {
		rpm = 30
	}
	return &OpenAIClassifier{
		client:        openai.NewClientWithConfig(clientCfg),
		limiter:       rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
		model:         cfg.Model,
		feedbackModel: cfg.FeedbackModel,
		temperature:   float32(cfg.Temperature),
	}
}

func (c *OpenAIClassifier) Flag(ctx context.Context, groups []string, exemptAuthors []string) (string, error) {
	return c.complete(ctx, c.model, c.temperature, buildFlagPrompt(groups, exemptAuthors))
}

func (c *OpenAIClassifier) Feedback(ctx context.Context, groups []string, flagged []int, guidelines string) (string, error) {
	return c.complete(ctx, c.feedbackModel, feedbackTemperature, buildFeedbackPrompt(groups, flagged, guidelines))
}

func (c *OpenAIClassifier) complete(ctx context.Context, model string, temperature float32, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("classifier rate limit wait: %w", err)
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Temperature: temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty choices")
	}

	slog.Debug("classifier call complete",
		"model", model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)
	return resp.Choices[0].Message.Content, nil
}
