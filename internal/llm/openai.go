package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/adaptexam/internal/llm/prompts"
)

// Config holds the remote generation client settings.
type Config struct {
	BaseURL        string
	APIKey         string
	Model          string
	Temperature    float32
	MaxTokens      int
	TimeoutSeconds int
}

// OpenAIClient issues chat-completion requests to an OpenAI-compatible
// endpoint and parses the JSON-object replies.
type OpenAIClient struct {
	api         *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewOpenAIClient creates a remote generation client.
func NewOpenAIClient(cfg Config) *OpenAIClient {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	if cfg.TimeoutSeconds > 0 {
		config.HTTPClient = &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}
	}
	return &OpenAIClient{
		api:         openai.NewClientWithConfig(config),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

func (c *OpenAIClient) chat(ctx context.Context, system, user string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateQuestion asks the model for one question grounded in the
// given lecture context.
func (c *OpenAIClient) GenerateQuestion(ctx context.Context, req GenerateRequest) (GeneratedQuestion, error) {
	user, err := prompts.BuildGeneratePrompt(req.Context, req.Difficulty, req.AvoidQuestions)
	if err != nil {
		return GeneratedQuestion{}, err
	}

	raw, err := c.chat(ctx, prompts.GenerateSystem, user)
	if err != nil {
		return GeneratedQuestion{}, err
	}

	var gen GeneratedQuestion
	if err := coerceJSON(raw, &gen); err != nil {
		return GeneratedQuestion{}, fmt.Errorf("parse generation response: %w (raw: %s)", err, raw)
	}
	gen.Question = strings.TrimSpace(gen.Question)
	gen.IdealAnswer = strings.TrimSpace(gen.IdealAnswer)
	if gen.Question == "" {
		return GeneratedQuestion{}, fmt.Errorf("LLM returned empty question")
	}
	return gen, nil
}

// GradeAnswer asks the model to grade the student's answer.
func (c *OpenAIClient) GradeAnswer(ctx context.Context, req GradeRequest) (GradedAnswer, error) {
	user, err := prompts.BuildGradePrompt(prompts.GradeData{
		Context:       req.Context,
		Question:      req.Question,
		IdealAnswer:   req.IdealAnswer,
		StudentAnswer: req.StudentAnswer,
	})
	if err != nil {
		return GradedAnswer{}, err
	}

	raw, err := c.chat(ctx, prompts.GradeSystem, user)
	if err != nil {
		return GradedAnswer{}, err
	}

	// is_correct defaults to correctness >= 0.5 when the model omits it.
	var parsed struct {
		Correctness float64 `json:"correctness"`
		IsCorrect   *bool   `json:"is_correct"`
		Feedback    string  `json:"feedback"`
	}
	if err := coerceJSON(raw, &parsed); err != nil {
		return GradedAnswer{}, fmt.Errorf("parse grading response: %w (raw: %s)", err, raw)
	}

	graded := GradedAnswer{
		Correctness: clamp01(parsed.Correctness),
		Feedback:    strings.TrimSpace(parsed.Feedback),
	}
	if parsed.IsCorrect != nil {
		graded.IsCorrect = *parsed.IsCorrect
	} else {
		graded.IsCorrect = graded.Correctness >= 0.5
	}
	return graded, nil
}
