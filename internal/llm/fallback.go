package llm

import (
	"context"
	"log/slog"
)

// FallbackClient wraps a primary and a secondary client. Each operation
// tries the primary first and, on any error, retries with the secondary.
// This is the production default so that an unreachable remote endpoint
// degrades gracefully instead of failing the exam.
type FallbackClient struct {
	primary   Client
	secondary Client
}

// NewFallbackClient creates a composite client.
func NewFallbackClient(primary, secondary Client) *FallbackClient {
	return &FallbackClient{primary: primary, secondary: secondary}
}

// GenerateQuestion tries the primary client, then the secondary.
func (c *FallbackClient) GenerateQuestion(ctx context.Context, req GenerateRequest) (GeneratedQuestion, error) {
	gen, err := c.primary.GenerateQuestion(ctx, req)
	if err == nil {
		return gen, nil
	}
	slog.Warn("primary generation client failed, using fallback", "error", err)
	return c.secondary.GenerateQuestion(ctx, req)
}

// GradeAnswer tries the primary client, then the secondary.
func (c *FallbackClient) GradeAnswer(ctx context.Context, req GradeRequest) (GradedAnswer, error) {
	graded, err := c.primary.GradeAnswer(ctx, req)
	if err == nil {
		return graded, nil
	}
	slog.Warn("primary grading client failed, using fallback", "error", err)
	return c.secondary.GradeAnswer(ctx, req)
}
