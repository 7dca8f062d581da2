package agent

import (
	"context"

	"go.uber.org/zap"

	"github.com/chatforge/chatforge/internal/provider"
)

// ProMaxAgent runs the two-phase clarify-then-plan flow with a bounded
// retry around plan generation. Plan generation is expensive and worth
// retrying; every other agent fails fast on the first provider error.
type ProMaxAgent struct {
	pipeline planPipeline
}

func NewProMaxAgent(completer provider.Completer, logger *zap.Logger) *ProMaxAgent {
	return &ProMaxAgent{pipeline: planPipeline{completer: completer, logger: logger, retry: true}}
}

func (a *ProMaxAgent) Name() string { return "pro_max" }

func (a *ProMaxAgent) Execute(ctx context.Context, input *AgentInput) (*AgentExecutionResult, error) {
	return a.pipeline.run(ctx, input)
}

// SuperAgent delegates entirely to the clarify-then-plan pipeline,
// without the retry.
type SuperAgent struct {
	pipeline planPipeline
}

func NewSuperAgent(completer provider.Completer, logger *zap.Logger) *SuperAgent {
	return &SuperAgent{pipeline: planPipeline{completer: completer, logger: logger}}
}

func (a *SuperAgent) Name() string { return "super_agent" }

func (a *SuperAgent) Execute(ctx context.Context, input *AgentInput) (*AgentExecutionResult, error) {
	return a.pipeline.run(ctx, input)
}
