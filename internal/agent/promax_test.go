package agent

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chatforge/chatforge/internal/models"
	"github.com/chatforge/chatforge/internal/provider"
)

const planDoc = `{
	"title": "Red Button App",
	"introduction": "A tiny page with one red button.",
	"features": ["red button", "click greeting"],
	"mermaid_graph": "flowchart TD; A-->B",
	"tasks": ["create index.html", "style the button", "wire the click handler"]
}`

func fastBackoff(t *testing.T) {
	t.Helper()
	saved := planRetryBackoff
	planRetryBackoff = []time.Duration{time.Millisecond, time.Millisecond}
	t.Cleanup(func() { planRetryBackoff = saved })
}

func TestProMaxAsksClarifyingQuestions(t *testing.T) {
	completer := &fakeCompleter{jsonFn: func(_ int, _ provider.Request) ([]byte, error) {
		return []byte(`{"questions":["q1","q2"]}`), nil
	}}
	agent := NewProMaxAgent(completer, zap.NewNop())

	result, err := agent.Execute(context.Background(), testInput("build me an app"))

	require.NoError(t, err)
	assert.Equal(t, 1, completer.callCount())
	require.Len(t, result.Messages, 1)
	c := result.Messages[0].Clarification
	require.NotNil(t, c)
	assert.Equal(t, "build me an app", c.Prompt)
	assert.Equal(t, []string{"q1", "q2"}, c.Questions)
	assert.Nil(t, result.Messages[0].Plan)
}

func TestProMaxNoQuestionsGoesStraightToPlan(t *testing.T) {
	completer := &fakeCompleter{jsonFn: func(call int, _ provider.Request) ([]byte, error) {
		if call == 0 {
			return []byte(`{"questions":[]}`), nil
		}
		return []byte(planDoc), nil
	}}
	agent := NewProMaxAgent(completer, zap.NewNop())

	result, err := agent.Execute(context.Background(), testInput("build a red button app"))

	require.NoError(t, err)
	assert.Equal(t, 2, completer.callCount())
	require.Len(t, result.Messages, 1)
	plan := result.Messages[0].Plan
	require.NotNil(t, plan)
	assert.Equal(t, "Red Button App", plan.Title)
	require.Len(t, plan.Tasks, 3)
	for _, task := range plan.Tasks {
		assert.Equal(t, models.TaskPending, task.Status)
	}
	assert.False(t, plan.IsComplete)
}

func TestProMaxClarificationRoundTrip(t *testing.T) {
	completer := &fakeCompleter{jsonFn: func(_ int, _ provider.Request) ([]byte, error) {
		return []byte(planDoc), nil
	}}
	agent := NewProMaxAgent(completer, zap.NewNop())

	input := testInput("build me an app")
	input.Answers = []string{"a1", "a2"}
	clarif := testInput("build me an app").aiMessage("Before I draft a plan, I have a few questions:")
	clarif.Clarification = &models.Clarification{Prompt: "build me an app", Questions: []string{"q1", "q2"}}
	input.Messages = []*models.OutgoingMessage{clarif}

	result, err := agent.Execute(context.Background(), input)

	require.NoError(t, err)
	// The question phase is skipped; the one call is plan generation.
	require.Equal(t, 1, completer.callCount())
	prompt := completer.requests[0].Prompt

	assert.Contains(t, prompt, "build me an app")
	for _, part := range []string{"q1", "a1", "q2", "a2"} {
		assert.Contains(t, prompt, part)
	}
	// Original prompt first, then each question/answer pair in order.
	assert.Less(t, strings.Index(prompt, "build me an app"), strings.Index(prompt, "q1"))
	assert.Less(t, strings.Index(prompt, "q1"), strings.Index(prompt, "a1"))
	assert.Less(t, strings.Index(prompt, "a1"), strings.Index(prompt, "q2"))
	assert.Less(t, strings.Index(prompt, "q2"), strings.Index(prompt, "a2"))

	require.NotNil(t, result.Messages[0].Plan)
}

func TestProMaxPlanGenerationRetries(t *testing.T) {
	fastBackoff(t)
	completer := &fakeCompleter{jsonFn: func(call int, _ provider.Request) ([]byte, error) {
		if call < 2 {
			return nil, fmt.Errorf("transient network error")
		}
		return []byte(planDoc), nil
	}}
	agent := NewProMaxAgent(completer, zap.NewNop())

	input := testInput("build me an app")
	input.Answers = []string{}

	result, err := agent.Execute(context.Background(), input)

	require.NoError(t, err)
	assert.Equal(t, 3, completer.callCount())
	require.NotNil(t, result.Messages[0].Plan)
}

func TestProMaxRetryExhaustionSurfacesError(t *testing.T) {
	fastBackoff(t)
	completer := &fakeCompleter{jsonFn: func(_ int, _ provider.Request) ([]byte, error) {
		return nil, fmt.Errorf("persistent failure")
	}}
	agent := NewProMaxAgent(completer, zap.NewNop())

	input := testInput("build me an app")
	input.Answers = []string{}

	result, err := agent.Execute(context.Background(), input)

	require.NoError(t, err)
	assert.Equal(t, 3, completer.callCount())
	require.Len(t, result.Messages, 1)
	assert.NotEmpty(t, result.Messages[0].Text)
	assert.Nil(t, result.Messages[0].Plan)
}

func TestSuperAgentFailsFast(t *testing.T) {
	completer := &fakeCompleter{jsonFn: func(call int, _ provider.Request) ([]byte, error) {
		if call == 0 {
			return []byte(`{"questions":[]}`), nil
		}
		return nil, fmt.Errorf("transient network error")
	}}
	agent := NewSuperAgent(completer, zap.NewNop())

	result, err := agent.Execute(context.Background(), testInput("build me an app"))

	require.NoError(t, err)
	// One clarify call, one failed plan call, no retries.
	assert.Equal(t, 2, completer.callCount())
	require.Len(t, result.Messages, 1)
	assert.Nil(t, result.Messages[0].Plan)
}
