package agent

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chatforge/chatforge/internal/models"
	"github.com/chatforge/chatforge/internal/provider"
)

func planMessage(id string, tasks ...models.Task) *models.OutgoingMessage {
	return &models.OutgoingMessage{
		ID:         id,
		ChatID:     "chat-1",
		SenderRole: models.SenderAI,
		Plan:       &models.Plan{Title: "Game", Tasks: tasks},
	}
}

func TestBuildTaskRunnerTargetsPendingTask(t *testing.T) {
	completer := &fakeCompleter{jsonFn: func(_ int, _ provider.Request) ([]byte, error) {
		return codeResponse("src/leaderboard.lua"), nil
	}}
	build := NewBuildAgent(completer, zap.NewNop())

	input := testInput("continue")
	input.Messages = []*models.OutgoingMessage{
		{ID: "m1", ChatID: "chat-1", SenderRole: models.SenderUser, Text: "make a game"},
		planMessage("m2", models.Task{Text: "create leaderboard", Status: models.TaskPending}),
	}

	result, err := build.Execute(context.Background(), input)

	require.NoError(t, err)
	require.Len(t, completer.requests, 1)
	assert.Contains(t, completer.requests[0].Prompt, "create leaderboard")
	assert.Contains(t, completer.requests[0].Prompt, "only this task")

	require.NotNil(t, result.UpdatedPlan)
	assert.Equal(t, "m2", result.UpdatedPlan.MessageID)
	task := result.UpdatedPlan.Plan.Tasks[0]
	assert.Equal(t, models.TaskComplete, task.Status)
	assert.NotEmpty(t, task.Code)

	require.NotNil(t, result.ProjectUpdate)
	assert.Contains(t, result.ProjectUpdate.Files, "src/leaderboard.lua")
}

func TestBuildTaskRunnerIgnoresCompletedPlans(t *testing.T) {
	completer := &fakeCompleter{jsonFn: func(_ int, _ provider.Request) ([]byte, error) {
		return codeResponse("src/fresh.lua"), nil
	}}
	build := NewBuildAgent(completer, zap.NewNop())

	done := planMessage("m2", models.Task{Text: "old task", Status: models.TaskComplete})
	done.Plan.IsComplete = true

	input := testInput("build me a shop ui")
	input.Messages = []*models.OutgoingMessage{done}

	result, err := build.Execute(context.Background(), input)

	require.NoError(t, err)
	assert.Nil(t, result.UpdatedPlan)
	assert.Contains(t, completer.requests[0].Prompt, "shop ui")
}

func TestBuildFailedTaskStillMarkedComplete(t *testing.T) {
	completer := &fakeCompleter{jsonFn: func(_ int, _ provider.Request) ([]byte, error) {
		return nil, fmt.Errorf("connection refused")
	}}
	build := NewBuildAgent(completer, zap.NewNop())

	input := testInput("continue")
	input.Messages = []*models.OutgoingMessage{
		planMessage("m2", models.Task{Text: "create leaderboard", Status: models.TaskPending}),
	}

	result, err := build.Execute(context.Background(), input)

	require.NoError(t, err)
	require.Len(t, result.Messages, 1)
	assert.NotEmpty(t, result.Messages[0].Text)

	require.NotNil(t, result.UpdatedPlan)
	task := result.UpdatedPlan.Plan.Tasks[0]
	assert.Equal(t, models.TaskComplete, task.Status)
	assert.Empty(t, task.Code)
	assert.NotEmpty(t, task.Explanation)
}

func TestBuildClarificationBranch(t *testing.T) {
	completer := &fakeCompleter{jsonFn: func(_ int, _ provider.Request) ([]byte, error) {
		return []byte(`{"kind":"clarification","response_text":"What platform is this for?","explanation":"","files":[]}`), nil
	}}
	build := NewBuildAgent(completer, zap.NewNop())

	result, err := build.Execute(context.Background(), testInput("make it better"))

	require.NoError(t, err)
	require.Len(t, result.Messages, 1)
	assert.Equal(t, "What platform is this for?", result.Messages[0].Text)
	assert.Nil(t, result.ProjectUpdate)
	assert.Nil(t, result.UpdatedPlan)
}

func TestBuildDoesNotMutatePersistedPlan(t *testing.T) {
	completer := &fakeCompleter{jsonFn: func(_ int, _ provider.Request) ([]byte, error) {
		return codeResponse("src/a.lua"), nil
	}}
	build := NewBuildAgent(completer, zap.NewNop())

	original := planMessage("m2", models.Task{Text: "create leaderboard", Status: models.TaskPending})
	input := testInput("continue")
	input.Messages = []*models.OutgoingMessage{original}

	_, err := build.Execute(context.Background(), input)

	require.NoError(t, err)
	assert.Equal(t, models.TaskPending, original.Plan.Tasks[0].Status)
}
