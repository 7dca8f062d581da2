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

func threeTaskPlan() *models.Plan {
	return &models.Plan{
		Title: "Leaderboard",
		Tasks: []models.Task{
			{Text: "create the data module", Status: models.TaskPending},
			{Text: "create the leaderboard ui", Status: models.TaskPending},
			{Text: "wire ui to data", Status: models.TaskPending},
		},
	}
}

func codeResponse(path string) []byte {
	return []byte(fmt.Sprintf(
		`{"kind":"code","response_text":"","explanation":"wrote %s","files":[{"file_path":"%s","code":"print('hi')","language":"lua"}]}`,
		path, path,
	))
}

func executorFixture(t *testing.T, jsonFn func(call int, req provider.Request) ([]byte, error)) (*PlanExecutor, *fakeGateway, *AgentInput) {
	t.Helper()
	completer := &fakeCompleter{jsonFn: jsonFn}
	gateway := newFakeGateway()
	gateway.projects["project-1"] = &models.Project{ID: "project-1", Files: map[string]models.ProjectFile{}}

	input := testInput("run the plan")
	input.Project = gateway.projects["project-1"]

	build := NewBuildAgent(completer, zap.NewNop())
	return NewPlanExecutor(build, gateway, zap.NewNop()), gateway, input
}

func TestExecutePlanAllTasksComplete(t *testing.T) {
	executor, gateway, input := executorFixture(t, func(call int, _ provider.Request) ([]byte, error) {
		return codeResponse(fmt.Sprintf("src/file%d.lua", call)), nil
	})
	gateway.messages["msg-1"] = &models.OutgoingMessage{ID: "msg-1", ChatID: "chat-1"}
	gateway.order = append(gateway.order, "msg-1")

	plan, err := executor.ExecutePlan(context.Background(), input, "msg-1", threeTaskPlan())

	require.NoError(t, err)
	assert.True(t, plan.IsComplete)
	for i, task := range plan.Tasks {
		assert.Equal(t, models.TaskComplete, task.Status, "task %d", i)
		assert.NotEmpty(t, task.Code, "task %d", i)
		assert.NotEmpty(t, task.Explanation, "task %d", i)
	}

	// Every status change persisted: in-progress and complete per task,
	// plus the final isComplete write.
	assert.Equal(t, 2*len(plan.Tasks)+1, gateway.planWrites)

	project := gateway.projects["project-1"]
	assert.Len(t, project.Files, 3)
}

func TestExecutePlanFailedTaskStillTerminates(t *testing.T) {
	failAt := 1
	executor, gateway, input := executorFixture(t, func(call int, _ provider.Request) ([]byte, error) {
		if call == failAt {
			return nil, fmt.Errorf("model timeout")
		}
		return codeResponse(fmt.Sprintf("src/file%d.lua", call)), nil
	})
	gateway.messages["msg-1"] = &models.OutgoingMessage{ID: "msg-1", ChatID: "chat-1"}
	gateway.order = append(gateway.order, "msg-1")

	plan, err := executor.ExecutePlan(context.Background(), input, "msg-1", threeTaskPlan())

	require.NoError(t, err)
	assert.True(t, plan.IsComplete)
	for i, task := range plan.Tasks {
		assert.Equal(t, models.TaskComplete, task.Status, "task %d", i)
	}

	failed := plan.Tasks[failAt]
	assert.Empty(t, failed.Code)
	assert.Contains(t, failed.Explanation, "timeout")

	assert.NotEmpty(t, plan.Tasks[0].Code)
	assert.NotEmpty(t, plan.Tasks[2].Code)
	assert.Len(t, gateway.projects["project-1"].Files, 2)
}

func TestExecutePlanSkipsCompletedTasks(t *testing.T) {
	executor, gateway, input := executorFixture(t, func(call int, _ provider.Request) ([]byte, error) {
		return codeResponse(fmt.Sprintf("src/resume%d.lua", call)), nil
	})
	gateway.messages["msg-1"] = &models.OutgoingMessage{ID: "msg-1", ChatID: "chat-1"}
	gateway.order = append(gateway.order, "msg-1")

	plan := threeTaskPlan()
	plan.Tasks[0].Status = models.TaskComplete
	plan.Tasks[0].Code = "already done"

	out, err := executor.ExecutePlan(context.Background(), input, "msg-1", plan)

	require.NoError(t, err)
	assert.True(t, out.IsComplete)
	assert.Equal(t, "already done", out.Tasks[0].Code)
	// Only the two remaining tasks hit the provider.
	assert.Len(t, gateway.projects["project-1"].Files, 2)
}
