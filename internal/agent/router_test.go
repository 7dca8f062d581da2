package agent

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chatforge/chatforge/internal/models"
)

type stubAgent struct {
	name   string
	called int
	fail   error
	panics bool
}

func (s *stubAgent) Name() string { return s.name }

func (s *stubAgent) Execute(_ context.Context, input *AgentInput) (*AgentExecutionResult, error) {
	s.called++
	if s.panics {
		panic("boom")
	}
	if s.fail != nil {
		return nil, s.fail
	}
	return singleMessage(input.aiMessage("from " + s.name)), nil
}

func stubRouter() (*Router, map[string]*stubAgent) {
	agents := map[string]*stubAgent{
		"chat":       {name: "chat"},
		"plan":       {name: "plan"},
		"build":      {name: "build"},
		"thinker":    {name: "thinker"},
		"super":      {name: "super_agent"},
		"promax":     {name: "pro_max"},
		"autonomous": {name: "autonomous"},
	}
	router := NewRouter(RouterConfig{
		Chat:       agents["chat"],
		Plan:       agents["plan"],
		Build:      agents["build"],
		Thinker:    agents["thinker"],
		SuperAgent: agents["super"],
		ProMax:     agents["promax"],
		Autonomous: agents["autonomous"],
		Logger:     zap.NewNop(),
	})
	return router, agents
}

func TestDispatchRoutesByChatMode(t *testing.T) {
	tests := []struct {
		mode models.ChatMode
		want string
	}{
		{models.ModeChat, "chat"},
		{models.ModePlan, "plan"},
		{models.ModeBuild, "build"},
		{models.ModeThinker, "thinker"},
		{models.ModeSuperAgent, "super"},
		{models.ModeProMax, "promax"},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			router, agents := stubRouter()
			input := testInput("hello")
			input.Chat.Mode = tt.mode
			input.WorkspaceMode = models.WorkspaceCocreator

			result := router.Dispatch(context.Background(), input)

			require.Len(t, result.Messages, 1)
			assert.Equal(t, 1, agents[tt.want].called)
		})
	}
}

func TestDispatchUnknownModeFallsBackToBuild(t *testing.T) {
	router, agents := stubRouter()
	input := testInput("hello")
	input.Chat.Mode = models.ChatMode("definitely-not-a-mode")
	input.WorkspaceMode = models.WorkspaceCocreator

	result := router.Dispatch(context.Background(), input)

	require.Len(t, result.Messages, 1)
	assert.Equal(t, 1, agents["build"].called)
	assert.Equal(t, "from build", result.Messages[0].Text)
}

func TestDispatchAutonomousWorkspaceIgnoresChatMode(t *testing.T) {
	router, agents := stubRouter()
	input := testInput("hello")
	input.Chat.Mode = models.ModeThinker
	input.WorkspaceMode = models.WorkspaceAutonomous

	result := router.Dispatch(context.Background(), input)

	require.Len(t, result.Messages, 1)
	assert.Equal(t, 1, agents["autonomous"].called)
	assert.Equal(t, 0, agents["thinker"].called)
}

func TestDispatchNeverFails(t *testing.T) {
	router, agents := stubRouter()
	agents["chat"].fail = fmt.Errorf("provider exploded: connection refused")

	input := testInput("hello")
	input.WorkspaceMode = models.WorkspaceCocreator

	result := router.Dispatch(context.Background(), input)

	require.NotNil(t, result)
	require.Len(t, result.Messages, 1)
	msg := result.Messages[0]
	assert.NotEmpty(t, msg.Text)
	assert.Equal(t, models.SenderAI, msg.SenderRole)
	assert.Equal(t, "chat-1", msg.ChatID)
	assert.Equal(t, "project-1", msg.ProjectID)
	assert.NotContains(t, msg.Text, "exploded")
}

func TestDispatchRecoversFromPanic(t *testing.T) {
	router, agents := stubRouter()
	agents["chat"].panics = true

	input := testInput("hello")
	input.WorkspaceMode = models.WorkspaceCocreator

	result := router.Dispatch(context.Background(), input)

	require.NotNil(t, result)
	require.Len(t, result.Messages, 1)
	assert.NotEmpty(t, result.Messages[0].Text)
	assert.Equal(t, models.SenderAI, result.Messages[0].SenderRole)
}

func TestDispatchEmptyResultBecomesError(t *testing.T) {
	router, _ := stubRouter()
	empty := &stubAgent{name: "empty"}
	router.agents[models.ModeChat] = agentReturningNothing{empty}

	input := testInput("hello")
	input.WorkspaceMode = models.WorkspaceCocreator

	result := router.Dispatch(context.Background(), input)

	require.Len(t, result.Messages, 1)
	assert.NotEmpty(t, result.Messages[0].Text)
}

type agentReturningNothing struct{ *stubAgent }

func (agentReturningNothing) Execute(context.Context, *AgentInput) (*AgentExecutionResult, error) {
	return &AgentExecutionResult{}, nil
}
