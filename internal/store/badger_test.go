package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatforge/chatforge/internal/models"
)

func testGateway(t *testing.T) *BadgerGateway {
	t.Helper()
	g, err := NewBadgerGateway(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { g.Close() })
	return g
}

func TestProjectRoundTrip(t *testing.T) {
	g := testGateway(t)
	ctx := context.Background()

	_, err := g.GetProject(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	project := &models.Project{ID: "p1", OwnerID: "u1", Name: "Game", DefaultModel: "gpt-4o-mini"}
	require.NoError(t, g.PutProject(ctx, project))

	got, err := g.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Game", got.Name)
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestApplyProjectUpdateMergesFiles(t *testing.T) {
	g := testGateway(t)
	ctx := context.Background()

	require.NoError(t, g.PutProject(ctx, &models.Project{
		ID: "p1",
		Files: map[string]models.ProjectFile{
			"src/a.lua": {Path: "src/a.lua", Code: "old a"},
			"src/b.lua": {Path: "src/b.lua", Code: "old b"},
		},
	}))

	memory := "remembers things"
	got, err := g.ApplyProjectUpdate(ctx, "p1", &models.ProjectUpdate{
		ProjectMemory: &memory,
		Files: map[string]models.ProjectFile{
			"src/a.lua": {Path: "src/a.lua", Code: "new a"},
			"src/c.lua": {Path: "src/c.lua", Code: "new c"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "remembers things", got.ProjectMemory)
	require.Len(t, got.Files, 3)
	assert.Equal(t, "new a", got.Files["src/a.lua"].Code)
	assert.Equal(t, "old b", got.Files["src/b.lua"].Code)
	assert.Equal(t, "new c", got.Files["src/c.lua"].Code)

	_, err = g.ApplyProjectUpdate(ctx, "missing", &models.ProjectUpdate{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListMessagesOrderedByTime(t *testing.T) {
	g := testGateway(t)
	ctx := context.Background()

	base := time.Now()
	for i, id := range []string{"m1", "m2", "m3"} {
		require.NoError(t, g.PutMessage(ctx, &models.OutgoingMessage{
			ID:         id,
			ChatID:     "c1",
			Text:       id,
			SenderRole: models.SenderUser,
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, g.PutMessage(ctx, &models.OutgoingMessage{
		ID: "other", ChatID: "c2", Text: "other", CreatedAt: base,
	}))

	messages, err := g.ListMessages(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "m1", messages[0].ID)
	assert.Equal(t, "m2", messages[1].ID)
	assert.Equal(t, "m3", messages[2].ID)
}

func TestUpdateMessagePlanPatchesInPlace(t *testing.T) {
	g := testGateway(t)
	ctx := context.Background()

	require.NoError(t, g.PutMessage(ctx, &models.OutgoingMessage{
		ID:     "m1",
		ChatID: "c1",
		Text:   "the original text",
		Plan: &models.Plan{
			Title: "Plan",
			Tasks: []models.Task{{Text: "t1", Status: models.TaskPending}},
		},
	}))

	require.NoError(t, g.UpdateMessagePlan(ctx, "m1", &models.Plan{
		Title:      "Plan",
		Tasks:      []models.Task{{Text: "t1", Status: models.TaskComplete, Code: "done"}},
		IsComplete: true,
	}))

	got, err := g.GetMessage(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "the original text", got.Text)
	require.NotNil(t, got.Plan)
	assert.True(t, got.Plan.IsComplete)
	assert.Equal(t, models.TaskComplete, got.Plan.Tasks[0].Status)

	assert.ErrorIs(t, g.UpdateMessagePlan(ctx, "missing", &models.Plan{}), ErrNotFound)
}

func TestDecrementCredits(t *testing.T) {
	g := testGateway(t)
	ctx := context.Background()

	require.NoError(t, g.PutProfile(ctx, &models.Profile{UserID: "u1", Credits: 10}))

	require.NoError(t, g.DecrementCredits(ctx, "u1", 4))
	profile, err := g.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(6), profile.Credits)

	err = g.DecrementCredits(ctx, "u1", 7)
	assert.ErrorIs(t, err, ErrInsufficientCredits)

	profile, err = g.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(6), profile.Credits)
}

func TestDecrementCreditsNeverOverspends(t *testing.T) {
	g := testGateway(t)
	ctx := context.Background()

	require.NoError(t, g.PutProfile(ctx, &models.Profile{UserID: "u1", Credits: 10}))

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, rejected := 0, 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := g.DecrementCredits(ctx, "u1", 1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrInsufficientCredits):
				rejected++
			}
		}()
	}
	wg.Wait()

	// Conflicting transactions retry, so every caller resolves to a
	// definitive spend or an insufficient-credits rejection.
	assert.Equal(t, 10, succeeded)
	assert.Equal(t, 10, rejected)

	profile, err := g.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), profile.Credits)
}

func TestCostSettingsDefault(t *testing.T) {
	g := testGateway(t)
	ctx := context.Background()

	settings, err := g.GetCostSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), settings.Cost("anything"))

	require.NoError(t, g.PutCostSettings(ctx, &models.CostSettings{
		ImageModelCosts: map[string]int64{"dall-e-3": 10},
	}))

	settings, err = g.GetCostSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), settings.Cost("dall-e-3"))
	assert.Equal(t, int64(1), settings.Cost("unknown-model"))
}
