package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/chatforge/chatforge/internal/models"
	"github.com/chatforge/chatforge/internal/store"
)

// PlanExecutor drives a generated plan to completion one task at a
// time. Tasks are strictly sequential: later tasks assume the files
// written by earlier tasks are already visible. Every status change is
// persisted immediately so a crash mid-plan leaves a resumable state.
type PlanExecutor struct {
	build   *BuildAgent
	gateway store.Gateway
	logger  *zap.Logger
}

func NewPlanExecutor(build *BuildAgent, gateway store.Gateway, logger *zap.Logger) *PlanExecutor {
	return &PlanExecutor{build: build, gateway: gateway, logger: logger}
}

// ExecutePlan runs every task of the plan attached to messageID. It
// always terminates: a failed code-gen call marks its task complete
// with the error folded into the explanation and no code, and the loop
// moves on. Already-complete tasks are skipped, which makes a resumed
// run after a crash pick up where it stopped.
func (e *PlanExecutor) ExecutePlan(ctx context.Context, input *AgentInput, messageID string, plan *models.Plan) (*models.Plan, error) {
	plan = clonePlan(plan)

	for i := range plan.Tasks {
		if plan.Tasks[i].Status == models.TaskComplete {
			continue
		}
		if err := ctx.Err(); err != nil {
			return plan, err
		}

		plan.Tasks[i].Status = models.TaskInProgress
		e.persist(ctx, messageID, plan)

		e.runTask(ctx, input, plan, i)

		plan.Tasks[i].Status = models.TaskComplete
		e.persist(ctx, messageID, plan)
	}

	plan.IsComplete = true
	e.persist(ctx, messageID, plan)
	return plan, nil
}

func (e *PlanExecutor) runTask(ctx context.Context, input *AgentInput, plan *models.Plan, i int) {
	task := &plan.Tasks[i]
	prompt := fmt.Sprintf(
		"You are executing one task from the plan %q. Execute only this task and nothing else:\n%s",
		plan.Title, task.Text,
	)

	files, explanation, err := e.build.generate(ctx, input, prompt)
	if err != nil {
		e.logger.Warn("plan task failed",
			zap.String("task", task.Text),
			zap.Int("index", i),
			zap.Error(err))
		task.Explanation = fmt.Sprintf("Task failed: %s", err.Error())
		return
	}

	task.Explanation = explanation
	if len(files) == 0 {
		return
	}
	task.Code = joinFileCode(files)

	// Merge the task's files into the project before the next task
	// runs, so later tasks can reference them.
	if input.Project != nil {
		update := &models.ProjectUpdate{Files: fileMap(files)}
		project, err := e.gateway.ApplyProjectUpdate(ctx, input.Project.ID, update)
		if err != nil {
			e.logger.Warn("project file merge failed",
				zap.String("project_id", input.Project.ID),
				zap.Error(err))
			return
		}
		input.Project = project
	}
}

// persist writes the plan back onto its message. Best effort; a write
// failure is logged and the loop keeps going so the plan still reaches
// a terminal state in memory.
func (e *PlanExecutor) persist(ctx context.Context, messageID string, plan *models.Plan) {
	if err := e.gateway.UpdateMessagePlan(ctx, messageID, plan); err != nil {
		e.logger.Warn("plan persist failed", zap.String("message_id", messageID), zap.Error(err))
	}
}
